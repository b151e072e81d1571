package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/school-whatsapp-hub/internal/archive"
	appconfig "github.com/wolfman30/school-whatsapp-hub/internal/config"
	"github.com/wolfman30/school-whatsapp-hub/internal/messaging"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

// BuildMediaArchiver returns nil when MEDIA_ARCHIVE_BUCKET is unset.
func BuildMediaArchiver(cfg *appconfig.Config, awsCfg *aws.Config, store messaging.ConversationStore, logger *logging.Logger) *archive.Store {
	if cfg == nil || awsCfg == nil || strings.TrimSpace(cfg.MediaArchiveBucket) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	client := s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
		// LocalStack and MinIO only serve path-style URLs.
		if cfg.AWSEndpointOverride != "" {
			o.UsePathStyle = true
		}
	})
	return archive.NewStore(client, cfg.MediaArchiveBucket, store, logger.WithComponent("archive").Logger)
}
