package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/wolfman30/school-whatsapp-hub/internal/assistant"
	appconfig "github.com/wolfman30/school-whatsapp-hub/internal/config"
	"github.com/wolfman30/school-whatsapp-hub/internal/leads"
	"github.com/wolfman30/school-whatsapp-hub/internal/messaging"
	"github.com/wolfman30/school-whatsapp-hub/internal/notify"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

func TestBuildRedisClientDisabledWithoutAddr(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
}

func TestBuildRedisClientPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr(), ProcessedEventTTL: time.Hour}

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	defer client.Close()

	store := BuildProcessedStore(client, cfg)
	if store == nil {
		t.Fatalf("expected processed store")
	}
	first, err := store.MarkProcessed(context.Background(), "whatsapp", "3EB0C767D26A")
	if err != nil || !first {
		t.Fatalf("expected first mark to succeed, got %v %v", first, err)
	}
}

func TestBuildRedisClientUnreachableReturnsNil(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildOutboundSenderRequiresGateway(t *testing.T) {
	store := messaging.NewMemoryStore()
	if _, err := BuildOutboundSender(nil, store, nil, logging.New("error")); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := BuildOutboundSender(&appconfig.Config{}, store, nil, logging.New("error")); err == nil {
		t.Fatalf("expected error without gateway url and token")
	}

	sender, err := BuildOutboundSender(&appconfig.Config{
		WhatsAppAPIBaseURL:  "https://gateway.example.com",
		WhatsAppAPIToken:    "tok",
		WhatsAppSendTimeout: 10 * time.Second,
	}, store, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender == nil {
		t.Fatalf("expected sender")
	}
}

func TestBuildLLMClientRequiresConfig(t *testing.T) {
	if _, err := BuildLLMClient(context.Background(), nil, nil, logging.New("error")); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildLLMClientDisabledReturnsNil(t *testing.T) {
	llm, err := BuildLLMClient(context.Background(), &appconfig.Config{AssistantEnabled: false, GeminiAPIKey: "k"}, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if llm != nil {
		t.Fatalf("expected nil client when assistant is disabled")
	}
}

func TestBuildLLMClientNoProviderReturnsNil(t *testing.T) {
	llm, err := BuildLLMClient(context.Background(), &appconfig.Config{AssistantEnabled: true}, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if llm != nil {
		t.Fatalf("expected nil client without providers")
	}
}

func TestBuildLLMClientBedrockOnly(t *testing.T) {
	cfg := &appconfig.Config{
		AssistantEnabled:         true,
		AssistantPrimaryProvider: "gemini",
		BedrockModelID:           "anthropic.claude-3-haiku-20240307-v1:0",
	}
	llm, err := BuildLLMClient(context.Background(), cfg, &aws.Config{Region: "us-east-1"}, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := llm.(*assistant.BedrockLLMClient); !ok {
		t.Fatalf("expected bedrock client as the only provider, got %T", llm)
	}
}

func TestBuildAssistantQueue(t *testing.T) {
	queue, inline, err := BuildAssistantQueue(&appconfig.Config{UseMemoryQueue: true}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inline {
		t.Fatalf("expected in-memory queue to be inline")
	}
	if _, ok := queue.(*assistant.MemoryQueue); !ok {
		t.Fatalf("expected memory queue, got %T", queue)
	}

	if _, _, err := BuildAssistantQueue(&appconfig.Config{AssistantQueueURL: "https://sqs.us-east-1.amazonaws.com/1/assistant"}, nil); err == nil {
		t.Fatalf("expected error for sqs queue without aws config")
	}

	queue, inline, err = BuildAssistantQueue(&appconfig.Config{AssistantQueueURL: "https://sqs.us-east-1.amazonaws.com/1/assistant"}, &aws.Config{Region: "us-east-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inline {
		t.Fatalf("expected sqs queue to run in a separate worker")
	}
	if _, ok := queue.(*assistant.SQSQueue); !ok {
		t.Fatalf("expected sqs queue, got %T", queue)
	}
}

func TestBuildEmailSenderFallsBackToStub(t *testing.T) {
	sender, err := BuildEmailSender(&appconfig.Config{}, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sender.(*notify.StubEmailSender); !ok {
		t.Fatalf("expected stub sender, got %T", sender)
	}

	sender, err = BuildEmailSender(&appconfig.Config{SendGridAPIKey: "SG.x", SendGridFromEmail: "secretaria@escola.com.br"}, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sender.(*notify.SendGridSender); !ok {
		t.Fatalf("expected sendgrid sender, got %T", sender)
	}
}

func TestBuildFailureAlerterDisabledIsNilInterface(t *testing.T) {
	email := notify.NewStubEmailSender(logging.New("error"))
	if alerter := BuildFailureAlerter(&appconfig.Config{}, email, leads.NewInMemoryRepository(), logging.New("error")); alerter != nil {
		t.Fatalf("expected nil alerter without OPERATOR_ALERT_EMAIL, got %T", alerter)
	}
	if alerter := BuildFailureAlerter(&appconfig.Config{OperatorAlertEmail: "direcao@escola.com.br"}, email, leads.NewInMemoryRepository(), logging.New("error")); alerter == nil {
		t.Fatalf("expected alerter when recipient is set")
	}
}

func TestBuildMediaArchiverDisabledWithoutBucket(t *testing.T) {
	if store := BuildMediaArchiver(&appconfig.Config{}, &aws.Config{Region: "us-east-1"}, messaging.NewMemoryStore(), logging.New("error")); store != nil {
		t.Fatalf("expected nil archiver without bucket")
	}
	store := BuildMediaArchiver(&appconfig.Config{MediaArchiveBucket: "school-media", AWSEndpointOverride: "http://localhost:4566"}, &aws.Config{Region: "us-east-1"}, messaging.NewMemoryStore(), logging.New("error"))
	if store == nil || !store.Enabled() {
		t.Fatalf("expected enabled archiver")
	}
}
