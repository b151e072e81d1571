package messaging

import (
	"time"

	"github.com/wolfman30/school-whatsapp-hub/internal/whatsapp"
)

// Direction tells whether a message came from the lead or from the school.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Sender labels for messages the school sends.
const (
	SenderStaff     = "equipe"
	SenderAssistant = "assistente"
	SenderScheduler = "agendamento"
)

const conversationOpen = "open"

// Conversation is the single open thread with a lead.
type Conversation struct {
	ID            string     `json:"id"`
	LeadID        string     `json:"lead_id"`
	WhatsAppJID   string     `json:"whatsapp_jid"`
	Status        string     `json:"status"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Message is one persisted chat message in either direction.
type Message struct {
	ID               string                 `json:"id"`
	ConversationID   string                 `json:"conversation_id"`
	LeadID           string                 `json:"lead_id"`
	Direction        Direction              `json:"direction"`
	Kind             whatsapp.Kind          `json:"kind"`
	Body             string                 `json:"body,omitempty"`
	Caption          string                 `json:"caption,omitempty"`
	MediaURL         string                 `json:"media_url,omitempty"`
	MimeType         string                 `json:"mime_type,omitempty"`
	FileName         string                 `json:"file_name,omitempty"`
	ArchivedMediaKey string                 `json:"archived_media_key,omitempty"`
	Sender           string                 `json:"sender"`
	Status           whatsapp.MessageStatus `json:"status"`
	VendorMessageID  string                 `json:"vendor_message_id,omitempty"`
	ErrorDetail      string                 `json:"error_detail,omitempty"`
	Transcription    string                 `json:"transcription,omitempty"`
	SentAt           time.Time              `json:"sent_at"`
	CreatedAt        time.Time              `json:"created_at"`
}

// applyClassified copies the classifier output onto the row.
func (m *Message) applyClassified(c whatsapp.Classified) {
	m.Kind = c.Kind
	if c.Kind.IsMedia() {
		m.MediaURL = c.MediaURL
		m.MimeType = c.MimeType
		m.FileName = c.FileName
		m.Caption = c.Caption
		return
	}
	m.Body = c.Text
}
