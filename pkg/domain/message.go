package domain

import "time"

// ChannelType identifies the messaging channel a conversation lives on.
type ChannelType string

const (
	ChannelWhatsApp  ChannelType = "whatsapp"
	ChannelInstagram ChannelType = "instagram"
	ChannelMessenger ChannelType = "messenger"
	ChannelTelegram  ChannelType = "telegram"
	ChannelWebchat   ChannelType = "webchat"
	ChannelSMS       ChannelType = "sms"
	ChannelEmail     ChannelType = "email"
)

// SupportsMedia reports whether the channel can carry media payloads.
// SMS and email are text-only from the engine's point of view.
func (c ChannelType) SupportsMedia() bool {
	switch c {
	case ChannelWhatsApp, ChannelInstagram, ChannelMessenger, ChannelTelegram, ChannelWebchat:
		return true
	}
	return false
}

// InboundMessage is one user message entering the engine. The Matched*
// fields are annotations written during trigger resolution and consumed by
// edge selection; they are never persisted.
type InboundMessage struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	Channel        ChannelType `json:"channel"`
	Content        string      `json:"content"`
	HasMedia       bool        `json:"hasMedia"`
	MediaType      string      `json:"mediaType,omitempty"`
	ReceivedAt     time.Time   `json:"receivedAt"`

	// MatchedKeyword is the first trigger keyword that matched, in declared
	// order. Set by the trigger resolver, read by the edge selector.
	MatchedKeyword string `json:"-"`
	// SessionReuse marks the message as matched via an existing live session,
	// which skips multi-keyword re-evaluation downstream.
	SessionReuse bool `json:"-"`
}

// Conversation is the channel-scoped thread a message belongs to.
type Conversation struct {
	ID        string      `json:"id"`
	CompanyID string      `json:"companyId"`
	Channel   ChannelType `json:"channel"`
	ContactID string      `json:"contactId"`
}

// Contact is the end user on the other side of a conversation.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// ChannelConnection carries the opaque credentials a channel dispatcher
// needs to send on behalf of a company. The engine never inspects it.
type ChannelConnection struct {
	ID        string         `json:"id"`
	CompanyID string         `json:"companyId"`
	Channel   ChannelType    `json:"channel"`
	Settings  map[string]any `json:"settings,omitempty"`
}
