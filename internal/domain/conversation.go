package domain

import "time"

// MessageType identifies who originated a conversation message.
type MessageType int

// Message types as numbered by the conversation platform.
const (
	MessageTypeIncoming MessageType = 0
	MessageTypeOutgoing MessageType = 1
	MessageTypeActivity MessageType = 2
	MessageTypeTemplate MessageType = 3
)

// Conversation is a support conversation with its embedded messages.
type Conversation struct {
	ID       int64
	Sender   *Contact
	Messages []Message
}

// Contact identifies the customer of a conversation.
type Contact struct {
	Name  string
	Email string
}

// Message is a single conversation message.
type Message struct {
	Content   string
	Private   bool
	Type      MessageType
	CreatedAt time.Time
}

// FromCustomer reports whether the message was sent by the customer.
func (m Message) FromCustomer() bool {
	return m.Type == MessageTypeIncoming
}
