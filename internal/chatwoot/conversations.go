package chatwoot

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bissquit/oncall-bridge/internal/domain"
)

type conversationResponse struct {
	ID       int64             `json:"id" validate:"required"`
	Meta     *conversationMeta `json:"meta"`
	Messages []messageResponse `json:"messages" validate:"dive"`
}

type conversationMeta struct {
	Sender *contactResponse `json:"sender"`
}

type contactResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type messageResponse struct {
	Content     string `json:"content"`
	Private     bool   `json:"private"`
	MessageType int    `json:"message_type" validate:"gte=0"`
	CreatedAt   int64  `json:"created_at"`
}

type sendMessageRequest struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	Private     bool   `json:"private"`
}

type customAttributesRequest struct {
	CustomAttributes map[string]string `json:"custom_attributes"`
}

// GetConversation fetches a conversation with its messages.
func (c *Client) GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error) {
	path, err := c.accountPath(fmt.Sprintf("/conversations/%d", conversationID))
	if err != nil {
		return nil, err
	}

	var resp conversationResponse
	if err := c.do(ctx, "get_conversation", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if err := c.validator.Struct(resp); err != nil {
		return nil, fmt.Errorf("invalid conversation %d: %w", conversationID, err)
	}

	conv := &domain.Conversation{
		ID:       resp.ID,
		Messages: make([]domain.Message, 0, len(resp.Messages)),
	}
	if resp.Meta != nil && resp.Meta.Sender != nil {
		conv.Sender = &domain.Contact{
			Name:  resp.Meta.Sender.Name,
			Email: resp.Meta.Sender.Email,
		}
	}
	for _, m := range resp.Messages {
		msg := domain.Message{
			Content: m.Content,
			Private: m.Private,
			Type:    domain.MessageType(m.MessageType),
		}
		if m.CreatedAt > 0 {
			msg.CreatedAt = time.Unix(m.CreatedAt, 0).UTC()
		}
		conv.Messages = append(conv.Messages, msg)
	}

	return conv, nil
}

// SendMessage posts an outgoing message. Private messages are agent-only notes.
func (c *Client) SendMessage(ctx context.Context, conversationID int64, content string, private bool) error {
	path, err := c.accountPath(fmt.Sprintf("/conversations/%d/messages", conversationID))
	if err != nil {
		return err
	}

	return c.do(ctx, "send_message", http.MethodPost, path, sendMessageRequest{
		Content:     content,
		MessageType: "outgoing",
		Private:     private,
	}, nil)
}

// UpdateCustomAttributes merges attributes into the conversation's custom
// attributes; keys not given are left untouched.
func (c *Client) UpdateCustomAttributes(ctx context.Context, conversationID int64, attributes map[string]string) error {
	path, err := c.accountPath(fmt.Sprintf("/conversations/%d/custom_attributes", conversationID))
	if err != nil {
		return err
	}

	return c.do(ctx, "update_custom_attributes", http.MethodPost, path, customAttributesRequest{
		CustomAttributes: attributes,
	}, nil)
}
