package oncall

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/oncall-bridge/internal/pkg/ctxlog"
	"github.com/bissquit/oncall-bridge/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// EventMessageCreated is the only webhook event the bridge acts on.
const EventMessageCreated = "message_created"

const (
	defaultOrchestrationTimeout = 2 * time.Minute
	failureNoteTimeout          = 15 * time.Second
	maxWebhookBody              = 1 << 20
)

// Creator runs the incident creation flow.
type Creator interface {
	CreateIncident(ctx context.Context, conversationID int64, req IncidentRequest) (Result, error)
}

// WebhookEvent is the subset of a chat webhook delivery the bridge reads.
type WebhookEvent struct {
	Event        string               `json:"event"`
	Private      bool                 `json:"private"`
	Content      string               `json:"content"`
	Conversation *WebhookConversation `json:"conversation"`
}

// WebhookConversation identifies the conversation of a webhook event.
type WebhookConversation struct {
	ID        int64 `json:"id" validate:"gte=0"`
	DisplayID int64 `json:"display_id" validate:"gte=0"`
}

// conversationID prefers the internal id over the display id.
func (e *WebhookEvent) conversationID() int64 {
	if e.Conversation == nil {
		return 0
	}
	if e.Conversation.ID != 0 {
		return e.Conversation.ID
	}
	return e.Conversation.DisplayID
}

type ignoredResponse struct {
	Ignored bool   `json:"ignored"`
	Reason  string `json:"reason"`
}

type acceptedResponse struct {
	Status string `json:"status"`
}

// HandlerConfig contains webhook handler configuration.
type HandlerConfig struct {
	OrchestrationTimeout time.Duration
}

// Handler acknowledges webhook deliveries and runs orchestration in the
// background.
type Handler struct {
	config        HandlerConfig
	creator       Creator
	conversations ConversationService
	validator     *validator.Validate

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewHandler creates a new webhook handler.
func NewHandler(config HandlerConfig, creator Creator, conversations ConversationService) *Handler {
	if config.OrchestrationTimeout <= 0 {
		config.OrchestrationTimeout = defaultOrchestrationTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		config:        config,
		creator:       creator,
		conversations: conversations,
		validator:     validator.New(),
		baseCtx:       ctx,
		cancel:        cancel,
	}
}

// RegisterRoutes registers the webhook route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook", h.Webhook)
}

// Webhook handles POST /webhook.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var event WebhookEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&event); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if event.Event != EventMessageCreated {
		httputil.JSON(w, http.StatusOK, ignoredResponse{Ignored: true, Reason: "not message_created"})
		return
	}

	if !event.Private {
		httputil.JSON(w, http.StatusOK, ignoredResponse{Ignored: true, Reason: "not a private note"})
		return
	}

	content := StripHTML(strings.TrimSpace(event.Content))
	if !IsCommand(content) {
		httputil.JSON(w, http.StatusOK, ignoredResponse{Ignored: true, Reason: "no /oncall command"})
		return
	}

	req, err := ParseCommand(content)
	if err != nil {
		httputil.JSON(w, http.StatusOK, ignoredResponse{Ignored: true, Reason: ErrMissingSeverity.Error()})
		return
	}

	// Only deliveries that would start an orchestration are held to the
	// conversation shape.
	if err := h.validator.Struct(event); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid payload")
		return
	}

	conversationID := event.conversationID()
	if conversationID == 0 {
		httputil.Error(w, http.StatusBadRequest, "missing conversation id")
		return
	}

	logger := ctxlog.FromContext(r.Context()).With(
		"conversation_id", conversationID,
		"run_id", uuid.New().String(),
	)

	h.wg.Add(1)
	go h.process(ctxlog.WithLogger(h.baseCtx, logger), conversationID, req)

	httputil.JSON(w, http.StatusAccepted, acceptedResponse{Status: "processing"})
}

// process runs one orchestration. Its errors are reported to the
// conversation because the webhook has already been answered.
func (h *Handler) process(ctx context.Context, conversationID int64, req IncidentRequest) {
	defer h.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, h.config.OrchestrationTimeout)
	defer cancel()

	logger := ctxlog.FromContext(ctx)

	result, err := h.run(ctx, conversationID, req)
	if err == nil {
		recordOutcome(result.Outcome)
		return
	}

	recordOutcome(OutcomeFailed)
	logger.Error("failed to create incident for conversation", "error", err)

	// The orchestration context may already be done.
	notifyCtx, notifyCancel := context.WithTimeout(context.WithoutCancel(ctx), failureNoteTimeout)
	defer notifyCancel()

	note := "**OneUptime Integration Error**\n\nFailed to create incident: " + err.Error()
	if notifyErr := h.conversations.SendMessage(notifyCtx, conversationID, note, true); notifyErr != nil {
		logger.Error("could not notify agent of failure", "error", notifyErr)
	}
}

func (h *Handler) run(ctx context.Context, conversationID int64, req IncidentRequest) (result Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return h.creator.CreateIncident(ctx, conversationID, req)
}

// Drain waits for in-flight orchestrations. When ctx ends first, the
// remaining orchestrations are cancelled and ctx's error is returned.
func (h *Handler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.cancel()
		return nil
	case <-ctx.Done():
		h.cancel()
		<-done
		return ctx.Err()
	}
}
