package oncall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/oncall-bridge/internal/domain"
	"github.com/bissquit/oncall-bridge/internal/pkg/ctxlog"
)

// PollerConfig contains poller configuration.
type PollerConfig struct {
	Interval    time.Duration
	ItemTimeout time.Duration
}

// DefaultPollerConfig returns default poller configuration.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:    30 * time.Second,
		ItemTimeout: 20 * time.Second,
	}
}

// Poller propagates incident state changes back to linked conversations.
type Poller struct {
	config        PollerConfig
	tracker       *Tracker
	incidents     IncidentService
	conversations ConversationService
	renderer      *Renderer

	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPoller creates a new reconciliation poller.
func NewPoller(config PollerConfig, tracker *Tracker, incidents IncidentService, conversations ConversationService, renderer *Renderer) *Poller {
	defaults := DefaultPollerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.ItemTimeout <= 0 {
		config.ItemTimeout = defaults.ItemTimeout
	}

	return &Poller{
		config:        config,
		tracker:       tracker,
		incidents:     incidents,
		conversations: conversations,
		renderer:      renderer,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the polling loop. It must not be called concurrently
// with Stop.
func (p *Poller) Start(ctx context.Context) {
	slog.Info("starting incident status poller", "interval", p.config.Interval)

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.run(ctx)
}

// Stop cancels the in-flight tick and waits for the loop to exit.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		if p.cancel != nil {
			p.cancel()
		}
	})
	p.wg.Wait()
	slog.Info("incident status poller stopped")
}

func (p *Poller) stopped() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

// run ticks on a single goroutine, so ticks never overlap.
func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			// select picks randomly among ready cases.
			if p.stopped() {
				return
			}
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if p.tracker.Size() == 0 {
		return
	}

	links := p.tracker.Entries()
	pollTicks.Inc()
	slog.Debug("reconciling linked incidents", "count", len(links))

	for _, link := range links {
		if ctx.Err() != nil || p.stopped() {
			return
		}
		if err := p.reconcileWithTimeout(ctx, link); err != nil {
			pollErrors.Inc()
			slog.Error("error checking incident",
				"incident_id", link.IncidentID,
				"conversation_id", link.ConversationID,
				"retryable", isRetryable(err),
				"error", err,
			)
		}
	}
}

// isRetryable reports whether err is an upstream error worth retrying on the
// next tick. Transport errors count as retryable.
func isRetryable(err error) bool {
	var apiErr interface{ IsRetryable() bool }
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return true
}

func (p *Poller) reconcileWithTimeout(ctx context.Context, link Link) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.ItemTimeout)
	defer cancel()

	return p.reconcile(ctxlog.With(ctx, "incident_id", link.IncidentID, "conversation_id", link.ConversationID), link)
}

// reconcile pushes at most one update per observed transition of a link.
func (p *Poller) reconcile(ctx context.Context, link Link) error {
	logger := ctxlog.FromContext(ctx)

	incident, err := p.incidents.GetIncident(ctx, link.IncidentID)
	if err != nil {
		return fmt.Errorf("get incident: %w", err)
	}

	newStateID := incident.CurrentStateID
	if newStateID == "" || newStateID == link.LastKnownStateID {
		return nil
	}

	oldName := link.StateName(link.LastKnownStateID)
	newName := link.StateName(newStateID)

	url, err := incidentURL(ctx, p.incidents, link.IncidentID)
	if err != nil {
		return fmt.Errorf("build incident url: %w", err)
	}

	note, err := p.renderer.StatusChanged(StatusChangedData{
		From:        oldName,
		To:          newName,
		IncidentURL: url,
	})
	if err != nil {
		return fmt.Errorf("render status note: %w", err)
	}

	p.push(ctx, link.ConversationID, newName, note)

	if !p.tracker.SetState(link.IncidentID, newStateID) {
		return nil
	}

	terminal := domain.NameLooksResolved(newName)
	if terminal {
		logger.Info("incident resolved, untracking")
		p.tracker.Untrack(link.IncidentID)
	}
	recordTransition(terminal)

	logger.Info("incident state changed", "from", oldName, "to", newName)
	return nil
}

// push updates the status attribute and posts the note concurrently.
// Either may fail without affecting the other.
func (p *Poller) push(ctx context.Context, conversationID int64, status, note string) {
	logger := ctxlog.FromContext(ctx)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := p.conversations.UpdateCustomAttributes(ctx, conversationID, map[string]string{
			AttrIncidentStatus: status,
		}); err != nil {
			logger.Error("failed to update conversation status attribute", "error", err)
		}
	}()

	go func() {
		defer wg.Done()
		if err := p.conversations.SendMessage(ctx, conversationID, note, true); err != nil {
			logger.Error("failed to post status change note", "error", err)
		}
	}()

	wg.Wait()
}
