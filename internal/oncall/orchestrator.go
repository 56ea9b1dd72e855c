package oncall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bissquit/oncall-bridge/internal/domain"
	"github.com/bissquit/oncall-bridge/internal/pkg/ctxlog"
	"golang.org/x/sync/errgroup"
)

// Outcome describes how an /oncall command ended.
type Outcome string

// Orchestration outcomes.
const (
	OutcomeCreated         Outcome = "created"
	OutcomeUnknownSeverity Outcome = "unknown_severity"
	OutcomeNoCreatedState  Outcome = "no_created_state"
	OutcomeUnknownTeam     Outcome = "unknown_team"
	OutcomeFailed          Outcome = "failed"
)

// Result is the result of a single orchestration.
type Result struct {
	Outcome    Outcome
	IncidentID string
}

// OrchestratorConfig contains orchestrator configuration.
type OrchestratorConfig struct {
	// ChatBaseURL is the public chat URL used for conversation links.
	ChatBaseURL string
	AccountID   string
}

// Orchestrator turns parsed commands into linked incidents.
type Orchestrator struct {
	config        OrchestratorConfig
	conversations ConversationService
	incidents     IncidentService
	tracker       *Tracker
	renderer      *Renderer
	now           func() time.Time
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(config OrchestratorConfig, conversations ConversationService, incidents IncidentService, tracker *Tracker, renderer *Renderer) *Orchestrator {
	return &Orchestrator{
		config:        config,
		conversations: conversations,
		incidents:     incidents,
		tracker:       tracker,
		renderer:      renderer,
		now:           time.Now,
	}
}

// referenceData is fetched fresh for every command.
type referenceData struct {
	severities   []domain.Severity
	states       []domain.State
	policies     []domain.Policy
	conversation *domain.Conversation
}

// CreateIncident runs the creation flow for one command. Unknown names and
// a misconfigured state list are answered in the conversation and reported
// through Result; only upstream failures return an error.
func (o *Orchestrator) CreateIncident(ctx context.Context, conversationID int64, req IncidentRequest) (Result, error) {
	logger := ctxlog.FromContext(ctx)

	ref, err := o.fetchReferenceData(ctx, conversationID)
	if err != nil {
		return Result{}, err
	}

	severity, ok := MatchSeverity(ref.severities, req.Severity)
	if !ok {
		note := fmt.Sprintf("**OneUptime:** Unknown severity \"%s\". Available: %s", req.Severity, severityNames(ref.severities))
		return o.stop(ctx, conversationID, OutcomeUnknownSeverity, note)
	}

	createdState, err := CreatedState(ref.states)
	if err != nil {
		logger.Warn("incident states misconfigured", "error", err)
		return o.stop(ctx, conversationID, OutcomeNoCreatedState, createdStateNote(err))
	}

	var policy *domain.Policy
	if req.Team != "" {
		p, ok := MatchPolicy(ref.policies, req.Team)
		if !ok {
			note := fmt.Sprintf("**OneUptime:** Unknown team/on-call policy \"%s\". Available: %s", req.Team, policyNames(ref.policies))
			return o.stop(ctx, conversationID, OutcomeUnknownTeam, note)
		}
		policy = &p
	}

	title := req.Title
	if title == "" {
		title = fmt.Sprintf("[Chatwoot #%d] Support escalation - %s", conversationID, severity.Name)
	}

	description, err := o.renderer.Description(NewDescriptionData(o.config.ChatBaseURL, o.config.AccountID, ref.conversation))
	if err != nil {
		return Result{}, fmt.Errorf("render description: %w", err)
	}

	// Credentials are resolved before declaring so a created incident always
	// gets its link.
	baseURL, err := o.incidents.BaseURL(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("resolve incident base url: %w", err)
	}
	projectID, err := o.incidents.ProjectID(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("resolve incident project: %w", err)
	}

	draft := domain.NewIncident{
		Title:       title,
		Description: description,
		SeverityID:  severity.ID,
		StateID:     createdState.ID,
		DeclaredAt:  o.now().UTC(),
	}
	if policy != nil {
		draft.PolicyIDs = []string{policy.ID}
	}

	incident, err := o.incidents.CreateIncident(ctx, draft)
	if err != nil {
		return Result{}, fmt.Errorf("create incident: %w", err)
	}

	logger = logger.With("incident_id", incident.ID)
	url := IncidentURL(baseURL, projectID, incident.ID)

	created := IncidentCreatedData{
		IncidentID:  incident.ID,
		Severity:    severity.Name,
		Status:      createdState.Name,
		IncidentURL: url,
	}
	if policy != nil {
		created.Team = policy.Name
	}

	o.announce(ctx, conversationID, created)

	stateNames := make(map[string]string, len(ref.states))
	for _, s := range ref.states {
		stateNames[s.ID] = s.Name
	}
	o.tracker.Track(conversationID, incident.ID, createdState.ID, stateNames)

	logger.Info("created incident for conversation")

	return Result{Outcome: OutcomeCreated, IncidentID: incident.ID}, nil
}

func (o *Orchestrator) fetchReferenceData(ctx context.Context, conversationID int64) (*referenceData, error) {
	var ref referenceData

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if ref.severities, err = o.incidents.ListSeverities(gctx); err != nil {
			return fmt.Errorf("list severities: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if ref.states, err = o.incidents.ListStates(gctx); err != nil {
			return fmt.Errorf("list states: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if ref.policies, err = o.incidents.ListPolicies(gctx); err != nil {
			return fmt.Errorf("list on-call policies: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if ref.conversation, err = o.conversations.GetConversation(gctx, conversationID); err != nil {
			return fmt.Errorf("get conversation: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ref, nil
}

// announce writes the incident onto the conversation. Both updates are
// attempted; failures are logged only.
func (o *Orchestrator) announce(ctx context.Context, conversationID int64, data IncidentCreatedData) {
	logger := ctxlog.FromContext(ctx)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		err := o.conversations.UpdateCustomAttributes(ctx, conversationID, map[string]string{
			AttrIncidentID:       data.IncidentID,
			AttrIncidentStatus:   data.Status,
			AttrIncidentSeverity: data.Severity,
			AttrIncidentURL:      data.IncidentURL,
		})
		if err != nil {
			logger.Error("failed to set conversation attributes", "incident_id", data.IncidentID, "error", err)
		}
	}()

	go func() {
		defer wg.Done()
		note, err := o.renderer.IncidentCreated(data)
		if err == nil {
			err = o.conversations.SendMessage(ctx, conversationID, note, true)
		}
		if err != nil {
			logger.Error("failed to post incident confirmation", "incident_id", data.IncidentID, "error", err)
		}
	}()

	wg.Wait()
}

// stop answers a command that cannot proceed.
func (o *Orchestrator) stop(ctx context.Context, conversationID int64, outcome Outcome, note string) (Result, error) {
	if err := o.conversations.SendMessage(ctx, conversationID, note, true); err != nil {
		return Result{}, fmt.Errorf("send %s note: %w", outcome, err)
	}
	return Result{Outcome: outcome}, nil
}

func createdStateNote(err error) string {
	if errors.Is(err, ErrAmbiguousCreatedState) {
		return "**OneUptime:** More than one incident state is marked as the Created state. " +
			"Check your OneUptime project configuration."
	}
	return "**OneUptime:** Could not find the Created incident state. " +
		"Check your OneUptime project configuration."
}
