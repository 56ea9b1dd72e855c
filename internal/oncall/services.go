package oncall

import (
	"context"

	"github.com/bissquit/oncall-bridge/internal/domain"
)

// ConversationService is the chat side of the bridge.
type ConversationService interface {
	GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error)
	SendMessage(ctx context.Context, conversationID int64, content string, private bool) error
	UpdateCustomAttributes(ctx context.Context, conversationID int64, attributes map[string]string) error
}

// IncidentService is the incident-management side of the bridge.
type IncidentService interface {
	ListSeverities(ctx context.Context) ([]domain.Severity, error)
	ListStates(ctx context.Context) ([]domain.State, error)
	ListPolicies(ctx context.Context) ([]domain.Policy, error)
	CreateIncident(ctx context.Context, incident domain.NewIncident) (*domain.Incident, error)
	GetIncident(ctx context.Context, incidentID string) (*domain.Incident, error)
	ProjectID(ctx context.Context) (string, error)
	BaseURL(ctx context.Context) (string, error)
}

// Conversation custom attribute keys.
const (
	AttrIncidentID       = "oneuptime_incident_id"
	AttrIncidentStatus   = "oneuptime_incident_status"
	AttrIncidentSeverity = "oneuptime_incident_severity"
	AttrIncidentURL      = "oneuptime_incident_url"
)

func incidentURL(ctx context.Context, incidents IncidentService, incidentID string) (string, error) {
	baseURL, err := incidents.BaseURL(ctx)
	if err != nil {
		return "", err
	}
	projectID, err := incidents.ProjectID(ctx)
	if err != nil {
		return "", err
	}
	return IncidentURL(baseURL, projectID, incidentID), nil
}
