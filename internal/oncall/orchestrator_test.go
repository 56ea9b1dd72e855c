package oncall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bissquit/oncall-bridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var declaredAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestOrchestrator(t *testing.T, conversations *mockConversations, incidents *mockIncidents) (*Orchestrator, *Tracker) {
	t.Helper()
	tracker := NewTracker()
	o := NewOrchestrator(OrchestratorConfig{
		ChatBaseURL: "https://chat.example.com",
		AccountID:   "7",
	}, conversations, incidents, tracker, newTestRenderer(t))
	o.now = func() time.Time { return declaredAt }
	return o, tracker
}

func TestOrchestrator_CreateIncident_Success(t *testing.T) {
	conversations := &mockConversations{conversation: &domain.Conversation{
		ID:     42,
		Sender: &domain.Contact{Name: "Jane", Email: "jane@example.com"},
		Messages: []domain.Message{
			{Content: "Checkout is failing", Type: domain.MessageTypeIncoming},
			{Content: "escalating", Type: domain.MessageTypeOutgoing, Private: true},
		},
	}}
	incidents := newMockIncidents()
	o, tracker := newTestOrchestrator(t, conversations, incidents)

	result, err := o.CreateIncident(context.Background(), 42, IncidentRequest{Severity: "high", Team: "platform"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, result.Outcome)
	assert.Equal(t, "inc-1", result.IncidentID)

	created := incidents.createdIncidents()
	require.Len(t, created, 1)
	assert.Equal(t, "[Chatwoot #42] Support escalation - High", created[0].Title)
	assert.Equal(t, "sev-high", created[0].SeverityID)
	assert.Equal(t, "st-created", created[0].StateID)
	assert.Equal(t, []string{"pol-platform"}, created[0].PolicyIDs)
	assert.Equal(t, declaredAt, created[0].DeclaredAt)
	assert.Contains(t, created[0].Description, "conversation #42")
	assert.Contains(t, created[0].Description, "https://chat.example.com/app/accounts/7/conversations/42")
	assert.Contains(t, created[0].Description, "**Customer:** Jane (jane@example.com)")
	assert.Contains(t, created[0].Description, "> **Customer:** Checkout is failing")
	assert.NotContains(t, created[0].Description, "escalating")

	url := "https://oneuptime.example.com/dashboard/proj-1/incidents/inc-1"

	attrs := conversations.attributes()
	require.Len(t, attrs, 1)
	assert.Equal(t, map[string]string{
		AttrIncidentID:       "inc-1",
		AttrIncidentStatus:   "Created",
		AttrIncidentSeverity: "High",
		AttrIncidentURL:      url,
	}, attrs[0].Attributes)

	sent := conversations.sent()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].Private)
	assert.Contains(t, sent[0].Content, "| **On-Call Team** | Platform On-Call |")
	assert.Contains(t, sent[0].Content, url)

	link, ok := tracker.Get("inc-1")
	require.True(t, ok)
	assert.Equal(t, int64(42), link.ConversationID)
	assert.Equal(t, "st-created", link.LastKnownStateID)
	assert.Equal(t, map[string]string{
		"st-created":  "Created",
		"st-ack":      "Acknowledged",
		"st-resolved": "Resolved",
	}, link.StateNames)
}

func TestOrchestrator_CreateIncident_ExplicitTitleNoTeam(t *testing.T) {
	conversations := &mockConversations{}
	incidents := newMockIncidents()
	o, _ := newTestOrchestrator(t, conversations, incidents)

	_, err := o.CreateIncident(context.Background(), 5, IncidentRequest{Severity: "crit", Title: "Payments down"})
	require.NoError(t, err)

	created := incidents.createdIncidents()
	require.Len(t, created, 1)
	assert.Equal(t, "Payments down", created[0].Title)
	assert.Equal(t, "sev-crit", created[0].SeverityID)
	assert.Nil(t, created[0].PolicyIDs)

	sent := conversations.sent()
	require.Len(t, sent, 1)
	assert.NotContains(t, sent[0].Content, "On-Call Team")
}

func TestOrchestrator_CreateIncident_UnknownSeverity(t *testing.T) {
	conversations := &mockConversations{}
	incidents := newMockIncidents()
	o, tracker := newTestOrchestrator(t, conversations, incidents)

	result, err := o.CreateIncident(context.Background(), 42, IncidentRequest{Severity: "urgent"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeUnknownSeverity, result.Outcome)
	assert.Empty(t, incidents.createdIncidents())
	assert.Equal(t, 0, tracker.Size())

	sent := conversations.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, `**OneUptime:** Unknown severity "urgent". Available: Critical, High, Low`, sent[0].Content)
	assert.True(t, sent[0].Private)
}

func TestOrchestrator_CreateIncident_UnknownTeam(t *testing.T) {
	conversations := &mockConversations{}
	incidents := newMockIncidents()
	o, _ := newTestOrchestrator(t, conversations, incidents)

	result, err := o.CreateIncident(context.Background(), 42, IncidentRequest{Severity: "low", Team: "security"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeUnknownTeam, result.Outcome)
	assert.Empty(t, incidents.createdIncidents())

	sent := conversations.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, `**OneUptime:** Unknown team/on-call policy "security". Available: Platform On-Call, Database`, sent[0].Content)
}

func TestOrchestrator_CreateIncident_CreatedStateMisconfigured(t *testing.T) {
	tests := []struct {
		name   string
		states []domain.State
		want   string
	}{
		{
			name:   "none flagged",
			states: []domain.State{{ID: "st-ack", Name: "Acknowledged"}},
			want:   "Could not find the Created incident state",
		},
		{
			name: "two flagged",
			states: []domain.State{
				{ID: "st-a", Name: "Created", IsCreatedState: true},
				{ID: "st-b", Name: "New", IsCreatedState: true},
			},
			want: "More than one incident state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conversations := &mockConversations{}
			incidents := newMockIncidents()
			incidents.states = tt.states
			o, _ := newTestOrchestrator(t, conversations, incidents)

			result, err := o.CreateIncident(context.Background(), 42, IncidentRequest{Severity: "low"})
			require.NoError(t, err)

			assert.Equal(t, OutcomeNoCreatedState, result.Outcome)
			assert.Empty(t, incidents.createdIncidents())

			sent := conversations.sent()
			require.Len(t, sent, 1)
			assert.Contains(t, sent[0].Content, tt.want)
		})
	}
}

func TestOrchestrator_CreateIncident_ReferenceFetchFails(t *testing.T) {
	conversations := &mockConversations{}
	incidents := newMockIncidents()
	incidents.listErr = errors.New("oneuptime unavailable")
	o, _ := newTestOrchestrator(t, conversations, incidents)

	_, err := o.CreateIncident(context.Background(), 42, IncidentRequest{Severity: "low"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneuptime unavailable")
	assert.Empty(t, incidents.createdIncidents())
	assert.Empty(t, conversations.sent())
}

func TestOrchestrator_CreateIncident_ConversationFetchFails(t *testing.T) {
	conversations := &mockConversations{getErr: errors.New("chatwoot 404")}
	incidents := newMockIncidents()
	o, _ := newTestOrchestrator(t, conversations, incidents)

	_, err := o.CreateIncident(context.Background(), 42, IncidentRequest{Severity: "low"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get conversation")
	assert.Empty(t, incidents.createdIncidents())
}

func TestOrchestrator_CreateIncident_CreateFails(t *testing.T) {
	conversations := &mockConversations{}
	incidents := newMockIncidents()
	incidents.createErr = errors.New("400 bad request")
	o, tracker := newTestOrchestrator(t, conversations, incidents)

	_, err := o.CreateIncident(context.Background(), 42, IncidentRequest{Severity: "low"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create incident")
	assert.Equal(t, 0, tracker.Size())
}

func TestOrchestrator_CreateIncident_CredentialsUnavailable(t *testing.T) {
	conversations := &mockConversations{}
	incidents := newMockIncidents()
	incidents.credErr = errors.New("not connected")
	o, _ := newTestOrchestrator(t, conversations, incidents)

	_, err := o.CreateIncident(context.Background(), 42, IncidentRequest{Severity: "low"})
	require.Error(t, err)
	assert.Empty(t, incidents.createdIncidents())
}

func TestOrchestrator_CreateIncident_AnnounceFailuresStillTrack(t *testing.T) {
	conversations := &mockConversations{
		sendErr:   errors.New("send failed"),
		updateErr: errors.New("update failed"),
	}
	incidents := newMockIncidents()
	o, tracker := newTestOrchestrator(t, conversations, incidents)

	result, err := o.CreateIncident(context.Background(), 42, IncidentRequest{Severity: "low"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, result.Outcome)
	assert.Equal(t, 1, tracker.Size())
}

func TestOrchestrator_CreateIncident_StopNoteFails(t *testing.T) {
	conversations := &mockConversations{sendErr: errors.New("send failed")}
	incidents := newMockIncidents()
	o, _ := newTestOrchestrator(t, conversations, incidents)

	_, err := o.CreateIncident(context.Background(), 42, IncidentRequest{Severity: "urgent"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send failed")
}
