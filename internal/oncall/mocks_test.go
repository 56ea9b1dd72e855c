package oncall

import (
	"context"
	"fmt"
	"sync"

	"github.com/bissquit/oncall-bridge/internal/domain"
)

type sentMessage struct {
	ConversationID int64
	Content        string
	Private        bool
}

type attributeUpdate struct {
	ConversationID int64
	Attributes     map[string]string
}

// mockConversations records writes; the orchestrator and poller call it
// from several goroutines.
type mockConversations struct {
	mu sync.Mutex

	conversation    *domain.Conversation
	getErr          error
	sendErr         error
	updateErr       error
	messages        []sentMessage
	attributeWrites []attributeUpdate
}

func (m *mockConversations) GetConversation(_ context.Context, conversationID int64) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.conversation != nil {
		return m.conversation, nil
	}
	return &domain.Conversation{ID: conversationID}, nil
}

func (m *mockConversations) SendMessage(_ context.Context, conversationID int64, content string, private bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendErr != nil {
		return m.sendErr
	}
	m.messages = append(m.messages, sentMessage{ConversationID: conversationID, Content: content, Private: private})
	return nil
}

func (m *mockConversations) UpdateCustomAttributes(_ context.Context, conversationID int64, attributes map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}
	m.attributeWrites = append(m.attributeWrites, attributeUpdate{ConversationID: conversationID, Attributes: attributes})
	return nil
}

func (m *mockConversations) sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.messages...)
}

func (m *mockConversations) attributes() []attributeUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]attributeUpdate(nil), m.attributeWrites...)
}

type mockIncidents struct {
	mu sync.Mutex

	severities []domain.Severity
	states     []domain.State
	policies   []domain.Policy

	listErr   error
	createErr error
	getErr    error
	credErr   error

	// getErrs fails GetIncident for single incidents.
	getErrs map[string]error
	// blockGet makes GetIncident wait for its context.
	blockGet bool

	// currentState maps incident id to the state GetIncident reports.
	currentState map[string]string
	created      []domain.NewIncident
	nextID       int
	getCalls     int
}

func newMockIncidents() *mockIncidents {
	return &mockIncidents{
		severities: []domain.Severity{
			{ID: "sev-crit", Name: "Critical", Order: 1},
			{ID: "sev-high", Name: "High", Order: 2},
			{ID: "sev-low", Name: "Low", Order: 3},
		},
		states: []domain.State{
			{ID: "st-created", Name: "Created", Order: 1, IsCreatedState: true},
			{ID: "st-ack", Name: "Acknowledged", Order: 2, IsAcknowledgedState: true},
			{ID: "st-resolved", Name: "Resolved", Order: 3, IsResolvedState: true},
		},
		policies: []domain.Policy{
			{ID: "pol-platform", Name: "Platform On-Call"},
			{ID: "pol-db", Name: "Database"},
		},
		currentState: make(map[string]string),
	}
}

func (m *mockIncidents) ListSeverities(_ context.Context) ([]domain.Severity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.severities, m.listErr
}

func (m *mockIncidents) ListStates(_ context.Context) ([]domain.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states, m.listErr
}

func (m *mockIncidents) ListPolicies(_ context.Context) ([]domain.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policies, m.listErr
}

func (m *mockIncidents) CreateIncident(_ context.Context, incident domain.NewIncident) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return nil, m.createErr
	}
	m.nextID++
	id := fmt.Sprintf("inc-%d", m.nextID)
	m.created = append(m.created, incident)
	m.currentState[id] = incident.StateID
	return &domain.Incident{ID: id, Title: incident.Title, CurrentStateID: incident.StateID}, nil
}

func (m *mockIncidents) GetIncident(ctx context.Context, incidentID string) (*domain.Incident, error) {
	m.mu.Lock()
	m.getCalls++
	block := m.blockGet
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.getErrs[incidentID]; err != nil {
		return nil, err
	}
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &domain.Incident{ID: incidentID, CurrentStateID: m.currentState[incidentID]}, nil
}

func (m *mockIncidents) gets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls
}

func (m *mockIncidents) ProjectID(_ context.Context) (string, error) {
	if m.credErr != nil {
		return "", m.credErr
	}
	return "proj-1", nil
}

func (m *mockIncidents) BaseURL(_ context.Context) (string, error) {
	if m.credErr != nil {
		return "", m.credErr
	}
	return "https://oneuptime.example.com", nil
}

func (m *mockIncidents) setState(incidentID, stateID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentState[incidentID] = stateID
}

func (m *mockIncidents) createdIncidents() []domain.NewIncident {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.NewIncident(nil), m.created...)
}
