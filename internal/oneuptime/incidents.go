package oneuptime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bissquit/oncall-bridge/internal/domain"
)

// objectID accepts both "id" and {"_type": "ObjectID", "value": "id"}.
type objectID string

func (o *objectID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*o = objectID(s)
		return nil
	}

	var wrapped struct {
		Value *string `json:"value"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return fmt.Errorf("object id: %w", err)
	}
	if wrapped.Value != nil {
		*o = objectID(*wrapped.Value)
	} else {
		*o = ""
	}
	return nil
}

type listRequest struct {
	Select map[string]bool `json:"select"`
	Query  map[string]any  `json:"query"`
	Sort   map[string]int  `json:"sort"`
}

type listResponse[T any] struct {
	Data []T `json:"data" validate:"dive"`
}

type severityRecord struct {
	ID    objectID `json:"_id" validate:"required"`
	Name  string   `json:"name" validate:"required"`
	Order int      `json:"order"`
}

type stateRecord struct {
	ID                  objectID `json:"_id" validate:"required"`
	Name                string   `json:"name" validate:"required"`
	Order               int      `json:"order"`
	IsCreatedState      bool     `json:"isCreatedState"`
	IsAcknowledgedState bool     `json:"isAcknowledgedState"`
	IsResolvedState     bool     `json:"isResolvedState"`
}

type policyRecord struct {
	ID          objectID `json:"_id" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
}

type createIncidentRequest struct {
	Data createIncidentData `json:"data"`
}

type createIncidentData struct {
	ProjectID              string   `json:"projectId"`
	Title                  string   `json:"title"`
	Description            string   `json:"description"`
	IncidentSeverityID     string   `json:"incidentSeverityId"`
	CurrentIncidentStateID string   `json:"currentIncidentStateId"`
	DeclaredAt             string   `json:"declaredAt"`
	OnCallDutyPolicies     []string `json:"onCallDutyPolicies,omitempty"`
}

type incidentRecord struct {
	ID                     objectID `json:"_id"`
	Title                  string   `json:"title"`
	CurrentIncidentStateID objectID `json:"currentIncidentStateId"`
	IncidentSeverityID     objectID `json:"incidentSeverityId"`
	ProjectID              objectID `json:"projectId"`
}

type getItemRequest struct {
	Select map[string]bool `json:"select"`
}

// ListSeverities returns the project's severities in display order.
func (c *Client) ListSeverities(ctx context.Context) ([]domain.Severity, error) {
	records, err := listProjectItems[severityRecord](ctx, c, "list_severities", "/incident-severity", listRequest{
		Select: map[string]bool{"name": true, "color": true, "order": true, "projectId": true},
		Sort:   map[string]int{"order": 1},
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Severity, 0, len(records))
	for _, r := range records {
		out = append(out, domain.Severity{ID: string(r.ID), Name: r.Name, Order: r.Order})
	}
	return out, nil
}

// ListStates returns the project's incident states in lifecycle order.
func (c *Client) ListStates(ctx context.Context) ([]domain.State, error) {
	records, err := listProjectItems[stateRecord](ctx, c, "list_states", "/incident-state", listRequest{
		Select: map[string]bool{
			"name":                true,
			"isCreatedState":      true,
			"isAcknowledgedState": true,
			"isResolvedState":     true,
			"color":               true,
			"order":               true,
			"projectId":           true,
		},
		Sort: map[string]int{"order": 1},
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.State, 0, len(records))
	for _, r := range records {
		out = append(out, domain.State{
			ID:                  string(r.ID),
			Name:                r.Name,
			Order:               r.Order,
			IsCreatedState:      r.IsCreatedState,
			IsAcknowledgedState: r.IsAcknowledgedState,
			IsResolvedState:     r.IsResolvedState,
		})
	}
	return out, nil
}

// ListPolicies returns the project's on-call duty policies, newest first.
func (c *Client) ListPolicies(ctx context.Context) ([]domain.Policy, error) {
	records, err := listProjectItems[policyRecord](ctx, c, "list_policies", "/on-call-duty-policy", listRequest{
		Select: map[string]bool{"name": true, "description": true, "projectId": true},
		Sort:   map[string]int{"createdAt": -1},
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Policy, 0, len(records))
	for _, r := range records {
		out = append(out, domain.Policy{ID: string(r.ID), Name: r.Name, Description: r.Description})
	}
	return out, nil
}

// CreateIncident declares a new incident in the project.
func (c *Client) CreateIncident(ctx context.Context, incident domain.NewIncident) (*domain.Incident, error) {
	projectID, err := c.ProjectID(ctx)
	if err != nil {
		return nil, err
	}

	req := createIncidentRequest{Data: createIncidentData{
		ProjectID:              projectID,
		Title:                  incident.Title,
		Description:            incident.Description,
		IncidentSeverityID:     incident.SeverityID,
		CurrentIncidentStateID: incident.StateID,
		DeclaredAt:             incident.DeclaredAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		OnCallDutyPolicies:     incident.PolicyIDs,
	}}

	var resp incidentRecord
	if err := c.do(ctx, "create_incident", http.MethodPost, "/incident", req, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("create incident: response has no incident id")
	}

	created := resp.toDomain()
	if created.Title == "" {
		created.Title = incident.Title
	}
	return created, nil
}

// GetIncident reads the current state of an incident.
func (c *Client) GetIncident(ctx context.Context, incidentID string) (*domain.Incident, error) {
	req := getItemRequest{Select: map[string]bool{
		"title":                    true,
		"currentIncidentStateId":   true,
		"incidentSeverityId":       true,
		"slug":                     true,
		"projectId":                true,
		"incidentNumber":           true,
		"incidentNumberWithPrefix": true,
	}}

	var resp incidentRecord
	if err := c.do(ctx, "get_incident", http.MethodPost, "/incident/"+incidentID+"/get-item", req, &resp); err != nil {
		return nil, err
	}

	incident := resp.toDomain()
	if incident.ID == "" {
		incident.ID = incidentID
	}
	return incident, nil
}

func (r incidentRecord) toDomain() *domain.Incident {
	return &domain.Incident{
		ID:             string(r.ID),
		Title:          r.Title,
		CurrentStateID: string(r.CurrentIncidentStateID),
		SeverityID:     string(r.IncidentSeverityID),
		ProjectID:      string(r.ProjectID),
	}
}

// listProjectItems runs a get-list query scoped to the current project.
func listProjectItems[T any](ctx context.Context, c *Client, operation, resource string, req listRequest) ([]T, error) {
	projectID, err := c.ProjectID(ctx)
	if err != nil {
		return nil, err
	}
	req.Query = map[string]any{"projectId": projectID}

	var resp listResponse[T]
	path := fmt.Sprintf("%s/get-list?limit=%d", resource, listLimit)
	if err := c.do(ctx, operation, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	if err := c.validator.Struct(resp); err != nil {
		return nil, fmt.Errorf("invalid %s response: %w", operation, err)
	}
	return resp.Data, nil
}
