package domain

import (
	"strings"
	"time"
)

// Severity is an incident severity defined in the incident-management project.
type Severity struct {
	ID    string
	Name  string
	Order int
}

// State is an incident lifecycle state.
type State struct {
	ID                  string
	Name                string
	Order               int
	IsCreatedState      bool
	IsAcknowledgedState bool
	IsResolvedState     bool
}

// NameLooksResolved reports whether a state display name contains "resolved",
// ignoring case.
func NameLooksResolved(name string) bool {
	return strings.Contains(strings.ToLower(name), "resolved")
}

// Policy is an on-call duty policy incidents can be escalated to.
type Policy struct {
	ID          string
	Name        string
	Description string
}

// Incident is the subset of an incident record the bridge reads back.
type Incident struct {
	ID             string
	Title          string
	CurrentStateID string
	SeverityID     string
	ProjectID      string
}

// NewIncident contains the fields required to declare an incident.
type NewIncident struct {
	Title       string
	Description string
	SeverityID  string
	StateID     string
	PolicyIDs   []string
	DeclaredAt  time.Time
}
