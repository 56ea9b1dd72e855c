package oncall

import (
	"maps"
	"sort"
	"sync"
	"time"
)

// Link associates an incident with the conversation that declared it.
type Link struct {
	IncidentID       string
	ConversationID   int64
	LastKnownStateID string
	// StateNames is the state id -> display name snapshot taken when the
	// incident was created. It is never refreshed.
	StateNames map[string]string
	TrackedAt  time.Time
}

// StateName returns the display name of a state id, or the id itself when
// the snapshot does not know it.
func (l Link) StateName(stateID string) string {
	if name, ok := l.StateNames[stateID]; ok && name != "" {
		return name
	}
	return stateID
}

// Tracker is the in-memory registry of incident links, keyed by incident id.
// Links are lost on restart.
type Tracker struct {
	mu    sync.RWMutex
	links map[string]Link
	now   func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		links: make(map[string]Link),
		now:   time.Now,
	}
}

// Track registers a link, replacing any previous link for the incident.
func (t *Tracker) Track(conversationID int64, incidentID, initialStateID string, stateNames map[string]string) {
	names := maps.Clone(stateNames)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.links[incidentID] = Link{
		IncidentID:       incidentID,
		ConversationID:   conversationID,
		LastKnownStateID: initialStateID,
		StateNames:       names,
		TrackedAt:        t.now(),
	}
	trackedLinks.Set(float64(len(t.links)))
}

// Untrack removes the link of an incident. Unknown ids are ignored.
func (t *Tracker) Untrack(incidentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.links, incidentID)
	trackedLinks.Set(float64(len(t.links)))
}

// Get returns the link of an incident.
func (t *Tracker) Get(incidentID string) (Link, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	l, ok := t.links[incidentID]
	if ok {
		l.StateNames = maps.Clone(l.StateNames)
	}
	return l, ok
}

// SetState records the last observed state of a tracked incident.
// It returns false when the incident is no longer tracked.
func (t *Tracker) SetState(incidentID, stateID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.links[incidentID]
	if !ok {
		return false
	}
	l.LastKnownStateID = stateID
	t.links[incidentID] = l
	return true
}

// Entries returns a deep copy of all links, oldest first.
func (t *Tracker) Entries() []Link {
	t.mu.RLock()
	out := make([]Link, 0, len(t.links))
	for _, l := range t.links {
		l.StateNames = maps.Clone(l.StateNames)
		out = append(out, l)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].TrackedAt.Equal(out[j].TrackedAt) {
			return out[i].IncidentID < out[j].IncidentID
		}
		return out[i].TrackedAt.Before(out[j].TrackedAt)
	})
	return out
}

// Size returns the number of tracked links.
func (t *Tracker) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.links)
}
