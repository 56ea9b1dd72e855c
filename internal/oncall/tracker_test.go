package oncall

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_TrackAndGet(t *testing.T) {
	tracker := NewTracker()
	names := map[string]string{"st-1": "Created", "st-2": "Resolved"}

	tracker.Track(42, "inc-1", "st-1", names)

	link, ok := tracker.Get("inc-1")
	require.True(t, ok)
	assert.Equal(t, "inc-1", link.IncidentID)
	assert.Equal(t, int64(42), link.ConversationID)
	assert.Equal(t, "st-1", link.LastKnownStateID)
	assert.Equal(t, names, link.StateNames)
	assert.Equal(t, 1, tracker.Size())
}

func TestTracker_TrackCopiesStateNames(t *testing.T) {
	tracker := NewTracker()
	names := map[string]string{"st-1": "Created"}

	tracker.Track(1, "inc-1", "st-1", names)
	names["st-1"] = "Renamed"

	link, _ := tracker.Get("inc-1")
	assert.Equal(t, "Created", link.StateName("st-1"))
}

func TestTracker_TrackOverwrites(t *testing.T) {
	tracker := NewTracker()
	tracker.Track(1, "inc-1", "st-1", map[string]string{"st-1": "Created"})
	tracker.Track(2, "inc-1", "st-2", map[string]string{"st-2": "Investigating"})

	link, ok := tracker.Get("inc-1")
	require.True(t, ok)
	assert.Equal(t, int64(2), link.ConversationID)
	assert.Equal(t, "st-2", link.LastKnownStateID)
	assert.NotContains(t, link.StateNames, "st-1")
	assert.Equal(t, 1, tracker.Size())
}

func TestTracker_Untrack(t *testing.T) {
	tracker := NewTracker()
	tracker.Track(1, "inc-1", "st-1", nil)

	tracker.Untrack("inc-1")
	tracker.Untrack("inc-unknown")

	_, ok := tracker.Get("inc-1")
	assert.False(t, ok)
	assert.Equal(t, 0, tracker.Size())
}

func TestTracker_SetState(t *testing.T) {
	tracker := NewTracker()
	tracker.Track(1, "inc-1", "st-1", nil)

	assert.True(t, tracker.SetState("inc-1", "st-2"))
	assert.False(t, tracker.SetState("inc-missing", "st-2"))

	link, _ := tracker.Get("inc-1")
	assert.Equal(t, "st-2", link.LastKnownStateID)
}

func TestTracker_EntriesOrdered(t *testing.T) {
	tracker := NewTracker()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var calls int
	tracker.now = func() time.Time {
		calls++
		// inc-c and inc-b share a timestamp; ties are broken by id.
		if calls == 1 {
			return base.Add(2 * time.Second)
		}
		return base
	}

	tracker.Track(1, "inc-a", "st", nil)
	tracker.Track(2, "inc-c", "st", nil)
	tracker.Track(3, "inc-b", "st", nil)

	entries := tracker.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "inc-b", entries[0].IncidentID)
	assert.Equal(t, "inc-c", entries[1].IncidentID)
	assert.Equal(t, "inc-a", entries[2].IncidentID)
}

func TestTracker_EntriesIsSnapshot(t *testing.T) {
	tracker := NewTracker()
	tracker.Track(1, "inc-1", "st-1", nil)

	entries := tracker.Entries()
	tracker.Untrack("inc-1")
	tracker.Track(2, "inc-2", "st-1", nil)

	require.Len(t, entries, 1)
	assert.Equal(t, "inc-1", entries[0].IncidentID)
}

func TestTracker_EntriesCopiesStateNames(t *testing.T) {
	tracker := NewTracker()
	names := map[string]string{"st-1": "Created"}
	tracker.Track(1, "inc-1", "st-1", names)
	names["st-1"] = "Changed by caller"

	entries := tracker.Entries()
	require.Len(t, entries, 1)
	entries[0].StateNames["st-1"] = "Changed by reader"

	link, ok := tracker.Get("inc-1")
	require.True(t, ok)
	link.StateNames["st-1"] = "Changed by another reader"

	assert.Equal(t, "Created", tracker.Entries()[0].StateName("st-1"))
}

func TestLink_StateName(t *testing.T) {
	link := Link{StateNames: map[string]string{"st-1": "Created", "st-blank": ""}}

	assert.Equal(t, "Created", link.StateName("st-1"))
	assert.Equal(t, "st-2", link.StateName("st-2"))
	assert.Equal(t, "st-blank", link.StateName("st-blank"))
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tracker := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		id := fmt.Sprintf("inc-%d", i)
		go func() {
			defer wg.Done()
			tracker.Track(int64(i), id, "st-1", map[string]string{"st-1": "Created"})
		}()
		go func() {
			defer wg.Done()
			tracker.SetState(id, "st-2")
		}()
		go func() {
			defer wg.Done()
			_ = tracker.Entries()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, tracker.Size())
}
