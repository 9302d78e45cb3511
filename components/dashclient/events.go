package dashclient

import "sync"

// StateEvent describes a view-state change UIs might care about.
type StateEvent struct {
	Kind     string
	UploadID int
	Tab      Tab
}

// Event kinds published by the view-model and controllers.
const (
	EventSelectionCommitted = "selection.committed"
	EventHistoryRefreshed   = "history.refreshed"
	EventUploadSucceeded    = "upload.succeeded"
	EventLoggedOut          = "session.logged_out"
	EventTabChanged         = "tab.changed"
)

// Broadcast fans out state events to in-process subscribers. Slow
// subscribers are skipped rather than blocking the publishing flow.
type Broadcast struct {
	mu   sync.RWMutex
	subs map[int]chan StateEvent
	next int
}

// NewBroadcast creates an empty broadcast hub.
func NewBroadcast() *Broadcast {
	return &Broadcast{subs: make(map[int]chan StateEvent)}
}

// Publish delivers the event to every subscriber with buffer room.
func (b *Broadcast) Publish(event StateEvent) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel of state events and a cancel func.
func (b *Broadcast) Subscribe() (<-chan StateEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan StateEvent, 8)
	b.subs[id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}
