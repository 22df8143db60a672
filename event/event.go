// Package event provides a priority-ordered, typed dispatch point with
// multiple handlers, the building block Session uses for both its
// internal stanza-routing event and any events user code subscribes to.
package event

import "sync"

// Predefined priority levels. Higher values run first. PriorityInternal
// is what Session registers its own built-in handler at on its internal
// xml event: handlers added there at PriorityNormal or PriorityHigh run
// before the built-in handler and see every element, while PriorityLow
// handlers run after it and only see what nothing else consumed.
const (
	PriorityLow      = 10
	PriorityInternal = 20
	PriorityNormal   = 30
	PriorityHigh     = 40
)

// Handler is invoked when an Event it was registered on fires. source is
// the object that triggered the event (opaque to the dispatcher); data is
// the event payload. A return value of true means "consumed": stop
// dispatch and report the event as handled; false means "continue" to the
// next handler in priority order.
type Handler func(source, data interface{}) (consumed bool)

// entry pairs a Handler with the priority and insertion sequence used to
// order it relative to its siblings.
type entry struct {
	handler  Handler
	priority int
	seq      uint64
	release  func()
}

// Event is an ordered list of (handler, priority) pairs. Handlers fire in
// descending priority order; ties break by insertion order. Event is safe
// for concurrent use: Add/Remove/Trigger may be called from multiple
// goroutines, though a single Session only ever calls them from its own
// reactor goroutine except where user code reaches in directly (e.g.
// Session.AddHandler).
type Event struct {
	mu      sync.Mutex
	entries []entry
	nextSeq uint64
}

// New constructs an empty Event.
func New() *Event {
	return &Event{}
}

// Token identifies a registered handler so it can later be removed.
type Token struct {
	seq uint64
}

// Add registers handler at the given priority and returns a Token that
// can be passed to Remove. Insertion uses an insertion sort so the
// internal list stays ordered by descending priority (ties broken by
// insertion order) without a separate sort pass on every Trigger.
//
// release, if non-nil, is invoked exactly once, with no arguments, when
// the handler is finally removed — the event-handler lifecycle's
// destruction hook.
func (e *Event) Add(priority int, handler Handler, release func()) Token {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextSeq++
	ent := entry{handler: handler, priority: priority, seq: e.nextSeq, release: release}

	i := 0
	for ; i < len(e.entries); i++ {
		if e.entries[i].priority < priority {
			break
		}
	}
	e.entries = append(e.entries, entry{})
	copy(e.entries[i+1:], e.entries[i:])
	e.entries[i] = ent
	return Token{seq: ent.seq}
}

// Remove unregisters the handler identified by tok, if still present, and
// invokes its release hook. Removing a handler while Trigger is iterating
// over a snapshot taken before the removal has no effect on that pass;
// the handler simply won't be called on subsequent triggers.
func (e *Event) Remove(tok Token) {
	e.mu.Lock()
	var released func()
	for i, ent := range e.entries {
		if ent.seq == tok.seq {
			released = ent.release
			e.entries = append(e.entries[:i], e.entries[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
	if released != nil {
		released()
	}
}

// Trigger walks the handler list in descending priority order, invoking
// each with (source, data), and returns whether any handler consumed the
// event. The handler list is snapshotted before any handler runs, so a
// handler that adds or removes handlers (including itself) does not
// affect the current dispatch pass — this is what lets the built-in
// handlers inside Session safely re-enter the session's own API.
func (e *Event) Trigger(source, data interface{}) (consumed bool) {
	e.mu.Lock()
	snapshot := make([]entry, len(e.entries))
	copy(snapshot, e.entries)
	e.mu.Unlock()

	for _, ent := range snapshot {
		if ent.handler(source, data) {
			return true
		}
	}
	return false
}

// Len reports the number of currently registered handlers.
func (e *Event) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}
