// Package state models the observable value a coordinator publishes:
// Loading, Data or Error, with any number of independent observers.
package state

import "sync"

const (
	Loading Status = iota
	Data
	Error
)

type Status int

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Data:
		return "data"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// State is one published value. For an Error that follows a failed
// mutation, Records holds the last known good collection.
type State[T any] struct {
	Status  Status
	Records []T
	Err     error
}

func NewLoading[T any]() State[T] {
	return State[T]{Status: Loading}
}

func NewData[T any](records []T) State[T] {
	if records == nil {
		records = []T{}
	}
	return State[T]{Status: Data, Records: records}
}

func NewError[T any](err error, lastGood []T) State[T] {
	return State[T]{Status: Error, Err: err, Records: lastGood}
}

func (s State[T]) IsLoading() bool { return s.Status == Loading }
func (s State[T]) IsData() bool    { return s.Status == Data }
func (s State[T]) IsError() bool   { return s.Status == Error }

// Holder keeps the current State and fans every transition out to
// subscribers. Each subscriber channel holds at most one pending state, the
// newest: a slow observer skips intermediate states instead of blocking
// the publisher.
type Holder[T any] struct {
	mu      sync.Mutex
	current State[T]
	version uint64
	subs    map[int]chan State[T]
	nextID  int
}

// NewHolder creates a holder starting in Loading.
func NewHolder[T any]() *Holder[T] {
	return &Holder[T]{
		current: NewLoading[T](),
		subs:    make(map[int]chan State[T]),
	}
}

func (h *Holder[T]) Current() State[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Version counts publishes; observers can use it to detect missed states.
func (h *Holder[T]) Version() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version
}

// Publish replaces the current state and notifies every subscriber.
func (h *Holder[T]) Publish(s State[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.current = s
	h.version++
	for _, ch := range h.subs {
		offer(ch, s)
	}
}

// Subscribe returns a channel that immediately yields the current state
// and then every later one. cancel closes the channel.
func (h *Holder[T]) Subscribe() (<-chan State[T], func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan State[T], 1)
	ch <- h.current
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// offer replaces any pending state in ch with s. Must be called with the
// holder lock held so there is a single sender.
func offer[T any](ch chan State[T], s State[T]) {
	select {
	case <-ch:
	default:
	}
	ch <- s
}
