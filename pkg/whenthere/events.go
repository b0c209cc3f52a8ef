package whenthere

// Event tells observers what changed.
type Event int

// Events.
const (
	EventZones Event = iota + 1
	EventSelection
	EventTick
)

func (e Event) String() string {
	switch e {
	case EventZones:
		return "zones"
	case EventSelection:
		return "selection"
	case EventTick:
		return "tick"
	default:
		return "unknown"
	}
}

// Subscribe registers fn for change notifications and returns a function
// that unregisters it. fn runs on the goroutine that made the change, after
// the store lock is released, so it may call back into the store.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, id)
	}
}

func (s *Store) notify(e Event) {
	s.obsMu.Lock()
	fns := make([]func(Event), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}
