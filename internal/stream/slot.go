package stream

import "sync"

// Slot is a single-slot latest-value hand-off between one camera's
// acquisition loop and its delivery loop. Neither side blocks: Put
// overwrites any undelivered cycle and Take empties the slot, so a slow
// consumer sees the newest frame rather than a growing backlog.
type Slot struct {
	mu    sync.Mutex
	value *Cycle
}

// Put stores the newest cycle, replacing any undelivered one. Reports
// whether an undelivered cycle was overwritten.
func (s *Slot) Put(c *Cycle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	overwrote := s.value != nil
	s.value = c
	return overwrote
}

// Take removes and returns the current cycle, if any.
func (s *Slot) Take() (*Cycle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.value
	s.value = nil
	return c, c != nil
}
