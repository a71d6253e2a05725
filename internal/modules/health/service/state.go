package service

import (
	"sync"
	"sync/atomic"
	"time"
)

// Cycle is the last finished decision cycle of one pair.
type Cycle struct {
	Outcome string    `json:"outcome"`
	At      time.Time `json:"at"`
}

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected  atomic.Bool
	lastTickUnix atomic.Int64 // unix seconds

	mu     sync.RWMutex
	cycles map[string]Cycle
	halted string
}

func NewState() *State {
	return &State{
		startedAt: time.Now(),
		cycles:    make(map[string]Cycle),
	}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() && s.Halted() == "" }

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

// RecordCycle stores the outcome of a pair's cycle and advances the tick clock.
func (s *State) RecordCycle(pair, outcome string, at time.Time) {
	s.mu.Lock()
	s.cycles[pair] = Cycle{Outcome: outcome, At: at}
	s.mu.Unlock()
	s.lastTickUnix.Store(at.Unix())
}

func (s *State) Cycles() map[string]Cycle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Cycle, len(s.cycles))
	for k, v := range s.cycles {
		out[k] = v
	}
	return out
}

// Halt marks the engine as stopped for good; readiness fails from then on.
func (s *State) Halt(reason string) {
	s.mu.Lock()
	s.halted = reason
	s.mu.Unlock()
}

func (s *State) Halted() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.halted
}

func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
