package scheduler

import (
	"errors"
	"fmt"
)

// Loop names.
const (
	LoopFetcher = "fetcher"
	LoopRules   = "rules"
	LoopActions = "actions"
)

// ErrUnknownLoop is returned by Group.Get for a name that was not added.
var ErrUnknownLoop = errors.New("unknown loop")

// Group holds the schedulers of the application in registration order.
type Group struct {
	order []*Scheduler
	byKey map[string]*Scheduler
}

// NewGroup creates a group of schedulers. Names must be unique.
func NewGroup(schedulers ...*Scheduler) *Group {
	g := &Group{byKey: make(map[string]*Scheduler, len(schedulers))}
	for _, s := range schedulers {
		g.order = append(g.order, s)
		g.byKey[s.Name()] = s
	}
	return g
}

// Get returns the scheduler called name.
func (g *Group) Get(name string) (*Scheduler, error) {
	s, ok := g.byKey[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLoop, name)
	}
	return s, nil
}

// All returns every scheduler in registration order.
func (g *Group) All() []*Scheduler {
	return g.order
}

// StartAll starts every scheduler, stopping those already started if one
// fails.
func (g *Group) StartAll() error {
	for i, s := range g.order {
		if err := s.Start(); err != nil {
			for _, started := range g.order[:i] {
				_ = started.Stop()
			}
			return fmt.Errorf("failed to start %s loop: %w", s.Name(), err)
		}
	}
	return nil
}

// StopAll stops every scheduler and waits for in-flight cycles.
func (g *Group) StopAll() {
	for _, s := range g.order {
		_ = s.Stop()
	}
	for _, s := range g.order {
		s.Wait()
	}
}

// Statuses reports every loop.
func (g *Group) Statuses() []Status {
	out := make([]Status, 0, len(g.order))
	for _, s := range g.order {
		out = append(out, s.Status())
	}
	return out
}
