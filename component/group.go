package component

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/vitalstream/errors"
)

// Group starts components in registration order and stops them in reverse.
// Register downstream stages first so they are running before anything feeds
// them and are stopped only after their producers have flushed.
type Group struct {
	mu         sync.Mutex
	components []*ManagedComponent
	logger     *slog.Logger
}

// NewGroup creates an empty group
func NewGroup(logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default().With("component", "group")
	}
	return &Group{logger: logger}
}

// Add registers a component. It must be called before Start.
func (g *Group) Add(c LifecycleComponent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.components = append(g.components, &ManagedComponent{Component: c, State: StateCreated})
}

// Start initializes and starts every component. On failure the components
// already started are stopped in reverse order before the error is returned.
func (g *Group) Start(ctx context.Context, stopTimeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, mc := range g.components {
		name := mc.Component.Meta().Name

		if err := mc.Component.Initialize(); err != nil {
			mc.State = StateFailed
			mc.LastError = err
			g.stopLocked(i, stopTimeout)
			return errors.Wrap(err, "Group", "Start", fmt.Sprintf("initialize %s", name))
		}
		mc.State = StateInitialized

		if err := mc.Component.Start(ctx); err != nil {
			mc.State = StateFailed
			mc.LastError = err
			g.stopLocked(i, stopTimeout)
			return errors.Wrap(err, "Group", "Start", fmt.Sprintf("start %s", name))
		}
		mc.State = StateStarted
		mc.StartOrder = i
		g.logger.Debug("Component started", "name", name, "order", i)
	}
	return nil
}

// Stop stops every started component in reverse start order, giving each the
// full timeout. The first error is returned after all components were asked to stop.
func (g *Group) Stop(timeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopLocked(len(g.components), timeout)
}

func (g *Group) stopLocked(upTo int, timeout time.Duration) error {
	var first error
	for i := upTo - 1; i >= 0; i-- {
		mc := g.components[i]
		if mc.State != StateStarted {
			continue
		}
		name := mc.Component.Meta().Name
		if err := mc.Component.Stop(timeout); err != nil {
			mc.State = StateFailed
			mc.LastError = err
			g.logger.Warn("Component stop failed", "name", name, "error", err)
			if first == nil {
				first = errors.Wrap(err, "Group", "Stop", fmt.Sprintf("stop %s", name))
			}
			continue
		}
		mc.State = StateStopped
		g.logger.Debug("Component stopped", "name", name)
	}
	return first
}

// Components returns a snapshot of the managed components
func (g *Group) Components() []ManagedComponent {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]ManagedComponent, len(g.components))
	for i, mc := range g.components {
		out[i] = *mc
	}
	return out
}
