package component

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/gridstream/errors"
)

// Manager owns the registered components of a process and drives their
// lifecycle. Components start in registration order and stop in reverse,
// each under its own named child context.
type Manager struct {
	logger     *slog.Logger
	components []*ManagedComponent
	byName     map[string]*ManagedComponent
	mu         sync.Mutex
}

// NewManager creates an empty component manager
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger: logger,
		byName: make(map[string]*ManagedComponent),
	}
}

// Register adds a component under a unique name. Registration order is
// start order.
func (m *Manager) Register(name string, comp Discoverable) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Manager", "Register", "component name validation")
	}
	if comp == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Manager", "Register", "component validation")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("component '%s' is already registered", name),
			"Manager", "Register", "duplicate component check")
	}

	mc := &ManagedComponent{
		Component:  comp,
		State:      StateCreated,
		StartOrder: len(m.components),
	}
	m.components = append(m.components, mc)
	m.byName[name] = mc

	return nil
}

// Component retrieves a registered component by name, or nil
func (m *Manager) Component(name string) Discoverable {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mc, exists := m.byName[name]; exists {
		return mc.Component
	}
	return nil
}

// StartAll initializes and starts every registered component in
// registration order. The first failure stops the sequence and rolls back
// already-started components in reverse.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, mc := range m.components {
		lc, ok := AsLifecycleComponent(mc.Component)
		if !ok {
			continue
		}

		name := mc.Component.Meta().Name
		m.logger.Info("Starting component", "component", name, "order", mc.StartOrder)

		if mc.State == StateCreated {
			if err := lc.Initialize(); err != nil {
				mc.State = StateFailed
				mc.LastError = err
				m.stopStartedLocked(i, 10*time.Second)
				return errors.Wrap(err, "Manager", "StartAll",
					fmt.Sprintf("initialize component %s", name))
			}
			mc.State = StateInitialized
		}

		mc.Context, mc.Cancel = context.WithCancel(ctx)
		if err := lc.Start(mc.Context); err != nil {
			mc.State = StateFailed
			mc.LastError = err
			mc.Cancel()
			m.stopStartedLocked(i, 10*time.Second)
			return errors.Wrap(err, "Manager", "StartAll",
				fmt.Sprintf("start component %s", name))
		}
		mc.State = StateStarted
	}

	return nil
}

// StopAll stops all started components in reverse registration order
func (m *Manager) StopAll(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i := len(m.components) - 1; i >= 0; i-- {
		if err := m.stopOneLocked(m.components[i], timeout); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Wrap(
			fmt.Errorf("%d component(s) failed to stop: %v", len(errs), errs),
			"Manager", "StopAll", "stop components")
	}
	return nil
}

// stopStartedLocked rolls back components started before index i, in reverse
func (m *Manager) stopStartedLocked(i int, timeout time.Duration) {
	for j := i - 1; j >= 0; j-- {
		if err := m.stopOneLocked(m.components[j], timeout); err != nil {
			m.logger.Warn("Rollback stop failed",
				"component", m.components[j].Component.Meta().Name,
				"error", err)
		}
	}
}

func (m *Manager) stopOneLocked(mc *ManagedComponent, timeout time.Duration) error {
	if mc.State != StateStarted {
		return nil
	}

	lc, ok := AsLifecycleComponent(mc.Component)
	if !ok {
		return nil
	}

	name := mc.Component.Meta().Name
	m.logger.Info("Stopping component", "component", name)

	if mc.Cancel != nil {
		mc.Cancel()
	}

	if err := lc.Stop(timeout); err != nil {
		mc.State = StateFailed
		mc.LastError = err
		return errors.Wrap(err, "Manager", "stopOne", fmt.Sprintf("stop component %s", name))
	}

	mc.State = StateStopped
	return nil
}

// Healthy reports whether every started component reports healthy
func (m *Manager) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mc := range m.components {
		if mc.State != StateStarted {
			continue
		}
		if !mc.Component.Health().Healthy {
			return false
		}
	}
	return true
}
