package iosched

import "sync"

// Service is a component whose lifetime is owned by an [ExecutionContext].
// Shutdown is invoked exactly once, in reverse registration order, when the
// context shuts its services down; after that the service must not be used.
type Service interface {
	Shutdown()
}

// ExecutionContext is a minimal service locator. The scheduler uses it to
// obtain its reactor lazily; upper layers may hang whatever else they need
// off the same context so that teardown happens in one place.
type ExecutionContext struct {
	mu       sync.Mutex
	services map[string]Service
	order    []string
	shutdown bool
}

// NewExecutionContext creates an empty execution context.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{services: make(map[string]Service)}
}

// UseService returns the service registered under name, invoking create to
// construct it on first use. Concurrent callers observe a single instance.
func (c *ExecutionContext) UseService(name string, create func() Service) Service {
	c.mu.Lock()
	defer c.mu.Unlock()
	if svc, ok := c.services[name]; ok {
		return svc
	}
	svc := create()
	c.services[name] = svc
	c.order = append(c.order, name)
	return svc
}

// ShutdownServices shuts down every registered service in reverse
// registration order. Subsequent calls are no-ops.
func (c *ExecutionContext) ShutdownServices() {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return
	}
	c.shutdown = true
	order := c.order
	services := c.services
	c.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		services[order[i]].Shutdown()
	}
}
