package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry manages hook registrations and parallel event dispatch.
type Registry struct {
	handlers map[EventType][]*Registration // eventKey -> handlers
	byID     map[string]*Registration      // id -> registration
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewRegistry creates a new hook registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[EventType][]*Registration),
		byID:     make(map[string]*Registration),
		logger:   logger.With("component", "hooks"),
	}
}

// Register adds a handler for an event type. Returns the registration ID
// for later unregistration.
func (r *Registry) Register(eventKey EventType, handler Handler, opts ...RegisterOption) string {
	reg := &Registration{
		ID:       uuid.New().String(),
		EventKey: eventKey,
		Handler:  handler,
		Priority: PriorityNormal,
		Lifetime: LifetimePersistent,
		Timeout:  10 * time.Second,
	}

	for _, opt := range opts {
		opt(reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[eventKey] = append(r.handlers[eventKey], reg)
	r.byID[reg.ID] = reg

	sort.Slice(r.handlers[eventKey], func(i, j int) bool {
		return r.handlers[eventKey][i].Priority < r.handlers[eventKey][j].Priority
	})

	r.logger.Debug("registered hook",
		"id", reg.ID,
		"event_key", eventKey,
		"name", reg.Name,
		"priority", reg.Priority,
		"lifetime", reg.Lifetime)

	return reg.ID
}

// RegisterOption configures a registration.
type RegisterOption func(*Registration)

// WithPriority sets the handler priority.
func WithPriority(p Priority) RegisterOption {
	return func(r *Registration) { r.Priority = p }
}

// WithName sets the handler name for debugging.
func WithName(name string) RegisterOption {
	return func(r *Registration) { r.Name = name }
}

// WithSource sets the handler source (plugin name, skill name, "cli", ...).
func WithSource(source string) RegisterOption {
	return func(r *Registration) { r.Source = source }
}

// WithLifetime sets how long the registration stays active.
func WithLifetime(l Lifetime, scope string) RegisterOption {
	return func(r *Registration) {
		r.Lifetime = l
		r.Scope = scope
	}
}

// WithMatcher restricts the handler to events whose ToolName matches the
// given glob.
func WithMatcher(glob string) RegisterOption {
	return func(r *Registration) { r.Matcher = glob }
}

// WithTimeout bounds how long the dispatcher waits for this handler.
func WithTimeout(d time.Duration) RegisterOption {
	return func(r *Registration) { r.Timeout = d }
}

// Unregister removes a handler by its registration ID.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unregisterLocked(id)
}

func (r *Registry) unregisterLocked(id string) bool {
	reg, exists := r.byID[id]
	if !exists {
		return false
	}

	delete(r.byID, id)

	handlers := r.handlers[reg.EventKey]
	for i, h := range handlers {
		if h.ID == id {
			r.handlers[reg.EventKey] = append(handlers[:i], handlers[i+1:]...)
			break
		}
	}
	return true
}

// UnregisterScope tears down every registration belonging to the given
// scope (a skill or plugin instance being unloaded).
func (r *Registry) UnregisterScope(scope string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, reg := range r.byID {
		if reg.Lifetime == LifetimeScoped && reg.Scope == scope {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		r.unregisterLocked(id)
	}
	return len(ids)
}

// Clear removes all registered handlers.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers = make(map[EventType][]*Registration)
	r.byID = make(map[string]*Registration)
	r.logger.Debug("cleared all hooks")
}

// Trigger dispatches an event to every matching handler in parallel and
// waits for all of them. It returns the outcome of each handler plus the
// aggregate outcome: Reject if any handler rejected, Continue otherwise.
func (r *Registry) Trigger(ctx context.Context, event *Event) (Outcome, []HookOutcome, error) {
	if event == nil {
		return OutcomeContinue, nil, fmt.Errorf("event is nil")
	}

	r.mu.RLock()
	handlers := make([]*Registration, 0, len(r.handlers[event.Type]))
	for _, reg := range r.handlers[event.Type] {
		if reg.MatchesGlob(event.ToolName) {
			handlers = append(handlers, reg)
		}
	}
	r.mu.RUnlock()

	if len(handlers) == 0 {
		return OutcomeContinue, nil, nil
	}

	outcomes := make([]HookOutcome, len(handlers))
	var wg sync.WaitGroup
	for i, reg := range handlers {
		wg.Add(1)
		go func(i int, reg *Registration) {
			defer wg.Done()
			outcomes[i] = r.callHandler(ctx, reg, event)
		}(i, reg)
	}
	wg.Wait()

	var toRemove []string
	aggregate := OutcomeContinue
	var firstErr error
	for i, oc := range outcomes {
		reg := handlers[i]
		if oc.Err != nil {
			r.logger.Warn("hook handler error",
				"event_type", event.Type,
				"handler_id", reg.ID,
				"handler_name", reg.Name,
				"error", oc.Err)
			if firstErr == nil {
				firstErr = oc.Err
			}
		}
		if oc.Result == OutcomeReject {
			aggregate = OutcomeReject
		}
		if reg.Lifetime == LifetimeOnce {
			toRemove = append(toRemove, reg.ID)
		}
	}

	if len(toRemove) > 0 {
		r.mu.Lock()
		for _, id := range toRemove {
			r.unregisterLocked(id)
		}
		r.mu.Unlock()
	}

	return aggregate, outcomes, firstErr
}

func (r *Registry) callHandler(ctx context.Context, reg *Registration, event *Event) (out HookOutcome) {
	out.Name = reg.Name
	start := time.Now()
	defer func() {
		out.Duration = time.Since(start)
		if p := recover(); p != nil {
			out.Result = OutcomeContinue
			out.Err = fmt.Errorf("hook panic: %v", p)
		}
	}()

	timeout := reg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := reg.Handler(hctx, event)
	out.Result = result
	out.Err = err
	return out
}

// TriggerAsync dispatches an event without waiting for handlers to finish.
func (r *Registry) TriggerAsync(ctx context.Context, event *Event) {
	go func() {
		if _, _, err := r.Trigger(ctx, event); err != nil {
			r.logger.Warn("async hook trigger error", "event_type", event.Type, "error", err)
		}
	}()
}

// RegisteredEvents returns all event keys with registered handlers.
func (r *Registry) RegisteredEvents() []EventType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]EventType, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	return keys
}

// HandlerCount returns the number of handlers for an event key.
func (r *Registry) HandlerCount(eventKey EventType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[eventKey])
}

// GetRegistration returns a registration by ID.
func (r *Registry) GetRegistration(id string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byID[id]
	return reg, ok
}

// ListRegistrations returns all registrations for an event key.
func (r *Registry) ListRegistrations(eventKey EventType) []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handlers := r.handlers[eventKey]
	result := make([]*Registration, len(handlers))
	copy(result, handlers)
	return result
}
