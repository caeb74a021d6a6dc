// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package events

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler receives emitted events. Handlers run synchronously on the
// goroutine that emits the event; long-running handlers should hand the
// envelope off to their own queue.
type Handler func(Envelope)

// Filter decides whether a handler receives a particular envelope. A nil
// filter admits everything.
type Filter func(Envelope) bool

type registration struct {
	handler Handler
	filter  Filter
}

// Registry fans emitted events out to registered handlers.
//
// Registration is keyed by tag, so a component can replace or remove its own
// handler without knowing about others. Registrations typically happen at
// startup or in test setup; emission is safe against concurrent
// registration.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]registration
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: map[string]registration{},
	}
}

// Register installs a handler under the given tag, replacing any previous
// handler with that tag. The filter may be nil to receive every event.
func (r *Registry) Register(tag string, handler Handler, filter Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[tag] = registration{handler: handler, filter: filter}
}

// Unregister removes the handler with the given tag, if any, and reports
// whether one was present.
func (r *Registry) Unregister(tag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handlers[tag]
	delete(r.handlers, tag)
	return ok
}

// Emit delivers the given event to every registered handler whose filter
// admits it, stamping the envelope with an id and the current time.
//
// A handler that panics does not prevent the remaining handlers from
// receiving the event; the panic is logged and discarded, because an
// observer must never be able to break the engine it is observing.
func (r *Registry) Emit(event Event) {
	r.EmitAt(time.Now(), event)
}

// EmitAt is like [Registry.Emit] but with an explicit timestamp, for
// emitters that captured the event moment earlier than they could emit.
func (r *Registry) EmitAt(t time.Time, event Event) {
	env := Envelope{
		ID:    uuid.NewString(),
		Time:  t,
		Event: event,
	}

	r.mu.RLock()
	regs := make([]registration, 0, len(r.handlers))
	for _, reg := range r.handlers {
		regs = append(regs, reg)
	}
	r.mu.RUnlock()

	for _, reg := range regs {
		if reg.filter != nil && !reg.filter(env) {
			continue
		}
		deliver(reg.handler, env)
	}
}

func deliver(handler Handler, env Envelope) {
	defer func() {
		if problem := recover(); problem != nil {
			log.Printf("[ERROR] events: handler panicked while handling %s event: %v", env.Event.EventKind(), problem)
		}
	}()
	handler(env)
}
