// Package models owns the process-wide model handles and the on-disk model
// cache.
package models

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/siddug/wave-sub000/internal/logging"
)

// ErrNotReady is returned by Acquire when no model is loaded.
var ErrNotReady = errors.New("models: no model loaded")

// State is the lifecycle of the managed model.
type State int

const (
	Unloaded State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unloaded"
	}
}

// LoadFunc produces a handle for key; DisposeFunc releases one.
type (
	LoadFunc[H any]    func(ctx context.Context, key string) (H, error)
	DisposeFunc[H any] func(ctx context.Context, h H) error
)

type loadCall[H any] struct {
	key    string
	done   chan struct{}
	handle H
	err    error
}

// Manager holds at most one loaded handle of one resource type. Loading a
// different key disposes the current handle first; concurrent loads of the
// same key share one in-flight load.
type Manager[H any] struct {
	name    string
	load    LoadFunc[H]
	dispose DisposeFunc[H]
	log     logging.Logger

	mu       sync.Mutex
	state    State
	key      string
	handle   H
	inflight *loadCall[H]
}

// NewManager creates an unloaded manager. name is used in logs.
func NewManager[H any](name string, load LoadFunc[H], dispose DisposeFunc[H]) *Manager[H] {
	return &Manager[H]{
		name:    name,
		load:    load,
		dispose: dispose,
		log:     logging.NewLogger(context.Background()).WithComponent("models").WithField("resource", name),
	}
}

// State reports the current state and the key it refers to.
func (m *Manager[H]) State() (State, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.key
}

// Load makes key the loaded model and returns its handle.
func (m *Manager[H]) Load(ctx context.Context, key string) (H, error) {
	var zero H
	if key == "" {
		return zero, fmt.Errorf("%s: empty model key", m.name)
	}
	for {
		m.mu.Lock()
		if m.state == Ready && m.key == key {
			h := m.handle
			m.mu.Unlock()
			return h, nil
		}
		if c := m.inflight; c != nil {
			m.mu.Unlock()
			h, err := wait(ctx, c)
			if c.key == key || ctx.Err() != nil {
				return h, err
			}
			continue
		}

		prev, hadPrev := m.handle, m.state == Ready
		c := &loadCall[H]{key: key, done: make(chan struct{})}
		m.inflight = c
		m.state, m.key, m.handle = Loading, key, zero
		m.mu.Unlock()

		if hadPrev {
			m.release(ctx, prev)
		}
		m.log.Infof("loading %s", key)
		h, err := m.load(ctx, key)

		m.mu.Lock()
		c.handle, c.err = h, err
		m.inflight = nil
		if err != nil {
			m.state, m.key = Unloaded, ""
		} else {
			m.state, m.handle = Ready, h
		}
		close(c.done)
		m.mu.Unlock()

		if err != nil {
			return zero, fmt.Errorf("%s: load %s: %w", m.name, key, err)
		}
		return h, nil
	}
}

// Acquire returns the ready handle, waiting for an in-flight load.
func (m *Manager[H]) Acquire(ctx context.Context) (H, error) {
	var zero H
	m.mu.Lock()
	switch {
	case m.state == Ready:
		h := m.handle
		m.mu.Unlock()
		return h, nil
	case m.inflight != nil:
		c := m.inflight
		m.mu.Unlock()
		if _, err := wait(ctx, c); err != nil {
			if ctx.Err() != nil {
				return zero, err
			}
			return zero, fmt.Errorf("%w: %v", ErrNotReady, err)
		}
		return m.Acquire(ctx)
	default:
		m.mu.Unlock()
		return zero, ErrNotReady
	}
}

// Unload disposes the loaded handle, waiting for an in-flight load first.
func (m *Manager[H]) Unload(ctx context.Context) error {
	var zero H
	m.mu.Lock()
	if c := m.inflight; c != nil {
		m.mu.Unlock()
		if _, err := wait(ctx, c); err != nil && ctx.Err() != nil {
			return err
		}
		return m.Unload(ctx)
	}
	if m.state != Ready {
		m.mu.Unlock()
		return nil
	}
	h, key := m.handle, m.key
	m.state, m.key, m.handle = Unloaded, "", zero
	m.mu.Unlock()

	m.log.Infof("unloading %s", key)
	return m.release(ctx, h)
}

func (m *Manager[H]) release(ctx context.Context, h H) error {
	if m.dispose == nil {
		return nil
	}
	if err := m.dispose(ctx, h); err != nil {
		m.log.Warnf("dispose failed: %v", err)
		return fmt.Errorf("%s: dispose: %w", m.name, err)
	}
	return nil
}

func wait[H any](ctx context.Context, c *loadCall[H]) (H, error) {
	select {
	case <-c.done:
		return c.handle, c.err
	case <-ctx.Done():
		var zero H
		return zero, ctx.Err()
	}
}
