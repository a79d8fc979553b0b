package indicator

import (
	"context"
	"sync"

	"github.com/siddug/wave-sub000/internal/logging"
)

// Lazy creates its surface on the first Show. Hide before that is a no-op,
// and a failed creation is retried on the next Show.
type Lazy struct {
	create func() (Surface, error)

	mu      sync.Mutex
	surface Surface
}

// NewLazy defers create until the first Show.
func NewLazy(create func() (Surface, error)) *Lazy {
	return &Lazy{create: create}
}

func (l *Lazy) Show(mode Mode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.surface == nil {
		s, err := l.create()
		if err != nil {
			logging.NewLogger(context.Background()).WithComponent("indicator").Warnf("create surface: %v", err)
			return
		}
		l.surface = s
	}
	l.surface.Show(mode)
}

func (l *Lazy) Hide() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.surface != nil {
		l.surface.Hide()
	}
}

// Created reports whether the surface exists yet.
func (l *Lazy) Created() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.surface != nil
}
