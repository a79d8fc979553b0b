package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/siddug/wave-sub000/internal/models"
)

// Enhancer generates with whatever model the manager currently holds.
type Enhancer struct {
	engine Engine
	models *models.Manager[Handle]
}

// NewEnhancer generates with whatever model mgr has ready.
func NewEnhancer(engine Engine, mgr *models.Manager[Handle]) *Enhancer {
	return &Enhancer{engine: engine, models: mgr}
}

// NewManager wires an engine into a model manager.
func NewManager(engine Engine) *models.Manager[Handle] {
	return models.NewManager("llm", engine.Load, engine.Dispose)
}

// Enhance runs prompt on the loaded model. It returns ErrUnavailable when no
// model is loaded.
func (e *Enhancer) Enhance(ctx context.Context, prompt string, opts Options) (string, error) {
	if e == nil || e.engine == nil || e.models == nil {
		return "", ErrUnavailable
	}
	h, err := e.models.Acquire(ctx)
	if err != nil {
		if errors.Is(err, models.ErrNotReady) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", err
	}
	return e.engine.Generate(ctx, h, prompt, opts)
}
