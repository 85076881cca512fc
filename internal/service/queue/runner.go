package queue

import (
	"context"

	"github.com/otaupdater/ota-download-manager/internal/domain"
	"github.com/otaupdater/ota-download-manager/internal/service/executor"
)

// Runner is one executor run as the manager drives it.
type Runner interface {
	Start(ctx context.Context)
	Pause()
	Cancel()
	Done() <-chan struct{}
	RunID() string
}

// RunnerFactory creates a runner bound to a transfer and a listener.
type RunnerFactory interface {
	NewRunner(st *domain.TransferState, listener executor.Listener) Runner
}

type executorRunners struct {
	factory *executor.Factory
}

// NewExecutorRunners adapts an executor factory to the manager.
func NewExecutorRunners(f *executor.Factory) RunnerFactory {
	return &executorRunners{factory: f}
}

func (r *executorRunners) NewRunner(st *domain.TransferState, listener executor.Listener) Runner {
	return r.factory.New(st, listener)
}
