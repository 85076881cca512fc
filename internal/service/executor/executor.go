package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
	"github.com/otaupdater/ota-download-manager/internal/port"
)

// Verdict is the listener's answer to "may this transfer keep going".
type Verdict int

const (
	Continue Verdict = iota
	PauseNoData
	PauseNoWifi
)

// Listener receives the lifecycle of one run. Callbacks are invoked
// synchronously from the run goroutine, in order, and OnFinished is always last.
type Listener interface {
	OnStart(st *domain.TransferState)
	OnCheckContinue(st *domain.TransferState) Verdict
	OnLengthKnown(st *domain.TransferState)
	OnProgress(st *domain.TransferState)
	OnPaused(st *domain.TransferState)
	OnFinished(st *domain.TransferState, outcome domain.Outcome)
}

// Config holds executor configuration
type Config struct {
	MaxRetries      int
	MaxRedirects    int
	RetryMinSeconds int
	RetryMaxSeconds int
	BufferSize      int

	// ReadRetryLimit bounds consecutive read errors tolerated while the
	// network is still up.
	ReadRetryLimit int
	ReadRetryDelay time.Duration

	UserAgent      string
	ConnectTimeout time.Duration

	VerifyChecksum  bool
	StrictSizeCheck bool
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:      5,
		MaxRedirects:    5,
		RetryMinSeconds: 30,
		RetryMaxSeconds: 24 * 60 * 60,
		BufferSize:      4096,
		ReadRetryLimit:  5,
		ReadRetryDelay:  time.Second,
		UserAgent:       "otadl/1.0",
		ConnectTimeout:  30 * time.Second,
		VerifyChecksum:  true,
	}
}

// Factory builds executors that share configuration and collaborators.
type Factory struct {
	config     Config
	fs         port.FileSystem
	conn       port.ConnectivitySource
	logger     *zap.Logger
	httpClient *http.Client
	dialFTP    FTPDialer
	now        func() time.Time
	random     func() float64
}

// NewFactory creates a new Factory
func NewFactory(cfg Config, fs port.FileSystem, conn port.ConnectivitySource, logger *zap.Logger) *Factory {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = def.MaxRedirects
	}
	if cfg.RetryMinSeconds <= 0 {
		cfg.RetryMinSeconds = def.RetryMinSeconds
	}
	if cfg.RetryMaxSeconds < cfg.RetryMinSeconds {
		cfg.RetryMaxSeconds = def.RetryMaxSeconds
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.ReadRetryLimit < 0 {
		cfg.ReadRetryLimit = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Factory{
		config:     cfg,
		fs:         fs,
		conn:       conn,
		logger:     logger,
		httpClient: NewHTTPClient(cfg),
		dialFTP:    dialFTP,
		now:        time.Now,
		random:     rand.Float64,
	}
}

// Config returns the effective configuration
func (f *Factory) Config() Config {
	return f.config
}

// New creates an executor for st. It does nothing until Start is called.
func (f *Factory) New(st *domain.TransferState, listener Listener) *Executor {
	runID := uuid.NewString()
	return &Executor{
		f:        f,
		state:    st,
		listener: listener,
		runID:    runID,
		done:     make(chan struct{}),
		logger:   f.logger.With(zap.Int64("transfer_id", st.ID()), zap.String("run_id", runID)),
	}
}

// Executor performs one attempt to fetch a transfer into its destination file.
type Executor struct {
	f        *Factory
	state    *domain.TransferState
	listener Listener
	runID    string
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped atomic.Bool
	started bool
	done    chan struct{}
}

// RunID identifies this run in logs and events.
func (e *Executor) RunID() string {
	return e.runID
}

// Start launches the run in its own goroutine and returns immediately.
func (e *Executor) Start(parent context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true

	ctx, cancel := context.WithCancel(parent)
	e.cancel = cancel
	go e.run(ctx)
}

// Pause asks the run to stop and leave the transfer resumable.
func (e *Executor) Pause() {
	e.state.SetPausing(true)
	e.stop()
}

// Cancel asks the run to stop for good.
func (e *Executor) Cancel() {
	e.state.SetPausing(false)
	e.stop()
}

// Done is closed after OnFinished returns.
func (e *Executor) Done() <-chan struct{} {
	return e.done
}

func (e *Executor) stop() {
	e.stopped.Store(true)
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Executor) run(ctx context.Context) {
	defer close(e.done)
	defer e.cancel()

	e.listener.OnStart(e.state)

	outcome := e.execute(ctx)

	if outcome == domain.OutcomePaused {
		e.listener.OnPaused(e.state)
	}
	e.listener.OnFinished(e.state, outcome)
}

// execute runs the transfer and records its final status and outcome.
func (e *Executor) execute(ctx context.Context) (outcome domain.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("transfer panicked", zap.Any("panic", r), zap.Stack("stack"))
			e.state.FinishAt(domain.StatusFailed, domain.OutcomeFailedUnknown, e.f.now())
			outcome = domain.OutcomeFailedUnknown
		}
	}()

	err := e.transfer(ctx)
	status, outcome := e.classify(ctx, err)
	e.state.FinishAt(status, outcome, e.f.now())

	switch {
	case err == nil:
		e.logger.Info("transfer completed", zap.Int64("bytes", e.state.DoneBytes()))
	case outcome.IsFailure():
		e.logger.Warn("transfer failed", zap.Stringer("outcome", outcome), zap.Error(err))
	default:
		e.logger.Info("transfer stopped",
			zap.Stringer("status", status), zap.Stringer("outcome", outcome), zap.Int64("bytes", e.state.DoneBytes()))
	}
	return outcome
}

// pauseError stops a run because the network no longer allows it.
type pauseError struct {
	status domain.Status
}

func (e *pauseError) Error() string {
	return "paused: " + e.status.String()
}

func pauseFor(v Verdict) error {
	if v == PauseNoWifi {
		return &pauseError{status: domain.StatusPausedForWifi}
	}
	return &pauseError{status: domain.StatusPausedForData}
}

var errStopped = errors.New("transfer stopped")

// checkStopped returns errStopped once Pause, Cancel or the parent context
// has stopped the run.
func (e *Executor) checkStopped(ctx context.Context) error {
	if e.stopped.Load() || ctx.Err() != nil {
		return errStopped
	}
	return nil
}

// checkContinue asks the listener whether the network still allows the run.
func (e *Executor) checkContinue() error {
	if v := e.listener.OnCheckContinue(e.state); v != Continue {
		return pauseFor(v)
	}
	return nil
}

func (e *Executor) classify(ctx context.Context, err error) (domain.Status, domain.Outcome) {
	if err == nil {
		return domain.StatusCompleted, domain.OutcomeFinished
	}

	// A stop request wins over whatever error the interrupted I/O produced.
	if errors.Is(err, errStopped) || e.checkStopped(ctx) != nil {
		switch {
		case !e.stopped.Load():
			return domain.StatusPausedSystem, domain.OutcomePaused
		case e.state.Pausing():
			if e.state.Status() == domain.StatusPausedSystem {
				return domain.StatusPausedSystem, domain.OutcomePaused
			}
			return domain.StatusPausedUser, domain.OutcomePaused
		default:
			return domain.StatusCancelledUser, domain.OutcomeCancelled
		}
	}

	var pe *pauseError
	if errors.As(err, &pe) {
		return pe.status, domain.OutcomePaused
	}

	if d, ok := domain.GetRetryAfter(err); ok {
		e.state.ScheduleRetry(int(d/time.Second), e.f.now())
		return domain.StatusPausedRetry, domain.OutcomeRetryLater
	}

	if o, ok := domain.OutcomeOf(err); ok {
		return domain.StatusFailed, o
	}

	if isIOError(err) {
		return domain.StatusFailed, domain.OutcomeFailedNetworkError
	}
	return domain.StatusFailed, domain.OutcomeFailedUnknown
}

func isIOError(err error) bool {
	var (
		netErr   net.Error
		urlErr   *url.Error
		pathErr  *os.PathError
		protoErr *textproto.Error
	)
	switch {
	case errors.As(err, &netErr), errors.As(err, &urlErr), errors.As(err, &pathErr), errors.As(err, &protoErr):
		return true
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.ErrShortWrite), errors.Is(err, io.ErrClosedPipe):
		return true
	}
	return false
}

func transferErrorf(outcome domain.Outcome, format string, args ...any) error {
	return domain.NewTransferError(outcome, fmt.Errorf(format, args...))
}
