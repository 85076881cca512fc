package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
	"github.com/otaupdater/ota-download-manager/internal/domain/event"
)

// transferFailedError reports a transfer that finished without completing.
type transferFailedError struct {
	status  domain.Status
	outcome domain.Outcome
}

func (e *transferFailedError) Error() string {
	return fmt.Sprintf("transfer %s: %s", e.status, e.outcome)
}

func exitCode(err error) int {
	var tf *transferFailedError
	if errors.As(err, &tf) {
		return 2
	}
	return 1
}

// fetchWatcher forwards the events of one transfer to the command loop.
type fetchWatcher struct {
	id       int64
	finished chan event.TransferFinished
	updates  chan event.TransferView
}

func newFetchWatcher(id int64) *fetchWatcher {
	return &fetchWatcher{
		id:       id,
		finished: make(chan event.TransferFinished, 1),
		updates:  make(chan event.TransferView, 16),
	}
}

func (w *fetchWatcher) Handle(e event.DomainEvent) error {
	te, ok := e.(event.TransferEvent)
	if !ok || te.Transfer().Record.ID != w.id {
		return nil
	}
	if fin, ok := e.(event.TransferFinished); ok {
		select {
		case w.finished <- fin:
		default:
		}
		return nil
	}
	select {
	case w.updates <- te.Transfer():
	default:
	}
	return nil
}

func (w *fetchWatcher) HandledEvents() []string {
	return []string{"*"}
}

func newFetchCmd() *cobra.Command {
	var (
		kind     string
		name     string
		ver      string
		checksum string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Queue one download and wait for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := domain.ParseKind(kind)
			if err != nil {
				return err
			}
			spec := domain.TransferSpec{
				Kind:     k,
				Name:     name,
				Version:  ver,
				URL:      args[0],
				Checksum: checksum,
			}
			return runFetch(spec, timeout)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "generic", "transfer kind: generic, rom or kernel")
	cmd.Flags().StringVar(&name, "name", "", "package name, required for rom and kernel")
	cmd.Flags().StringVar(&ver, "version", "", "package version")
	cmd.Flags().StringVar(&checksum, "md5", "", "expected MD5 of the downloaded file")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long, leaving the transfer resumable (0 waits forever)")
	return cmd
}

func runFetch(spec domain.TransferSpec, timeout time.Duration) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.close(closeCtx)
	}()

	watcher := newFetchWatcher(domain.TransferID(spec))
	sub := a.manager.Subscribe(watcher)
	defer sub.Close()

	if err := a.manager.Start(ctx); err != nil {
		return err
	}
	defer a.manager.Stop()

	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()
	go a.runMonitor(bgCtx)
	go a.newMaintenance().Start(bgCtx)

	id, err := a.manager.Enqueue(spec)
	if err != nil {
		return err
	}
	// a transfer left paused by an earlier run would otherwise wait forever
	if err := a.manager.Resume(id); err != nil {
		return err
	}
	log.Debug("fetch queued", zap.Int64("transfer_id", id), zap.String("url", spec.URL))

	last := ""
	for {
		select {
		case v := <-watcher.updates:
			line := fmt.Sprintf("%s: %s", v.Presentation.Title, v.Presentation.Subtext)
			if v.Presentation.Title == "" {
				line = v.Presentation.Subtext
			}
			if line != last {
				fmt.Fprintln(os.Stderr, line)
				last = line
			}

		case fin := <-watcher.finished:
			if fin.Record.Status == domain.StatusCompleted {
				fmt.Println(a.fs.DestinationPath(spec))
				return nil
			}
			return &transferFailedError{status: fin.Record.Status, outcome: fin.Outcome}

		case <-ctx.Done():
			return fmt.Errorf("stopped before the transfer finished; it will resume on the next run: %w", ctx.Err())
		}
	}
}
