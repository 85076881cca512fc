package executor

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
)

// transfer runs the steps shared by every scheme: destination checks,
// the pre-network admission check, then the scheme-specific fetch.
func (e *Executor) transfer(ctx context.Context) error {
	spec := e.state.Spec()
	dest := e.f.fs.DestinationPath(spec)

	if err := e.f.fs.EnsureDir(filepath.Dir(dest)); err != nil {
		return domain.NewTransferError(domain.OutcomeFailedMountUnavailable, err)
	}

	finished, err := e.inspectDestination(dest)
	if err != nil {
		return err
	}
	if finished {
		e.logger.Info("destination already complete", zap.String("path", dest))
		return nil
	}

	if err := e.checkContinue(); err != nil {
		return err
	}

	u, err := url.Parse(e.state.URL())
	if err != nil {
		return domain.NewTransferError(domain.OutcomeFailedHTTPProtocolError, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return e.fetchHTTP(ctx, dest)
	case "ftp":
		return e.fetchFTP(ctx, u, dest)
	}
	return domain.NewTransferError(domain.OutcomeFailedUnknown,
		fmt.Errorf("%w: %q", domain.ErrUnsupportedScheme, u.Scheme))
}

// inspectDestination decides between a fresh start, a resume and an
// already finished download based on what is on disk. It reports
// finished=true when nothing is left to fetch.
func (e *Executor) inspectDestination(dest string) (bool, error) {
	size, exists, err := e.f.fs.Stat(dest)
	if err != nil {
		return false, domain.NewTransferError(domain.OutcomeFailedMountUnavailable, err)
	}
	if !exists {
		e.state.RestartProgress()
		return false, nil
	}

	done, total := e.state.DoneBytes(), e.state.TotalBytes()

	var reason string
	switch {
	case size == 0:
		reason = "empty file"
	case size == done && done == total:
		return true, nil
	case size != done:
		reason = "size differs from recorded progress"
	case e.state.EntityTag() == "":
		reason = "no entity tag to validate resume"
	}

	if reason != "" {
		e.logger.Debug("discarding partial file",
			zap.String("path", dest), zap.String("reason", reason), zap.Int64("size", size))
		if err := e.f.fs.Remove(dest); err != nil {
			return false, err
		}
		e.state.RestartProgress()
		return false, nil
	}

	e.state.SetResuming(true)
	e.logger.Info("resuming transfer",
		zap.String("from", humanize.Bytes(uint64(done))), zap.String("total", humanize.Bytes(uint64(total))))
	return false, nil
}

// ensureSpace fails the run when the destination filesystem cannot hold total bytes.
func (e *Executor) ensureSpace(dest string, total int64) error {
	if total == 0 {
		return nil
	}
	free, err := e.f.fs.FreeSpace(filepath.Dir(dest))
	if err != nil {
		return domain.NewTransferError(domain.OutcomeFailedMountUnavailable, err)
	}
	if total > free {
		return domain.NewTransferError(domain.OutcomeFailedNotEnoughSpace,
			fmt.Errorf("%w: need %s, have %s", domain.ErrInsufficientSpace,
				humanize.Bytes(uint64(total)), humanize.Bytes(uint64(free))))
	}
	return nil
}

// receive copies body into the destination file and then validates the result.
func (e *Executor) receive(ctx context.Context, body io.Reader, dest string, appendMode bool) error {
	out, err := e.f.fs.OpenDestination(dest, appendMode)
	if err != nil {
		return err
	}

	err = e.stream(ctx, body, out)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	return e.verify(dest)
}

// stream is the read loop. Each iteration checks for a stop request and
// asks the listener whether to continue before reading the next chunk.
func (e *Executor) stream(ctx context.Context, body io.Reader, out io.Writer) error {
	buf := make([]byte, e.f.config.BufferSize)
	readFailures := 0

	for {
		if err := e.checkStopped(ctx); err != nil {
			return err
		}
		if err := e.checkContinue(); err != nil {
			return err
		}

		n, err := body.Read(buf)
		if n > 0 {
			if err := e.checkOverrun(n); err != nil {
				return err
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
			e.state.AddDoneBytes(int64(n))
			e.listener.OnProgress(e.state)
			readFailures = 0
		}

		if err == io.EOF {
			return nil
		}
		if err == nil {
			continue
		}

		if stopErr := e.checkStopped(ctx); stopErr != nil {
			return stopErr
		}
		if !e.f.conn.Current().Available() {
			return &pauseError{status: domain.StatusPausedForData}
		}
		readFailures++
		if readFailures > e.f.config.ReadRetryLimit {
			return err
		}
		e.logger.Warn("read failed, retrying", zap.Int("attempt", readFailures), zap.Error(err))
		if err := sleepCtx(ctx, e.f.config.ReadRetryDelay); err != nil {
			return errStopped
		}
	}
}

// checkOverrun refuses a chunk that would take the file past its known
// length. On a resumed run this means the remote file changed underneath us.
func (e *Executor) checkOverrun(n int) error {
	total, done := e.state.TotalBytes(), e.state.DoneBytes()
	if total <= 0 || done+int64(n) <= total {
		return nil
	}
	err := fmt.Errorf("%w: expected %d, received at least %d", domain.ErrSizeMismatch, total, done+int64(n))
	if e.state.Resuming() {
		return domain.NewTransferError(domain.OutcomeFailedCannotResume, err)
	}
	return domain.NewTransferError(domain.OutcomeFailedSizeMismatch, err)
}

// verify runs the end-of-stream checks.
func (e *Executor) verify(dest string) error {
	total, done := e.state.TotalBytes(), e.state.DoneBytes()

	if total > 0 && done != total {
		e.logger.Warn("transfer length mismatch",
			zap.String("path", dest), zap.Int64("expected", total), zap.Int64("received", done))
		if e.f.config.StrictSizeCheck {
			return domain.NewTransferError(domain.OutcomeFailedSizeMismatch,
				fmt.Errorf("%w: expected %d, received %d", domain.ErrSizeMismatch, total, done))
		}
	}
	if total == 0 {
		e.state.SetTotalBytes(done)
	}

	want := e.state.Spec().Checksum
	if !e.f.config.VerifyChecksum || want == "" {
		return nil
	}
	got, err := e.f.fs.MD5(dest)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, want) {
		return domain.NewTransferError(domain.OutcomeFailedChecksumMismatch,
			fmt.Errorf("%w: expected %s, got %s", domain.ErrChecksumMismatch, want, got))
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
