package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
)

// fetchHTTP issues GET requests until a response worth streaming arrives,
// following redirects by hand so each hop is recorded on the state.
func (e *Executor) fetchHTTP(ctx context.Context, dest string) error {
	for {
		if err := e.checkStopped(ctx); err != nil {
			return err
		}

		resp, err := e.doRequest(ctx)
		if err != nil {
			return err
		}

		next, err := e.handleResponse(ctx, resp, dest)
		if next {
			drain(resp.Body)
		}
		resp.Body.Close()
		if err != nil || !next {
			return err
		}
	}
}

func (e *Executor) doRequest(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.state.URL(), nil)
	if err != nil {
		return nil, domain.NewTransferError(domain.OutcomeFailedHTTPProtocolError, err)
	}
	req.Header.Set("User-Agent", e.f.config.UserAgent)
	req.Header.Set("Accept-Encoding", "identity")

	if e.state.Resuming() {
		req.Header.Set("If-Match", e.state.EntityTag())
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", e.state.DoneBytes()))
	}

	e.logger.Debug("requesting", zap.String("url", req.URL.Redacted()), zap.Bool("resuming", e.state.Resuming()))

	resp, err := e.f.httpClient.Do(req)
	if err != nil {
		if stopErr := e.checkStopped(ctx); stopErr != nil {
			return nil, stopErr
		}
		return nil, err
	}
	return resp, nil
}

// handleResponse consumes one response. It returns next=true when the
// request must be reissued against a redirect target.
func (e *Executor) handleResponse(ctx context.Context, resp *http.Response, dest string) (bool, error) {
	resuming := e.state.Resuming()

	switch code := resp.StatusCode; {
	case code == http.StatusServiceUnavailable:
		return false, e.retryLater(resp)

	case isFollowedRedirect(code):
		return true, e.redirect(resp)

	case resuming && code == http.StatusPartialContent:
		e.listener.OnLengthKnown(e.state)
		return false, e.receive(ctx, resp.Body, dest, true)

	case !resuming && code == http.StatusOK:
		if err := e.beginFresh(resp, dest); err != nil {
			return false, err
		}
		return false, e.receive(ctx, resp.Body, dest, false)
	}

	return false, unexpectedStatus(resp.StatusCode, resuming)
}

func isFollowedRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther, http.StatusTemporaryRedirect:
		return true
	}
	return false
}

func (e *Executor) redirect(resp *http.Response) error {
	if e.state.NumRedirects() >= e.f.config.MaxRedirects {
		return transferErrorf(domain.OutcomeFailedTooManyRedirects,
			"gave up after %d redirects", e.state.NumRedirects())
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return transferErrorf(domain.OutcomeFailedHTTPProtocolError,
			"%d response without Location header", resp.StatusCode)
	}

	target, err := resp.Request.URL.Parse(location)
	if err != nil {
		return domain.NewTransferError(domain.OutcomeFailedHTTPProtocolError, err)
	}

	e.state.FollowRedirect(target.String())
	e.logger.Debug("following redirect",
		zap.Int("status", resp.StatusCode), zap.String("location", target.Redacted()), zap.Int("count", e.state.NumRedirects()))
	return nil
}

// retryLater turns a 503 into either a backoff request or a final failure
// once the retry budget is spent.
func (e *Executor) retryLater(resp *http.Response) error {
	failures := e.state.NumFailures()
	if failures >= e.f.config.MaxRetries {
		return transferErrorf(domain.OutcomeFailedTooManyRetries,
			"server unavailable after %d retries", failures)
	}

	delay := e.backoff(resp.Header.Get("Retry-After"), failures)
	e.logger.Info("server asked to retry later",
		zap.Duration("delay", delay), zap.Int("failures", failures+1))
	return domain.NewRetryableError(errors.New("service unavailable"), delay)
}

// backoff computes the delay before the next attempt. A Retry-After header
// is clamped to the configured bounds and jittered; without one the delay
// doubles with every failure.
func (e *Executor) backoff(header string, failures int) time.Duration {
	lo := e.f.config.RetryMinSeconds
	hi := e.f.config.RetryMaxSeconds

	seconds, ok := parseRetryAfter(header, e.f.now())
	if !ok || seconds < 0 {
		seconds = lo
		for i := 0; i < failures && seconds < hi; i++ {
			seconds *= 2
		}
		return time.Duration(min(seconds, hi)) * time.Second
	}

	seconds = max(lo, min(seconds, hi))
	seconds += int(e.f.random() * float64(lo))
	return time.Duration(seconds) * time.Second
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) (int, bool) {
	if v == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n, true
	}
	if t, err := http.ParseTime(v); err == nil {
		return int(t.Sub(now) / time.Second), true
	}
	return 0, false
}

// beginFresh records what a 200 response tells us about the content
// before any byte is written.
func (e *Executor) beginFresh(resp *http.Response, dest string) error {
	if tag := resp.Header.Get("ETag"); tag != "" {
		e.state.SetEntityTag(tag)
	}

	if len(resp.TransferEncoding) == 0 && resp.ContentLength >= 0 {
		e.state.SetTotalBytes(resp.ContentLength)
		e.listener.OnLengthKnown(e.state)
	} else {
		// a length left over from an earlier attempt no longer applies
		e.state.SetTotalBytes(0)
	}

	return e.ensureSpace(dest, e.state.TotalBytes())
}

func unexpectedStatus(code int, resuming bool) error {
	var outcome domain.Outcome
	switch {
	case code == http.StatusRequestedRangeNotSatisfiable, resuming && code != http.StatusPartialContent:
		outcome = domain.OutcomeFailedCannotResume
	case code == http.StatusNotFound:
		outcome = domain.OutcomeFailedFileNotFound
	case code >= 300 && code < 400:
		outcome = domain.OutcomeFailedUnhandledRedirect
	case code >= 400 && code < 600:
		outcome = domain.OutcomeFailedHTTPErrorCode
	default:
		outcome = domain.OutcomeFailedUnhandledHTTPCode
	}
	return transferErrorf(outcome, "unexpected HTTP status %d", code)
}

// drain discards what is left of a body so the connection can be reused.
func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64<<10))
}
