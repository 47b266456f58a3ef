package livy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lakehouse-tools/livygo/internal/transport"
)

const (
	// submitMaxAttempts bounds the retry-with-rebuild loop on statement
	// submission. Only connection-level failures are retried: the POST
	// is not idempotent at the remote, so HTTP-status failures surface
	// immediately.
	submitMaxAttempts = 5

	// maxConsecutiveConnErrs is the connection-failure budget while
	// polling for a statement result. Non-connection transient errors
	// (bad status, bad JSON) do not count against it.
	maxConsecutiveConnErrs = 10
)

// newRetrySchedule is the application-level backoff shared by submission
// and result polling: 5s doubling per attempt, capped at 60s, no jitter.
func newRetrySchedule() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Second
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = 60 * time.Second
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// submitStatement POSTs one SQL statement and returns the assigned
// statement id. Connection failures rebuild the transport and retry on the
// backoff schedule; anything else fails immediately.
func (s *Session) submitStatement(ctx context.Context, code string) (string, error) {
	url := s.baseURL + "/sessions/" + s.id + "/statements"
	body := map[string]string{"code": code, "kind": "sql"}
	s.logger.Debug("submitting statement", "session_id", s.id)

	sched := newRetrySchedule()
	for attempt := 1; ; attempt++ {
		resp, err := s.doJSON(ctx, http.MethodPost, url, body)
		if err == nil {
			return parseSubmitResponse(resp)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !transport.IsConnectionError(err) {
			return "", fmt.Errorf("submitting statement: %w", err)
		}
		if attempt >= submitMaxAttempts {
			return "", fmt.Errorf("%w: failed to submit statement after %d attempts: %v",
				ErrConnect, submitMaxAttempts, err)
		}
		wait := sched.NextBackOff()
		s.logger.Warn("connection error submitting statement, rebuilding transport",
			"attempt", attempt, "max_attempts", submitMaxAttempts, "retry_in", wait)
		s.rebuildTransport()
		if err := s.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
}

func parseSubmitResponse(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	if err := transport.CheckStatus(resp); err != nil {
		return "", fmt.Errorf("submitting statement: %w", err)
	}
	var st statementStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return "", fmt.Errorf("%w: parsing statement submission response: %v", ErrMalformedResponse, err)
	}
	if st.ID == "" {
		return "", fmt.Errorf("%w: statement id missing from submission response", ErrMalformedResponse)
	}
	return string(st.ID), nil
}

// awaitResult polls one statement until it resolves, bounded by the
// statement timeout. Connection failures count toward a consecutive-failure
// budget and rebuild the transport with backoff; other transient failures
// retry after the short statement poll wait without touching the budget.
func (s *Session) awaitResult(ctx context.Context, stmtID string) (*ResultSet, error) {
	url := s.baseURL + "/sessions/" + s.id + "/statements/" + stmtID
	deadline := s.now().Add(s.cfg.StatementTimeout())
	connErrs := 0
	sched := newRetrySchedule()

	for {
		if s.now().After(deadline) {
			return nil, fmt.Errorf("%w: statement %s did not complete within %s",
				ErrTimeout, stmtID, s.cfg.StatementTimeout())
		}

		st, err := s.pollStatementOnce(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if transport.IsConnectionError(err) {
				connErrs++
				if connErrs >= maxConsecutiveConnErrs {
					return nil, fmt.Errorf("%w: lost connection polling statement %s after %d consecutive failures: %v",
						ErrConnect, stmtID, maxConsecutiveConnErrs, err)
				}
				wait := sched.NextBackOff()
				s.logger.Warn("connection error polling statement, rebuilding transport",
					"statement_id", stmtID, "failure", connErrs,
					"budget", maxConsecutiveConnErrs, "retry_in", wait)
				s.rebuildTransport()
				if err := s.sleep(ctx, wait); err != nil {
					return nil, err
				}
				continue
			}
			s.logger.Warn("error polling statement, retrying",
				"statement_id", stmtID, "error", err)
			if err := s.sleep(ctx, s.cfg.PollStatementWait()); err != nil {
				return nil, err
			}
			continue
		}
		connErrs = 0
		sched.Reset()

		switch {
		case st.State.Finished():
			return decodeResult(st)
		case st.State.Failed():
			return nil, fmt.Errorf("%w: statement %s failed with state %q: %s\n%s",
				ErrStatementFailed, stmtID, st.State,
				st.Output.EValue, strings.Join(st.Output.Traceback, ""))
		default:
			// waiting, running, or anything unrecognized
			if err := s.sleep(ctx, s.cfg.PollStatementWait()); err != nil {
				return nil, err
			}
		}
	}
}

func (s *Session) pollStatementOnce(ctx context.Context, url string) (*statementStatus, error) {
	resp, err := s.doJSON(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := transport.CheckStatus(resp); err != nil {
		return nil, err
	}
	var st statementStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("parsing statement poll response: %w", err)
	}
	return &st, nil
}
