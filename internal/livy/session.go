package livy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lakehouse-tools/livygo/internal/config"
	"github.com/lakehouse-tools/livygo/internal/transport"
)

// Session is one remote Livy compute context. At most one live Session
// exists per Manager; it is created and destroyed only under the Manager's
// lock. The HTTP client is swappable (rebuilt wholesale after repeated
// connection failures) and guarded by its own mutex so no caller uses a
// handle mid-swap.
type Session struct {
	cfg     *config.Config
	auth    HeaderProvider
	logger  *slog.Logger
	baseURL string

	id string

	mu       sync.Mutex
	http     *http.Client
	needsNew bool

	// injectable for tests
	newTransport func() *http.Client
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
}

func newSession(cfg *config.Config, auth HeaderProvider, logger *slog.Logger) *Session {
	factory := func() *http.Client {
		return transport.New(cfg.HTTPTimeout(), logger)
	}
	return &Session{
		cfg:          cfg,
		auth:         auth,
		logger:       logger,
		baseURL:      cfg.LivyEndpoint(),
		http:         factory(),
		needsNew:     true,
		newTransport: factory,
		sleep:        sleepCtx,
		now:          time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ID returns the identifier assigned by the remote service, empty until
// the session has been created.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) client() *http.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.http
}

// rebuildTransport replaces the HTTP client wholesale, clearing any stale
// TLS/keep-alive state that transport-level retry cannot fix.
func (s *Session) rebuildTransport() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.http.CloseIdleConnections()
	s.http = s.newTransport()
}

func (s *Session) restartRequired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsNew
}

func (s *Session) markNeedsNew(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.needsNew = v
}

// doJSON issues one request with auth headers and an optional JSON body.
// Non-2xx responses come back as responses; the caller raises.
func (s *Session) doJSON(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return nil, err
	}
	hdr, err := s.auth.Headers(ctx)
	if err != nil {
		return nil, err
	}
	req.Header = hdr
	return s.client().Do(req)
}

// create registers a new session and blocks until it is ready. A response
// without a parseable id is fatal: nothing can proceed without one.
func (s *Session) create(ctx context.Context) error {
	s.logger.Debug("creating livy session (this may take a few minutes)")

	resp, err := s.doJSON(ctx, http.MethodPost, s.baseURL+"/sessions", s.cfg.SparkConfig)
	if err != nil {
		return fmt.Errorf("%w: creating session: %v", ErrConnect, err)
	}
	defer resp.Body.Close()
	if err := transport.CheckStatus(resp); err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	var st sessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("%w: parsing session create response: %v", ErrMalformedResponse, err)
	}
	if st.ID == "" {
		return fmt.Errorf("%w: session id missing from create response", ErrMalformedResponse)
	}
	s.id = string(st.ID)

	if err := s.waitReady(ctx); err != nil {
		return err
	}

	s.markNeedsNew(false)
	s.logger.Debug("livy session created", "session_id", s.id)
	return nil
}

// waitReady polls the session until the Livy engine reports idle. Transient
// HTTP or parse errors never abort the loop; only the start deadline and a
// terminal engine state do.
func (s *Session) waitReady(ctx context.Context) error {
	deadline := s.now().Add(s.cfg.SessionStartTimeout())
	for {
		if s.now().After(deadline) {
			return fmt.Errorf("%w: session %s did not start within %s",
				ErrTimeout, s.id, s.cfg.SessionStartTimeout())
		}

		st, err := s.fetchStatus(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("session status poll failed, retrying",
				"session_id", s.id, "error", err)
			if err := s.sleep(ctx, s.cfg.PollWait()); err != nil {
				return err
			}
			continue
		}

		engine := st.LivyInfo.CurrentState
		switch {
		case st.State.Booting():
			s.logger.Debug("session starting", "session_id", s.id, "state", st.State)
			if err := s.sleep(ctx, s.cfg.PollWait()); err != nil {
				return err
			}
		case engine.Ready():
			s.logger.Debug("session idle and ready", "session_id", s.id)
			return nil
		case engine.Failed():
			msg := st.LivyInfo.ErrorMessage
			if msg == "" {
				msg = "no error details"
			}
			return fmt.Errorf("%w: session %s entered %q state: %s",
				ErrSessionFailed, s.id, engine, msg)
		default:
			s.logger.Debug("session not ready yet",
				"session_id", s.id, "state", st.State, "engine_state", engine)
			if err := s.sleep(ctx, s.cfg.PollWait()); err != nil {
				return err
			}
		}
	}
}

func (s *Session) fetchStatus(ctx context.Context) (*sessionStatus, error) {
	resp, err := s.doJSON(ctx, http.MethodGet, s.baseURL+"/sessions/"+s.id, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	defer resp.Body.Close()
	if err := transport.CheckStatus(resp); err != nil {
		return nil, err
	}
	var st sessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &st, nil
}

// delete removes the remote session. Callers on ancillary paths log the
// returned error instead of propagating it.
func (s *Session) delete(ctx context.Context) error {
	resp, err := s.doJSON(ctx, http.MethodDelete, s.baseURL+"/sessions/"+s.id, nil)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", s.id, err)
	}
	defer resp.Body.Close()
	if err := transport.CheckStatus(resp); err != nil {
		return fmt.Errorf("deleting session %s: %w", s.id, err)
	}
	s.logger.Debug("closed livy session", "session_id", s.id)
	return nil
}

// isValid checks the session with a single GET. Any failure is treated
// conservatively as invalid.
func (s *Session) isValid(ctx context.Context) bool {
	if s.id == "" {
		return false
	}
	st, err := s.fetchStatus(ctx)
	if err != nil {
		s.logger.Warn("session validity check failed, treating as invalid",
			"session_id", s.id, "error", err)
		return false
	}
	return !st.LivyInfo.CurrentState.Invalid()
}
