package livy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lakehouse-tools/livygo/internal/config"
	"github.com/lakehouse-tools/livygo/internal/testutil"
)

type staticHeaders struct{}

func (staticHeaders) Headers(ctx context.Context) (http.Header, error) {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Authorization", "Bearer test-token")
	return h, nil
}

// fakeClock drives deadline checks without real waiting; sleeps advance it.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// sleepRecorder captures every requested sleep and advances the clock
// instead of blocking.
type sleepRecorder struct {
	mu    sync.Mutex
	clock *fakeClock
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	s.clock.Advance(d)
	return nil
}

func (s *sleepRecorder) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func testCfg(endpoint string) *config.Config {
	return &config.Config{
		WorkspaceID:                "11111111-2222-3333-4444-555555555555",
		LakehouseID:                "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		Endpoint:                   endpoint,
		SparkConfig:                map[string]any{"name": "livygo-test"},
		HTTPTimeoutSeconds:         5,
		SessionStartTimeoutSeconds: 600,
		StatementTimeoutSeconds:    3600,
		PollWaitSeconds:            10,
		PollStatementWaitSeconds:   5,
	}
}

// newTestSession builds a session against srvURL with an injected clock and
// recorded, non-blocking sleeps.
func newTestSession(t *testing.T, srvURL string) (*Session, *sleepRecorder) {
	t.Helper()
	clock := newFakeClock()
	rec := &sleepRecorder{clock: clock}
	s := newSession(testCfg(srvURL), staticHeaders{}, testutil.DiscardLogger())
	s.now = clock.Now
	s.sleep = rec.sleep
	// Plain client without transport-level retry, so scripted response
	// sequences map one-to-one onto application-level behavior.
	s.newTransport = func() *http.Client { return &http.Client{Timeout: 5 * time.Second} }
	s.http = s.newTransport()
	return s, rec
}

// fakeLivy is a scripted Livy endpoint. Every field has a benign default;
// tests override the handlers they care about.
type fakeLivy struct {
	Log testutil.RequestLog

	SessionCreate http.HandlerFunc
	SessionStatus http.HandlerFunc
	SessionDelete http.HandlerFunc
	StmtSubmit    http.HandlerFunc
	StmtStatus    http.HandlerFunc

	srv *httptest.Server
}

func newFakeLivy(t *testing.T) *fakeLivy {
	t.Helper()
	f := &fakeLivy{}
	f.SessionCreate = func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteJSON(t, w, http.StatusOK, sessionBody("sess-1", "starting", "", ""))
	}
	f.SessionStatus = func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteJSON(t, w, http.StatusOK, sessionBody("sess-1", "idle", "idle", ""))
	}
	f.SessionDelete = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	f.StmtSubmit = func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteJSON(t, w, http.StatusOK, map[string]any{"id": 0, "state": "waiting"})
	}
	f.StmtStatus = func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteJSON(t, w, http.StatusOK, stmtBody("available", "ok", nil))
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.route))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLivy) URL() string { return f.srv.URL }

func (f *fakeLivy) route(w http.ResponseWriter, r *http.Request) {
	f.Log.Record(r)
	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/statements"):
		f.StmtSubmit(w, r)
	case r.Method == http.MethodGet && strings.Contains(path, "/statements/"):
		f.StmtStatus(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/sessions"):
		f.SessionCreate(w, r)
	case r.Method == http.MethodGet && strings.Contains(path, "/sessions/"):
		f.SessionStatus(w, r)
	case r.Method == http.MethodDelete && strings.Contains(path, "/sessions/"):
		f.SessionDelete(w, r)
	default:
		http.NotFound(w, r)
	}
}

func sessionBody(id string, state, engineState, errMsg string) map[string]any {
	body := map[string]any{"id": id, "state": state}
	info := map[string]any{}
	if engineState != "" {
		info["currentState"] = engineState
	}
	if errMsg != "" {
		info["errorMessage"] = errMsg
	}
	body["livyInfo"] = info
	return body
}

func stmtBody(state, status string, payload map[string]any) map[string]any {
	output := map[string]any{"status": status}
	if payload != nil {
		output["data"] = map[string]any{"application/json": payload}
	}
	return map[string]any{"id": 0, "state": state, "output": output}
}
