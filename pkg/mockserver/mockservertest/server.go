package mockservertest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/getmockd/endpointkit/pkg/expectation"
	"github.com/getmockd/endpointkit/pkg/mockserver"
)

// ControlPrefix is where the REST API is mounted, as on a real MockServer.
const ControlPrefix = "/mockserver"

// maxBody caps the request bodies the fake reads.
const maxBody = 1 << 20

// Server is an in-process fake of the mock server REST API. Requests under
// ControlPrefix drive it; every other request is matched against the
// registered expectations and recorded.
type Server struct {
	t       testing.TB
	httpSrv *httptest.Server
	now     func() time.Time

	mu      sync.Mutex
	entries []*entry
	records []record
	seq     int
}

type entry struct {
	exp       expectation.Expectation
	seq       int
	expiresAt time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithClock replaces time.Now for time-to-live bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New starts a fake server. It is closed when the test finishes.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{t: t, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("PUT "+ControlPrefix+mockserver.PathExpectation, s.handleCreateExpectation)
	mux.HandleFunc("PUT "+ControlPrefix+mockserver.PathVerify, s.handleVerify)
	mux.HandleFunc("PUT "+ControlPrefix+mockserver.PathClear, s.handleClear)
	mux.HandleFunc("PUT "+ControlPrefix+mockserver.PathReset, s.handleReset)
	mux.HandleFunc("PUT "+ControlPrefix+mockserver.PathRetrieve, s.handleRetrieve)
	mux.HandleFunc("/", s.handleMocked)

	s.httpSrv = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// URL is the base URL for the code under test.
func (s *Server) URL() string {
	return s.httpSrv.URL
}

// ControlURL is the base URL for a mockserver.Client.
func (s *Server) ControlURL() string {
	return s.httpSrv.URL + ControlPrefix
}

// Client returns a mockserver.Client bound to this server.
func (s *Server) Client(opts ...mockserver.Option) *mockserver.Client {
	opts = append([]mockserver.Option{mockserver.WithHTTPClient(s.httpSrv.Client())}, opts...)
	return mockserver.New(s.ControlURL(), opts...)
}

// Close shuts the server down.
func (s *Server) Close() {
	s.httpSrv.Close()
}

// Expectations returns the active expectations, highest priority first.
func (s *Server) Expectations() []expectation.Expectation {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()
	out := make([]expectation.Expectation, 0, len(s.entries))
	for _, e := range s.sortedLocked() {
		out = append(out, e.exp)
	}
	return out
}

// RequestCount returns how many received requests match def.
func (s *Server) RequestCount(def expectation.RequestDefinition) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(def)
}

func (s *Server) handleCreateExpectation(w http.ResponseWriter, r *http.Request) {
	var req expectation.CreateExpectationRequest
	if !s.decode(w, r, &req) {
		return
	}

	exp := req.Expectation(uuid.NewString())
	if err := exp.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.seq++
	e := &entry{exp: exp, seq: s.seq}
	if d, bounded := exp.TimeToLive.Duration(); bounded {
		e.expiresAt = s.now().Add(d)
	}
	s.entries = append(s.entries, e)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, []expectation.Expectation{exp})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req expectation.VerifyExpectationRequest
	if !s.decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	count := s.countLocked(req.HTTPRequest)
	s.mu.Unlock()

	if req.Times.Allows(count) {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	msg := fmt.Sprintf("Request not found %s, expected: %s %s but was received %d times",
		req.Times, req.HTTPRequest.Method, req.HTTPRequest.Path, count)
	http.Error(w, msg, http.StatusNotAcceptable)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	def, ok := s.decodeOptionalDefinition(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if def == nil {
		s.entries = nil
		s.records = nil
		w.WriteHeader(http.StatusOK)
		return
	}

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.exp.HTTPRequest.Method != def.Method || e.exp.HTTPRequest.Path != def.Path {
			kept = append(kept, e)
		}
	}
	s.entries = kept

	records := s.records[:0]
	for _, rec := range s.records {
		if !matches(*def, rec) {
			records = append(records, rec)
		}
	}
	s.records = records
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.entries = nil
	s.records = nil
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	if t := r.URL.Query().Get("type"); t != "" && t != "REQUESTS" {
		http.Error(w, fmt.Sprintf("unsupported retrieve type %q", t), http.StatusBadRequest)
		return
	}
	def, ok := s.decodeOptionalDefinition(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	out := make([]expectation.RequestDefinition, 0, len(s.records))
	for _, rec := range s.records {
		if def == nil || matches(*def, rec) {
			out = append(out, rec.definition())
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMocked(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec := newRecord(r, body)

	s.mu.Lock()
	s.records = append(s.records, rec)
	s.expireLocked()
	var matched *entry
	for _, e := range s.sortedLocked() {
		if e.exhausted() {
			continue
		}
		if matches(e.exp.HTTPRequest, rec) {
			matched = e
			break
		}
	}
	var resp expectation.ResponseDefinition
	if matched != nil {
		resp = matched.exp.HTTPResponse
		s.consumeLocked(matched)
	}
	s.mu.Unlock()

	if matched == nil {
		http.NotFound(w, r)
		return
	}
	for name, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != nil {
		_, _ = io.WriteString(w, *resp.Body)
	}
}

func (e *entry) exhausted() bool {
	t := e.exp.Times
	return !t.Unlimited && t.RemainingTimes != nil && *t.RemainingTimes <= 0
}

// sortedLocked orders entries by priority, then registration order.
func (s *Server) sortedLocked() []*entry {
	sorted := make([]*entry, len(s.entries))
	copy(sorted, s.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].exp.Priority != sorted[j].exp.Priority {
			return sorted[i].exp.Priority > sorted[j].exp.Priority
		}
		return sorted[i].seq < sorted[j].seq
	})
	return sorted
}

// consumeLocked decrements the remaining count and drops exhausted entries.
func (s *Server) consumeLocked(e *entry) {
	if e.exp.Times.Unlimited || e.exp.Times.RemainingTimes == nil {
		return
	}
	remaining := *e.exp.Times.RemainingTimes - 1
	e.exp.Times.RemainingTimes = &remaining
	if remaining <= 0 {
		s.removeLocked(e)
	}
}

func (s *Server) expireLocked() {
	now := s.now()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.expiresAt.IsZero() || now.Before(e.expiresAt) {
			kept = append(kept, e)
		}
	}
	s.entries = kept
}

func (s *Server) removeLocked(target *entry) {
	for i, e := range s.entries {
		if e == target {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

func (s *Server) countLocked(def expectation.RequestDefinition) int {
	count := 0
	for _, rec := range s.records {
		if matches(def, rec) {
			count++
		}
	}
	return count
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err == nil {
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		var decErr *expectation.DecodeError
		if !errors.As(err, &decErr) {
			s.t.Logf("mockservertest: malformed control request to %s: %v", r.URL.Path, err)
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) decodeOptionalDefinition(w http.ResponseWriter, r *http.Request) (*expectation.RequestDefinition, bool) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, true
	}
	var def expectation.RequestDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return &def, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
