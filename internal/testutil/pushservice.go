package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// RecordedRequest is one POST received by the fake push service.
type RecordedRequest struct {
	Path   string
	Header http.Header
	Body   []byte
}

// PushService is an httptest server that records push requests and answers
// with a per-path status (201 by default).
type PushService struct {
	*httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
	status   map[string]int
	hook     func(*http.Request)
}

func NewPushService(t testing.TB) *PushService {
	t.Helper()
	p := &PushService{status: make(map[string]int)}
	p.Server = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.Close)
	return p
}

// Endpoint returns a subscription endpoint URL served by this fake.
func (p *PushService) Endpoint(id string) string {
	return p.URL + "/push/" + id
}

// RespondWith makes requests to the endpoint for id answer with status.
func (p *PushService) RespondWith(id string, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status["/push/"+id] = status
}

// OnRequest runs fn for every request before the response is written.
func (p *PushService) OnRequest(fn func(*http.Request)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hook = fn
}

// Requests returns a copy of everything received so far.
func (p *PushService) Requests() []RecordedRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]RecordedRequest(nil), p.requests...)
}

// RequestsTo filters Requests by endpoint id.
func (p *PushService) RequestsTo(id string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range p.Requests() {
		if r.Path == "/push/"+id {
			out = append(out, r)
		}
	}
	return out
}

func (p *PushService) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	p.mu.Lock()
	p.requests = append(p.requests, RecordedRequest{Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
	status, ok := p.status[r.URL.Path]
	hook := p.hook
	p.mu.Unlock()

	if hook != nil {
		hook(r)
	}

	if !ok {
		status = http.StatusCreated
	}
	w.WriteHeader(status)
	if status >= 300 {
		_, _ = io.WriteString(w, strings.ToLower(http.StatusText(status)))
	}
}
