// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/tunegate/internal/shared"
)

// NewTestDB opens a migrated in-memory database that is closed when the test ends.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a [Clock] frozen at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// FakeProvider is an httptest server standing in for the Spotify accounts and Web API hosts.
//
// Token requests are served on /api/token and API requests on /v1/.
type FakeProvider struct {
	*httptest.Server

	mu sync.Mutex

	// token endpoint behavior
	TokenStatus      int
	TokenBody        string
	AccessToken      string
	RefreshToken     string
	OmitRefreshToken bool
	ExpiresIn        int
	RefreshDelay     time.Duration

	// API behavior
	APIStatus int
	APIBody   string

	Exchanges     atomic.Int32
	Refreshes     atomic.Int32
	LastForm      map[string]string
	LastAPIAuth   string
	LastAPIMethod string
	LastAPIPath   string
	LastAPIQuery  string
	LastAPIBody   string
}

// NewFakeProvider starts a [FakeProvider] that is closed when the test ends.
func NewFakeProvider(t *testing.T) *FakeProvider {
	t.Helper()

	p := &FakeProvider{
		TokenStatus:  http.StatusOK,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresIn:    3600,
		APIStatus:    http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token", p.handleToken)
	mux.HandleFunc("/v1/", p.handleAPI)

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

// TokenURL is the token endpoint.
func (p *FakeProvider) TokenURL() string { return p.URL + "/api/token" }

// AuthURL is the authorization endpoint. Nothing serves it.
func (p *FakeProvider) AuthURL() string { return p.URL + "/authorize" }

// APIBaseURL is the Web API base.
func (p *FakeProvider) APIBaseURL() string { return p.URL + "/v1" }

// Form returns a copy of the last token request's form.
func (p *FakeProvider) Form() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.LastForm))
	for k, v := range p.LastForm {
		out[k] = v
	}
	return out
}

func (p *FakeProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.LastForm = make(map[string]string)
	for k := range r.PostForm {
		p.LastForm[k] = r.PostForm.Get(k)
	}
	status, body := p.TokenStatus, p.TokenBody
	access, refresh, expiresIn := p.AccessToken, p.RefreshToken, p.ExpiresIn
	omit, delay := p.OmitRefreshToken, p.RefreshDelay
	p.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		p.Exchanges.Add(1)
	case "refresh_token":
		p.Refreshes.Add(1)
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		if body == "" {
			body = `{"error":"invalid_grant","error_description":"Invalid authorization code"}`
		}
		io.WriteString(w, body)
		return
	}

	resp := map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
		"scope":        "user-read-private",
	}
	if !omit {
		resp["refresh_token"] = refresh
	}
	json.NewEncoder(w).Encode(resp)
}

func (p *FakeProvider) handleAPI(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)

	p.mu.Lock()
	p.LastAPIAuth = r.Header.Get("Authorization")
	p.LastAPIMethod = r.Method
	p.LastAPIPath = strings.TrimPrefix(r.URL.Path, "/v1")
	p.LastAPIQuery = r.URL.RawQuery
	p.LastAPIBody = string(data)
	status, body := p.APIStatus, p.APIBody
	p.mu.Unlock()

	if body == "" {
		out, _ := json.Marshal(map[string]string{"path": strings.TrimPrefix(r.URL.Path, "/v1"), "query": r.URL.RawQuery})
		body = string(out)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

// Configure mutates the provider's behavior under its lock.
func (p *FakeProvider) Configure(fn func(p *FakeProvider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

// SetToken changes the token endpoint behavior under the provider's lock.
func (p *FakeProvider) SetToken(status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TokenStatus, p.TokenBody = status, body
}

// SetAPI changes the API response under the provider's lock.
func (p *FakeProvider) SetAPI(status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.APIStatus, p.APIBody = status, body
}

// LastAPIRequest returns the last API request's auth header, method, path, query, and body.
func (p *FakeProvider) LastAPIRequest() (auth, method, path, query, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.LastAPIAuth, p.LastAPIMethod, p.LastAPIPath, p.LastAPIQuery, p.LastAPIBody
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
