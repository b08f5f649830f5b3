package policy_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/grantrelay/delivery"
	"github.com/xraph/grantrelay/event"
	"github.com/xraph/grantrelay/id"
	"github.com/xraph/grantrelay/policy"
)

// policyServer is a minimal in-memory policy backend.
type policyServer struct {
	mu     sync.Mutex
	users  map[string]bool
	grants map[string]bool
	auth   []string
	down   bool
}

func newPolicyServer() *policyServer {
	return &policyServer{users: make(map[string]bool), grants: make(map[string]bool)}
}

func (s *policyServer) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *policyServer) hasUser(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[key]
}

func (s *policyServer) firstAuth() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.auth) == 0 {
		return ""
	}
	return s.auth[0]
}

func (s *policyServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = append(s.auth, r.Header.Get("Authorization"))

	if s.down {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "users":
		var body struct{ Key string }
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Key == "" {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		if s.users[body.Key] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		s.users[body.Key] = true
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "roles":
		var body struct{ Role, Tenant string }
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		if !s.users[parts[1]] {
			http.Error(w, "no such user", http.StatusUnprocessableEntity)
			return
		}
		g := parts[1] + "/" + body.Role + "/" + body.Tenant
		if s.grants[g] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		s.grants[g] = true
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodDelete && len(parts) == 2 && parts[0] == "users":
		if !s.users[parts[1]] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(s.users, parts[1])
		w.WriteHeader(http.StatusNoContent)

	default:
		http.NotFound(w, r)
	}
}

func setup(t *testing.T, opts ...policy.Option) (*policyServer, *policy.Client) {
	t.Helper()
	ps := newPolicyServer()
	srv := httptest.NewServer(ps)
	t.Cleanup(srv.Close)

	c, err := policy.New(srv.URL+"/", "s3cret", opts...)
	if err != nil {
		t.Fatal(err)
	}
	return ps, c
}

func TestCreatePrincipal(t *testing.T) {
	ps, c := setup(t)
	ctx := context.Background()

	if err := c.CreatePrincipal(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := c.CreatePrincipal(ctx, "alice"); !errors.Is(err, delivery.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if got := ps.firstAuth(); got != "Bearer s3cret" {
		t.Fatalf("expected bearer credential, got %q", got)
	}
}

func TestAssignRole(t *testing.T) {
	_, c := setup(t)
	ctx := context.Background()

	if err := c.CreatePrincipal(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := c.AssignRole(ctx, "alice", "admin", "default"); err != nil {
		t.Fatal(err)
	}
	if err := c.AssignRole(ctx, "alice", "admin", "default"); !errors.Is(err, delivery.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestRemovePrincipal(t *testing.T) {
	_, c := setup(t)
	ctx := context.Background()

	if err := c.RemovePrincipal(ctx, "bob"); !errors.Is(err, delivery.ErrAlreadyAbsent) {
		t.Fatalf("expected ErrAlreadyAbsent, got %v", err)
	}
	if err := c.CreatePrincipal(ctx, "bob"); err != nil {
		t.Fatal(err)
	}
	if err := c.RemovePrincipal(ctx, "bob"); err != nil {
		t.Fatal(err)
	}
}

func TestUnexpectedStatus(t *testing.T) {
	ps, c := setup(t)
	ps.setDown(true)

	err := c.CreatePrincipal(context.Background(), "alice")
	var se *policy.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusServiceUnavailable || se.Body != "maintenance" {
		t.Fatalf("unexpected status error %+v", se)
	}
}

func TestErrorBodyIsCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	c, err := policy.New(srv.URL, "")
	if err != nil {
		t.Fatal(err)
	}
	err = c.RemovePrincipal(context.Background(), "alice")
	var se *policy.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if len(se.Body) != 1024 {
		t.Fatalf("expected 1KB body, got %d bytes", len(se.Body))
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c, err := policy.New(srv.URL, "", policy.WithTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.CreatePrincipal(context.Background(), "alice"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := policy.New("ftp://policy.internal", "t"); err == nil {
		t.Fatal("expected error for non-http scheme")
	}
	if _, err := policy.New("://nope", "t"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestClientRateLimit(t *testing.T) {
	ps, c := setup(t, policy.WithRateLimit(1))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := c.CreatePrincipal(ctx, "alice"); err != nil {
		t.Fatalf("first call should pass the full bucket: %v", err)
	}
	err := c.CreatePrincipal(ctx, "bob")
	if err == nil || !strings.Contains(err.Error(), "rate limit") {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if ps.hasUser("bob") {
		t.Fatal("throttled call must not reach the backend")
	}
}

func TestClientUnlimitedByDefault(t *testing.T) {
	_, c := setup(t)
	ctx := context.Background()
	for i := range 50 {
		if err := c.CreatePrincipal(ctx, fmt.Sprintf("user-%d", i)); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}

// The client plugs straight into the deliverer; a full apply then retract
// round trip leaves the backend clean and repeated delivery stays successful.
func TestClientAsBackend(t *testing.T) {
	ps, c := setup(t, policy.WithRateLimit(100))
	d := delivery.NewDeliverer(c)
	ctx := context.Background()

	apply := &event.Record{ID: id.NewRecordID(), Operation: event.OpApplyGrant, Principal: "alice", Role: "member", Tenant: "default"}
	for range 2 {
		if res := d.Deliver(ctx, apply); res.Outcome != delivery.Delivered {
			t.Fatalf("apply: expected Delivered, got %s (%v)", res.Outcome, res.Err)
		}
	}

	retract := &event.Record{ID: id.NewRecordID(), Operation: event.OpRetractGrant, Principal: "alice", Tenant: "default"}
	for range 2 {
		if res := d.Deliver(ctx, retract); res.Outcome != delivery.Delivered {
			t.Fatalf("retract: expected Delivered, got %s (%v)", res.Outcome, res.Err)
		}
	}

	ps.setDown(true)
	if res := d.Deliver(ctx, apply); res.Outcome != delivery.Retry {
		t.Fatalf("expected Retry while backend is down, got %s", res.Outcome)
	}
}
