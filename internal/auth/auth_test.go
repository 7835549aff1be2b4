package auth

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunegate/internal/models"
	"github.com/desertthunder/tunegate/internal/repositories"
	"github.com/desertthunder/tunegate/internal/shared"
	tu "github.com/desertthunder/tunegate/internal/testing"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	hashCost = bcrypt.MinCost
}

type fakeExchanger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeExchanger) ExchangeCode(ctx context.Context, code, verifier string) (*models.ProviderTokenState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.ProviderTokenState{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type fixture struct {
	settings  *repositories.SettingsRepository
	sessions  *repositories.GuestSessionRepository
	manager   *SessionManager
	service   *Service
	exchanger *fakeExchanger
	clock     *tu.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := tu.NewTestDB(t)

	f := &fixture{
		settings:  repositories.NewSettingsRepository(db),
		sessions:  repositories.NewGuestSessionRepository(db),
		exchanger: &fakeExchanger{},
		clock:     tu.NewClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
	}

	manager, err := NewSessionManager(f.sessions, SessionOptions{Secret: []byte("test-secret"), Now: f.clock.Now})
	if err != nil {
		t.Fatalf("NewSessionManager() error = %v", err)
	}
	f.manager = manager
	f.service = NewService(f.settings, manager, f.exchanger, log.New(io.Discard))
	return f
}

func TestPKCE(t *testing.T) {
	t.Run("verifier is alphanumeric with requested length", func(t *testing.T) {
		for _, n := range []int{0, 43, 64, 128} {
			v, err := GenerateVerifier(n)
			if err != nil {
				t.Fatalf("GenerateVerifier(%d) error = %v", n, err)
			}

			want := n
			if n == 0 {
				want = DefaultVerifierLength
			}
			if len(v) != want {
				t.Errorf("GenerateVerifier(%d) length = %d, want %d", n, len(v), want)
			}
			for _, c := range v {
				if !strings.ContainsRune(verifierAlphabet, c) {
					t.Fatalf("verifier contains %q", c)
				}
			}
		}
	})

	t.Run("rejects out of range lengths", func(t *testing.T) {
		for _, n := range []int{42, 129} {
			if _, err := GenerateVerifier(n); err == nil {
				t.Errorf("GenerateVerifier(%d) expected error", n)
			}
		}
	})

	t.Run("verifiers differ", func(t *testing.T) {
		a, _ := GenerateVerifier(64)
		b, _ := GenerateVerifier(64)
		if a == b {
			t.Error("two verifiers are equal")
		}
	})

	t.Run("rejection sampling skips biased bytes", func(t *testing.T) {
		orig := randRead
		t.Cleanup(func() { randRead = orig })

		randRead = func(b []byte) (int, error) {
			for i := range b {
				if i%2 == 0 {
					b[i] = 255
				} else {
					b[i] = 0
				}
			}
			return len(b), nil
		}

		v, err := GenerateVerifier(43)
		if err != nil {
			t.Fatalf("GenerateVerifier() error = %v", err)
		}
		if v != strings.Repeat("A", 43) {
			t.Errorf("GenerateVerifier() = %q, want only index 0", v)
		}
	})

	t.Run("random source failure", func(t *testing.T) {
		orig := randRead
		t.Cleanup(func() { randRead = orig })
		randRead = func([]byte) (int, error) { return 0, errors.New("entropy gone") }

		if _, err := GenerateVerifier(64); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("RFC 7636 appendix B vector", func(t *testing.T) {
		got := DeriveChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
		if want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"; got != want {
			t.Errorf("DeriveChallenge() = %q, want %q", got, want)
		}
	})

	t.Run("NewPKCE", func(t *testing.T) {
		p, err := NewPKCE()
		if err != nil {
			t.Fatalf("NewPKCE() error = %v", err)
		}
		if p.Method != "S256" || p.Challenge != DeriveChallenge(p.Verifier) {
			t.Errorf("NewPKCE() = %+v", p)
		}
		if strings.ContainsAny(p.Challenge, "+/=") {
			t.Errorf("challenge is not base64url without padding: %q", p.Challenge)
		}
	})
}

func TestPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("hash and verify", func(t *testing.T) {
		hash, err := HashPassword("correct horse")
		if err != nil {
			t.Fatalf("HashPassword() error = %v", err)
		}
		if hash == "correct horse" {
			t.Fatal("hash equals plaintext")
		}
		if !VerifyPassword("correct horse", hash) {
			t.Error("VerifyPassword() = false for the right password")
		}
		if VerifyPassword("wrong horse", hash) {
			t.Error("VerifyPassword() = true for the wrong password")
		}

		again, _ := HashPassword("correct horse")
		if again == hash {
			t.Error("hashes are not salted")
		}
	})

	t.Run("validate lengths", func(t *testing.T) {
		tests := []struct {
			in      string
			wantErr bool
		}{
			{"short", true},
			{"1234567", true},
			{"12345678", false},
			{strings.Repeat("x", 72), false},
			{strings.Repeat("x", 73), true},
			{"日本語", true},
			{"日本語のパスワード", false},
			{strings.Repeat("é", 36), false},
			{strings.Repeat("é", 37), true},
		}
		for _, tt := range tests {
			err := ValidatePassword(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePassword(len %d) error = %v, wantErr %v", len(tt.in), err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, shared.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		}
	})

	t.Run("check without a stored hash", func(t *testing.T) {
		f := newFixture(t)
		err := f.service.Passwords.Check(ctx, "anything1")
		if !errors.Is(err, shared.ErrConfiguration) {
			t.Errorf("Check() error = %v, want ErrConfiguration", err)
		}
	})

	t.Run("set then check", func(t *testing.T) {
		f := newFixture(t)
		p := f.service.Passwords
		if err := p.Set(ctx, "hunter22!"); err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		stored, _, _ := f.settings.Get(ctx, models.KeySitePasswordHash)
		if stored == "hunter22!" || !strings.HasPrefix(stored, "$2") {
			t.Errorf("stored value is not a bcrypt hash: %q", stored)
		}

		if err := p.Check(ctx, "hunter22!"); err != nil {
			t.Errorf("Check() error = %v", err)
		}
		if err := p.Check(ctx, "hunter23!"); !errors.Is(err, shared.ErrAuth) {
			t.Errorf("Check() error = %v, want ErrAuth", err)
		}
	})

	t.Run("set rejects short password", func(t *testing.T) {
		f := newFixture(t)
		if err := f.service.Passwords.Set(ctx, "short"); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("Set() error = %v, want ErrValidation", err)
		}
	})

	t.Run("change", func(t *testing.T) {
		f := newFixture(t)
		p := f.service.Passwords
		if err := p.Set(ctx, "original-pw"); err != nil {
			t.Fatal(err)
		}

		if err := p.Change(ctx, "", "new-password"); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("missing current: got %v", err)
		}
		if err := p.Change(ctx, "original-pw", "short"); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("short new: got %v", err)
		}
		if err := p.Change(ctx, "original-pw", "日本語"); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("short multibyte new: got %v", err)
		}
		if err := p.Change(ctx, "wrong-pw-xx", "new-password"); !errors.Is(err, shared.ErrAuth) {
			t.Errorf("wrong current: got %v", err)
		}
		if err := p.Check(ctx, "original-pw"); err != nil {
			t.Errorf("password changed after failed attempts: %v", err)
		}

		if err := p.Change(ctx, "original-pw", "new-password"); err != nil {
			t.Fatalf("Change() error = %v", err)
		}
		if err := p.Check(ctx, "new-password"); err != nil {
			t.Errorf("new password rejected: %v", err)
		}
		if err := p.Check(ctx, "original-pw"); !errors.Is(err, shared.ErrAuth) {
			t.Errorf("old password still accepted: %v", err)
		}
	})
}

func TestSessionManager(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a secret", func(t *testing.T) {
		if _, err := NewSessionManager(nil, SessionOptions{}); !errors.Is(err, shared.ErrConfiguration) {
			t.Errorf("expected ErrConfiguration, got %v", err)
		}
	})

	t.Run("default ttl", func(t *testing.T) {
		f := newFixture(t)
		if f.manager.TTL() != DefaultSessionTTL {
			t.Errorf("TTL() = %v, want %v", f.manager.TTL(), DefaultSessionTTL)
		}
	})

	t.Run("issue then validate", func(t *testing.T) {
		f := newFixture(t)
		s, err := f.manager.Issue(ctx)
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if got := s.ExpiresAt.Sub(s.CreatedAt); got != DefaultSessionTTL {
			t.Errorf("expires_at - created_at = %v, want %v", got, DefaultSessionTTL)
		}

		claims, err := f.manager.ParseToken(s.Token)
		if err != nil {
			t.Fatalf("ParseToken() error = %v", err)
		}
		if claims.Type != "guest" || claims.ID != s.ID {
			t.Errorf("claims = %+v", claims)
		}

		got, err := f.manager.Validate(ctx, s.Token)
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if got.ID != s.ID {
			t.Errorf("Validate() id = %s, want %s", got.ID, s.ID)
		}
	})

	t.Run("tokens are unique", func(t *testing.T) {
		f := newFixture(t)
		a, _ := f.manager.Issue(ctx)
		b, _ := f.manager.Issue(ctx)
		if a.Token == b.Token {
			t.Error("two sessions share a token")
		}
	})

	t.Run("expired session is rejected", func(t *testing.T) {
		f := newFixture(t)
		s, _ := f.manager.Issue(ctx)

		f.clock.Advance(DefaultSessionTTL - time.Second)
		if _, err := f.manager.Validate(ctx, s.Token); err != nil {
			t.Fatalf("Validate() before expiry error = %v", err)
		}

		f.clock.Advance(time.Second)
		if _, err := f.manager.Validate(ctx, s.Token); !errors.Is(err, shared.ErrAuth) {
			t.Errorf("Validate() at expiry error = %v, want ErrAuth", err)
		}
	})

	t.Run("well formed token without a row", func(t *testing.T) {
		f := newFixture(t)
		s, _ := f.manager.Issue(ctx)
		if err := f.manager.Revoke(ctx, s.Token); err != nil {
			t.Fatal(err)
		}
		if _, err := f.manager.ParseToken(s.Token); err != nil {
			t.Fatalf("ParseToken() error = %v", err)
		}
		if _, err := f.manager.Validate(ctx, s.Token); !errors.Is(err, shared.ErrAuth) {
			t.Errorf("Validate() error = %v, want ErrAuth", err)
		}
	})

	t.Run("malformed and foreign tokens", func(t *testing.T) {
		f := newFixture(t)
		s, _ := f.manager.Issue(ctx)

		other, _ := NewSessionManager(f.sessions, SessionOptions{Secret: []byte("other"), Now: f.clock.Now})
		foreign, _ := other.Issue(ctx)

		for name, token := range map[string]string{
			"empty":     "",
			"garbage":   "not-a-token",
			"tampered":  s.Token + "x",
			"wrong key": foreign.Token,
			"alg none":  "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJ0eXBlIjoiZ3Vlc3QiLCJqdGkiOiJ4In0.",
		} {
			if _, err := f.manager.Validate(ctx, token); !errors.Is(err, shared.ErrAuth) {
				t.Errorf("%s: Validate() error = %v, want ErrAuth", name, err)
			}
		}
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		f := newFixture(t)
		s, _ := f.manager.Issue(ctx)
		for range 2 {
			if err := f.manager.Revoke(ctx, s.Token); err != nil {
				t.Errorf("Revoke() error = %v", err)
			}
		}
		if err := f.manager.Revoke(ctx, ""); err != nil {
			t.Errorf("Revoke(\"\") error = %v", err)
		}
	})

	t.Run("touch updates last used", func(t *testing.T) {
		f := newFixture(t)
		s, _ := f.manager.Issue(ctx)
		f.clock.Advance(time.Minute)

		if err := f.manager.Touch(ctx, s.Token); err != nil {
			t.Fatalf("Touch() error = %v", err)
		}
		got, _ := f.manager.Validate(ctx, s.Token)
		if !got.LastUsedAt.Equal(s.CreatedAt.Add(time.Minute)) {
			t.Errorf("last_used_at = %v, want %v", got.LastUsedAt, s.CreatedAt.Add(time.Minute))
		}
	})

	t.Run("sweep removes only expired rows", func(t *testing.T) {
		f := newFixture(t)
		old, _ := f.manager.Issue(ctx)
		f.clock.Advance(DefaultSessionTTL / 2)
		fresh, _ := f.manager.Issue(ctx)
		f.clock.Advance(DefaultSessionTTL/2 + time.Second)

		n, err := f.manager.SweepExpired(ctx)
		if err != nil {
			t.Fatalf("SweepExpired() error = %v", err)
		}
		if n != 1 {
			t.Errorf("SweepExpired() = %d, want 1", n)
		}
		if _, err := f.manager.Validate(ctx, old.Token); err == nil {
			t.Error("expired session still valid")
		}
		if _, err := f.manager.Validate(ctx, fresh.Token); err != nil {
			t.Errorf("live session rejected: %v", err)
		}
	})
}

func TestSetupGate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	gate := f.service.Gate

	state, err := gate.State(ctx)
	if err != nil || state != models.NotConfigured {
		t.Fatalf("State() = %v, %v; want NotConfigured", state, err)
	}
	if err := gate.Require(ctx, models.NotConfigured); err != nil {
		t.Errorf("Require(NotConfigured) error = %v", err)
	}
	if err := gate.Require(ctx, models.Configured); !errors.Is(err, shared.ErrState) {
		t.Errorf("Require(Configured) error = %v, want ErrState", err)
	}

	if err := gate.Complete(ctx); err != nil {
		t.Fatal(err)
	}

	done, err := gate.IsSetupComplete(ctx)
	if err != nil || !done {
		t.Errorf("IsSetupComplete() = %v, %v", done, err)
	}
	if err := gate.Require(ctx, models.NotConfigured); !errors.Is(err, shared.ErrState) {
		t.Errorf("Require(NotConfigured) after completion error = %v, want ErrState", err)
	}

	t.Run("flag presence alone configures", func(t *testing.T) {
		f := newFixture(t)
		if err := f.settings.Set(ctx, models.KeyAdminSetupComplete, "1"); err != nil {
			t.Fatal(err)
		}

		state, err := f.service.Gate.State(ctx)
		if err != nil || state != models.Configured {
			t.Errorf("State() = %v, %v; want Configured", state, err)
		}
	})
}

func TestService(t *testing.T) {
	ctx := context.Background()
	valid := SetupRequest{Code: "code", CodeVerifier: "verifier", SitePassword: "site-password"}

	t.Run("complete setup", func(t *testing.T) {
		f := newFixture(t)
		if err := f.service.CompleteSetup(ctx, valid); err != nil {
			t.Fatalf("CompleteSetup() error = %v", err)
		}

		done, _ := f.service.Gate.IsSetupComplete(ctx)
		if !done {
			t.Error("setup not marked complete")
		}
		if err := f.service.Passwords.Check(ctx, "site-password"); err != nil {
			t.Errorf("password not stored: %v", err)
		}

		err := f.service.CompleteSetup(ctx, valid)
		if !errors.Is(err, shared.ErrState) {
			t.Errorf("second CompleteSetup() error = %v, want ErrState", err)
		}
		if f.exchanger.calls != 1 {
			t.Errorf("exchanger called %d times, want 1", f.exchanger.calls)
		}
	})

	t.Run("validation happens before exchange", func(t *testing.T) {
		tests := []struct {
			name string
			req  SetupRequest
		}{
			{"missing code", SetupRequest{CodeVerifier: "v", SitePassword: "site-password"}},
			{"missing verifier", SetupRequest{Code: "c", SitePassword: "site-password"}},
			{"missing password", SetupRequest{Code: "c", CodeVerifier: "v"}},
			{"short password", SetupRequest{Code: "c", CodeVerifier: "v", SitePassword: "short"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture(t)
				if err := f.service.CompleteSetup(ctx, tt.req); !errors.Is(err, shared.ErrValidation) {
					t.Errorf("CompleteSetup() error = %v, want ErrValidation", err)
				}
				if f.exchanger.calls != 0 {
					t.Error("exchanger was called")
				}
			})
		}
	})

	t.Run("exchange failure leaves setup incomplete", func(t *testing.T) {
		f := newFixture(t)
		f.exchanger.err = &shared.UpstreamError{StatusCode: 400, Body: []byte(`{"error":"invalid_grant"}`)}

		err := f.service.CompleteSetup(ctx, valid)
		var upstream *shared.UpstreamError
		if !errors.As(err, &upstream) || upstream.StatusCode != 400 {
			t.Fatalf("CompleteSetup() error = %v, want upstream 400", err)
		}

		done, _ := f.service.Gate.IsSetupComplete(ctx)
		if done {
			t.Error("setup marked complete after failed exchange")
		}
		if ok, _ := f.settings.Exists(ctx, models.KeySitePasswordHash); ok {
			t.Error("password stored after failed exchange")
		}
	})

	t.Run("login and logout", func(t *testing.T) {
		f := newFixture(t)
		if err := f.service.CompleteSetup(ctx, valid); err != nil {
			t.Fatal(err)
		}

		if _, err := f.service.Login(ctx, ""); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("Login(\"\") error = %v, want ErrValidation", err)
		}
		if _, err := f.service.Login(ctx, "wrong-password"); !errors.Is(err, shared.ErrAuth) {
			t.Errorf("Login(wrong) error = %v, want ErrAuth", err)
		}

		s, err := f.service.Login(ctx, "site-password")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if _, err := f.manager.Validate(ctx, s.Token); err != nil {
			t.Errorf("issued token invalid: %v", err)
		}

		if err := f.service.Logout(ctx, s.Token); err != nil {
			t.Fatal(err)
		}
		if _, err := f.manager.Validate(ctx, s.Token); !errors.Is(err, shared.ErrAuth) {
			t.Errorf("token valid after logout: %v", err)
		}
		if err := f.service.Logout(ctx, s.Token); err != nil {
			t.Errorf("second Logout() error = %v", err)
		}
	})

	t.Run("login sweeps expired sessions", func(t *testing.T) {
		f := newFixture(t)
		if err := f.service.CompleteSetup(ctx, valid); err != nil {
			t.Fatal(err)
		}
		old, _ := f.service.Login(ctx, "site-password")
		f.clock.Advance(DefaultSessionTTL + time.Second)

		if _, err := f.service.Login(ctx, "site-password"); err != nil {
			t.Fatal(err)
		}
		if _, err := f.sessions.Get(ctx, old.Token, old.CreatedAt); !errors.Is(err, models.ErrSessionNotFound) {
			t.Errorf("expired row not swept: %v", err)
		}
		n, _ := f.sessions.CountLive(ctx, f.clock.Now())
		if n != 1 {
			t.Errorf("live sessions = %d, want 1", n)
		}
	})

	t.Run("change password", func(t *testing.T) {
		f := newFixture(t)
		if err := f.service.CompleteSetup(ctx, valid); err != nil {
			t.Fatal(err)
		}
		if err := f.service.ChangePassword(ctx, "site-password", "another-one"); err != nil {
			t.Fatalf("ChangePassword() error = %v", err)
		}
		if _, err := f.service.Login(ctx, "another-one"); err != nil {
			t.Errorf("login with new password failed: %v", err)
		}
	})
}
