package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func setAuthForTest(t *testing.T, a *authConfig) {
	t.Helper()
	prev := auth
	auth = a
	t.Cleanup(func() { auth = prev })
}

func callProtected(user, pass string, withCreds bool) (*httptest.ResponseRecorder, bool) {
	called := false
	handler := RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/overlay", nil)
	if withCreds {
		req.SetBasicAuth(user, pass)
	}
	w := httptest.NewRecorder()
	handler(w, req)
	return w, called
}

func TestAuthDisabled(t *testing.T) {
	setAuthForTest(t, &authConfig{enabled: false})

	if IsAuthEnabled() {
		t.Error("auth should be disabled")
	}
	w, called := callProtected("", "", false)
	if !called || w.Code != http.StatusOK {
		t.Errorf("handler should run when auth is disabled, got %d", w.Code)
	}
}

func TestAuthEnabled(t *testing.T) {
	setAuthForTest(t, &authConfig{user: "viewer", pass: "secret", enabled: true})

	tests := []struct {
		name      string
		user      string
		pass      string
		withCreds bool
		want      int
	}{
		{"no credentials", "", "", false, http.StatusUnauthorized},
		{"wrong password", "viewer", "nope", true, http.StatusUnauthorized},
		{"wrong user", "admin", "secret", true, http.StatusUnauthorized},
		{"valid", "viewer", "secret", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, called := callProtected(tt.user, tt.pass, tt.withCreds)
			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, w.Code)
			}
			if called != (tt.want == http.StatusOK) {
				t.Errorf("handler called = %v", called)
			}
			if tt.want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate header")
			}
		})
	}
}

func TestInitAuthFromEnv(t *testing.T) {
	setAuthForTest(t, nil)
	t.Setenv("PCASSIST_API_USER", "viewer")
	t.Setenv("PCASSIST_API_PASS", "")
	t.Setenv("PCASSIST_API_USER_FILE", "")

	passFile := filepath.Join(t.TempDir(), "pass")
	if err := os.WriteFile(passFile, []byte("from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PCASSIST_API_PASS_FILE", passFile)

	if err := InitAuth(); err != nil {
		t.Fatalf("InitAuth: %v", err)
	}
	if !IsAuthEnabled() {
		t.Fatal("auth should be enabled")
	}
	if w, _ := callProtected("viewer", "from-file", true); w.Code != http.StatusOK {
		t.Errorf("file password should authenticate, got %d", w.Code)
	}
}

func TestInitAuthOnlyUser(t *testing.T) {
	setAuthForTest(t, nil)
	t.Setenv("PCASSIST_API_USER", "viewer")
	t.Setenv("PCASSIST_API_PASS", "")
	t.Setenv("PCASSIST_API_USER_FILE", "")
	t.Setenv("PCASSIST_API_PASS_FILE", "")

	if err := InitAuth(); err != nil {
		t.Fatal(err)
	}
	if IsAuthEnabled() {
		t.Error("auth needs both user and password")
	}
}

func TestInitAuthUnreadableFile(t *testing.T) {
	setAuthForTest(t, nil)
	t.Setenv("PCASSIST_API_USER_FILE", filepath.Join(t.TempDir(), "missing"))

	if err := InitAuth(); err == nil {
		t.Error("expected error for unreadable secret file")
	}
}

func TestAuthBcryptPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	setAuthForTest(t, &authConfig{user: "viewer", pass: string(hash), enabled: true})

	if w, _ := callProtected("viewer", "secret", true); w.Code != http.StatusOK {
		t.Errorf("expected the plain password to match the hash, got %d", w.Code)
	}
	if w, _ := callProtected("viewer", string(hash), true); w.Code != http.StatusUnauthorized {
		t.Errorf("the hash itself must not be accepted, got %d", w.Code)
	}
	if w, _ := callProtected("admin", "secret", true); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong user must fail, got %d", w.Code)
	}
}
