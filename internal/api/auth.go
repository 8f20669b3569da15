package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/AaronLay10/pcassist/internal/config"
)

// authConfig holds the viewer credentials.
type authConfig struct {
	user    string
	pass    string
	enabled bool
}

var auth *authConfig

// InitAuth loads credentials from PCASSIST_API_USER and PCASSIST_API_PASS
// (or their *_FILE variants). The password may be given as a bcrypt hash.
// If either is unset, authentication is disabled.
func InitAuth() error {
	user, err := config.ResolveSecret(config.EnvAPIUser)
	if err != nil {
		return fmt.Errorf("api auth: %w", err)
	}
	pass, err := config.ResolveSecret(config.EnvAPIPass)
	if err != nil {
		return fmt.Errorf("api auth: %w", err)
	}

	auth = &authConfig{
		user:    user,
		pass:    pass,
		enabled: user != "" && pass != "",
	}
	return nil
}

// IsAuthEnabled returns true if authentication is configured.
func IsAuthEnabled() bool {
	return auth != nil && auth.enabled
}

// authenticate checks basic auth credentials.
func authenticate(r *http.Request) bool {
	if !IsAuthEnabled() {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	// Evaluate both so a wrong user name takes as long as a wrong password.
	userOK := secureCompare(user, auth.user)
	passOK := checkPassword(pass, auth.pass)
	return userOK && passOK
}

// isBcryptHash reports whether a configured password is a bcrypt hash
// rather than the password itself.
func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// checkPassword compares against a bcrypt hash when one is configured, so
// PCASSIST_API_PASS need not hold the plain password.
func checkPassword(given, configured string) bool {
	if isBcryptHash(configured) {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(given)) == nil
	}
	return secureCompare(given, configured)
}

// secureCompare performs constant-time string comparison.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RequireAuth wraps a handler with basic auth.
func RequireAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="pcassist"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}
}
