package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Each secret may also be given as a file path in <NAME>_FILE, which wins
// over the plain variable. This is how Docker and Kubernetes mount them.
const secretFileSuffix = "_FILE"

// Environment variables holding credentials.
const (
	EnvMQTTPassword     = "PCASSIST_MQTT_PASSWORD"
	EnvPostgresPassword = "PGPASSWORD"
	EnvAPIUser          = "PCASSIST_API_USER"
	EnvAPIPass          = "PCASSIST_API_PASS"
)

// ResolveSecret returns the value of name, read from the file in
// name_FILE when that is set. Surrounding whitespace is trimmed from file
// contents. Neither set yields "".
func ResolveSecret(name string) (string, error) {
	path := os.Getenv(name + secretFileSuffix)
	if path == "" {
		return os.Getenv(name), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		// Name the variable, never the content.
		return "", fmt.Errorf("secret %s%s: %w", name, secretFileSuffix, err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Secrets are the credentials one run may need.
type Secrets struct {
	MQTTPassword string
	APIUser      string
	APIPass      string
}

// LoadSecrets resolves every credential at once so a bad mount is reported
// together with any other before the run starts.
func LoadSecrets() (Secrets, error) {
	var s Secrets
	var errs []error
	for name, dst := range map[string]*string{
		EnvMQTTPassword: &s.MQTTPassword,
		EnvAPIUser:      &s.APIUser,
		EnvAPIPass:      &s.APIPass,
	} {
		v, err := ResolveSecret(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*dst = v
	}
	return s, errors.Join(errs...)
}
