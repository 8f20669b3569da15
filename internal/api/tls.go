package api

import (
	"crypto/tls"
	"fmt"
	"os"
)

const (
	envTLSCert = "PCASSIST_TLS_CERT"
	envTLSKey  = "PCASSIST_TLS_KEY"
)

// serverTLS is the listener configuration, nil when serving plain HTTP.
var serverTLS *tls.Config

// InitTLS loads the certificate named by PCASSIST_TLS_CERT and
// PCASSIST_TLS_KEY. Neither set means plain HTTP. Setting only one, or
// naming files that do not hold a key pair, is an error so a broken mount
// fails at startup instead of on the first connection.
func InitTLS() error {
	serverTLS = nil
	certFile, keyFile := os.Getenv(envTLSCert), os.Getenv(envTLSKey)
	switch {
	case certFile == "" && keyFile == "":
		return nil
	case certFile == "" || keyFile == "":
		return fmt.Errorf("api tls: %s and %s must be set together", envTLSCert, envTLSKey)
	}

	cfg, err := loadTLS(certFile, keyFile)
	if err != nil {
		return err
	}
	serverTLS = cfg
	return nil
}

func loadTLS(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("api tls: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// IsTLSEnabled reports whether Serve will listen with TLS.
func IsTLSEnabled() bool {
	return serverTLS != nil
}

func setTLSForTest(cfg *tls.Config) {
	serverTLS = cfg
}
