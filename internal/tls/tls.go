// Package tls builds the server-side TLS configuration for the job API.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	certName = "tls.crt"
	keyName  = "tls.key"
)

// Config is the [server.tls] table.
type Config struct {
	Enabled      bool     `mapstructure:"enabled"`
	CertFile     string   `mapstructure:"cert_file"`
	KeyFile      string   `mapstructure:"key_file"`
	Dir          string   `mapstructure:"dir"`           // holds tls.crt and tls.key
	AutoGenerate bool     `mapstructure:"auto_generate"` // self-sign into Dir when missing
	DNSNames     []string `mapstructure:"dns_names"`
	ValidDays    int      `mapstructure:"valid_days"`
	MinVersion   string   `mapstructure:"min_version"` // "1.2" or "1.3"
}

// Validate checks that an enabled config names a certificate source.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("server.tls: cert_file and key_file must be set together")
	}
	if c.CertFile == "" && c.Dir == "" {
		return errors.New("server.tls: set cert_file/key_file or dir")
	}
	if _, ok := parseVersion(c.MinVersion); !ok {
		return fmt.Errorf("server.tls: unsupported min_version %q", c.MinVersion)
	}
	return nil
}

func parseVersion(v string) (uint16, bool) {
	switch strings.ToLower(strings.TrimPrefix(strings.ToLower(v), "tls")) {
	case "", "default", "1.2":
		return tls.VersionTLS12, true
	case "1.3":
		return tls.VersionTLS13, true
	}
	return 0, false
}

// Setup returns nil when TLS is disabled. Certificates are re-read on every
// handshake so a renewed pair is picked up without a restart.
func Setup(c Config) (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	certPath, keyPath := c.CertFile, c.KeyFile
	if certPath == "" {
		certPath = filepath.Join(c.Dir, certName)
		keyPath = filepath.Join(c.Dir, keyName)
		if c.AutoGenerate && !exists(certPath, keyPath) {
			if err := GenerateSelfSigned(certPath, keyPath, c.DNSNames, c.ValidDays); err != nil {
				return nil, fmt.Errorf("generate certificate: %w", err)
			}
		}
	}
	if _, err := loadPair(certPath, keyPath); err != nil {
		return nil, err
	}
	minVer, _ := parseVersion(c.MinVersion)
	return &tls.Config{
		MinVersion: minVer,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return loadPair(certPath, keyPath)
		},
	}, nil
}

func loadPair(certPath, keyPath string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(filepath.Clean(certPath), filepath.Clean(keyPath))
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	return &cert, nil
}

func exists(paths ...string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
