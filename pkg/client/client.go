// Package client talks to the upscalr HTTP API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/loykin/upscalr/internal/auth"
)

// Client submits and inspects engine jobs on a running server.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	mu       sync.RWMutex
	token    string
	username string
	password string
}

// Config holds client configuration.
type Config struct {
	BaseURL  string // e.g. http://localhost:8080/api
	Timeout  time.Duration
	Logger   *slog.Logger
	TLS      *TLSClientConfig
	Insecure bool // skip TLS verification

	// Basic credentials sent with every request; Login swaps them for a token.
	Username string
	Password string
	Token    string
}

// TLSClientConfig holds TLS configuration for the client.
type TLSClientConfig struct {
	CACert     string // CA certificate file, e.g. the server's self-signed cert
	ClientCert string
	ClientKey  string
	ServerName string
}

func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a client. TLS files are read here so a bad path fails early.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.TLS != nil || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}

	return &Client{
		baseURL:  strings.TrimRight(config.BaseURL, "/"),
		logger:   config.Logger,
		token:    config.Token,
		username: config.Username,
		password: config.Password,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}, nil
}

func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if config.Insecure {
		// #nosec G402 -- opt-in for self-signed development servers
		tlsConfig.InsecureSkipVerify = true
	}
	if config.TLS == nil {
		return tlsConfig, nil
	}
	tlsConfig.ServerName = config.TLS.ServerName
	if config.TLS.CACert != "" {
		if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
			return nil, fmt.Errorf("load CA certificate: %w", err)
		}
	}
	if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return errors.New("no certificates found in PEM")
	}
	tlsConfig.RootCAs = pool
	return nil
}

// IsReachable reports whether the server answers on the job list route.
// An auth rejection still counts as reachable.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("server unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode != http.StatusNotFound
}

// Login exchanges username and password for a bearer token that is used
// for every later request.
func (c *Client) Login(ctx context.Context, username, password string) (*Token, error) {
	var res auth.Result
	err := c.do(ctx, http.MethodPost, "/auth/login",
		auth.LoginRequest{Method: auth.MethodBasic, Username: username, Password: password}, &res)
	if err != nil {
		return nil, err
	}
	if res.Token == nil {
		return nil, errors.New("login succeeded without a token")
	}
	c.mu.Lock()
	c.token = res.Token.Value
	c.mu.Unlock()
	c.logger.Debug("logged in", "username", res.Username, "expires_at", res.Token.ExpiresAt)
	return res.Token, nil
}

// Submit starts one job and returns its id. Paths must be absolute on the
// server's filesystem.
func (c *Client) Submit(ctx context.Context, job Job) (string, error) {
	var res submitResponse
	if err := c.do(ctx, http.MethodPost, "/upscale", job, &res); err != nil {
		return res.ID, err
	}
	return res.ID, nil
}

// List returns all jobs, or only those in phase when it is non-empty.
func (c *Client) List(ctx context.Context, phase Phase) ([]JobStatus, error) {
	path := "/jobs"
	if phase != "" {
		path += "?phase=" + url.QueryEscape(string(phase))
	}
	var out []JobStatus
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, id string) (JobStatus, error) {
	var st JobStatus
	err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &st)
	return st, err
}

// Cancel kills a running job.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(id)+"/cancel", nil, nil)
}

// Wait polls a job every interval until it reaches a terminal phase.
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration) (JobStatus, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		st, err := c.Get(ctx, id)
		if err != nil {
			return st, err
		}
		if st.Phase.Finished() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}
	c.mu.RUnlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		c.logger.Debug("API request failed", "method", method, "path", path, "status", resp.StatusCode, "error", apiErr.Message)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
