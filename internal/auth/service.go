// Package auth protects the job API with bcrypt-checked accounts from the
// config file and HS256 bearer tokens.
package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "upscalr"

// Config is the [auth] table.
type Config struct {
	Enabled   bool          `mapstructure:"enabled"`
	JWTSecret string        `mapstructure:"jwt_secret"` // random per process when empty
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Accounts  []Account     `mapstructure:"accounts"`
}

// Validate checks an enabled config.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Accounts) == 0 {
		return ErrNoAccounts
	}
	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.Username == "" || a.PasswordHash == "" {
			return fmt.Errorf("auth.accounts[%d]: username and password_hash are required", i)
		}
		if seen[a.Username] {
			return fmt.Errorf("auth.accounts: duplicate username %q", a.Username)
		}
		seen[a.Username] = true
		if _, err := bcrypt.Cost([]byte(a.PasswordHash)); err != nil {
			return fmt.Errorf("auth.accounts[%d]: password_hash is not a bcrypt hash", i)
		}
	}
	return nil
}

// Claims represents JWT claims.
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// Service authenticates requests against the configured accounts.
type Service struct {
	accounts map[string]Account
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

func NewService(c Config) (*Service, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	secret := []byte(c.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
	}
	ttl := c.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &Service{
		accounts: make(map[string]Account, len(c.Accounts)),
		secret:   secret,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, a := range c.Accounts {
		s.accounts[a.Username] = a
	}
	return s, nil
}

// Authenticate checks a password (issuing a token) or a previously issued token.
func (s *Service) Authenticate(_ context.Context, req LoginRequest) (*Result, error) {
	switch req.Method {
	case MethodBasic, "":
		return s.authenticateBasic(req.Username, req.Password)
	case MethodJWT:
		return s.authenticateJWT(req.Token)
	default:
		return &Result{}, fmt.Errorf("unsupported auth method: %s", req.Method)
	}
}

func (s *Service) authenticateBasic(username, password string) (*Result, error) {
	if username == "" || password == "" {
		return &Result{}, ErrInvalidCredentials
	}
	a, ok := s.accounts[username]
	if !ok {
		return &Result{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return &Result{}, ErrInvalidCredentials
	}
	tok, err := s.issue(a)
	if err != nil {
		return &Result{}, err
	}
	return &Result{Success: true, Username: a.Username, Roles: a.Roles, Token: tok}, nil
}

func (s *Service) authenticateJWT(raw string) (*Result, error) {
	if raw == "" {
		return &Result{}, ErrInvalidCredentials
	}
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return &Result{}, ErrInvalidCredentials
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return &Result{}, ErrInvalidCredentials
	}
	// tokens outlive account removal otherwise
	if _, ok := s.accounts[claims.Username]; !ok {
		return &Result{}, ErrInvalidCredentials
	}
	return &Result{Success: true, Username: claims.Username, Roles: claims.Roles}, nil
}

func (s *Service) issue(a Account) (*Token, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := &Claims{
		Username: a.Username,
		Roles:    a.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   a.Username,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{Type: "Bearer", Value: signed, ExpiresAt: exp}, nil
}

var rolePermissions = map[string][]string{
	"admin":    {"*"},
	"operator": {ActionRead, ActionWrite},
	"viewer":   {ActionRead},
}

// HasPermission reports whether any of roles grants action on jobs.
func HasPermission(roles []string, action string) bool {
	for _, r := range roles {
		for _, a := range rolePermissions[r] {
			if a == "*" || a == action {
				return true
			}
		}
	}
	return false
}

// HashPassword returns a bcrypt hash for an account's password_hash.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
