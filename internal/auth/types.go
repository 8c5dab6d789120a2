package auth

import (
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoAccounts         = errors.New("auth enabled without accounts")
)

// Method represents the type of authentication.
type Method string

const (
	MethodBasic Method = "basic" // username/password
	MethodJWT   Method = "jwt"   // bearer token issued by Login
)

// Actions a role may be granted on jobs.
const (
	ActionRead  = "read"
	ActionWrite = "write"
)

// Account is one [[auth.accounts]] entry. PasswordHash is a bcrypt hash as
// printed by "upscalr hash-password".
type Account struct {
	Username     string   `mapstructure:"username"`
	PasswordHash string   `mapstructure:"password_hash"`
	Roles        []string `mapstructure:"roles"`
}

// Result represents the result of authentication.
type Result struct {
	Success  bool     `json:"success"`
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Token    *Token   `json:"token,omitempty"`
}

// Token is a signed JWT.
type Token struct {
	Type      string    `json:"type"` // "Bearer"
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginRequest is the body of POST {base}/auth/login.
type LoginRequest struct {
	Method   Method `json:"method"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}
