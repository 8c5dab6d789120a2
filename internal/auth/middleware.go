package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ResultKey is the gin context key holding the *Result of a request.
const ResultKey = "auth_result"

// Middleware provides gin handlers for authentication.
type Middleware struct {
	svc *Service
}

func NewMiddleware(svc *Service) *Middleware { return &Middleware{svc: svc} }

// Authenticate accepts a bearer token or HTTP basic credentials.
func (m *Middleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := m.authenticate(c.Request)
		if err != nil || !res.Success {
			c.Header("WWW-Authenticate", `Bearer realm="upscalr"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": "Authentication required",
			})
			return
		}
		c.Set(ResultKey, res)
		c.Next()
	}
}

// Require aborts with 403 unless the authenticated roles grant action.
func (m *Middleware) Require(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, _ := c.Get(ResultKey)
		res, ok := v.(*Result)
		if !ok || !res.Success {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_required",
				"message": "Authentication required",
			})
			return
		}
		if !HasPermission(res.Roles, action) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "permission_denied",
				"message": "Insufficient permissions",
			})
			return
		}
		c.Next()
	}
}

// Login handles POST {base}/auth/login and returns the issued token.
func (m *Middleware) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Method == MethodJWT {
		c.JSON(http.StatusBadRequest, gin.H{"error": "login requires username and password"})
		return
	}
	res, err := m.svc.Authenticate(c.Request.Context(), req)
	if err != nil || !res.Success {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_failed", "message": "Invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (m *Middleware) authenticate(r *http.Request) (*Result, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return m.svc.Authenticate(r.Context(), LoginRequest{Method: MethodJWT, Token: strings.TrimSpace(tok)})
		}
	}
	if u, p, ok := r.BasicAuth(); ok {
		return m.svc.Authenticate(r.Context(), LoginRequest{Method: MethodBasic, Username: u, Password: p})
	}
	return &Result{}, ErrInvalidCredentials
}
