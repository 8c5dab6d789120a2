package server

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}

// checkJobPath requires an absolute, already clean file path. Relative paths
// would resolve against the server's directory, which API clients cannot see.
func checkJobPath(field, p string) error {
	if p == "" {
		return fmt.Errorf("%s required", field)
	}
	if !isSafeAbsPath(p) {
		return fmt.Errorf("invalid %s: must be an absolute path without traversal", field)
	}
	if strings.HasSuffix(p, string(filepath.Separator)) {
		return fmt.Errorf("invalid %s: must name a file", field)
	}
	return nil
}

// isSafeAbsPath reports whether p is absolute and unchanged by filepath.Clean
// apart from trailing separators.
func isSafeAbsPath(p string) bool {
	if !filepath.IsAbs(p) {
		return false
	}
	clean := filepath.Clean(p)
	trimmed := strings.TrimRight(p, string(filepath.Separator))
	if trimmed == "" {
		trimmed = p
	}
	return clean == p || clean == trimmed
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
