// Package env composes the environment handed to the engine process.
package env

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Env collects variables in layers; later layers override earlier ones.
type Env struct {
	vars map[string]string
	os   map[string]string // cached OS environment, used for ${VAR} lookups
}

func New() *Env {
	return &Env{vars: make(map[string]string)}
}

func (e *Env) osEnv() map[string]string {
	if e.os == nil {
		e.os = make(map[string]string)
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
				e.os[k] = v
			}
		}
	}
	return e.os
}

// FromOS copies the current process environment into the set.
func (e *Env) FromOS() *Env {
	for k, v := range e.osEnv() {
		e.vars[k] = v
	}
	return e
}

// Set sets K=V. Empty keys are ignored.
func (e *Env) Set(k, v string) *Env {
	if k != "" {
		e.vars[k] = v
	}
	return e
}

// SetPairs applies "K=V" items in order, skipping malformed ones.
func (e *Env) SetPairs(pairs []string) *Env {
	for _, kv := range pairs {
		if k, v, ok := strings.Cut(kv, "="); ok {
			e.Set(k, v)
		}
	}
	return e
}

// LoadFile applies a dotenv style file: KEY=VALUE lines, blank lines and
// # comments skipped, whitespace around key and value trimmed.
func (e *Env) LoadFile(path string) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("env file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("env file %s:%d: expected KEY=VALUE", path, n)
		}
		e.Set(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return sc.Err()
}

func (e *Env) Len() int { return len(e.vars) }

// Pairs returns the set as sorted "K=V" items. ${VAR} references are
// expanded once against the set, then the OS environment; unknown
// references stay as written.
func (e *Env) Pairs() []string {
	out := make([]string, 0, len(e.vars))
	for k, v := range e.vars {
		out = append(out, k+"="+e.expand(v))
	}
	sort.Strings(out)
	return out
}

func (e *Env) expand(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := m[2 : len(m)-1]
		if v, ok := e.vars[name]; ok {
			return v
		}
		if v, ok := e.osEnv()[name]; ok {
			return v
		}
		return m
	})
}
