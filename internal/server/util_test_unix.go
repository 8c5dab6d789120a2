//go:build !windows

package server

// absImage returns an absolute image path valid on this platform.
func absImage(name string) string { return "/data/" + name }
