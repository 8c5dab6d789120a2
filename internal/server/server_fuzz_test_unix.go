//go:build !windows

package server

import "testing"

func addPlatformSpecificSeeds(f *testing.F) {
	f.Add("/data/in.png")
	f.Add("/data/../etc/passwd")
	f.Add("/data/dir/")
	f.Add("/data//a.png")
}
