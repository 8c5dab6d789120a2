//go:build windows

package server

import "testing"

func addPlatformSpecificSeeds(f *testing.F) {
	f.Add(`C:\data\in.png`)
	f.Add(`C:\data\..\Windows\win.ini`)
	f.Add(`C:\data\dir\`)
	f.Add(`\\server\share\a.png`)
}
