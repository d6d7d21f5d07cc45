package boundary

import (
	"fmt"
	"runtime"
	"sync"
)

var (
	ridOnce  sync.Once
	ridValue string
)

// RID returns the runtime identifier naming the host OS family and CPU
// architecture, e.g. "linux-x64", "win-x64", "osx-arm64". Detection happens
// once per process; unrecognised values fall back conservatively.
func RID() string {
	ridOnce.Do(func() {
		ridValue = buildRID(runtime.GOOS, runtime.GOARCH)
	})
	return ridValue
}

func buildRID(goos, goarch string) string {
	os := "linux"
	switch goos {
	case "linux":
		os = "linux"
	case "windows":
		os = "win"
	case "darwin":
		os = "osx"
	}

	arch := "x64"
	switch goarch {
	case "amd64":
		arch = "x64"
	case "arm64":
		arch = "arm64"
	case "386":
		arch = "x86"
	case "arm":
		arch = "arm"
	}

	return fmt.Sprintf("%s-%s", os, arch)
}

// nativeCandidates lists the decorated file names tried for one native
// dependency, most specific first. Linux tries the literal name plus the
// lib-prefixed and plain .so forms; Windows appends .dll; macOS tries the
// dylib forms.
func nativeCandidates(goos, name string) []string {
	switch goos {
	case "windows":
		return []string{name + ".dll"}
	case "darwin":
		return []string{"lib" + name + ".dylib", name + ".dylib"}
	default:
		return []string{name, "lib" + name + ".so", name + ".so"}
	}
}
