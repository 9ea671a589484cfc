// Package version reports the conductor release embedded at build time.
package version

import (
	_ "embed"
	"fmt"
	"runtime"
	"strings"
)

//go:embed VERSION
var versionContent string

// Get returns the release version with whitespace trimmed, or "dev" when
// the embedded file is empty.
func Get() string {
	v := strings.TrimSpace(versionContent)
	if v == "" {
		return "dev"
	}
	return v
}

// String returns the version line printed by the version command.
func String() string {
	return fmt.Sprintf("conductor version %s (%s %s/%s)", Get(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
