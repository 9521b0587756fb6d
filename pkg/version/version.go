package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var embedded string

// Version overrides the embedded release, e.g.
// -ldflags "-X github.com/amoylab/webconsole/pkg/version.Version=v1.2.3".
var Version string

// Get returns the release of this build.
func Get() string {
	if Version != "" {
		return Version
	}
	return strings.TrimSpace(embedded)
}
