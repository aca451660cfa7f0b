package version

import "fmt"

// Version is the current release, overridable at build time with
// -ldflags "-X cmsg_cli/pkg/version.Version=...".
var Version = "0.3.0"

// UserAgent identifies this client on the wire.
func UserAgent() string {
	return fmt.Sprintf("cmsg-cli/%s", Version)
}
