// Package version carries build metadata stamped via -ldflags.
package version

import "runtime"

// Name identifies livescribe to peers (NATS connection name, gRPC user agent).
const Name = "livescribe"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return Name + " " + Version + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}

// UserAgent returns the short name/version pair sent to remote services.
func UserAgent() string {
	return Name + "/" + Version
}
