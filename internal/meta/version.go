// Package meta holds build metadata shared by the CLI.
package meta

// Version is set at build time with
// -ldflags "-X github.com/rickchristie/sqlgate/internal/meta.Version=v1.2.3".
var Version = "0.0.0-dev"
