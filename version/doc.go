// Package version reports the build version of the running binary.
//
// Release builds set the variables at link time:
//
//	go build -ldflags "-X github.com/kbukum/eventkit/version.Version=1.4.0"
//
// Other builds fall back to the module version and VCS stamp that the Go
// toolchain embeds. A service config without a version takes Get().Short().
package version
