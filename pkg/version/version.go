// Package version holds the build version string.
package version

// Version is the current release. Overridden at build time via
// -ldflags "-X skysurvey/pkg/version.Version=v1.2.3".
var Version = "0.1.0-dev"
