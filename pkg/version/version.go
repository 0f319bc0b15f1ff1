// Package version holds the agent version string.
package version

// Version is the agent version reported to the backend and embedded in
// flight save files. Overridden at build time via -ldflags.
var Version = "0.9.4-dev"
