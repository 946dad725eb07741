// Package autoview holds build metadata shared by the autoview binaries.
package autoview

// Version is overridden at build time via -ldflags.
var Version = "dev"
