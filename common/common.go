// Package common holds process-wide settings shared by the agent binaries.
package common

var (
	// Version is overridden at build time with -ldflags "-X ...common.Version=..."
	Version = "dev"

	// PackageName is used as the default service tag in logs.
	PackageName = "tee-secret-agent"
)
