package main

var (
	// Version is the version of the binary, set at build time.
	Version string
	// GitCommit is the commit hash that built the binary.
	GitCommit string
	// BuildDate is the date of the build.
	BuildDate string
)
