package utils

var (
	// AppVersion will be in 0.0.0 format
	AppVersion = "development"

	// BuildTime is the time it built, in RFC3339
	BuildTime = "unknown"

	// GitCommit is the Git commit hash
	GitCommit = "unknown"
)
