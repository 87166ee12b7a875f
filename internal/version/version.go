package version

// Overridden at build time with -ldflags "-X cloudrams/internal/version.Version=..."
var (
	Program   = "cloudrams-agent"
	Version   = "dev"
	GitCommit = "HEAD"
)
