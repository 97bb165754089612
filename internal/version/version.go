package version

// Set at build time:
//
//	go build -ldflags "-X github.com/rentaldesk/rentaldesk/internal/version.Version=v1.2.0" ./cmd/rentaldesk
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)
