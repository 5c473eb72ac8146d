package version

// Version is the current version of the Huddle CLI.
// Overridden at build time using:
//   go build -ldflags="-X 'github.com/huddle-chat/huddle/internal/version.Version=v1.0.0'"
var Version = "dev"
