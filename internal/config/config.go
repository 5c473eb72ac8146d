package config

import (
	"fmt"
	"os"
	"time"
)

// Default configuration values (production)
const (
	DefaultDomain   = "huddle-chat.app"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultTURN     = "" // Optional, empty by default
	DefaultTURNUser = "huddle"
	DefaultTURNPass = "huddle-secret"

	// DefaultSpeakingHold is how long a participant keeps its speaking
	// indicator lit after the last loud sample.
	DefaultSpeakingHold = 750 * time.Millisecond

	// DefaultLeaveGrace is how long a silent participant survives before an
	// implicit leave is assumed (peer closed the tab without saying goodbye).
	DefaultLeaveGrace = 30 * time.Second

	// DefaultCandidateTTL bounds how long ICE candidates for a not-yet-seen
	// peer are buffered before being dropped.
	DefaultCandidateTTL = 15 * time.Second
)

// Config holds application configuration
type Config struct {
	// Domain is the signaling server domain
	Domain string

	// WebSocketURL is constructed from domain
	WebSocketURL string

	// DisplayName is the name advertised to other room members
	DisplayName string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// Session timing knobs
	SpeakingHold time.Duration
	LeaveGrace   time.Duration
	CandidateTTL time.Duration
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain      string
	DisplayName string
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := firstNonEmpty(opts.Domain, os.Getenv("HUDDLE_DOMAIN"), DefaultDomain)
	stunServer := firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN)
	turnServer := firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER"), DefaultTURN)
	turnUser := firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME"), DefaultTURNUser)
	turnPass := firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD"), DefaultTURNPass)

	displayName := firstNonEmpty(opts.DisplayName, os.Getenv("HUDDLE_NAME"))
	if displayName == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "anonymous"
		}
		displayName = host
	}

	return &Config{
		Domain:       domain,
		WebSocketURL: fmt.Sprintf("wss://%s/ws", domain),
		DisplayName:  displayName,
		STUNServer:   stunServer,
		TURNServer:   turnServer,
		TURNUser:     turnUser,
		TURNPass:     turnPass,
		ForceRelay:   opts.ForceRelay,
		SpeakingHold: DefaultSpeakingHold,
		LeaveGrace:   DefaultLeaveGrace,
		CandidateTTL: DefaultCandidateTTL,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetRoomLink returns the webapp URL for a room code
func (c *Config) GetRoomLink(roomCode string) string {
	return fmt.Sprintf("https://%s/r/%s", c.Domain, roomCode)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
