package config

import "testing"

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("HUDDLE_DOMAIN", "env.example.com")
	t.Setenv("HUDDLE_NAME", "env-name")

	cfg, err := Load(Options{Domain: "flag.example.com"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Domain != "flag.example.com" {
		t.Errorf("flag should win over env, got %q", cfg.Domain)
	}
	if cfg.WebSocketURL != "wss://flag.example.com/ws" {
		t.Errorf("unexpected websocket URL %q", cfg.WebSocketURL)
	}
	if cfg.DisplayName != "env-name" {
		t.Errorf("display name should come from env, got %q", cfg.DisplayName)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HUDDLE_DOMAIN", "")
	t.Setenv("HUDDLE_NAME", "")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Domain != DefaultDomain {
		t.Errorf("expected default domain, got %q", cfg.Domain)
	}
	if cfg.DisplayName == "" {
		t.Error("display name should fall back to hostname, got empty")
	}
	if cfg.SpeakingHold != DefaultSpeakingHold || cfg.LeaveGrace != DefaultLeaveGrace {
		t.Error("timing knobs should default")
	}
}

func TestTURNServers(t *testing.T) {
	cfg := &Config{TURNServer: "turn:relay.example.com"}
	servers := cfg.GetTURNServers()
	if len(servers) != 3 {
		t.Fatalf("expected udp/tcp/tls variants, got %v", servers)
	}

	cfg = &Config{}
	if cfg.GetTURNServers() != nil {
		t.Error("no TURN server configured should yield nil")
	}
}
