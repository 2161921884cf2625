package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

// Default configuration values
const (
	DefaultDomain   = "localhost:3000"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultTURN     = "" // Optional, empty by default
	DefaultTURNUser = ""
	DefaultTURNPass = ""
)

// Config holds application configuration
type Config struct {
	// Domain is the signaling server host[:port]
	Domain string

	// Insecure selects ws:// and http:// instead of wss:// and https://
	Insecure bool

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN candidates
	ForceRelay bool
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain     string
	Insecure   bool
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := firstNonEmpty(opts.Domain, os.Getenv("DOMAIN"), DefaultDomain)
	domain = strings.TrimSuffix(domain, "/")
	if strings.Contains(domain, "/") {
		return nil, fmt.Errorf("invalid domain %q: expected host[:port]", domain)
	}

	return &Config{
		Domain:     domain,
		Insecure:   opts.Insecure || isLocalHost(domain),
		STUNServer: firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer: firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER"), DefaultTURN),
		TURNUser:   firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME"), DefaultTURNUser),
		TURNPass:   firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD"), DefaultTURNPass),
		ForceRelay: opts.ForceRelay,
	}, nil
}

// RoomWebSocketURL returns the signaling endpoint for a room.
func (c *Config) RoomWebSocketURL(roomID string) string {
	scheme := "wss"
	if c.Insecure {
		scheme = "ws"
	}
	return fmt.Sprintf("%s://%s/ws/%s", scheme, c.Domain, url.PathEscape(roomID))
}

// APIBaseURL returns the HTTP base for the REST endpoints.
func (c *Config) APIBaseURL() string {
	scheme := "https"
	if c.Insecure {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/api", scheme, c.Domain)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turn:"), "turns:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// ParseRoomArg accepts either a bare room id or a signaling URL ending in
// /ws/<room>. For URLs the domain and scheme are returned as overrides.
func ParseRoomArg(arg string) (roomID, domain string, insecure bool, err error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", "", false, fmt.Errorf("room id is required")
	}
	if !strings.Contains(arg, "://") {
		return arg, "", false, nil
	}

	u, err := url.Parse(arg)
	if err != nil {
		return "", "", false, fmt.Errorf("invalid room url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[len(parts)-2] != "ws" || parts[len(parts)-1] == "" {
		return "", "", false, fmt.Errorf("invalid room url %q: expected .../ws/<room>", arg)
	}
	switch u.Scheme {
	case "ws", "http":
		insecure = true
	case "wss", "https":
	default:
		return "", "", false, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return parts[len(parts)-1], u.Host, insecure, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func isLocalHost(domain string) bool {
	host := domain
	if h, _, err := net.SplitHostPort(domain); err == nil {
		host = h
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
