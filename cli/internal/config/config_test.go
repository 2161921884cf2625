package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Precedence(t *testing.T) {
	t.Setenv("DOMAIN", "env.example")
	t.Setenv("STUN_SERVER", "stun:env.example:3478")
	t.Setenv("TURN_SERVER", "")

	cfg, err := Load(Options{STUNServer: "stun:flag.example:3478"})
	require.NoError(t, err)
	assert.Equal(t, "env.example", cfg.Domain)
	assert.False(t, cfg.Insecure)
	assert.Equal(t, []string{"stun:flag.example:3478"}, cfg.GetSTUNServers())
	assert.Nil(t, cfg.GetTURNServers())

	cfg, err = Load(Options{Domain: "flag.example"})
	require.NoError(t, err)
	assert.Equal(t, "flag.example", cfg.Domain)
}

func TestLoad_LocalhostIsInsecure(t *testing.T) {
	t.Setenv("DOMAIN", "")
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultDomain, cfg.Domain)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, "ws://localhost:3000/ws/abc", cfg.RoomWebSocketURL("abc"))
	assert.Equal(t, "http://localhost:3000/api", cfg.APIBaseURL())

	cfg, err = Load(Options{Domain: "127.0.0.1:8080"})
	require.NoError(t, err)
	assert.True(t, cfg.Insecure)
}

func TestLoad_RejectsPaths(t *testing.T) {
	_, err := Load(Options{Domain: "example.com/some/path"})
	assert.Error(t, err)
}

func TestURLs_Secure(t *testing.T) {
	cfg := &Config{Domain: "call.example"}
	assert.Equal(t, "wss://call.example/ws/room%201", cfg.RoomWebSocketURL("room 1"))
	assert.Equal(t, "https://call.example/api", cfg.APIBaseURL())
}

func TestGetTURNServers(t *testing.T) {
	cfg := &Config{TURNServer: "turn:relay.example", TURNUser: "u", TURNPass: "p"}
	assert.Equal(t, []string{
		"turn:relay.example:3478?transport=udp",
		"turn:relay.example:3478?transport=tcp",
		"turns:relay.example:5349?transport=tcp",
	}, cfg.GetTURNServers())
	user, pass := cfg.GetTURNCredentials()
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)
}

func TestParseRoomArg(t *testing.T) {
	room, domain, insecure, err := ParseRoomArg("abc-123")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", room)
	assert.Empty(t, domain)
	assert.False(t, insecure)

	room, domain, insecure, err = ParseRoomArg("ws://localhost:3000/ws/abc-123")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", room)
	assert.Equal(t, "localhost:3000", domain)
	assert.True(t, insecure)

	room, domain, insecure, err = ParseRoomArg("wss://call.example/ws/r9")
	require.NoError(t, err)
	assert.Equal(t, "r9", room)
	assert.Equal(t, "call.example", domain)
	assert.False(t, insecure)

	for _, bad := range []string{"", "https://call.example/rooms/r9", "ftp://x/ws/r", "wss://call.example/ws/"} {
		_, _, _, err := ParseRoomArg(bad)
		assert.Error(t, err, bad)
	}
}
