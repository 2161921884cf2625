package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	envVarListenAddr     = "AXIVID_LISTEN_ADDR"
	envVarLogFormat      = "AXIVID_LOG_FORMAT"
	envVarLogLevel       = "LOG_LEVEL"
	envVarAllowedOrigins = "ALLOWED_ORIGINS"
	envVarRoomIdleTTL    = "ROOM_IDLE_TIMEOUT"
	envVarSweepInterval  = "ROOM_SWEEP_INTERVAL"
	envVarMaxMessage     = "MAX_MESSAGE_BYTES"
	envVarSendQueue      = "SEND_QUEUE_SIZE"
	envVarShutdown       = "SHUTDOWN_TIMEOUT"

	DefaultListenAddr     = "0.0.0.0:3000"
	DefaultRoomIdleTTL    = 5 * time.Minute
	DefaultSweepInterval  = 60 * time.Second
	DefaultMaxMessage     = 64 * 1024
	DefaultSendQueueSize  = 256
	DefaultShutdown       = 10 * time.Second
	DefaultEnvFile        = ".env"
	DefaultLogFormat      = LogFormatText
	DefaultLogLevelString = "info"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Config holds everything the signaling server needs at startup.
type Config struct {
	ListenAddr string

	LogFormat LogFormat
	LogLevel  slog.Level

	// AllowedOrigins restricts browser WebSocket origins. Empty allows any.
	AllowedOrigins []string

	RoomIdleTimeout time.Duration
	SweepInterval   time.Duration
	MaxMessageBytes int64
	SendQueueSize   int
	ShutdownTimeout time.Duration
}

// Load reads the .env file (if any), then the environment, then args.
// Flags win over environment, which wins over the .env file.
func Load(args []string) (Config, error) {
	envFile := DefaultEnvFile
	for i, a := range args {
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			envFile = v
		} else if a == "--config" && i+1 < len(args) {
			envFile = args[i+1]
		}
	}

	fileVars, err := godotenv.Read(envFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || envFile != DefaultEnvFile {
			return Config{}, fmt.Errorf("read env file %s: %w", envFile, err)
		}
		fileVars = map[string]string{}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	}
	return load(lookup, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	cfg := Config{
		ListenAddr:      envOrDefault(lookup, envVarListenAddr, DefaultListenAddr),
		AllowedOrigins:  parseList(envOrDefault(lookup, envVarAllowedOrigins, "")),
		RoomIdleTimeout: DefaultRoomIdleTTL,
		SweepInterval:   DefaultSweepInterval,
		ShutdownTimeout: DefaultShutdown,
	}

	var err error
	if cfg.RoomIdleTimeout, err = envDurationOrDefault(lookup, envVarRoomIdleTTL, DefaultRoomIdleTTL); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = envDurationOrDefault(lookup, envVarSweepInterval, DefaultSweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = envDurationOrDefault(lookup, envVarShutdown, DefaultShutdown); err != nil {
		return Config{}, err
	}
	maxMessage, err := envIntOrDefault(lookup, envVarMaxMessage, DefaultMaxMessage)
	if err != nil {
		return Config{}, err
	}
	if cfg.SendQueueSize, err = envIntOrDefault(lookup, envVarSendQueue, DefaultSendQueueSize); err != nil {
		return Config{}, err
	}

	logFormat := envOrDefault(lookup, envVarLogFormat, string(DefaultLogFormat))
	logLevel := envOrDefault(lookup, envVarLogLevel, DefaultLogLevelString)
	origins := strings.Join(cfg.AllowedOrigins, ",")

	fs := pflag.NewFlagSet("axivid-server", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.String("config", DefaultEnvFile, "path to env file")
	fs.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "listen address")
	fs.StringVar(&logFormat, "log-format", logFormat, "log format (text or json)")
	fs.StringVar(&logLevel, "log-level", logLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&origins, "allowed-origins", origins, "comma separated list of allowed websocket origins")
	fs.DurationVar(&cfg.RoomIdleTimeout, "room-idle-timeout", cfg.RoomIdleTimeout, "how long an empty room is kept (0 destroys immediately)")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "how often idle rooms are swept")
	fs.IntVar(&maxMessage, "max-message-bytes", maxMessage, "maximum inbound signaling frame size")
	fs.IntVar(&cfg.SendQueueSize, "send-queue-size", cfg.SendQueueSize, "outbound frames buffered per connection")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fs.SetOutput(os.Stderr)
			fs.PrintDefaults()
		}
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	if cfg.LogFormat, err = parseLogFormat(logFormat); err != nil {
		return Config{}, err
	}
	if cfg.LogLevel, err = parseLogLevel(logLevel); err != nil {
		return Config{}, err
	}
	cfg.AllowedOrigins = parseList(origins)

	if maxMessage <= 0 {
		return Config{}, fmt.Errorf("invalid max message bytes %d (must be > 0)", maxMessage)
	}
	cfg.MaxMessageBytes = int64(maxMessage)
	if cfg.SendQueueSize <= 0 {
		return Config{}, fmt.Errorf("invalid send queue size %d (must be > 0)", cfg.SendQueueSize)
	}
	if cfg.RoomIdleTimeout < 0 {
		return Config{}, fmt.Errorf("invalid room idle timeout %s (must be >= 0)", cfg.RoomIdleTimeout)
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("invalid sweep interval %s (must be > 0)", cfg.SweepInterval)
	}
	return cfg, nil
}

// NewLogger builds the server logger. Logs go to stderr.
func NewLogger(cfg Config) (*slog.Logger, error) {
	return newLogger(os.Stderr, cfg)
}

func newLogger(w io.Writer, cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(w, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

// OriginAllowed reports whether a browser Origin header may open a
// signaling link. Non-browser clients send no Origin and are always allowed.
func (c Config) OriginAllowed(origin string) bool {
	if origin == "" || len(c.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}
