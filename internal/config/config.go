package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultWSAddr is the default address the live websocket feed listens on.
	DefaultWSAddr = ":43127"
	// DefaultRPCAddr is the default address the grpc feed listens on.
	DefaultRPCAddr = ":43128"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 20
	// DefaultMaxClients bounds concurrent WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 256

	// DefaultReplayRequestWindow bounds how frequently a client may request a
	// full replay scan.
	DefaultReplayRequestWindow = time.Minute
	// DefaultReplayRequestBurst sets how many full replay scans may be
	// requested per window.
	DefaultReplayRequestBurst = 1

	// DefaultLogLevel controls verbosity for service logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "scuff.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultArchiveInterval controls how frequently the hot journal is
	// folded into a cold zstd archive snapshot.
	DefaultArchiveInterval = 30 * time.Minute

	// DefaultAuthTokenLeeway bounds clock skew tolerated when verifying
	// HMAC auth tokens.
	DefaultAuthTokenLeeway = 30 * time.Second

	// EventStream defaults applied by Load. eventstream.Config.withDefaults
	// only fills PerTransactionTimeout (60s), Workers (1) and
	// ExecutorQueueDepth (ReplayBuffer) when they are left unset.
	DefaultReplayBuffer             = 256
	DefaultGapReplayDelay           = 2 * time.Second
	DefaultMaxClockSkew             = time.Second
	DefaultMaxReplayConsumptionWait = 2 * time.Minute
	DefaultPerTransactionTimeout    = 60 * time.Second
	DefaultWorkers                  = 4
	DefaultExecutorQueueDepth       = 256
	DefaultSequencerBufferLimit     = 1024
)

// Config captures all runtime tunables for the service.
type Config struct {
	WSAddr          string
	RPCAddr         string
	AllowedOrigins  []string
	MaxPayloadBytes int64
	PingInterval    time.Duration
	MaxClients      int

	TLSCertPath string
	TLSKeyPath  string

	AuthSecret      string
	AuthTokenLeeway time.Duration

	ReplayRequestWindow time.Duration
	ReplayRequestBurst  int

	Logging LoggingConfig

	ArchiveDir      string
	ArchiveInterval time.Duration

	Stream StreamConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// StreamConfig mirrors eventstream.Config's tunables so they can be loaded
// from the environment alongside the rest of the service's configuration.
type StreamConfig struct {
	ReplayBuffer             int
	GapReplayDelay           time.Duration
	MaxClockSkew             time.Duration
	MaxReplayConsumptionWait time.Duration
	PerTransactionTimeout    time.Duration
	Workers                  int
	ExecutorQueueDepth       int
	SequencerBufferLimit     int
}

// Load reads configuration from environment variables, applying sane
// defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		WSAddr:          getString("SCUFF_WS_ADDR", DefaultWSAddr),
		RPCAddr:         getString("SCUFF_RPC_ADDR", DefaultRPCAddr),
		AllowedOrigins:  parseList(os.Getenv("SCUFF_ALLOWED_ORIGINS")),
		MaxPayloadBytes: DefaultMaxPayloadBytes,
		PingInterval:    DefaultPingInterval,
		MaxClients:      DefaultMaxClients,
		TLSCertPath:     strings.TrimSpace(os.Getenv("SCUFF_TLS_CERT")),
		TLSKeyPath:      strings.TrimSpace(os.Getenv("SCUFF_TLS_KEY")),
		AuthSecret:      strings.TrimSpace(os.Getenv("SCUFF_AUTH_SECRET")),
		AuthTokenLeeway: DefaultAuthTokenLeeway,

		ReplayRequestWindow: DefaultReplayRequestWindow,
		ReplayRequestBurst:  DefaultReplayRequestBurst,

		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("SCUFF_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("SCUFF_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},

		ArchiveDir:      strings.TrimSpace(os.Getenv("SCUFF_ARCHIVE_DIR")),
		ArchiveInterval: DefaultArchiveInterval,

		Stream: StreamConfig{
			ReplayBuffer:             DefaultReplayBuffer,
			GapReplayDelay:           DefaultGapReplayDelay,
			MaxClockSkew:             DefaultMaxClockSkew,
			MaxReplayConsumptionWait: DefaultMaxReplayConsumptionWait,
			PerTransactionTimeout:    DefaultPerTransactionTimeout,
			Workers:                  DefaultWorkers,
			ExecutorQueueDepth:       DefaultExecutorQueueDepth,
			SequencerBufferLimit:     DefaultSequencerBufferLimit,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("SCUFF_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("SCUFF_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SCUFF_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("SCUFF_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SCUFF_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("SCUFF_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SCUFF_AUTH_TOKEN_LEEWAY")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("SCUFF_AUTH_TOKEN_LEEWAY must be a non-negative duration, got %q", raw))
		} else {
			cfg.AuthTokenLeeway = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SCUFF_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("SCUFF_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SCUFF_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("SCUFF_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SCUFF_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("SCUFF_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SCUFF_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("SCUFF_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SCUFF_REPLAY_REQUEST_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("SCUFF_REPLAY_REQUEST_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.ReplayRequestWindow = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SCUFF_REPLAY_REQUEST_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("SCUFF_REPLAY_REQUEST_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.ReplayRequestBurst = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SCUFF_ARCHIVE_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("SCUFF_ARCHIVE_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.ArchiveInterval = duration
		}
	}

	loadStreamOverrides(&cfg.Stream, &problems)

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		problems = append(problems, "SCUFF_TLS_CERT and SCUFF_TLS_KEY must be provided together")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func loadStreamOverrides(s *StreamConfig, problems *[]string) {
	if raw := strings.TrimSpace(os.Getenv("SCUFF_STREAM_REPLAY_BUFFER")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			*problems = append(*problems, fmt.Sprintf("SCUFF_STREAM_REPLAY_BUFFER must be a positive integer, got %q", raw))
		} else {
			s.ReplayBuffer = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SCUFF_STREAM_GAP_REPLAY_DELAY")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			*problems = append(*problems, fmt.Sprintf("SCUFF_STREAM_GAP_REPLAY_DELAY must be a positive duration, got %q", raw))
		} else {
			s.GapReplayDelay = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SCUFF_STREAM_MAX_CLOCK_SKEW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			*problems = append(*problems, fmt.Sprintf("SCUFF_STREAM_MAX_CLOCK_SKEW must be a non-negative duration, got %q", raw))
		} else {
			s.MaxClockSkew = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SCUFF_STREAM_MAX_REPLAY_WAIT")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			*problems = append(*problems, fmt.Sprintf("SCUFF_STREAM_MAX_REPLAY_WAIT must be a non-negative duration, got %q", raw))
		} else {
			s.MaxReplayConsumptionWait = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SCUFF_STREAM_TXN_TIMEOUT")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			*problems = append(*problems, fmt.Sprintf("SCUFF_STREAM_TXN_TIMEOUT must be a positive duration, got %q", raw))
		} else {
			s.PerTransactionTimeout = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SCUFF_STREAM_WORKERS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			*problems = append(*problems, fmt.Sprintf("SCUFF_STREAM_WORKERS must be a positive integer, got %q", raw))
		} else {
			s.Workers = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SCUFF_STREAM_EXECUTOR_QUEUE_DEPTH")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			*problems = append(*problems, fmt.Sprintf("SCUFF_STREAM_EXECUTOR_QUEUE_DEPTH must be a positive integer, got %q", raw))
		} else {
			s.ExecutorQueueDepth = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SCUFF_STREAM_SEQUENCER_BUFFER_LIMIT")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			*problems = append(*problems, fmt.Sprintf("SCUFF_STREAM_SEQUENCER_BUFFER_LIMIT must be a positive integer, got %q", raw))
		} else {
			s.SequencerBufferLimit = value
		}
	}
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
