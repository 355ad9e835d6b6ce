package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SCUFF_WS_ADDR", "SCUFF_RPC_ADDR", "SCUFF_ALLOWED_ORIGINS",
		"SCUFF_MAX_PAYLOAD_BYTES", "SCUFF_PING_INTERVAL", "SCUFF_MAX_CLIENTS",
		"SCUFF_TLS_CERT", "SCUFF_TLS_KEY", "SCUFF_AUTH_SECRET", "SCUFF_AUTH_TOKEN_LEEWAY",
		"SCUFF_LOG_LEVEL", "SCUFF_LOG_PATH", "SCUFF_LOG_MAX_SIZE_MB", "SCUFF_LOG_MAX_BACKUPS",
		"SCUFF_LOG_MAX_AGE_DAYS", "SCUFF_LOG_COMPRESS",
		"SCUFF_REPLAY_REQUEST_WINDOW", "SCUFF_REPLAY_REQUEST_BURST",
		"SCUFF_ARCHIVE_DIR", "SCUFF_ARCHIVE_INTERVAL",
		"SCUFF_STREAM_REPLAY_BUFFER", "SCUFF_STREAM_GAP_REPLAY_DELAY", "SCUFF_STREAM_MAX_CLOCK_SKEW",
		"SCUFF_STREAM_MAX_REPLAY_WAIT", "SCUFF_STREAM_TXN_TIMEOUT", "SCUFF_STREAM_WORKERS",
		"SCUFF_STREAM_EXECUTOR_QUEUE_DEPTH", "SCUFF_STREAM_SEQUENCER_BUFFER_LIMIT",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.WSAddr != DefaultWSAddr {
		t.Fatalf("expected default ws addr %q, got %q", DefaultWSAddr, cfg.WSAddr)
	}
	if cfg.RPCAddr != DefaultRPCAddr {
		t.Fatalf("expected default rpc addr %q, got %q", DefaultRPCAddr, cfg.RPCAddr)
	}
	if cfg.AllowedOrigins != nil {
		t.Fatalf("expected no allowed origins, got %#v", cfg.AllowedOrigins)
	}
	if cfg.MaxPayloadBytes != DefaultMaxPayloadBytes {
		t.Fatalf("expected default max payload %d, got %d", DefaultMaxPayloadBytes, cfg.MaxPayloadBytes)
	}
	if cfg.PingInterval != DefaultPingInterval {
		t.Fatalf("expected default ping interval %v, got %v", DefaultPingInterval, cfg.PingInterval)
	}
	if cfg.MaxClients != DefaultMaxClients {
		t.Fatalf("expected default max clients %d, got %d", DefaultMaxClients, cfg.MaxClients)
	}
	if cfg.TLSCertPath != "" || cfg.TLSKeyPath != "" {
		t.Fatalf("expected TLS paths to be empty, got cert=%q key=%q", cfg.TLSCertPath, cfg.TLSKeyPath)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("expected auth secret to be empty by default")
	}
	if cfg.AuthTokenLeeway != DefaultAuthTokenLeeway {
		t.Fatalf("expected default auth token leeway %v, got %v", DefaultAuthTokenLeeway, cfg.AuthTokenLeeway)
	}
	if cfg.ReplayRequestWindow != DefaultReplayRequestWindow {
		t.Fatalf("expected default replay request window %v, got %v", DefaultReplayRequestWindow, cfg.ReplayRequestWindow)
	}
	if cfg.ReplayRequestBurst != DefaultReplayRequestBurst {
		t.Fatalf("expected default replay request burst %d, got %d", DefaultReplayRequestBurst, cfg.ReplayRequestBurst)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.Logging.Level)
	}
	if cfg.Logging.Path != DefaultLogPath {
		t.Fatalf("expected default log path %q, got %q", DefaultLogPath, cfg.Logging.Path)
	}
	if cfg.ArchiveDir != "" {
		t.Fatalf("expected archive dir to default to empty string")
	}
	if cfg.ArchiveInterval != DefaultArchiveInterval {
		t.Fatalf("expected default archive interval %v, got %v", DefaultArchiveInterval, cfg.ArchiveInterval)
	}
	if cfg.Stream.ReplayBuffer != DefaultReplayBuffer {
		t.Fatalf("expected default stream replay buffer %d, got %d", DefaultReplayBuffer, cfg.Stream.ReplayBuffer)
	}
	if cfg.Stream.Workers != DefaultWorkers {
		t.Fatalf("expected default stream workers %d, got %d", DefaultWorkers, cfg.Stream.Workers)
	}
	if cfg.Stream.PerTransactionTimeout != DefaultPerTransactionTimeout {
		t.Fatalf("expected default per-transaction timeout %v, got %v", DefaultPerTransactionTimeout, cfg.Stream.PerTransactionTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCUFF_WS_ADDR", "127.0.0.1:9000")
	t.Setenv("SCUFF_RPC_ADDR", "127.0.0.1:50051")
	t.Setenv("SCUFF_ALLOWED_ORIGINS", "https://example.com, https://demo.local")
	t.Setenv("SCUFF_MAX_PAYLOAD_BYTES", "2048")
	t.Setenv("SCUFF_PING_INTERVAL", "45s")
	t.Setenv("SCUFF_MAX_CLIENTS", "12")
	t.Setenv("SCUFF_TLS_CERT", "/tmp/cert.pem")
	t.Setenv("SCUFF_TLS_KEY", "/tmp/key.pem")
	t.Setenv("SCUFF_AUTH_SECRET", "s3cret")
	t.Setenv("SCUFF_AUTH_TOKEN_LEEWAY", "5s")
	t.Setenv("SCUFF_LOG_LEVEL", "debug")
	t.Setenv("SCUFF_LOG_PATH", "/var/log/scuff.log")
	t.Setenv("SCUFF_LOG_MAX_SIZE_MB", "512")
	t.Setenv("SCUFF_LOG_MAX_BACKUPS", "4")
	t.Setenv("SCUFF_LOG_MAX_AGE_DAYS", "2")
	t.Setenv("SCUFF_LOG_COMPRESS", "false")
	t.Setenv("SCUFF_REPLAY_REQUEST_WINDOW", "2m")
	t.Setenv("SCUFF_REPLAY_REQUEST_BURST", "3")
	t.Setenv("SCUFF_ARCHIVE_DIR", "/var/run/archive")
	t.Setenv("SCUFF_ARCHIVE_INTERVAL", "10m")
	t.Setenv("SCUFF_STREAM_REPLAY_BUFFER", "512")
	t.Setenv("SCUFF_STREAM_GAP_REPLAY_DELAY", "3s")
	t.Setenv("SCUFF_STREAM_MAX_CLOCK_SKEW", "2s")
	t.Setenv("SCUFF_STREAM_MAX_REPLAY_WAIT", "1m")
	t.Setenv("SCUFF_STREAM_TXN_TIMEOUT", "30s")
	t.Setenv("SCUFF_STREAM_WORKERS", "8")
	t.Setenv("SCUFF_STREAM_EXECUTOR_QUEUE_DEPTH", "1024")
	t.Setenv("SCUFF_STREAM_SEQUENCER_BUFFER_LIMIT", "2048")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.WSAddr != "127.0.0.1:9000" {
		t.Fatalf("unexpected ws addr: %q", cfg.WSAddr)
	}
	if cfg.RPCAddr != "127.0.0.1:50051" {
		t.Fatalf("unexpected rpc addr: %q", cfg.RPCAddr)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://example.com" || cfg.AllowedOrigins[1] != "https://demo.local" {
		t.Fatalf("unexpected allowed origins: %#v", cfg.AllowedOrigins)
	}
	if cfg.MaxPayloadBytes != 2048 {
		t.Fatalf("expected overridden max payload, got %d", cfg.MaxPayloadBytes)
	}
	if cfg.PingInterval.String() != "45s" {
		t.Fatalf("expected ping interval 45s, got %v", cfg.PingInterval)
	}
	if cfg.MaxClients != 12 {
		t.Fatalf("expected max clients 12, got %d", cfg.MaxClients)
	}
	if cfg.TLSCertPath != "/tmp/cert.pem" || cfg.TLSKeyPath != "/tmp/key.pem" {
		t.Fatalf("unexpected TLS paths cert=%q key=%q", cfg.TLSCertPath, cfg.TLSKeyPath)
	}
	if cfg.AuthSecret != "s3cret" {
		t.Fatalf("expected overridden auth secret, got %q", cfg.AuthSecret)
	}
	if cfg.AuthTokenLeeway != 5*time.Second {
		t.Fatalf("expected auth token leeway 5s, got %v", cfg.AuthTokenLeeway)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected overridden log level debug, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Path != "/var/log/scuff.log" {
		t.Fatalf("unexpected log path %q", cfg.Logging.Path)
	}
	if cfg.Logging.MaxSizeMB != 512 {
		t.Fatalf("expected log max size 512, got %d", cfg.Logging.MaxSizeMB)
	}
	if cfg.Logging.MaxBackups != 4 {
		t.Fatalf("expected log max backups 4, got %d", cfg.Logging.MaxBackups)
	}
	if cfg.Logging.MaxAgeDays != 2 {
		t.Fatalf("expected log max age 2, got %d", cfg.Logging.MaxAgeDays)
	}
	if cfg.Logging.Compress {
		t.Fatalf("expected log compression disabled")
	}
	if cfg.ReplayRequestWindow != 2*time.Minute {
		t.Fatalf("expected replay request window 2m, got %v", cfg.ReplayRequestWindow)
	}
	if cfg.ReplayRequestBurst != 3 {
		t.Fatalf("expected replay request burst 3, got %d", cfg.ReplayRequestBurst)
	}
	if cfg.ArchiveDir != "/var/run/archive" {
		t.Fatalf("expected archive dir override, got %q", cfg.ArchiveDir)
	}
	if cfg.ArchiveInterval != 10*time.Minute {
		t.Fatalf("expected archive interval 10m, got %v", cfg.ArchiveInterval)
	}
	if cfg.Stream.ReplayBuffer != 512 {
		t.Fatalf("expected stream replay buffer 512, got %d", cfg.Stream.ReplayBuffer)
	}
	if cfg.Stream.GapReplayDelay != 3*time.Second {
		t.Fatalf("expected gap replay delay 3s, got %v", cfg.Stream.GapReplayDelay)
	}
	if cfg.Stream.MaxClockSkew != 2*time.Second {
		t.Fatalf("expected max clock skew 2s, got %v", cfg.Stream.MaxClockSkew)
	}
	if cfg.Stream.MaxReplayConsumptionWait != time.Minute {
		t.Fatalf("expected max replay consumption wait 1m, got %v", cfg.Stream.MaxReplayConsumptionWait)
	}
	if cfg.Stream.PerTransactionTimeout != 30*time.Second {
		t.Fatalf("expected per-transaction timeout 30s, got %v", cfg.Stream.PerTransactionTimeout)
	}
	if cfg.Stream.Workers != 8 {
		t.Fatalf("expected workers 8, got %d", cfg.Stream.Workers)
	}
	if cfg.Stream.ExecutorQueueDepth != 1024 {
		t.Fatalf("expected executor queue depth 1024, got %d", cfg.Stream.ExecutorQueueDepth)
	}
	if cfg.Stream.SequencerBufferLimit != 2048 {
		t.Fatalf("expected sequencer buffer limit 2048, got %d", cfg.Stream.SequencerBufferLimit)
	}
}

func TestLoadReturnsValidationErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCUFF_MAX_PAYLOAD_BYTES", "-5")
	t.Setenv("SCUFF_PING_INTERVAL", "abc")
	t.Setenv("SCUFF_MAX_CLIENTS", "-1")
	t.Setenv("SCUFF_TLS_CERT", "/tmp/cert.pem")
	t.Setenv("SCUFF_TLS_KEY", "")
	t.Setenv("SCUFF_LOG_MAX_SIZE_MB", "-1")
	t.Setenv("SCUFF_LOG_MAX_BACKUPS", "-2")
	t.Setenv("SCUFF_LOG_MAX_AGE_DAYS", "-3")
	t.Setenv("SCUFF_LOG_COMPRESS", "notabool")
	t.Setenv("SCUFF_REPLAY_REQUEST_WINDOW", "-")
	t.Setenv("SCUFF_REPLAY_REQUEST_BURST", "0")
	t.Setenv("SCUFF_ARCHIVE_INTERVAL", "-1s")
	t.Setenv("SCUFF_STREAM_WORKERS", "0")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error from invalid configuration, got nil")
	}

	for _, want := range []string{
		"SCUFF_MAX_PAYLOAD_BYTES",
		"SCUFF_PING_INTERVAL",
		"SCUFF_MAX_CLIENTS",
		"SCUFF_TLS_CERT",
		"SCUFF_LOG_MAX_SIZE_MB",
		"SCUFF_LOG_MAX_BACKUPS",
		"SCUFF_LOG_MAX_AGE_DAYS",
		"SCUFF_LOG_COMPRESS",
		"SCUFF_REPLAY_REQUEST_WINDOW",
		"SCUFF_REPLAY_REQUEST_BURST",
		"SCUFF_ARCHIVE_INTERVAL",
		"SCUFF_STREAM_WORKERS",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got %q", want, err.Error())
		}
	}
}

func TestLoadIgnoresEmptyAllowedOrigins(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCUFF_ALLOWED_ORIGINS", " , ,https://ok.example, ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://ok.example" {
		t.Fatalf("expected single cleaned origin, got %#v", cfg.AllowedOrigins)
	}
}

func TestLoadAllowsUnlimitedClients(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCUFF_MAX_CLIENTS", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.MaxClients != 0 {
		t.Fatalf("expected zero to disable limit, got %d", cfg.MaxClients)
	}
}

func TestLoadRejectsMismatchedTLSPair(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCUFF_TLS_CERT", "/tmp/cert.pem")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "SCUFF_TLS_CERT") {
		t.Fatalf("expected mismatched TLS pair error, got %v", err)
	}
}
