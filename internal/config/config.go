// Package config loads the VM's YAML configuration with environment
// variable overrides, via a process-wide singleton plus an
// applyEnvOverrides pass.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v2"
)

// Config is the root configuration document for a synapsevm process.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	VM      VMConfig      `yaml:"vm"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the embedding admin HTTP server (cmd/synapsevm).
type ServerConfig struct {
	Port            string `yaml:"port"`
	Interface       string `yaml:"interface"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	ShutdownSec     int    `yaml:"shutdown_timeout_sec"`
}

// VMConfig tunes the interpreter core: sandbox limits, the collector,
// and the slots cuckoo table.
type VMConfig struct {
	Sandbox SandboxConfig `yaml:"sandbox"`
	GC      GCConfig      `yaml:"gc"`
	Slots   SlotsConfig   `yaml:"slots"`
}

// SandboxConfig bounds a single evaluation: a hard message-count
// ceiling and a wall-clock deadline, either of which aborts the
// running coroutine with a sandbox exception.
type SandboxConfig struct {
	MessageCountLimit int64 `yaml:"message_count_limit"`
	TimeLimitMS       int64 `yaml:"time_limit_ms"`
}

// GCConfig tunes the collector: the total cap on recycled objects held
// in the per-kind free lists, and the scan quantum per Step call that
// Collect uses when draining the gray list.
type GCConfig struct {
	MaxRecycledObjects int `yaml:"max_recycled_objects"`
	GCQuantum          int `yaml:"gc_quantum"`
}

// SlotsConfig tunes the cuckoo-hashed slot table.
type SlotsConfig struct {
	MaxDisplacement int `yaml:"max_displacement"`
}

// BridgeConfig tunes the Synaptic Bridge FFI gateway: its worker pool,
// shared-memory pool, circuit breaker, and telemetry retention.
type BridgeConfig struct {
	WorkerPool   WorkerPoolConfig   `yaml:"worker_pool"`
	SharedMemory SharedMemoryConfig `yaml:"shared_memory"`
	CircuitBreak CircuitBreakConfig `yaml:"circuit_breaker"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	KernelTap    KernelTapConfig    `yaml:"kernel_tap"`
}

// WorkerPoolConfig sizes the bounded worker pool that executes
// dispatched tasks.
type WorkerPoolConfig struct {
	WorkerCount    int `yaml:"worker_count"`
	TaskQueueDepth int `yaml:"task_queue_depth"`
}

// SharedMemoryConfig sizes the named-buffer shared-memory pool used to
// hand large payloads to workers without copying them through task
// descriptors.
type SharedMemoryConfig struct {
	PoolSizeBytes             int64 `yaml:"pool_size_bytes"`
	DefaultReplyCapacityBytes int   `yaml:"default_reply_capacity_bytes"`
	MaxPayloadBytes           int   `yaml:"max_payload_bytes"`
}

// CircuitBreakConfig mirrors internal/circuitbreaker's tunables,
// applied per worker proxy.
type CircuitBreakConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	ResetTimeoutSec  int `yaml:"reset_timeout_sec"`
	HalfOpenMax      int `yaml:"half_open_max_requests"`
}

// TelemetryConfig bounds the in-memory telemetry store.
type TelemetryConfig struct {
	EventBufferSize       int       `yaml:"event_buffer_size"`
	SummaryHistoryWindow  int       `yaml:"summary_history_window"`
	LatencyBucketBoundsMS []float64 `yaml:"latency_bucket_bounds_ms"`
}

// KernelTapConfig toggles the optional eBPF ring-buffer tap used to
// observe worker syscall activity out of band.
type KernelTapConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PinnedPath string `yaml:"pinned_path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide singleton configuration, loading it
// from CONFIG_PATH (default "config.yaml") on first use.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
			cfg = defaults()
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig reads and parses a YAML config file, seeding unset fields
// from defaults() first so a partial file still produces a usable
// configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := defaults()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Interface:       "0.0.0.0",
			ReadTimeoutSec:  10,
			WriteTimeoutSec: 10,
			ShutdownSec:     5,
		},
		VM: VMConfig{
			Sandbox: SandboxConfig{MessageCountLimit: 0, TimeLimitMS: 0},
			GC:      GCConfig{MaxRecycledObjects: 4096, GCQuantum: 64},
			Slots:   SlotsConfig{MaxDisplacement: 10},
		},
		Bridge: BridgeConfig{
			WorkerPool: WorkerPoolConfig{WorkerCount: 4, TaskQueueDepth: 256},
			SharedMemory: SharedMemoryConfig{
				PoolSizeBytes:             64 << 20,
				DefaultReplyCapacityBytes: 64 * 1024,
				MaxPayloadBytes:           4 << 20,
			},
			CircuitBreak: CircuitBreakConfig{FailureThreshold: 5, ResetTimeoutSec: 30, HalfOpenMax: 1},
			Telemetry: TelemetryConfig{
				EventBufferSize:       4096,
				SummaryHistoryWindow:  60,
				LatencyBucketBoundsMS: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			KernelTap: KernelTapConfig{Enabled: false},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// applyEnvOverrides applies environment variable overrides on top of
// whatever LoadConfig produced.
func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("SYNAPSEVM_PORT", c.Server.Port)
	c.Server.Interface = getEnv("SYNAPSEVM_INTERFACE", c.Server.Interface)

	if v := getEnvInt64("SYNAPSEVM_MESSAGE_COUNT_LIMIT", 0); v > 0 {
		c.VM.Sandbox.MessageCountLimit = v
	}
	if v := getEnvInt64("SYNAPSEVM_TIME_LIMIT_MS", 0); v > 0 {
		c.VM.Sandbox.TimeLimitMS = v
	}
	if v := getEnvInt("SYNAPSEVM_GC_QUANTUM", 0); v > 0 {
		c.VM.GC.GCQuantum = v
	}
	if v := getEnvInt("SYNAPSEVM_MAX_RECYCLED_OBJECTS", 0); v > 0 {
		c.VM.GC.MaxRecycledObjects = v
	}

	if v := getEnvInt("SYNAPSEVM_BRIDGE_WORKER_COUNT", 0); v > 0 {
		c.Bridge.WorkerPool.WorkerCount = v
	}
	c.Bridge.KernelTap.Enabled = getEnvBool("SYNAPSEVM_KERNEL_TAP_ENABLED", c.Bridge.KernelTap.Enabled)

	c.Logging.Level = getEnv("SYNAPSEVM_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("SYNAPSEVM_LOG_FORMAT", c.Logging.Format)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}
