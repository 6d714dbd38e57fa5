package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable prefix for all Sonar settings
const envPrefix = "SONAR_"

// ProbeConfig contains probe-side settings
type ProbeConfig struct {
	// Preferred source address and interface; empty means automatic
	SourceAddr      string
	SourceInterface string

	// Listening time after the last probe of each phase
	WaitWindow time.Duration

	// Bound on publishing the finish sentinel
	FinishTimeout time.Duration
}

// CaptureConfig contains packet capture settings
type CaptureConfig struct {
	Interface    string // "any" captures on every device
	SnapLen      int
	PollInterval time.Duration
	Promiscuous  bool
}

// QueueConfig contains alive-host queue settings
type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	SessionID     int // Redis database of the detection session
	Key           string
	PopTimeout    time.Duration // Consumer wait per Next call
}

// DNSConfig contains hostname resolution settings
type DNSConfig struct {
	// Comma-separated host:port list; empty means /etc/resolv.conf
	Servers   string
	Transport string // "udp" or "tls"
	Timeout   time.Duration
}

// DefaultProbeConfig returns default probe configuration
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		SourceAddr:      getEnvString("SOURCE_ADDR", ""),
		SourceInterface: getEnvString("SOURCE_INTERFACE", ""),
		WaitWindow:      getEnvDuration("WAIT_WINDOW", 3*time.Second),     // 3s
		FinishTimeout:   getEnvDuration("FINISH_TIMEOUT", 10*time.Second), // 10s
	}
}

// DefaultCaptureConfig returns default capture configuration
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Interface:    getEnvString("CAPTURE_INTERFACE", "any"),
		SnapLen:      getEnvInt("CAPTURE_SNAPLEN", 1500),                   // 1500 bytes
		PollInterval: getEnvDuration("CAPTURE_POLL", 100*time.Millisecond), // 100ms
		Promiscuous:  getEnvBool("CAPTURE_PROMISC", true),
	}
}

// DefaultQueueConfig returns default queue configuration
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		RedisAddr:     getEnvString("REDIS_ADDR", ""),
		RedisPassword: getEnvString("REDIS_PASSWORD", ""),
		SessionID:     getEnvInt("SESSION_ID", 0),
		Key:           getEnvString("QUEUE_KEY", "alive_detection"),
		PopTimeout:    getEnvDuration("POP_TIMEOUT", 5*time.Second), // 5s
	}
}

// DefaultDNSConfig returns default DNS configuration
func DefaultDNSConfig() DNSConfig {
	return DNSConfig{
		Servers:   getEnvString("DNS_SERVERS", ""),
		Transport: getEnvString("DNS_TRANSPORT", "udp"),
		Timeout:   getEnvDuration("DNS_TIMEOUT", 2*time.Second), // 2s
	}
}

// getEnvInt retrieves an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(envPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable with a default value
// Accepts values like "500ms", "5s", "1m"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(envPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable with a default value
// Accepts: "true", "false", "1", "0", "yes", "no", "on", "off" (case-insensitive)
func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(envPrefix + key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultValue
}

// getEnvString retrieves a string environment variable with a default value
func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(envPrefix + key); val != "" {
		return val
	}
	return defaultValue
}

// Global configuration instances (initialized once at startup)
var (
	Probe   = DefaultProbeConfig()
	Capture = DefaultCaptureConfig()
	Queue   = DefaultQueueConfig()
	DNS     = DefaultDNSConfig()
)

// Init initializes all configuration from environment variables
// Call this at application startup
func Init() {
	Probe = DefaultProbeConfig()
	Capture = DefaultCaptureConfig()
	Queue = DefaultQueueConfig()
	DNS = DefaultDNSConfig()
}
