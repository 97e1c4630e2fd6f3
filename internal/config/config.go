/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package config reads process-level configuration from the environment,
// following the teacher's dual-env-var-name convention (a legacy short
// prefix is still honored alongside the current AUDIOENGINE_ prefix) and
// collecting a warning for each known legacy key that is set rather than
// failing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DeviceBackend selects the DeviceStream implementation the sink uses.
type DeviceBackend string

const (
	DeviceBackendNull DeviceBackend = "null"
	DeviceBackendFile DeviceBackend = "file"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string

	// Plugin runtime (§4.F, §4.G)
	PluginsDir string

	// Device sink (§4.B)
	DeviceBackend  DeviceBackend
	DeviceFilePath string
	RingMillis     int

	// Control router (§4.I)
	ControlFinishTimeout time.Duration

	// Session preload cache (§4.J), backed by Redis via internal/cache.
	CacheEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Event bus bridge (out-of-process event forwarding)
	EventBusEnabled bool
	NATSURL         string
	NATSToken       string
	NATSStreamName  string

	// WebRTC source ingestion
	WebRTCSTUNURL      string
	WebRTCTURNURL      string
	WebRTCTURNUsername string
	WebRTCTURNPassword string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	InstanceID        string
	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"AUDIOENGINE_ENV", "GRIMNIR_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"AUDIOENGINE_HTTP_BIND", "GRIMNIR_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"AUDIOENGINE_HTTP_PORT", "GRIMNIR_HTTP_PORT"}, 8080),
		MetricsBind: getEnvAny([]string{"AUDIOENGINE_METRICS_BIND", "GRIMNIR_METRICS_BIND"}, "127.0.0.1:9000"),

		PluginsDir: getEnvAny([]string{"AUDIOENGINE_PLUGINS_DIR", "GRIMNIR_PLUGINS_DIR"}, "./plugins"),

		DeviceBackend:  DeviceBackend(getEnvAny([]string{"AUDIOENGINE_DEVICE_BACKEND", "GRIMNIR_DEVICE_BACKEND"}, string(DeviceBackendNull))),
		DeviceFilePath: getEnvAny([]string{"AUDIOENGINE_DEVICE_FILE_PATH", "GRIMNIR_DEVICE_FILE_PATH"}, "./output.pcm"),
		RingMillis:     getEnvIntAny([]string{"AUDIOENGINE_RING_MILLIS", "GRIMNIR_RING_MILLIS"}, 200),

		ControlFinishTimeout: time.Duration(getEnvIntAny([]string{"AUDIOENGINE_CONTROL_FINISH_TIMEOUT_MS", "GRIMNIR_CONTROL_FINISH_TIMEOUT_MS"}, 15000)) * time.Millisecond,

		CacheEnabled:  getEnvBoolAny([]string{"AUDIOENGINE_CACHE_ENABLED", "GRIMNIR_CACHE_ENABLED"}, false),
		RedisAddr:     getEnvAny([]string{"AUDIOENGINE_REDIS_ADDR", "GRIMNIR_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"AUDIOENGINE_REDIS_PASSWORD", "GRIMNIR_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"AUDIOENGINE_REDIS_DB", "GRIMNIR_REDIS_DB"}, 0),

		EventBusEnabled: getEnvBoolAny([]string{"AUDIOENGINE_EVENTBUS_ENABLED", "GRIMNIR_EVENTBUS_ENABLED"}, false),
		NATSURL:         getEnvAny([]string{"AUDIOENGINE_NATS_URL", "GRIMNIR_NATS_URL"}, "nats://localhost:4222"),
		NATSToken:       getEnvAny([]string{"AUDIOENGINE_NATS_TOKEN", "GRIMNIR_NATS_TOKEN"}, ""),
		NATSStreamName:  getEnvAny([]string{"AUDIOENGINE_NATS_STREAM", "GRIMNIR_NATS_STREAM"}, "AUDIOENGINE_EVENTS"),

		WebRTCSTUNURL:      getEnvAny([]string{"AUDIOENGINE_WEBRTC_STUN_URL", "GRIMNIR_WEBRTC_STUN_URL"}, "stun:stun.l.google.com:19302"),
		WebRTCTURNURL:      getEnvAny([]string{"AUDIOENGINE_WEBRTC_TURN_URL", "GRIMNIR_WEBRTC_TURN_URL"}, ""),
		WebRTCTURNUsername: getEnvAny([]string{"AUDIOENGINE_WEBRTC_TURN_USERNAME", "GRIMNIR_WEBRTC_TURN_USERNAME"}, ""),
		WebRTCTURNPassword: getEnvAny([]string{"AUDIOENGINE_WEBRTC_TURN_PASSWORD", "GRIMNIR_WEBRTC_TURN_PASSWORD"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"AUDIOENGINE_TRACING_ENABLED", "GRIMNIR_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"AUDIOENGINE_OTLP_ENDPOINT", "GRIMNIR_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"AUDIOENGINE_TRACING_SAMPLE_RATE", "GRIMNIR_TRACING_SAMPLE_RATE"}, 1.0),

		InstanceID: getEnvAny([]string{"AUDIOENGINE_INSTANCE_ID", "GRIMNIR_INSTANCE_ID"}, ""),
	}

	if cfg.DeviceBackend != DeviceBackendNull && cfg.DeviceBackend != DeviceBackendFile {
		return nil, fmt.Errorf("unsupported device backend %q", cfg.DeviceBackend)
	}

	if cfg.RingMillis <= 0 {
		return nil, fmt.Errorf("AUDIOENGINE_RING_MILLIS must be positive")
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.WebRTCTURNURL != "" && (cfg.WebRTCTURNUsername == "" || cfg.WebRTCTURNPassword == "") {
			return nil, fmt.Errorf("AUDIOENGINE_WEBRTC_TURN_USERNAME and AUDIOENGINE_WEBRTC_TURN_PASSWORD are required when TURN is configured in production")
		}
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"GRIMNIR_ENV":             "use AUDIOENGINE_ENV",
		"GRIMNIR_PLUGINS_DIR":     "use AUDIOENGINE_PLUGINS_DIR",
		"GRIMNIR_DEVICE_BACKEND":  "use AUDIOENGINE_DEVICE_BACKEND",
		"GRIMNIR_TRACING_ENABLED": "use AUDIOENGINE_TRACING_ENABLED",
		"GRIMNIR_OTLP_ENDPOINT":   "use AUDIOENGINE_OTLP_ENDPOINT",
		"GRIMNIR_REDIS_ADDR":      "use AUDIOENGINE_REDIS_ADDR",
		"GRIMNIR_NATS_URL":        "use AUDIOENGINE_NATS_URL",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
