package config

import "testing"

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DeviceBackend != DeviceBackendNull {
		t.Fatalf("unexpected default device backend: %q", cfg.DeviceBackend)
	}
	if cfg.RingMillis <= 0 {
		t.Fatal("expected a positive default ring size")
	}
	if cfg.ControlFinishTimeout <= 0 {
		t.Fatal("expected a positive default control finish timeout")
	}
}

func TestLoadRejectsUnsupportedDeviceBackend(t *testing.T) {
	t.Setenv("AUDIOENGINE_DEVICE_BACKEND", "coreaudio")
	if _, err := Load(); err == nil {
		t.Fatal("expected unsupported device backend to fail")
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("GRIMNIR_ENV", "development")
	t.Setenv("GRIMNIR_TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}

func TestLoadProductionRequiresTurnCredentialsWhenTurnConfigured(t *testing.T) {
	t.Setenv("AUDIOENGINE_ENV", "production")
	t.Setenv("AUDIOENGINE_WEBRTC_TURN_URL", "turn:turn.example.com:3478")
	t.Setenv("AUDIOENGINE_WEBRTC_TURN_USERNAME", "")
	t.Setenv("AUDIOENGINE_WEBRTC_TURN_PASSWORD", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail when TURN credentials are missing")
	}

	t.Setenv("AUDIOENGINE_WEBRTC_TURN_USERNAME", "user")
	t.Setenv("AUDIOENGINE_WEBRTC_TURN_PASSWORD", "pass")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config load with TURN creds to succeed: %v", err)
	}
}
