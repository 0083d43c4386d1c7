// Copyright 2025 James Ross
package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Mode != "local" {
		t.Fatalf("expected default storage mode local, got %q", cfg.Storage.Mode)
	}
	if cfg.Queue.Addr == "" {
		t.Fatalf("expected default queue addr")
	}
	if cfg.JobEngine.MaxAttempts != 3 {
		t.Fatalf("expected default max attempts 3, got %d", cfg.JobEngine.MaxAttempts)
	}
}

func TestValidateFails(t *testing.T) {
	cfg := defaultConfig()
	cfg.Storage.Mode = "local"
	cfg.Storage.LocalRoot = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for missing local_root in local mode")
	}

	cfg = defaultConfig()
	cfg.Storage.Mode = "remote"
	cfg.Storage.RemoteBucket = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for missing remote_bucket in remote mode")
	}

	cfg = defaultConfig()
	cfg.Queue.PopTimeout = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for queue.pop_timeout <= 0")
	}

	cfg = defaultConfig()
	cfg.JobEngine.MaxAttempts = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for job_engine.max_attempts <= 0")
	}

	cfg = defaultConfig()
	cfg.Storage.LocalRoot = "/data"
	cfg.Observability.Tracing.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for tracing enabled without endpoint")
	}

	cfg = defaultConfig()
	cfg.Storage.LocalRoot = "/data"
	cfg.Observability.Tracing.SamplingRate = 1.5
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for sampling rate outside [0,1]")
	}
}
