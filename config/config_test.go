package config

import (
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestValidate_WorkerCountBounds(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		cfg := DefaultConfig()
		cfg.WorkerCount = n
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() with worker_count=%d = %v, want nil", n, err)
		}
	}
	for _, n := range []int{0, 6, -1} {
		cfg := DefaultConfig()
		cfg.WorkerCount = n
		if err := cfg.Validate(); err == nil {
			t.Errorf("Validate() with worker_count=%d = nil, want error", n)
		}
	}
}

func TestValidate_DelayRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DelayFrom = 60
	cfg.DelayTo = 30
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with inverted delay range = nil, want error")
	}
}

func TestValidate_Privacy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultPrivacy = "secret"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with bad privacy = nil, want error")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MTYAP_WORKER_COUNT", "4")
	t.Setenv("MTYAP_DELAY_FROM", "5")
	t.Setenv("MTYAP_DELAY_TO", "10")
	t.Setenv("MTYAP_RETRY_BASE_DELAY", "45s")

	cfg := DefaultConfig()
	cfg.loadFromEnv()

	if cfg.WorkerCount != 4 {
		t.Errorf("WorkerCount = %d, want 4", cfg.WorkerCount)
	}
	if cfg.DelayFrom != 5 || cfg.DelayTo != 10 {
		t.Errorf("delay range = (%d, %d), want (5, 10)", cfg.DelayFrom, cfg.DelayTo)
	}
	if cfg.RetryBaseDelay != 45*time.Second {
		t.Errorf("RetryBaseDelay = %v, want 45s", cfg.RetryBaseDelay)
	}
}
