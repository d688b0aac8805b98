package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadLayersFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "skyfeed.yaml")
	body := "ranking:\n  recency_weight: 12.5\n  in_network_window: 24h\nstorage:\n  dsn: " + filepath.Join(dir, "x.db") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SKYFEED_RANKING__DIVERSITY_WINDOW", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ranking.RecencyWeight != 12.5 {
		t.Fatalf("recency weight: %v", cfg.Ranking.RecencyWeight)
	}
	if cfg.Ranking.InNetworkWindow != 24*time.Hour {
		t.Fatalf("window: %v", cfg.Ranking.InNetworkWindow)
	}
	if cfg.Ranking.DiversityWindow != 5 {
		t.Fatalf("env override: %d", cfg.Ranking.DiversityWindow)
	}
	// untouched fields keep defaults
	if cfg.Hotness.Window != 7*24*time.Hour {
		t.Fatalf("hotness window: %v", cfg.Hotness.Window)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("driver: %s", cfg.Storage.Driver)
	}
}

func TestValidateRejectsBadDriver(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "skyfeed.yaml")
	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ranking.MaxCandidates != Default().Ranking.MaxCandidates {
		t.Fatalf("max candidates: %d", cfg.Ranking.MaxCandidates)
	}
}
