package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "refs")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "refs")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.SearchProvider != "crossref" {
		t.Errorf("SearchProvider = %q", cfg.SearchProvider)
	}
	if cfg.DOIResolverURL != "https://doi.org/" {
		t.Errorf("DOIResolverURL = %q", cfg.DOIResolverURL)
	}
	if cfg.HTTPTimeout != 60*time.Second {
		t.Errorf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
	if cfg.ReferenceWorkers != 5 {
		t.Errorf("ReferenceWorkers = %d", cfg.ReferenceWorkers)
	}
	if cfg.ExportEnabled() {
		t.Error("export should be disabled without S3 settings")
	}
	if dsn := cfg.DSN(); !strings.Contains(dsn, "host=localhost") || !strings.Contains(dsn, "port=5432") {
		t.Errorf("DSN() = %q", dsn)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	setRequired(t)
	t.Setenv("SEARCH_PROVIDER", "scholar")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown search provider")
	}
}

func TestLoadMissingRequired(t *testing.T) {
	for _, k := range []string{"DB_HOST", "DB_USER", "DB_PASSWORD", "DB_NAME"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing DB settings")
	}
}
