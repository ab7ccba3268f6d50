package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnBadCatalogTTL(t *testing.T) {
	t.Setenv("CATALOG_CACHE_TTL_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.CatalogCacheTTLSeconds != 60 {
		t.Fatalf("expected default catalog TTL 60, got %d", cfg.CatalogCacheTTLSeconds)
	}
}
