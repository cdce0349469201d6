package config

import (
	"errors"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	t.Setenv("ENV", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIBaseURL != DefaultAPIBaseURL {
		t.Errorf("APIBaseURL = %q, want %q", cfg.APIBaseURL, DefaultAPIBaseURL)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Production() {
		t.Error("Production() = true for default env")
	}
}

func TestLoad_ProductionRequiresHTTPS(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "production-secret-value")
	t.Setenv("API_BASE_URL", "http://api.example.com")

	_, err := Load()
	if !errors.Is(err, ErrInsecureAPIBaseURL) {
		t.Fatalf("Load() error = %v, want ErrInsecureAPIBaseURL", err)
	}
}

func TestLoad_ProductionHTTPS(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "production-secret-value")
	t.Setenv("API_BASE_URL", "https://api.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIBaseURL != "https://api.example.com" {
		t.Errorf("APIBaseURL = %q, trailing slash should be trimmed", cfg.APIBaseURL)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "eighty")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject a non-numeric PORT")
	}
}

func TestValidate_RejectsMalformedURL(t *testing.T) {
	cfg := Config{APIBaseURL: "not a url"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should reject a URL without a host")
	}
}
