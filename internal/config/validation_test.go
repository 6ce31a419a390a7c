package config

import (
	"errors"
	"testing"
)

func validConfig() *Config {
	return &Config{
		ListenAddr:        ":8080",
		GeminiAPIKey:      "test-key",
		ModelName:         DefaultModelName,
		EmbedderModel:     DefaultEmbedderModel,
		EmbedderDimension: DefaultEmbedderDimension,
		TopK:              8,
		ChunkSize:         1500,
		ChunkOverlap:      200,
		StorageBackend:    BackendPostgres,
		PostgresHost:      "localhost",
		PostgresPort:      5432,
		PostgresUser:      "gitquery",
		PostgresPassword:  "secret",
		PostgresDBName:    "gitquery",
		PostgresSSLMode:   "disable",
		SQLitePath:        "data/gitquery.db",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid postgres", func(*Config) {}, nil},
		{"valid sqlite", func(c *Config) { c.StorageBackend = BackendSQLite }, nil},
		{"missing api key", func(c *Config) { c.GeminiAPIKey = "" }, ErrMissingAPIKey},
		{"empty model", func(c *Config) { c.ModelName = "" }, ErrInvalidModelName},
		{"empty embedder", func(c *Config) { c.EmbedderModel = "" }, ErrInvalidEmbedderModel},
		{"zero dimension", func(c *Config) { c.EmbedderDimension = 0 }, ErrInvalidEmbedderDimension},
		{"huge dimension", func(c *Config) { c.EmbedderDimension = 5000 }, ErrInvalidEmbedderDimension},
		{"zero top_k", func(c *Config) { c.TopK = 0 }, ErrInvalidTopK},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }, ErrInvalidChunking},
		{"overlap >= size", func(c *Config) { c.ChunkOverlap = 1500 }, ErrInvalidChunking},
		{"negative overlap", func(c *Config) { c.ChunkOverlap = -1 }, ErrInvalidChunking},
		{"unknown backend", func(c *Config) { c.StorageBackend = "redis" }, ErrInvalidStorageBackend},
		{"empty postgres host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"bad postgres port", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"sqlite without path", func(c *Config) {
			c.StorageBackend = BackendSQLite
			c.SQLitePath = ""
		}, ErrInvalidSQLitePath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNilConfig(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Fatalf("Validate() = %v, want ErrConfigNil", err)
	}
}
