package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.Engine)
	assert.Equal(t, "eng", cfg.Language)
	assert.Equal(t, "eu", cfg.DocAI.Location)
	assert.Equal(t, 0.5, cfg.Detector.ConfThreshold)
	assert.Equal(t, 0.45, cfg.Detector.IoUThreshold)
	assert.Equal(t, 2000, cfg.Render.MaxSide)
	assert.Equal(t, "text", cfg.Output.Format)
	assert.Equal(t, "outline", cfg.Output.OverlayMode)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Batch.Workers)
	assert.Equal(t, "dibuix.db", cfg.Store.Path)

	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "trace" },
			wantErr: "invalid log_level",
		},
		{
			name:   "log level is case insensitive",
			mutate: func(c *Config) { c.LogLevel = "DEBUG" },
		},
		{
			name:    "bad engine",
			mutate:  func(c *Config) { c.Engine = "abbyy" },
			wantErr: "invalid engine",
		},
		{
			name:    "documentai needs processor identity",
			mutate:  func(c *Config) { c.Engine = "documentai" },
			wantErr: "docai.project_id",
		},
		{
			name: "documentai fully configured",
			mutate: func(c *Config) {
				c.Engine = "documentai"
				c.DocAI.ProjectID = "proj"
				c.DocAI.ProcessorID = "proc"
			},
		},
		{
			name:    "bad output format",
			mutate:  func(c *Config) { c.Output.Format = "xml" },
			wantErr: "invalid output.format",
		},
		{
			name:   "txt alias accepted",
			mutate: func(c *Config) { c.Output.Format = "txt" },
		},
		{
			name:    "bad overlay mode",
			mutate:  func(c *Config) { c.Output.OverlayMode = "neon" },
			wantErr: "invalid output.overlay_mode",
		},
		{
			name:    "port too small",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server.port",
		},
		{
			name:    "port too large",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server.port",
		},
		{
			name:    "upload limit must be positive",
			mutate:  func(c *Config) { c.Server.MaxUploadMB = 0 },
			wantErr: "max_upload_mb",
		},
		{
			name:    "workers must be positive",
			mutate:  func(c *Config) { c.Batch.Workers = 0 },
			wantErr: "batch.workers",
		},
		{
			name:    "detector needs a model",
			mutate:  func(c *Config) { c.Detector.Enabled = true },
			wantErr: "detector.model_path",
		},
		{
			name: "detector with model",
			mutate: func(c *Config) {
				c.Detector.Enabled = true
				c.Detector.ModelPath = "model.onnx"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
