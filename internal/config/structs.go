package config

import (
	"fmt"
	"strings"
)

// Config represents the complete configuration for the dibuix
// application. It covers all commands (process, batch, export, serve)
// and loads from configuration files, environment variables and flags.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// OCR engine selection: auto, documentai or tesseract.
	Engine   string `mapstructure:"engine" yaml:"engine" json:"engine"`
	Language string `mapstructure:"language" yaml:"language" json:"language"`

	DocAI    DocAIConfig    `mapstructure:"docai" yaml:"docai" json:"docai"`
	Detector DetectorConfig `mapstructure:"detector" yaml:"detector" json:"detector"`
	Render   RenderConfig   `mapstructure:"render" yaml:"render" json:"render"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output" json:"output"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
	Batch    BatchConfig    `mapstructure:"batch" yaml:"batch" json:"batch"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store" json:"store"`
}

// DocAIConfig identifies the Document AI processor.
type DocAIConfig struct {
	ProjectID       string `mapstructure:"project_id" yaml:"project_id" json:"project_id"`
	Location        string `mapstructure:"location" yaml:"location" json:"location"`
	ProcessorID     string `mapstructure:"processor_id" yaml:"processor_id" json:"processor_id"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file" json:"credentials_file"`
}

// DetectorConfig contains technical element detector settings.
type DetectorConfig struct {
	Enabled          bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	ModelPath        string  `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	LibraryPath      string  `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	ConfThreshold    float64 `mapstructure:"conf_threshold" yaml:"conf_threshold" json:"conf_threshold"`
	IoUThreshold     float64 `mapstructure:"iou_threshold" yaml:"iou_threshold" json:"iou_threshold"`
	NumThreads       int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	MaxMergeDistance float64 `mapstructure:"max_merge_distance" yaml:"max_merge_distance" json:"max_merge_distance"`
}

// RenderConfig contains PDF page rasterization settings.
type RenderConfig struct {
	Pages   string `mapstructure:"pages" yaml:"pages" json:"pages"`
	MaxSide int    `mapstructure:"max_side" yaml:"max_side" json:"max_side"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format      string `mapstructure:"format" yaml:"format" json:"format"`
	File        string `mapstructure:"file" yaml:"file" json:"file"`
	OverlayMode string `mapstructure:"overlay_mode" yaml:"overlay_mode" json:"overlay_mode"`
	ShowOrder   bool   `mapstructure:"show_order" yaml:"show_order" json:"show_order"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int64  `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDayMB   int64 `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers         int    `mapstructure:"workers" yaml:"workers" json:"workers"`
	OutputDir       string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
	ContinueOnError bool   `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
}

// StoreConfig contains document store settings.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Engine:   "auto",
		Language: "eng",
		DocAI: DocAIConfig{
			Location: "eu",
		},
		Detector: DetectorConfig{
			ConfThreshold:    0.5,
			IoUThreshold:     0.45,
			MaxMergeDistance: 100,
		},
		Render: RenderConfig{
			MaxSide: 2000,
		},
		Output: OutputConfig{
			Format:      "text",
			OverlayMode: "outline",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      300,
			ShutdownTimeout: 10,
		},
		Batch: BatchConfig{
			Workers:         4,
			ContinueOnError: true,
		},
		Store: StoreConfig{
			Path: "dibuix.db",
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (expected debug, info, warn or error)", c.LogLevel)
	}

	switch c.Engine {
	case "auto", "documentai", "tesseract":
	default:
		return fmt.Errorf("invalid engine %q (expected auto, documentai or tesseract)", c.Engine)
	}

	if c.Engine == "documentai" {
		if c.DocAI.ProjectID == "" || c.DocAI.ProcessorID == "" {
			return fmt.Errorf("engine documentai requires docai.project_id and docai.processor_id")
		}
	}

	switch c.Output.Format {
	case "text", "txt", "json", "csv", "pdf":
	default:
		return fmt.Errorf("invalid output.format %q (expected text, json, csv or pdf)", c.Output.Format)
	}

	switch c.Output.OverlayMode {
	case "outline", "heatmap":
	default:
		return fmt.Errorf("invalid output.overlay_mode %q (expected outline or heatmap)", c.Output.OverlayMode)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be at least 1")
	}
	if c.Detector.Enabled && c.Detector.ModelPath == "" {
		return fmt.Errorf("detector.enabled requires detector.model_path")
	}
	return nil
}
