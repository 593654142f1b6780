// =============================================================================
// NF-e to XLSX Converter - Configuration Module
// =============================================================================
//
// This module is responsible for loading and managing the application
// configuration. A single file holds every setting; it may be written in
// YAML (config.yaml) or TOML (config.toml), selected by extension.
//
// CONFIGURATION FILE:
//   output_dir, output_name_format  : where the workbook goes
//   scratch_dir                     : where XML pulled out of PDF/TXT is staged
//   max_files                       : limit of inputs per run
//   admission_scan_limit, nfe_namespace : calculation-mode admission filter
//   max_column_width, raw_dump_max_column_width, missing_placeholder
//   log_level, log_file, write_error_log
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// OutputDir is the directory used when no explicit destination is given.
	// Default: "."
	OutputDir string `yaml:"output_dir" toml:"output_dir"`

	// OutputNameFormat defines the workbook file name.
	// Placeholders:
	//   {timestamp} - Current timestamp (YYYYMMDD_HHMM)
	//   {date}      - Current date (YYYYMMDD)
	//   {uuid}      - A random UUID
	// Default: "ConversorNFe_{timestamp}.xlsx"
	OutputNameFormat string `yaml:"output_name_format" toml:"output_name_format"`

	// WriteErrorLog writes the list of rejected files next to the workbook.
	WriteErrorLog bool `yaml:"write_error_log" toml:"write_error_log"`

	// =========================================================================
	// INPUT SETTINGS
	// =========================================================================

	// ScratchDir is where XML extracted from PDF/TXT inputs is staged.
	// Empty means the OS temporary directory.
	ScratchDir string `yaml:"scratch_dir" toml:"scratch_dir"`

	// MaxFiles is the maximum number of inputs accepted in one run.
	// Set to 0 to disable the limit.
	// Default: 10
	MaxFiles int `yaml:"max_files" toml:"max_files"`

	// =========================================================================
	// CALCULATION MODE ADMISSION
	// =========================================================================

	// AdmissionScanLimit is how many leading characters of a document are
	// inspected by the admission filter.
	// Default: 20000
	AdmissionScanLimit int `yaml:"admission_scan_limit" toml:"admission_scan_limit"`

	// NFeNamespace is the namespace URI that marks an authentic NF-e.
	// Default: "http://www.portalfiscal.inf.br/nfe"
	NFeNamespace string `yaml:"nfe_namespace" toml:"nfe_namespace"`

	// =========================================================================
	// SPREADSHEET SETTINGS
	// =========================================================================

	// MaxColumnWidth caps the auto-fitted column width.
	// Default: 120
	MaxColumnWidth float64 `yaml:"max_column_width" toml:"max_column_width"`

	// RawDumpMaxColumnWidth caps the width of the single-record tag/value dump.
	// Default: 80
	RawDumpMaxColumnWidth float64 `yaml:"raw_dump_max_column_width" toml:"raw_dump_max_column_width"`

	// MissingPlaceholder is written into cells of columns a row does not have.
	// Default: "não possui"
	MissingPlaceholder string `yaml:"missing_placeholder" toml:"missing_placeholder"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogFile is an optional log file written in addition to stderr.
	LogFile string `yaml:"log_file" toml:"log_file"`

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level" toml:"log_level"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Default returns a configuration with every default applied.
func Default() *MainConfig {
	cfg := &MainConfig{}
	applyMainConfigDefaults(cfg)
	return cfg
}

// LoadMainConfig loads the main configuration from a YAML or TOML file.
//
// PARAMETERS:
//   - configPath: The path to the configuration file.
//   - required: When false, a missing file yields the defaults.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be read, parsed or validated.
func LoadMainConfig(configPath string, required bool) (*MainConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config MainConfig
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyMainConfigDefaults(&config)

	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyMainConfigDefaults sets default values for any unset configuration options.
func applyMainConfigDefaults(config *MainConfig) {
	if config.OutputDir == "" {
		config.OutputDir = "."
	}
	if config.OutputNameFormat == "" {
		config.OutputNameFormat = "ConversorNFe_{timestamp}.xlsx"
	}
	if config.MaxFiles == 0 {
		config.MaxFiles = 10
	}
	if config.AdmissionScanLimit == 0 {
		config.AdmissionScanLimit = 20000
	}
	if config.NFeNamespace == "" {
		config.NFeNamespace = "http://www.portalfiscal.inf.br/nfe"
	}
	if config.MaxColumnWidth == 0 {
		config.MaxColumnWidth = 120
	}
	if config.RawDumpMaxColumnWidth == 0 {
		config.RawDumpMaxColumnWidth = 80
	}
	if config.MissingPlaceholder == "" {
		config.MissingPlaceholder = "não possui"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
}

// validateMainConfig validates the main configuration.
func validateMainConfig(config *MainConfig) error {
	switch strings.ToLower(config.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", config.LogLevel)
	}

	if config.MaxFiles < 0 {
		return fmt.Errorf("max_files must not be negative")
	}
	if config.AdmissionScanLimit < 0 {
		return fmt.Errorf("admission_scan_limit must not be negative")
	}

	// Excel refuses columns wider than 255 characters.
	if config.MaxColumnWidth < 0 || config.MaxColumnWidth > 255 {
		return fmt.Errorf("max_column_width must be between 0 and 255")
	}
	if config.RawDumpMaxColumnWidth < 0 || config.RawDumpMaxColumnWidth > 255 {
		return fmt.Errorf("raw_dump_max_column_width must be between 0 and 255")
	}

	if config.ScratchDir != "" {
		if err := os.MkdirAll(config.ScratchDir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", config.ScratchDir, err)
		}
	}

	return nil
}
