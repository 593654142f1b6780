// =============================================================================
// NF-e to XLSX Converter - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (conversor)
//   ├── convertCmd (conversor convert)
//   ├── linesCmd   (conversor lines)
//   └── versionCmd (conversor version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --verbose)
//   2. Loading the main configuration (YAML or TOML)
//   3. Building the zap logger shared by every subcommand
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/config"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// mainConfig and logger are set up before any subcommand runs.
var (
	mainConfig *config.MainConfig
	logger     = zap.NewNop()
)

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "conversor",
	Short: "NF-e to XLSX Converter - Turn NF-e invoices into Excel workbooks",
	Long: `NF-e to XLSX Converter reads Brazilian electronic invoices (NF-e) given as
XML files, PDFs with the XML embedded, or text files containing the XML, and
writes one Excel workbook with one worksheet per invoice.

Output modes:
  calculo   - per-item tax table (unit ST, unit IPI, net totals)
  filtrado  - only the columns picked from the invoice lines
  bruto     - every field of every repeated item (products)

Example Usage:
  conversor convert nota1.xml nota2.pdf --mode calculo
  conversor lines nota1.xml
  conversor convert nota1.xml --mode filtrado --lines "12,14-16"`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},

	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file (YAML or TOML)",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}

// initConfig loads the configuration and builds the logger. The default
// config path may be absent; an explicit --config must exist.
func initConfig(cmd *cobra.Command) error {
	cfg, err := config.LoadMainConfig(cfgFile, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	mainConfig = cfg

	l, err := newLogger(cfg, verbose)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	logger = l
	return nil
}

// newLogger builds a console logger writing to stderr and, when configured,
// to the log file as well.
func newLogger(cfg *config.MainConfig, verbose bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.LogLevel))); err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Development = false
	zc.DisableStacktrace = !verbose
	zc.OutputPaths = []string{"stderr"}
	if cfg.LogFile != "" {
		zc.OutputPaths = append(zc.OutputPaths, cfg.LogFile)
	}

	return zc.Build()
}
