// =============================================================================
// NF-e to XLSX Converter - Lines Command
// =============================================================================
//
// This file defines the 'lines' command. It prints the line view of a
// document, one "index<TAB>line" per line, so the indices can be passed to
// 'convert --mode filtrado --lines'.
//
// PDF and TXT inputs are resolved to their embedded XML first, exactly as a
// conversion run would.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/converter"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/loader"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/types"
)

var linesCmd = &cobra.Command{
	Use:   "lines FILE",
	Short: "Print the numbered lines of a document for filtrado mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printLines(cmd.Context(), cmd.OutOrStdout(), args[0], converter.OptionsFromConfig(mainConfig, logger))
	},
}

func init() {
	rootCmd.AddCommand(linesCmd)
}

func printLines(ctx context.Context, out io.Writer, path string, opts converter.Options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	in := types.Input{Path: path, Name: filepath.Base(path)}
	batch, err := converter.Prepare(ctx, []types.Input{in}, types.ModeFiltered, opts)
	defer func() {
		if err := batch.Cleanup(); err != nil {
			logger.Warn("failed to remove scratch files", zap.Error(err))
		}
	}()
	if err != nil {
		return err
	}
	if len(batch.Rejected) > 0 {
		return batch.Rejected[0]
	}

	for i, line := range loader.ToLines(batch.Documents[0].XMLPath) {
		fmt.Fprintf(out, "%d\t%s\n", i, line)
	}
	return nil
}
