// =============================================================================
// NF-e to XLSX Converter - Main Entry Point
// =============================================================================
//
// USAGE:
//   conversor convert FILES... --mode calculo|filtrado|bruto
//   conversor lines FILE
//   conversor version
//
// ARCHITECTURE:
//   - cmd/      : CLI command definitions (Cobra)
//   - internal/ : extraction, calculation and workbook writing
//   - pkg/      : scratch files, output naming and run logs
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/cmd"
)

func main() {
	cmd.Execute()
}
