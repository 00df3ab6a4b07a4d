package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sander-remitly/plate-calc/internal/algorithm"
	"github.com/sander-remitly/plate-calc/internal/logger"
	"github.com/sander-remitly/plate-calc/internal/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	calcTarget    float64
	calcMode      string
	calcPlates    string
	calcJSON      bool
	calcNoHistory bool
)

// calcCmd runs one calculation from the command line
var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Calculate the plates for a target weight",
	Long: `Calculate the fewest plates that load a dumbbell (single) or a pair of
dumbbells (combined) to exactly the target weight.

Plates come from the stored inventory unless --plates lists them inline,
e.g. --plates 1.25x4,2.5x4,5x4.`,
	Example: `  platecalc calc --target 20
  platecalc calc --target 30 --mode combined --plates 2.5x8,5x8`,
	Args: cobra.NoArgs,
	RunE: runCalc,
}

func init() {
	calcCmd.Flags().Float64VarP(&calcTarget, "target", "t", 0, "Target weight in kg")
	calcCmd.Flags().StringVarP(&calcMode, "mode", "m", string(models.ModeSingle), "single or combined")
	calcCmd.Flags().StringVar(&calcPlates, "plates", "", "Inline inventory as WEIGHTxQUANTITY,...")
	calcCmd.Flags().BoolVar(&calcJSON, "json", false, "Print the result as JSON")
	calcCmd.Flags().BoolVar(&calcNoHistory, "no-history", false, "Do not record the calculation in the history")
	calcCmd.MarkFlagRequired("target")

	rootCmd.AddCommand(calcCmd)
}

func runCalc(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	mode, err := models.ParseMode(calcMode)
	if err != nil {
		return err
	}
	if !(calcTarget > 0) {
		return fmt.Errorf("target weight must be greater than 0kg")
	}
	if calcTarget > cfg.MaxTargetKg {
		return fmt.Errorf("target weight must not exceed %skg", formatKg(cfg.MaxTargetKg))
	}

	repository, err := openRepository()
	if err != nil {
		return err
	}
	defer repository.Close()

	var plates []models.Plate
	if calcPlates != "" {
		plates, err = parsePlateList(calcPlates)
		if err != nil {
			return err
		}
	} else {
		plates, err = repository.GetPlates()
		if err != nil {
			return err
		}
	}

	result := algorithm.Compute(plates, calcTarget, mode)
	logger.Log.Debug("Calculation finished",
		zap.Float64("target_weight", calcTarget),
		zap.String("mode", string(mode)),
		zap.Bool("success", result.Success),
	)

	if !calcNoHistory {
		entry := models.HistoryEntry{
			TargetWeight: result.TargetWeight,
			Mode:         result.Mode,
			Success:      result.Success,
			Plates:       result.Plates,
			TotalPlates:  result.TotalPlates,
			Error:        result.Error,
		}
		if err := repository.SaveCalculation(entry); err != nil {
			logger.Log.Warn("Failed to save calculation", zap.Error(err))
		}
	}

	out := cmd.OutOrStdout()
	if calcJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printResult(out, result)
	}

	if !result.Success {
		return fmt.Errorf("no plate combination found")
	}
	return nil
}

// parsePlateList parses "1.25x4,2.5x4" into plates in the given order
func parsePlateList(s string) ([]models.Plate, error) {
	var plates []models.Plate
	ids := make(map[string]int)

	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		weightStr, qtyStr, ok := strings.Cut(strings.ToLower(item), "x")
		if !ok {
			return nil, fmt.Errorf("plate %q: want WEIGHTxQUANTITY", item)
		}

		weight, err := strconv.ParseFloat(strings.TrimSpace(weightStr), 64)
		if err != nil {
			return nil, fmt.Errorf("plate %q: invalid weight", item)
		}
		quantity, err := strconv.Atoi(strings.TrimSpace(qtyStr))
		if err != nil {
			return nil, fmt.Errorf("plate %q: invalid quantity", item)
		}

		id := "plate-" + formatKg(weight)
		ids[id]++
		if n := ids[id]; n > 1 {
			id = fmt.Sprintf("%s-%d", id, n)
		}

		plates = append(plates, models.Plate{ID: id, Weight: weight, Quantity: quantity})
	}

	if err := algorithm.ValidatePlates(plates); err != nil {
		return nil, err
	}
	return plates, nil
}

func printResult(w io.Writer, result algorithm.Result) {
	fmt.Fprintf(w, "Target:   %skg (%s, %skg per side)\n",
		formatKg(result.TargetWeight), result.Mode, formatKg(result.PerSideWeight))

	if !result.Success {
		fmt.Fprintf(w, "Result:   %s\n", result.Error)
		return
	}

	for _, u := range result.Plates {
		fmt.Fprintf(w, "  %8skg x %d\n", formatKg(u.Plate.Weight), u.Count)
	}
	fmt.Fprintf(w, "Total:    %d plates, %skg\n", result.TotalPlates, formatKg(result.TotalWeight))
}

func formatKg(kg float64) string {
	return strconv.FormatFloat(kg, 'f', -1, 64)
}
