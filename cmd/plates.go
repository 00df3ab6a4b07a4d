package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/sander-remitly/plate-calc/internal/algorithm"
	"github.com/sander-remitly/plate-calc/internal/models"
	"github.com/spf13/cobra"
)

var (
	addWeight   float64
	addQuantity int
	addID       string
)

// platesCmd groups the inventory subcommands
var platesCmd = &cobra.Command{
	Use:   "plates",
	Short: "Manage the stored plate inventory",
}

var platesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the stored plates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repository, err := openRepository()
		if err != nil {
			return err
		}
		defer repository.Close()

		plates, err := repository.GetPlates()
		if err != nil {
			return err
		}

		printPlates(cmd.OutOrStdout(), plates)
		return nil
	},
}

var platesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a plate type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		plate := models.Plate{ID: addID, Weight: addWeight, Quantity: addQuantity}
		if err := algorithm.ValidatePlates([]models.Plate{plate}); err != nil {
			return err
		}

		repository, err := openRepository()
		if err != nil {
			return err
		}
		defer repository.Close()

		added, err := repository.AddPlate(plate)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Added %s: %skg x %d\n", added.ID, formatKg(added.Weight), added.Quantity)
		return nil
	},
}

var platesRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove a plate type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repository, err := openRepository()
		if err != nil {
			return err
		}
		defer repository.Close()

		if err := repository.DeletePlate(args[0]); err != nil {
			return fmt.Errorf("remove %s: %w", args[0], err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

var platesResetCmd = &cobra.Command{
	Use:   "reset [PRESET]",
	Short: "Replace the inventory with the defaults or a named preset",
	Long: `Replace the stored inventory with the default plates, or with one of the
presets ("Home Gym", "Olympic", "Fractional"; case-insensitive).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plates := models.DefaultPlates()
		name := "defaults"
		if len(args) == 1 {
			preset, ok := findPreset(args[0])
			if !ok {
				return fmt.Errorf("unknown preset %q", args[0])
			}
			plates, name = preset.Plates, preset.Name
		}

		repository, err := openRepository()
		if err != nil {
			return err
		}
		defer repository.Close()

		stored, err := repository.SetPlates(plates)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Inventory reset to %s\n", name)
		printPlates(out, stored)
		return nil
	},
}

func init() {
	platesAddCmd.Flags().Float64Var(&addWeight, "weight", 0, "Plate weight in kg")
	platesAddCmd.Flags().IntVar(&addQuantity, "quantity", 2, "Number of plates on hand")
	platesAddCmd.Flags().StringVar(&addID, "id", "", "Plate ID (generated when empty)")
	platesAddCmd.MarkFlagRequired("weight")

	platesCmd.AddCommand(platesListCmd, platesAddCmd, platesRemoveCmd, platesResetCmd)
	rootCmd.AddCommand(platesCmd)
}

func findPreset(name string) (models.Preset, bool) {
	for _, p := range models.GetPresets() {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, true
		}
	}
	return models.Preset{}, false
}

func printPlates(w io.Writer, plates []models.Plate) {
	for _, p := range plates {
		fmt.Fprintf(w, "%-44s %8skg x %d\n", p.ID, formatKg(p.Weight), p.Quantity)
	}
}
