package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/sander-remitly/plate-calc/internal/algorithm"
	"github.com/sander-remitly/plate-calc/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with fresh command-local flag values
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	calcTarget, calcMode, calcPlates, calcJSON, calcNoHistory = 0, string(models.ModeSingle), "", false, false
	addWeight, addQuantity, addID = 0, 2, ""
	configFile = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestParsePlateList(t *testing.T) {
	plates, err := parsePlateList("1.25x4, 2.5X4,,5x2,2.5x6")
	require.NoError(t, err)

	assert.Equal(t, []models.Plate{
		{ID: "plate-1.25", Weight: 1.25, Quantity: 4},
		{ID: "plate-2.5", Weight: 2.5, Quantity: 4},
		{ID: "plate-5", Weight: 5, Quantity: 2},
		{ID: "plate-2.5-2", Weight: 2.5, Quantity: 6},
	}, plates)
}

func TestParsePlateList_Errors(t *testing.T) {
	for _, input := range []string{"", "5", "fivex2", "5xtwo", "0x4", "5x-1"} {
		t.Run(input, func(t *testing.T) {
			_, err := parsePlateList(input)
			assert.Error(t, err)
		})
	}
}

func TestCalcCommand_InlinePlates(t *testing.T) {
	db := filepath.Join(t.TempDir(), "calc.db")

	out, err := run(t, "calc", "--db", db, "--target", "20", "--plates", "5x4,2.5x4")
	require.NoError(t, err)

	assert.Contains(t, out, "Target:   20kg (single, 10kg per side)")
	assert.Contains(t, out, "5kg x 4")
	assert.Contains(t, out, "Total:    4 plates, 20kg")
}

func TestCalcCommand_StoredInventoryJSON(t *testing.T) {
	db := filepath.Join(t.TempDir(), "calc.db")

	out, err := run(t, "calc", "--db", db, "--target", "20", "--json", "--no-history")
	require.NoError(t, err)

	var result algorithm.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	require.Len(t, result.Plates, 1)
	assert.Equal(t, "plate-10", result.Plates[0].Plate.ID)
	assert.Equal(t, 2, result.Plates[0].Count)
}

func TestCalcCommand_Failures(t *testing.T) {
	db := filepath.Join(t.TempDir(), "calc.db")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"infeasible", []string{"--target", "3", "--plates", "5x4"}, "Cannot achieve 1.5kg per side"},
		{"bad mode", []string{"--target", "20", "--mode", "triple"}, ""},
		{"zero target", []string{"--target", "0"}, ""},
		{"above max", []string{"--target", "5000"}, ""},
		{"bad plates", []string{"--target", "20", "--plates", "5"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"calc", "--db", db}, tt.args...)
			out, err := run(t, args...)
			assert.Error(t, err)
			if tt.want != "" {
				assert.Contains(t, out, tt.want)
			}
		})
	}
}

func TestPlatesCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "plates.db")

	out, err := run(t, "plates", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "plate-10")

	out, err = run(t, "plates", "reset", "olympic", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Inventory reset to Olympic")
	assert.Contains(t, out, "olympic-25")

	out, err = run(t, "plates", "add", "--db", db, "--weight", "0.5", "--quantity", "4", "--id", "tiny")
	require.NoError(t, err)
	assert.Contains(t, out, "Added tiny: 0.5kg x 4")

	out, err = run(t, "plates", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "tiny")
	assert.NotContains(t, out, "plate-10")

	_, err = run(t, "plates", "remove", "tiny", "--db", db)
	require.NoError(t, err)

	_, err = run(t, "plates", "remove", "tiny", "--db", db)
	assert.Error(t, err)

	_, err = run(t, "plates", "reset", "nope", "--db", db)
	assert.Error(t, err)

	out, err = run(t, "plates", "reset", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Inventory reset to defaults")
}
