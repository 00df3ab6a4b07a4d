package repo

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/sander-remitly/plate-calc/internal/models"
)

func setupTestRepo(t *testing.T) (*Repository, func()) {
	dbPath := filepath.Join(t.TempDir(), "test_repo.db")

	repo, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}

	cleanup := func() {
		repo.Close()
	}

	return repo, cleanup
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestNew(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	if repo == nil {
		t.Fatal("Expected repository to be created")
	}

	if repo.db == nil {
		t.Fatal("Expected database connection to be established")
	}
}

func TestNew_BadPath(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "dir", "plates.db"))
	if err == nil {
		t.Fatal("Expected error for unreachable database path")
	}
}

func TestGetPlates_Empty(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	plates, err := repo.GetPlates()
	if err != nil {
		t.Fatalf("Failed to get plates: %v", err)
	}
	if plates == nil || len(plates) != 0 {
		t.Errorf("Expected an empty, non-nil inventory, got %+v", plates)
	}
}

func TestGetPlates_SeededDefaults(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	if _, err := repo.EnsureDefaults(); err != nil {
		t.Fatalf("Failed to seed defaults: %v", err)
	}

	plates, err := repo.GetPlates()
	if err != nil {
		t.Fatalf("Failed to get plates: %v", err)
	}

	expected := models.DefaultPlates()
	if len(plates) != len(expected) {
		t.Fatalf("Expected %d default plates, got %d", len(expected), len(plates))
	}
	for i := range expected {
		if plates[i] != expected[i] {
			t.Errorf("Expected plate %+v at index %d, got %+v", expected[i], i, plates[i])
		}
	}
}

func TestSetPlates(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	newPlates := []models.Plate{
		{ID: "p20", Weight: 20, Quantity: 2},
		{ID: "p1", Weight: 1.25, Quantity: 6},
		{Weight: 0.5, Quantity: 4},
	}
	stored, err := repo.SetPlates(newPlates)
	if err != nil {
		t.Fatalf("Failed to set plates: %v", err)
	}

	if newPlates[2].ID != "" {
		t.Error("Expected caller's slice to be left untouched")
	}
	if !strings.HasPrefix(stored[2].ID, "plate-") {
		t.Errorf("Expected generated plate ID, got %q", stored[2].ID)
	}

	plates, err := repo.GetPlates()
	if err != nil {
		t.Fatalf("Failed to get plates: %v", err)
	}

	if len(plates) != len(stored) {
		t.Fatalf("Expected %d plates, got %d", len(stored), len(plates))
	}

	// Insertion order is preserved, not sorted by weight or ID
	for i, p := range plates {
		if p != stored[i] {
			t.Errorf("Expected plate %+v at index %d, got %+v", stored[i], i, p)
		}
	}
}

func TestSetPlates_Replace(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	if _, err := repo.SetPlates([]models.Plate{{ID: "a", Weight: 1, Quantity: 2}, {ID: "b", Weight: 2, Quantity: 2}}); err != nil {
		t.Fatalf("Failed to set initial plates: %v", err)
	}

	if _, err := repo.SetPlates([]models.Plate{{ID: "c", Weight: 5, Quantity: 4}}); err != nil {
		t.Fatalf("Failed to replace plates: %v", err)
	}

	plates, err := repo.GetPlates()
	if err != nil {
		t.Fatalf("Failed to get plates: %v", err)
	}

	if len(plates) != 1 || plates[0].ID != "c" {
		t.Errorf("Expected only plate c, got %+v", plates)
	}
}

func TestSetPlates_DuplicateIDRollsBack(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	if _, err := repo.SetPlates([]models.Plate{{ID: "keep", Weight: 5, Quantity: 2}}); err != nil {
		t.Fatalf("Failed to set plates: %v", err)
	}

	_, err := repo.SetPlates([]models.Plate{{ID: "x", Weight: 1, Quantity: 2}, {ID: "x", Weight: 2, Quantity: 2}})
	if err == nil {
		t.Fatal("Expected duplicate IDs to fail")
	}

	plates, err := repo.GetPlates()
	if err != nil {
		t.Fatalf("Failed to get plates: %v", err)
	}
	if len(plates) != 1 || plates[0].ID != "keep" {
		t.Errorf("Expected previous inventory after rollback, got %+v", plates)
	}
}

func TestEnsureDefaults(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	seeded, err := repo.EnsureDefaults()
	if err != nil {
		t.Fatalf("Failed to seed defaults: %v", err)
	}
	if !seeded {
		t.Error("Expected empty inventory to be seeded")
	}

	seeded, err = repo.EnsureDefaults()
	if err != nil {
		t.Fatalf("Failed to seed defaults: %v", err)
	}
	if seeded {
		t.Error("Expected existing inventory to be kept")
	}

	stats, err := repo.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.PlateTypes != len(models.DefaultPlates()) {
		t.Errorf("Expected %d plate types, got %d", len(models.DefaultPlates()), stats.PlateTypes)
	}
}

func TestEnsureDefaults_EmptiedInventoryStaysEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "emptied.db")

	repo, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	if _, err := repo.EnsureDefaults(); err != nil {
		t.Fatalf("Failed to seed defaults: %v", err)
	}
	for _, p := range models.DefaultPlates() {
		if err := repo.DeletePlate(p.ID); err != nil {
			t.Fatalf("Failed to delete plate %s: %v", p.ID, err)
		}
	}
	repo.Close()

	// Reopening runs the startup seeding again
	repo, err = New(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen repository: %v", err)
	}
	defer repo.Close()

	seeded, err := repo.EnsureDefaults()
	if err != nil {
		t.Fatalf("Failed to check defaults: %v", err)
	}
	if seeded {
		t.Error("Expected an emptied inventory not to be seeded again")
	}

	plates, err := repo.GetPlates()
	if err != nil {
		t.Fatalf("Failed to get plates: %v", err)
	}
	if len(plates) != 0 {
		t.Errorf("Expected no plates, got %+v", plates)
	}

	if _, err := repo.UpdatePlate("plate-10", models.PlatePatchRequest{Quantity: intPtr(2)}); err != ErrPlateNotFound {
		t.Errorf("Expected ErrPlateNotFound, got %v", err)
	}
}

func TestEnsureDefaults_KeepsStoredEmptyInventory(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	if _, err := repo.SetPlates([]models.Plate{}); err != nil {
		t.Fatalf("Failed to store empty inventory: %v", err)
	}

	seeded, err := repo.EnsureDefaults()
	if err != nil {
		t.Fatalf("Failed to check defaults: %v", err)
	}
	if seeded {
		t.Error("Expected a stored empty inventory to be kept")
	}
}

func TestAddPlate(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	if _, err := repo.SetPlates([]models.Plate{{ID: "first", Weight: 10, Quantity: 2}}); err != nil {
		t.Fatalf("Failed to set plates: %v", err)
	}

	added, err := repo.AddPlate(models.Plate{Weight: 2.5, Quantity: 4})
	if err != nil {
		t.Fatalf("Failed to add plate: %v", err)
	}
	if !strings.HasPrefix(added.ID, "plate-") {
		t.Errorf("Expected generated plate ID, got %q", added.ID)
	}

	plates, err := repo.GetPlates()
	if err != nil {
		t.Fatalf("Failed to get plates: %v", err)
	}
	if len(plates) != 2 {
		t.Fatalf("Expected 2 plates, got %d", len(plates))
	}
	if plates[1] != added {
		t.Errorf("Expected added plate last, got %+v", plates[1])
	}

	if _, err := repo.AddPlate(models.Plate{ID: "first", Weight: 1, Quantity: 1}); err != ErrDuplicatePlate {
		t.Errorf("Expected ErrDuplicatePlate, got %v", err)
	}
}

func TestUpdatePlate(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	if _, err := repo.SetPlates([]models.Plate{{ID: "p5", Weight: 5, Quantity: 2}}); err != nil {
		t.Fatalf("Failed to set plates: %v", err)
	}

	updated, err := repo.UpdatePlate("p5", models.PlatePatchRequest{Quantity: intPtr(6)})
	if err != nil {
		t.Fatalf("Failed to update plate: %v", err)
	}
	if updated.Weight != 5 || updated.Quantity != 6 {
		t.Errorf("Expected 5kg x6, got %+v", updated)
	}

	updated, err = repo.UpdatePlate("p5", models.PlatePatchRequest{Weight: floatPtr(7.5)})
	if err != nil {
		t.Fatalf("Failed to update plate: %v", err)
	}
	if updated.Weight != 7.5 || updated.Quantity != 6 {
		t.Errorf("Expected 7.5kg x6, got %+v", updated)
	}

	plates, err := repo.GetPlates()
	if err != nil {
		t.Fatalf("Failed to get plates: %v", err)
	}
	if plates[0] != updated {
		t.Errorf("Expected stored plate %+v, got %+v", updated, plates[0])
	}
}

func TestUpdatePlate_NotFound(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	_, err := repo.UpdatePlate("ghost", models.PlatePatchRequest{Quantity: intPtr(1)})
	if err != ErrPlateNotFound {
		t.Errorf("Expected ErrPlateNotFound, got %v", err)
	}
}

func TestDeletePlate(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	if _, err := repo.SetPlates([]models.Plate{{ID: "a", Weight: 1, Quantity: 2}, {ID: "b", Weight: 2, Quantity: 2}}); err != nil {
		t.Fatalf("Failed to set plates: %v", err)
	}

	if err := repo.DeletePlate("a"); err != nil {
		t.Fatalf("Failed to delete plate: %v", err)
	}

	if err := repo.DeletePlate("a"); err != ErrPlateNotFound {
		t.Errorf("Expected ErrPlateNotFound on second delete, got %v", err)
	}

	plates, err := repo.GetPlates()
	if err != nil {
		t.Fatalf("Failed to get plates: %v", err)
	}
	if len(plates) != 1 || plates[0].ID != "b" {
		t.Errorf("Expected only plate b, got %+v", plates)
	}
}

func TestSaveCalculation(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	entry := models.HistoryEntry{
		TargetWeight: 15,
		Mode:         models.ModeSingle,
		Success:      true,
		Plates: []models.PlateUsage{
			{Plate: models.Plate{ID: "p5", Weight: 5, Quantity: 4}, Count: 1},
			{Plate: models.Plate{ID: "p2.5", Weight: 2.5, Quantity: 4}, Count: 1},
		},
		TotalPlates: 2,
	}

	if err := repo.SaveCalculation(entry); err != nil {
		t.Fatalf("Failed to save calculation: %v", err)
	}

	history, err := repo.GetHistory(10)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}

	if len(history) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(history))
	}

	got := history[0]
	if got.TargetWeight != 15 || got.Mode != models.ModeSingle || !got.Success {
		t.Errorf("Unexpected entry %+v", got)
	}
	if got.TotalPlates != 2 {
		t.Errorf("Expected total plates 2, got %d", got.TotalPlates)
	}
	if len(got.Plates) != 2 || got.Plates[0] != entry.Plates[0] || got.Plates[1] != entry.Plates[1] {
		t.Errorf("Expected plates %+v, got %+v", entry.Plates, got.Plates)
	}
	if got.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
}

func TestSaveCalculation_Failure(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	entry := models.HistoryEntry{
		TargetWeight: 7,
		Mode:         models.ModeCombined,
		Error:        "Cannot achieve 1.75kg per side with available plates",
	}

	if err := repo.SaveCalculation(entry); err != nil {
		t.Fatalf("Failed to save calculation: %v", err)
	}

	history, err := repo.GetHistory(1)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}

	if len(history) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(history))
	}
	if history[0].Success {
		t.Error("Expected failed calculation")
	}
	if history[0].Error != entry.Error {
		t.Errorf("Expected error %q, got %q", entry.Error, history[0].Error)
	}
	if history[0].Plates == nil || len(history[0].Plates) != 0 {
		t.Errorf("Expected empty plate list, got %#v", history[0].Plates)
	}
}

func TestGetHistory(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	for i := 1; i <= 5; i++ {
		err := repo.SaveCalculation(models.HistoryEntry{
			TargetWeight: float64(i * 5),
			Mode:         models.ModeSingle,
			Success:      true,
			TotalPlates:  i,
		})
		if err != nil {
			t.Fatalf("Failed to save calculation %d: %v", i, err)
		}
	}

	history, err := repo.GetHistory(3)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}

	if len(history) != 3 {
		t.Fatalf("Expected 3 history entries, got %d", len(history))
	}

	// Newest first
	for i, want := range []float64{25, 20, 15} {
		if history[i].TargetWeight != want {
			t.Errorf("Expected target %v at index %d, got %v", want, i, history[i].TargetWeight)
		}
	}
}

func TestGetHistory_Empty(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	history, err := repo.GetHistory(10)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}

	if len(history) != 0 {
		t.Errorf("Expected empty history, got %d entries", len(history))
	}
}

func TestClearHistory(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	for i := 1; i <= 3; i++ {
		if err := repo.SaveCalculation(models.HistoryEntry{TargetWeight: float64(i), Mode: models.ModeSingle}); err != nil {
			t.Fatalf("Failed to save calculation %d: %v", i, err)
		}
	}

	if err := repo.ClearHistory(); err != nil {
		t.Fatalf("Failed to clear history: %v", err)
	}

	history, err := repo.GetHistory(10)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}

	if len(history) != 0 {
		t.Errorf("Expected empty history after clear, got %d entries", len(history))
	}
}

func TestGetStats(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	stats, err := repo.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.TotalCalculations != 0 || stats.LatestCalculation != "" {
		t.Errorf("Expected empty stats, got %+v", stats)
	}

	repo.SaveCalculation(models.HistoryEntry{TargetWeight: 10, Mode: models.ModeSingle, Success: true})
	repo.SaveCalculation(models.HistoryEntry{TargetWeight: 3, Mode: models.ModeSingle})

	stats, err = repo.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.TotalCalculations != 2 {
		t.Errorf("Expected 2 calculations, got %d", stats.TotalCalculations)
	}
	if stats.Successful != 1 {
		t.Errorf("Expected 1 successful calculation, got %d", stats.Successful)
	}
	if stats.LatestCalculation == "" {
		t.Error("Expected latest calculation timestamp")
	}
}

func TestPing(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	err := repo.Ping()
	if err != nil {
		t.Errorf("Expected ping to succeed, got error: %v", err)
	}
}

func TestPing_ClosedConnection(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	cleanup() // Close connection immediately

	err := repo.Ping()
	if err == nil {
		t.Error("Expected ping to fail on closed connection")
	}
}
