package repo

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sander-remitly/plate-calc/internal/logger"
	"github.com/sander-remitly/plate-calc/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrPlateNotFound is returned when an update or delete targets an unknown plate
	ErrPlateNotFound = errors.New("plate not found")
	// ErrDuplicatePlate is returned when a plate ID is already stored
	ErrDuplicatePlate = errors.New("plate already exists")
)

// Repository handles data persistence
type Repository struct {
	db *sql.DB
}

// Stats summarizes what the database holds
type Stats struct {
	TotalCalculations int    `json:"total_calculations"`
	Successful        int    `json:"successful"`
	PlateTypes        int    `json:"plate_types"`
	LatestCalculation string `json:"latest_calculation,omitempty"`
}

// New creates a new repository instance
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.initialize(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize database")
	}

	return repo, nil
}

// initialize creates the database schema
func (r *Repository) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS plates (
		id TEXT PRIMARY KEY,
		weight REAL NOT NULL,
		quantity INTEGER NOT NULL,
		position INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS calculations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target_weight REAL NOT NULL,
		mode TEXT NOT NULL,
		success INTEGER NOT NULL,
		result TEXT NOT NULL,
		total_plates INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_calculations_timestamp ON calculations(timestamp DESC);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// NewPlateID generates an identifier for a plate that has none
func NewPlateID() string {
	return "plate-" + uuid.NewString()
}

// GetPlates retrieves the plate inventory in insertion order. An inventory
// the user emptied stays empty.
func (r *Repository) GetPlates() ([]models.Plate, error) {
	rows, err := r.db.Query("SELECT id, weight, quantity FROM plates ORDER BY position, id")
	if err != nil {
		return nil, errors.Wrap(err, "query plates")
	}
	defer rows.Close()

	plates := []models.Plate{}
	for rows.Next() {
		var p models.Plate
		if err := rows.Scan(&p.ID, &p.Weight, &p.Quantity); err != nil {
			return nil, errors.Wrap(err, "scan plate")
		}
		plates = append(plates, p)
	}

	return plates, errors.Wrap(rows.Err(), "iterate plates")
}

const platesStoredKey = "plates_stored"

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func markPlatesStored(db execer) error {
	_, err := db.Exec("INSERT OR IGNORE INTO settings (key, value) VALUES (?, '1')", platesStoredKey)
	return errors.Wrap(err, "mark plates stored")
}

// EnsureDefaults stores the default plates the first time the database is
// used and reports whether it did so. Once any inventory has been stored,
// including one later emptied, nothing is seeded again.
func (r *Repository) EnsureDefaults() (bool, error) {
	var stored int
	err := r.db.QueryRow("SELECT COUNT(*) FROM settings WHERE key = ?", platesStoredKey).Scan(&stored)
	if err != nil {
		return false, errors.Wrap(err, "read settings")
	}
	if stored > 0 {
		return false, nil
	}

	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM plates").Scan(&count); err != nil {
		return false, errors.Wrap(err, "count plates")
	}
	if count > 0 {
		return false, markPlatesStored(r.db)
	}

	if _, err := r.SetPlates(models.DefaultPlates()); err != nil {
		return false, err
	}
	return true, nil
}

// SetPlates replaces the whole inventory. Plates without an ID get one.
func (r *Repository) SetPlates(plates []models.Plate) ([]models.Plate, error) {
	stored := make([]models.Plate, len(plates))
	copy(stored, plates)
	for i := range stored {
		if strings.TrimSpace(stored[i].ID) == "" {
			stored[i].ID = NewPlateID()
		}
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	// Clear existing plates
	if _, err := tx.Exec("DELETE FROM plates"); err != nil {
		return nil, errors.Wrap(err, "clear plates")
	}

	stmt, err := tx.Prepare("INSERT INTO plates (id, weight, quantity, position) VALUES (?, ?, ?, ?)")
	if err != nil {
		return nil, errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	for i, p := range stored {
		if _, err := stmt.Exec(p.ID, p.Weight, p.Quantity, i); err != nil {
			return nil, errors.Wrapf(err, "insert plate %s", p.ID)
		}
	}

	if err := markPlatesStored(tx); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit plates")
	}
	return stored, nil
}

// AddPlate appends a plate to the inventory and returns it with its ID
func (r *Repository) AddPlate(plate models.Plate) (models.Plate, error) {
	if strings.TrimSpace(plate.ID) == "" {
		plate.ID = NewPlateID()
	}

	_, err := r.db.Exec(`
		INSERT INTO plates (id, weight, quantity, position)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM plates))
	`, plate.ID, plate.Weight, plate.Quantity)
	if isConstraintViolation(err) {
		return models.Plate{}, ErrDuplicatePlate
	}
	if err != nil {
		return models.Plate{}, errors.Wrapf(err, "insert plate %s", plate.ID)
	}

	if err := markPlatesStored(r.db); err != nil {
		return models.Plate{}, err
	}
	return plate, nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// UpdatePlate changes the weight and/or quantity of one plate
func (r *Repository) UpdatePlate(id string, patch models.PlatePatchRequest) (models.Plate, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return models.Plate{}, errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	var p models.Plate
	err = tx.QueryRow("SELECT id, weight, quantity FROM plates WHERE id = ?", id).Scan(&p.ID, &p.Weight, &p.Quantity)
	if err == sql.ErrNoRows {
		return models.Plate{}, ErrPlateNotFound
	}
	if err != nil {
		return models.Plate{}, errors.Wrapf(err, "load plate %s", id)
	}

	if patch.Weight != nil {
		p.Weight = *patch.Weight
	}
	if patch.Quantity != nil {
		p.Quantity = *patch.Quantity
	}

	_, err = tx.Exec(
		"UPDATE plates SET weight = ?, quantity = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		p.Weight, p.Quantity, id,
	)
	if err != nil {
		return models.Plate{}, errors.Wrapf(err, "update plate %s", id)
	}

	if err := tx.Commit(); err != nil {
		return models.Plate{}, errors.Wrap(err, "commit plate update")
	}
	return p, nil
}

// DeletePlate removes one plate from the inventory
func (r *Repository) DeletePlate(id string) error {
	res, err := r.db.Exec("DELETE FROM plates WHERE id = ?", id)
	if err != nil {
		return errors.Wrapf(err, "delete plate %s", id)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrPlateNotFound
	}
	return nil
}

// SaveCalculation saves a calculation to the history
func (r *Repository) SaveCalculation(entry models.HistoryEntry) error {
	plates := entry.Plates
	if plates == nil {
		plates = []models.PlateUsage{}
	}

	resultJSON, err := json.Marshal(plates)
	if err != nil {
		return errors.Wrap(err, "marshal result")
	}

	query := `
		INSERT INTO calculations (target_weight, mode, success, result, total_plates, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		entry.TargetWeight,
		string(entry.Mode),
		entry.Success,
		string(resultJSON),
		entry.TotalPlates,
		entry.Error,
	)
	return errors.Wrap(err, "insert calculation")
}

// GetHistory retrieves the calculation history, newest first
func (r *Repository) GetHistory(limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, target_weight, mode, success, result, total_plates, error, timestamp
		FROM calculations
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query history")
	}
	defer rows.Close()

	history := []models.HistoryEntry{}
	for rows.Next() {
		var entry models.HistoryEntry
		var mode, resultJSON string

		err := rows.Scan(
			&entry.ID,
			&entry.TargetWeight,
			&mode,
			&entry.Success,
			&resultJSON,
			&entry.TotalPlates,
			&entry.Error,
			&entry.Timestamp,
		)
		if err != nil {
			logger.Log.Warn("Error scanning row", zap.Error(err))
			continue
		}
		entry.Mode = models.Mode(mode)

		if err := json.Unmarshal([]byte(resultJSON), &entry.Plates); err != nil {
			logger.Log.Warn("Error unmarshaling result", zap.Int("id", entry.ID), zap.Error(err))
			continue
		}

		history = append(history, entry)
	}

	return history, errors.Wrap(rows.Err(), "iterate history")
}

// ClearHistory clears all calculation history
func (r *Repository) ClearHistory() error {
	_, err := r.db.Exec("DELETE FROM calculations")
	return errors.Wrap(err, "clear history")
}

// GetStats returns statistics about the database
func (r *Repository) GetStats() (Stats, error) {
	var stats Stats
	var latest sql.NullString

	err := r.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(success), 0), MAX(timestamp)
		FROM calculations
	`).Scan(&stats.TotalCalculations, &stats.Successful, &latest)
	if err != nil {
		return Stats{}, errors.Wrap(err, "count calculations")
	}
	stats.LatestCalculation = latest.String

	if err := r.db.QueryRow("SELECT COUNT(*) FROM plates").Scan(&stats.PlateTypes); err != nil {
		return Stats{}, errors.Wrap(err, "count plates")
	}

	return stats, nil
}

// Ping checks if the database connection is alive
func (r *Repository) Ping() error {
	return r.db.Ping()
}
