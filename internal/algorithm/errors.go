package algorithm

import "errors"

var (
	// ErrInvalidTarget is returned when the requested weight is not a positive number.
	ErrInvalidTarget = errors.New("target weight must be greater than 0")
	// ErrInvalidMode is returned for a mode other than single or combined.
	ErrInvalidMode = errors.New("mode must be single or combined")
	// ErrEmptyInventory is returned when there are no plates, or none with a positive quantity.
	ErrEmptyInventory = errors.New("no plates available")
	// ErrInfeasible is returned when no exact combination reaches the per-side target.
	ErrInfeasible = errors.New("cannot achieve target per side with available plates")
	// ErrBacktrack is returned when the table marks the target reachable but the path back to zero is broken.
	ErrBacktrack = errors.New("internal error reconstructing plate combination")
	// ErrInvalidPlate is returned by ValidatePlates for malformed inventory entries.
	ErrInvalidPlate = errors.New("invalid plate")
)

// Messages shown to users for each failure. Infeasible results carry a
// formatted message that includes the per-side weight instead.
const (
	msgInvalidTarget  = "Target weight must be greater than 0kg"
	msgInvalidMode    = "Mode must be either single or combined"
	msgEmptyInventory = "No plates available. Please add some plates first."
	msgInfeasible     = "Cannot achieve %skg per side with available plates"
	msgBacktrack      = "Something went wrong while building the plate combination"
)
