package algorithm

import (
	"fmt"
	"math"
	"sort"

	"github.com/sander-remitly/plate-calc/internal/models"
	"github.com/shopspring/decimal"
)

// Weights are compared in grams so exact sums never suffer float drift
var gramsPerKg = decimal.NewFromInt(1000)

// Result represents the calculation result
type Result struct {
	Success       bool                `json:"success"`
	Plates        []models.PlateUsage `json:"plates"`          // full load, heaviest first
	TotalWeight   float64             `json:"total_weight"`    // weight achieved, 0 on failure
	TargetWeight  float64             `json:"target_weight"`   // weight requested
	PerSideWeight float64             `json:"per_side_weight"` // what each side must carry
	TotalPlates   int                 `json:"total_plates"`
	Mode          models.Mode         `json:"mode"`
	Error         string              `json:"error,omitempty"`
	Err           error               `json:"-"`
}

// entry is one row of the reachability table
type entry struct {
	reachable bool
	plates    int // fewest plates reaching this sub-weight
	plate     int // index into the usable plates of the last step, -1 for none
	count     int // how many of that plate the last step added
	prev      int // sub-weight before the last step
}

// usablePlate is a plate type after normalization to one side
type usablePlate struct {
	plate    models.Plate
	grams    int
	quantity int
}

// Compute finds the combination of plates that loads exactly targetKg using
// the fewest plates, with every side of every dumbbell loaded identically.
//
// The search runs for a single side: plate quantities are divided by the
// number of sides first, then the per-side solution is multiplied back up.
// Failures are reported in the Result, never as a panic.
//
// Algorithm: bounded knapsack (exact sum, minimum item count) with backtracking
// Time Complexity: O(target * len(plates) * maxQuantity)
// Space Complexity: O(target)
func Compute(plates []models.Plate, targetKg float64, mode models.Mode) Result {
	if err := validate(plates, targetKg, mode); err != nil {
		return failure(targetKg, mode, err, messageFor(err))
	}

	sides := mode.SidesPerUnit()
	perSide, targetGrams, usable := normalize(plates, targetKg, sides)
	perSideKg := perSide.InexactFloat64()

	infeasible := func() Result {
		r := failure(targetKg, mode, ErrInfeasible, fmt.Sprintf(msgInfeasible, perSide.String()))
		r.PerSideWeight = perSideKg
		return r
	}

	// A side target that rounds to nothing can't be built from plates
	if targetGrams <= 0 {
		return infeasible()
	}

	table := fillTable(targetGrams, usable)
	if !table[targetGrams].reachable {
		return infeasible()
	}

	counts, err := backtrack(table, targetGrams, usable)
	if err != nil {
		r := failure(targetKg, mode, err, msgBacktrack)
		r.PerSideWeight = perSideKg
		return r
	}

	usages := rescale(counts, usable, sides)
	total := 0
	for _, u := range usages {
		total += u.Count
	}

	return Result{
		Success:       true,
		Plates:        usages,
		TotalWeight:   targetKg,
		TargetWeight:  targetKg,
		PerSideWeight: perSideKg,
		TotalPlates:   total,
		Mode:          mode,
	}
}

// validate rejects inputs that can never produce a result
func validate(plates []models.Plate, targetKg float64, mode models.Mode) error {
	if !mode.Valid() {
		return ErrInvalidMode
	}

	// Written as a negation so NaN is rejected too
	if !(targetKg > 0) || math.IsInf(targetKg, 1) {
		return ErrInvalidTarget
	}

	for _, p := range plates {
		if p.Quantity > 0 {
			return nil
		}
	}
	return ErrEmptyInventory
}

// normalize converts the request into one side's problem in integer grams.
// Plates that end up with no usable quantity or no weight are dropped; the
// rest keep their input order, which fixes the tie-break between equally
// short solutions.
func normalize(plates []models.Plate, targetKg float64, sides int) (decimal.Decimal, int, []usablePlate) {
	perSide := decimal.NewFromFloat(targetKg).Div(decimal.NewFromInt(int64(sides)))
	targetGrams := int(perSide.Mul(gramsPerKg).Round(0).IntPart())

	usable := make([]usablePlate, 0, len(plates))
	for _, p := range plates {
		quantity := p.Quantity / sides
		if quantity <= 0 || !(p.Weight > 0) || math.IsInf(p.Weight, 1) {
			continue
		}

		grams := int(decimal.NewFromFloat(p.Weight).Mul(gramsPerKg).Round(0).IntPart())
		if grams <= 0 {
			continue
		}

		usable = append(usable, usablePlate{
			plate:    p,
			grams:    grams,
			quantity: quantity,
		})
	}

	return perSide, targetGrams, usable
}

// fillTable builds table[w] = fewest plates summing to exactly w grams.
//
// Each plate type is processed once. Sub-weights are swept from high to low so
// that table[w-k*grams] still holds the state from before this plate type was
// considered; together with trying k = 1..quantity this caps every type at its
// quantity. Only a strictly smaller plate count replaces an entry, so among
// equally short solutions the first one found is kept.
func fillTable(targetGrams int, plates []usablePlate) []entry {
	table := make([]entry, targetGrams+1)
	for w := range table {
		table[w] = entry{plates: math.MaxInt, plate: -1}
	}
	table[0] = entry{reachable: true, plate: -1}

	for i, p := range plates {
		for w := targetGrams; w >= p.grams; w-- {
			for count := 1; count <= p.quantity; count++ {
				prev := w - p.grams*count
				if prev < 0 {
					break
				}
				if !table[prev].reachable {
					continue
				}

				candidate := table[prev].plates + count
				if !table[w].reachable || candidate < table[w].plates {
					table[w] = entry{
						reachable: true,
						plates:    candidate,
						plate:     i,
						count:     count,
						prev:      prev,
					}
				}
			}
		}
	}

	return table
}

// backtrack walks from the target back to zero and totals the per-side count
// of each usable plate, by index. A plate can appear in more than one step.
func backtrack(table []entry, targetGrams int, plates []usablePlate) ([]int, error) {
	counts := make([]int, len(plates))

	for w := targetGrams; w > 0; {
		e := table[w]
		if !e.reachable || e.plate < 0 || e.plate >= len(plates) || e.count <= 0 || e.prev < 0 || e.prev >= w {
			return nil, ErrBacktrack
		}

		counts[e.plate] += e.count
		w = e.prev
	}

	return counts, nil
}

// rescale turns per-side counts into counts for the whole load, heaviest
// plates first. Equal weights keep their input order.
func rescale(counts []int, plates []usablePlate, sides int) []models.PlateUsage {
	usages := make([]models.PlateUsage, 0, len(plates))
	for i, p := range plates {
		if count := counts[i]; count > 0 {
			usages = append(usages, models.PlateUsage{
				Plate: p.plate,
				Count: count * sides,
			})
		}
	}

	sort.SliceStable(usages, func(i, j int) bool {
		return usages[i].Plate.Weight > usages[j].Plate.Weight
	})

	return usages
}

func failure(targetKg float64, mode models.Mode, err error, message string) Result {
	return Result{
		Success:      false,
		Plates:       []models.PlateUsage{},
		TotalWeight:  0,
		TargetWeight: targetKg,
		Mode:         mode,
		Error:        message,
		Err:          err,
	}
}

func messageFor(err error) string {
	switch err {
	case ErrInvalidTarget:
		return msgInvalidTarget
	case ErrInvalidMode:
		return msgInvalidMode
	case ErrEmptyInventory:
		return msgEmptyInventory
	default:
		return err.Error()
	}
}

// ValidatePlates checks that an inventory can be stored: every plate needs a
// positive, finite weight and a non-negative quantity, and IDs must be unique.
func ValidatePlates(plates []models.Plate) error {
	if len(plates) == 0 {
		return fmt.Errorf("%w: inventory must contain at least one plate", ErrInvalidPlate)
	}

	seen := make(map[string]bool, len(plates))
	for i, p := range plates {
		if !(p.Weight > 0) || math.IsInf(p.Weight, 1) {
			return fmt.Errorf("%w: plate %d has non-positive weight %v", ErrInvalidPlate, i, p.Weight)
		}
		if p.Quantity < 0 {
			return fmt.Errorf("%w: plate %d has negative quantity %d", ErrInvalidPlate, i, p.Quantity)
		}
		if p.ID != "" {
			if seen[p.ID] {
				return fmt.Errorf("%w: duplicate plate id %q", ErrInvalidPlate, p.ID)
			}
			seen[p.ID] = true
		}
	}

	return nil
}
