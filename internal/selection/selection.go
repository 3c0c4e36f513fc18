package selection

import (
	"fmt"
	"sort"

	"github.com/satchelwallet/satchel/api/cashu"
)

// InsufficientFundsError reports how short the pool fell so callers can show
// the gap instead of a bare failure.
type InsufficientFundsError struct {
	Requested uint64
	Available uint64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: requested %v, available %v", e.Requested, e.Available)
}

// Result is a selection: the proofs to spend, what they sum to, and the
// overpayment the spender gets back as change.
type Result struct {
	Chosen cashu.Proofs
	Total  uint64
	Change uint64
}

// Select picks proofs largest first until the target is covered. Larger
// denominations go first so the pool keeps its small proofs for exact
// payments later. Equal amounts keep their pool order, which makes the
// selection deterministic for a given pool.
func Select(pool cashu.Proofs, target uint64) (Result, error) {
	if target == 0 {
		return Result{Chosen: cashu.Proofs{}}, nil
	}

	sorted := make(cashu.Proofs, len(pool))
	copy(sorted, pool)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount > sorted[j].Amount
	})

	var result Result
	for _, proof := range sorted {
		if result.Total >= target {
			break
		}
		result.Chosen = append(result.Chosen, proof)
		result.Total += proof.Amount
	}

	if result.Total < target {
		return Result{}, &InsufficientFundsError{Requested: target, Available: result.Total}
	}

	result.Change = result.Total - target
	return result, nil
}
