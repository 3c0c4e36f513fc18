package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/satchelwallet/satchel/internal/ledger"
)

// DefaultWindow is how old a lock must be before the sweep treats its owner
// as crashed. Claims are expected to finalize within a network round trip, so
// anything this old is an abandoned operation.
const DefaultWindow = 15 * time.Minute

// Sweeper is the backstop for crashes between claim and finalize: it finds
// lock owners older than the window and finalizes them as aborted, returning
// their proofs to the spendable pool.
type Sweeper struct {
	ledger *ledger.Ledger
	window time.Duration
	logger *slog.Logger
}

func NewSweeper(walletLedger *ledger.Ledger, window time.Duration, logger *slog.Logger) *Sweeper {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Sweeper{
		ledger: walletLedger,
		window: window,
		logger: logger,
	}
}

// Run releases every stale lock once. Aborting is always safe here: a claim
// that truly committed has already released its lock, so whatever still
// carries one never completed.
func (s *Sweeper) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-s.window)

	owners, err := s.ledger.StaleOwners(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("s.ledger.StaleOwners(ctx, cutoff): %w", err)
	}

	for _, owner := range owners {
		released, err := s.ledger.Finalize(ctx, owner, ledger.Aborted)
		if err != nil {
			return fmt.Errorf("s.ledger.Finalize(ctx, owner, ledger.Aborted): %w", err)
		}
		s.logger.Warn("released stale lock",
			slog.String("owner", owner),
			slog.Int64("proofs", released))
	}

	return nil
}

// Start runs the sweep on the interval until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("staleness sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
