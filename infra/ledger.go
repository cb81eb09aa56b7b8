package infra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warp/ticket-ledger/factory"
	"github.com/warp/ticket-ledger/generic"
	"github.com/warp/ticket-ledger/store/sqlite"
	"github.com/warp/ticket-ledger/ticketsale"
)

// ConfigRecord converts ledger parameters to their stored form.
func ConfigRecord(lc ticketsale.Config) (sqlite.ConfigRecord, error) {
	policy := lc.FeePolicy
	if policy == nil {
		policy = generic.DefaultFeePolicy()
	}
	fees, err := factory.NewFeePolicyFactory().Marshal(policy)
	if err != nil {
		return sqlite.ConfigRecord{}, err
	}
	return sqlite.ConfigRecord{
		TotalTickets: lc.TotalTickets,
		TicketPrice:  lc.TicketPrice,
		FeeJSON:      fees,
	}, nil
}

// LedgerConfigFromRecord rebuilds ledger parameters from their stored form.
func LedgerConfigFromRecord(rec sqlite.ConfigRecord) (ticketsale.Config, error) {
	fees, err := factory.NewFeePolicyFactory().ParseFee(rec.FeeJSON)
	if err != nil {
		return ticketsale.Config{}, err
	}
	return ticketsale.Config{
		TotalTickets: rec.TotalTickets,
		TicketPrice:  rec.TicketPrice,
		FeePolicy:    fees,
	}, nil
}

// OpenLedger opens the configured database, binds it to the configured
// ledger parameters and replays its journal. A database written under
// different parameters is refused with sqlite.ErrConfigMismatch.
func OpenLedger(ctx context.Context, cfg *Config, logger *slog.Logger) (*sqlite.Store, *ticketsale.Service, error) {
	lc, err := cfg.LedgerConfig()
	if err != nil {
		return nil, nil, err
	}
	rec, err := ConfigRecord(lc)
	if err != nil {
		return nil, nil, err
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	if _, err := store.EnsureConfig(ctx, rec); err != nil {
		store.Close()
		return nil, nil, err
	}

	svc, err := ticketsale.Open(ctx, lc, store, logger)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return store, svc, nil
}

// StoredLedgerConfig returns the parameters a database was written under,
// falling back to the configured ones for a database that has none yet.
func StoredLedgerConfig(ctx context.Context, store *sqlite.Store, cfg *Config) (ticketsale.Config, error) {
	rec, err := store.LoadConfig(ctx)
	if err != nil {
		return ticketsale.Config{}, err
	}
	if rec == nil {
		return cfg.LedgerConfig()
	}
	return LedgerConfigFromRecord(*rec)
}
