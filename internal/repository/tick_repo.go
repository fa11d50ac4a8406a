package repository

import (
	"fmt"

	"github.com/nsvirk/tickcollector/internal/errs"
	"github.com/nsvirk/tickcollector/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TickRepository is the Batch Writer's persistence layer: each row in a
// batch is upserted independently (not inside one shared transaction) so a
// single malformed row never costs its batch-mates their commit, on the
// uniqueness key documented for each row type. Failures are reported back
// per row, classified per internal/errs, for the Batch Writer's retry/DLQ
// policy (spec §4.6) to act on.
type TickRepository struct {
	DB       *gorm.DB
	Tables   TableNames
	Currency string
}

// NewTickRepository creates a new TickRepository scoped to currency.
func NewTickRepository(db *gorm.DB, currency string) *TickRepository {
	return &TickRepository{DB: db, Tables: NewTableNames(currency), Currency: currency}
}

// UpsertQuotes writes a batch of quote ticks for the given instrument kind,
// replacing on conflict at (instant, instrument): a later re-observation
// overwrites. It upserts row by row, returning a RowFailure for every row
// that failed with a Permanent error (dropped, never retried) and stopping
// early with a Transient error if one is hit -- the caller retries the
// whole batch (harmless: an upsert is idempotent), having already
// dead-lettered the rows named in the returned failures.
func (r *TickRepository) UpsertQuotes(kind models.Kind, quotes []models.QuoteTick) ([]RowFailure, error) {
	if len(quotes) == 0 {
		return nil, nil
	}
	table := SchemaName + "." + r.Tables.Quotes(kind)
	op := "upsert_quotes"

	var failures []RowFailure
	for i, q := range quotes {
		result := r.DB.Table(table).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "instant"}, {Name: "instrument"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"bid_price", "bid_size", "ask_price", "ask_size", "mark_price", "index_price",
				"delta", "gamma", "theta", "vega", "rho", "iv_bid", "iv_ask", "iv_mark",
				"open_interest", "last_trade_price",
			}),
		}).Create(&q)
		if result.Error == nil {
			continue
		}
		err := classifyWriteError(op, fmt.Errorf("quote %s: %w", q.Instrument, result.Error))
		if errs.IsPermanent(err) {
			failures = append(failures, RowFailure{Index: i, Err: err})
			continue
		}
		return failures, err
	}
	return failures, nil
}

// UpsertTrades writes a batch of trade ticks, doing nothing on conflict at
// (instant, trade_id, instrument): trades are immutable once acknowledged,
// so a repeat delivery is silently absorbed rather than overwritten. Same
// per-row semantics as UpsertQuotes.
func (r *TickRepository) UpsertTrades(kind models.Kind, trades []models.TradeTick) ([]RowFailure, error) {
	if len(trades) == 0 {
		return nil, nil
	}
	table := SchemaName + "." + r.Tables.Trades(kind)
	op := "upsert_trades"

	var failures []RowFailure
	for i, t := range trades {
		result := r.DB.Table(table).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "instant"}, {Name: "trade_id"}, {Name: "instrument"}},
			DoNothing: true,
		}).Create(&t)
		if result.Error == nil {
			continue
		}
		err := classifyWriteError(op, fmt.Errorf("trade %s for %s: %w", t.TradeID, t.Instrument, result.Error))
		if errs.IsPermanent(err) {
			failures = append(failures, RowFailure{Index: i, Err: err})
			continue
		}
		return failures, err
	}
	return failures, nil
}

// UpsertDepth writes a batch of depth snapshots, replacing on conflict at
// (instant, instrument). Same per-row semantics as UpsertQuotes.
func (r *TickRepository) UpsertDepth(kind models.Kind, snapshots []models.DepthSnapshot) ([]RowFailure, error) {
	if len(snapshots) == 0 {
		return nil, nil
	}
	table := SchemaName + "." + r.Tables.Depth(kind)
	op := "upsert_depth"

	var failures []RowFailure
	for i, s := range snapshots {
		result := r.DB.Table(table).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "instant"}, {Name: "instrument"}},
			DoUpdates: clause.AssignmentColumns([]string{"bids", "asks", "mark_price", "index_price", "open_interest", "volume_24h"}),
		}).Create(&s)
		if result.Error == nil {
			continue
		}
		err := classifyWriteError(op, fmt.Errorf("depth snapshot for %s: %w", s.Instrument, result.Error))
		if errs.IsPermanent(err) {
			failures = append(failures, RowFailure{Index: i, Err: err})
			continue
		}
		return failures, err
	}
	return failures, nil
}
