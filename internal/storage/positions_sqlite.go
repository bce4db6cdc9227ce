package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/beliefcore/core/internal/domain"
)

// Load implements ports.PositionStore: the tracker must recover completely
// on restart (§4.6).
func (s *SQLiteStore) Load(ctx context.Context) ([]domain.PaperPosition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, market_id, side, entry_price, belief_low, belief_high,
		edge_at_entry, confidence_at_entry, unknowns_at_entry, size_usd, entry_ts, status, exit_price, resolved_ts, pnl, actual_outcome
		FROM paper_positions`)
	if err != nil {
		return nil, fmt.Errorf("load paper positions: %w", err)
	}
	defer rows.Close()

	var out []domain.PaperPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPosition(row scanner) (domain.PaperPosition, error) {
	var p domain.PaperPosition
	var side, status, sizeUSD string
	var exitPrice sql.NullFloat64
	var resolvedTS sql.NullTime
	var pnl sql.NullString
	var actualOutcome sql.NullString

	if err := row.Scan(&p.ID, &p.MarketID, &side, &p.EntryPrice, &p.BeliefLow, &p.BeliefHigh,
		&p.EdgeAtEntry, &p.ConfidenceAtEntry, &p.UnknownsAtEntry, &sizeUSD, &p.EntryTS, &status, &exitPrice, &resolvedTS, &pnl, &actualOutcome); err != nil {
		return p, fmt.Errorf("scan paper position: %w", err)
	}

	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	size, err := decimal.NewFromString(sizeUSD)
	if err != nil {
		return p, fmt.Errorf("parse size_usd: %w", err)
	}
	p.SizeUSD = size

	if exitPrice.Valid {
		v := exitPrice.Float64
		p.ExitPrice = &v
	}
	if resolvedTS.Valid {
		v := resolvedTS.Time
		p.ResolvedTS = &v
	}
	if pnl.Valid {
		v, err := decimal.NewFromString(pnl.String)
		if err != nil {
			return p, fmt.Errorf("parse pnl: %w", err)
		}
		p.PnL = &v
	}
	if actualOutcome.Valid {
		v := domain.Outcome(actualOutcome.String)
		p.ActualOutcome = &v
	}
	return p, nil
}

// Upsert writes a position after every state change, per §4.6.
func (s *SQLiteStore) Upsert(ctx context.Context, p domain.PaperPosition) error {
	var exitPrice any
	if p.ExitPrice != nil {
		exitPrice = *p.ExitPrice
	}
	var resolvedTS any
	if p.ResolvedTS != nil {
		resolvedTS = *p.ResolvedTS
	}
	var pnl any
	if p.PnL != nil {
		pnl = p.PnL.String()
	}
	var actualOutcome any
	if p.ActualOutcome != nil {
		actualOutcome = string(*p.ActualOutcome)
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO paper_positions
		(id, market_id, side, entry_price, belief_low, belief_high, edge_at_entry, confidence_at_entry, unknowns_at_entry, size_usd, entry_ts, status, exit_price, resolved_ts, pnl, actual_outcome)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			side=excluded.side, entry_price=excluded.entry_price, belief_low=excluded.belief_low,
			belief_high=excluded.belief_high, edge_at_entry=excluded.edge_at_entry,
			confidence_at_entry=excluded.confidence_at_entry, unknowns_at_entry=excluded.unknowns_at_entry,
			size_usd=excluded.size_usd, entry_ts=excluded.entry_ts, status=excluded.status, exit_price=excluded.exit_price,
			resolved_ts=excluded.resolved_ts, pnl=excluded.pnl, actual_outcome=excluded.actual_outcome`,
		p.ID, p.MarketID, string(p.Side), p.EntryPrice, p.BeliefLow, p.BeliefHigh, p.EdgeAtEntry,
		p.ConfidenceAtEntry, p.UnknownsAtEntry, p.SizeUSD.String(), p.EntryTS, string(p.Status), exitPrice, resolvedTS, pnl, actualOutcome)
	if err != nil {
		return fmt.Errorf("upsert paper position: %w", err)
	}
	return nil
}

// Delete removes a position by id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM paper_positions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete paper position: %w", err)
	}
	return nil
}

// InsertCalibrationRecord appends a CalibrationRecord, consumed by C7.
func (s *SQLiteStore) InsertCalibrationRecord(ctx context.Context, r domain.CalibrationRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO calibration_records
		(market_id, category, belief_low, belief_high, confidence, unknowns_count, actual_outcome, resolved_ts, edge_at_entry, invalidated_exit)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		r.MarketID, string(r.Category), r.BeliefAtEntryLow, r.BeliefAtEntryHigh, r.ConfidenceAtEntry,
		r.UnknownsCount, string(r.ActualOutcome), r.ResolvedTS, r.EdgeAtEntry, boolToInt(r.InvalidatedExit))
	if err != nil {
		return fmt.Errorf("insert calibration record: %w", err)
	}
	return nil
}

// LoadCalibrationRecords returns every record in the append-only window.
func (s *SQLiteStore) LoadCalibrationRecords(ctx context.Context) ([]domain.CalibrationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT market_id, category, belief_low, belief_high, confidence,
		unknowns_count, actual_outcome, resolved_ts, edge_at_entry, invalidated_exit FROM calibration_records ORDER BY resolved_ts`)
	if err != nil {
		return nil, fmt.Errorf("load calibration records: %w", err)
	}
	defer rows.Close()

	var out []domain.CalibrationRecord
	for rows.Next() {
		var r domain.CalibrationRecord
		var category, actualOutcome string
		var invalidated int
		if err := rows.Scan(&r.MarketID, &category, &r.BeliefAtEntryLow, &r.BeliefAtEntryHigh, &r.ConfidenceAtEntry,
			&r.UnknownsCount, &actualOutcome, &r.ResolvedTS, &r.EdgeAtEntry, &invalidated); err != nil {
			return nil, fmt.Errorf("scan calibration record: %w", err)
		}
		r.Category = domain.Category(category)
		r.ActualOutcome = domain.Outcome(actualOutcome)
		r.InvalidatedExit = invalidated != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
