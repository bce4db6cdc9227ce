package storage

import (
	"context"
	"fmt"

	"github.com/beliefcore/core/internal/domain"
)

func (s *PostgresStore) Load(ctx context.Context) ([]domain.PaperPosition, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, market_id, side, entry_price, belief_low, belief_high,
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

func (s *PostgresStore) Upsert(ctx context.Context, p domain.PaperPosition) error {
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

	_, err := s.pool.Exec(ctx, `INSERT INTO paper_positions
		(id, market_id, side, entry_price, belief_low, belief_high, edge_at_entry, confidence_at_entry, unknowns_at_entry, size_usd, entry_ts, status, exit_price, resolved_ts, pnl, actual_outcome)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
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

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM paper_positions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete paper position: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertCalibrationRecord(ctx context.Context, r domain.CalibrationRecord) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO calibration_records
		(market_id, category, belief_low, belief_high, confidence, unknowns_count, actual_outcome, resolved_ts, edge_at_entry, invalidated_exit)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.MarketID, string(r.Category), r.BeliefAtEntryLow, r.BeliefAtEntryHigh, r.ConfidenceAtEntry,
		r.UnknownsCount, string(r.ActualOutcome), r.ResolvedTS, r.EdgeAtEntry, r.InvalidatedExit)
	if err != nil {
		return fmt.Errorf("insert calibration record: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadCalibrationRecords(ctx context.Context) ([]domain.CalibrationRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT market_id, category, belief_low, belief_high, confidence,
		unknowns_count, actual_outcome, resolved_ts, edge_at_entry, invalidated_exit FROM calibration_records ORDER BY resolved_ts`)
	if err != nil {
		return nil, fmt.Errorf("load calibration records: %w", err)
	}
	defer rows.Close()

	var out []domain.CalibrationRecord
	for rows.Next() {
		var r domain.CalibrationRecord
		var category, actualOutcome string
		if err := rows.Scan(&r.MarketID, &category, &r.BeliefAtEntryLow, &r.BeliefAtEntryHigh, &r.ConfidenceAtEntry,
			&r.UnknownsCount, &actualOutcome, &r.ResolvedTS, &r.EdgeAtEntry, &r.InvalidatedExit); err != nil {
			return nil, fmt.Errorf("scan calibration record: %w", err)
		}
		r.Category = domain.Category(category)
		r.ActualOutcome = domain.Outcome(actualOutcome)
		out = append(out, r)
	}
	return out, rows.Err()
}
