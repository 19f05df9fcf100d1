package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

// CreatePaperTrade records one simulated fill.
func (s *Store) CreatePaperTrade(ctx context.Context, pt *model.PaperTrade) error {
	if pt.ExecutedAt.IsZero() {
		pt.ExecutedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO paper_trades (order_id, symbol, exchange, action, quantity, fill_price, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, pt.OrderID, pt.Symbol, pt.Exchange, pt.Action, pt.Quantity, pt.FillPrice, pt.ExecutedAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlite insert paper trade: %w", err)
	}
	pt.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite paper trade id: %w", err)
	}
	return nil
}

// ListPaperTrades returns the most recent simulated fills, newest first.
func (s *Store) ListPaperTrades(ctx context.Context, limit int) ([]*model.PaperTrade, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, symbol, exchange, action, quantity, fill_price, executed_at
		FROM paper_trades ORDER BY executed_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite list paper trades: %w", err)
	}
	defer rows.Close()

	var fills []*model.PaperTrade
	for rows.Next() {
		var (
			pt model.PaperTrade
			ts int64
		)
		if err := rows.Scan(&pt.ID, &pt.OrderID, &pt.Symbol, &pt.Exchange, &pt.Action, &pt.Quantity, &pt.FillPrice, &ts); err != nil {
			return nil, fmt.Errorf("sqlite scan paper trade: %w", err)
		}
		pt.ExecutedAt = unixOrZero(ts)
		fills = append(fills, &pt)
	}
	return fills, rows.Err()
}
