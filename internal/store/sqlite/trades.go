package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

const tradeColumns = `id, broker, paper, symbol, action, quantity,
	entry_price, target_price, stop_loss, order_type, exchange, product_type,
	order_id, status, broker_status, broker_rejection_reason,
	average_price, filled_quantity, execution_price, execution_time,
	last_status_check, notes, error_message, order_variety,
	created_at, updated_at`

// CreateTrade inserts a new trade row and fills in its ID.
func (s *Store) CreateTrade(ctx context.Context, t *model.Trade) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = model.StatusPending
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (broker, paper, symbol, action, quantity,
			entry_price, target_price, stop_loss, order_type, exchange, product_type,
			order_id, status, broker_status, broker_rejection_reason,
			average_price, filled_quantity, execution_price, execution_time,
			last_status_check, notes, error_message, order_variety,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.Broker, t.Paper, t.Symbol, t.Action, t.Quantity,
		t.EntryPrice, t.TargetPrice, t.StopLoss, t.OrderType, t.Exchange, t.ProductType,
		t.OrderID, string(t.Status), t.BrokerStatus, t.BrokerRejectionReason,
		t.AveragePrice, t.FilledQuantity, t.ExecutionPrice, toUnix(t.ExecutionTime),
		toUnix(t.LastStatusCheck), t.Notes, t.ErrorMessage, t.OrderVariety,
		t.CreatedAt.Unix(), t.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert trade: %w", err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite trade id: %w", err)
	}
	return nil
}

// GetTrade loads one trade by ID.
func (s *Store) GetTrade(ctx context.Context, id int64) (*model.Trade, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trade %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get trade: %w", err)
	}
	return t, nil
}

// UpdateTrade writes back all mutable fields of a trade in one statement.
func (s *Store) UpdateTrade(ctx context.Context, t *model.Trade) error {
	t.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE trades SET
			order_id = ?, status = ?, broker_status = ?, broker_rejection_reason = ?,
			average_price = ?, filled_quantity = ?, execution_price = ?, execution_time = ?,
			last_status_check = ?, notes = ?, error_message = ?, order_variety = ?,
			updated_at = ?
		WHERE id = ?
	`,
		t.OrderID, string(t.Status), t.BrokerStatus, t.BrokerRejectionReason,
		t.AveragePrice, t.FilledQuantity, t.ExecutionPrice, toUnix(t.ExecutionTime),
		toUnix(t.LastStatusCheck), t.Notes, t.ErrorMessage, t.OrderVariety,
		t.UpdatedAt.Unix(), t.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite update trade %d: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("trade %d not found", t.ID)
	}
	return nil
}

// ListActiveTrades returns trades in a non-terminal status, oldest first.
func (s *Store) ListActiveTrades(ctx context.Context) ([]*model.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE status IN (?, ?, ?)
		ORDER BY created_at ASC
	`, string(model.StatusPending), string(model.StatusSubmitted), string(model.StatusOpen))
	if err != nil {
		return nil, fmt.Errorf("sqlite list active trades: %w", err)
	}
	defer rows.Close()

	var trades []*model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// CountTradesOn counts trades created on the given calendar day, using
// the day's own location for the midnight boundaries.
func (s *Store) CountTradesOn(ctx context.Context, day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trades WHERE created_at >= ? AND created_at < ?
	`, start.Unix(), end.Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite count trades: %w", err)
	}
	return n, nil
}

// Stats aggregates lifecycle counts over all trades.
func (s *Store) Stats(ctx context.Context) (model.TradeStats, error) {
	var st model.TradeStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN status = 'EXECUTED'  THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'REJECTED'  THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'CANCELLED' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'FAILED'    THEN 1 ELSE 0 END),
			SUM(CASE WHEN status IN ('PENDING', 'SUBMITTED', 'OPEN') THEN 1 ELSE 0 END)
		FROM trades
	`).Scan(
		&st.Total,
		&nullInt{&st.Executed}, &nullInt{&st.Rejected}, &nullInt{&st.Cancelled},
		&nullInt{&st.Failed}, &nullInt{&st.Active},
	)
	if err != nil {
		return model.TradeStats{}, fmt.Errorf("sqlite trade stats: %w", err)
	}
	return st, nil
}

// nullInt scans a nullable SUM() result into an int, treating NULL as 0.
type nullInt struct{ dst *int }

func (n *nullInt) Scan(src any) error {
	var v sql.NullInt64
	if err := v.Scan(src); err != nil {
		return err
	}
	if v.Valid {
		*n.dst = int(v.Int64)
	} else {
		*n.dst = 0
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*model.Trade, error) {
	var (
		t                     model.Trade
		status                string
		execTS, checkTS       int64
		createdTS, updatedTS  int64
		orderID, brokerStatus sql.NullString
		rejection, notes      sql.NullString
		errMsg, variety       sql.NullString
		orderType, exch, prod sql.NullString
	)
	err := row.Scan(
		&t.ID, &t.Broker, &t.Paper, &t.Symbol, &t.Action, &t.Quantity,
		&t.EntryPrice, &t.TargetPrice, &t.StopLoss, &orderType, &exch, &prod,
		&orderID, &status, &brokerStatus, &rejection,
		&t.AveragePrice, &t.FilledQuantity, &t.ExecutionPrice, &execTS,
		&checkTS, &notes, &errMsg, &variety,
		&createdTS, &updatedTS,
	)
	if err != nil {
		return nil, err
	}
	t.Status = model.TradeStatus(status)
	t.OrderType = orderType.String
	t.Exchange = exch.String
	t.ProductType = prod.String
	t.OrderID = orderID.String
	t.BrokerStatus = brokerStatus.String
	t.BrokerRejectionReason = rejection.String
	t.Notes = notes.String
	t.ErrorMessage = errMsg.String
	t.OrderVariety = variety.String
	t.ExecutionTime = unixOrZero(execTS)
	t.LastStatusCheck = unixOrZero(checkTS)
	t.CreatedAt = unixOrZero(createdTS)
	t.UpdatedAt = unixOrZero(updatedTS)
	return &t, nil
}
