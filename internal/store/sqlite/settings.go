package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

// GetSettings loads the single settings row. A missing row yields the
// defaults so a fresh database behaves sanely without a setup step.
func (s *Store) GetSettings(ctx context.Context) (model.AppSettings, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM app_settings WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.AppSettings{}, fmt.Errorf("sqlite read settings: %w", err)
	}

	settings := model.DefaultSettings()
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return model.AppSettings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	return settings, nil
}

// SaveSettings upserts the settings row.
func (s *Store) SaveSettings(ctx context.Context, settings model.AppSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_settings (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite save settings: %w", err)
	}
	return nil
}
