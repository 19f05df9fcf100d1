package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
	"github.com/khannoor710/TelegramSignalTrader/internal/secret"
)

// Credential columns are encrypted with the store's codec before they
// touch disk. Reads hand back plaintext.

// GetBrokerConfig loads one broker's credential bundle by broker id.
func (s *Store) GetBrokerConfig(ctx context.Context, broker string) (*model.BrokerConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, broker, client_id, api_key, api_secret, password, totp_secret,
			access_token, refresh_token, feed_token, token_expiry, request_token,
			active, created_at, updated_at
		FROM broker_configs WHERE broker = ?
	`, broker)
	cfg, err := s.scanBrokerConfig(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("broker config %q not found", broker)
	}
	if errors.Is(err, secret.ErrDecryptFailed) {
		log.Printf("[sqlite] broker config %q failed to decrypt, deactivating", broker)
		if derr := s.DeactivateBrokerConfig(ctx, broker); derr != nil {
			log.Printf("[sqlite] deactivate broker config %q: %v", broker, derr)
		}
		return nil, fmt.Errorf("sqlite get broker config: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get broker config: %w", err)
	}
	return cfg, nil
}

// SaveBrokerConfig upserts a credential bundle, encrypting secrets.
func (s *Store) SaveBrokerConfig(ctx context.Context, cfg *model.BrokerConfig) error {
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	secrets := [...]string{
		cfg.APISecret, cfg.Password, cfg.TOTPSecret,
		cfg.AccessToken, cfg.RefreshToken, cfg.FeedToken, cfg.RequestToken,
	}
	enc := make([]string, len(secrets))
	for i, v := range secrets {
		e, err := s.encrypt(v)
		if err != nil {
			return fmt.Errorf("encrypt broker config: %w", err)
		}
		enc[i] = e
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO broker_configs (broker, client_id, api_key, api_secret, password,
			totp_secret, access_token, refresh_token, feed_token, token_expiry,
			request_token, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(broker) DO UPDATE SET
			client_id = excluded.client_id,
			api_key = excluded.api_key,
			api_secret = excluded.api_secret,
			password = excluded.password,
			totp_secret = excluded.totp_secret,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			feed_token = excluded.feed_token,
			token_expiry = excluded.token_expiry,
			request_token = excluded.request_token,
			active = excluded.active,
			updated_at = excluded.updated_at
	`,
		cfg.Broker, cfg.ClientID, cfg.APIKey, enc[0], enc[1],
		enc[2], enc[3], enc[4], enc[5], toUnix(cfg.TokenExpiry),
		enc[6], cfg.Active, cfg.CreatedAt.Unix(), cfg.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite save broker config: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil && cfg.ID == 0 {
		cfg.ID = id
	}
	return nil
}

// ListBrokerConfigs returns all stored credential bundles. A bundle
// whose secrets no longer decrypt (rotated key, corrupt row) is
// deactivated and skipped so one bad row cannot block the rest.
func (s *Store) ListBrokerConfigs(ctx context.Context) ([]*model.BrokerConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, broker, client_id, api_key, api_secret, password, totp_secret,
			access_token, refresh_token, feed_token, token_expiry, request_token,
			active, created_at, updated_at
		FROM broker_configs ORDER BY broker ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list broker configs: %w", err)
	}
	defer rows.Close()

	var cfgs []*model.BrokerConfig
	var undecryptable []string
	for rows.Next() {
		cfg, err := s.scanBrokerConfig(rows)
		if err != nil {
			if errors.Is(err, secret.ErrDecryptFailed) && cfg != nil {
				undecryptable = append(undecryptable, cfg.Broker)
				continue
			}
			return nil, fmt.Errorf("sqlite scan broker config: %w", err)
		}
		cfgs = append(cfgs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite list broker configs: %w", err)
	}

	// The cursor holds the store's only connection; close it before
	// issuing the deactivation updates.
	rows.Close()
	for _, b := range undecryptable {
		log.Printf("[sqlite] broker config %q failed to decrypt, deactivating", b)
		if err := s.DeactivateBrokerConfig(ctx, b); err != nil {
			log.Printf("[sqlite] deactivate broker config %q: %v", b, err)
		}
	}
	return cfgs, nil
}

// DeactivateBrokerConfig marks a config inactive, typically after the
// broker reports an expired session so logins fail fast until the
// operator refreshes credentials.
func (s *Store) DeactivateBrokerConfig(ctx context.Context, broker string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE broker_configs SET active = 0, updated_at = ? WHERE broker = ?
	`, time.Now().Unix(), broker)
	if err != nil {
		return fmt.Errorf("sqlite deactivate broker config: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("broker config %q not found", broker)
	}
	return nil
}

func (s *Store) scanBrokerConfig(row rowScanner) (*model.BrokerConfig, error) {
	var (
		cfg                  model.BrokerConfig
		expiryTS             int64
		createdTS, updatedTS int64
		enc                  [7]string
	)
	err := row.Scan(
		&cfg.ID, &cfg.Broker, &cfg.ClientID, &cfg.APIKey, &enc[0], &enc[1], &enc[2],
		&enc[3], &enc[4], &enc[5], &expiryTS, &enc[6],
		&cfg.Active, &createdTS, &updatedTS,
	)
	if err != nil {
		return nil, err
	}

	dec := make([]string, len(enc))
	for i, v := range enc {
		p, err := s.decrypt(v)
		if err != nil {
			// The config comes back alongside the error so callers can
			// identify and deactivate the offending row.
			return &cfg, fmt.Errorf("decrypt broker config %q: %w", cfg.Broker, err)
		}
		dec[i] = p
	}
	cfg.APISecret = dec[0]
	cfg.Password = dec[1]
	cfg.TOTPSecret = dec[2]
	cfg.AccessToken = dec[3]
	cfg.RefreshToken = dec[4]
	cfg.FeedToken = dec[5]
	cfg.RequestToken = dec[6]
	cfg.TokenExpiry = unixOrZero(expiryTS)
	cfg.CreatedAt = unixOrZero(createdTS)
	cfg.UpdatedAt = unixOrZero(updatedTS)
	return &cfg, nil
}
