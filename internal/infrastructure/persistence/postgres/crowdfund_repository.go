package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/yuzvak/crowdfund-service/internal/application/ports"
	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	domainErrors "github.com/yuzvak/crowdfund-service/internal/domain/errors"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/monitoring"
)

const (
	keyConfig        = "config"
	keyState         = "state"
	keySaleConducted = "sale_conducted"
)

// CrowdfundRepository implements ports.CrowdfundRepository and
// ports.OutboxRepository on top of database/sql.
type CrowdfundRepository struct {
	conn *Connection
	db   *sql.DB
	tx   *sql.Tx
	isTx bool
}

func NewCrowdfundRepository(conn *Connection) *CrowdfundRepository {
	return &CrowdfundRepository{
		conn: conn,
		db:   conn.GetDB(),
		isTx: false,
	}
}

var (
	_ ports.CrowdfundRepository = (*CrowdfundRepository)(nil)
	_ ports.OutboxRepository    = (*CrowdfundRepository)(nil)
)

func (r *CrowdfundRepository) q() monitoring.Queryer {
	if r.isTx {
		return r.tx
	}
	return r.db
}

func (r *CrowdfundRepository) exec(ctx context.Context, queryType, table, query string, args ...any) (sql.Result, error) {
	res, err := monitoring.InstrumentExec(ctx, r.q(), queryType, table, query, args...)
	return res, translate(err)
}

func (r *CrowdfundRepository) BeginTx(ctx context.Context) (ports.CrowdfundRepository, error) {
	if r.isTx {
		return nil, errors.New("transaction already started")
	}

	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return nil, translate(err)
	}

	return &CrowdfundRepository{
		conn: r.conn,
		db:   r.db,
		tx:   tx,
		isTx: true,
	}, nil
}

func (r *CrowdfundRepository) CommitTx(ctx context.Context) error {
	if !r.isTx || r.tx == nil {
		return errors.New("no transaction to commit")
	}

	return translate(r.tx.Commit())
}

func (r *CrowdfundRepository) RollbackTx(ctx context.Context) error {
	if !r.isTx || r.tx == nil {
		return errors.New("no transaction to rollback")
	}

	return r.tx.Rollback()
}

func (r *CrowdfundRepository) getValue(ctx context.Context, name string) (string, bool, error) {
	query := `SELECT value FROM crowdfund_kv WHERE name = $1`

	var value string
	row := monitoring.InstrumentQueryRow(ctx, r.q(), "SELECT", "crowdfund_kv", query, name)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, translate(err)
	}
	return value, true, nil
}

func (r *CrowdfundRepository) putValue(ctx context.Context, name, value string) error {
	query := `
		INSERT INTO crowdfund_kv (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value
	`
	_, err := r.exec(ctx, "UPSERT", "crowdfund_kv", query, name, value)
	return err
}

func (r *CrowdfundRepository) deleteValue(ctx context.Context, name string) error {
	_, err := r.exec(ctx, "DELETE", "crowdfund_kv", `DELETE FROM crowdfund_kv WHERE name = $1`, name)
	return err
}

func (r *CrowdfundRepository) GetConfig(ctx context.Context) (*crowdfund.Config, error) {
	value, ok, err := r.getValue(ctx, keyConfig)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainErrors.ErrNotInitialized
	}

	var cfg crowdfund.Config
	if err := json.Unmarshal([]byte(value), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *CrowdfundRepository) SaveConfig(ctx context.Context, cfg *crowdfund.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return r.putValue(ctx, keyConfig, string(data))
}

func (r *CrowdfundRepository) IsSaleConducted(ctx context.Context) (bool, error) {
	_, ok, err := r.getValue(ctx, keySaleConducted)
	return ok, err
}

func (r *CrowdfundRepository) SetSaleConducted(ctx context.Context) error {
	return r.putValue(ctx, keySaleConducted, "true")
}

func (r *CrowdfundRepository) GetState(ctx context.Context) (*crowdfund.State, error) {
	value, ok, err := r.getValue(ctx, keyState)
	if err != nil || !ok {
		return nil, err
	}

	var state crowdfund.State
	if err := json.Unmarshal([]byte(value), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *CrowdfundRepository) SaveState(ctx context.Context, state *crowdfund.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return r.putValue(ctx, keyState, string(data))
}

func (r *CrowdfundRepository) ClearState(ctx context.Context) error {
	return r.deleteValue(ctx, keyState)
}

func (r *CrowdfundRepository) AddAvailableToken(ctx context.Context, tokenID string) error {
	query := `
		INSERT INTO available_tokens (token_id)
		VALUES ($1)
		ON CONFLICT (token_id) DO NOTHING
	`
	result, err := r.exec(ctx, "INSERT", "available_tokens", query, tokenID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return nil
	}
	return r.adjustAvailable(ctx, 1)
}

func (r *CrowdfundRepository) RemoveAvailableToken(ctx context.Context, tokenID string) error {
	result, err := r.exec(ctx, "DELETE", "available_tokens", `DELETE FROM available_tokens WHERE token_id = $1`, tokenID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domainErrors.ErrTokenNotAvailable
	}
	return r.adjustAvailable(ctx, -1)
}

// adjustAvailable keeps the inventory counter in step with available_tokens.
func (r *CrowdfundRepository) adjustAvailable(ctx context.Context, delta int64) error {
	query := `UPDATE inventory_counter SET available = available + $1 WHERE id = 1`

	result, err := r.exec(ctx, "UPDATE", "inventory_counter", query, delta)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return errors.New("inventory counter is missing, run migrations")
	}
	return nil
}

func (r *CrowdfundRepository) IsTokenAvailable(ctx context.Context, tokenID string) (bool, error) {
	query := `SELECT COUNT(*) FROM available_tokens WHERE token_id = $1`

	var count int
	row := monitoring.InstrumentQueryRow(ctx, r.q(), "SELECT", "available_tokens", query, tokenID)
	if err := row.Scan(&count); err != nil {
		return false, translate(err)
	}
	return count > 0, nil
}

func (r *CrowdfundRepository) GetAvailableTokens(ctx context.Context, startAfter string, limit int) ([]string, error) {
	query := `
		SELECT token_id FROM available_tokens
		WHERE token_id > $1
		ORDER BY token_id
		LIMIT $2
	`

	rows, err := monitoring.InstrumentQuery(ctx, r.q(), "SELECT", "available_tokens", query, startAfter, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tokens = append(tokens, id)
	}
	return tokens, translate(rows.Err())
}

func (r *CrowdfundRepository) CountAvailableTokens(ctx context.Context) (uint64, error) {
	query := `SELECT available FROM inventory_counter WHERE id = 1`

	var count int64
	row := monitoring.InstrumentQueryRow(ctx, r.q(), "SELECT", "inventory_counter", query)
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.New("inventory counter is missing, run migrations")
		}
		return 0, translate(err)
	}
	return uint64(count), nil
}

func (r *CrowdfundRepository) IsTokenMinted(ctx context.Context, tokenID string) (bool, error) {
	query := `SELECT COUNT(*) FROM minted_tokens WHERE token_id = $1`

	var count int
	row := monitoring.InstrumentQueryRow(ctx, r.q(), "SELECT", "minted_tokens", query, tokenID)
	if err := row.Scan(&count); err != nil {
		return false, translate(err)
	}
	return count > 0, nil
}

func (r *CrowdfundRepository) RecordMintedToken(ctx context.Context, tokenID, owner string) error {
	query := `
		INSERT INTO minted_tokens (token_id, owner)
		VALUES ($1, $2)
		ON CONFLICT (token_id) DO NOTHING
	`
	result, err := r.exec(ctx, "INSERT", "minted_tokens", query, tokenID, owner)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domainErrors.ErrTokenAlreadyMinted
	}
	return nil
}
