package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
)

// timeFilter appends created_at bounds for opts.
func timeFilter(query string, args []any, opts domain.ListOpts) (string, []any) {
	where := " WHERE"
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf("%s created_at >= $%d", where, len(args))
		where = " AND"
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf("%s created_at <= $%d", where, len(args))
	}
	return query, args
}

// AccountStore implements domain.AccountStore.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates an AccountStore backed by pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

const accountCols = `id, name, public_address, encrypted_key, proxy_id, created_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Name, &a.Address, &a.EncryptedKey, &a.ProxyID, &a.CreatedAt)
	return a, err
}

// Create inserts acc. An empty ID is replaced with a new UUID.
func (s *AccountStore) Create(ctx context.Context, acc domain.Account) error {
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO accounts (id, name, public_address, encrypted_key, proxy_id)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, query, acc.ID, acc.Name, acc.Address, acc.EncryptedKey, acc.ProxyID); err != nil {
		return fmt.Errorf("postgres: create account %s: %w", acc.Name, mapWriteErr(err))
	}
	return nil
}

// GetByID returns the account with id or domain.ErrNotFound.
func (s *AccountStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	return a, nil
}

// List returns accounts oldest first.
func (s *AccountStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Account, error) {
	query, args := timeFilter(`SELECT `+accountCols+` FROM accounts`, nil, opts)
	query, args = pageClause(query+" ORDER BY created_at, name", args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list accounts rows: %w", err)
	}
	return out, nil
}

// Delete removes the account and drops it from every batch.
func (s *AccountStore) Delete(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: delete account %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete account %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	if _, err := tx.Exec(ctx,
		`UPDATE batches SET account_ids = array_remove(account_ids, $1) WHERE $1 = ANY(account_ids)`, id,
	); err != nil {
		return fmt.Errorf("postgres: detach account %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: delete account %s: %w", id, err)
	}
	return nil
}

// ProxyStore implements domain.ProxyStore.
type ProxyStore struct {
	pool *pgxpool.Pool
}

// NewProxyStore creates a ProxyStore backed by pool.
func NewProxyStore(pool *pgxpool.Pool) *ProxyStore {
	return &ProxyStore{pool: pool}
}

const proxyCols = `id, name, host, port, username, password`

func scanProxy(row pgx.Row) (domain.ProxyConfig, error) {
	var p domain.ProxyConfig
	err := row.Scan(&p.ID, &p.Name, &p.Host, &p.Port, &p.Username, &p.Password)
	return p, err
}

// Create inserts p. An empty ID is replaced with a new UUID.
func (s *ProxyStore) Create(ctx context.Context, p domain.ProxyConfig) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO proxies (id, name, host, port, username, password)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.pool.Exec(ctx, query, p.ID, p.Name, p.Host, p.Port, p.Username, p.Password); err != nil {
		return fmt.Errorf("postgres: create proxy %s: %w", p.Host, mapWriteErr(err))
	}
	return nil
}

// GetByID returns the proxy with id or domain.ErrNotFound.
func (s *ProxyStore) GetByID(ctx context.Context, id string) (domain.ProxyConfig, error) {
	p, err := scanProxy(s.pool.QueryRow(ctx, `SELECT `+proxyCols+` FROM proxies WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ProxyConfig{}, domain.ErrNotFound
		}
		return domain.ProxyConfig{}, fmt.Errorf("postgres: get proxy %s: %w", id, err)
	}
	return p, nil
}

// List returns proxies oldest first.
func (s *ProxyStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.ProxyConfig, error) {
	query, args := timeFilter(`SELECT `+proxyCols+` FROM proxies`, nil, opts)
	query, args = pageClause(query+" ORDER BY created_at, id", args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list proxies: %w", err)
	}
	defer rows.Close()

	var out []domain.ProxyConfig
	for rows.Next() {
		p, err := scanProxy(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan proxy: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list proxies rows: %w", err)
	}
	return out, nil
}

// BatchStore implements domain.BatchStore. Account order is preserved.
type BatchStore struct {
	pool *pgxpool.Pool
}

// NewBatchStore creates a BatchStore backed by pool.
func NewBatchStore(pool *pgxpool.Pool) *BatchStore {
	return &BatchStore{pool: pool}
}

const batchCols = `id, name, account_ids, created_at`

func scanBatch(row pgx.Row) (domain.Batch, error) {
	var b domain.Batch
	err := row.Scan(&b.ID, &b.Name, &b.AccountIDs, &b.CreatedAt)
	return b, err
}

// Create inserts b. An empty ID is replaced with a new UUID.
func (s *BatchStore) Create(ctx context.Context, b domain.Batch) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	const query = `INSERT INTO batches (id, name, account_ids) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, b.ID, b.Name, b.AccountIDs); err != nil {
		return fmt.Errorf("postgres: create batch %s: %w", b.Name, mapWriteErr(err))
	}
	return nil
}

// GetByID returns the batch with id or domain.ErrNotFound.
func (s *BatchStore) GetByID(ctx context.Context, id string) (domain.Batch, error) {
	b, err := scanBatch(s.pool.QueryRow(ctx, `SELECT `+batchCols+` FROM batches WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Batch{}, domain.ErrNotFound
		}
		return domain.Batch{}, fmt.Errorf("postgres: get batch %s: %w", id, err)
	}
	return b, nil
}

// List returns batches oldest first.
func (s *BatchStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Batch, error) {
	query, args := timeFilter(`SELECT `+batchCols+` FROM batches`, nil, opts)
	query, args = pageClause(query+" ORDER BY created_at, name", args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list batches: %w", err)
	}
	defer rows.Close()

	var out []domain.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan batch: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list batches rows: %w", err)
	}
	return out, nil
}

var (
	_ domain.AccountStore = (*AccountStore)(nil)
	_ domain.ProxyStore   = (*ProxyStore)(nil)
	_ domain.BatchStore   = (*BatchStore)(nil)
)
