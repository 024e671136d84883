package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpredict/marketd/internal/domain"
)

// TransactionStore implements domain.TransactionStore using PostgreSQL. The
// unique index on settlement_ref backs the journal's idempotent replay: a
// duplicate insert surfaces as domain.ErrAlreadyExists and the journal
// resolves it to the stored entry.
type TransactionStore struct {
	pool *pgxpool.Pool
}

// NewTransactionStore creates a new TransactionStore backed by the given connection pool.
func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

const txSelectCols = `id, tx_type, market_id, user_id, option_index, option_name,
	side, amount, status, settlement_ref, created_at`

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var tx domain.Transaction
	var txType, side, status string
	err := row.Scan(
		&tx.ID, &txType, &tx.MarketID, &tx.UserID, &tx.OptionIndex, &tx.OptionName,
		&side, &tx.Amount, &status, &tx.SettlementRef, &tx.CreatedAt,
	)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx.Type = domain.TxType(txType)
	tx.Side = domain.Side(side)
	tx.Status = domain.TxStatus(status)
	return tx, nil
}

func scanTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// Insert appends a journal entry. A duplicate ID or settlement reference
// returns domain.ErrAlreadyExists.
func (s *TransactionStore) Insert(ctx context.Context, tx domain.Transaction) error {
	const query = `
		INSERT INTO transactions (
			id, tx_type, market_id, user_id, option_index, option_name,
			side, amount, status, settlement_ref, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		tx.ID, string(tx.Type), tx.MarketID, tx.UserID, tx.OptionIndex, tx.OptionName,
		string(tx.Side), tx.Amount, string(tx.Status), tx.SettlementRef, tx.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert transaction %s: %w", tx.ID, err)
	}
	return nil
}

// Get retrieves a journal entry by ID.
func (s *TransactionStore) Get(ctx context.Context, id string) (domain.Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+txSelectCols+` FROM transactions WHERE id = $1`, id)

	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Transaction{}, domain.ErrNotFound
		}
		return domain.Transaction{}, fmt.Errorf("postgres: get transaction %s: %w", id, err)
	}
	return tx, nil
}

// GetBySettlementRef retrieves the entry carrying the given settlement
// reference, or domain.ErrNotFound.
func (s *TransactionStore) GetBySettlementRef(ctx context.Context, ref string) (domain.Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+txSelectCols+` FROM transactions WHERE settlement_ref = $1`, ref)

	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Transaction{}, domain.ErrNotFound
		}
		return domain.Transaction{}, fmt.Errorf("postgres: get transaction by ref %s: %w", ref, err)
	}
	return tx, nil
}

// UpdateStatus sets the status of a journal entry.
func (s *TransactionStore) UpdateStatus(ctx context.Context, id string, status domain.TxStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transactions SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update transaction %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByMarket returns entries for a market, most recent first.
func (s *TransactionStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	query := `SELECT ` + txSelectCols + ` FROM transactions WHERE market_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{marketID}
	query, args = paginate(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions by market %s: %w", marketID, err)
	}
	defer rows.Close()

	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transactions: %w", err)
	}
	return txs, nil
}

// ListByUser returns entries for a user across markets, most recent first.
func (s *TransactionStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	query := `SELECT ` + txSelectCols + ` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	query, args = paginate(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions by user %s: %w", userID, err)
	}
	defer rows.Close()

	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transactions: %w", err)
	}
	return txs, nil
}

// ListCompletedBefore returns completed entries created strictly before the
// cutoff, oldest first.
func (s *TransactionStore) ListCompletedBefore(ctx context.Context, cutoff time.Time) ([]domain.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+txSelectCols+` FROM transactions
		 WHERE status = 'completed' AND created_at < $1
		 ORDER BY created_at ASC, id ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list completed transactions before %v: %w", cutoff, err)
	}
	defer rows.Close()

	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transactions: %w", err)
	}
	return txs, nil
}

func paginate(query string, args []any, opts domain.ListOpts) (string, []any) {
	argIdx := len(args) + 1
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

// Compile-time interface check.
var _ domain.TransactionStore = (*TransactionStore)(nil)
