package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/bank-ledger/internal/ledger"
)

const pgQueryTimeout = 5 * time.Second

// unique_violation
const pgUniqueViolation = "23505"

// PostgresAccounts implements ledger.AccountStore over a pgx pool.
// The version check rides on a conditional UPDATE so no explicit row
// locks are taken.
type PostgresAccounts struct {
	Pool *pgxpool.Pool
}

// NewPostgresAccounts creates a Postgres-backed account store.
func NewPostgresAccounts(pool *pgxpool.Pool) *PostgresAccounts {
	return &PostgresAccounts{Pool: pool}
}

func (s *PostgresAccounts) Find(ctx context.Context, accountNumber string) (*ledger.Account, error) {
	queryCtx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	var acc ledger.Account
	err := s.Pool.QueryRow(queryCtx, `
		SELECT id, account_number, holder_name, balance, status, created_at, version
		FROM accounts
		WHERE account_number = $1
	`, accountNumber).Scan(
		&acc.ID,
		&acc.AccountNumber,
		&acc.HolderName,
		&acc.Balance,
		&acc.Status,
		&acc.CreatedAt,
		&acc.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.NewNotFound(accountNumber)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &acc, nil
}

func (s *PostgresAccounts) Exists(ctx context.Context, accountNumber string) (bool, error) {
	queryCtx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	var exists bool
	err := s.Pool.QueryRow(queryCtx,
		"SELECT EXISTS(SELECT 1 FROM accounts WHERE account_number = $1)",
		accountNumber).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check account existence: %w", err)
	}
	return exists, nil
}

func (s *PostgresAccounts) Insert(ctx context.Context, acc *ledger.Account) error {
	queryCtx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	err := s.Pool.QueryRow(queryCtx, `
		INSERT INTO accounts (account_number, holder_name, balance, status, created_at, version)
		VALUES ($1, $2, $3, $4, $5, 0)
		RETURNING id
	`, acc.AccountNumber, acc.HolderName, acc.Balance, acc.Status, acc.CreatedAt).Scan(&acc.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ledger.NewDuplicateKey(acc.AccountNumber, err)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	acc.Version = 0
	return nil
}

// Save commits the in-memory account state only when the stored version
// still matches acc.Version. Zero rows updated means the version moved
// (or the row is gone); the two cases are told apart with a follow-up
// existence check.
func (s *PostgresAccounts) Save(ctx context.Context, acc *ledger.Account) error {
	queryCtx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	tag, err := s.Pool.Exec(queryCtx, `
		UPDATE accounts
		SET holder_name = $2, balance = $3, status = $4, version = version + 1
		WHERE account_number = $1 AND version = $5
	`, acc.AccountNumber, acc.HolderName, acc.Balance, acc.Status, acc.Version)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	if tag.RowsAffected() == 0 {
		exists, err := s.Exists(ctx, acc.AccountNumber)
		if err != nil {
			return err
		}
		if !exists {
			return ledger.NewNotFound(acc.AccountNumber)
		}
		return ledger.NewConflict(acc.AccountNumber, nil)
	}

	acc.Version++
	return nil
}

// PostgresTransactions implements ledger.TransactionStore over a pgx pool.
type PostgresTransactions struct {
	Pool *pgxpool.Pool
}

// NewPostgresTransactions creates a Postgres-backed transaction store.
func NewPostgresTransactions(pool *pgxpool.Pool) *PostgresTransactions {
	return &PostgresTransactions{Pool: pool}
}

func (s *PostgresTransactions) Insert(ctx context.Context, txn *ledger.Transaction) error {
	queryCtx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	var dest any
	if txn.DestinationAccount != "" {
		dest = txn.DestinationAccount
	}

	err := s.Pool.QueryRow(queryCtx, `
		INSERT INTO transactions (transaction_id, type, amount, timestamp, status, source_account, destination_account)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, txn.TransactionID, txn.Type, txn.Amount, txn.Timestamp, txn.Status, txn.SourceAccount, dest).Scan(&txn.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ledger.NewDuplicateKey(txn.TransactionID, err)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

func (s *PostgresTransactions) FindByParticipant(ctx context.Context, accountNumber string) ([]*ledger.Transaction, error) {
	queryCtx, cancel := context.WithTimeout(ctx, pgQueryTimeout)
	defer cancel()

	rows, err := s.Pool.Query(queryCtx, `
		SELECT id, transaction_id, type, amount, timestamp, status, source_account, COALESCE(destination_account, '')
		FROM transactions
		WHERE source_account = $1 OR destination_account = $1
		ORDER BY timestamp
	`, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []*ledger.Transaction
	for rows.Next() {
		var txn ledger.Transaction
		err := rows.Scan(
			&txn.ID,
			&txn.TransactionID,
			&txn.Type,
			&txn.Amount,
			&txn.Timestamp,
			&txn.Status,
			&txn.SourceAccount,
			&txn.DestinationAccount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, &txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}

	return txns, nil
}
