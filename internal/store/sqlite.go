package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/mattn/go-sqlite3"

	"github.com/example/bank-ledger/internal/ledger"
)

// sqliteSchema holds both ledger tables. SQLite keeps local development
// and store tests free of a running Postgres.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_number TEXT UNIQUE NOT NULL,
	holder_name TEXT NOT NULL,
	balance REAL NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	version INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_id TEXT UNIQUE NOT NULL,
	type TEXT NOT NULL,
	amount REAL NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	status TEXT NOT NULL,
	source_account TEXT NOT NULL,
	destination_account TEXT
);

CREATE INDEX IF NOT EXISTS idx_transactions_source ON transactions(source_account);
CREATE INDEX IF NOT EXISTS idx_transactions_destination ON transactions(destination_account);
`

// EnsureSQLiteSchema creates the ledger tables if they do not exist yet.
func EnsureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	return nil
}

// SQLiteAccounts implements ledger.AccountStore over database/sql with
// the sqlite3 driver. Same conditional-UPDATE version check as the
// Postgres store.
type SQLiteAccounts struct {
	DB *sql.DB
}

// NewSQLiteAccounts creates a SQLite-backed account store.
func NewSQLiteAccounts(db *sql.DB) *SQLiteAccounts {
	return &SQLiteAccounts{DB: db}
}

func (s *SQLiteAccounts) Find(ctx context.Context, accountNumber string) (*ledger.Account, error) {
	var acc ledger.Account
	var id int64
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, account_number, holder_name, balance, status, created_at, version
		FROM accounts
		WHERE account_number = ?
	`, accountNumber).Scan(
		&id,
		&acc.AccountNumber,
		&acc.HolderName,
		&acc.Balance,
		&acc.Status,
		&acc.CreatedAt,
		&acc.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.NewNotFound(accountNumber)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	acc.ID = strconv.FormatInt(id, 10)
	return &acc, nil
}

func (s *SQLiteAccounts) Exists(ctx context.Context, accountNumber string) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM accounts WHERE account_number = ?)",
		accountNumber).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check account existence: %w", err)
	}
	return exists, nil
}

func (s *SQLiteAccounts) Insert(ctx context.Context, acc *ledger.Account) error {
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO accounts (account_number, holder_name, balance, status, created_at, version)
		VALUES (?, ?, ?, ?, ?, 0)
	`, acc.AccountNumber, acc.HolderName, acc.Balance, acc.Status, acc.CreatedAt)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ledger.NewDuplicateKey(acc.AccountNumber, err)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		acc.ID = strconv.FormatInt(id, 10)
	}
	acc.Version = 0
	return nil
}

func (s *SQLiteAccounts) Save(ctx context.Context, acc *ledger.Account) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE accounts
		SET holder_name = ?, balance = ?, status = ?, version = version + 1
		WHERE account_number = ? AND version = ?
	`, acc.HolderName, acc.Balance, acc.Status, acc.AccountNumber, acc.Version)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	if n == 0 {
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

// SQLiteTransactions implements ledger.TransactionStore over database/sql
// with the sqlite3 driver.
type SQLiteTransactions struct {
	DB *sql.DB
}

// NewSQLiteTransactions creates a SQLite-backed transaction store.
func NewSQLiteTransactions(db *sql.DB) *SQLiteTransactions {
	return &SQLiteTransactions{DB: db}
}

func (s *SQLiteTransactions) Insert(ctx context.Context, txn *ledger.Transaction) error {
	var dest any
	if txn.DestinationAccount != "" {
		dest = txn.DestinationAccount
	}

	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO transactions (transaction_id, type, amount, timestamp, status, source_account, destination_account)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, txn.TransactionID, txn.Type, txn.Amount, txn.Timestamp, txn.Status, txn.SourceAccount, dest)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ledger.NewDuplicateKey(txn.TransactionID, err)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		txn.ID = strconv.FormatInt(id, 10)
	}
	return nil
}

func (s *SQLiteTransactions) FindByParticipant(ctx context.Context, accountNumber string) ([]*ledger.Transaction, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, transaction_id, type, amount, timestamp, status, source_account, COALESCE(destination_account, '')
		FROM transactions
		WHERE source_account = ? OR destination_account = ?
		ORDER BY timestamp
	`, accountNumber, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []*ledger.Transaction
	for rows.Next() {
		var txn ledger.Transaction
		var id int64
		err := rows.Scan(
			&id,
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
		txn.ID = strconv.FormatInt(id, 10)
		txns = append(txns, &txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}

	return txns, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
