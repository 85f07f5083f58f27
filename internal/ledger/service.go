package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// maxRetries bounds the optimistic retry loop around every
	// balance-mutating operation. Exhausting it surfaces the underlying
	// conflict error unchanged.
	maxRetries = 3

	// maxGenerateAttempts bounds account-number generation against
	// collisions so a degenerate random source cannot loop forever.
	maxGenerateAttempts = 10

	// maxIDRetries bounds transaction-id regeneration when the
	// date-plus-3-digits format collides within a day.
	maxIDRetries = 3
)

// Service is the ledger core. It orchestrates validation, the optimistic
// retry loop, balance arithmetic, and transaction-record construction
// over externally-owned stores. It holds no state across calls; every
// operation re-fetches fresh records.
type Service struct {
	accounts AccountStore
	txns     TransactionStore
	gen      *Generator
	logger   *slog.Logger
}

// NewService creates a ledger service over the given stores.
func NewService(accounts AccountStore, txns TransactionStore, gen *Generator, logger *slog.Logger) *Service {
	if gen == nil {
		gen = NewGenerator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts: accounts,
		txns:     txns,
		gen:      gen,
		logger:   logger,
	}
}

// CreateAccount opens a zero-balance active account for holderName.
// Candidate account numbers are generated until an unused one is found,
// up to maxGenerateAttempts; a losing race on Insert counts as a
// collision too. No transaction record is written for account opening.
func (s *Service) CreateAccount(ctx context.Context, holderName string) (*Account, error) {
	if strings.TrimSpace(holderName) == "" {
		return nil, errInvalidOperation("holder name is required")
	}

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		accNum := s.gen.AccountNumber(holderName)

		taken, err := s.accounts.Exists(ctx, accNum)
		if err != nil {
			return nil, fmt.Errorf("failed to check account number: %w", err)
		}
		if taken {
			continue
		}

		acc := &Account{
			AccountNumber: accNum,
			HolderName:    holderName,
			Balance:       0,
			Status:        StatusActive,
			CreatedAt:     time.Now().UTC(),
		}

		if err := s.accounts.Insert(ctx, acc); err != nil {
			// Another creator can claim the number between the
			// existence check and the insert.
			if IsKind(err, KindDuplicateKey) {
				continue
			}
			return nil, fmt.Errorf("failed to insert account: %w", err)
		}
		return acc, nil
	}

	return nil, &Error{
		Kind: KindGenerationExhausted,
		Msg:  fmt.Sprintf("no free account number after %d attempts", maxGenerateAttempts),
	}
}

// GetAccount looks an account up by its business key.
func (s *Service) GetAccount(ctx context.Context, accountNumber string) (*Account, error) {
	return s.accounts.Find(ctx, accountNumber)
}

// Deposit increases the account balance by amount and records a DEPOSIT
// transaction. Version conflicts are retried from a fresh fetch up to
// maxRetries attempts.
func (s *Service) Deposit(ctx context.Context, accountNumber string, amount float64) (*Transaction, error) {
	if amount <= 0 {
		return nil, errInvalidAmount()
	}

	for attempt := 1; ; attempt++ {
		acc, err := s.accounts.Find(ctx, accountNumber)
		if err != nil {
			return nil, err
		}

		acc.Balance += amount

		if err := s.accounts.Save(ctx, acc); err != nil {
			if s.retryConflict(err, attempt, "deposit", accountNumber) {
				continue
			}
			return nil, err
		}

		return s.recordTransaction(ctx, &Transaction{
			Type:          TypeDeposit,
			Amount:        amount,
			Status:        TxnStatusSuccess,
			SourceAccount: accountNumber,
		})
	}
}

// Withdraw decreases the account balance by amount and records a WITHDRAW
// transaction. The balance check runs inside the retry loop, after each
// fresh fetch, so a concurrently-reduced balance is re-validated on every
// attempt.
func (s *Service) Withdraw(ctx context.Context, accountNumber string, amount float64) (*Transaction, error) {
	if amount <= 0 {
		return nil, errInvalidAmount()
	}

	for attempt := 1; ; attempt++ {
		acc, err := s.accounts.Find(ctx, accountNumber)
		if err != nil {
			return nil, err
		}
		if acc.Balance < amount {
			return nil, errInsufficientBalance(accountNumber)
		}

		acc.Balance -= amount

		if err := s.accounts.Save(ctx, acc); err != nil {
			if s.retryConflict(err, attempt, "withdraw", accountNumber) {
				continue
			}
			return nil, err
		}

		return s.recordTransaction(ctx, &Transaction{
			Type:          TypeWithdraw,
			Amount:        amount,
			Status:        TxnStatusSuccess,
			SourceAccount: accountNumber,
		})
	}
}

// Transfer moves amount from one account to another and records a single
// TRANSFER transaction referencing both. A version conflict on either
// leg retries the whole attempt from a fresh fetch of both accounts, so
// a retry never mixes a fresh read of one leg with a stale read of the
// other. The two saves are separate writes, not one atomic unit.
func (s *Service) Transfer(ctx context.Context, fromAccount, toAccount string, amount float64) (*Transaction, error) {
	if amount <= 0 {
		return nil, errInvalidAmount()
	}
	if fromAccount == toAccount {
		return nil, errInvalidOperation("cannot transfer to the same account")
	}

	for attempt := 1; ; attempt++ {
		from, err := s.accounts.Find(ctx, fromAccount)
		if err != nil {
			return nil, err
		}
		to, err := s.accounts.Find(ctx, toAccount)
		if err != nil {
			return nil, err
		}

		if from.Balance < amount {
			return nil, errInsufficientBalance(fromAccount)
		}

		from.Balance -= amount
		to.Balance += amount

		if err := s.accounts.Save(ctx, from); err != nil {
			if s.retryConflict(err, attempt, "transfer", fromAccount) {
				continue
			}
			return nil, err
		}
		if err := s.accounts.Save(ctx, to); err != nil {
			if s.retryConflict(err, attempt, "transfer", toAccount) {
				continue
			}
			return nil, err
		}

		return s.recordTransaction(ctx, &Transaction{
			Type:               TypeTransfer,
			Amount:             amount,
			Status:             TxnStatusSuccess,
			SourceAccount:      fromAccount,
			DestinationAccount: toAccount,
		})
	}
}

// GetTransactions returns every transaction record in which the account
// appears as source or destination, in store-defined order. The account
// must exist.
func (s *Service) GetTransactions(ctx context.Context, accountNumber string) ([]*Transaction, error) {
	if _, err := s.accounts.Find(ctx, accountNumber); err != nil {
		return nil, err
	}
	return s.txns.FindByParticipant(ctx, accountNumber)
}

// retryConflict reports whether a failed save should be retried. Only
// version conflicts within the retry budget qualify; everything else
// propagates to the caller unchanged.
func (s *Service) retryConflict(err error, attempt int, op, accountNumber string) bool {
	if !IsKind(err, KindConflict) || attempt >= maxRetries {
		return false
	}
	s.logger.Warn("version conflict, retrying",
		"op", op,
		"account", accountNumber,
		"attempt", attempt,
	)
	time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
	return true
}

// recordTransaction stamps and persists the record for an
// already-committed balance change. A duplicate transaction id is
// retried with a fresh id up to maxIDRetries times.
func (s *Service) recordTransaction(ctx context.Context, txn *Transaction) (*Transaction, error) {
	txn.Timestamp = time.Now().UTC()

	for attempt := 1; ; attempt++ {
		txn.TransactionID = s.gen.TransactionID()

		err := s.txns.Insert(ctx, txn)
		if err == nil {
			return txn, nil
		}
		if !IsKind(err, KindDuplicateKey) || attempt >= maxIDRetries {
			return nil, fmt.Errorf("failed to record %s transaction: %w", txn.Type, err)
		}
	}
}
