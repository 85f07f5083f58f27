package ledger

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memAccounts is an in-memory AccountStore with the same optimistic
// version check as the real stores. saveHook runs before each commit and
// can inject failures.
type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]Account

	saveHook   func(acc *Account) error
	existsHook func(accountNumber string) (bool, error)

	saveCalls   int
	insertCalls int
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[string]Account)}
}

func (m *memAccounts) Find(ctx context.Context, accountNumber string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[accountNumber]
	if !ok {
		return nil, NewNotFound(accountNumber)
	}
	cp := acc
	return &cp, nil
}

func (m *memAccounts) Exists(ctx context.Context, accountNumber string) (bool, error) {
	if m.existsHook != nil {
		return m.existsHook(accountNumber)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.accounts[accountNumber]
	return ok, nil
}

func (m *memAccounts) Insert(ctx context.Context, acc *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.insertCalls++
	if _, ok := m.accounts[acc.AccountNumber]; ok {
		return NewDuplicateKey(acc.AccountNumber, nil)
	}
	acc.Version = 0
	m.accounts[acc.AccountNumber] = *acc
	return nil
}

func (m *memAccounts) Save(ctx context.Context, acc *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveCalls++
	if m.saveHook != nil {
		if err := m.saveHook(acc); err != nil {
			return err
		}
	}

	stored, ok := m.accounts[acc.AccountNumber]
	if !ok {
		return NewNotFound(acc.AccountNumber)
	}
	if stored.Version != acc.Version {
		return NewConflict(acc.AccountNumber, nil)
	}

	acc.Version++
	m.accounts[acc.AccountNumber] = *acc
	return nil
}

// memTransactions is an in-memory TransactionStore. insertHook can
// inject failures.
type memTransactions struct {
	mu   sync.Mutex
	txns []Transaction

	insertHook  func(txn *Transaction) error
	insertCalls int
}

func newMemTransactions() *memTransactions {
	return &memTransactions{}
}

func (m *memTransactions) Insert(ctx context.Context, txn *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.insertCalls++
	if m.insertHook != nil {
		if err := m.insertHook(txn); err != nil {
			return err
		}
	}
	for _, existing := range m.txns {
		if existing.TransactionID == txn.TransactionID {
			return NewDuplicateKey(txn.TransactionID, nil)
		}
	}
	m.txns = append(m.txns, *txn)
	return nil
}

func (m *memTransactions) FindByParticipant(ctx context.Context, accountNumber string) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Transaction
	for i := range m.txns {
		if m.txns[i].SourceAccount == accountNumber || m.txns[i].DestinationAccount == accountNumber {
			cp := m.txns[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func newTestService(accounts *memAccounts, txns *memTransactions) *Service {
	return NewService(accounts, txns, NewGenerator(), nil)
}

func seedAccount(t *testing.T, accounts *memAccounts, accountNumber string, balance float64) {
	t.Helper()
	err := accounts.Insert(context.Background(), &Account{
		AccountNumber: accountNumber,
		HolderName:    "Seed Holder",
		Balance:       balance,
		Status:        StatusActive,
	})
	require.NoError(t, err)
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	svc := newTestService(accounts, newMemTransactions())

	acc, err := svc.CreateAccount(ctx, "Alice Sharma")
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^ALICE-[A-Z0-9]{8}$`), acc.AccountNumber)
	assert.Equal(t, "Alice Sharma", acc.HolderName)
	assert.Equal(t, 0.0, acc.Balance)
	assert.Equal(t, StatusActive, acc.Status)
	assert.False(t, acc.CreatedAt.IsZero())
}

func TestCreateAccount_BlankHolderName(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	svc := newTestService(accounts, newMemTransactions())

	_, err := svc.CreateAccount(ctx, "   ")
	require.Error(t, err)
	assert.Equal(t, KindInvalidOperation, KindOf(err))
	assert.Zero(t, accounts.insertCalls)
}

func TestCreateAccount_GenerationExhausted(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	accounts.existsHook = func(string) (bool, error) { return true, nil }
	svc := newTestService(accounts, newMemTransactions())

	_, err := svc.CreateAccount(ctx, "Bob")
	require.Error(t, err)
	assert.Equal(t, KindGenerationExhausted, KindOf(err))
	assert.Zero(t, accounts.insertCalls)
}

func TestCreateAccount_NumberCollisionRetried(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	svc := newTestService(accounts, newMemTransactions())

	first, err := svc.CreateAccount(ctx, "Carol")
	require.NoError(t, err)
	second, err := svc.CreateAccount(ctx, "Carol")
	require.NoError(t, err)

	assert.NotEqual(t, first.AccountNumber, second.AccountNumber)
}

func TestGetAccount_NotFound(t *testing.T) {
	svc := newTestService(newMemAccounts(), newMemTransactions())

	_, err := svc.GetAccount(context.Background(), "NOBODY-12345678")
	require.Error(t, err)
	assert.Equal(t, KindAccountNotFound, KindOf(err))
}

func TestGetAccount_ReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	seedAccount(t, accounts, "ALICE-00000001", 250)
	svc := newTestService(accounts, newMemTransactions())

	first, err := svc.GetAccount(ctx, "ALICE-00000001")
	require.NoError(t, err)
	second, err := svc.GetAccount(ctx, "ALICE-00000001")
	require.NoError(t, err)

	assert.Equal(t, first.Balance, second.Balance)
	assert.Equal(t, first.Version, second.Version)
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	txns := newMemTransactions()
	seedAccount(t, accounts, "ALICE-00000001", 0)
	svc := newTestService(accounts, txns)

	txn, err := svc.Deposit(ctx, "ALICE-00000001", 500)
	require.NoError(t, err)

	assert.Equal(t, TypeDeposit, txn.Type)
	assert.Equal(t, 500.0, txn.Amount)
	assert.Equal(t, TxnStatusSuccess, txn.Status)
	assert.Equal(t, "ALICE-00000001", txn.SourceAccount)
	assert.Empty(t, txn.DestinationAccount)
	assert.Regexp(t, regexp.MustCompile(`^TXN-\d{8}-\d{3}$`), txn.TransactionID)

	acc, err := svc.GetAccount(ctx, "ALICE-00000001")
	require.NoError(t, err)
	assert.Equal(t, 500.0, acc.Balance)
	assert.Equal(t, int64(1), acc.Version)
}

func TestDeposit_InvalidAmount(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	txns := newMemTransactions()
	seedAccount(t, accounts, "ALICE-00000001", 100)
	svc := newTestService(accounts, txns)

	for _, amount := range []float64{0, -5} {
		_, err := svc.Deposit(ctx, "ALICE-00000001", amount)
		require.Error(t, err)
		assert.Equal(t, KindInvalidAmount, KindOf(err))
	}

	// Validation happens before any store access.
	assert.Zero(t, accounts.saveCalls)
	assert.Zero(t, txns.insertCalls)
}

func TestDeposit_AccountNotFound(t *testing.T) {
	svc := newTestService(newMemAccounts(), newMemTransactions())

	_, err := svc.Deposit(context.Background(), "GHOST-00000001", 50)
	require.Error(t, err)
	assert.Equal(t, KindAccountNotFound, KindOf(err))
}

func TestDeposit_ConflictRetried(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	seedAccount(t, accounts, "ALICE-00000001", 0)

	conflicts := 1
	accounts.saveHook = func(acc *Account) error {
		if conflicts > 0 {
			conflicts--
			return NewConflict(acc.AccountNumber, nil)
		}
		return nil
	}
	svc := newTestService(accounts, newMemTransactions())

	_, err := svc.Deposit(ctx, "ALICE-00000001", 100)
	require.NoError(t, err)

	acc, err := svc.GetAccount(ctx, "ALICE-00000001")
	require.NoError(t, err)
	assert.Equal(t, 100.0, acc.Balance)
	assert.Equal(t, 2, accounts.saveCalls)
}

func TestDeposit_ConflictBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	seedAccount(t, accounts, "ALICE-00000001", 0)
	accounts.saveHook = func(acc *Account) error {
		return NewConflict(acc.AccountNumber, nil)
	}
	txns := newMemTransactions()
	svc := newTestService(accounts, txns)

	_, err := svc.Deposit(ctx, "ALICE-00000001", 100)
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, maxRetries, accounts.saveCalls)
	assert.Zero(t, txns.insertCalls)
}

func TestDeposit_ConcurrentDepositsConverge(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	seedAccount(t, accounts, "ALICE-00000001", 0)
	svc := newTestService(accounts, newMemTransactions())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Deposit(ctx, "ALICE-00000001", 100)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	acc, err := svc.GetAccount(ctx, "ALICE-00000001")
	require.NoError(t, err)
	assert.Equal(t, 200.0, acc.Balance)
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	seedAccount(t, accounts, "ALICE-00000001", 500)
	svc := newTestService(accounts, newMemTransactions())

	txn, err := svc.Withdraw(ctx, "ALICE-00000001", 200)
	require.NoError(t, err)
	assert.Equal(t, TypeWithdraw, txn.Type)
	assert.Equal(t, "ALICE-00000001", txn.SourceAccount)

	acc, err := svc.GetAccount(ctx, "ALICE-00000001")
	require.NoError(t, err)
	assert.Equal(t, 300.0, acc.Balance)
}

func TestWithdraw_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	txns := newMemTransactions()
	seedAccount(t, accounts, "ALICE-00000001", 100)
	svc := newTestService(accounts, txns)

	_, err := svc.Withdraw(ctx, "ALICE-00000001", 200)
	require.Error(t, err)
	assert.Equal(t, KindInsufficientBalance, KindOf(err))

	acc, err := svc.GetAccount(ctx, "ALICE-00000001")
	require.NoError(t, err)
	assert.Equal(t, 100.0, acc.Balance)
	assert.Zero(t, accounts.saveCalls)
	assert.Zero(t, txns.insertCalls)
}

func TestWithdraw_BalanceRevalidatedOnRetry(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	seedAccount(t, accounts, "ALICE-00000001", 100)
	svc := newTestService(accounts, newMemTransactions())

	// First attempt conflicts; a concurrent withdrawal drains the
	// balance before the retry fetches again.
	fired := false
	accounts.saveHook = func(acc *Account) error {
		if !fired {
			fired = true
			stored := accounts.accounts[acc.AccountNumber]
			stored.Balance = 10
			stored.Version++
			accounts.accounts[acc.AccountNumber] = stored
			return NewConflict(acc.AccountNumber, nil)
		}
		return nil
	}

	_, err := svc.Withdraw(ctx, "ALICE-00000001", 50)
	require.Error(t, err)
	assert.Equal(t, KindInsufficientBalance, KindOf(err))
}

func TestDepositThenWithdrawRestoresBalance(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	seedAccount(t, accounts, "ALICE-00000001", 325)
	svc := newTestService(accounts, newMemTransactions())

	_, err := svc.Deposit(ctx, "ALICE-00000001", 75)
	require.NoError(t, err)
	_, err = svc.Withdraw(ctx, "ALICE-00000001", 75)
	require.NoError(t, err)

	acc, err := svc.GetAccount(ctx, "ALICE-00000001")
	require.NoError(t, err)
	assert.Equal(t, 325.0, acc.Balance)
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	txns := newMemTransactions()
	seedAccount(t, accounts, "ALICE-00000001", 1000)
	seedAccount(t, accounts, "BOB-00000002", 200)
	svc := newTestService(accounts, txns)

	txn, err := svc.Transfer(ctx, "ALICE-00000001", "BOB-00000002", 300)
	require.NoError(t, err)
	assert.Equal(t, TypeTransfer, txn.Type)
	assert.Equal(t, "ALICE-00000001", txn.SourceAccount)
	assert.Equal(t, "BOB-00000002", txn.DestinationAccount)

	from, err := svc.GetAccount(ctx, "ALICE-00000001")
	require.NoError(t, err)
	to, err := svc.GetAccount(ctx, "BOB-00000002")
	require.NoError(t, err)
	assert.Equal(t, 700.0, from.Balance)
	assert.Equal(t, 500.0, to.Balance)

	// Conservation: total moved, not created.
	assert.Equal(t, 1200.0, from.Balance+to.Balance)
	assert.Equal(t, 1, txns.insertCalls)
}

func TestTransfer_SelfTransferRejected(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	seedAccount(t, accounts, "ALICE-00000001", 1000)
	svc := newTestService(accounts, newMemTransactions())

	_, err := svc.Transfer(ctx, "ALICE-00000001", "ALICE-00000001", 10)
	require.Error(t, err)
	assert.Equal(t, KindInvalidOperation, KindOf(err))
	assert.Zero(t, accounts.saveCalls)
}

func TestTransfer_InvalidAmount(t *testing.T) {
	svc := newTestService(newMemAccounts(), newMemTransactions())

	_, err := svc.Transfer(context.Background(), "A-1", "B-2", -10)
	require.Error(t, err)
	assert.Equal(t, KindInvalidAmount, KindOf(err))
}

func TestTransfer_MissingAccounts(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	seedAccount(t, accounts, "ALICE-00000001", 1000)
	svc := newTestService(accounts, newMemTransactions())

	_, err := svc.Transfer(ctx, "GHOST-00000009", "ALICE-00000001", 10)
	require.Error(t, err)
	assert.Equal(t, KindAccountNotFound, KindOf(err))

	_, err = svc.Transfer(ctx, "ALICE-00000001", "GHOST-00000009", 10)
	require.Error(t, err)
	assert.Equal(t, KindAccountNotFound, KindOf(err))
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	txns := newMemTransactions()
	seedAccount(t, accounts, "ALICE-00000001", 100)
	seedAccount(t, accounts, "BOB-00000002", 0)
	svc := newTestService(accounts, txns)

	_, err := svc.Transfer(ctx, "ALICE-00000001", "BOB-00000002", 500)
	require.Error(t, err)
	assert.Equal(t, KindInsufficientBalance, KindOf(err))
	assert.Zero(t, txns.insertCalls)
}

func TestTransfer_ConflictRetriesWholePair(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	seedAccount(t, accounts, "ALICE-00000001", 1000)
	seedAccount(t, accounts, "BOB-00000002", 0)
	svc := newTestService(accounts, newMemTransactions())

	// Fail the first save of the source leg only; the retry must fetch
	// both accounts again and succeed cleanly.
	fired := false
	accounts.saveHook = func(acc *Account) error {
		if !fired && acc.AccountNumber == "ALICE-00000001" {
			fired = true
			return NewConflict(acc.AccountNumber, nil)
		}
		return nil
	}

	_, err := svc.Transfer(ctx, "ALICE-00000001", "BOB-00000002", 300)
	require.NoError(t, err)

	from, err := svc.GetAccount(ctx, "ALICE-00000001")
	require.NoError(t, err)
	to, err := svc.GetAccount(ctx, "BOB-00000002")
	require.NoError(t, err)
	assert.Equal(t, 700.0, from.Balance)
	assert.Equal(t, 300.0, to.Balance)
}

func TestGetTransactions(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	txns := newMemTransactions()
	seedAccount(t, accounts, "ALICE-00000001", 1000)
	seedAccount(t, accounts, "BOB-00000002", 0)
	svc := newTestService(accounts, txns)

	_, err := svc.Deposit(ctx, "ALICE-00000001", 50)
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, "ALICE-00000001", "BOB-00000002", 25)
	require.NoError(t, err)

	aliceTxns, err := svc.GetTransactions(ctx, "ALICE-00000001")
	require.NoError(t, err)
	assert.Len(t, aliceTxns, 2)

	// The transfer shows up for the destination too.
	bobTxns, err := svc.GetTransactions(ctx, "BOB-00000002")
	require.NoError(t, err)
	require.Len(t, bobTxns, 1)
	assert.Equal(t, TypeTransfer, bobTxns[0].Type)
}

func TestGetTransactions_AccountNotFound(t *testing.T) {
	svc := newTestService(newMemAccounts(), newMemTransactions())

	_, err := svc.GetTransactions(context.Background(), "GHOST-00000001")
	require.Error(t, err)
	assert.Equal(t, KindAccountNotFound, KindOf(err))
}

func TestRecordTransaction_DuplicateIDRegenerated(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	txns := newMemTransactions()
	seedAccount(t, accounts, "ALICE-00000001", 0)

	dupes := 1
	txns.insertHook = func(txn *Transaction) error {
		if dupes > 0 {
			dupes--
			return NewDuplicateKey(txn.TransactionID, nil)
		}
		return nil
	}
	svc := newTestService(accounts, txns)

	txn, err := svc.Deposit(ctx, "ALICE-00000001", 100)
	require.NoError(t, err)
	assert.NotEmpty(t, txn.TransactionID)
	assert.Equal(t, 2, txns.insertCalls)
}

func TestRecordTransaction_DuplicateBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	txns := newMemTransactions()
	seedAccount(t, accounts, "ALICE-00000001", 0)
	txns.insertHook = func(txn *Transaction) error {
		return NewDuplicateKey(txn.TransactionID, nil)
	}
	svc := newTestService(accounts, txns)

	_, err := svc.Deposit(ctx, "ALICE-00000001", 100)
	require.Error(t, err)
	assert.Equal(t, KindDuplicateKey, KindOf(err))
	assert.Equal(t, maxIDRetries, txns.insertCalls)
}
