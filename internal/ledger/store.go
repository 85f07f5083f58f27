package ledger

import "context"

// AccountStore is the persistence contract for accounts. Save implements
// optimistic concurrency control: it commits only when the stored version
// still equals acc.Version, increments the version on success, and
// returns a KindConflict error otherwise. Insert returns a
// KindDuplicateKey error when the account number is already taken.
type AccountStore interface {
	Find(ctx context.Context, accountNumber string) (*Account, error)
	Exists(ctx context.Context, accountNumber string) (bool, error)
	Insert(ctx context.Context, acc *Account) error
	Save(ctx context.Context, acc *Account) error
}

// TransactionStore is the persistence contract for transaction records.
// Insert returns a KindDuplicateKey error when the transaction id is
// already taken. FindByParticipant matches the account number against
// either the source or the destination field.
type TransactionStore interface {
	Insert(ctx context.Context, txn *Transaction) error
	FindByParticipant(ctx context.Context, accountNumber string) ([]*Transaction, error)
}
