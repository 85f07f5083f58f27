package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies a ledger error so callers can map it to a transport
// status without string matching.
type Kind int

const (
	// KindUnclassified is any failure the core does not recognize.
	KindUnclassified Kind = iota
	// KindAccountNotFound means the business key resolved to no account.
	KindAccountNotFound
	// KindInvalidAmount means a non-positive monetary amount.
	KindInvalidAmount
	// KindInsufficientBalance means a withdraw or transfer exceeds the balance.
	KindInsufficientBalance
	// KindInvalidOperation means the request is malformed at the business
	// level, e.g. a self-transfer or a blank holder name.
	KindInvalidOperation
	// KindConflict means an optimistic version check failed, or the
	// retry budget around it was exhausted.
	KindConflict
	// KindDuplicateKey means a store-level uniqueness violation.
	KindDuplicateKey
	// KindGenerationExhausted means account-number generation gave up
	// after repeated collisions.
	KindGenerationExhausted
)

func (k Kind) String() string {
	switch k {
	case KindAccountNotFound:
		return "account_not_found"
	case KindInvalidAmount:
		return "invalid_amount"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindInvalidOperation:
		return "invalid_operation"
	case KindConflict:
		return "concurrency_conflict"
	case KindDuplicateKey:
		return "duplicate_key"
	case KindGenerationExhausted:
		return "generation_exhausted"
	default:
		return "internal_error"
	}
}

// Error is the typed error returned by the ledger core and its stores.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from err, or KindUnclassified when err is not
// a ledger error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnclassified
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

func errInvalidAmount() error {
	return &Error{Kind: KindInvalidAmount, Msg: "amount must be positive"}
}

func errInsufficientBalance(accountNumber string) error {
	return &Error{Kind: KindInsufficientBalance, Msg: "insufficient balance in account " + accountNumber}
}

func errInvalidOperation(msg string) error {
	return &Error{Kind: KindInvalidOperation, Msg: msg}
}

// NewConflict wraps a store-level stale-version failure so the core's
// retry loop can recognize it with errors.As.
func NewConflict(accountNumber string, err error) error {
	return &Error{Kind: KindConflict, Msg: "stale version for account " + accountNumber, Err: err}
}

// NewDuplicateKey wraps a store-level uniqueness violation.
func NewDuplicateKey(key string, err error) error {
	return &Error{Kind: KindDuplicateKey, Msg: "duplicate key: " + key, Err: err}
}

// NewNotFound builds the absent-record error for a business key. Store
// implementations return it from Find.
func NewNotFound(accountNumber string) error {
	return &Error{Kind: KindAccountNotFound, Msg: "account not found: " + accountNumber}
}
