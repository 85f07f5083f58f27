package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/bank-ledger/internal/ledger"
	"github.com/example/bank-ledger/internal/security"
	"github.com/example/bank-ledger/pkg/audit"
)

// Auditor records mutating operations in a tamper-evident trail.
type Auditor interface {
	Append(payload string) *audit.LogEntry
	Entries() []*audit.LogEntry
}

// Dependencies carries everything the router needs. Ledger is an
// interface so tests can swap in a fake core.
type Dependencies struct {
	Logger *slog.Logger

	Ledger interface {
		CreateAccount(ctx context.Context, holderName string) (*ledger.Account, error)
		GetAccount(ctx context.Context, accountNumber string) (*ledger.Account, error)
		Deposit(ctx context.Context, accountNumber string, amount float64) (*ledger.Transaction, error)
		Withdraw(ctx context.Context, accountNumber string, amount float64) (*ledger.Transaction, error)
		Transfer(ctx context.Context, fromAccount, toAccount string, amount float64) (*ledger.Transaction, error)
		GetTransactions(ctx context.Context, accountNumber string) ([]*ledger.Transaction, error)
	}

	Auditor      Auditor
	RateLimiter  *security.RedisTokenBucket
	MaxBodyBytes int64
}

// NewRouter builds the HTTP surface over the ledger core.
func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	createAccountV, err := security.NewJSONSchemaValidator(createAccountSchema)
	if err != nil {
		return nil, err
	}
	transferV, err := security.NewJSONSchemaValidator(transferSchema)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.CorrelationID)
	r.Use(RequestLogger(deps.Logger))
	r.Use(security.BodySizeLimit(deps.MaxBodyBytes))
	if deps.RateLimiter != nil {
		r.Use(security.RateLimitMiddleware(deps.RateLimiter, rateLimitKeyByIP))
	}
	if deps.Auditor != nil {
		r.Use(AuditMiddleware(deps.Auditor))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.With(createAccountV.Middleware).Post("/", handleCreateAccount(deps))
			r.With(transferV.Middleware).Post("/transfer", handleTransfer(deps))

			r.Route("/{accountNumber}", func(r chi.Router) {
				r.Get("/", handleGetAccount(deps))
				r.Put("/deposit", handleDeposit(deps))
				r.Put("/withdraw", handleWithdraw(deps))
				r.Get("/transactions", handleListTransactions(deps))
			})
		})

		r.Get("/audit/log", handleAuditLog(deps))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r, nil
}

func rateLimitKeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return "ip:" + host
}
