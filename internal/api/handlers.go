package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/example/bank-ledger/internal/security"
)

type createAccountRequest struct {
	HolderName string `json:"holder_name"`
}

type transferRequest struct {
	FromAccount string  `json:"from_account"`
	ToAccount   string  `json:"to_account"`
	Amount      float64 `json:"amount"`
}

func handleCreateAccount(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid JSON")
			return
		}

		acc, err := deps.Ledger.CreateAccount(r.Context(), req.HolderName)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusCreated, "Account created", acc)
	}
}

func handleGetAccount(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accNum := chi.URLParam(r, "accountNumber")

		acc, err := deps.Ledger.GetAccount(r.Context(), accNum)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, "Success", acc)
	}
}

func handleDeposit(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accNum := chi.URLParam(r, "accountNumber")
		amount, ok := amountParam(w, r)
		if !ok {
			return
		}

		txn, err := deps.Ledger.Deposit(r.Context(), accNum, amount)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, "Deposit successful", txn)
	}
}

func handleWithdraw(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accNum := chi.URLParam(r, "accountNumber")
		amount, ok := amountParam(w, r)
		if !ok {
			return
		}

		txn, err := deps.Ledger.Withdraw(r.Context(), accNum, amount)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, "Withdrawal successful", txn)
	}
}

func handleTransfer(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid JSON")
			return
		}

		txn, err := deps.Ledger.Transfer(r.Context(), req.FromAccount, req.ToAccount, req.Amount)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, "Transfer successful", txn)
	}
}

func handleListTransactions(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accNum := chi.URLParam(r, "accountNumber")

		txns, err := deps.Ledger.GetTransactions(r.Context(), accNum)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, "Transactions fetched", txns)
	}
}

func handleAuditLog(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Auditor == nil {
			security.WriteJSONError(w, r, http.StatusServiceUnavailable, "audit log unavailable")
			return
		}
		writeJSON(w, r, http.StatusOK, "Audit log fetched", deps.Auditor.Entries())
	}
}

// amountParam parses the amount query parameter. The core validates the
// range; only unparseable input is rejected here.
func amountParam(w http.ResponseWriter, r *http.Request) (float64, bool) {
	raw := r.URL.Query().Get("amount")
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		security.WriteJSONError(w, r, http.StatusBadRequest, "invalid amount")
		return 0, false
	}
	return amount, true
}
