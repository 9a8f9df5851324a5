package handler

import (
	"net/http"

	"github.com/finmate/finance-tracker-go/internal/domain"
	"github.com/finmate/finance-tracker-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Finance document
// POST /v1/finance
// GET  /v1/finance
// PUT  /v1/finance/income
// ============================================================

func createFinanceHandler(svc *service.FinanceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/finance")
		defer span.End()

		u, err := svc.CreateFinance(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

func getFinanceHandler(svc *service.FinanceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/finance")
		defer span.End()

		view, err := svc.GetFinance(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func setIncomeHandler(svc *service.FinanceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/finance/income")
		defer span.End()

		var req domain.IncomeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		u, err := svc.SetIncome(ctx, UserIDFromContext(ctx), req.MonthlyIncome)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

// ============================================================
// Expenses
// POST   /v1/finance/expenses/{kind}
// PATCH  /v1/finance/expenses/{kind}/{expenseId}
// DELETE /v1/finance/expenses/{kind}/{expenseId}
// ============================================================

func addExpenseHandler(svc *service.FinanceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/finance/expenses/{kind}")
		defer span.End()

		kind := domain.ExpenseKind(chi.URLParam(r, "kind"))
		span.SetAttributes(attribute.String("expense.kind", string(kind)))

		var req domain.ExpenseInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		e, err := svc.AddExpense(ctx, UserIDFromContext(ctx), kind, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

func updateExpenseHandler(svc *service.FinanceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/finance/expenses/{kind}/{expenseId}")
		defer span.End()

		kind := domain.ExpenseKind(chi.URLParam(r, "kind"))
		expenseID := chi.URLParam(r, "expenseId")
		span.SetAttributes(attribute.String("expense.id", expenseID))

		var patch domain.ExpensePatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		e, err := svc.UpdateExpense(ctx, UserIDFromContext(ctx), kind, expenseID, &patch)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func deleteExpenseHandler(svc *service.FinanceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/finance/expenses/{kind}/{expenseId}")
		defer span.End()

		kind := domain.ExpenseKind(chi.URLParam(r, "kind"))
		expenseID := chi.URLParam(r, "expenseId")

		if err := svc.DeleteExpense(ctx, UserIDFromContext(ctx), kind, expenseID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "expense deleted", ID: expenseID})
	}
}

// ============================================================
// Budget limits
// PUT    /v1/finance/budget-limits/{category}
// DELETE /v1/finance/budget-limits/{category}
// ============================================================

func setBudgetLimitHandler(svc *service.FinanceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/finance/budget-limits/{category}")
		defer span.End()

		var req domain.BudgetLimitRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		u, err := svc.SetBudgetLimit(ctx, UserIDFromContext(ctx), chi.URLParam(r, "category"), req.Limit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, u.BudgetLimits)
	}
}

func deleteBudgetLimitHandler(svc *service.FinanceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/finance/budget-limits/{category}")
		defer span.End()

		category := chi.URLParam(r, "category")
		if err := svc.DeleteBudgetLimit(ctx, UserIDFromContext(ctx), category); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "budget limit removed", ID: category})
	}
}
