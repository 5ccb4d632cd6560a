package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/docstore"
	"fintrack/internal/ledger"
	"fintrack/internal/view"
)

const maxBodyBytes = 1 << 20

type (
	transactionRequest struct {
		Description string `json:"description"`
		Amount      string `json:"amount"`
		Date        string `json:"date"`
		Category    string `json:"category"`
		AccountID   string `json:"accountId"`
		Paid        bool   `json:"isPaid"`
	}

	transferRequest struct {
		Description   string `json:"description"`
		Amount        string `json:"amount"`
		Date          string `json:"date"`
		FromAccountID string `json:"fromAccountId"`
		ToAccountID   string `json:"toAccountId"`
	}

	nameRequest struct {
		Name string `json:"name"`
		Icon string `json:"icon"`
	}

	templateRequest struct {
		Description string `json:"description"`
		Amount      string `json:"amount"`
		Category    string `json:"category"`
		AccountID   string `json:"accountId"`
	}

	paidRequest struct {
		Paid bool `json:"paid"`
	}

	installmentsRequest struct {
		Count int `json:"count"`
	}

	bulkDeleteRequest struct {
		TransactionIDs []string `json:"transactionIds"`
		TransferIDs    []string `json:"transferIds"`
	}

	bulkPaidRequest struct {
		IDs  []string `json:"ids"`
		Paid bool     `json:"paid"`
	}

	idResponse struct {
		ID string `json:"id"`
	}
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// writeError translates domain errors into HTTP status codes:
// validation failures are 422, missing records 404, records still
// referenced elsewhere 409, everything else 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, docstore.ErrNotFound),
		errors.Is(err, ledger.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrAccountInUse),
		errors.Is(err, ledger.ErrCategoryInUse):
		status = http.StatusConflict
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidKind),
		errors.Is(err, core.ErrZeroDate),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrMissingAccount),
		errors.Is(err, core.ErrSameAccount),
		errors.Is(err, ledger.ErrNotExpense),
		errors.Is(err, ledger.ErrInstallmentCount):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "method", r.Method, "url", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func pathKind(r *http.Request) (core.Kind, bool) {
	kind := core.Kind(r.PathValue("kind"))
	return kind, kind.Valid()
}

func categoryCollection(kind core.Kind) docstore.Collection {
	if kind == core.KindIncome {
		return docstore.IncomeCategories
	}
	return docstore.ExpenseCategories
}

func templateCollection(kind core.Kind) docstore.Collection {
	if kind == core.KindIncome {
		return docstore.IncomeTemplates
	}
	return docstore.ExpenseTemplates
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(s))
}

// parseListFilter builds the unified list filter from query
// parameters, defaulting to the current month.
func parseListFilter(r *http.Request) view.Filter {
	now := time.Now()
	f := view.Filter{
		Year:  now.Year(),
		Month: now.Month(),
	}

	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			f.Year = y
		}
	}
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m >= 1 && m <= 12 {
			f.Month = time.Month(m)
		}
	}
	f.Annual = q.Get("view") == "annual"
	f.AccountID = strings.TrimSpace(q.Get("account"))
	f.Search = strings.TrimSpace(q.Get("q"))
	return f
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f := parseListFilter(r)
	items := view.Unified(s.tracker.Expenses(), s.tracker.Incomes(), s.tracker.Transfers(), s.tracker.Accounts(), f)
	if items == nil {
		items = []view.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	f := parseListFilter(r)
	totals := view.MonthTotals(s.tracker.Expenses(), s.tracker.Incomes(), f)
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handleAnnualSummary(w http.ResponseWriter, r *http.Request) {
	f := parseListFilter(r)

	key := strconv.Itoa(f.Year)
	if cached, ok := s.summaryCache.Get(key); ok {
		writeJSON(w, http.StatusOK, map[string]any{"year": f.Year, "months": cached})
		return
	}

	months := view.AnnualSummary(s.tracker.Expenses(), s.tracker.Incomes(), f.Year)
	s.summaryCache.Set(key, months)
	writeJSON(w, http.StatusOK, map[string]any{"year": f.Year, "months": months})
}

func (s *Server) handleReminders(w http.ResponseWriter, r *http.Request) {
	due := view.Reminders(s.tracker.Expenses(), time.Now())
	items := make([]view.Item, 0, len(due))
	for _, tx := range due {
		items = append(items, view.Item{
			ID:          tx.ID,
			Kind:        view.ItemExpense,
			Description: tx.Description,
			Amount:      tx.Amount,
			Date:        tx.Date,
			Category:    tx.Category,
			AccountID:   tx.AccountID,
			Paid:        tx.Paid,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func buildTransaction(kind core.Kind, req transactionRequest) (core.Transaction, error) {
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date: %w", core.ErrZeroDate)
	}
	return core.Transaction{
		Kind:        kind,
		Description: strings.TrimSpace(req.Description),
		Amount:      amount,
		Date:        date,
		Category:    strings.TrimSpace(req.Category),
		AccountID:   strings.TrimSpace(req.AccountID),
		Paid:        req.Paid,
	}, nil
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		badRequest(w, "unknown transaction kind")
		return
	}

	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	tx, err := buildTransaction(kind, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, err := s.ledger.CreateTransaction(r.Context(), tx, s.tracker.Accounts())
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.summaryCache.Clear()
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		badRequest(w, "unknown transaction kind")
		return
	}

	prev, found := s.tracker.TransactionByID(r.PathValue("id"))
	if !found || prev.Kind != kind {
		writeError(w, r, docstore.ErrNotFound)
		return
	}

	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	next, err := buildTransaction(kind, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.ledger.UpdateTransaction(r.Context(), prev, next, s.tracker.Accounts()); err != nil {
		writeError(w, r, err)
		return
	}

	s.summaryCache.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		badRequest(w, "unknown transaction kind")
		return
	}

	tx, found := s.tracker.TransactionByID(r.PathValue("id"))
	if !found || tx.Kind != kind {
		writeError(w, r, docstore.ErrNotFound)
		return
	}

	if err := s.ledger.DeleteTransaction(r.Context(), tx, s.tracker.Accounts()); err != nil {
		writeError(w, r, err)
		return
	}

	s.summaryCache.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, r, fmt.Errorf("parse date: %w", core.ErrZeroDate))
		return
	}

	tr := core.Transfer{
		Description:   strings.TrimSpace(req.Description),
		Amount:        amount,
		Date:          date,
		FromAccountID: strings.TrimSpace(req.FromAccountID),
		ToAccountID:   strings.TrimSpace(req.ToAccountID),
	}

	id, err := s.ledger.CreateTransfer(r.Context(), tr, s.tracker.Accounts())
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.summaryCache.Clear()
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handleDeleteTransfer(w http.ResponseWriter, r *http.Request) {
	tr, found := s.tracker.TransferByID(r.PathValue("id"))
	if !found {
		writeError(w, r, docstore.ErrNotFound)
		return
	}

	if err := s.ledger.DeleteTransfer(r.Context(), tr, s.tracker.Accounts()); err != nil {
		writeError(w, r, err)
		return
	}

	s.summaryCache.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetExpensePaid(w http.ResponseWriter, r *http.Request) {
	tx, found := s.tracker.TransactionByID(r.PathValue("id"))
	if !found || tx.Kind != core.KindExpense {
		writeError(w, r, docstore.ErrNotFound)
		return
	}

	var req paidRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := s.ledger.SetExpensePaid(r.Context(), tx.ID, req.Paid); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExpandInstallments(w http.ResponseWriter, r *http.Request) {
	tx, found := s.tracker.TransactionByID(r.PathValue("id"))
	if !found {
		writeError(w, r, docstore.ErrNotFound)
		return
	}

	var req installmentsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := s.ledger.ExpandInstallments(r.Context(), tx, req.Count); err != nil {
		writeError(w, r, err)
		return
	}

	s.summaryCache.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	// Unknown ids are skipped rather than failing the whole batch; the
	// client's selection can be stale against a concurrent delete.
	var txs []core.Transaction
	for _, id := range req.TransactionIDs {
		if tx, found := s.tracker.TransactionByID(id); found {
			txs = append(txs, tx)
		}
	}
	var transfers []core.Transfer
	for _, id := range req.TransferIDs {
		if tr, found := s.tracker.TransferByID(id); found {
			transfers = append(transfers, tr)
		}
	}

	if len(txs) == 0 && len(transfers) == 0 {
		writeJSON(w, http.StatusOK, map[string]int{"deleted": 0})
		return
	}

	if err := s.ledger.BulkDelete(r.Context(), txs, transfers, s.tracker.Accounts()); err != nil {
		writeError(w, r, err)
		return
	}

	s.summaryCache.Clear()
	writeJSON(w, http.StatusOK, map[string]int{"deleted": len(txs) + len(transfers)})
}

func (s *Server) handleBulkSetPaid(w http.ResponseWriter, r *http.Request) {
	var req bulkPaidRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	updated, err := s.ledger.BulkSetPaid(r.Context(), req.IDs, req.Paid, s.tracker.Expenses())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := s.tracker.Accounts()
	out := make([]map[string]any, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, map[string]any{
			"id":      a.ID,
			"name":    a.Name,
			"balance": a.Balance,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (s *Server) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	id, err := s.ledger.AddAccount(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handleRenameAccount(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := s.ledger.RenameAccount(r.Context(), r.PathValue("id"), req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	err := s.ledger.DeleteAccount(r.Context(), r.PathValue("id"),
		s.tracker.Expenses(), s.tracker.Incomes(), s.tracker.Transfers())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		badRequest(w, "unknown category kind")
		return
	}

	cats := s.tracker.ExpenseCategories()
	if kind == core.KindIncome {
		cats = s.tracker.IncomeCategories()
	}
	out := make([]map[string]any, 0, len(cats))
	for _, c := range cats {
		out = append(out, map[string]any{
			"id":   c.ID,
			"name": c.Name,
			"icon": c.Icon,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		badRequest(w, "unknown category kind")
		return
	}

	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	id, err := s.ledger.AddCategory(r.Context(), categoryCollection(kind), core.Category{
		Name: strings.TrimSpace(req.Name),
		Icon: strings.TrimSpace(req.Icon),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		badRequest(w, "unknown category kind")
		return
	}

	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	err := s.ledger.UpdateCategory(r.Context(), categoryCollection(kind), r.PathValue("id"), core.Category{
		Name: strings.TrimSpace(req.Name),
		Icon: strings.TrimSpace(req.Icon),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		badRequest(w, "unknown category kind")
		return
	}

	col := categoryCollection(kind)
	cat, found := s.tracker.CategoryByID(col, r.PathValue("id"))
	if !found {
		writeError(w, r, docstore.ErrNotFound)
		return
	}

	txs := s.tracker.Expenses()
	if kind == core.KindIncome {
		txs = s.tracker.Incomes()
	}

	if err := s.ledger.DeleteCategory(r.Context(), col, cat.ID, cat.Name, txs); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		badRequest(w, "unknown template kind")
		return
	}

	templates := s.tracker.ExpenseTemplates()
	if kind == core.KindIncome {
		templates = s.tracker.IncomeTemplates()
	}
	out := make([]map[string]any, 0, len(templates))
	for _, t := range templates {
		out = append(out, map[string]any{
			"id":          t.ID,
			"description": t.Description,
			"amount":      t.Amount,
			"category":    t.Category,
			"accountId":   t.AccountID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (s *Server) handleAddTemplate(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		badRequest(w, "unknown template kind")
		return
	}

	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, err := s.ledger.AddTemplate(r.Context(), templateCollection(kind), core.Template{
		Description: strings.TrimSpace(req.Description),
		Amount:      amount,
		Category:    strings.TrimSpace(req.Category),
		AccountID:   strings.TrimSpace(req.AccountID),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		badRequest(w, "unknown template kind")
		return
	}

	if err := s.ledger.DeleteTemplate(r.Context(), templateCollection(kind), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
