/*
handlers.go - HTTP API handlers for the customer current-account ledger

PURPOSE:
  Exposes account.Service via REST. Handles HTTP request/response and JSON
  serialization; every rule lives in the account package.

ENDPOINTS:
  Customers:
    GET    /api/customers                   List or search (?q=)
    POST   /api/customers                   Create
    GET    /api/customers/{id}              Details
    PATCH  /api/customers/{id}              Partial update
    DELETE /api/customers/{id}              Delete (only without debt)
    GET    /api/customers/{id}/statement    Replayed statement
    GET    /api/customers/{id}/debt         Total debt
    POST   /api/customers/{id}/payments     Direct payment on account
    POST   /api/customers/{id}/reconcile    Repair the stored balance

  Invoices:
    GET    /api/invoices                    ?customer_id=&status=&days=
    POST   /api/invoices                    Issue
    GET    /api/invoices/{id}
    POST   /api/invoices/{id}/payments      Pay an invoice

  Sales:
    POST   /api/sales/{id}/charge           Charge a sale to an account
    POST   /api/sales/{id}/reversal         Reverse the charge

  Movements:
    GET    /api/movements                   ?customer_id= or ?source_id=

  Admin:
    POST   /api/reconciliation/run          Reconcile every customer now
    GET    /api/reconciliation/runs         Recent reconciliation runs
    GET    /api/scenarios                   List demo scenarios
    POST   /api/scenarios/load              Load a demo scenario

ACTING USER:
  Taken from the X-User-ID header and stamped on the movements written.

ERROR HANDLING:
  - 400: Validation errors, malformed input
  - 404: Resource not found
  - 409: Operation not allowed in the current state
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - scheduler.go: Periodic reconciliation
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/retail-ledger/account"
)

const userHeader = "X-User-ID"

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service    *account.Service
	Reconciler *ReconciliationScheduler
	log        zerolog.Logger
}

func NewHandler(svc *account.Service, log zerolog.Logger) *Handler {
	return &Handler{
		Service:    svc,
		Reconciler: NewReconciliationScheduler(svc, log),
		log:        log,
	}
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

// ListCustomers returns every customer, or those matching ?q=.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Service.Customers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeServiceError(w, r, "Failed to list customers", err)
		return
	}

	dtos := make([]CustomerDTO, len(customers))
	for i := range customers {
		dtos[i] = toCustomerDTO(&customers[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if !decode(w, r, &req) {
		return
	}

	c, err := h.Service.CreateCustomer(r.Context(), account.CustomerInput{
		ID:                account.CustomerID(req.ID),
		Name:              req.Name,
		LegalName:         req.LegalName,
		NationalID:        req.NationalID,
		Email:             req.Email,
		Phone:             req.Phone,
		Address:           req.Address,
		HasCurrentAccount: req.HasCurrentAccount,
	})
	if err != nil {
		h.writeServiceError(w, r, "Failed to create customer", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerDTO(c))
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.Customer(r.Context(), customerID(r))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get customer", err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(c))
}

func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req UpdateCustomerRequest
	if !decode(w, r, &req) {
		return
	}

	c, err := h.Service.UpdateCustomer(r.Context(), customerID(r), account.CustomerPatch{
		Name:              req.Name,
		LegalName:         req.LegalName,
		NationalID:        req.NationalID,
		Email:             req.Email,
		Phone:             req.Phone,
		Address:           req.Address,
		HasCurrentAccount: req.HasCurrentAccount,
	})
	if err != nil {
		h.writeServiceError(w, r, "Failed to update customer", err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(c))
}

func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteCustomer(r.Context(), customerID(r)); err != nil {
		h.writeServiceError(w, r, "Failed to delete customer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStatement returns the replayed statement.
// GET /api/customers/{id}/statement
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	st, err := h.Service.Statement(r.Context(), customerID(r))
	if err != nil {
		h.writeServiceError(w, r, "Failed to build statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(st))
}

func (h *Handler) GetDebt(w http.ResponseWriter, r *http.Request) {
	id := customerID(r)
	total, err := h.Service.TotalDebt(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "Failed to compute debt", err)
		return
	}
	writeJSON(w, http.StatusOK, DebtDTO{CustomerID: string(id), TotalDebt: total})
}

// PayDirect records a payment on account, not tied to an invoice.
// POST /api/customers/{id}/payments
func (h *Handler) PayDirect(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decode(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD or RFC3339)", err)
		return
	}

	in := account.PayDirectInput{
		CustomerID:  customerID(r),
		Amount:      req.Amount,
		Date:        date,
		Description: req.Description,
		Notes:       req.Notes,
		UserID:      r.Header.Get(userHeader),
	}
	if req.SourceID != "" {
		in.Source = &account.SourceDocument{ID: req.SourceID, Number: req.SourceNumber}
	}

	res, err := h.Service.PayDirect(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toPaymentResponse(res))
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	drift, err := h.Service.Reconcile(r.Context(), customerID(r))
	if err != nil {
		h.writeServiceError(w, r, "Failed to reconcile customer", err)
		return
	}
	writeJSON(w, http.StatusOK, toDriftDTO(*drift))
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// ListInvoices filters by customer and status.
// GET /api/invoices?customer_id=&status=pending|overdue|due_soon&days=
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := account.InvoiceFilter{
		CustomerID: account.CustomerID(q.Get("customer_id")),
		Status:     account.InvoiceStatus(q.Get("status")),
	}
	if days := q.Get("days"); days != "" {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid days (use a positive integer)", err)
			return
		}
		f.Days = n
	}

	invoices, err := h.Service.Invoices(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, r, "Failed to list invoices", err)
		return
	}

	now := h.Service.Clock().Now()
	dtos := make([]InvoiceDTO, len(invoices))
	for i := range invoices {
		dtos[i] = toInvoiceDTO(&invoices[i], now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) IssueInvoice(w http.ResponseWriter, r *http.Request) {
	var req IssueInvoiceRequest
	if !decode(w, r, &req) {
		return
	}
	issue, err := parseDate(req.IssueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid issue_date (use YYYY-MM-DD or RFC3339)", err)
		return
	}
	due, err := parseDate(req.DueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid due_date (use YYYY-MM-DD or RFC3339)", err)
		return
	}

	res, err := h.Service.IssueInvoice(r.Context(), account.IssueInvoiceInput{
		CustomerID:  account.CustomerID(req.CustomerID),
		Number:      req.Number,
		IssueDate:   issue,
		DueDate:     due,
		Total:       req.Total,
		Description: req.Description,
		Notes:       req.Notes,
		SaleID:      req.SaleID,
		UserID:      r.Header.Get(userHeader),
	})
	if err != nil {
		h.writeServiceError(w, r, "Failed to issue invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, IssueInvoiceResponse{
		Invoice:  toInvoiceDTO(res.Invoice, h.Service.Clock().Now()),
		Movement: toMovementDTO(res.Movement),
	})
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Service.Invoice(r.Context(), account.InvoiceID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv, h.Service.Clock().Now()))
}

// PayInvoice applies a payment to one invoice.
// POST /api/invoices/{id}/payments
func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decode(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD or RFC3339)", err)
		return
	}

	res, err := h.Service.PayInvoice(r.Context(), account.PayInvoiceInput{
		InvoiceID: account.InvoiceID(chi.URLParam(r, "id")),
		Amount:    req.Amount,
		Date:      date,
		Notes:     req.Notes,
		UserID:    r.Header.Get(userHeader),
	})
	if err != nil {
		h.writeServiceError(w, r, "Failed to pay invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toPaymentResponse(res))
}

// =============================================================================
// SALE HANDLERS
// =============================================================================

// ChargeSale charges a point-of-sale ticket to the customer's account.
// POST /api/sales/{id}/charge
func (h *Handler) ChargeSale(w http.ResponseWriter, r *http.Request) {
	sale, req, ok := decodeSale(w, r)
	if !ok {
		return
	}

	m, err := h.Service.ChargeSale(r.Context(), sale, req.NationalID, r.Header.Get(userHeader))
	if err != nil {
		h.writeServiceError(w, r, "Failed to charge sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(m))
}

// ReverseSale undoes a sale charge. Reversing twice returns the same
// movement; a sale that was never charged yields 204.
// POST /api/sales/{id}/reversal
func (h *Handler) ReverseSale(w http.ResponseWriter, r *http.Request) {
	sale, _, ok := decodeSale(w, r)
	if !ok {
		return
	}

	m, err := h.Service.ReverseSale(r.Context(), sale, r.Header.Get(userHeader))
	if err != nil {
		h.writeServiceError(w, r, "Failed to reverse sale", err)
		return
	}
	if m == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTO(m))
}

func decodeSale(w http.ResponseWriter, r *http.Request) (account.SaleRef, SaleRequest, bool) {
	var req SaleRequest
	if !decode(w, r, &req) {
		return account.SaleRef{}, req, false
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD or RFC3339)", err)
		return account.SaleRef{}, req, false
	}
	return account.NewSaleRef(chi.URLParam(r, "id"), req.Number, date, req.Total), req, true
}

// =============================================================================
// MOVEMENT HANDLERS
// =============================================================================

// ListMovements returns movements in insertion order.
// GET /api/movements?customer_id= | ?source_id=
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ms, err := h.Service.Movements(r.Context(), account.MovementFilter{
		CustomerID: account.CustomerID(q.Get("customer_id")),
		SourceID:   q.Get("source_id"),
	})
	if err != nil {
		h.writeServiceError(w, r, "Failed to list movements", err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTOs(ms))
}

// =============================================================================
// HELPERS
// =============================================================================

func customerID(r *http.Request) account.CustomerID {
	return account.CustomerID(chi.URLParam(r, "id"))
}

func (h *Handler) toPaymentResponse(res *account.PaymentResult) PaymentResponse {
	resp := PaymentResponse{Movement: toMovementDTO(res.Movement)}
	if res.Invoice != nil {
		inv := toInvoiceDTO(res.Invoice, h.Service.Clock().Now())
		resp.Invoice = &inv
	}
	if res.Customer != nil {
		c := toCustomerDTO(res.Customer)
		resp.Customer = &c
	}
	return resp
}

// decode reads a JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps account errors to HTTP statuses. Internal errors
// are logged and their details withheld from the client.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case account.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case account.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	case account.IsInvalidOperation(err), errors.Is(err, account.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg(message)
		writeError(w, http.StatusInternalServerError, message, errors.New("internal error"))
	}
}
