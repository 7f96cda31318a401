/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  account package types.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Wrappers combining several DTOs

MONEY:
  decimal.Decimal marshals as a quoted string ("1234.50") and accepts
  either a string or a JSON number on input. No float64 anywhere.

DATES:
  Requests accept YYYY-MM-DD or RFC3339. Responses use RFC3339 in UTC.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/account"
)

const dateLayout = "2006-01-02"

// =============================================================================
// CUSTOMERS
// =============================================================================

type CustomerDTO struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	LegalName         string          `json:"legal_name,omitempty"`
	NationalID        string          `json:"national_id,omitempty"`
	Email             string          `json:"email,omitempty"`
	Phone             string          `json:"phone,omitempty"`
	Address           string          `json:"address,omitempty"`
	HasCurrentAccount bool            `json:"has_current_account"`
	Balance           decimal.Decimal `json:"balance"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
}

type CreateCustomerRequest struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	LegalName         string `json:"legal_name"`
	NationalID        string `json:"national_id"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	Address           string `json:"address"`
	HasCurrentAccount bool   `json:"has_current_account"`
}

// UpdateCustomerRequest carries only the fields to change.
type UpdateCustomerRequest struct {
	Name              *string `json:"name"`
	LegalName         *string `json:"legal_name"`
	NationalID        *string `json:"national_id"`
	Email             *string `json:"email"`
	Phone             *string `json:"phone"`
	Address           *string `json:"address"`
	HasCurrentAccount *bool   `json:"has_current_account"`
}

type DebtDTO struct {
	CustomerID string          `json:"customer_id"`
	TotalDebt  decimal.Decimal `json:"total_debt"`
}

type DriftDTO struct {
	CustomerID string          `json:"customer_id"`
	Stored     decimal.Decimal `json:"stored"`
	Replayed   decimal.Decimal `json:"replayed"`
	Delta      decimal.Decimal `json:"delta"`
	Repaired   bool            `json:"repaired"`
}

// =============================================================================
// INVOICES
// =============================================================================

type InvoiceDTO struct {
	ID          string          `json:"id"`
	Number      string          `json:"number"`
	CustomerID  string          `json:"customer_id"`
	IssueDate   string          `json:"issue_date"`
	DueDate     string          `json:"due_date"`
	Total       decimal.Decimal `json:"total"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	Remaining   decimal.Decimal `json:"remaining"`
	Paid        bool            `json:"paid"`
	Overdue     bool            `json:"overdue"`
	Description string          `json:"description,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	SaleID      string          `json:"sale_id,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

type IssueInvoiceRequest struct {
	CustomerID  string          `json:"customer_id"`
	Number      string          `json:"number"`
	IssueDate   string          `json:"issue_date"`
	DueDate     string          `json:"due_date"`
	Total       decimal.Decimal `json:"total"`
	Description string          `json:"description"`
	Notes       string          `json:"notes"`
	SaleID      string          `json:"sale_id"`
}

type IssueInvoiceResponse struct {
	Invoice  InvoiceDTO  `json:"invoice"`
	Movement MovementDTO `json:"movement"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentRequest is used for both invoice and direct payments. Description
// and the source fields only apply to direct payments.
type PaymentRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	Date         string          `json:"date"`
	Description  string          `json:"description"`
	Notes        string          `json:"notes"`
	SourceID     string          `json:"source_id"`
	SourceNumber string          `json:"source_number"`
}

type PaymentResponse struct {
	Invoice  *InvoiceDTO  `json:"invoice,omitempty"`
	Customer *CustomerDTO `json:"customer,omitempty"`
	Movement MovementDTO  `json:"movement"`
}

// =============================================================================
// SALES
// =============================================================================

type SaleRequest struct {
	Number     string          `json:"number"`
	Date       string          `json:"date"`
	Total      decimal.Decimal `json:"total"`
	NationalID string          `json:"national_id"` // charge only
}

// =============================================================================
// MOVEMENTS AND STATEMENTS
// =============================================================================

type MovementDTO struct {
	ID              string          `json:"id"`
	CustomerID      string          `json:"customer_id"`
	Kind            string          `json:"kind"`
	Effect          string          `json:"effect"`
	Date            string          `json:"date"`
	Amount          decimal.Decimal `json:"amount"`
	Signed          decimal.Decimal `json:"signed_amount"`
	Description     string          `json:"description"`
	SourceID        string          `json:"source_id,omitempty"`
	SourceNumber    string          `json:"source_number,omitempty"`
	ReversalOf      string          `json:"reversal_of,omitempty"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	CurrentBalance  decimal.Decimal `json:"current_balance"`
	Notes           string          `json:"notes,omitempty"`
	UserID          string          `json:"user_id,omitempty"`
	CreatedAt       string          `json:"created_at"`
}

type StatementLineDTO struct {
	MovementDTO
	StoredPrevious decimal.Decimal `json:"stored_previous_balance"`
	StoredCurrent  decimal.Decimal `json:"stored_current_balance"`
	Corrected      bool            `json:"corrected"`
}

type PendingInvoiceDTO struct {
	InvoiceDTO
	DueSoon bool `json:"due_soon"`
}

type StatementDTO struct {
	Customer      CustomerDTO         `json:"customer"`
	TotalDebt     decimal.Decimal     `json:"total_debt"`
	StoredBalance decimal.Decimal     `json:"stored_balance"`
	AsOf          string              `json:"as_of"`
	Invoices      []PendingInvoiceDTO `json:"pending_invoices"`
	Lines         []StatementLineDTO  `json:"movements"`
}

// =============================================================================
// ADMIN
// =============================================================================

type ReconciliationRunDTO struct {
	StartedAt  string     `json:"started_at"`
	FinishedAt string     `json:"finished_at"`
	Checked    int        `json:"checked"`
	Repaired   []DriftDTO `json:"repaired"`
	Error      string     `json:"error,omitempty"`
}

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is returned for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// parseDate accepts YYYY-MM-DD or RFC3339. Empty input yields the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func toCustomerDTO(c *account.Customer) CustomerDTO {
	return CustomerDTO{
		ID:                string(c.ID),
		Name:              c.Name,
		LegalName:         c.LegalName,
		NationalID:        c.NationalID,
		Email:             c.Email,
		Phone:             c.Phone,
		Address:           c.Address,
		HasCurrentAccount: c.HasCurrentAccount,
		Balance:           c.Balance,
		CreatedAt:         formatTime(c.CreatedAt),
		UpdatedAt:         formatTime(c.UpdatedAt),
	}
}

func toInvoiceDTO(inv *account.Invoice, now time.Time) InvoiceDTO {
	return InvoiceDTO{
		ID:          string(inv.ID),
		Number:      inv.Number,
		CustomerID:  string(inv.CustomerID),
		IssueDate:   formatTime(inv.IssueDate),
		DueDate:     formatTime(inv.DueDate),
		Total:       inv.Total,
		AmountPaid:  inv.AmountPaid,
		Remaining:   inv.RemainingBalance(),
		Paid:        inv.IsPaid(),
		Overdue:     !inv.IsPaid() && inv.IsOverdue(now),
		Description: inv.Description,
		Notes:       inv.Notes,
		SaleID:      inv.SaleID,
		CreatedAt:   formatTime(inv.CreatedAt),
	}
}

func toMovementDTO(m *account.Movement) MovementDTO {
	dto := MovementDTO{
		ID:              string(m.ID),
		CustomerID:      string(m.CustomerID),
		Kind:            string(m.Kind),
		Effect:          m.Effect().String(),
		Date:            formatTime(m.Date),
		Amount:          m.Amount,
		Signed:          m.Signed(),
		Description:     m.Description,
		ReversalOf:      string(m.ReversalOf),
		PreviousBalance: m.PreviousBalance,
		CurrentBalance:  m.CurrentBalance,
		Notes:           m.Notes,
		UserID:          m.UserID,
		CreatedAt:       formatTime(m.CreatedAt),
	}
	if m.Source != nil {
		dto.SourceID = m.Source.ID
		dto.SourceNumber = m.Source.Number
	}
	return dto
}

func toMovementDTOs(ms []account.Movement) []MovementDTO {
	dtos := make([]MovementDTO, len(ms))
	for i := range ms {
		dtos[i] = toMovementDTO(&ms[i])
	}
	return dtos
}

func toStatementDTO(st *account.Statement) StatementDTO {
	dto := StatementDTO{
		Customer:      toCustomerDTO(&st.Customer),
		TotalDebt:     st.TotalDebt,
		StoredBalance: st.StoredBalance,
		AsOf:          formatTime(st.AsOf),
		Invoices:      make([]PendingInvoiceDTO, len(st.Invoices)),
		Lines:         make([]StatementLineDTO, len(st.Lines)),
	}
	for i, p := range st.Invoices {
		inv := toInvoiceDTO(&p.Invoice, st.AsOf)
		inv.Overdue = p.Overdue
		dto.Invoices[i] = PendingInvoiceDTO{InvoiceDTO: inv, DueSoon: p.DueSoon}
	}
	for i, l := range st.Lines {
		dto.Lines[i] = StatementLineDTO{
			MovementDTO:    toMovementDTO(&l.Movement),
			StoredPrevious: l.StoredPrevious,
			StoredCurrent:  l.StoredCurrent,
			Corrected:      l.Corrected,
		}
	}
	return dto
}

func toReconciliationRunDTO(run ReconciliationRun) ReconciliationRunDTO {
	dto := ReconciliationRunDTO{
		StartedAt:  formatTime(run.StartedAt),
		FinishedAt: formatTime(run.FinishedAt),
		Checked:    run.Checked,
		Repaired:   make([]DriftDTO, len(run.Repaired)),
	}
	for i, d := range run.Repaired {
		dto.Repaired[i] = toDriftDTO(d)
	}
	if run.Err != nil {
		dto.Error = run.Err.Error()
	}
	return dto
}

func toDriftDTO(d account.Drift) DriftDTO {
	return DriftDTO{
		CustomerID: string(d.CustomerID),
		Stored:     d.Stored,
		Replayed:   d.Replayed,
		Delta:      d.Delta(),
		Repaired:   d.Repaired,
	}
}
