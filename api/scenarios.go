/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the ledger with realistic
	accounts for demos and manual testing. Every scenario goes through
	account.Service, so the data is exactly what the workflows produce.

AVAILABLE SCENARIOS:

	walk-in:          Customer without a current account
	partial-payments: Invoice of 1000 paid 400 then 600, plus an open one
	pos-sale:         Point-of-sale charge of 250 and its reversal
	overdue:          Portfolio with overdue, due-soon and future invoices
	direct-payment:   Payment on account against two open invoices

HOW SCENARIOS WORK:
 1. Create the customer (the national id marks the scenario as loaded)
 2. Issue invoices / charge sales with dates relative to the service clock
 3. Register payments and reversals

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "pos-sale"}

NOTE:

	Scenarios do not reset anything. Loading one twice is rejected because
	its customer's national id is already taken.

SEE ALSO:
  - handlers.go: Route list
  - cmd/server/seed.go: Loading scenarios from the CLI
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/retail-ledger/account"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, svc *account.Service) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "walk-in",
			Name:        "Walk-in Buyer",
			Description: "Customer without a current account; invoices are rejected",
		},
		load: loadWalkInScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "partial-payments",
			Name:        "Partial Payments",
			Description: "Invoice of 1000 paid in two installments, plus one still open",
		},
		load: loadPartialPaymentsScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "pos-sale",
			Name:        "Point-of-Sale Charge",
			Description: "Sale of 250 charged to the account and then reversed",
		},
		load: loadPOSSaleScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "overdue",
			Name:        "Overdue Portfolio",
			Description: "Overdue, due-soon and future invoices on one account",
		},
		load: loadOverdueScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "direct-payment",
			Name:        "Payment on Account",
			Description: "Direct payment reducing the debt without touching invoices",
		},
		load: loadDirectPaymentScenario,
	},
}

// Scenarios lists the available scenarios.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	return out
}

// LoadScenario loads the named scenario through svc.
func LoadScenario(ctx context.Context, svc *account.Service, id string) error {
	for _, s := range scenarios {
		if s.ID == id {
			return s.load(ctx, svc)
		}
	}
	return &account.NotFoundError{Resource: "scenario", ID: id}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	if err := LoadScenario(r.Context(), h.Service, req.ScenarioID); err != nil {
		h.writeServiceError(w, r, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// LOADERS
// =============================================================================

func loadWalkInScenario(ctx context.Context, svc *account.Service) error {
	_, err := svc.CreateCustomer(ctx, account.CustomerInput{
		Name:       "Walk-in Buyer",
		NationalID: "DEMO-WALKIN",
	})
	return err
}

func loadPartialPaymentsScenario(ctx context.Context, svc *account.Service) error {
	now := svc.Clock().Now()
	c, err := svc.CreateCustomer(ctx, account.CustomerInput{
		Name:              "Ferretería El Tornillo",
		LegalName:         "El Tornillo S.R.L.",
		NationalID:        "DEMO-PARTIAL",
		Email:             "compras@eltornillo.example",
		HasCurrentAccount: true,
	})
	if err != nil {
		return err
	}

	paid, err := issue(ctx, svc, c.ID, "A-0001", now.AddDate(0, 0, -5), 10, "1000")
	if err != nil {
		return err
	}
	for _, amount := range []string{"400", "600"} {
		if _, err := svc.PayInvoice(ctx, account.PayInvoiceInput{
			InvoiceID: paid.ID,
			Amount:    decimal.RequireFromString(amount),
		}); err != nil {
			return err
		}
	}

	open, err := issue(ctx, svc, c.ID, "A-0002", now, 30, "750.50")
	if err != nil {
		return err
	}
	_, err = svc.PayInvoice(ctx, account.PayInvoiceInput{
		InvoiceID: open.ID,
		Amount:    decimal.RequireFromString("250.50"),
	})
	return err
}

func loadPOSSaleScenario(ctx context.Context, svc *account.Service) error {
	now := svc.Clock().Now()
	const nationalID = "DEMO-POS"
	if _, err := svc.CreateCustomer(ctx, account.CustomerInput{
		Name:              "Kiosco La Esquina",
		NationalID:        nationalID,
		HasCurrentAccount: true,
	}); err != nil {
		return err
	}

	kept := account.NewSaleRef("demo-sale-0001", "T-0001", now.Add(-2*time.Hour), decimal.NewFromInt(120))
	if _, err := svc.ChargeSale(ctx, kept, nationalID, "demo"); err != nil {
		return err
	}
	reversed := account.NewSaleRef("demo-sale-0002", "T-0002", now.Add(-time.Hour), decimal.NewFromInt(250))
	if _, err := svc.ChargeSale(ctx, reversed, nationalID, "demo"); err != nil {
		return err
	}
	_, err := svc.ReverseSale(ctx, reversed, "demo")
	return err
}

func loadOverdueScenario(ctx context.Context, svc *account.Service) error {
	now := svc.Clock().Now()
	c, err := svc.CreateCustomer(ctx, account.CustomerInput{
		Name:              "Distribuidora Norte",
		NationalID:        "DEMO-OVERDUE",
		HasCurrentAccount: true,
	})
	if err != nil {
		return err
	}

	// issued 40 days ago, due 10 days ago
	if _, err := issue(ctx, svc, c.ID, "B-0001", now.AddDate(0, 0, -40), 30, "1800"); err != nil {
		return err
	}
	// due in 3 days
	if _, err := issue(ctx, svc, c.ID, "B-0002", now.AddDate(0, 0, -27), 30, "640"); err != nil {
		return err
	}
	_, err = issue(ctx, svc, c.ID, "B-0003", now, 30, "2200")
	return err
}

func loadDirectPaymentScenario(ctx context.Context, svc *account.Service) error {
	now := svc.Clock().Now()
	c, err := svc.CreateCustomer(ctx, account.CustomerInput{
		Name:              "Almacén Don Pedro",
		NationalID:        "DEMO-DIRECT",
		HasCurrentAccount: true,
	})
	if err != nil {
		return err
	}
	if _, err := issue(ctx, svc, c.ID, "C-0001", now.AddDate(0, 0, -15), 30, "300"); err != nil {
		return err
	}
	if _, err := issue(ctx, svc, c.ID, "C-0002", now.AddDate(0, 0, -3), 30, "450"); err != nil {
		return err
	}
	_, err = svc.PayDirect(ctx, account.PayDirectInput{
		CustomerID:  c.ID,
		Amount:      decimal.NewFromInt(500),
		Description: "Cash payment on account",
		UserID:      "demo",
	})
	return err
}

func issue(ctx context.Context, svc *account.Service, id account.CustomerID, number string, issued time.Time, termDays int, total string) (*account.Invoice, error) {
	res, err := svc.IssueInvoice(ctx, account.IssueInvoiceInput{
		CustomerID: id,
		Number:     number,
		IssueDate:  issued,
		DueDate:    issued.AddDate(0, 0, termDays),
		Total:      decimal.RequireFromString(total),
		UserID:     "demo",
	})
	if err != nil {
		return nil, err
	}
	return res.Invoice, nil
}
