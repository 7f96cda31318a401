package account_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/retail-ledger/account"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, dec(want).String(), got.String(), msgAndArgs...)
}

var day0 = account.Date(2025, time.March, 1)

// =============================================================================
// CLASSIFICATION
// =============================================================================

func TestClassifyKind_EveryKindIsExactlyOneEffect(t *testing.T) {
	seen := map[account.Kind]bool{}
	for _, k := range account.Kinds() {
		assert.False(t, seen[k], "kind %s listed twice", k)
		seen[k] = true

		assert.True(t, k.IsValid(), "kind %s must be classified", k)
		assert.NotEqual(t, k.IsDebit(), k.IsCredit(), "kind %s must be debit xor credit", k)
	}
	assert.Len(t, seen, 10)
}

func TestClassifyKind_Table(t *testing.T) {
	tests := []struct {
		kind account.Kind
		want account.Effect
	}{
		{account.KindInvoiceCharge, account.EffectDebit},
		{account.KindDebitNote, account.EffectDebit},
		{account.KindSaleCharge, account.EffectDebit},
		{account.KindGoodsReceiptCharge, account.EffectDebit},
		{account.KindSale, account.EffectDebit},
		{account.KindPartialPayment, account.EffectCredit},
		{account.KindFullPayment, account.EffectCredit},
		{account.KindCreditNote, account.EffectCredit},
		{account.KindReversal, account.EffectCredit},
		{account.KindPayment, account.EffectCredit},
		{account.Kind("adjustment"), account.EffectNone},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, account.ClassifyKind(tt.kind))
		})
	}
}

// =============================================================================
// CUSTOMER
// =============================================================================

func TestNewCustomer_Validation(t *testing.T) {
	_, err := account.NewCustomer(account.CustomerInput{Name: "   "}, day0)
	assert.True(t, account.IsValidation(err), "blank name, got %v", err)

	_, err = account.NewCustomer(account.CustomerInput{Name: "Ana", Balance: dec("-1")}, day0)
	assert.True(t, account.IsValidation(err), "negative balance, got %v", err)

	c, err := account.NewCustomer(account.CustomerInput{Name: "  Ana  ", HasCurrentAccount: true}, day0)
	require.NoError(t, err)
	assert.Equal(t, "Ana", c.Name)
	assert.Empty(t, c.ID, "ids are assigned by the store")
}

func TestCustomer_DecreaseDebtClampsAtZero(t *testing.T) {
	c, err := account.NewCustomer(account.CustomerInput{Name: "Ana", Balance: dec("100")}, day0)
	require.NoError(t, err)

	c.DecreaseDebt(dec("30"), day0)
	assertDecimal(t, "70", c.Balance)

	c.DecreaseDebt(dec("500"), day0)
	assertDecimal(t, "0", c.Balance, "balance never goes negative")

	c.IncreaseDebt(dec("12.5"), day0)
	assertDecimal(t, "12.5", c.Balance)
}

func TestCustomer_UpdateRejectsInvalidPatchWithoutChanges(t *testing.T) {
	c, err := account.NewCustomer(account.CustomerInput{Name: "Ana", Email: "ana@example.com"}, day0)
	require.NoError(t, err)

	blank := ""
	email := "new@example.com"
	err = c.Update(account.CustomerPatch{Name: &blank, Email: &email}, day0.Add(time.Hour))
	assert.True(t, account.IsValidation(err))
	assert.Equal(t, "Ana", c.Name)
	assert.Equal(t, "ana@example.com", c.Email, "a rejected patch applies nothing")
	assert.True(t, day0.Equal(c.UpdatedAt))

	yes := true
	require.NoError(t, c.Update(account.CustomerPatch{Email: &email, HasCurrentAccount: &yes}, day0.Add(time.Hour)))
	assert.Equal(t, "new@example.com", c.Email)
	assert.True(t, c.HasCurrentAccount)
	assert.True(t, day0.Add(time.Hour).Equal(c.UpdatedAt))
}

// =============================================================================
// INVOICE
// =============================================================================

func validInvoice() account.InvoiceInput {
	return account.InvoiceInput{
		Number:     "A-0001",
		CustomerID: "c-1",
		IssueDate:  day0,
		DueDate:    day0.AddDate(0, 0, 10),
		Total:      dec("1000"),
	}
}

func TestNewInvoice_Validation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(in *account.InvoiceInput)
		field string
	}{
		{"blank number", func(in *account.InvoiceInput) { in.Number = " " }, "number"},
		{"no customer", func(in *account.InvoiceInput) { in.CustomerID = "" }, "customer_id"},
		{"no issue date", func(in *account.InvoiceInput) { in.IssueDate = time.Time{} }, "issue_date"},
		{"due before issue", func(in *account.InvoiceInput) { in.DueDate = day0.AddDate(0, 0, -1) }, "due_date"},
		{"zero total", func(in *account.InvoiceInput) { in.Total = decimal.Zero }, "total"},
		{"negative total", func(in *account.InvoiceInput) { in.Total = dec("-5") }, "total"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInvoice()
			tt.edit(&in)
			_, err := account.NewInvoice(in, day0)
			var verr *account.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	inv, err := account.NewInvoice(validInvoice(), day0)
	require.NoError(t, err)
	assertDecimal(t, "0", inv.AmountPaid)
	assert.False(t, inv.IsPaid())
}

func TestInvoice_ApplyPaymentKeepsAmountPaidWithinTotal(t *testing.T) {
	inv, err := account.NewInvoice(validInvoice(), day0)
	require.NoError(t, err)

	require.NoError(t, inv.ApplyPayment(dec("400"), day0))
	assertDecimal(t, "600", inv.RemainingBalance())

	// Over the remaining balance
	err = inv.ApplyPayment(dec("600.01"), day0)
	assert.True(t, account.IsInvalidOperation(err), "got %v", err)
	assertDecimal(t, "400", inv.AmountPaid, "rejected payment leaves amountPaid unchanged")

	err = inv.ApplyPayment(decimal.Zero, day0)
	assert.True(t, account.IsInvalidOperation(err))

	require.NoError(t, inv.ApplyPayment(dec("600"), day0))
	assert.True(t, inv.IsPaid())

	err = inv.ApplyPayment(dec("1"), day0)
	assert.True(t, account.IsInvalidOperation(err), "paid invoices take no more payments")
	assertDecimal(t, "1000", inv.AmountPaid)
}

func TestInvoice_DueDates(t *testing.T) {
	in := validInvoice()
	in.DueDate = day0.AddDate(0, 0, 5)
	inv, err := account.NewInvoice(in, day0)
	require.NoError(t, err)

	assert.True(t, inv.IsDueSoon(day0, 5), "due date on the window edge counts")
	assert.False(t, inv.IsDueSoon(day0, 4))
	assert.False(t, inv.IsOverdue(in.DueDate), "not overdue on the due date itself")
	assert.True(t, inv.IsOverdue(in.DueDate.Add(time.Second)))
	assert.False(t, inv.IsDueSoon(in.DueDate.Add(time.Second), 5), "overdue invoices are not due soon")
}

// =============================================================================
// MOVEMENT
// =============================================================================

func TestNewMovement_ComputesCurrentBalance(t *testing.T) {
	m, err := account.NewMovement(account.MovementInput{
		CustomerID:      "c-1",
		Kind:            account.KindInvoiceCharge,
		Amount:          dec("250"),
		Description:     "Invoice A-1",
		PreviousBalance: dec("100"),
	}, day0)
	require.NoError(t, err)
	assertDecimal(t, "350", m.CurrentBalance)
	assert.True(t, day0.Equal(m.Date), "date defaults to now")
	assertDecimal(t, "250", m.Signed())

	r, err := account.NewMovement(account.MovementInput{
		CustomerID:      "c-1",
		Kind:            account.KindReversal,
		Amount:          dec("250"),
		Description:     "Reversal",
		PreviousBalance: dec("350"),
	}, day0)
	require.NoError(t, err)
	assertDecimal(t, "100", r.CurrentBalance)
	assertDecimal(t, "-250", r.Signed(), "reversals are stored positive and read back signed")
}

func TestNewMovement_Validation(t *testing.T) {
	base := account.MovementInput{CustomerID: "c-1", Kind: account.KindPayment, Amount: dec("1"), Description: "x"}

	in := base
	in.Kind = "adjustment"
	_, err := account.NewMovement(in, day0)
	assert.True(t, account.IsValidation(err), "unclassified kinds are rejected on write")

	in = base
	in.Amount = dec("-1")
	_, err = account.NewMovement(in, day0)
	assert.True(t, account.IsValidation(err))

	in = base
	in.Description = " "
	_, err = account.NewMovement(in, day0)
	assert.True(t, account.IsValidation(err))

	in = base
	in.CustomerID = ""
	_, err = account.NewMovement(in, day0)
	assert.True(t, account.IsValidation(err))
}
