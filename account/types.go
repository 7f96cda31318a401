/*
Package account implements the customer current-account ledger.

PURPOSE:
  Tracks how much each customer owes. Invoices, direct payments and
  point-of-sale charges append immutable movements to a per-customer
  ledger; the customer record keeps a denormalized balance as a fast hint.
  The trusted number is always the one obtained by replaying movements.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: CustomerID, InvoiceID, MovementID
  - Kind: the closed set of movement kinds
  - Effect: the fixed debit/credit classification of each kind
  - SourceDocument: the invoice or sale that caused a movement

DESIGN PRINCIPLES:
  1. Append-only: movements are never edited; corrections are new movements
  2. Precision: money is decimal.Decimal, never float64
  3. Classification by kind: the effect of a movement comes from a fixed
     lookup, never from the sign of its amount
  4. Replay wins: stored previous/current balances are snapshots only

SEE ALSO:
  - movement.go: Movement construction and balance calculation
  - statement.go: Replay of movements (the trusted read path)
  - service.go: Workflows that write movements
*/
package account

import "github.com/shopspring/decimal"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CustomerID string
type InvoiceID string
type MovementID string

// =============================================================================
// MOVEMENT KINDS
// =============================================================================

// Kind identifies what caused a movement.
type Kind string

const (
	// Debit kinds increase the customer's debt.
	KindInvoiceCharge      Kind = "invoice_charge"
	KindDebitNote          Kind = "debit_note"
	KindSaleCharge         Kind = "sale_charge" // point-of-sale charge to the account
	KindGoodsReceiptCharge Kind = "goods_receipt_charge"
	KindSale               Kind = "sale" // legacy alias of KindSaleCharge

	// Credit kinds decrease the customer's debt.
	KindPartialPayment Kind = "partial_payment"
	KindFullPayment    Kind = "full_payment"
	KindCreditNote     Kind = "credit_note"
	KindReversal       Kind = "reversal"
	KindPayment        Kind = "payment" // legacy generic payment
)

// Effect is the direction in which a movement moves the balance.
type Effect int

const (
	EffectNone Effect = iota
	EffectDebit
	EffectCredit
)

func (e Effect) String() string {
	switch e {
	case EffectDebit:
		return "debit"
	case EffectCredit:
		return "credit"
	default:
		return "none"
	}
}

var kindEffects = map[Kind]Effect{
	KindInvoiceCharge:      EffectDebit,
	KindDebitNote:          EffectDebit,
	KindSaleCharge:         EffectDebit,
	KindGoodsReceiptCharge: EffectDebit,
	KindSale:               EffectDebit,

	KindPartialPayment: EffectCredit,
	KindFullPayment:    EffectCredit,
	KindCreditNote:     EffectCredit,
	KindReversal:       EffectCredit,
	KindPayment:        EffectCredit,
}

// ClassifyKind returns the effect of a kind. Unknown kinds yield EffectNone.
func ClassifyKind(k Kind) Effect {
	return kindEffects[k]
}

func (k Kind) IsDebit() bool  { return ClassifyKind(k) == EffectDebit }
func (k Kind) IsCredit() bool { return ClassifyKind(k) == EffectCredit }
func (k Kind) IsValid() bool  { return ClassifyKind(k) != EffectNone }

// IsSaleCharge reports whether k is a point-of-sale charge, including the
// legacy alias found in old data.
func (k Kind) IsSaleCharge() bool { return k == KindSaleCharge || k == KindSale }

// Kinds returns every known kind.
func Kinds() []Kind {
	return []Kind{
		KindInvoiceCharge, KindDebitNote, KindSaleCharge, KindGoodsReceiptCharge, KindSale,
		KindPartialPayment, KindFullPayment, KindCreditNote, KindReversal, KindPayment,
	}
}

// =============================================================================
// SOURCE DOCUMENT
// =============================================================================

// SourceDocument links a movement to the invoice or sale that caused it.
type SourceDocument struct {
	ID     string
	Number string
}

// apply moves balance by amount according to the kind's effect.
// The magnitude is used so that legacy rows holding signed reversal
// amounts replay the same way as current ones.
func apply(balance decimal.Decimal, k Kind, amount decimal.Decimal) decimal.Decimal {
	switch ClassifyKind(k) {
	case EffectDebit:
		return balance.Add(amount.Abs())
	case EffectCredit:
		return balance.Sub(amount.Abs())
	default:
		return balance
	}
}
