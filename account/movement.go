package account

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Movement is one immutable balance-affecting event for a customer.
//
// PreviousBalance and CurrentBalance are snapshots taken when the movement
// was written. Some historical rows carry wrong snapshots, so nothing that
// reports a total may read them; use Replay instead.
type Movement struct {
	ID              MovementID
	CustomerID      CustomerID
	Kind            Kind
	Date            time.Time // business date, may be backdated
	Amount          decimal.Decimal
	Description     string
	Source          *SourceDocument
	ReversalOf      MovementID // set on reversals
	PreviousBalance decimal.Decimal
	CurrentBalance  decimal.Decimal
	Notes           string
	UserID          string
	IdempotencyKey  string
	CreatedAt       time.Time // audit timestamp, the ordering key
}

// MovementInput holds the fields accepted when writing a movement.
type MovementInput struct {
	CustomerID      CustomerID
	Kind            Kind
	Date            time.Time
	Amount          decimal.Decimal
	Description     string
	Source          *SourceDocument
	ReversalOf      MovementID
	PreviousBalance decimal.Decimal
	Notes           string
	UserID          string
	IdempotencyKey  string
}

// NewMovement validates the input and computes CurrentBalance from
// PreviousBalance. The event date defaults to now.
func NewMovement(in MovementInput, now time.Time) (*Movement, error) {
	m := &Movement{
		CustomerID:      in.CustomerID,
		Kind:            in.Kind,
		Date:            in.Date,
		Amount:          in.Amount,
		Description:     strings.TrimSpace(in.Description),
		Source:          in.Source,
		ReversalOf:      in.ReversalOf,
		PreviousBalance: in.PreviousBalance,
		Notes:           in.Notes,
		UserID:          in.UserID,
		IdempotencyKey:  in.IdempotencyKey,
		CreatedAt:       now,
	}
	if m.Date.IsZero() {
		m.Date = now
	}
	switch {
	case m.CustomerID == "":
		return nil, invalid("customer_id", "is required")
	case !m.Kind.IsValid():
		return nil, invalid("kind", "unknown movement kind "+string(m.Kind))
	case !m.Amount.IsPositive():
		return nil, invalid("amount", "must be greater than zero")
	case m.Description == "":
		return nil, invalid("description", "must not be blank")
	}
	m.CurrentBalance = apply(m.PreviousBalance, m.Kind, m.Amount)
	return m, nil
}

func (m *Movement) Effect() Effect { return ClassifyKind(m.Kind) }

// Signed returns the amount with the sign of its effect on the debt:
// positive for debits, negative for credits, zero for unknown kinds.
func (m *Movement) Signed() decimal.Decimal {
	switch m.Effect() {
	case EffectDebit:
		return m.Amount.Abs()
	case EffectCredit:
		return m.Amount.Abs().Neg()
	default:
		return decimal.Zero
	}
}

// SourceID returns the linked document id or "".
func (m *Movement) SourceID() string {
	if m.Source == nil {
		return ""
	}
	return m.Source.ID
}
