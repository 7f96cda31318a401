package account_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/retail-ledger/account"
)

func stored(id string, kind account.Kind, amount, prev, cur string, createdAt time.Time) account.Movement {
	return account.Movement{
		ID:              account.MovementID(id),
		CustomerID:      "c-1",
		Kind:            kind,
		Date:            createdAt,
		Amount:          dec(amount),
		Description:     string(kind),
		PreviousBalance: dec(prev),
		CurrentBalance:  dec(cur),
		CreatedAt:       createdAt,
	}
}

func TestReplay_IgnoresCorruptSnapshots(t *testing.T) {
	// GIVEN: Movements whose stored balances were written by the old defect
	ms := []account.Movement{
		stored("m1", account.KindInvoiceCharge, "1000", "0", "1000", day0),
		stored("m2", account.KindPartialPayment, "400", "5000", "4600", day0.Add(time.Hour)), // corrupt
		stored("m3", account.KindSaleCharge, "250", "600", "850", day0.Add(2*time.Hour)),
	}

	// WHEN: Replaying
	lines, total := account.Replay(ms)

	// THEN: Balances come from the walk, not from the rows
	assertDecimal(t, "850", total)
	require.Len(t, lines, 3)
	assertDecimal(t, "1000", lines[1].Movement.PreviousBalance)
	assertDecimal(t, "600", lines[1].Movement.CurrentBalance)
	assertDecimal(t, "5000", lines[1].StoredPrevious, "stored values are kept for audit")
	assert.False(t, lines[0].Corrected)
	assert.True(t, lines[1].Corrected)
	assert.False(t, lines[2].Corrected)
	assertDecimal(t, "5000", ms[1].PreviousBalance, "input slice is not modified")
}

func TestReplay_IsDeterministic(t *testing.T) {
	ms := []account.Movement{
		stored("m1", account.KindDebitNote, "10", "99", "99", day0),
		stored("m2", account.KindCreditNote, "3", "1", "1", day0.Add(time.Minute)),
		stored("m3", account.KindGoodsReceiptCharge, "7.5", "0", "0", day0.Add(2*time.Minute)),
	}
	lines1, total1 := account.Replay(ms)

	// Scramble the stored snapshots; the replay must not care.
	for i := range ms {
		ms[i].PreviousBalance = dec("12345")
		ms[i].CurrentBalance = dec("-1")
	}
	lines2, total2 := account.Replay(ms)

	assertDecimal(t, "14.5", total1)
	assert.True(t, total1.Equal(total2))
	for i := range lines1 {
		assert.True(t, lines1[i].Movement.PreviousBalance.Equal(lines2[i].Movement.PreviousBalance))
		assert.True(t, lines1[i].Movement.CurrentBalance.Equal(lines2[i].Movement.CurrentBalance))
	}
}

func TestReplay_OrdersByCreatedAtNotBusinessDate(t *testing.T) {
	// GIVEN: A payment backdated before the charge it pays
	charge := stored("charge", account.KindInvoiceCharge, "100", "0", "100", day0.Add(time.Hour))
	payment := stored("payment", account.KindFullPayment, "100", "100", "0", day0.Add(2*time.Hour))
	payment.Date = day0.AddDate(0, 0, -10)

	// WHEN: Replaying rows handed over in the wrong order
	lines, total := account.Replay([]account.Movement{payment, charge})

	// THEN: The audit timestamp decides
	assertDecimal(t, "0", total)
	assert.Equal(t, account.MovementID("charge"), lines[0].Movement.ID)
	assert.Equal(t, account.MovementID("payment"), lines[1].Movement.ID)
	assertDecimal(t, "100", lines[1].Movement.PreviousBalance)
}

func TestReplay_StableForEqualTimestamps(t *testing.T) {
	ms := []account.Movement{
		stored("a", account.KindInvoiceCharge, "1", "0", "1", day0),
		stored("b", account.KindInvoiceCharge, "2", "1", "3", day0),
		stored("c", account.KindInvoiceCharge, "3", "3", "6", day0),
	}
	lines, _ := account.Replay(ms)
	assert.Equal(t, account.MovementID("a"), lines[0].Movement.ID)
	assert.Equal(t, account.MovementID("b"), lines[1].Movement.ID)
	assert.Equal(t, account.MovementID("c"), lines[2].Movement.ID)
}

func TestReplay_UnknownKindLeavesBalance(t *testing.T) {
	ms := []account.Movement{
		stored("m1", account.KindInvoiceCharge, "100", "0", "100", day0),
		stored("m2", account.Kind("adjustment"), "40", "100", "60", day0.Add(time.Minute)),
	}
	lines, total := account.Replay(ms)
	assertDecimal(t, "100", total)
	assertDecimal(t, "100", lines[1].Movement.CurrentBalance)
}

func TestReplay_NeverNegative(t *testing.T) {
	// GIVEN: More credit than debit, as happens when a payment row lost its
	// charge in a past import
	ms := []account.Movement{
		stored("m1", account.KindPayment, "50", "0", "-50", day0),
		stored("m2", account.KindInvoiceCharge, "20", "0", "20", day0.Add(time.Minute)),
	}
	lines, total := account.Replay(ms)
	assertDecimal(t, "-50", lines[0].Movement.CurrentBalance)
	assertDecimal(t, "-30", lines[1].Movement.CurrentBalance)
	assertDecimal(t, "0", total)
	assert.False(t, total.IsNegative())
}

func TestReplay_EarlyCreditIsNotLost(t *testing.T) {
	// GIVEN: A payment recorded before the charge it pays
	ms := []account.Movement{
		stored("m1", account.KindPartialPayment, "100", "0", "0", day0),
		stored("m2", account.KindInvoiceCharge, "300", "0", "300", day0.Add(time.Minute)),
	}

	// WHEN: Replaying
	lines, total := account.Replay(ms)

	// THEN: The credit still reduces the debt
	assertDecimal(t, "200", total)
	assertDecimal(t, "-100", lines[1].Movement.PreviousBalance)
	assert.True(t, lines[0].Corrected)
}

func TestReplay_LegacySignedReversal(t *testing.T) {
	// Old rows stored reversals with a negative amount. Classification, not
	// sign, decides the direction.
	ms := []account.Movement{
		stored("m1", account.KindSale, "250", "0", "250", day0),
		stored("m2", account.KindReversal, "-250", "250", "0", day0.Add(time.Minute)),
	}
	_, total := account.Replay(ms)
	assertDecimal(t, "0", total)
}

func TestReplay_Empty(t *testing.T) {
	lines, total := account.Replay(nil)
	assert.Empty(t, lines)
	assert.True(t, total.IsZero())
}
