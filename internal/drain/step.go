package drain

import (
	"github.com/shopspring/decimal"

	"smart_cash_power/internal/models"
)

// pendingWrite is a ledger write produced by a tick.
type pendingWrite struct {
	meterID int64
	units   models.Units
}

// step advances every meter by one tick and returns a new slice; meters is
// left untouched. A meter whose balance goes from positive to zero for the
// first time is added to zeroed and yields a write that folds the residual
// balance into the used total.
//
// Arithmetic is done in decimal so that a balance of c reaches zero after
// exactly ceil(c/rate) ticks.
func step(meters []models.Meter, rate decimal.Decimal, zeroed map[int64]struct{}) ([]models.Meter, []pendingWrite) {
	next := make([]models.Meter, len(meters))
	var writes []pendingWrite
	for i, m := range meters {
		n := m
		cur := decimal.NewFromFloat(m.CurrentUnits)
		used := decimal.NewFromFloat(m.UsedUnits)

		if cur.IsPositive() {
			n.CurrentUnits = decimal.Max(cur.Sub(rate), decimal.Zero).InexactFloat64()
		}
		// used keeps advancing after the balance saturates
		n.UsedUnits = used.Add(rate).InexactFloat64()

		if cur.IsPositive() && n.CurrentUnits == 0 && m.ID != 0 {
			if _, done := zeroed[m.ID]; !done {
				zeroed[m.ID] = struct{}{}
				writes = append(writes, pendingWrite{
					meterID: m.ID,
					units: models.Units{
						CurrentUnits: 0,
						UsedUnits:    used.Add(cur).InexactFloat64(),
					},
				})
			}
		}
		next[i] = n
	}
	return next, writes
}
