package coins

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// PiconerosPerXMR is the number of piconeros in one XMR.
const PiconerosPerXMR = 1e12

// PiconeroAmount is a Monero amount, held internally as piconeros (the
// atomic unit monero-wallet-rpc speaks) so arithmetic stays exact.
type PiconeroAmount uint64

// NewPiconeroAmount constructs a PiconeroAmount from a whole number of
// piconeros.
func NewPiconeroAmount(p uint64) PiconeroAmount {
	return PiconeroAmount(p)
}

// AsPiconero returns the amount as an integer number of piconeros.
func (p PiconeroAmount) AsPiconero() uint64 {
	return uint64(p)
}

// AsXMR returns the amount as whole XMR, for display and logging only.
func (p PiconeroAmount) AsXMR() float64 {
	return float64(p) / PiconerosPerXMR
}

// AsDecimal returns the amount as an exact apd.Decimal in whole XMR.
func (p PiconeroAmount) AsDecimal() *apd.Decimal {
	d := apd.New(int64(p), -12)
	_, _ = d.Reduce(d)
	return d
}

// String implements fmt.Stringer.
func (p PiconeroAmount) String() string {
	return fmt.Sprintf("%f XMR", p.AsXMR())
}
