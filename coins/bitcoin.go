// Package coins holds the amount and exchange-rate types shared by the
// wallets, the wire messages, and the protocol state machines. Keeping them
// in one package avoids a cyclic import between bitcoin/, monero/, and
// net/message.
package coins

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/cockroachdb/apd/v3"
)

// SatsPerBTC is the number of satoshis in one bitcoin.
const SatsPerBTC = 1e8

// BitcoinAmount is a bitcoin amount, held internally as satoshis so that
// arithmetic is always exact integer arithmetic.
type BitcoinAmount uint64

// NewBitcoinAmount constructs a BitcoinAmount from a whole number of
// satoshis.
func NewBitcoinAmount(sats uint64) BitcoinAmount {
	return BitcoinAmount(sats)
}

// AsSats returns the amount as an integer number of satoshis.
func (b BitcoinAmount) AsSats() uint64 {
	return uint64(b)
}

// AsBTC returns the amount as whole bitcoin, for display and logging only.
func (b BitcoinAmount) AsBTC() float64 {
	return btcutil.Amount(b).ToBTC()
}

// AsDecimal returns the amount as an exact apd.Decimal in whole BTC, for
// multiplying against an ExchangeRate.
func (b BitcoinAmount) AsDecimal() *apd.Decimal {
	d := apd.New(int64(b), -8)
	_, _ = d.Reduce(d)
	return d
}

// String implements fmt.Stringer.
func (b BitcoinAmount) String() string {
	return fmt.Sprintf("%s BTC", btcutil.Amount(b).ToBTC())
}
