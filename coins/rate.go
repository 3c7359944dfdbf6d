package coins

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

var decimalCtx = apd.BaseContext.WithPrecision(24)

// ExchangeRate is the price of one XMR expressed in BTC, e.g. an
// ExchangeRate of 0.0062 means 1 XMR = 0.0062 BTC. It is carried as an
// apd.Decimal rather than a float so that ToXMR/ToBTC never lose precision
// to binary floating point.
type ExchangeRate apd.Decimal

// NewExchangeRate wraps d as an ExchangeRate. d is not copied.
func NewExchangeRate(d *apd.Decimal) *ExchangeRate {
	return (*ExchangeRate)(d)
}

// Decimal returns the rate's underlying apd.Decimal.
func (r *ExchangeRate) Decimal() *apd.Decimal {
	return (*apd.Decimal)(r)
}

// ToBTC converts an XMR amount to the equivalent BTC amount at this rate,
// rounding down to the nearest satoshi: the BTC-paying side (the taker)
// must never be asked to send more BTC than the rate implies.
func (r *ExchangeRate) ToBTC(xmr *apd.Decimal) (BitcoinAmount, error) {
	btc := new(apd.Decimal)
	if _, err := decimalCtx.Mul(btc, xmr, r.Decimal()); err != nil {
		return 0, fmt.Errorf("failed to multiply by exchange rate: %w", err)
	}

	sats := new(apd.Decimal)
	scaled := new(apd.Decimal).SetFinite(SatsPerBTC, 0)
	if _, err := decimalCtx.Mul(sats, btc, scaled); err != nil {
		return 0, fmt.Errorf("failed to scale to satoshis: %w", err)
	}

	rounded := new(apd.Decimal)
	if _, err := decimalCtx.Floor(rounded, sats); err != nil {
		return 0, fmt.Errorf("failed to round to whole satoshis: %w", err)
	}

	n, err := rounded.Int64()
	if err != nil {
		return 0, fmt.Errorf("exchange result out of range: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("exchange result is negative")
	}
	return BitcoinAmount(n), nil
}

// ToXMR converts a BTC amount to the equivalent XMR amount at this rate,
// rounding down to the nearest piconero: the maker must never be asked to
// give up more XMR than the rate implies for the BTC a taker is offering.
func (r *ExchangeRate) ToXMR(btc *apd.Decimal) (PiconeroAmount, error) {
	xmr := new(apd.Decimal)
	if _, err := decimalCtx.Quo(xmr, btc, r.Decimal()); err != nil {
		return 0, fmt.Errorf("failed to divide by exchange rate: %w", err)
	}

	piconeros := new(apd.Decimal)
	scaled := new(apd.Decimal).SetFinite(PiconerosPerXMR, 0)
	if _, err := decimalCtx.Mul(piconeros, xmr, scaled); err != nil {
		return 0, fmt.Errorf("failed to scale to piconeros: %w", err)
	}

	rounded := new(apd.Decimal)
	if _, err := decimalCtx.Floor(rounded, piconeros); err != nil {
		return 0, fmt.Errorf("failed to round to whole piconeros: %w", err)
	}

	n, err := rounded.Int64()
	if err != nil {
		return 0, fmt.Errorf("exchange result out of range: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("exchange result is negative")
	}
	return PiconeroAmount(n), nil
}

// String implements fmt.Stringer.
func (r *ExchangeRate) String() string {
	return r.Decimal().Text('f')
}
