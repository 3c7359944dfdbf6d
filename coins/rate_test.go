package coins

import (
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/require"
)

func mustRate(t *testing.T, s string) *ExchangeRate {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return NewExchangeRate(d)
}

func TestToBTCRoundsDown(t *testing.T) {
	rate := mustRate(t, "0.0062") // 1 XMR = 0.0062 BTC

	oneXMR := NewPiconeroAmount(PiconerosPerXMR).AsDecimal()
	btc, err := rate.ToBTC(oneXMR)
	require.NoError(t, err)
	require.Equal(t, BitcoinAmount(620000), btc) // 0.0062 BTC in sats
}

func TestToXMRRoundsDown(t *testing.T) {
	rate := mustRate(t, "0.0062")

	oneBTC := NewBitcoinAmount(SatsPerBTC).AsDecimal()
	xmr, err := rate.ToXMR(oneBTC)
	require.NoError(t, err)

	// 1 / 0.0062 = 161.290322... XMR; floor to the piconero.
	require.InDelta(t, 161290322580645, xmr.AsPiconero(), 1)
}

func TestToBTCAndToXMRAreApproximateInverses(t *testing.T) {
	rate := mustRate(t, "0.0062")

	btcAmount := NewBitcoinAmount(3 * SatsPerBTC)
	xmrAmount, err := rate.ToXMR(btcAmount.AsDecimal())
	require.NoError(t, err)

	roundTripped, err := rate.ToBTC(xmrAmount.AsDecimal())
	require.NoError(t, err)

	// Flooring twice (BTC->XMR, then XMR->BTC) can only lose value, never
	// gain it, so the round trip must land at or below the original amount.
	require.LessOrEqual(t, uint64(roundTripped), btcAmount.AsSats())
}

func TestRateString(t *testing.T) {
	rate := mustRate(t, "0.0062")
	require.Equal(t, "0.0062", rate.String())
}
