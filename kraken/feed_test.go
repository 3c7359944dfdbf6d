package kraken

import (
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/require"

	"github.com/nthswap/xmrbtc-swap/coins"
)

func TestFixedFeedReturnsConfiguredRate(t *testing.T) {
	d, _, err := apd.NewFromString("0.0062")
	require.NoError(t, err)
	rate := coins.NewExchangeRate(d)

	feed := NewFixedFeed(rate)
	got, err := feed.Rate()
	require.NoError(t, err)
	require.Equal(t, rate, got)
	require.NoError(t, feed.Close())
}

func TestWebsocketFeedReportsNoRateBeforeFirstTick(t *testing.T) {
	f := &WebsocketFeed{}
	_, err := f.Rate()
	require.ErrorIs(t, err, ErrNoRateYet)
}

func TestWebsocketFeedSurfacesConnectionError(t *testing.T) {
	f := &WebsocketFeed{}
	f.mu.Lock()
	f.err = ErrNoRateYet
	f.mu.Unlock()

	_, err := f.Rate()
	require.Error(t, err)
}
