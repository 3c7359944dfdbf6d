package eventloop

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/nthswap/xmrbtc-swap/coins"
	"github.com/nthswap/xmrbtc-swap/kraken"
)

func fixedRate(t *testing.T, s string) *coins.ExchangeRate {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return coins.NewExchangeRate(d)
}

func TestOnQuoteRequest_RejectsOverMaxBuy(t *testing.T) {
	e := New(&Config{
		RateFeed: kraken.NewFixedFeed(fixedRate(t, "0.0062")),
		MaxBuy:   coins.NewBitcoinAmount(coins.SatsPerBTC), // 1 BTC
	})

	_, err := e.OnQuoteRequest(peer.ID("taker"), 2*coins.SatsPerBTC)
	require.Error(t, err)
}

func TestOnQuoteRequest_PricesAtFeedRate(t *testing.T) {
	e := New(&Config{
		RateFeed: kraken.NewFixedFeed(fixedRate(t, "0.0062")),
		MaxBuy:   coins.NewBitcoinAmount(10 * coins.SatsPerBTC),
	})

	// 0.0062 BTC buys 1 XMR at this rate.
	xmrAmount, err := e.OnQuoteRequest(peer.ID("taker"), uint64(0.0062*coins.SatsPerBTC))
	require.NoError(t, err)
	require.InDelta(t, coins.PiconerosPerXMR, xmrAmount, 1e9)

	e.mu.Lock()
	_, remembered := e.quotes[peer.ID("taker")]
	e.mu.Unlock()
	require.True(t, remembered)
}

type fakeRunner struct {
	id      string
	exited  chan struct{}
	panics  bool
	started chan struct{}
}

func (f *fakeRunner) ID() string { return f.id }

func (f *fakeRunner) Exit() error {
	close(f.exited)
	return nil
}

func (f *fakeRunner) Run() {
	close(f.started)
	if f.panics {
		panic("simulated swap task failure")
	}
	<-f.exited
}

func TestDispatch_PanicIsolatedAndShutdownExitsActive(t *testing.T) {
	e := New(&Config{})

	panicking := &fakeRunner{id: "panics", exited: make(chan struct{}), panics: true, started: make(chan struct{})}
	blocking := &fakeRunner{id: "blocks", exited: make(chan struct{}), started: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	go e.Dispatch(ctx)

	e.swapCh <- panicking
	e.swapCh <- blocking

	<-panicking.started
	<-blocking.started

	select {
	case <-panicking.exited:
		t.Fatal("exited should not be closed by the panicking runner itself")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()

	select {
	case <-blocking.exited:
	case <-time.After(time.Second):
		t.Fatal("Dispatch did not call Exit on the still-running swap during shutdown")
	}
}
