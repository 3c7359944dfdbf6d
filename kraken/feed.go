// Package kraken provides the maker's XMR/BTC price feed. It is deliberately
// narrow: spec.md §1 scopes pricing interfaces only, not a pricing policy,
// so Feed exposes just the current rate and nothing about how a maker
// chooses to mark it up.
package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cockroachdb/apd/v3"
	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log"

	"github.com/nthswap/xmrbtc-swap/coins"
)

var log = logging.Logger("kraken")

// wsEndpoint is Kraken's public websocket feed.
const wsEndpoint = "wss://ws.kraken.com"

// xmrBtcPair is Kraken's ticker name for the XMR/BTC market.
const xmrBtcPair = "XMR/XBT"

// Feed is the maker's view of the current XMR/BTC price. A Dialed Feed
// starts out with no rate; callers must wait for the first ticker message
// before Rate returns successfully.
type Feed interface {
	// Rate returns the most recently observed price of 1 XMR in BTC.
	Rate() (*coins.ExchangeRate, error)
	// Close releases the underlying connection.
	Close() error
}

// WebsocketFeed subscribes to Kraken's public ticker channel for XMR/BTC
// and keeps the latest trade price cached, refreshed in a background
// goroutine for as long as ctx is alive.
type WebsocketFeed struct {
	conn *websocket.Conn

	mu   sync.RWMutex
	rate *coins.ExchangeRate
	err  error
}

var _ Feed = (*WebsocketFeed)(nil)

// tickerMessage is the subset of Kraken's ticker payload this feed reads;
// Kraken's public API nests the fields this deep under an array-typed
// envelope, so the message is decoded in two passes (see readLoop).
type tickerMessage struct {
	Close [2]string `json:"c"` // [price, lot volume]
}

// Dial opens a websocket connection to Kraken and subscribes to the XMR/BTC
// ticker, returning once the subscription request has been sent. The first
// call to Rate may still observe ErrNoRateYet until the first message
// arrives.
func Dial(ctx context.Context) (*WebsocketFeed, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kraken: %w", err)
	}

	sub := map[string]any{
		"event": "subscribe",
		"pair":  []string{xmrBtcPair},
		"subscription": map[string]string{
			"name": "ticker",
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to subscribe to kraken ticker: %w", err)
	}

	f := &WebsocketFeed{conn: conn}
	go f.readLoop(ctx)
	return f, nil
}

// ErrNoRateYet is returned by Rate before the first ticker message arrives.
var ErrNoRateYet = fmt.Errorf("no kraken rate observed yet")

func (f *WebsocketFeed) readLoop(ctx context.Context) {
	defer func() {
		_ = f.conn.Close()
	}()

	go func() {
		<-ctx.Done()
		_ = f.conn.Close()
	}()

	for {
		_, raw, err := f.conn.ReadMessage()
		if err != nil {
			f.mu.Lock()
			f.err = fmt.Errorf("kraken feed connection lost: %w", err)
			f.mu.Unlock()
			return
		}

		// Kraken sends two shapes down the same socket: JSON objects
		// (subscription acks, heartbeats) and untyped arrays (ticker
		// updates, keyed positionally rather than by field name).
		var frame []json.RawMessage
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		if len(frame) < 2 {
			continue
		}

		var ticker tickerMessage
		if err := json.Unmarshal(frame[1], &ticker); err != nil {
			log.Warnf("failed to decode kraken ticker frame: %s", err)
			continue
		}

		price, _, err := apd.NewFromString(ticker.Close[0])
		if err != nil {
			log.Warnf("failed to parse kraken price %q: %s", ticker.Close[0], err)
			continue
		}

		f.mu.Lock()
		f.rate = coins.NewExchangeRate(price)
		f.mu.Unlock()
	}
}

// Rate implements Feed.
func (f *WebsocketFeed) Rate() (*coins.ExchangeRate, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.rate == nil {
		if f.err != nil {
			return nil, f.err
		}
		return nil, ErrNoRateYet
	}
	return f.rate, nil
}

// Close implements Feed.
func (f *WebsocketFeed) Close() error {
	return f.conn.Close()
}

// FixedFeed is a Feed returning a constant rate, used in tests and by
// makers that prefer to set their own price rather than track a market.
type FixedFeed struct {
	rate *coins.ExchangeRate
}

var _ Feed = (*FixedFeed)(nil)

// NewFixedFeed returns a Feed that always reports rate.
func NewFixedFeed(rate *coins.ExchangeRate) *FixedFeed {
	return &FixedFeed{rate: rate}
}

// Rate implements Feed.
func (f *FixedFeed) Rate() (*coins.ExchangeRate, error) {
	return f.rate, nil
}

// Close implements Feed.
func (f *FixedFeed) Close() error {
	return nil
}
