// Package eventloop implements the maker's net.Handler: it answers Quote
// requests against a configured max_buy and a live exchange rate, runs
// ExecutionSetup for accepted quotes, and hands each resulting swap off to
// a dispatcher that drives it to completion in its own goroutine
// (spec.md §4.F, §5).
package eventloop

import (
	"context"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/nthswap/xmrbtc-swap/coins"
	"github.com/nthswap/xmrbtc-swap/common"
	"github.com/nthswap/xmrbtc-swap/kraken"
	"github.com/nthswap/xmrbtc-swap/net"
	"github.com/nthswap/xmrbtc-swap/protocol/backend"
	"github.com/nthswap/xmrbtc-swap/protocol/xmrmaker"
)

var log = logging.Logger("eventloop")

// swapChanCap is the event loop's swap channel buffer (spec.md §4.F: "cap:
// implementation-chosen; drop-oldest is not acceptable — apply
// backpressure"). A full channel blocks OnExecutionSetup, which
// transitively backpressures new libp2p connections.
const swapChanCap = 16

// runner is the subset of xmrmaker's swap state the dispatcher needs: the
// net.SwapState methods every swap already exposes to the host, plus Run,
// which drives it to a terminal state.
type runner interface {
	net.SwapState
	Run()
}

// quote remembers what was offered to a peer during the Quote round, so the
// ExecutionSetup round that follows from the same peer (on a separate
// libp2p stream, with no amounts of its own) knows what it agreed to.
type quote struct {
	btcAmount coins.BitcoinAmount
	xmrAmount coins.PiconeroAmount
}

// Config bundles EventLoop's constructor arguments.
type Config struct {
	Backend  backend.Backend
	Host     *net.Host
	RateFeed kraken.Feed
	MaxBuy   coins.BitcoinAmount
}

// EventLoop implements net.Handler for the maker role and doubles as the
// dispatcher described in spec.md §4.F: OnExecutionSetup hands a freshly
// built swap to Dispatch over a bounded channel rather than running it
// itself, so a slow or stuck swap never blocks the libp2p stream handler
// that accepted it.
type EventLoop struct {
	backend  backend.Backend
	host     *net.Host
	rateFeed kraken.Feed
	maxBuy   coins.BitcoinAmount

	mu     sync.Mutex
	quotes map[peer.ID]quote
	active map[string]runner

	swapCh chan runner
}

var _ net.Handler = (*EventLoop)(nil)

// New constructs an EventLoop. Call SetHandlers(loop) on cfg.Host and then
// Dispatch(ctx) in its own goroutine before accepting connections.
func New(cfg *Config) *EventLoop {
	return &EventLoop{
		backend:  cfg.Backend,
		host:     cfg.Host,
		rateFeed: cfg.RateFeed,
		maxBuy:   cfg.MaxBuy,
		quotes:   make(map[peer.ID]quote),
		active:   make(map[string]runner),
		swapCh:   make(chan runner, swapChanCap),
	}
}

// OnQuoteRequest implements net.Handler. It rejects any request over
// max_buy and otherwise prices it at the feed's current rate, remembering
// the quoted amounts against p until either ExecutionSetup claims them or
// a new quote from the same peer replaces them.
func (e *EventLoop) OnQuoteRequest(p peer.ID, btcAmount uint64) (uint64, error) {
	requested := coins.NewBitcoinAmount(btcAmount)
	if requested > e.maxBuy {
		return 0, fmt.Errorf("requested %s exceeds configured max_buy %s", requested, e.maxBuy)
	}

	if e.rateFeed == nil {
		return 0, fmt.Errorf("%w: no rate feed available", common.ErrChainConnectivity)
	}
	rate, err := e.rateFeed.Rate()
	if err != nil {
		return 0, fmt.Errorf("%w: %s", common.ErrChainConnectivity, err)
	}

	xmrAmount, err := rate.ToXMR(requested.AsDecimal())
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	e.quotes[p] = quote{btcAmount: requested, xmrAmount: xmrAmount}
	e.mu.Unlock()

	log.Infof("quoted peer %s: %s for %s at rate %s", p, xmrAmount, requested, rate)
	return xmrAmount.AsPiconero(), nil
}

// OnExecutionSetup implements net.Handler. It runs the maker's side of the
// key exchange against the amounts this same peer was quoted, then pushes
// the resulting swap onto the dispatch channel rather than running it
// inline.
func (e *EventLoop) OnExecutionSetup(s *net.Stream) (net.SwapState, error) {
	p := s.Peer()

	e.mu.Lock()
	q, had := e.quotes[p]
	delete(e.quotes, p)
	e.mu.Unlock()
	if !had {
		return nil, fmt.Errorf("%w: execution setup from %s with no preceding quote", common.ErrProtocolViolation, p)
	}

	session := net.NewSessionFromPeer(e.host, p)
	swap, err := xmrmaker.NewFromIncomingRequest(e.backend.Ctx(), e.backend, session, s, q.btcAmount, q.xmrAmount)
	if err != nil {
		return nil, err
	}

	select {
	case e.swapCh <- swap:
	case <-e.backend.Ctx().Done():
		return nil, e.backend.Ctx().Err()
	}

	return swap, nil
}

// Dispatch reads swapCh until ctx is cancelled, spawning one goroutine per
// swap. It must run in its own goroutine for the lifetime of the event
// loop. On ctx cancellation it calls Exit on every swap still running
// (spec.md §5 "Cancellation": in-flight on-chain transactions are not
// rolled back, only the swap task itself is asked to stop).
func (e *EventLoop) Dispatch(ctx context.Context) {
	for {
		select {
		case s := <-e.swapCh:
			e.mu.Lock()
			e.active[s.ID()] = s
			e.mu.Unlock()
			go e.runIsolated(s)
		case <-ctx.Done():
			e.shutdown()
			return
		}
	}
}

// runIsolated runs s to completion, recovering any panic so that one
// misbehaving swap task can never take down the dispatcher (spec.md §5
// "Failure isolation").
func (e *EventLoop) runIsolated(s runner) {
	defer func() {
		e.mu.Lock()
		delete(e.active, s.ID())
		e.mu.Unlock()

		if r := recover(); r != nil {
			log.Errorf("swap %s: task panicked: %v", s.ID(), r)
		}
	}()

	s.Run()
	log.Infof("swap %s: task finished", s.ID())
}

func (e *EventLoop) shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, s := range e.active {
		if err := s.Exit(); err != nil {
			log.Warnf("swap %s: error exiting on shutdown: %s", id, err)
		}
	}
}
