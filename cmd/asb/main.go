// Package main is the maker daemon: it loads the operator's config, opens
// the wallets and database, and runs the event loop described in spec.md
// §4.F until told to stop (original_source/swap/src/bin/asb.rs).
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	logging "github.com/ipfs/go-log"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/urfave/cli/v2"

	"github.com/nthswap/xmrbtc-swap/bitcoin"
	"github.com/nthswap/xmrbtc-swap/coins"
	"github.com/nthswap/xmrbtc-swap/common"
	"github.com/nthswap/xmrbtc-swap/db"
	"github.com/nthswap/xmrbtc-swap/kraken"
	"github.com/nthswap/xmrbtc-swap/monero"
	"github.com/nthswap/xmrbtc-swap/net"
	"github.com/nthswap/xmrbtc-swap/protocol/backend"
	"github.com/nthswap/xmrbtc-swap/protocol/eventloop"
)

var log = logging.Logger("asbcli")

// walletName is the Monero wallet name reported in the startup check of
// the configured monero-wallet-rpc endpoint. This binary does not open or
// create it: swaps use whichever wallet monero-wallet-rpc has open.
const walletName = "asb-wallet"

const flagConfig = "config"
const flagMaxBuy = "max-buy"
const flagEnv = "env"

func main() {
	if err := logging.SetLogLevel("*", "info"); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	app := &cli.App{
		Name:  "asb",
		Usage: "Automated Swap Backend: the maker side of a BTC/XMR atomic swap",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagConfig,
				Usage: "path to the asb config file",
			},
			&cli.StringFlag{
				Name:  flagEnv,
				Usage: "network environment: mainnet or testnet",
				Value: "testnet",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "run the maker daemon, accepting swaps up to --max-buy",
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:     flagMaxBuy,
						Usage:    "maximum BTC amount this maker will buy in a single swap",
						Required: true,
					},
				},
				Action: runStart,
			},
			{
				Name:   "history",
				Usage:  "print every swap this maker has recorded",
				Action: runHistory,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Errorf("%s", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*common.Config, error) {
	path := c.String(flagConfig)
	if path == "" {
		var err error
		path, err = common.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	cfg, ok, err := common.ReadConfig(path)
	if err != nil {
		return nil, err
	}
	if ok {
		return cfg, nil
	}

	log.Infof("no config found at %s, running initial setup", path)
	return common.InitialSetup(path, bufio.NewReader(os.Stdin), os.Stdout)
}

func envFromFlag(c *cli.Context) (*common.EnvConfig, error) {
	switch c.String(flagEnv) {
	case "mainnet":
		return common.ConfigDefaultsForEnv(common.Mainnet), nil
	case "testnet":
		return common.ConfigDefaultsForEnv(common.Testnet), nil
	default:
		return nil, fmt.Errorf("%w: unknown environment %q", common.ErrConfiguration, c.String(flagEnv))
	}
}

func runStart(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	env, err := envFromFlag(c)
	if err != nil {
		return err
	}

	maxBuyBTC := c.Float64(flagMaxBuy)

	log.Infof("database and seed stored under %s", cfg.Data.Dir)
	database, err := db.NewDatabase(filepath.Join(cfg.Data.Dir, "database"))
	if err != nil {
		return err
	}
	defer database.Close()

	btcClient, err := bitcoin.NewClient(&rpcclient.ConnConfig{
		Host:         cfg.Bitcoin.ElectrumRPCURL,
		HTTPPostMode: true,
		DisableTLS:   false,
	}, env.BitcoinSyncInterval)
	if err != nil {
		return err
	}

	walletDB, err := walletdb.Create("bdb", filepath.Join(cfg.Data.Dir, "wallet", "wallet.db"), true, 60*time.Second)
	if err != nil {
		return fmt.Errorf("%w: failed to open bitcoin wallet database: %s", common.ErrConfiguration, err)
	}

	btcWallet, err := bitcoin.Open(walletDB, []byte("public"), []byte("private"), env.BitcoinNetwork,
		btcClient, env.BitcoinFinalityConfirmations)
	if err != nil {
		return err
	}

	depositAddr, err := btcWallet.NewAddress()
	if err != nil {
		return err
	}
	log.Infof("BTC deposit address: %s", depositAddr)

	xmrWalletClient := monero.NewWalletClient(cfg.Monero.WalletRPCURL, env.MoneroNetwork)
	if _, err := xmrWalletClient.GetAddress(); err != nil {
		log.Warnf("%s not yet open against %s, swaps need a wallet open there: %s",
			walletName, cfg.Monero.WalletRPCURL, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := backend.New(&backend.Config{
		Ctx:         ctx,
		Env:         env,
		BTCWallet:   btcWallet,
		BTCClient:   btcClient,
		XMRRPCURL:   cfg.Monero.WalletRPCURL,
		Database:    database,
		SwapTimeout: 24 * time.Hour,
	})
	if err != nil {
		return err
	}

	listenIP, port, err := splitListenMultiaddr(cfg.Network.Listen)
	if err != nil {
		return err
	}

	host, err := net.NewHost(&net.Config{
		Ctx:        ctx,
		DataDir:    cfg.Data.Dir,
		Port:       port,
		KeyFile:    filepath.Join(cfg.Data.Dir, "net.key"),
		ProtocolID: "/xmrbtc-swap/1",
		ListenIP:   listenIP,
	})
	if err != nil {
		return err
	}

	feed, err := kraken.Dial(ctx)
	if err != nil {
		log.Warnf("failed to connect to kraken, quote requests will be declined: %s", err)
	}
	var rateFeed kraken.Feed
	if feed != nil {
		rateFeed = feed
	}

	maxBuySats, err := btcAmountFromFloat(maxBuyBTC)
	if err != nil {
		return err
	}

	loop := eventloop.New(&eventloop.Config{
		Backend:  b,
		Host:     host,
		RateFeed: rateFeed,
		MaxBuy:   maxBuySats,
	})
	host.SetHandlers(loop)

	log.Infof("our peer id is %s", host.PeerID())
	for _, addr := range host.Addrs() {
		log.Infof("listening on %s", addr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("shutting down")
		cancel()
	}()

	loop.Dispatch(ctx)
	return host.Stop()
}

func runHistory(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	database, err := db.NewDatabase(filepath.Join(cfg.Data.Dir, "database"))
	if err != nil {
		return err
	}
	defer database.Close()

	swaps, err := database.GetAllSwaps()
	if err != nil {
		return err
	}

	fmt.Printf("%-36s  %s\n", "SWAP ID", "STATE")
	for _, s := range swaps {
		fmt.Printf("%-36s  %s\n", s.ID, s.Status)
	}
	return nil
}

func splitListenMultiaddr(addr string) (string, uint16, error) {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return "", 0, fmt.Errorf("%w: invalid network.listen multiaddress: %s", common.ErrConfiguration, err)
	}
	ip, err := maddr.ValueForProtocol(ma.P_IP4)
	if err != nil {
		ip, err = maddr.ValueForProtocol(ma.P_IP6)
		if err != nil {
			return "", 0, fmt.Errorf("%w: network.listen must be an /ip4 or /ip6 multiaddress", common.ErrConfiguration)
		}
	}
	portStr, err := maddr.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return "", 0, fmt.Errorf("%w: network.listen must include a /tcp component", common.ErrConfiguration)
	}
	var port uint16
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return "", 0, fmt.Errorf("%w: invalid tcp port %q", common.ErrConfiguration, portStr)
	}
	return ip, port, nil
}

func btcAmountFromFloat(btc float64) (coins.BitcoinAmount, error) {
	if btc <= 0 {
		return 0, fmt.Errorf("%w: max-buy must be positive", common.ErrConfiguration)
	}
	return coins.NewBitcoinAmount(uint64(btc * coins.SatsPerBTC)), nil
}
