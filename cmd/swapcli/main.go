// Package main is the taker CLI: it dials a maker, requests a quote, and
// if accepted drives the swap to completion via protocol/xmrtaker
// (original_source/swap/src/bin/swap_cli.rs).
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	logging "github.com/ipfs/go-log"
	"github.com/urfave/cli/v2"

	"github.com/nthswap/xmrbtc-swap/bitcoin"
	"github.com/nthswap/xmrbtc-swap/coins"
	"github.com/nthswap/xmrbtc-swap/common"
	"github.com/nthswap/xmrbtc-swap/db"
	"github.com/nthswap/xmrbtc-swap/net"
	"github.com/nthswap/xmrbtc-swap/protocol/backend"
	"github.com/nthswap/xmrbtc-swap/protocol/xmrtaker"
)

var log = logging.Logger("swapcli")

const flagConfig = "config"
const flagAmount = "amount"
const flagMultiaddr = "multiaddr"
const flagEnv = "env"

func main() {
	if err := logging.SetLogLevel("*", "info"); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	app := &cli.App{
		Name:  "swapcli",
		Usage: "take a quoted swap from a maker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagConfig,
				Usage: "path to the taker config file",
			},
			&cli.StringFlag{
				Name:  flagEnv,
				Usage: "network environment: mainnet or testnet",
				Value: "testnet",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "swap",
				Usage: "request a quote from a maker and, if accepted, run the swap",
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:     flagAmount,
						Usage:    "BTC amount to offer",
						Required: true,
					},
					&cli.StringFlag{
						Name:     flagMultiaddr,
						Usage:    "maker's libp2p multiaddress, including /p2p/<peer id>",
						Required: true,
					},
				},
				Action: runSwap,
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

func runSwap(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	env := common.ConfigDefaultsForEnv(common.Testnet)
	if c.String(flagEnv) == "mainnet" {
		env = common.ConfigDefaultsForEnv(common.Mainnet)
	}

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

	host, err := net.NewHost(&net.Config{
		Ctx:        ctx,
		DataDir:    cfg.Data.Dir,
		Port:       0,
		KeyFile:    filepath.Join(cfg.Data.Dir, "net.key"),
		ProtocolID: "/xmrbtc-swap/1",
		ListenIP:   "0.0.0.0",
	})
	if err != nil {
		return err
	}
	defer host.Stop()

	session, err := net.NewSession(host, c.String(flagMultiaddr))
	if err != nil {
		return err
	}
	if err := session.Dial(ctx); err != nil {
		return err
	}

	btcAmount, err := btcAmountFromFloat(c.Float64(flagAmount))
	if err != nil {
		return err
	}

	xmrAmount, err := session.RequestSpotPrice(ctx, btcAmount.AsSats())
	if err != nil {
		return err
	}
	if xmrAmount == 0 {
		return fmt.Errorf("%w: maker declined the requested amount", common.ErrPeerFailure)
	}
	log.Infof("quoted %s for %s", coins.PiconeroAmount(xmrAmount), btcAmount)

	swap, err := xmrtaker.NewFromExecutionSetup(ctx, b, session, btcAmount, coins.PiconeroAmount(xmrAmount))
	if err != nil {
		return err
	}

	swap.Run()
	log.Infof("swap %s finished", swap.ID())
	return nil
}

func btcAmountFromFloat(btc float64) (coins.BitcoinAmount, error) {
	if btc <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", common.ErrConfiguration)
	}
	return coins.NewBitcoinAmount(uint64(btc * coins.SatsPerBTC)), nil
}
