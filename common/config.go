package common

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/naoina/toml"
)

// Config is the on-disk configuration for the maker daemon, loaded from a
// TOML file. Field names intentionally mirror spec.md §6.
type Config struct {
	Data struct {
		Dir string `toml:"dir"`
	} `toml:"data"`

	Network struct {
		Listen string `toml:"listen"` // multiaddress
	} `toml:"network"`

	Bitcoin struct {
		ElectrumRPCURL string `toml:"electrum_rpc_url"`
	} `toml:"bitcoin"`

	Monero struct {
		WalletRPCURL string `toml:"wallet_rpc_url"`
	} `toml:"monero"`
}

// DefaultConfigPath returns the per-OS default location for the config file,
// e.g. $XDG_CONFIG_HOME/asb/config.toml.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%w: could not determine config directory: %s", ErrConfiguration, err)
	}
	return filepath.Join(dir, "asb", "config.toml"), nil
}

// ReadConfig reads and parses the TOML config at path. A missing file is not
// an error: it signals the caller to run InitialSetup.
func ReadConfig(path string) (*Config, bool, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s", ErrConfiguration, err)
	}

	cfg := new(Config)
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, false, fmt.Errorf("%w: invalid config at %s: %s", ErrConfiguration, path, err)
	}
	return cfg, true, nil
}

// WriteConfig serializes cfg as TOML to path, creating parent directories as
// needed.
func WriteConfig(path string, cfg *Config) error {
	if err := MakeDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("%w: %s", ErrConfiguration, err)
	}

	b, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrConfiguration, err)
	}

	return os.WriteFile(path, b, 0o600)
}

// InitialSetup prompts the operator for the handful of values needed to run
// on testnet and writes them to path. It mirrors the interactive flow of
// original_source/swap/src/bin/asb.rs's query_user_for_initial_testnet_config.
func InitialSetup(path string, in *bufio.Reader, out *os.File) (*Config, error) {
	cfg := new(Config)

	dataDir, err := defaultDataDir()
	if err != nil {
		return nil, err
	}
	cfg.Data.Dir = dataDir

	cfg.Network.Listen = prompt(in, out,
		"Listen multiaddress", "/ip4/0.0.0.0/tcp/9939")
	cfg.Bitcoin.ElectrumRPCURL = prompt(in, out,
		"Electrum RPC URL", "ssl://electrum.blockstream.info:60002")
	cfg.Monero.WalletRPCURL = prompt(in, out,
		"monero-wallet-rpc URL", "http://127.0.0.1:38083/json_rpc")

	if err := WriteConfig(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func prompt(in *bufio.Reader, out *os.File, label, def string) string {
	fmt.Fprintf(out, "%s [%s]: ", label, def)
	line, _ := in.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func defaultDataDir() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrConfiguration, err)
	}
	return filepath.Join(dir, ".asb"), nil
}
