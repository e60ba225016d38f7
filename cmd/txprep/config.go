// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/txprep/feetier"
	"github.com/btcsuite/txprep/internal/cfgutil"
	"github.com/btcsuite/txprep/keypath"
	"github.com/btcsuite/txprep/netparams"
	"github.com/btcsuite/txprep/pkg/unit"
	"github.com/btcsuite/txprep/wallet"
	"github.com/btcsuite/txprep/wallet/txauthor"
	"github.com/btcsuite/txprep/wallet/txsizes"
	"github.com/btcsuite/txprep/workpool"
	flags "github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	defaultConfigFilename = "txprep.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "txprep.log"
	defaultNetwork        = "mainnet"
	defaultPoolName       = "prepare"
	defaultPoolMax        = 4
	defaultSizeModel      = "p2wpkh"
	defaultStrategy       = "largest"
	defaultRateRefresh    = time.Minute
	defaultRateJitter     = 0.1
)

var (
	txprepHomeDir     = btcutil.AppDataDir("txprep", false)
	defaultConfigFile = filepath.Join(txprepHomeDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(txprepHomeDir, defaultLogDirname)

	defaultSlowRate   = cfgutil.NewFeeRateFlag(unit.SatPerVByte(1).FeePerKVByte())
	defaultNormalRate = cfgutil.NewFeeRateFlag(unit.SatPerVByte(5).FeePerKVByte())
	defaultFastRate   = cfgutil.NewFeeRateFlag(unit.SatPerVByte(20).FeePerKVByte())
)

type config struct {
	// General application behavior
	ConfigFile  *cfgutil.ExplicitString `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool                    `short:"V" long:"version" description:"Display version information and exit"`
	Network     string                  `long:"network" description:"Network recipients and change addresses belong to {mainnet, testnet3, testnet4, regtest, simnet}"`
	DebugLevel  string                  `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	LogDir      string                  `long:"logdir" description:"Directory to log output."`
	NoFileLog   bool                    `long:"nofilelogging" description:"Only log to standard error"`
	MetricsAddr string                  `long:"metricsaddr" description:"Serve prometheus metrics on this interface/port"`

	// Input files
	SnapshotFile string   `long:"snapshot" description:"JSON file holding the unspent outputs to spend from"`
	IntentFiles  []string `long:"intent" description:"JSON file holding one or more payment intents; may be repeated"`
	PSBT         bool     `long:"psbt" description:"Print base64 PSBT packets instead of JSON"`

	// Fee policy
	SlowRate      *cfgutil.FeeRateFlag `long:"slowrate" description:"Fee rate of the slow tier in sat/vB"`
	NormalRate    *cfgutil.FeeRateFlag `long:"normalrate" description:"Fee rate of the normal tier in sat/vB"`
	FastRate      *cfgutil.FeeRateFlag `long:"fastrate" description:"Fee rate of the fast tier in sat/vB"`
	MaxFeeRate    *cfgutil.FeeRateFlag `long:"maxfeerate" description:"Reject resolved fee rates above this sat/vB rate"`
	RateRefresh   time.Duration        `long:"raterefresh" description:"How often the fee rate cache is refreshed"`
	RateJitter    float64              `long:"ratejitter" description:"Fraction in [0, 1) by which each refresh interval is randomly shortened or lengthened"`
	Dust          *cfgutil.AmountFlag  `long:"dust" description:"Dust threshold in BTC, or satoshis with a sat suffix; 0 uses the relay dust limit of --sizemodel"`
	SizeModel     string               `long:"sizemodel" description:"Size model used for fee estimation {p2wpkh, p2pkh, p2tr}"`
	Strategy      string               `long:"strategy" description:"Coin selection strategy {largest, random}"`
	MaxIterations int                  `long:"maxiterations" description:"Upper bound on input selection iterations"`

	// Keys
	AccountXPub       string `long:"xpub" description:"Extended public key of the account the snapshot belongs to"`
	AccountPath       string `long:"accountpath" description:"Derivation path of --xpub (default m/84'/coin'/0')"`
	MasterFingerprint string `long:"masterfingerprint" description:"Hex fingerprint of the master key --xpub descends from, recorded in PSBT derivations"`
	ChangeAddr        string `long:"changeaddr" description:"Address receiving change; derived from --xpub when unset"`
	ChangeIndex       uint32 `long:"changeindex" description:"Index on the internal branch of --xpub used for change"`

	// Worker pool
	PoolName      string        `long:"poolname" description:"Name prefix of the preparation worker pool"`
	PoolCore      int           `long:"poolcore" description:"Number of preparation workers kept alive"`
	PoolMax       int           `long:"poolmax" description:"Maximum number of preparation workers"`
	PoolKeepAlive time.Duration `long:"poolkeepalive" description:"How long extra workers wait for work before exiting"`

	// Derived values
	params    *netparams.Params
	sizeModel txsizes.Model
	strategy  txauthor.CoinSelectionStrategy
	keyring   keypath.Keyring

	masterFingerprint fn.Option[uint32]
}

// cleanAndExpandPath expands environement variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(txprepHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace":
		fallthrough
	case "debug":
		fallthrough
	case "info":
		fallthrough
	case "warn":
		fallthrough
	case "error":
		fallthrough
	case "critical":
		return true
	}
	return false
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "the specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "the specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// rateTable returns the fee rate table described by the tier flags.
func (c *config) rateTable() feetier.RateTable {
	return feetier.RateTable{
		feetier.Slow:   c.SlowRate.SatPerKVByte,
		feetier.Normal: c.NormalRate.SatPerKVByte,
		feetier.Fast:   c.FastRate.SatPerKVByte,
	}
}

// poolConfig returns the configuration of the preparation worker pool.
func (c *config) poolConfig() workpool.Config {
	return workpool.Config{
		CorePoolSize: c.PoolCore,
		MaxPoolSize:  c.PoolMax,
		KeepAlive:    c.PoolKeepAlive,
		NamePrefix:   c.PoolName,
	}
}

// preparerConfig returns the preparer configuration minus the collaborators
// that are created at runtime.
func (c *config) preparerConfig() wallet.Config {
	var checker txauthor.PathChecker
	if len(c.keyring) != 0 {
		checker = c.keyring
	}

	return wallet.Config{
		ChainParams:   c.params.Params,
		SizeModel:     c.sizeModel,
		DustThreshold: c.Dust.Amount,
		Strategy:      c.strategy,
		MaxIterations: c.MaxIterations,
		MaxFeeRate:    c.MaxFeeRate.SatPerKVByte,
		Checker:       checker,
	}
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in txprep functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := config{
		ConfigFile:    cfgutil.NewExplicitString(defaultConfigFile),
		Network:       defaultNetwork,
		DebugLevel:    defaultLogLevel,
		LogDir:        defaultLogDir,
		SlowRate:      defaultSlowRate,
		NormalRate:    defaultNormalRate,
		FastRate:      defaultFastRate,
		MaxFeeRate:    cfgutil.NewFeeRateFlag(wallet.DefaultMaxFeeRate),
		RateRefresh:   defaultRateRefresh,
		RateJitter:    defaultRateJitter,
		Dust:          cfgutil.NewAmountFlag(0),
		SizeModel:     defaultSizeModel,
		Strategy:      defaultStrategy,
		MaxIterations: txauthor.DefaultMaxIterations,
		PoolName:      defaultPoolName,
		PoolMax:       defaultPoolMax,
		PoolKeepAlive: workpool.DefaultKeepAlive,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err := preParser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// Load additional config from file.  A missing default config file
	// is not an error, a missing explicitly named one is.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	configFilePath := cleanAndExpandPath(preCfg.ConfigFile.Value)
	exists, err := cfgutil.FileExists(configFilePath)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case exists:
		err := flags.NewIniParser(parser).ParseFile(configFilePath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, nil, err
		}

	case preCfg.ConfigFile.ExplicitlySet():
		err := fmt.Errorf("config file %v does not exist",
			configFilePath)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err

	default:
		configFileError = fmt.Errorf("no config file at %v, using "+
			"defaults", configFilePath)
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	if err := cfg.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintf(os.Stderr, "Use %s -h to show usage\n", appName)
		return nil, nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	if !cfg.NoFileLog {
		cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
		cfg.LogDir = filepath.Join(cfg.LogDir, cfg.params.Name)
		err := initLogRotator(filepath.Join(cfg.LogDir,
			defaultLogFilename))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("loadConfig: %w", err)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	if configFileError != nil {
		log.Debugf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}

// validate checks option combinations and fills in the derived values.
func (c *config) validate() error {
	const funcName = "loadConfig"

	params, err := netparams.ByName(c.Network)
	if err != nil {
		return fmt.Errorf("%s: %w", funcName, err)
	}
	c.params = params

	c.sizeModel, err = txsizes.ModelByName(c.SizeModel)
	if err != nil {
		return fmt.Errorf("%s: %w", funcName, err)
	}

	switch strings.ToLower(c.Strategy) {
	case "largest":
		c.strategy = txauthor.CoinSelectionLargest
	case "random":
		c.strategy = txauthor.CoinSelectionRandom
	default:
		return fmt.Errorf("%s: unknown coin selection strategy %q",
			funcName, c.Strategy)
	}

	if err := c.rateTable().Validate(); err != nil {
		return fmt.Errorf("%s: %w", funcName, err)
	}
	if c.RateRefresh <= 0 || c.RateJitter < 0 || c.RateJitter >= 1 {
		return fmt.Errorf("%s: %w: refresh=%v jitter=%v", funcName,
			feetier.ErrInvalidJitter, c.RateRefresh, c.RateJitter)
	}

	if err := c.poolConfig().Validate(); err != nil {
		return fmt.Errorf("%s: %w", funcName, err)
	}

	if c.SnapshotFile == "" {
		return fmt.Errorf("%s: --snapshot is required", funcName)
	}
	if len(c.IntentFiles) == 0 {
		return fmt.Errorf("%s: at least one --intent is required",
			funcName)
	}

	if c.MetricsAddr != "" {
		c.MetricsAddr, err = cfgutil.NormalizeAddress(
			c.MetricsAddr, c.params.MetricsPort,
		)
		if err != nil {
			return fmt.Errorf("%s: invalid --metricsaddr: %w",
				funcName, err)
		}
	}

	if c.AccountXPub != "" {
		path := keypath.NewPath(
			84+keypath.HardenedKeyStart,
			c.params.CoinType+keypath.HardenedKeyStart,
			keypath.HardenedKeyStart,
		)
		if c.AccountPath != "" {
			path, err = keypath.ParsePath(c.AccountPath)
			if err != nil {
				return fmt.Errorf("%s: %w", funcName, err)
			}
		}

		account, err := keypath.ParseAccountKey(
			path, c.AccountXPub, c.params.Params,
		)
		if err != nil {
			return fmt.Errorf("%s: invalid --xpub: %w", funcName,
				err)
		}
		c.keyring = keypath.Keyring{account}
	}

	if c.MasterFingerprint != "" {
		fingerprint, err := parseFingerprint(c.MasterFingerprint)
		if err != nil {
			return fmt.Errorf("%s: invalid --masterfingerprint: %w",
				funcName, err)
		}
		c.masterFingerprint = fn.Some(fingerprint)
	}

	if c.ChangeAddr == "" && len(c.keyring) == 0 {
		return fmt.Errorf("%s: one of --changeaddr or --xpub is "+
			"required", funcName)
	}
	if c.ChangeAddr != "" {
		_, err := txauthor.PayToRecipientScript(
			c.ChangeAddr, c.params.Params,
		)
		if err != nil {
			return fmt.Errorf("%s: invalid --changeaddr: %w",
				funcName, err)
		}
	}

	return nil
}
