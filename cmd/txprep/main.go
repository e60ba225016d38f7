// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/btcsuite/txprep/feetier"
	"github.com/btcsuite/txprep/wallet"
	"github.com/btcsuite/txprep/wallet/txauthor"
	"github.com/btcsuite/txprep/workpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Work around defer not working after os.Exit.
	if err := txprepMain(); err != nil {
		os.Exit(1)
	}
}

// txprepMain is a work-around main function that is required since deferred
// functions (such as log flushing) are not called with calls to os.Exit.
// Instead, main runs this function and checks for a non-nil error, at which
// point any defers have already run, and if the error is non-nil, the program
// can be exited with an error exit status.
func txprepMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	ctx, stop := interruptContext(context.Background())
	defer stop()

	var registerer prometheus.Registerer
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(
				collectors.ProcessCollectorOpts{},
			),
		)
		registerer = reg

		shutdown := serveMetrics(cfg.MetricsAddr, reg)
		defer shutdown()
	}

	refresh, err := feetier.NewJitterTicker(cfg.RateRefresh, cfg.RateJitter)
	if err != nil {
		log.Errorf("Unable to create fee rate ticker: %v", err)
		return err
	}
	rates, err := feetier.NewRateCache(feetier.RateCacheConfig{
		Source:        feetier.StaticRates(cfg.rateTable()),
		RefreshTicker: refresh,
	})
	if err != nil {
		log.Errorf("Unable to create fee rate cache: %v", err)
		return err
	}
	if err := rates.Start(); err != nil {
		log.Errorf("Unable to start fee rate cache: %v", err)
		return err
	}
	defer rates.Stop()

	var snapshots wallet.SnapshotStore
	snap, err := loadSnapshot(cfg.SnapshotFile)
	if err != nil {
		log.Errorf("Unable to load snapshot: %v", err)
		return err
	}
	snapshots.Publish(snap)

	intents, err := loadIntents(cfg.IntentFiles)
	if err != nil {
		log.Errorf("Unable to load intents: %v", err)
		return err
	}

	change, err := changeSource(cfg)
	if err != nil {
		log.Errorf("Unable to set up change address: %v", err)
		return err
	}

	preparerCfg := cfg.preparerConfig()
	preparerCfg.Rates = rates
	preparerCfg.Change = change
	preparer, err := wallet.New(preparerCfg)
	if err != nil {
		log.Errorf("Unable to create preparer: %v", err)
		return err
	}

	pools := workpool.NewRegistry()
	defer pools.StopAll()

	poolCfg := cfg.poolConfig()
	poolCfg.Registerer = registerer
	pool, err := workpool.New(poolCfg)
	if err != nil {
		log.Errorf("Unable to create worker pool: %v", err)
		return err
	}
	if err := pools.Register(pool); err != nil {
		log.Errorf("Unable to start worker pool: %v", err)
		return err
	}

	log.Infof("Preparing %d %s from %d %s at height %d", len(intents),
		pickNoun(len(intents), "transaction", "transactions"),
		snap.Len(), pickNoun(snap.Len(), "output", "outputs"),
		snap.Height())

	txs, err := prepareAll(ctx, pools, cfg.PoolName, preparer, &snapshots,
		intents)

	// Print whatever was prepared even if some intents failed.
	if printErr := printResults(os.Stdout, cfg, txs); printErr != nil {
		log.Errorf("Unable to print results: %v", printErr)
		if err == nil {
			err = printErr
		}
	}

	return err
}

// prepareAll prepares every intent concurrently on the named pool.  Intents
// are independent: a failure is logged and reported but does not cancel the
// others.  The returned slice is index aligned with intents and holds nil for
// failed intents.  If an intent cannot be submitted, no further intents are
// submitted but those already running are still waited for.
func prepareAll(ctx context.Context, pools *workpool.Registry, poolName string,
	preparer *wallet.Preparer, snapshots *wallet.SnapshotStore,
	intents []*wallet.Intent) ([]*txauthor.PreparedTx, error) {

	pool, err := pools.Get(poolName)
	if err != nil {
		return nil, err
	}

	results := make([]*txauthor.PreparedTx, len(intents))

	var (
		g         errgroup.Group
		submitErr error
	)
	for i, intent := range intents {
		task, err := submitIntent(ctx, pool, preparer, snapshots, intent)
		if err != nil {
			log.Errorf("Unable to submit intent %d: %v", i, err)
			submitErr = fmt.Errorf("intent %d: %w", i, err)
			break
		}

		g.Go(func() error {
			tx, err := task.Wait(ctx)
			if err != nil {
				log.Errorf("Intent %d failed on %s: %v", i,
					task.Worker(), err)
				return fmt.Errorf("intent %d: %w", i, err)
			}

			log.Debugf("Intent %d prepared on %s", i, task.Worker())
			results[i] = tx
			return nil
		})
	}

	return results, errors.Join(submitErr, g.Wait())
}

// submitIntent queues the preparation of intent against the current snapshot.
func submitIntent(ctx context.Context, pool *workpool.Pool,
	preparer *wallet.Preparer, snapshots *wallet.SnapshotStore,
	intent *wallet.Intent) (*workpool.Task[*txauthor.PreparedTx], error) {

	if intent == nil {
		return nil, wallet.ErrNilIntent
	}

	snap, err := snapshots.Current()
	if err != nil {
		return nil, err
	}

	return preparer.PrepareAsync(ctx, pool, snap, intent)
}

// printResults writes the prepared transactions as a JSON array, or one
// base64 PSBT per line when --psbt is set.  Failed intents are skipped.
func printResults(w io.Writer, cfg *config,
	txs []*txauthor.PreparedTx) error {

	prepared := make([]*txauthor.PreparedTx, 0, len(txs))
	for _, tx := range txs {
		if tx != nil {
			prepared = append(prepared, tx)
		}
	}

	if !cfg.PSBT {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(prepared)
	}

	keys := keySource(cfg)
	fingerprint := keyFingerprint(cfg)
	for _, tx := range prepared {
		packet, err := tx.Packet(cfg.params.Params, keys, fingerprint)
		if err != nil {
			return err
		}
		encoded, err := packet.B64Encode()
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, encoded); err != nil {
			return err
		}
	}

	return nil
}

// serveMetrics serves the registry on addr until the returned function is
// called.
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry: reg,
	}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("Metrics listening on %s", addr)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server failed: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(
			context.Background(), 5*time.Second,
		)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Warnf("Unable to stop metrics server: %v", err)
		}
	}
}
