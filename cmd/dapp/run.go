package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"physdapp/internal/config"
	"physdapp/internal/dapp"
	"physdapp/internal/logging"
	"physdapp/internal/observerproto"
	"physdapp/internal/persistence/indexdb"
	persistlog "physdapp/internal/persistence/log"
	"physdapp/internal/rollup"
	"physdapp/internal/sim/tuning"
	"physdapp/internal/transport/observer"
)

func newRunCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the rollup host and handle advance/inspect requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			err = run(cmd.Context(), cfg)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	if err := config.BindFlags(cmd.Flags(), v); err != nil {
		panic(err)
	}
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	logger := logging.Component("dapp")
	logger.Info().Str("url", cfg.RollupURL).Msg("HTTP rollup server url")

	tune, err := loadTuning(cfg.TuningPath, logger)
	if err != nil {
		return err
	}

	client, err := rollup.New(cfg.RollupURL, rollup.Options{
		MaxRetries: cfg.MaxRetries,
		Logger:     logging.Component("rollup"),
	})
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	opts := []dapp.Option{
		dapp.WithLogger(logger.With().Str("run_id", runID[:8]).Logger()),
		dapp.WithRunID(runID),
	}

	if !cfg.DisableJournal {
		j := persistlog.NewInputJournal(cfg.DataDir)
		defer func() {
			if err := j.Close(); err != nil {
				logger.Warn().Err(err).Msg("close journal")
			}
		}()
		opts = append(opts, dapp.WithJournal(j))
	}

	if !cfg.DisableDB {
		idx, err := indexdb.OpenSQLite(cfg.IndexPath(), logging.Component("indexdb"))
		if err != nil {
			return errors.Wrap(err, "open index")
		}
		defer func() {
			if err := idx.Close(); err != nil {
				logger.Warn().Err(err).Msg("close index")
			}
			if n := idx.Dropped(); n > 0 {
				logger.Warn().Uint64("rows", n).Msg("index dropped rows")
			}
		}()
		idx.RecordRun(indexdb.RunRow{
			RunID:      runID,
			StartedAt:  time.Now(),
			RollupURL:  cfg.RollupURL,
			StepRateHz: tune.StepRateHz,
			SimSeconds: tune.SimSeconds,
		})
		opts = append(opts, dapp.WithIndex(idx))
	}

	if cfg.ObserverAddr != "" {
		obs := observer.NewServer(observerproto.WorldParams{
			StepRateHz:  tune.StepRateHz,
			StepsPerAdd: tune.StepsPerAdd(),
			Gravity:     tune.Gravity,
		}, logging.Component("observer"))
		go func() {
			if err := obs.ListenAndServe(ctx, cfg.ObserverAddr); err != nil {
				logger.Error().Err(err).Msg("observer server")
			}
		}()
		opts = append(opts, dapp.WithFrames(obs))
	}

	app, err := dapp.New(client, tune, opts...)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

// loadTuning falls back to defaults only when the file does not exist.
func loadTuning(path string, logger zerolog.Logger) (tuning.Tuning, error) {
	if path == "" {
		return tuning.Defaults(), nil
	}
	t, err := tuning.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info().Str("path", path).Msg("tuning not found; using defaults")
			return tuning.Defaults(), nil
		}
		return t, errors.Wrap(err, "load tuning")
	}
	return t, nil
}
