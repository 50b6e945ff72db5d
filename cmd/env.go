package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ecm-cli/internal/config"
	"github.com/sells-group/ecm-cli/internal/dataset"
	"github.com/sells-group/ecm-cli/internal/fetcher"
	"github.com/sells-group/ecm-cli/internal/lookup"
	"github.com/sells-group/ecm-cli/internal/optimizer"
	"github.com/sells-group/ecm-cli/internal/resilience"
	"github.com/sells-group/ecm-cli/internal/solver"
	"github.com/sells-group/ecm-cli/internal/store"
)

// recommendEnv holds the lookup tables, optimizer and optional store used
// by the recommend, batch and serve commands.
type recommendEnv struct {
	Store     store.Store // may be nil
	Tables    *lookup.Tables
	Optimizer *optimizer.Optimizer
}

// Close releases resources held by the environment.
func (e *recommendEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured store, retrying transient
// failures such as a database that is still starting.
func initStore(ctx context.Context) (store.Store, error) {
	retry := resilience.DefaultRetryConfig()
	if cfg.Store.ConnectAttempts > 0 {
		retry.MaxAttempts = cfg.Store.ConnectAttempts
	}
	retry.OnRetry = resilience.RetryLogger("open store")

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (store.Store, error) {
		var (
			st  store.Store
			err error
		)
		switch cfg.Store.Driver {
		case "sqlite":
			st, err = store.NewSQLite(cfg.Store.DatabaseURL)
		case "postgres":
			st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		default:
			return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
		}
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		return st, nil
	})
}

// initRecommend validates the config for mode, loads the dataset and builds
// the optimizer. The store is opened when needStore is set or the dataset
// lives in it. Callers should defer env.Close().
func initRecommend(ctx context.Context, mode string, needStore bool) (*recommendEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &recommendEnv{}
	if needStore || cfg.Data.Source == config.SourceStore {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}

	ds, err := loadDataset(ctx, env.Store)
	if err != nil {
		env.Close()
		return nil, err
	}

	tables, err := lookup.New(cfg.Catalog, ds)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "build lookup tables")
	}
	env.Tables = tables
	env.Optimizer = optimizer.New(tables,
		solver.NewBranchAndBound(solver.Options{NodeLimit: cfg.Solver.NodeLimit}),
		optimizer.Options{
			Builder: optimizer.BuilderOptions{
				CollapseConflicts: cfg.Solver.CollapseConflicts,
				RequireCoverage:   cfg.Optimize.RequireCoverage,
			},
			Timeout: cfg.Solver.Timeout(),
		},
	)

	zap.L().Info("lookup tables ready",
		zap.String("source", cfg.Data.Source),
		zap.Int("measures", len(ds.Measures)),
		zap.Int("savings", len(ds.Savings)),
		zap.Int("baselines", len(ds.Baselines)),
	)
	return env, nil
}

func loadDataset(ctx context.Context, st store.Store) (*dataset.Dataset, error) {
	if cfg.Data.Source == config.SourceStore {
		ds, err := st.LoadDataset(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "load dataset from store")
		}
		return ds, nil
	}
	ds, err := dataset.Load(ctx, cfg.Data.Paths(), newFetcher().Open)
	if err != nil {
		return nil, eris.Wrap(err, "load dataset files")
	}
	return ds, nil
}

// newFetcher opens dataset paths, downloading those that are URLs.
func newFetcher() *fetcher.Fetcher {
	return fetcher.New(fetcher.Options{
		Timeout:    time.Duration(cfg.Data.FetchTimeoutSecs) * time.Second,
		MaxRetries: cfg.Data.FetchRetries,
	})
}
