package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/placematch/internal/budget"
	"github.com/sells-group/placematch/internal/config"
	"github.com/sells-group/placematch/internal/indexer"
	"github.com/sells-group/placematch/internal/jobs"
	"github.com/sells-group/placematch/internal/match"
	"github.com/sells-group/placematch/internal/provider"
	"github.com/sells-group/placematch/internal/reconcile"
	"github.com/sells-group/placematch/internal/resilience"
	"github.com/sells-group/placematch/internal/store"
	"github.com/sells-group/placematch/pkg/foursquare"
	"github.com/sells-group/placematch/pkg/googleplaces"
	"github.com/sells-group/placematch/pkg/yelp"
)

// env wires the store, providers, and pipeline components for a command.
type env struct {
	Store    store.Store
	Registry *provider.Registry
	Budget   *budget.Tracker
	Indexer  *indexer.Indexer
	Jobs     *jobs.Service
	Worker   *jobs.Worker
}

func buildEnv(ctx context.Context, cfg *config.Config) (*env, error) {
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	var googleOpts []googleplaces.Option
	if cfg.Google.BaseURL != "" {
		googleOpts = append(googleOpts, googleplaces.WithBaseURL(cfg.Google.BaseURL))
	}
	var yelpOpts []yelp.Option
	if cfg.Yelp.BaseURL != "" {
		yelpOpts = append(yelpOpts, yelp.WithBaseURL(cfg.Yelp.BaseURL))
	}
	var fsqOpts []foursquare.Option
	if cfg.Foursquare.BaseURL != "" {
		fsqOpts = append(fsqOpts, foursquare.WithBaseURL(cfg.Foursquare.BaseURL))
	}

	reg := provider.NewRegistry()
	reg.Register(provider.NewGoogleAdapter(cfg.Google, googleplaces.NewClient(cfg.Google.Key, googleOpts...)))
	reg.Register(provider.NewYelpAdapter(cfg.Yelp, yelp.NewClient(cfg.Yelp.Key, yelpOpts...)))
	reg.Register(provider.NewFoursquareAdapter(cfg.Foursquare, foursquare.NewClient(cfg.Foursquare.Key, fsqOpts...)))

	tracker := budget.New(st, providerLimits(cfg), budget.DefaultWindow)
	matcher := match.New(cfg.Matcher)
	locator := reconcile.NewLocator(st, cfg.Indexer.CandidateRadiusDegrees)
	reconciler := reconcile.NewReconciler(st)

	ix := indexer.New(reg, st, locator, matcher, reconciler, tracker,
		resilience.WithAttempts(cfg.Indexer.RecordRetries))

	return &env{
		Store:    st,
		Registry: reg,
		Budget:   tracker,
		Indexer:  ix,
		Jobs:     jobs.NewService(st, cfg.Indexer.CacheTTL()),
		Worker:   jobs.NewWorker(st, ix, cfg.Worker.PollInterval()),
	}, nil
}

func (e *env) Close() {
	e.Store.Close() //nolint:errcheck
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// providerLimits maps configured daily limits into budget limits. A zero or
// negative configured limit means unlimited.
func providerLimits(cfg *config.Config) map[string]*int {
	limits := make(map[string]*int)
	for name, limit := range map[string]int{
		"google":     cfg.Google.DailyLimit,
		"yelp":       cfg.Yelp.DailyLimit,
		"foursquare": cfg.Foursquare.DailyLimit,
	} {
		if limit > 0 {
			l := limit
			limits[name] = &l
		}
	}
	return limits
}
