package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/clearcoast/claims-cli/internal/pipeline"
	"github.com/clearcoast/claims-cli/internal/resilience"
	"github.com/clearcoast/claims-cli/internal/rules"
	"github.com/clearcoast/claims-cli/internal/store"
	"github.com/clearcoast/claims-cli/pkg/codesearch"
	"github.com/clearcoast/claims-cli/pkg/judge"
)

// pipelineEnv holds the initialized store, clients, and pipeline shared by
// the run/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "claims.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initRules() (*rules.Engine, error) {
	crosswalk := rules.DefaultCrosswalk()
	if cfg.Rules.CrosswalkFile != "" {
		loaded, err := rules.LoadCrosswalk(cfg.Rules.CrosswalkFile)
		if err != nil {
			return nil, eris.Wrap(err, "load crosswalk")
		}
		crosswalk = loaded
	}
	return rules.NewEngine(rules.Config{
		ConfidenceThreshold:  cfg.Rules.ConfidenceThreshold,
		Crosswalk:            crosswalk,
		RequireGroundedCodes: cfg.Rules.RequireGroundedCodes,
	}), nil
}

// initPipeline sets up the store, judgment and retrieval clients, the rule
// engine, and builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	judgeClient, err := judge.New(judge.Config{
		Provider:     cfg.Judge.Provider,
		Model:        cfg.Judge.Model,
		APIKey:       cfg.Judge.APIKey,
		BaseURL:      cfg.Judge.BaseURL,
		Timeout:      time.Duration(cfg.Judge.TimeoutSecs) * time.Second,
		RateLimitRPS: cfg.Judge.RateLimitRPS,
	})
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init judge client")
	}

	searchOpts := []codesearch.Option{
		codesearch.WithTopK(cfg.Retrieval.TopK),
		codesearch.WithCacheTTL(time.Duration(cfg.Retrieval.CacheTTLSecs) * time.Second),
	}
	if cfg.Retrieval.TimeoutSecs > 0 {
		searchOpts = append(searchOpts, codesearch.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Retrieval.TimeoutSecs) * time.Second,
		}))
	}
	searchClient := codesearch.NewClient(cfg.Retrieval.BaseURL, searchOpts...)

	engine, err := initRules()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	judgeRetry := resilience.DefaultRetryConfig()
	if cfg.Judge.Retries > 0 {
		judgeRetry.MaxAttempts = cfg.Judge.Retries
	}
	searchRetry := resilience.DefaultRetryConfig()
	if cfg.Retrieval.Retries > 0 {
		searchRetry.MaxAttempts = cfg.Retrieval.Retries
	}

	p, err := pipeline.New(st, judgeClient, searchClient, engine, pipeline.Config{
		MaxTokens:   cfg.Judge.MaxTokens,
		JudgeRetry:  judgeRetry,
		SearchRetry: searchRetry,
	})
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "build pipeline")
	}

	return &pipelineEnv{Store: st, Pipeline: p}, nil
}
