package main

import (
	"context"
	"errors"
	"fmt"

	"skyfeed/internal/api"
	"skyfeed/internal/candidates"
	"skyfeed/internal/config"
	"skyfeed/internal/features"
	"skyfeed/internal/hotness"
	"skyfeed/internal/ingest"
	"skyfeed/internal/jobs"
	"skyfeed/internal/ranking"
	"skyfeed/internal/searchclient"
	"skyfeed/internal/store/badgerstore"
	"skyfeed/internal/store/sqlstore"
	"skyfeed/internal/supervisor"
	"skyfeed/internal/timeline"
	"skyfeed/internal/trending"
)

// app holds the wired components of one process.
type app struct {
	cfg        config.Config
	db         *sqlstore.DB
	cursors    timeline.CursorStore
	trends     *trending.Service
	recomputer *hotness.Recomputer
	queue      *hotness.Queue
	feeds      *timeline.Service
	closers    []func() error
}

func newApp(ctx context.Context, cfg config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	db, err := sqlstore.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN, sqlstore.Options{
		MaxOpenConns: cfg.Storage.MaxOpenConns,
		MaxIdleConns: cfg.Storage.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	switch cfg.Cursors.Backend {
	case "badger":
		bs, err := badgerstore.Open(cfg.Cursors.BadgerPath)
		if err != nil {
			return nil, err
		}
		a.cursors = bs
		a.closers = append(a.closers, bs.Close)
	default:
		a.cursors = db
	}

	// interface values stay nil unless Redis is enabled
	var (
		ranked trending.Ranked
		index  hotness.Index
	)
	if cfg.Redis.Enabled {
		rdb := trending.NewRedisClient(cfg.Redis)
		a.closers = append(a.closers, rdb.Close)
		ri := trending.NewRedisIndex(rdb, cfg.Redis.Prefix, cfg.Hotness.Window)
		if err := ri.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		ranked, index = ri, ri
	}
	a.trends = trending.NewService(ranked, db, cfg.Hotness.Window)
	a.recomputer = hotness.NewRecomputer(db, index, cfg.Hotness.Window, cfg.Hotness.BatchSize)
	a.queue = hotness.NewQueue(a.recomputer, cfg.Hotness.QueueSize, cfg.Hotness.CoalesceWindow)

	rc := cfg.Ranking
	sources := []candidates.Source{
		candidates.NewInNetwork(db, rc.InNetworkWindow),
		candidates.NewOutOfNetwork(db, a.trends),
		candidates.NewInterest(db, rc.InterestTopN, cfg.Hotness.Window),
	}
	if cfg.Search.Enabled {
		sources = append(sources, candidates.NewSearch(db, searchclient.NewHTTPClient(cfg.Search), rc.InterestTopN))
	}
	virality := features.NoVirality
	if rc.Virality == "share_velocity" {
		virality = features.ShareVelocity
	}
	w, d := ranking.FromConfig(rc)
	a.feeds = timeline.NewService(timeline.Deps{
		Gatherer:  candidates.NewGatherer(candidates.OptionsFromConfig(rc), sources...),
		Extractor: features.NewExtractor(db, features.Options{HalfLife: rc.RecencyHalfLife, EngagementScale: rc.EngagementScale, Virality: virality}),
		Ranker:    ranking.New(w, d),
		Cursors:   a.cursors,
		Follows:   db,
		Trends:    a.trends,
		Limits:    timeline.Limits{Default: rc.DefaultPageSize, Max: rc.MaxPageSize},
	})
	return a, nil
}

// supervise builds the server process tree.
func (a *app) supervise() *supervisor.Tree {
	tree := supervisor.New(a.cfg.Server.ShutdownTimeout)
	tree.AddBackground(a.queue)
	tree.AddBackground(jobs.SweepService{Sweeper: a.recomputer, Interval: a.cfg.Hotness.SweepInterval})
	if a.cfg.AMQP.Enabled {
		tree.AddBackground(ingest.NewConsumer(a.cfg.AMQP, ingest.NewApplier(a.db, a.queue)))
	}
	router := api.NewRouter(a.cfg.Server, a.cfg.Ranking.MaxPageSize, a.feeds, a.db)
	tree.AddAPI(supervisor.NewHTTPService(a.cfg.Server.Addr, router, a.cfg.Server.ShutdownTimeout))
	return tree
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
