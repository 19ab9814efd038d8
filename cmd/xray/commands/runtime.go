package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/xray/internal/config"
	"github.com/dyluth/xray/internal/discovery"
	"github.com/dyluth/xray/internal/fetch"
	"github.com/dyluth/xray/internal/graphql"
	"github.com/dyluth/xray/internal/printer"
	"github.com/dyluth/xray/internal/session"
	"github.com/dyluth/xray/internal/source"
	"github.com/dyluth/xray/internal/sqlite"
	"github.com/dyluth/xray/pkg/projectstore"
	"github.com/redis/go-redis/v9"
)

// openStore connects to the configured backend and verifies it responds.
func openStore(ctx context.Context, cfg *config.XrayConfig) (projectstore.Store, error) {
	var store projectstore.Store

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, printer.ErrorWithContext(
				"SQLite store unavailable",
				err.Error(),
				map[string]string{"Path": cfg.Store.SQLitePath},
				[]string{"Check the path is writable, or set XRAY_SQLITE_PATH"},
			)
		}
		store = s

	default:
		opts, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client, err := projectstore.NewClient(opts, cfg.Instance)
		if err != nil {
			return nil, fmt.Errorf("failed to create store client: %w", err)
		}
		store = client
	}

	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, printer.ErrorWithContext(
			"store connection failed",
			fmt.Sprintf("Could not reach the %s store: %v", cfg.Store.Backend, err),
			map[string]string{"Redis": cfg.Store.RedisURL, "Instance": cfg.Instance},
			[]string{
				"Start Redis:\n  docker run -d -p 6379:6379 redis:7-alpine",
				"Use the local store instead:\n  XRAY_STORE_BACKEND=sqlite xray ...",
			},
		)
	}

	return store, nil
}

// cookieProvider returns the configured cookie source, or nil when none is set.
func cookieProvider(cfg *config.XrayConfig) graphql.CookieProvider {
	switch {
	case cfg.Auth.CookieFile != "":
		return graphql.FileCookie{Path: cfg.Auth.CookieFile}
	case cfg.Auth.Cookie != "":
		return graphql.StaticCookie(cfg.Auth.Cookie)
	default:
		return nil
	}
}

// openSource builds the document source for target. "-" reads stdin once.
func openSource(cfg *config.XrayConfig, target string, stdin []byte) (source.Source, error) {
	if target == "-" {
		return source.NewMemorySource("stdin", stdin), nil
	}
	return source.New(target, source.Options{
		PollInterval: cfg.Source.PollInterval.Std(),
		Cookies:      cookieProvider(cfg),
		Timeout:      cfg.GraphQL.Timeout.Std(),
	})
}

// pipeline is a fully wired session with its queue.
type pipeline struct {
	session *session.Session
	queue   *fetch.Queue
}

// buildPipeline wires GraphQL client, orchestrator, queue, deduper and session.
func buildPipeline(cfg *config.XrayConfig, store projectstore.Store, src source.Source) (*pipeline, error) {
	if err := cfg.RequireGraphQL(); err != nil {
		return nil, printer.Error(
			"GraphQL endpoint not configured",
			err.Error(),
			[]string{
				"Set it in xray.yml:\n  graphql:\n    endpoint: https://<site>.atlassian.net/gateway/api/graphql",
				"Or export XRAY_GRAPHQL_ENDPOINT",
			},
		)
	}

	gql, err := graphql.NewClient(graphql.Options{
		Endpoint:      cfg.GraphQL.Endpoint,
		Origin:        cfg.GraphQL.Origin,
		ClientName:    cfg.GraphQL.ClientName,
		ClientVersion: cfg.GraphQL.ClientVersion,
		Cookies:       cookieProvider(cfg),
		Timeout:       cfg.GraphQL.Timeout.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GraphQL client: %w", err)
	}

	orch := fetch.NewOrchestrator(gql, store, fetch.Options{
		InstanceName:  cfg.Instance,
		RatePerSecond: cfg.Fetch.RequestsPerSecond,
		Burst:         cfg.Fetch.Burst,
	})

	queue := fetch.NewQueue(orch, fetch.QueueOptions{
		Workers:  cfg.Fetch.Workers,
		Capacity: cfg.Fetch.QueueCapacity,
	})

	sess, err := session.New(&session.Config{
		InstanceName: cfg.Instance,
		Source:       src,
		Claimer:      discovery.NewDeduper(store),
		Queue:        queue,
	})
	if err != nil {
		return nil, err
	}

	return &pipeline{session: sess, queue: queue}, nil
}
