package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/faucetdb/schemaguard/internal/archive"
	"github.com/faucetdb/schemaguard/internal/config"
	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/enrich"
	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/logger"
	"github.com/faucetdb/schemaguard/internal/schemarepo"
	"github.com/faucetdb/schemaguard/internal/tabular"
)

// Deps are the process-level handles a ServiceContext is built from.
type Deps struct {
	Config   *config.YAMLConfig
	Store    *config.Store
	Registry *connector.Registry
	DataDir  string
	Logger   *zap.SugaredLogger
}

// Open builds a ServiceContext for the named reference source. An empty
// name falls back to pipeline.source, then to the only configured source.
// With no source at all the context still opens; schema lookups then fail
// with NotFound.
func Open(ctx context.Context, d Deps, sourceName string) (*ServiceContext, error) {
	cfg := d.Config
	if cfg == nil {
		cfg = config.DefaultYAMLConfig()
	}
	log := logger.OrNop(d.Logger)

	var opts []Option

	conn, release, err := resolveSource(ctx, d, cfg, sourceName)
	if err != nil {
		return nil, err
	}
	if release != nil {
		opts = append(opts, WithCloser(release))
	}

	arch, err := openArchive(d, cfg)
	if err != nil {
		if release != nil {
			release()
		}
		return nil, err
	}

	gw := enrich.New(EnrichmentConfig(cfg.Enrichment, log))

	opts = append(opts,
		WithPolicy(cfg.Policy),
		WithWorkers(cfg.Pipeline.Workers),
		WithHistoryDepth(cfg.Pipeline.HistoryDepth),
		WithAutoSelectScore(cfg.Pipeline.AutoSelectScore),
		WithLoadOptions(tabular.Options{MaxRows: cfg.Pipeline.MaxRows}),
	)

	repo := schemarepo.New(conn, arch, log)
	return NewServiceContext(repo, gw, log, opts...), nil
}

// EnrichmentConfig converts the enrichment config section into gateway
// settings.
func EnrichmentConfig(c config.EnrichmentConfig, log *zap.SugaredLogger) enrich.Config {
	return enrich.Config{
		Endpoint:          c.Endpoint,
		APIKey:            c.APIKey,
		Model:             c.Model,
		Timeout:           config.ParseDuration(c.Timeout, 60*time.Second),
		MaxRetries:        c.MaxRetries,
		BackoffBase:       config.ParseDuration(c.BackoffBase, time.Second),
		BackoffMax:        config.ParseDuration(c.BackoffMax, 30*time.Second),
		RequestsPerMinute: c.RequestsPerMinute,
		Logger:            log,
	}
}

// Connect returns the connector for a source chosen the same way Open
// chooses it. release is non-nil when the connection was made here and must
// be called once the caller is done.
func Connect(ctx context.Context, d Deps, sourceName string) (connector.Connector, func() error, error) {
	cfg := d.Config
	if cfg == nil {
		cfg = config.DefaultYAMLConfig()
	}
	conn, release, err := resolveSource(ctx, d, cfg, sourceName)
	if err != nil {
		return nil, nil, err
	}
	if conn == nil {
		return nil, nil, errs.NewNotFoundError("no reference source configured")
	}
	return conn, release, nil
}

// OpenHistory returns a Repository over the snapshot archive only. Reference
// lookups on it fail.
func OpenHistory(d Deps) (*schemarepo.Repository, error) {
	cfg := d.Config
	if cfg == nil {
		cfg = config.DefaultYAMLConfig()
	}
	arch, err := openArchive(d, cfg)
	if err != nil {
		return nil, err
	}
	return schemarepo.New(nil, arch, d.Logger), nil
}

// resolveSource returns the connector for the chosen source, connecting it
// through the registry when it is not active yet. release is non-nil only
// when Open made the connection.
func resolveSource(ctx context.Context, d Deps, cfg *config.YAMLConfig, name string) (connector.Connector, func() error, error) {
	if name == "" {
		name = cfg.Pipeline.Source
	}
	if name == "" && d.Store != nil {
		sources, err := d.Store.ListSources(ctx)
		if err != nil {
			return nil, nil, errs.Wrap(err, "list sources")
		}
		switch len(sources) {
		case 0:
		case 1:
			name = sources[0].Name
		default:
			return nil, nil, errs.NewInvalidRequestError("%d sources configured; choose one", len(sources))
		}
	}
	if name == "" || d.Registry == nil {
		return nil, nil, nil
	}

	if conn, err := d.Registry.Get(name); err == nil {
		return conn, nil, nil
	}
	if d.Store == nil {
		return nil, nil, errs.NewNotFoundError("source %q", name)
	}

	src, err := d.Store.GetSourceByName(ctx, name)
	if err != nil {
		return nil, nil, errs.Wrapf(err, "source %q", name)
	}
	if err := d.Registry.Connect(name, connector.ConfigFromSource(*src)); err != nil {
		return nil, nil, err
	}
	conn, err := d.Registry.Get(name)
	if err != nil {
		return nil, nil, err
	}
	return conn, func() error { return d.Registry.Disconnect(name) }, nil
}

func openArchive(d Deps, cfg *config.YAMLConfig) (schemarepo.Archive, error) {
	switch cfg.Snapshots.Backend {
	case config.SnapshotBackendFiles:
		dir := cfg.Snapshots.Dir
		if dir == "" {
			dir = filepath.Join(d.DataDir, "snapshots")
		}
		a, err := archive.Open(dir)
		if err != nil {
			return nil, errs.Wrap(err, "open snapshot archive")
		}
		return a, nil
	case "", config.SnapshotBackendSQLite:
		if d.Store == nil {
			return nil, errs.New("snapshot backend sqlite needs the config store")
		}
		return d.Store, nil
	default:
		return nil, errs.NewInvalidRequestError("unknown snapshot backend %q", cfg.Snapshots.Backend)
	}
}
