package openapi

import (
	"context"

	"go.uber.org/zap"

	"github.com/faucetdb/schemaguard/internal/config"
	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/logger"
)

// CollectSources introspects every stored source that is connected in
// registry. Sources that are not connected or fail to introspect are
// skipped.
func CollectSources(ctx context.Context, registry *connector.Registry, store *config.Store, log *zap.SugaredLogger) ([]SourceTables, error) {
	log = logger.OrNop(log)

	sources, err := store.ListSources(ctx)
	if err != nil {
		return nil, err
	}

	var out []SourceTables
	for _, src := range sources {
		conn, err := registry.Get(src.Name)
		if err != nil {
			continue
		}
		schema, err := conn.IntrospectSchema(ctx)
		if err != nil {
			log.Warnw("skip source in api document", "source", src.Name, "error", err)
			continue
		}
		out = append(out, SourceTables{Name: src.Name, Driver: src.Driver, Tables: schema.Tables})
	}
	return out, nil
}
