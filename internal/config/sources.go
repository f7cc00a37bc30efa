package config

import (
	"context"

	"github.com/dustin/go-humanize"

	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
)

// ToModel converts a YAML source declaration into a stored source. Pool
// settings missing from the file take the model defaults.
func (y SourceYAML) ToModel() model.Source {
	pool := model.DefaultPoolConfig()
	if y.Pool != nil {
		if y.Pool.MaxOpenConns > 0 {
			pool.MaxOpenConns = y.Pool.MaxOpenConns
		}
		if y.Pool.MaxIdleConns > 0 {
			pool.MaxIdleConns = y.Pool.MaxIdleConns
		}
		pool.ConnMaxLifetime = ParseDuration(y.Pool.ConnMaxLifetime, pool.ConnMaxLifetime)
	}
	return model.Source{
		Name:           y.Name,
		Label:          y.Name,
		Driver:         y.Driver,
		DSN:            y.DSN,
		PrivateKeyPath: y.PrivateKeyPath,
		Schema:         y.Schema,
		IsActive:       true,
		Pool:           pool,
	}
}

// SyncSources merges sources declared in the config file into the store.
// New names are created and existing ones are overwritten with the file's
// settings; sources only present in the store are left alone. It returns
// the number of sources created or updated.
func (s *Store) SyncSources(ctx context.Context, declared []SourceYAML) (int, error) {
	changed := 0
	for _, y := range declared {
		if y.Name == "" || y.Driver == "" {
			return changed, errs.NewInvalidRequestError("config source needs a name and a driver")
		}
		want := y.ToModel()

		existing, err := s.GetSourceByName(ctx, y.Name)
		switch {
		case errs.Is(err, ErrNotFound):
			if err := s.CreateSource(ctx, &want); err != nil {
				return changed, errs.Wrapf(err, "create source %q", y.Name)
			}
			changed++
		case err != nil:
			return changed, err
		default:
			if sameSource(*existing, want) {
				continue
			}
			want.ID = existing.ID
			want.Label = existing.Label
			want.CreatedAt = existing.CreatedAt
			if err := s.UpdateSource(ctx, &want); err != nil {
				return changed, errs.Wrapf(err, "update source %q", y.Name)
			}
			changed++
		}
	}
	return changed, nil
}

func sameSource(a, b model.Source) bool {
	return a.Driver == b.Driver &&
		a.DSN == b.DSN &&
		a.Schema == b.Schema &&
		a.PrivateKeyPath == b.PrivateKeyPath &&
		a.IsActive == b.IsActive &&
		a.Pool == b.Pool
}

// ParseSize parses a human-readable byte size such as "50MB", returning
// fallback when s is empty or malformed.
func ParseSize(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	n, err := humanize.ParseBytes(s)
	if err != nil || n == 0 {
		return fallback
	}
	return int64(n)
}
