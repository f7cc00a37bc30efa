// Package pipeline runs the per-sheet validation pipeline and assembles
// sheet and file reports.
package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/faucetdb/schemaguard/internal/enrich"
	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/logger"
	"github.com/faucetdb/schemaguard/internal/schemarepo"
	"github.com/faucetdb/schemaguard/internal/tabular"
	"github.com/faucetdb/schemaguard/internal/validate"
)

// Defaults for a ServiceContext built without explicit settings.
const (
	DefaultWorkers         = 4
	DefaultHistoryDepth    = 5
	DefaultAutoSelectScore = 0.8
	DefaultCandidates      = 5
)

// ServiceContext holds the handles shared by every run: the schema
// repository, the enrichment gateway, the validation policy and the logger.
// It is built once and closed explicitly.
type ServiceContext struct {
	Repo    *schemarepo.Repository
	Gateway enrich.Gateway
	Policy  validate.Policy
	Logger  *zap.SugaredLogger

	// Workers bounds how many sheets of one file run at once.
	Workers int
	// HistoryDepth is how many recent snapshots feed drift detection.
	HistoryDepth int
	// AutoSelectScore is the minimum recommendation score at which a target
	// table is chosen without asking the caller.
	AutoSelectScore float64
	Load            tabular.Options

	now     func() time.Time
	closers []func() error
}

// Option configures a ServiceContext.
type Option func(*ServiceContext)

// WithPolicy sets the validation policy.
func WithPolicy(p validate.Policy) Option {
	return func(s *ServiceContext) { s.Policy = p.WithDefaults() }
}

// WithWorkers sets the sheet worker pool size.
func WithWorkers(n int) Option {
	return func(s *ServiceContext) {
		if n > 0 {
			s.Workers = n
		}
	}
}

// WithHistoryDepth sets how many snapshots are loaded for drift detection.
func WithHistoryDepth(n int) Option {
	return func(s *ServiceContext) {
		if n > 0 {
			s.HistoryDepth = n
		}
	}
}

// WithAutoSelectScore sets the target table auto-selection threshold.
func WithAutoSelectScore(score float64) Option {
	return func(s *ServiceContext) {
		if score > 0 {
			s.AutoSelectScore = score
		}
	}
}

// WithLoadOptions sets how source files are read.
func WithLoadOptions(o tabular.Options) Option {
	return func(s *ServiceContext) { s.Load = o }
}

// WithClock overrides the clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ServiceContext) { s.now = now }
}

// WithCloser registers fn to run on Close.
func WithCloser(fn func() error) Option {
	return func(s *ServiceContext) { s.closers = append(s.closers, fn) }
}

// NewServiceContext builds a ServiceContext. A nil gateway disables
// enrichment.
func NewServiceContext(repo *schemarepo.Repository, gw enrich.Gateway, log *zap.SugaredLogger, opts ...Option) *ServiceContext {
	if gw == nil {
		gw = enrich.Disabled{}
	}
	s := &ServiceContext{
		Repo:            repo,
		Gateway:         gw,
		Policy:          validate.DefaultPolicy(),
		Logger:          logger.OrNop(log),
		Workers:         DefaultWorkers,
		HistoryDepth:    DefaultHistoryDepth,
		AutoSelectScore: DefaultAutoSelectScore,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases everything the context opened, last opened first.
func (s *ServiceContext) Close() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = errs.CombineErrors(err, s.closers[i]())
	}
	s.closers = nil
	return err
}

// EnrichmentEnabled reports whether a real gateway is configured.
func (s *ServiceContext) EnrichmentEnabled() bool {
	_, disabled := s.Gateway.(enrich.Disabled)
	return !disabled
}
