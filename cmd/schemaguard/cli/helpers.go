package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/faucetdb/schemaguard/internal/config"
	"github.com/faucetdb/schemaguard/internal/connector"
	"github.com/faucetdb/schemaguard/internal/connector/drivers"
	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/logger"
	"github.com/faucetdb/schemaguard/internal/pipeline"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

const jwtSecretSetting = "auth.jwt_secret"

// resolveDataDir returns the data directory from --data-dir flag,
// SCHEMAGUARD_DATA_DIR env var, or ~/.schemaguard as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("SCHEMAGUARD_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".schemaguard")
}

// openConfigStore opens the SQLite store in the resolved data directory.
func openConfigStore() (*config.Store, error) {
	return config.NewStore(resolveDataDir())
}

// newRegistry creates a connector registry with all supported database drivers registered.
func newRegistry() *connector.Registry {
	registry := connector.NewRegistry()
	drivers.Register(registry)
	return registry
}

// loadConfig reads the config file viper located, or returns the defaults
// when there is none. SCHEMAGUARD_* environment variables override the
// auth secret and the server address.
func loadConfig() (*config.YAMLConfig, error) {
	cfg := config.DefaultYAMLConfig()
	if path := viper.ConfigFileUsed(); path != "" {
		loaded, err := config.LoadYAMLConfig(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		cfg = loaded
	}
	if v := viper.GetString("auth.jwt_secret"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := viper.GetString("server.host"); v != "" {
		cfg.Server.Host = v
	}
	if v := viper.GetInt("server.port"); v != 0 {
		cfg.Server.Port = v
	}
	return cfg, nil
}

// env bundles the handles every command that touches the store needs.
type env struct {
	cfg      *config.YAMLConfig
	store    *config.Store
	registry *connector.Registry
	log      *zap.SugaredLogger
	dataDir  string
}

// openEnv loads the configuration, opens the store and merges the sources
// declared in the config file into it.
func openEnv(ctx context.Context) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Logging.Format, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	dir := resolveDataDir()
	store, err := config.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open config store: %w", err)
	}
	if n, err := store.SyncSources(ctx, cfg.Sources); err != nil {
		store.Close()
		return nil, fmt.Errorf("sync sources from config: %w", err)
	} else if n > 0 {
		log.Debugw("synced sources from config file", "changed", n)
	}

	return &env{
		cfg:      cfg,
		store:    store,
		registry: newRegistry(),
		log:      log,
		dataDir:  dir,
	}, nil
}

func (e *env) deps() pipeline.Deps {
	return pipeline.Deps{
		Config:   e.cfg,
		Store:    e.store,
		Registry: e.registry,
		DataDir:  e.dataDir,
		Logger:   e.log,
	}
}

// connectAll connects every active source and returns how many succeeded.
// Failures are logged; the source stays configured.
func (e *env) connectAll(ctx context.Context) int {
	sources, err := e.store.ListSources(ctx)
	if err != nil {
		e.log.Warnw("failed to load sources", "error", err)
		return 0
	}
	connected := 0
	for _, src := range sources {
		if !src.IsActive {
			continue
		}
		if err := e.registry.Connect(src.Name, connector.ConfigFromSource(src)); err != nil {
			e.log.Errorw("failed to connect source", "source", src.Name, "error", err)
			continue
		}
		e.log.Infow("connected source", "source", src.Name, "driver", src.Driver)
		connected++
	}
	return connected
}

// jwtSecret returns the configured signing secret. Without one, a random
// secret is generated on first use and kept in the store so tokens survive
// restarts.
func (e *env) jwtSecret(ctx context.Context) (string, error) {
	if e.cfg.Auth.JWTSecret != "" {
		return e.cfg.Auth.JWTSecret, nil
	}
	secret, err := e.store.GetSetting(ctx, jwtSecretSetting)
	if err == nil && secret != "" {
		return secret, nil
	}
	if err != nil && !errs.Is(err, config.ErrNotFound) {
		return "", err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	secret = hex.EncodeToString(buf)
	if err := e.store.SetSetting(ctx, jwtSecretSetting, secret); err != nil {
		return "", err
	}
	e.log.Infow("generated JWT signing secret", "setting", jwtSecretSetting)
	return secret, nil
}

func (e *env) Close() {
	e.registry.CloseAll()
	if err := e.store.Close(); err != nil {
		e.log.Warnw("close config store", "error", err)
	}
	_ = e.log.Sync()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- PID file management ---

func pidFilePath() string {
	return filepath.Join(resolveDataDir(), "schemaguard.pid")
}

func writePID(pid int) error {
	dir := resolveDataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0644)
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID() {
	os.Remove(pidFilePath())
}

func logFilePath() string {
	return filepath.Join(resolveDataDir(), "schemaguard.log")
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
