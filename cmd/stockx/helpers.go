package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	stockx "github.com/stockapp/stockx-go"
	"github.com/stockapp/stockx-go/storage/sqlite"
)

// envOverrides are environment variables that win over the config file,
// mainly for scripting and CI.
type envOverrides struct {
	Origins []string      `env:"STOCKX_ORIGINS" envSeparator:","`
	Token   string        `env:"STOCKX_TOKEN"`
	UserID  string        `env:"STOCKX_USER_ID"`
	Timeout time.Duration `env:"STOCKX_TIMEOUT"`
}

// openStore opens the durable cache/credential store at ~/.stockx/stockx.db.
func openStore() (*sqlite.Store, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	store, err := sqlite.New(sqlite.Config{
		DataSourceName: "file:" + filepath.Join(dir, "stockx.db"),
		EnableWAL:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot open local store: %w", err)
	}
	return store, nil
}

// newClient builds a gateway client from config file + env overrides, backed
// by the durable sqlite store. The returned closer releases the store.
func newClient() (*stockx.Client, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return nil, nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	origins := cfg.Backend.Origins
	if len(overrides.Origins) > 0 {
		origins = overrides.Origins
	}
	if len(origins) == 0 {
		origins = []string{stockx.DefaultOrigin}
	}

	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	creds := store.Credentials()

	// Config-file/env credentials seed the durable store so the SDK's
	// auth-rejection path can clear them like any other session.
	if token := firstNonEmpty(overrides.Token, cfg.Auth.Token); token != "" {
		_ = creds.Set(stockx.KeyAuthToken, token)
	}
	if userID := firstNonEmpty(overrides.UserID, cfg.Auth.UserID); userID != "" {
		_ = creds.Set(stockx.KeyUserID, userID)
	}

	opts := []stockx.ClientOption{
		stockx.WithOrigins(origins...),
		stockx.WithCredentials(creds),
		stockx.WithCache(store),
		stockx.WithNotifier(stockx.FuncNotifier(printNotice)),
	}
	if overrides.Timeout > 0 {
		opts = append(opts, stockx.WithTimeout(overrides.Timeout))
	} else if cfg.Backend.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Backend.Timeout); err == nil && d > 0 {
			opts = append(opts, stockx.WithTimeout(d))
		}
	}

	client := stockx.NewClient(opts...)
	if cfg.Backend.PageSize > 0 {
		client.Catalog().SetPageSize(cfg.Backend.PageSize)
	}
	return client, func() { store.Close() }, nil
}

func printNotice(n stockx.Notice) {
	fmt.Fprintf(os.Stderr, "[%s] %s", n.Kind, n.Title)
	if n.Detail != "" {
		fmt.Fprintf(os.Stderr, ": %s", n.Detail)
	}
	fmt.Fprintln(os.Stderr)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
