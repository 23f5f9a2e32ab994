// Package app opens the long-lived state shared by every command: the
// completion ledger and the contact store, on whichever backend is configured.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/bidharvest/internal/clock/system"
	"github.com/JakeFAU/bidharvest/internal/config"
	"github.com/JakeFAU/bidharvest/internal/contacts"
	"github.com/JakeFAU/bidharvest/internal/harvest"
	"github.com/JakeFAU/bidharvest/internal/kv"
	"github.com/JakeFAU/bidharvest/internal/kv/file"
	"github.com/JakeFAU/bidharvest/internal/kv/gcs"
	"github.com/JakeFAU/bidharvest/internal/kv/postgres"
	"github.com/JakeFAU/bidharvest/internal/ledger"
)

// Backends are the two documents plus whatever must be released afterwards.
type Backends struct {
	Ledger   kv.Backend
	Contacts kv.Backend
	closers  []func()
}

// Close releases clients opened for the backends.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// OpenBackends builds the ledger and contact backends for cfg.Backend.
// gcsOpts are passed to the Cloud Storage client.
func OpenBackends(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger, gcsOpts ...option.ClientOption) (*Backends, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ledgerName := filepath.Base(cfg.LedgerPath)
	contactsName := filepath.Base(cfg.ContactsPath)

	switch cfg.Backend {
	case config.BackendFile:
		lb, err := file.New(cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("ledger backend: %w", err)
		}
		cb, err := file.New(cfg.ContactsPath)
		if err != nil {
			return nil, fmt.Errorf("contacts backend: %w", err)
		}
		logger.Info("Using file store",
			zap.String("ledger", lb.Path()),
			zap.String("contacts", cb.Path()),
		)
		return &Backends{Ledger: lb, Contacts: cb}, nil

	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, postgres.Config{
			DSN:      cfg.Postgres.DSN,
			Table:    cfg.Postgres.Table,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("Using postgres store", zap.String("table", cfg.Postgres.Table))
		return &Backends{
			Ledger:   pool.Backend(ledgerName),
			Contacts: pool.Backend(contactsName),
			closers:  []func(){pool.Close},
		}, nil

	case config.BackendGCS:
		client, err := storage.NewClient(ctx, gcsOpts...)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		closeClient := func() {
			if cerr := client.Close(); cerr != nil {
				logger.Warn("Failed to close storage client", zap.Error(cerr))
			}
		}
		gcfg := gcs.Config{Bucket: cfg.GCS.Bucket, Prefix: cfg.GCS.Prefix}
		lb, err := gcs.New(client, gcfg, ledgerName)
		if err != nil {
			closeClient()
			return nil, fmt.Errorf("ledger backend: %w", err)
		}
		cb, err := gcs.New(client, gcfg, contactsName)
		if err != nil {
			closeClient()
			return nil, fmt.Errorf("contacts backend: %w", err)
		}
		logger.Info("Using gcs store",
			zap.String("bucket", cfg.GCS.Bucket),
			zap.String("ledger", lb.Object()),
			zap.String("contacts", cb.Object()),
		)
		return &Backends{Ledger: lb, Contacts: cb, closers: []func(){closeClient}}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// App holds the loaded configuration and opened state.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	clock    harvest.Clock
	backends *Backends
	ledger   *ledger.Store
	contacts *contacts.Store
}

// Option customises New.
type Option func(*options)

type options struct {
	clock   harvest.Clock
	gcsOpts []option.ClientOption
}

// WithClock replaces the system clock.
func WithClock(c harvest.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithGCSOptions passes client options to the Cloud Storage backend.
func WithGCSOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.gcsOpts = append(o.gcsOpts, opts...) }
}

// New opens both documents. It fails fast when either cannot be loaded.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{clock: system.New()}
	for _, opt := range opts {
		opt(&o)
	}

	backends, err := OpenBackends(ctx, cfg.Store, logger, o.gcsOpts...)
	if err != nil {
		return nil, err
	}
	ledgerStore, err := ledger.Open(ctx, backends.Ledger, ledger.Config{RetentionDays: cfg.Harvest.RetentionDays}, logger)
	if err != nil {
		backends.Close()
		return nil, err
	}
	contactStore, err := contacts.Open(ctx, backends.Contacts, o.clock, logger)
	if err != nil {
		backends.Close()
		return nil, err
	}
	return &App{
		cfg:      cfg,
		logger:   logger,
		clock:    o.clock,
		backends: backends,
		ledger:   ledgerStore,
		contacts: contactStore,
	}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Clock returns the clock every component shares.
func (a *App) Clock() harvest.Clock { return a.clock }

// Ledger returns the completion ledger.
func (a *App) Ledger() *ledger.Store { return a.ledger }

// Contacts returns the contact store.
func (a *App) Contacts() *contacts.Store { return a.contacts }

// Close releases backend clients.
func (a *App) Close() {
	if a == nil || a.backends == nil {
		return
	}
	a.backends.Close()
}
