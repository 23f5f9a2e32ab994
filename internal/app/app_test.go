package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/bidharvest/internal/app"
	"github.com/JakeFAU/bidharvest/internal/clock/system"
	"github.com/JakeFAU/bidharvest/internal/config"
	"github.com/JakeFAU/bidharvest/internal/harvest"
)

func fileConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Store.LedgerPath = filepath.Join(dir, "ledger.json")
	cfg.Store.ContactsPath = filepath.Join(dir, "contacts.json")
	return cfg
}

func TestNewFileBackendRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := fileConfig(t)
	clock := system.NewFixed(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	a, err := app.New(ctx, cfg, nil, app.WithClock(clock))
	require.NoError(t, err)
	assert.Equal(t, cfg, a.Config())
	assert.NotNil(t, a.Logger())
	assert.Equal(t, clock, a.Clock())

	require.True(t, a.Ledger().Add("https://x/bid/1", harvest.LedgerEntry{
		Timestamp: clock.Now(), Status: harvest.StatusComplete,
	}))
	require.NoError(t, a.Ledger().Commit(ctx))
	_, err = a.Contacts().Upsert(ctx, []string{"ops@ongc.co.in"})
	require.NoError(t, err)
	a.Close()

	reopened, err := app.New(ctx, cfg, nil, app.WithClock(clock))
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.Ledger().IsComplete("https://x/bid/1"))
	_, ok := reopened.Contacts().Get("ops@ongc.co.in")
	assert.True(t, ok)
}

func TestOpenBackendsUnknown(t *testing.T) {
	t.Parallel()

	_, err := app.OpenBackends(context.Background(), config.StoreConfig{Backend: "redis"}, nil)
	require.ErrorContains(t, err, "unknown store backend")
}

func TestOpenBackendsFileRejectsDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := app.OpenBackends(context.Background(), config.StoreConfig{
		Backend:      config.BackendFile,
		LedgerPath:   dir,
		ContactsPath: filepath.Join(dir, "c.json"),
	}, nil)
	require.ErrorContains(t, err, "ledger backend")
}

func TestOpenBackendsPostgresBadDSN(t *testing.T) {
	t.Parallel()

	_, err := app.OpenBackends(context.Background(), config.StoreConfig{
		Backend:  config.BackendPostgres,
		Postgres: config.PostgresConfig{DSN: "postgres://%zz"},
	}, nil)
	require.ErrorContains(t, err, "connect postgres")
}

func TestNewGCSBackend(t *testing.T) {
	t.Parallel()

	var reads atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			reads.Add(1)
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	cfg := fileConfig(t)
	cfg.Store.Backend = config.BackendGCS
	cfg.Store.GCS = config.GCSConfig{Bucket: "bids", Prefix: "state"}

	a, err := app.New(context.Background(), cfg, nil,
		app.WithGCSOptions(option.WithEndpoint(server.URL), option.WithoutAuthentication()))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, int32(2), reads.Load())
	assert.Zero(t, a.Ledger().Len())
	assert.Empty(t, a.Contacts().Records())
}
