package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/bidharvest/internal/config"
	"github.com/JakeFAU/bidharvest/internal/harvest"
	"github.com/JakeFAU/bidharvest/internal/listing/headless"
	"github.com/JakeFAU/bidharvest/internal/sink/memory"
)

type workspace struct {
	dir          string
	configPath   string
	ledgerPath   string
	contactsPath string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{
		dir:          dir,
		configPath:   filepath.Join(dir, "bidharvest.yaml"),
		ledgerPath:   filepath.Join(dir, "ledger.json"),
		contactsPath: filepath.Join(dir, "contacts.json"),
	}
	cfg := fmt.Sprintf(`
logging:
  development: false
  level: error
harvest:
  spool_dir: %q
store:
  backend: file
  ledger_path: %q
  contacts_path: %q
outreach:
  sink: webhook
  webhook_url: http://127.0.0.1:1/unused
`, filepath.Join(dir, "spool"), ws.ledgerPath, ws.contactsPath)
	require.NoError(t, os.WriteFile(ws.configPath, []byte(cfg), 0o600))
	return ws
}

func (ws workspace) writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func (ws workspace) contacts(t *testing.T) map[string]harvest.ContactRecord {
	t.Helper()
	data, err := os.ReadFile(ws.contactsPath)
	require.NoError(t, err)
	out := make(map[string]harvest.ContactRecord)
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestStatsCommand(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	now := time.Now().UTC()
	ws.writeJSON(t, ws.ledgerPath, map[string]harvest.LedgerEntry{
		"https://x/bid/1": {Timestamp: now, Status: harvest.StatusComplete, Relevance: harvest.Relevance{IsMatch: true}},
		"https://x/bid/2": {Timestamp: now, Status: harvest.StatusComplete},
	})
	ws.writeJSON(t, ws.contactsPath, map[string]harvest.ContactRecord{
		"a@ongc.co.in": {Address: "a@ongc.co.in", DateAdded: now},
	})

	out, err := execute(t, "stats", "--config", ws.configPath, "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Contains(t, out, "Bid acquisition")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "ongc.co.in")
}

func TestDomainsCommand(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	now := time.Now().UTC()
	records := map[string]harvest.ContactRecord{}
	for _, addr := range []string{"a@big.com", "b@big.com", "c@small.org"} {
		records[addr] = harvest.ContactRecord{Address: addr, DateAdded: now}
	}
	ws.writeJSON(t, ws.contactsPath, records)

	out, err := execute(t, "domains", "--config", ws.configPath, "--threshold", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "big.com")
	assert.NotContains(t, out, "small.org")
}

func TestBadConfigFails(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "stats", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "load config")
}

func TestSessionMissing(t *testing.T) {
	t.Parallel()

	_, err := sessionFrom(context.Background())
	require.Error(t, err)
}

// The tests below replace package hooks and must not run in parallel.

type emptySource struct{ closed bool }

func (s *emptySource) Items(context.Context) ([]harvest.ItemDescriptor, error) { return nil, nil }
func (s *emptySource) HasNext(context.Context) (bool, error)                 { return false, nil }
func (s *emptySource) Next(context.Context) error                            { return nil }
func (s *emptySource) Close()                                                { s.closed = true }

func TestCrawlCommand(t *testing.T) {
	ws := newWorkspace(t)

	var queries []string
	src := &emptySource{}
	orig := openListing
	openListing = func(_ context.Context, cfg headless.Config, _ *zap.Logger) (listingSource, error) {
		queries = append(queries, cfg.Query)
		if cfg.Query == "broken" {
			return nil, fmt.Errorf("%w: boom", harvest.ErrListingUnavailable)
		}
		return src, nil
	}
	t.Cleanup(func() { openListing = orig })

	out, err := execute(t, "crawl", "--config", ws.configPath, "--query", "drone,broken")
	require.NoError(t, err)
	assert.Equal(t, []string{"drone", "broken"}, queries)
	assert.True(t, src.closed)
	assert.Contains(t, out, "empty_page")
	assert.Contains(t, out, "error:")
}

func TestCrawlCommandAllQueriesFail(t *testing.T) {
	ws := newWorkspace(t)

	orig := openListing
	openListing = func(context.Context, headless.Config, *zap.Logger) (listingSource, error) {
		return nil, harvest.ErrListingUnavailable
	}
	t.Cleanup(func() { openListing = orig })

	_, err := execute(t, "crawl", "--config", ws.configPath)
	require.ErrorIs(t, err, harvest.ErrListingUnavailable)
}

func TestOutreachCommand(t *testing.T) {
	ws := newWorkspace(t)
	old := time.Now().UTC().AddDate(0, 0, -30)
	ws.writeJSON(t, ws.contactsPath, map[string]harvest.ContactRecord{
		"new@ongc.co.in":  {Address: "new@ongc.co.in", DateAdded: old},
		"done@ongc.co.in": {Address: "done@ongc.co.in", DateAdded: old, SendCount: 4, LastSentAt: &old},
	})

	sink := memory.New()
	orig := openNotifier
	openNotifier = func(context.Context, config.OutreachConfig, *zap.Logger) (notifier, error) {
		return stopless{sink}, nil
	}
	t.Cleanup(func() { openNotifier = orig })

	out, err := execute(t, "outreach", "--config", ws.configPath, "--mode", "single")
	require.NoError(t, err)
	assert.Contains(t, out, "1 eligible, 1 sent")

	payloads := sink.Payloads()
	require.Len(t, payloads, 1)
	assert.Equal(t, harvest.PayloadSingle, payloads[0].Kind)
	assert.Equal(t, []string{"new@ongc.co.in"}, payloads[0].Addresses)

	rec := ws.contacts(t)["new@ongc.co.in"]
	assert.Equal(t, 1, rec.SendCount)
	require.NotNil(t, rec.LastSentAt)
}

func TestOutreachCommandSinkFailure(t *testing.T) {
	ws := newWorkspace(t)
	old := time.Now().UTC().AddDate(0, 0, -30)
	ws.writeJSON(t, ws.contactsPath, map[string]harvest.ContactRecord{
		"new@ongc.co.in": {Address: "new@ongc.co.in", DateAdded: old},
	})

	sink := memory.New()
	sink.Fail(errors.New("mailer down"))
	orig := openNotifier
	openNotifier = func(context.Context, config.OutreachConfig, *zap.Logger) (notifier, error) {
		return stopless{sink}, nil
	}
	t.Cleanup(func() { openNotifier = orig })

	_, err := execute(t, "outreach", "--config", ws.configPath)
	require.ErrorContains(t, err, "mailer down")
	assert.Zero(t, ws.contacts(t)["new@ongc.co.in"].SendCount)
}

func TestOutreachDryRun(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	old := time.Now().UTC().AddDate(0, 0, -30)
	ws.writeJSON(t, ws.contactsPath, map[string]harvest.ContactRecord{
		"new@ongc.co.in": {Address: "new@ongc.co.in", DateAdded: old},
	})

	out, err := execute(t, "outreach", "--config", ws.configPath, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "1 contacts due (batch)")
	assert.Contains(t, out, "new@ongc.co.in")
	assert.Zero(t, ws.contacts(t)["new@ongc.co.in"].SendCount)
}
