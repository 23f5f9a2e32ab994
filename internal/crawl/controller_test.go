package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bidharvest/internal/clock/system"
	"github.com/JakeFAU/bidharvest/internal/harvest"
	"github.com/JakeFAU/bidharvest/internal/kv/memory"
	"github.com/JakeFAU/bidharvest/internal/ledger"
)

// fakeSource serves fixed pages. Next past the last page keeps returning it,
// which is how a stuck paginator looks.
type fakeSource struct {
	pages   [][]harvest.ItemDescriptor
	current int
	itemErr map[int]error
	nextErr error
	hasNext func(page int) bool
	onNext  func()
}

func (s *fakeSource) Items(context.Context) ([]harvest.ItemDescriptor, error) {
	if err := s.itemErr[s.current]; err != nil {
		return nil, err
	}
	if s.current >= len(s.pages) {
		return nil, nil
	}
	return s.pages[s.current], nil
}

func (s *fakeSource) HasNext(context.Context) (bool, error) {
	if s.hasNext != nil {
		return s.hasNext(s.current), nil
	}
	return true, nil
}

func (s *fakeSource) Next(context.Context) error {
	if s.nextErr != nil {
		return s.nextErr
	}
	if s.onNext != nil {
		s.onNext()
	}
	if s.current < len(s.pages)-1 || s.hasNext == nil {
		s.current++
	}
	return nil
}

type fakeProcessor struct {
	mu       sync.Mutex
	calls    []string
	fail     map[string]error
	relevant map[string]bool
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (p *fakeProcessor) Process(_ context.Context, desc harvest.ItemDescriptor, view harvest.LedgerView) (*harvest.LedgerEntry, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	if view.IsComplete(desc.Identity) {
		return nil, nil
	}
	p.mu.Lock()
	p.calls = append(p.calls, desc.Identity)
	err := p.fail[desc.Identity]
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &harvest.LedgerEntry{
		Timestamp: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		DisplayID: desc.DisplayID,
		Status:    harvest.StatusComplete,
		Relevance: harvest.Relevance{IsMatch: p.relevant[desc.Identity]},
	}, nil
}

func page(prefix string, n int) []harvest.ItemDescriptor {
	out := make([]harvest.ItemDescriptor, n)
	for i := range out {
		id := fmt.Sprintf("%s-%d", prefix, i)
		out[i] = harvest.ItemDescriptor{Identity: "https://bidplus.gem.gov.in/doc/" + id, DisplayID: id}
	}
	return out
}

func newLedger(t *testing.T) (*ledger.Store, *memory.Backend) {
	t.Helper()
	backend := memory.New()
	store, err := ledger.Open(context.Background(), backend, ledger.Config{}, nil)
	require.NoError(t, err)
	return store, backend
}

func newController(src harvest.ListingSource, proc Processor, l Ledger, cfg Config) *Controller {
	return New(src, proc, l, system.NewFixed(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)), cfg, nil)
}

func TestRunStopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	src := &fakeSource{pages: [][]harvest.ItemDescriptor{page("a", 7), page("b", 3), {}}}
	proc := &fakeProcessor{relevant: map[string]bool{"https://bidplus.gem.gov.in/doc/a-1": true}}
	store, backend := newLedger(t)

	summary, err := newController(src, proc, store, Config{BatchSize: 5}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopEmptyPage, summary.StopReason)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 10, summary.Items)
	assert.Equal(t, 10, summary.Processed)
	assert.Equal(t, 1, summary.Relevant)
	assert.Equal(t, 10, store.Len())
	assert.Equal(t, 3, backend.Writes(), "one write per batch with new entries")
	assert.LessOrEqual(t, proc.peak.Load(), int32(5))
}

func TestRunDetectsStalledPagination(t *testing.T) {
	t.Parallel()

	first := page("a", 3)
	reordered := []harvest.ItemDescriptor{first[2], first[0], first[1]}
	src := &fakeSource{pages: [][]harvest.ItemDescriptor{first, reordered, page("c", 2)}}
	store, _ := newLedger(t)

	summary, err := newController(src, &fakeProcessor{}, store, Config{BatchSize: 5}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopStalled, summary.StopReason)
	assert.Equal(t, 1, summary.Pages)
}

func TestRunStopsOnLastPage(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		pages:   [][]harvest.ItemDescriptor{page("a", 2), page("b", 2)},
		hasNext: func(p int) bool { return p == 0 },
	}
	store, _ := newLedger(t)

	summary, err := newController(src, &fakeProcessor{}, store, Config{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopLastPage, summary.StopReason)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 4, summary.Processed)
}

func TestRunSkipsCompletedItems(t *testing.T) {
	t.Parallel()

	items := page("a", 4)
	store, backend := newLedger(t)
	store.Add(items[0].Identity, harvest.LedgerEntry{Status: harvest.StatusComplete})
	store.Add(items[1].Identity, harvest.LedgerEntry{Status: harvest.StatusComplete})

	src := &fakeSource{pages: [][]harvest.ItemDescriptor{items}, hasNext: func(int) bool { return false }}
	proc := &fakeProcessor{}

	summary, err := newController(src, proc, store, Config{BatchSize: 5}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Duplicates)
	assert.Equal(t, 2, summary.Processed)
	assert.ElementsMatch(t, []string{items[2].Identity, items[3].Identity}, proc.calls)
	assert.Equal(t, 1, backend.Writes())
}

func TestRunCountsFailuresWithoutStopping(t *testing.T) {
	t.Parallel()

	items := page("a", 3)
	proc := &fakeProcessor{fail: map[string]error{
		items[0].Identity: fmt.Errorf("%w: timeout", harvest.ErrDownload),
		items[1].Identity: errors.New("boom"),
	}}
	src := &fakeSource{pages: [][]harvest.ItemDescriptor{items}, hasNext: func(int) bool { return false }}
	store, _ := newLedger(t)

	summary, err := newController(src, proc, store, Config{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Processed)
	assert.False(t, store.IsComplete(items[0].Identity), "skipped items stay eligible")
}

func TestRunNoWriteWhenBatchAddsNothing(t *testing.T) {
	t.Parallel()

	items := page("a", 2)
	proc := &fakeProcessor{fail: map[string]error{
		items[0].Identity: harvest.ErrDownload,
		items[1].Identity: harvest.ErrDownload,
	}}
	src := &fakeSource{pages: [][]harvest.ItemDescriptor{items}, hasNext: func(int) bool { return false }}
	store, backend := newLedger(t)

	_, err := newController(src, proc, store, Config{}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, backend.Writes())
}

func TestRunPersistFailureIsCounted(t *testing.T) {
	t.Parallel()

	src := &fakeSource{pages: [][]harvest.ItemDescriptor{page("a", 2)}, hasNext: func(int) bool { return false }}
	store, backend := newLedger(t)
	backend.FailWrites(errors.New("read-only filesystem"))

	summary, err := newController(src, &fakeProcessor{}, store, Config{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PersistErrors)
}

func TestRunFirstPageErrorAborts(t *testing.T) {
	t.Parallel()

	src := &fakeSource{itemErr: map[int]error{0: errors.New("portal down")}}
	store, _ := newLedger(t)

	_, err := newController(src, &fakeProcessor{}, store, Config{}).Run(context.Background())
	assert.ErrorIs(t, err, harvest.ErrListingUnavailable)
}

func TestRunLaterPageErrorEndsRun(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		pages:   [][]harvest.ItemDescriptor{page("a", 1), page("b", 1)},
		itemErr: map[int]error{1: errors.New("timeout")},
	}
	store, _ := newLedger(t)

	summary, err := newController(src, &fakeProcessor{}, store, Config{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopListingError, summary.StopReason)
	assert.Equal(t, 1, summary.Processed)
}

func TestRunPageLimit(t *testing.T) {
	t.Parallel()

	src := &fakeSource{pages: [][]harvest.ItemDescriptor{page("a", 1), page("b", 1), page("c", 1)}}
	store, _ := newLedger(t)

	summary, err := newController(src, &fakeProcessor{}, store, Config{MaxPages: 2}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopPageLimit, summary.StopReason)
	assert.Equal(t, 2, summary.Pages)
}

func TestRunCancellationBetweenPages(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &fakeSource{
		pages:  [][]harvest.ItemDescriptor{page("a", 2), page("b", 2)},
		onNext: cancel,
	}
	store, _ := newLedger(t)

	summary, err := newController(src, &fakeProcessor{}, store, Config{}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopCanceled, summary.StopReason)
	assert.Equal(t, 1, summary.Pages)
	assert.Equal(t, 2, store.Len(), "the finished batch is kept")
}

func TestPageSignatureIsOrderIndependent(t *testing.T) {
	t.Parallel()

	a := []harvest.ItemDescriptor{{DisplayID: "GEM/2"}, {DisplayID: "GEM/1"}}
	b := []harvest.ItemDescriptor{{DisplayID: "GEM/1"}, {DisplayID: "GEM/2"}}
	assert.Equal(t, "GEM/1,GEM/2", PageSignature(a))
	assert.Equal(t, PageSignature(a), PageSignature(b))
	assert.Equal(t, "x", PageSignature([]harvest.ItemDescriptor{{Identity: "x"}}))
}

func TestUniqueItems(t *testing.T) {
	t.Parallel()

	in := []harvest.ItemDescriptor{{Identity: "a"}, {Identity: ""}, {Identity: "a"}, {Identity: "b"}}
	assert.Equal(t, []harvest.ItemDescriptor{{Identity: "a"}, {Identity: "b"}}, uniqueItems(in))
}
