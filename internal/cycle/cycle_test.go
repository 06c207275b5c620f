package cycle

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/LJTian/newswatch/internal/collector"
	"github.com/LJTian/newswatch/internal/config"
	"github.com/LJTian/newswatch/internal/storage"
	"github.com/rs/zerolog"
)

var testNow = time.Date(2024, 3, 16, 10, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	pages   map[string][]collector.RawItem
	seqs    map[string]iter.Seq[collector.RawItem]
	fail    map[string]error
	ordered bool

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeFetcher) Name() string  { return "fake" }
func (f *fakeFetcher) Ordered() bool { return f.ordered }

func (f *fakeFetcher) Fetch(ctx context.Context, t config.Target) (iter.Seq[collector.RawItem], error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[t.Name]++
	f.mu.Unlock()

	if err := f.fail[t.Name]; err != nil {
		return nil, err
	}
	if seq, ok := f.seqs[t.Name]; ok {
		return seq, nil
	}
	items := f.pages[t.Name]
	return func(yield func(collector.RawItem) bool) {
		for _, it := range items {
			if !yield(it) {
				return
			}
		}
	}, nil
}

type ledgerKey struct{ headline, recipient string }

type fakeLedger struct {
	mu          sync.Mutex
	markers     map[ledgerKey]string
	records     int
	failExists  map[string]bool
	failRecord  map[string]bool
	raceOnWrite map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{markers: map[ledgerKey]string{}}
}

func (l *fakeLedger) Exists(ctx context.Context, headline, recipient string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failExists[headline] {
		return false, errors.New("db down")
	}
	_, ok := l.markers[ledgerKey{headline, recipient}]
	return ok, nil
}

func (l *fakeLedger) Record(ctx context.Context, target string, item collector.RawItem, recipient string) (uint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failRecord[item.Headline] {
		return 0, errors.New("marker insert failed")
	}
	if l.raceOnWrite[item.Headline] {
		return 0, storage.ErrAlreadyDelivered
	}
	l.markers[ledgerKey{item.Headline, recipient}] = target
	l.records++
	return uint(l.records), nil
}

type sentDigest struct {
	recipient string
	items     []collector.FilteredItem
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentDigest
	err  error
}

func (n *fakeNotifier) Notify(ctx context.Context, recipient string, items []collector.FilteredItem) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentDigest{recipient: recipient, items: items})
	return n.err
}

func testTargets() config.TargetIndex {
	return config.Index([]config.Target{
		{Name: "NVIDIA", URL: "https://example.com/nvidia"},
		{Name: "DELL", URL: "https://example.com/dell"},
		{Name: "PUMA", URL: "https://example.com/puma"},
	})
}

func newTestOrchestrator(f collector.Fetcher, l Ledger, n *fakeNotifier, subs []config.Subscription) *Orchestrator {
	return New(Deps{
		Fetcher:       f,
		Ledger:        l,
		Notifier:      n,
		Targets:       testTargets(),
		Subscriptions: subs,
		WindowDays:    1,
		Concurrency:   5,
		Now:           func() time.Time { return testNow },
		Log:           zerolog.Nop(),
	})
}

func raw(headline, date string) collector.RawItem {
	return collector.RawItem{Headline: headline, DateLabel: date}
}

func TestRunIsIdempotentAndSuppressesEmptyDigests(t *testing.T) {
	f := &fakeFetcher{ordered: true, pages: map[string][]collector.RawItem{
		"NVIDIA": {raw("Nvidia sube", "09:30"), raw("Nvidia presenta", "15/03"), raw("Antigua", "10/03")},
		"DELL":   {raw("Dell baja", "16/03")},
	}}
	l := newFakeLedger()
	n := &fakeNotifier{}
	o := newTestOrchestrator(f, l, n, []config.Subscription{{Email: "a@example.com", Targets: []string{"NVIDIA", "DELL"}}})

	first := o.Run(context.Background())
	if first.ItemsNew != 3 || l.records != 3 {
		t.Fatalf("first run: new=%d records=%d, want 3", first.ItemsNew, l.records)
	}
	if len(n.sent) != 1 || len(n.sent[0].items) != 3 {
		t.Fatalf("first run should send one digest with 3 items: %+v", n.sent)
	}
	// 摘要按订阅中的目标顺序排列
	got := n.sent[0].items
	if got[0].Target != "NVIDIA" || got[1].Target != "NVIDIA" || got[2].Target != "DELL" {
		t.Fatalf("digest order = %+v", got)
	}

	second := o.Run(context.Background())
	if second.ItemsNew != 0 || l.records != 3 {
		t.Fatalf("second run: new=%d records=%d, want no new records", second.ItemsNew, l.records)
	}
	if second.ItemsKnown != 3 {
		t.Fatalf("second run known=%d, want 3", second.ItemsKnown)
	}
	if len(n.sent) != 1 {
		t.Fatalf("empty digest must not be sent, sends=%d", len(n.sent))
	}
}

func TestRunCrossRecipientIndependence(t *testing.T) {
	f := &fakeFetcher{ordered: true, pages: map[string][]collector.RawItem{
		"NVIDIA": {raw("Nvidia sube", "16/03")},
	}}
	l := newFakeLedger()
	l.markers[ledgerKey{"Nvidia sube", "a@example.com"}] = "NVIDIA"
	n := &fakeNotifier{}
	o := newTestOrchestrator(f, l, n, []config.Subscription{
		{Email: "a@example.com", Targets: []string{"NVIDIA"}},
		{Email: "b@example.com", Targets: []string{"NVIDIA"}},
	})

	o.Run(context.Background())
	if len(n.sent) != 1 || n.sent[0].recipient != "b@example.com" {
		t.Fatalf("only b should receive the headline: %+v", n.sent)
	}
	if _, ok := l.markers[ledgerKey{"Nvidia sube", "b@example.com"}]; !ok {
		t.Fatalf("marker for b not recorded")
	}
}

func TestRunCrossTargetDuplicatesAreNotMerged(t *testing.T) {
	f := &fakeFetcher{ordered: true, pages: map[string][]collector.RawItem{
		"NVIDIA": {raw("Wall Street cierra al alza", "16/03")},
		"DELL":   {raw("Wall Street cierra al alza", "16/03")},
	}}
	l := newFakeLedger()
	n := &fakeNotifier{}
	o := newTestOrchestrator(f, l, n, []config.Subscription{
		{Email: "a@example.com", Targets: []string{"NVIDIA"}},
		{Email: "b@example.com", Targets: []string{"DELL"}},
	})

	o.Run(context.Background())
	if len(n.sent) != 2 {
		t.Fatalf("each recipient should get the headline once, sends=%d", len(n.sent))
	}
	for _, d := range n.sent {
		if len(d.items) != 1 {
			t.Fatalf("digest for %s has %d items", d.recipient, len(d.items))
		}
	}
}

func TestRunStopsReadingFeedAtFirstStaleItem(t *testing.T) {
	items := []collector.RawItem{
		raw("uno", "16/03"),
		raw("dos", "15/03"),
		raw("tres", "01/03"),
		raw("cuatro", "16/03"),
	}
	f := &fakeFetcher{ordered: true, seqs: map[string]iter.Seq[collector.RawItem]{
		"NVIDIA": func(yield func(collector.RawItem) bool) {
			for i, it := range items {
				if i > 2 {
					t.Errorf("item %d evaluated after an out-of-window item", i)
					return
				}
				if !yield(it) {
					return
				}
			}
		},
	}}
	l := newFakeLedger()
	n := &fakeNotifier{}
	o := newTestOrchestrator(f, l, n, []config.Subscription{{Email: "a@example.com", Targets: []string{"NVIDIA"}}})

	stats := o.Run(context.Background())
	if stats.ItemsNew != 2 || stats.ItemsStale != 1 {
		t.Fatalf("new=%d stale=%d, want 2/1", stats.ItemsNew, stats.ItemsStale)
	}
}

func TestRunUnorderedFeedSkipsStaleItemsWithoutStopping(t *testing.T) {
	f := &fakeFetcher{ordered: false, pages: map[string][]collector.RawItem{
		"NVIDIA": {raw("uno", "16/03"), raw("vieja", "01/03"), raw("cuatro", "16/03")},
	}}
	l := newFakeLedger()
	n := &fakeNotifier{}
	o := newTestOrchestrator(f, l, n, []config.Subscription{{Email: "a@example.com", Targets: []string{"NVIDIA"}}})

	stats := o.Run(context.Background())
	if stats.ItemsNew != 2 || stats.ItemsStale != 1 {
		t.Fatalf("new=%d stale=%d, want 2/1", stats.ItemsNew, stats.ItemsStale)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	f := &fakeFetcher{
		ordered: true,
		pages: map[string][]collector.RawItem{
			"NVIDIA": {raw("lookup roto", "16/03"), raw("escritura rota", "16/03"), raw("carrera", "16/03"), raw("ok", "16/03")},
		},
		fail: map[string]error{"DELL": errors.New("connection reset")},
	}
	l := newFakeLedger()
	l.failExists = map[string]bool{"lookup roto": true}
	l.failRecord = map[string]bool{"escritura rota": true}
	l.raceOnWrite = map[string]bool{"carrera": true}
	n := &fakeNotifier{err: errors.New("smtp down")}
	o := newTestOrchestrator(f, l, n, []config.Subscription{
		{Email: "a@example.com", Targets: []string{"DELL", "GHOST", "NVIDIA"}},
	})

	stats := o.Run(context.Background())
	if stats.TargetsFailed != 1 || stats.TargetsUnknown != 1 || stats.TargetsFetched != 1 {
		t.Fatalf("target stats = %+v", stats)
	}
	if stats.ItemErrors != 2 || stats.ItemsKnown != 1 || stats.ItemsNew != 1 {
		t.Fatalf("item stats = %+v", stats)
	}
	if len(n.sent) != 1 || len(n.sent[0].items) != 1 || n.sent[0].items[0].Headline != "ok" {
		t.Fatalf("digest should contain only the recorded item: %+v", n.sent)
	}
	if stats.DigestsFailed != 1 || stats.DigestsSent != 0 {
		t.Fatalf("digest stats = %+v", stats)
	}
	// 投递失败不回滚记录
	if _, ok := l.markers[ledgerKey{"ok", "a@example.com"}]; !ok {
		t.Fatalf("record must survive notifier failure")
	}
}

func TestRunNormalizesHeadlinesAndSkipsEmpty(t *testing.T) {
	f := &fakeFetcher{ordered: true, pages: map[string][]collector.RawItem{
		"NVIDIA": {raw("   ", "16/03"), raw("  Nvidia \n sube ", "16/03")},
	}}
	l := newFakeLedger()
	n := &fakeNotifier{}
	o := newTestOrchestrator(f, l, n, []config.Subscription{{Email: "a@example.com", Targets: []string{"NVIDIA"}}})

	stats := o.Run(context.Background())
	if stats.ItemsSeen != 1 || stats.ItemsNew != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if _, ok := l.markers[ledgerKey{"Nvidia sube", "a@example.com"}]; !ok {
		t.Fatalf("normalized headline should be the ledger key: %v", l.markers)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	f := &fakeFetcher{ordered: true}
	n := &fakeNotifier{}
	o := newTestOrchestrator(f, newFakeLedger(), n, []config.Subscription{{Email: "a@example.com", Targets: []string{"NVIDIA"}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if stats := o.Run(ctx); stats.Subscriptions != 0 {
		t.Fatalf("no subscription should run after cancellation, got %d", stats.Subscriptions)
	}
}
