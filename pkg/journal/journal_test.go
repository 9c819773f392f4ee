package journal

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/vango-dev/replay/pkg/dom"
	"github.com/vango-dev/replay/pkg/jsaction"
	"github.com/vango-dev/replay/pkg/nodepath"
	"github.com/vango-dev/replay/pkg/upgrade"
)

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

func kinds(entries []Entry) []Kind {
	out := make([]Kind, len(entries))
	for i, e := range entries {
		out[i] = e.Kind
	}
	return out
}

func TestRecordFillsDefaults(t *testing.T) {
	r := NewRecorder("p1", WithRecorderClock(fixedClock))
	r.Record(Entry{Kind: KindQueued})

	got := r.Entries()
	if len(got) != 1 {
		t.Fatalf("len(Entries()) = %d, want 1", len(got))
	}
	if got[0].PageID != "p1" {
		t.Errorf("PageID = %q, want %q", got[0].PageID, "p1")
	}
	if !got[0].Time.Equal(fixedTime) {
		t.Errorf("Time = %v, want %v", got[0].Time, fixedTime)
	}
}

func TestRecordLimit(t *testing.T) {
	r := NewRecorder("p1", WithLimit(2))
	for i := 1; i <= 5; i++ {
		r.Record(Entry{Kind: KindQueued, Seq: uint64(i)})
	}
	got := r.Entries()
	if len(got) != 2 || got[0].Seq != 4 || got[1].Seq != 5 {
		t.Errorf("Entries() = %+v, want seqs 4 and 5", got)
	}
	if r.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", r.Dropped())
	}
}

func TestDispatcherHooks(t *testing.T) {
	r := NewRecorder("p1", WithRecorderClock(fixedClock))
	d := jsaction.NewDispatcher(
		jsaction.WithReplayer(jsaction.Replay),
		jsaction.WithHooks(r.DispatcherHooks()),
	)
	a := jsaction.ActionKey{Namespace: "vg", Name: "js1"}
	target := dom.Button()
	target.Token = "h3"

	d.Dispatch(jsaction.EventInfo{Seq: 1, Action: a, EventType: "click", Target: target})
	d.Dispatch(jsaction.EventInfo{Seq: 2, Action: a, EventType: "click", Target: target})
	d.RegisterHandlers("vg", nil, map[string]jsaction.Handler{"js1": func(jsaction.EventInfo) {}})
	d.Dispatch(jsaction.EventInfo{Seq: 3, Action: a, EventType: "click"})

	got := r.Entries()
	want := []Kind{KindQueued, KindQueued, KindSuperseded, KindReplayed, KindDispatched}
	if !reflect.DeepEqual(kinds(got), want) {
		t.Fatalf("kinds = %v, want %v", kinds(got), want)
	}
	if got[2].Seq != 1 || got[2].Detail != "kept seq 2" {
		t.Errorf("superseded entry = %+v, want seq 1 kept seq 2", got[2])
	}
	if got[3].Seq != 2 || got[3].Token != "h3" || got[3].Action != "vg.js1" {
		t.Errorf("replayed entry = %+v", got[3])
	}
}

func TestDispatcherHooksBuffered(t *testing.T) {
	r := NewRecorder("p1")
	captured := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.DispatcherHooks().OnBuffered(jsaction.EventInfo{
		Seq:        4,
		Action:     jsaction.ActionKey{Namespace: "vg", Name: "js2"},
		CapturedAt: captured,
	})
	got := r.Entries()
	if len(got) != 1 || got[0].Kind != KindBuffered || got[0].Action != "vg.js2" {
		t.Fatalf("entries = %+v, want one buffered vg.js2 entry", got)
	}
	if !got[0].Time.Equal(captured) {
		t.Errorf("Time = %v, want capture time %v", got[0].Time, captured)
	}
}

func TestDispatcherHooksPanic(t *testing.T) {
	r := NewRecorder("p1")
	r.DispatcherHooks().OnHandlerPanic(jsaction.EventInfo{Seq: 9}, "boom")
	got := r.Entries()
	if len(got) != 1 || got[0].Kind != KindPanic || got[0].Detail != "boom" {
		t.Errorf("Entries() = %+v, want one panic entry", got)
	}
}

func TestUpgradeHooks(t *testing.T) {
	r := NewRecorder("p1")
	h := r.UpgradeHooks()
	el := dom.El("add-to-cart")
	el.Token = "h1"

	h.OnStale(el, "js2", nodepath.Path{0, 1})
	h.OnUpgraded(el, 1, time.Millisecond)
	h.OnSettled(el, upgrade.StateDrained)

	got := r.Entries()
	if want := []Kind{KindStale, KindUpgraded, KindSettled}; !reflect.DeepEqual(kinds(got), want) {
		t.Fatalf("kinds = %v, want %v", kinds(got), want)
	}
	if got[0].Path != "[0 1]" {
		t.Errorf("stale path = %q", got[0].Path)
	}
	if got[1].Detail != "registered=1 took=1ms" {
		t.Errorf("upgraded detail = %q", got[1].Detail)
	}
	if got[2].Detail != "drained" || got[2].Element != "add-to-cart" {
		t.Errorf("settled entry = %+v", got[2])
	}
}

type failingStore struct{ MemoryStore }

func (failingStore) Save(context.Context, string, []Entry) error {
	return errors.New("unavailable")
}

func TestFlush(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder("p1")
	store := NewMemoryStore()

	if err := r.Flush(ctx, store); err != nil {
		t.Fatalf("Flush(empty) error: %v", err)
	}
	if store.Pages() != 0 {
		t.Errorf("empty flush created %d pages", store.Pages())
	}

	r.Record(Entry{Kind: KindQueued, Seq: 1})
	r.Record(Entry{Kind: KindReplayed, Seq: 1})
	if err := r.Flush(ctx, store); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() after flush = %d, want 0", r.Len())
	}
	got, err := store.Load(ctx, "p1")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("stored %d entries, want 2", len(got))
	}
}

func TestFlushErrorKeepsEntries(t *testing.T) {
	r := NewRecorder("p1")
	r.Record(Entry{Kind: KindQueued, Seq: 1})
	if err := r.Flush(context.Background(), &failingStore{}); err == nil {
		t.Fatal("Flush() error = nil, want error")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrNotFound", err)
	}
	s.Save(ctx, "p1", []Entry{{Seq: 1}})
	s.Save(ctx, "p1", []Entry{{Seq: 2}})
	got, _ := s.Load(ctx, "p1")
	if len(got) != 2 || got[1].Seq != 2 {
		t.Errorf("Load() = %+v, want two entries in order", got)
	}
	if err := s.Cleanup(ctx, time.Hour); err != nil {
		t.Fatalf("Cleanup() error: %v", err)
	}
	if s.Pages() != 1 {
		t.Errorf("Cleanup removed a fresh page")
	}
	s.Cleanup(ctx, -time.Second)
	if s.Pages() != 0 {
		t.Errorf("Pages() = %d after expiring cleanup, want 0", s.Pages())
	}
}
