// Package journal records what happened to the events of one page: which
// clicks were queued, replayed, superseded or delivered live, and how each
// upgrade went. A Recorder collects entries through dispatcher and adapter
// hooks; Flush hands them to a Store.
//
// Stores write newline-delimited JSON, one object per entry:
//
//	{"page_id":"…","seq":3,"kind":"replayed","action":"vg.js1","type":"click","time":"…"}
package journal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/vango-dev/replay/pkg/dom"
	"github.com/vango-dev/replay/pkg/jsaction"
	"github.com/vango-dev/replay/pkg/nodepath"
	"github.com/vango-dev/replay/pkg/upgrade"
)

// ErrNotFound is returned when a store holds no journal for a page.
var ErrNotFound = errors.New("journal: page not found")

// Kind classifies an Entry.
type Kind string

const (
	KindBuffered   Kind = "buffered"
	KindQueued     Kind = "queued"
	KindDispatched Kind = "dispatched"
	KindReplayed   Kind = "replayed"
	KindSuperseded Kind = "superseded"
	KindPanic      Kind = "panic"
	KindStale      Kind = "stale"
	KindUpgraded   Kind = "upgraded"
	KindSettled    Kind = "settled"
)

// Entry is one journal line.
type Entry struct {
	PageID    string    `json:"page_id"`
	Seq       uint64    `json:"seq,omitempty"`
	Kind      Kind      `json:"kind"`
	Action    string    `json:"action,omitempty"`
	EventType string    `json:"type,omitempty"`
	Element   string    `json:"element,omitempty"` // Tag of the upgraded element
	Token     string    `json:"token,omitempty"`   // Hydration token of the event target
	Path      string    `json:"path,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Time      time.Time `json:"time"`
}

// Store persists journals. Save appends to what is already stored for the
// page.
type Store interface {
	Save(ctx context.Context, pageID string, entries []Entry) error
	Load(ctx context.Context, pageID string) ([]Entry, error)
	Cleanup(ctx context.Context, maxAge time.Duration) error
}

// DefaultLimit bounds the entries a Recorder keeps between flushes.
const DefaultLimit = 4096

// Recorder collects the entries of one page. It is safe for concurrent use.
type Recorder struct {
	pageID string
	limit  int
	now    func() time.Time

	mu      sync.Mutex
	entries []Entry
	dropped int
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLimit bounds the buffered entries. The oldest entries are dropped
// first. A limit <= 0 keeps DefaultLimit.
func WithLimit(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithRecorderClock sets the time source for entries.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder creates a recorder for pageID.
func NewRecorder(pageID string, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		pageID: pageID,
		limit:  DefaultLimit,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PageID returns the page the recorder belongs to.
func (r *Recorder) PageID() string {
	return r.pageID
}

// Record appends e, filling in the page ID and time when unset.
func (r *Recorder) Record(e Entry) {
	if e.PageID == "" {
		e.PageID = r.pageID
	}
	if e.Time.IsZero() {
		e.Time = r.now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) >= r.limit {
		n := len(r.entries) - r.limit + 1
		r.entries = append(r.entries[:0], r.entries[n:]...)
		r.dropped += n
	}
	r.entries = append(r.entries, e)
}

// Entries returns a copy of the buffered entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Len returns the number of buffered entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Dropped returns how many entries were discarded because of the limit.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Flush saves the buffered entries to store and clears the buffer. On
// error the entries stay buffered.
func (r *Recorder) Flush(ctx context.Context, store Store) error {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}
	if err := store.Save(ctx, r.pageID, entries); err != nil {
		r.mu.Lock()
		r.entries = append(entries, r.entries...)
		r.mu.Unlock()
		return err
	}
	return nil
}

// event builds the entry for info. Queue-side kinds carry the capture time;
// delivery-side kinds are stamped when recorded.
func event(kind Kind, info jsaction.EventInfo) Entry {
	e := Entry{
		Seq:       info.Seq,
		Kind:      kind,
		Action:    info.Action.String(),
		EventType: info.EventType,
	}
	if info.Target != nil {
		e.Token = info.Target.Token
	}
	if kind == KindBuffered || kind == KindQueued || kind == KindSuperseded {
		e.Time = info.CapturedAt
	}
	return e
}

// DispatcherHooks returns hooks that record dispatcher activity.
func (r *Recorder) DispatcherHooks() jsaction.Hooks {
	return jsaction.Hooks{
		OnBuffered: func(info jsaction.EventInfo) {
			r.Record(event(KindBuffered, info))
		},
		OnQueued: func(info jsaction.EventInfo) {
			r.Record(event(KindQueued, info))
		},
		OnDispatched: func(info jsaction.EventInfo, replayed bool) {
			kind := KindDispatched
			if replayed {
				kind = KindReplayed
			}
			r.Record(event(kind, info))
		},
		OnSuperseded: func(dropped, kept jsaction.EventInfo) {
			e := event(KindSuperseded, dropped)
			e.Detail = "kept seq " + strconv.FormatUint(kept.Seq, 10)
			r.Record(e)
		},
		OnHandlerPanic: func(info jsaction.EventInfo, recovered any) {
			e := event(KindPanic, info)
			e.Detail = fmt.Sprint(recovered)
			r.Record(e)
		},
	}
}

// UpgradeHooks returns hooks that record adapter activity.
func (r *Recorder) UpgradeHooks() upgrade.Hooks {
	return upgrade.Hooks{
		OnStale: func(el *dom.Node, action string, path nodepath.Path) {
			r.Record(Entry{Kind: KindStale, Element: el.Tag, Action: action, Path: path.String()})
		},
		OnUpgraded: func(el *dom.Node, registered int, took time.Duration) {
			r.Record(Entry{
				Kind:    KindUpgraded,
				Element: el.Tag,
				Token:   el.Token,
				Detail:  fmt.Sprintf("registered=%d took=%s", registered, took),
			})
		},
		OnSettled: func(el *dom.Node, final upgrade.State) {
			r.Record(Entry{Kind: KindSettled, Element: el.Tag, Token: el.Token, Detail: final.String()})
		},
	}
}
