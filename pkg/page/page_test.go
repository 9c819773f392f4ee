package page

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/replay/internal/demo"
	"github.com/vango-dev/replay/pkg/annotate"
	"github.com/vango-dev/replay/pkg/dom"
	"github.com/vango-dev/replay/pkg/eventloop"
	"github.com/vango-dev/replay/pkg/journal"
	"github.com/vango-dev/replay/pkg/jsaction"
	"github.com/vango-dev/replay/pkg/nodepath"
	"github.com/vango-dev/replay/pkg/upgrade"
)

// Paths below the body of the demo shop.
var (
	teeButton = nodepath.Path{0, 1, 0, 0, 2}
	mugButton = nodepath.Path{0, 1, 1, 0, 2}
	checkout  = nodepath.Path{0, 2, 0}
)

func startPage(t *testing.T, opts ...Option) (*Page, *demo.Shop, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(append([]Option{WithLogger(logger)}, opts...)...)
	go p.Run(ctx)
	t.Cleanup(func() {
		cancel()
		p.Close()
	})
	return p, demo.NewShop(nil, nil), ctx
}

func mount(t *testing.T, p *Page, shop *demo.Shop, ctx context.Context) {
	t.Helper()
	if err := p.Mount(ctx, shop.Render); err != nil {
		t.Fatalf("Mount() error: %v", err)
	}
}

func boot(t *testing.T, p *Page, shop *demo.Shop, ctx context.Context) {
	t.Helper()
	if err := p.Boot(ctx, shop.Define); err != nil {
		t.Fatalf("Boot() error: %v", err)
	}
}

func badgeText(t *testing.T, p *Page, ctx context.Context) string {
	t.Helper()
	var text string
	p.Do(ctx, func(doc *dom.Document) {
		for _, n := range doc.Body().QueryAll(func(n *dom.Node) bool { return n.Tag == demo.TagCartBadge }) {
			text = n.TextContent()
		}
	})
	return text
}

func TestEarlyClicksReplayed(t *testing.T) {
	p, shop, ctx := startPage(t)
	mount(t, p, shop, ctx)

	for _, path := range []nodepath.Path{teeButton, teeButton, mugButton} {
		if err := p.ClickPath(ctx, path); err != nil {
			t.Fatalf("ClickPath(%v) error: %v", path, err)
		}
	}
	if shop.Cart().Count() != 0 {
		t.Fatalf("cart filled before boot: %d", shop.Cart().Count())
	}

	boot(t, p, shop, ctx)

	cart := shop.Cart()
	if got := cart.Quantity("tee"); got != 1 {
		t.Errorf("tee quantity = %d, want 1", got)
	}
	if got := cart.Quantity("mug"); got != 1 {
		t.Errorf("mug quantity = %d, want 1", got)
	}
	if got := badgeText(t, p, ctx); got != "2" {
		t.Errorf("badge = %q, want %q", got, "2")
	}
	if n, _ := p.Pending(ctx); n != 0 {
		t.Errorf("Pending() = %d, want 0", n)
	}

	var kinds []journal.Kind
	for _, e := range p.Journal().Entries() {
		kinds = append(kinds, e.Kind)
	}
	count := func(k journal.Kind) int {
		n := 0
		for _, got := range kinds {
			if got == k {
				n++
			}
		}
		return n
	}
	if count(journal.KindQueued) != 3 || count(journal.KindSuperseded) != 1 || count(journal.KindReplayed) != 2 {
		t.Errorf("journal kinds = %v", kinds)
	}
}

func TestLiveClicksAfterBoot(t *testing.T) {
	p, shop, ctx := startPage(t)
	mount(t, p, shop, ctx)
	boot(t, p, shop, ctx)

	if err := p.ClickPath(ctx, teeButton); err != nil {
		t.Fatalf("ClickPath() error: %v", err)
	}
	if err := p.ClickToken(ctx, "h1"); err != nil {
		t.Fatalf("ClickToken() error: %v", err)
	}
	if got := shop.Cart().Quantity("tee"); got != 2 {
		t.Errorf("tee quantity = %d, want 2", got)
	}
	if got := badgeText(t, p, ctx); got != "2" {
		t.Errorf("badge = %q, want %q", got, "2")
	}
}

func TestHandlersDrainedAfterBoot(t *testing.T) {
	p, shop, ctx := startPage(t)
	mount(t, p, shop, ctx)
	p.ClickPath(ctx, teeButton)
	boot(t, p, shop, ctx)

	var (
		ready bool
		still []string
	)
	p.Do(ctx, func(*dom.Document) {
		d, ok := p.Runtime().Dispatcher()
		ready = ok
		if !ok {
			return
		}
		for _, name := range []string{"js1", "js2", "js3"} {
			if d.HasAction(jsaction.ActionKey{Namespace: jsaction.DefaultNamespace, Name: name}) {
				still = append(still, name)
			}
		}
	})
	if !ready {
		t.Fatal("dispatcher missing after boot")
	}
	if len(still) > 0 {
		t.Errorf("actions still registered after drain: %v", still)
	}
}

func TestWithoutContractDropsEarlyClicks(t *testing.T) {
	p, shop, ctx := startPage(t, WithoutContract())
	mount(t, p, shop, ctx)
	p.ClickPath(ctx, teeButton)
	boot(t, p, shop, ctx)

	if got := shop.Cart().Count(); got != 0 {
		t.Errorf("cart count = %d, want 0", got)
	}
	p.ClickPath(ctx, teeButton)
	if got := shop.Cart().Count(); got != 1 {
		t.Errorf("cart count after live click = %d, want 1", got)
	}
}

func TestVerifiedResolution(t *testing.T) {
	p, shop, ctx := startPage(t, WithResolution(upgrade.ResolveVerified))
	mount(t, p, shop, ctx)
	p.ClickToken(ctx, "h2")
	boot(t, p, shop, ctx)

	if got := shop.Cart().Quantity("mug"); got != 1 {
		t.Errorf("mug quantity = %d, want 1", got)
	}
}

func TestAnchorNavigatesBeforeBoot(t *testing.T) {
	p, shop, ctx := startPage(t)
	mount(t, p, shop, ctx)

	if err := p.ClickPath(ctx, checkout); err != nil {
		t.Fatalf("ClickPath() error: %v", err)
	}
	if got := p.Navigations(); len(got) != 1 || got[0] != "/checkout" {
		t.Errorf("Navigations() = %v, want [/checkout]", got)
	}
}

func TestPageErrors(t *testing.T) {
	p, shop, ctx := startPage(t)

	err := p.Boot(ctx, shop.Define)
	if !errors.Is(err, ErrNotMounted) {
		t.Errorf("Boot() before Mount error = %v, want ErrNotMounted", err)
	}
	var pe *PageError
	if !errors.As(err, &pe) || pe.PageID != p.ID() || pe.Op != "boot" {
		t.Errorf("error = %#v, want PageError for boot", err)
	}

	mount(t, p, shop, ctx)
	if err := p.Mount(ctx, shop.Render); !errors.Is(err, ErrAlreadyMounted) {
		t.Errorf("second Mount() error = %v, want ErrAlreadyMounted", err)
	}
	if err := p.ClickToken(ctx, "h99"); !errors.Is(err, ErrNoTarget) {
		t.Errorf("ClickToken(h99) error = %v, want ErrNoTarget", err)
	}
	if err := p.ClickPath(ctx, nodepath.Path{9}); !errors.Is(err, ErrNoTarget) {
		t.Errorf("ClickPath([9]) error = %v, want ErrNoTarget", err)
	}
	if err := p.Click(ctx, dom.Button()); !errors.Is(err, ErrNoTarget) {
		t.Errorf("Click(detached) error = %v, want ErrNoTarget", err)
	}

	boot(t, p, shop, ctx)
	if err := p.Boot(ctx, shop.Define); !errors.Is(err, ErrAlreadyBooted) {
		t.Errorf("second Boot() error = %v, want ErrAlreadyBooted", err)
	}

	p.Close()
	if err := p.Do(context.Background(), func(*dom.Document) {}); !errors.Is(err, eventloop.ErrClosed) {
		t.Errorf("Do() after Close error = %v, want eventloop.ErrClosed", err)
	}
}

func TestHTML(t *testing.T) {
	p, shop, ctx := startPage(t, WithID("page-1"), WithTitle("Shop"))
	mount(t, p, shop, ctx)

	html, err := p.HTML(ctx, "/client.js")
	if err != nil {
		t.Fatalf("HTML() error: %v", err)
	}
	for _, want := range []string{
		`<meta name="replay-page" content="page-1">`,
		`<meta name="replay-stream" content="/ws/page-1">`,
		`jsaction="vg.js1"`,
		`jsaction="vg.anchor"`,
		`data-hid="h1"`,
		`<title>Shop</title>`,
		`<script src="/client.js" defer></script>`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML() missing %s", want)
		}
	}
}

func TestFlushJournal(t *testing.T) {
	p, shop, ctx := startPage(t)
	mount(t, p, shop, ctx)
	p.ClickPath(ctx, teeButton)
	boot(t, p, shop, ctx)

	store := journal.NewMemoryStore()
	if err := p.Flush(ctx, store); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	entries, err := store.Load(ctx, p.ID())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(entries) == 0 {
		t.Error("no journal entries stored")
	}
	if p.Journal().Len() != 0 {
		t.Errorf("journal not cleared after flush")
	}
}

func TestPendingKeepsPageUnchanged(t *testing.T) {
	p, _, ctx := startPage(t)
	err := p.Mount(ctx, func(em *annotate.EventManager) (*dom.Node, error) {
		label := dom.Span("Product")
		if _, err := em.AddEventListener(label, "click", nil); err != nil {
			return nil, err
		}
		return dom.A(dom.Href("/product"), label), nil
	})
	if err != nil {
		t.Fatalf("Mount() error: %v", err)
	}
	label := nodepath.Path{0, 0}

	if err := p.ClickPath(ctx, label); err != nil {
		t.Fatalf("ClickPath() error: %v", err)
	}
	if n, err := p.Pending(ctx); err != nil || n != 1 {
		t.Fatalf("Pending() = %d, %v, want 1", n, err)
	}
	if err := p.ClickPath(ctx, label); err != nil {
		t.Fatalf("ClickPath() error: %v", err)
	}
	if n, _ := p.Pending(ctx); n != 2 {
		t.Errorf("Pending() = %d, want 2", n)
	}

	want := []string{"/product", "/product"}
	if got := p.Navigations(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Navigations() = %v, want %v", got, want)
	}

	var built bool
	p.Do(ctx, func(*dom.Document) {
		_, built = p.Runtime().CurrentDispatcher()
	})
	if built {
		t.Error("Pending should not build the dispatcher")
	}
}

func TestCallReturnsWhenContextEnds(t *testing.T) {
	p, shop, ctx := startPage(t)
	mount(t, p, shop, ctx)

	started := make(chan struct{})
	release := make(chan struct{})
	go p.Do(ctx, func(*dom.Document) {
		close(started)
		<-release
	})
	<-started

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := p.HTML(short, ""); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("HTML() err = %v, want context.DeadlineExceeded", err)
	}
	close(release)

	html, err := p.HTML(ctx, "")
	if err != nil {
		t.Fatalf("HTML() error: %v", err)
	}
	if !strings.Contains(html, "Add to cart") {
		t.Errorf("HTML() missing the shop markup")
	}
}

func TestTaskPanicIsReported(t *testing.T) {
	p, _, ctx := startPage(t)
	err := p.Do(ctx, func(*dom.Document) { panic("render failed") })
	if !errors.Is(err, ErrTaskPanicked) {
		t.Errorf("Do() err = %v, want ErrTaskPanicked", err)
	}
	if _, err := p.Booted(ctx); err != nil {
		t.Errorf("page unusable after a panic: %v", err)
	}
}
