package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/replay/internal/demo"
	"github.com/vango-dev/replay/internal/errors"
	"github.com/vango-dev/replay/pkg/dom"
	"github.com/vango-dev/replay/pkg/journal"
	"github.com/vango-dev/replay/pkg/page"
	"github.com/vango-dev/replay/pkg/upgrade"
)

type simulateOptions struct {
	pages    int
	clicks   int
	products []string
	verified bool
	noCtr    bool
	dump     bool
}

// simulation is the outcome of one simulated page load.
type simulation struct {
	pageID  string
	cart    map[string]int
	pending int
	entries []journal.Entry
}

func simulateCmd(flags *globalFlags) *cobra.Command {
	var opts simulateOptions

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate a page load with early clicks",
		Long: `Simulate a page load without a browser.

Each simulated page renders the demo shop, installs the event contract,
receives clicks on the given products before the components are defined,
then boots. The cart contents show which clicks were replayed.

Examples:
  replay simulate
  replay simulate --clicks 3 --product tee --product mug
  replay simulate --pages 50 --verified
  replay simulate --dump > journal.ndjson`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), flags, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.pages, "pages", "n", 1, "Number of pages to simulate concurrently")
	cmd.Flags().IntVar(&opts.clicks, "clicks", 2, "Early clicks per product")
	cmd.Flags().StringSliceVarP(&opts.products, "product", "p", []string{"tee"}, "Products to click before boot")
	cmd.Flags().BoolVar(&opts.verified, "verified", false, "Resolve snapshots by hydration token")
	cmd.Flags().BoolVar(&opts.noCtr, "no-contract", false, "Render without the event contract")
	cmd.Flags().BoolVar(&opts.dump, "dump", false, "Write the journals as NDJSON to stdout")
	return cmd
}

func runSimulate(ctx context.Context, flags *globalFlags, opts simulateOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.pages < 1 || opts.clicks < 0 {
		return errors.New("E260").WithDetail("--pages must be positive and --clicks not negative")
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	store, err := openJournal(cfg.Journal)
	if err != nil {
		return err
	}

	resolution := cfg.Replay.ResolutionMode()
	if opts.verified {
		resolution = upgrade.ResolveVerified
	}
	pageOpts := []page.Option{
		page.WithLogger(logger),
		page.WithNamespace(cfg.Replay.Namespace),
		page.WithResolution(resolution),
		page.WithJournalLimit(cfg.Replay.JournalLimit),
	}
	if opts.noCtr || cfg.Replay.DisableContract {
		pageOpts = append(pageOpts, page.WithoutContract())
	}

	start := time.Now()
	results := make([]simulation, opts.pages)
	errs := make([]error, opts.pages)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = simulatePage(ctx, pageOpts, opts, store)
		}(i)
	}
	wg.Wait()
	took := time.Since(start)

	for _, err := range errs {
		if err != nil {
			return errors.New("E261").Wrap(err)
		}
	}

	if opts.dump {
		for _, r := range results {
			if err := journal.Encode(os.Stdout, r.entries); err != nil {
				return err
			}
		}
		return nil
	}

	first := results[0]
	success("Simulated %d page(s) in %s", opts.pages, took.Round(time.Microsecond))
	info("resolution: %s, contract: %v", resolution, !(opts.noCtr || cfg.Replay.DisableContract))
	for _, id := range opts.products {
		info("%-6s clicked %d, in cart %d", id, opts.clicks, first.cart[id])
	}
	info("still pending: %d", first.pending)
	counts := make(map[journal.Kind]int)
	for _, e := range first.entries {
		counts[e.Kind]++
	}
	info("journal: %d buffered, %d queued, %d superseded, %d replayed, %d stale",
		counts[journal.KindBuffered], counts[journal.KindQueued], counts[journal.KindSuperseded],
		counts[journal.KindReplayed], counts[journal.KindStale])
	if store != nil {
		info("journals saved to %s sink, first page %s", cfg.Journal.Sink, first.pageID)
	}
	return nil
}

// simulatePage runs one page load: mount, early clicks, boot.
func simulatePage(ctx context.Context, opts []page.Option, sim simulateOptions, store journal.Store) (simulation, error) {
	p := page.New(opts...)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go p.Run(ctx)
	defer p.Close()

	shop := demo.NewShop(nil, nil)
	if err := p.Mount(ctx, shop.Render); err != nil {
		return simulation{}, err
	}

	for _, id := range sim.products {
		var target *dom.Node
		err := p.Do(ctx, func(doc *dom.Document) {
			target = addButton(doc.Body(), id)
		})
		if err != nil {
			return simulation{}, err
		}
		if target == nil {
			return simulation{}, fmt.Errorf("unknown product %q", id)
		}
		for i := 0; i < sim.clicks; i++ {
			if err := p.Click(ctx, target); err != nil {
				return simulation{}, err
			}
		}
	}

	if err := p.Boot(ctx, shop.Define); err != nil {
		return simulation{}, err
	}
	pending, err := p.Pending(ctx)
	if err != nil {
		return simulation{}, err
	}

	res := simulation{
		pageID:  p.ID(),
		cart:    make(map[string]int),
		pending: pending,
		entries: p.Journal().Entries(),
	}
	for _, prod := range shop.Products() {
		res.cart[prod.ID] = shop.Cart().Quantity(prod.ID)
	}
	if store != nil {
		if err := p.Flush(ctx, store); err != nil {
			return simulation{}, err
		}
	}
	return res, nil
}

// addButton finds the add button of product id in the server markup.
func addButton(body *dom.Node, id string) *dom.Node {
	for _, el := range body.QueryAll(func(n *dom.Node) bool { return n.Tag == demo.TagAddToCart }) {
		if v, _ := el.GetAttribute("data-product"); v != id {
			continue
		}
		if buttons := el.QueryAll(func(n *dom.Node) bool { return n.Tag == "button" }); len(buttons) > 0 {
			return buttons[0]
		}
	}
	return nil
}
