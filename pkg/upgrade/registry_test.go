package upgrade

import (
	"errors"
	"testing"

	"github.com/vango-dev/replay/pkg/dom"
	"github.com/vango-dev/replay/pkg/jsaction"
)

func TestDetectCapability(t *testing.T) {
	if got := DetectCapability(nil); got != CapabilityPlain {
		t.Errorf("DetectCapability(nil) = %v, want plain", got)
	}
	rt := jsaction.NewRuntime()
	if got := DetectCapability(rt); got != CapabilityPlain {
		t.Errorf("DetectCapability(no contract) = %v, want plain", got)
	}
	rt.InitEventContract(dom.Div())
	if got := DetectCapability(rt); got != CapabilityReplay {
		t.Errorf("DetectCapability(ready) = %v, want replay", got)
	}
}

func TestRegistryCapabilityIsResolvedOnce(t *testing.T) {
	rt := jsaction.NewRuntime()
	r := NewRegistry(rt, &manualScheduler{})
	rt.InitEventContract(dom.Div())

	if r.Capability() != CapabilityPlain {
		t.Errorf("Capability() = %v, want plain as detected at construction", r.Capability())
	}
	forced := NewRegistry(rt, &manualScheduler{}, WithCapability(CapabilityPlain))
	if forced.Capability() != CapabilityPlain {
		t.Errorf("Capability() = %v, want forced plain", forced.Capability())
	}
}

func TestRegistryDefine(t *testing.T) {
	r := NewRegistry(nil, &manualScheduler{})

	if err := r.Define("cart", Definition{}); !errors.Is(err, ErrInvalidTag) {
		t.Errorf("Define(cart) = %v, want ErrInvalidTag", err)
	}
	if err := r.Define("Cart-Badge", Definition{}); err != nil {
		t.Fatalf("Define() error = %v", err)
	}
	if !r.Defined("cart-badge") {
		t.Error("tag should be defined case-insensitively")
	}
	if err := r.Define("cart-badge", Definition{}); !errors.Is(err, ErrAlreadyDefined) {
		t.Errorf("Define twice = %v, want ErrAlreadyDefined", err)
	}
	if err := r.Connect(dom.El("other-el")); !errors.Is(err, ErrUndefined) {
		t.Errorf("Connect(undefined) = %v, want ErrUndefined", err)
	}
}

func TestRegistryPlainUpgrade(t *testing.T) {
	rt := jsaction.NewRuntime()
	r := NewRegistry(rt, &manualScheduler{})

	upgrades := 0
	_ = r.Define("add-to-cart", Definition{Upgrade: func(*dom.Node) error {
		upgrades++
		return nil
	}})

	el := dom.El("add-to-cart")
	_ = r.Connect(el)
	_ = r.Connect(el)

	if upgrades != 1 {
		t.Errorf("upgrades = %d, want 1", upgrades)
	}
	if _, ok := r.Adapter(el); ok {
		t.Error("plain registry should not create adapters")
	}
}

func TestRegistryReplayUpgrade(t *testing.T) {
	f := newFixture(t)
	f.btn.Click()

	sched := &manualScheduler{}
	r := NewRegistry(f.rt, sched)
	clicks := 0
	_ = r.Define("add-to-cart", Definition{Upgrade: rebuild(&clicks)})

	if err := r.UpgradeAll(f.doc.Body()); err != nil {
		t.Fatalf("UpgradeAll() error = %v", err)
	}
	a, ok := r.Adapter(f.el)
	if !ok {
		t.Fatal("adapter not created")
	}
	if clicks != 1 || a.State() != StateReplaying {
		t.Errorf("clicks = %d, state = %v", clicks, a.State())
	}

	r.Disconnect(f.el)
	if a.State() != StateCancelled {
		t.Errorf("State() = %v after Disconnect, want cancelled", a.State())
	}
	r.Disconnect(dom.Div())
}

func TestRegistryUpgradeAllContinuesAfterError(t *testing.T) {
	rt := jsaction.NewRuntime()
	r := NewRegistry(rt, &manualScheduler{})
	boom := errors.New("broken")

	var order []string
	_ = r.Define("bad-el", Definition{Upgrade: func(*dom.Node) error {
		order = append(order, "bad")
		return boom
	}})
	_ = r.Define("good-el", Definition{Upgrade: func(*dom.Node) error {
		order = append(order, "good")
		return nil
	}})

	root := dom.Div(dom.El("bad-el"), dom.Section(dom.El("good-el")))
	err := r.UpgradeAll(root)
	if !errors.Is(err, boom) {
		t.Errorf("UpgradeAll() = %v, want joined error", err)
	}
	if len(order) != 2 || order[0] != "bad" || order[1] != "good" {
		t.Errorf("order = %v, want [bad good]", order)
	}
}

func TestRegistryUpgradeAllSkipsDetached(t *testing.T) {
	rt := jsaction.NewRuntime()
	r := NewRegistry(rt, &manualScheduler{})

	inner := 0
	_ = r.Define("outer-el", Definition{Upgrade: func(el *dom.Node) error {
		el.ReplaceChildren(dom.Span("rebuilt"))
		return nil
	}})
	_ = r.Define("inner-el", Definition{Upgrade: func(*dom.Node) error {
		inner++
		return nil
	}})

	root := dom.Div(dom.El("outer-el", dom.El("inner-el")))
	if err := r.UpgradeAll(root); err != nil {
		t.Fatal(err)
	}
	if inner != 0 {
		t.Errorf("inner upgrades = %d, want 0 for a detached element", inner)
	}
}
