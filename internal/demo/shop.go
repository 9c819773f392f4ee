// Package demo is a small shop used by the CLI and the HTTP server to show
// early clicks surviving hydration.
//
// The page lists products, each wrapped in an <add-to-cart> element, and a
// <cart-badge> showing the cart size. Both render through an
// annotate.EventManager: on the server the buttons are instrumented, after
// upgrade the rebuilt buttons carry live listeners that fill the cart.
package demo

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/vango-dev/replay/pkg/annotate"
	"github.com/vango-dev/replay/pkg/dom"
	"github.com/vango-dev/replay/pkg/upgrade"
)

// Custom element tags.
const (
	TagAddToCart = "add-to-cart"
	TagCartBadge = "cart-badge"
)

// Product is an item offered by the shop.
type Product struct {
	ID    string
	Name  string
	Price int // Cents
}

// DefaultProducts is the catalogue used when none is given.
var DefaultProducts = []Product{
	{ID: "tee", Name: "Gopher T-Shirt", Price: 1900},
	{ID: "mug", Name: "Gopher Mug", Price: 1200},
	{ID: "plush", Name: "Gopher Plush", Price: 2500},
}

// Cart counts the items added by live listeners.
type Cart struct {
	mu        sync.Mutex
	items     map[string]int
	count     int
	listeners []func(count int)
}

// NewCart creates an empty cart.
func NewCart() *Cart {
	return &Cart{items: make(map[string]int)}
}

// Add puts one unit of product in the cart and returns the new size.
func (c *Cart) Add(product string) int {
	c.mu.Lock()
	c.items[product]++
	c.count++
	count := c.count
	listeners := append([]func(int){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(count)
	}
	return count
}

// Count returns the number of units in the cart.
func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Quantity returns the units of product in the cart.
func (c *Cart) Quantity(product string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items[product]
}

// OnChange registers fn to run after every Add.
func (c *Cart) OnChange(fn func(count int)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Shop renders and upgrades the demo components.
type Shop struct {
	products []Product
	byID     map[string]Product
	cart     *Cart
}

// NewShop creates a shop over products. A nil or empty slice uses
// DefaultProducts.
func NewShop(products []Product, cart *Cart) *Shop {
	if len(products) == 0 {
		products = DefaultProducts
	}
	if cart == nil {
		cart = NewCart()
	}
	s := &Shop{products: products, byID: make(map[string]Product, len(products)), cart: cart}
	for _, p := range products {
		s.byID[p.ID] = p
	}
	return s
}

// Cart returns the shop cart.
func (s *Shop) Cart() *Cart {
	return s.cart
}

// Products returns the catalogue.
func (s *Shop) Products() []Product {
	return s.products
}

// Render builds the shop body with em. On the server em should hold an
// annotate.ServerPlugin so the buttons and the checkout link are
// instrumented.
func (s *Shop) Render(em *annotate.EventManager) (*dom.Node, error) {
	header := dom.El("header",
		dom.H1("Gopher Shop"),
		dom.El(TagCartBadge, s.badgeContent()),
	)

	list := dom.Section(dom.Class("products"))
	for _, p := range s.products {
		el := dom.El(TagAddToCart, dom.Data("product", p.ID))
		content, err := s.addToCartContent(p, em)
		if err != nil {
			return nil, err
		}
		el.AppendChild(content)
		list.AppendChild(el)
	}

	checkout := dom.A(dom.Href("/checkout"), "Checkout")
	if _, err := em.AddEventListener(checkout, "click", func(*dom.Event) {}); err != nil {
		return nil, err
	}

	return dom.Div(dom.ID("shop"), header, list, dom.El("footer", checkout)), nil
}

// Define registers both components on reg. Upgrades attach listeners with
// native.
func (s *Shop) Define(reg *upgrade.Registry, native *annotate.EventManager) error {
	if err := reg.Define(TagAddToCart, upgrade.Definition{
		Upgrade: func(el *dom.Node) error { return s.upgradeAddToCart(el, native) },
	}); err != nil {
		return err
	}
	return reg.Define(TagCartBadge, upgrade.Definition{
		Upgrade: s.upgradeCartBadge,
	})
}

func (s *Shop) addToCartContent(p Product, em *annotate.EventManager) (*dom.Node, error) {
	button := dom.Button(dom.Class("add"), "Add to cart")
	if _, err := em.AddEventListener(button, "click", func(*dom.Event) {
		s.cart.Add(p.ID)
	}); err != nil {
		return nil, err
	}
	return dom.Div(dom.Class("product"),
		dom.Span(dom.Class("name"), p.Name),
		dom.Span(dom.Class("price"), formatPrice(p.Price)),
		button,
	), nil
}

func (s *Shop) badgeContent() *dom.Node {
	return dom.Span(dom.Class("badge"), strconv.Itoa(s.cart.Count()))
}

// upgradeAddToCart throws the server markup away and builds a live copy.
// The hydration token of the old button moves to the new one.
func (s *Shop) upgradeAddToCart(el *dom.Node, native *annotate.EventManager) error {
	id, _ := el.GetAttribute("data-product")
	p, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("demo: unknown product %q", id)
	}

	var token string
	for _, n := range el.QueryAll(isButton) {
		token = n.Token
		break
	}

	content, err := s.addToCartContent(p, native)
	if err != nil {
		return err
	}
	if token != "" {
		for _, n := range content.QueryAll(isButton) {
			n.Token = token
			n.SetAttribute(dom.TokenAttr, token)
		}
	}
	el.ReplaceChildren(content)
	return nil
}

func (s *Shop) upgradeCartBadge(el *dom.Node) error {
	badge := s.badgeContent()
	el.ReplaceChildren(badge)
	s.cart.OnChange(func(count int) {
		badge.SetTextContent(strconv.Itoa(count))
	})
	return nil
}

func isButton(n *dom.Node) bool {
	return n.IsElement() && n.Tag == "button"
}

func formatPrice(cents int) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
