package dom

import (
	"fmt"
	"sync"
)

// TokenAttr is the attribute that carries a node's hydration token in
// rendered markup.
const TokenAttr = "data-hid"

// TokenGenerator generates unique hydration tokens for a page.
type TokenGenerator struct {
	counter uint32
	mu      sync.Mutex
}

// NewTokenGenerator creates a new TokenGenerator.
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// Next returns the next token (e.g., "h1", "h2", ...).
func (g *TokenGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("h%d", g.counter)
}

// Current returns the current counter value without incrementing.
func (g *TokenGenerator) Current() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counter
}

// Reset resets the counter to 0.
func (g *TokenGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter = 0
}

// Assign gives n a token unless it already has one and returns it.
func (g *TokenGenerator) Assign(n *Node) string {
	if n.Token == "" {
		n.Token = g.Next()
	}
	return n.Token
}

// FindByToken finds the element carrying token in the subtree rooted at n.
func FindByToken(n *Node, token string) *Node {
	if n == nil || token == "" {
		return nil
	}
	var found *Node
	n.Walk(func(c *Node) bool {
		if found != nil {
			return false
		}
		if c.Kind == KindElement && c.Token == token {
			found = c
			return false
		}
		return true
	})
	return found
}

// CollectTokens returns a map of token to node for every tokenized element.
func CollectTokens(n *Node) map[string]*Node {
	out := make(map[string]*Node)
	n.Walk(func(c *Node) bool {
		if c.Token != "" {
			out[c.Token] = c
		}
		return true
	})
	return out
}
