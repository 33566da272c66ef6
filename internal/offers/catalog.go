// Package offers loads the sale offer catalog from a YAML file. The catalog
// is the server-side source of truth for offer names and prices, so a
// tampered client cannot invent its own amounts.
package offers

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Offer is one purchasable package.
type Offer struct {
	Type        string          `yaml:"type" json:"type"`
	Name        string          `yaml:"name" json:"name"`
	Amount      decimal.Decimal `yaml:"amount" json:"amount"`
	Currency    string          `yaml:"currency" json:"currency"`
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
	Sources     []string        `yaml:"sources,omitempty" json:"sources,omitempty"`
}

// AvailableFor reports whether the offer is sold on the given channel. An
// offer with no sources list is available everywhere.
func (o Offer) AvailableFor(source string) bool {
	if len(o.Sources) == 0 {
		return true
	}
	for _, s := range o.Sources {
		if strings.EqualFold(s, source) {
			return true
		}
	}
	return false
}

type catalogFile struct {
	Offers []Offer `yaml:"offers"`
}

// Catalog is an immutable offer lookup loaded at startup.
type Catalog struct {
	mu     sync.RWMutex
	byType map[string]Offer
	order  []string
}

// LoadCatalog reads and validates a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read offer catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse offer catalog: %w", err)
	}
	return NewCatalog(file.Offers)
}

// NewCatalog builds a catalog from a validated offer list.
func NewCatalog(list []Offer) (*Catalog, error) {
	c := &Catalog{byType: make(map[string]Offer, len(list))}
	for i, offer := range list {
		key := strings.ToLower(strings.TrimSpace(offer.Type))
		if key == "" {
			return nil, fmt.Errorf("offer %d: missing type", i)
		}
		if _, exists := c.byType[key]; exists {
			return nil, fmt.Errorf("offer %q: duplicate type", offer.Type)
		}
		if offer.Name == "" {
			return nil, fmt.Errorf("offer %q: missing name", offer.Type)
		}
		if !offer.Amount.IsPositive() {
			return nil, fmt.Errorf("offer %q: amount must be positive", offer.Type)
		}
		offer.Type = key
		offer.Currency = strings.ToUpper(offer.Currency)
		c.byType[key] = offer
		c.order = append(c.order, key)
	}
	return c, nil
}

// Get returns the offer for a type tag, if present.
func (c *Catalog) Get(offerType string) (Offer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	offer, ok := c.byType[strings.ToLower(strings.TrimSpace(offerType))]
	return offer, ok
}

// List returns all offers in file order.
func (c *Catalog) List() []Offer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Offer, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.byType[key])
	}
	return out
}

// Empty is a catalog with no offers, used when no catalog file is configured.
// Lookups miss, which leaves request amounts as the pricing source.
func Empty() *Catalog {
	return &Catalog{byType: make(map[string]Offer)}
}
