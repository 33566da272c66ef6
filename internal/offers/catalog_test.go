package offers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

const sampleCatalog = `
offers:
  - type: gold
    name: Gold Package
    amount: 199.99
    currency: usd
    sources: [packages, black_friday]
  - type: silver
    name: Silver Package
    amount: 99
    currency: USD
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "offers.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoadCatalog(t *testing.T) {
	catalog, err := LoadCatalog(writeCatalog(t, sampleCatalog))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	gold, ok := catalog.Get("GOLD")
	if !ok {
		t.Fatal("gold offer missing (lookup should be case-insensitive)")
	}
	if gold.Name != "Gold Package" {
		t.Errorf("name = %q", gold.Name)
	}
	if !gold.Amount.Equal(decimal.RequireFromString("199.99")) {
		t.Errorf("amount = %s", gold.Amount)
	}
	if gold.Currency != "USD" {
		t.Errorf("currency = %q, want uppercased", gold.Currency)
	}

	if got := len(catalog.List()); got != 2 {
		t.Errorf("List() len = %d, want 2", got)
	}
	if _, ok := catalog.Get("platinum"); ok {
		t.Error("unknown offer type resolved")
	}
}

func TestCatalog_AvailableFor(t *testing.T) {
	catalog, err := LoadCatalog(writeCatalog(t, sampleCatalog))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	gold, _ := catalog.Get("gold")
	if !gold.AvailableFor("packages") || !gold.AvailableFor("BLACK_FRIDAY") {
		t.Error("gold should be available on its listed channels")
	}
	if gold.AvailableFor("ramadan") {
		t.Error("gold should not be available on unlisted channels")
	}

	silver, _ := catalog.Get("silver")
	if !silver.AvailableFor("anything") {
		t.Error("offer without sources should be available everywhere")
	}
}

func TestNewCatalog_Validation(t *testing.T) {
	tests := []struct {
		name   string
		offers []Offer
	}{
		{"missing type", []Offer{{Name: "X", Amount: decimal.NewFromInt(1)}}},
		{"missing name", []Offer{{Type: "x", Amount: decimal.NewFromInt(1)}}},
		{"zero amount", []Offer{{Type: "x", Name: "X"}}},
		{"duplicate type", []Offer{
			{Type: "x", Name: "X", Amount: decimal.NewFromInt(1)},
			{Type: "X", Name: "X2", Amount: decimal.NewFromInt(2)},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCatalog(tt.offers); err == nil {
				t.Error("NewCatalog accepted invalid offers")
			}
		})
	}
}

func TestEmptyCatalog(t *testing.T) {
	if _, ok := Empty().Get("gold"); ok {
		t.Error("empty catalog resolved an offer")
	}
}
