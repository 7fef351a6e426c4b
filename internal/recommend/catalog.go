package recommend

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/SkinPipe/internal/models"
)

// FallbackComboKey names the bundle used for keys without one.
const FallbackComboKey = models.ComboDry

// Catalog is a read-only table of bundles keyed by combo key.
type Catalog struct {
	bundles map[models.ComboKey]models.Bundle
}

// NewCatalog builds a catalog from bundles. The table must contain the
// fallback bundle.
func NewCatalog(bundles map[models.ComboKey]models.Bundle) (*Catalog, error) {
	if _, ok := bundles[FallbackComboKey]; !ok {
		return nil, fmt.Errorf("catalog is missing the %q fallback bundle", FallbackComboKey)
	}
	copied := make(map[models.ComboKey]models.Bundle, len(bundles))
	for k, b := range bundles {
		copied[k] = cloneBundle(b)
	}
	return &Catalog{bundles: copied}, nil
}

var defaultCatalog = mustCatalog(DefaultBundles())

func mustCatalog(b map[models.ComboKey]models.Bundle) *Catalog {
	c, err := NewCatalog(b)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

// Lookup returns the bundle for key, falling back to the dry bundle. The
// returned bundle is a copy.
func (c *Catalog) Lookup(key models.ComboKey) models.Bundle {
	if b, ok := c.bundles[key]; ok {
		return cloneBundle(b)
	}
	slog.Debug("recommend.Catalog.Lookup: no bundle for key, using fallback", "key", key, "fallback", FallbackComboKey)
	return cloneBundle(c.bundles[FallbackComboKey])
}

// Resolve classifies answers and looks up the bundle.
func (c *Catalog) Resolve(answers models.AnswerSet) models.Recommendation {
	key, rule := classify(answers)
	slog.Debug("recommend.Catalog.Resolve: classified", "comboKey", key, "rule", rule)
	return models.Recommendation{ComboKey: key, Bundle: c.Lookup(key)}
}

// ResolveRecommendation resolves answers against the built-in catalog. It is
// pure: identical answers always produce identical output.
func ResolveRecommendation(answers models.AnswerSet) models.Recommendation {
	return defaultCatalog.Resolve(answers)
}

// Summary renders a recommendation as a plain-text message for sharing.
func Summary(rec models.Recommendation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Your recommended Minimalist combo: %s\n", rec.Bundle.Name)
	for i, p := range rec.Bundle.Products {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, p.Name, p.Description)
	}
	if rec.Bundle.Link != "" {
		fmt.Fprintf(&sb, "View product: %s\n", rec.Bundle.Link)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func cloneBundle(b models.Bundle) models.Bundle {
	out := b
	out.Products = append([]models.Product(nil), b.Products...)
	return out
}

// DefaultBundles returns the built-in bundle table.
func DefaultBundles() map[models.ComboKey]models.Bundle {
	return map[models.ComboKey]models.Bundle{
		models.ComboOily: {
			Name: "Oily Skincare Combo",
			Products: []models.Product{
				{Name: "Salicylic Acid + LHA 2% Cleanser", Description: "Acne, Breakouts & Oiliness"},
				{Name: "Salicylic Acid 2% Face Serum", Description: "Acne, Oily Skin, Blackheads & Irritation"},
				{Name: "Vitamin B5 10% Moisturizer", Description: "Damaged Barrier, Oily & Dehydrated"},
			},
			Link: "https://beminimalist.co/products/anti-acne-kit",
		},
		models.ComboDry: {
			Name: "Dry Skincare Combo",
			Products: []models.Product{
				{Name: "Oat Extract 6% Gentle Cleanser", Description: "Dry, Dehydrated, Sensitive Skin"},
				{Name: "Vitamin B5 10% Moisturizer", Description: "Damaged Barrier, Oily & Dehydrated"},
				{Name: "Hyaluronic + PGA 2% Face Serum", Description: "Dry, Dehydrated & Tightened Skin"},
			},
			Link: "https://beminimalist.co/collections/kits/products/dry-skincare-kit",
		},
		models.ComboPigmentation: {
			Name: "Anti Pigmentation Combo",
			Products: []models.Product{
				{Name: "Alpha Arbutin 2% Face Serum", Description: "Hyperpigmentation, Tanning & Sunspot"},
				{Name: "Vitamin C + E + Ferulic 16% Face Serum", Description: "Spots, Uneven Tone & Dull Skin"},
				{Name: "Tranexamic 3% Face Serum", Description: "Acne Scars, Melasma, PIE"},
			},
			Link: "https://beminimalist.co/collections/kits/products/anti-pigmentation-kit",
		},
		models.ComboDull: {
			Name: "Dullness & Texture Combo",
			Products: []models.Product{
				{Name: "Alpha Lipoic + Glycolic 7% Cleanser", Description: "Dull & Rough Skin, Uneven Tone"},
				{Name: "Vitamin C 10% Face Serum", Description: "Dullness, Spots & Loss of Elasticity"},
				{Name: "Glycolic Acid 8% Exfoliating Liquid", Description: "Dull Skin, Uneven Tone & Texture"},
			},
			Link: "https://beminimalist.co/collections/kits/products/dry-skincare-kit",
		},
		models.ComboAging: {
			Name: "Anti Aging Combo",
			Products: []models.Product{
				{Name: "Retinol 0.3% Face Serum", Description: "Fine Lines, Wrinkles & Loss of Elasticity"},
				{Name: "Vitamin K + Retinal 1% Eye Cream", Description: "Dark Circles, Fine Lines & Eye Puffiness"},
				{Name: "Anti Aging Skin Care Kit", Description: "Combo: Fine Lines & Wrinkles"},
			},
			Link: "https://beminimalist.co/collections/kits/products/anti-aging-kit",
		},
		models.ComboSensitive: {
			Name: "Sensitive Skin Combo",
			Products: []models.Product{
				{Name: "Oat Extract 6% Gentle Cleanser", Description: "Dry, Dehydrated, Sensitive Skin"},
				{Name: "Niacinamide 5% Face Serum", Description: "Acne Marks, Irritated & Damaged Skin"},
				{Name: "Polyhydroxy Acid (PHA) 3% Face Toner", Description: "Enlarged Pores & Dehydrated Skin"},
			},
		},
	}
}
