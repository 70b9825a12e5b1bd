// Package catalog loads the read-only product menu the counter sells from.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/acai-counter/pos/internal/domain"
	"github.com/acai-counter/pos/internal/platform/textutil"
)

//go:embed menu.yaml
var seedMenu []byte

// ErrInvalidCatalog reports a catalog file that cannot be served.
var ErrInvalidCatalog = errors.New("catalog: invalid catalog")

type catalogFile struct {
	Products []domain.Product `yaml:"products"`
}

// Catalog is an immutable, indexed product list. Safe for concurrent use.
type Catalog struct {
	products   []domain.Product
	byID       map[string]int
	byCategory map[string][]int
}

// Default returns the built-in seed menu.
func Default() (*Catalog, error) {
	return Parse(bytes.NewReader(seedMenu))
}

// Load reads a YAML catalog from path, or the seed menu when path is empty.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse decodes and validates a YAML catalog document.
func Parse(r io.Reader) (*Catalog, error) {
	var doc catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	return New(doc.Products)
}

// New indexes products after validating them.
func New(products []domain.Product) (*Catalog, error) {
	c := &Catalog{
		products:   make([]domain.Product, 0, len(products)),
		byID:       make(map[string]int, len(products)),
		byCategory: make(map[string][]int),
	}
	var problems []string
	for idx, product := range products {
		product.ID = strings.TrimSpace(product.ID)
		product.Name = textutil.SanitizeLabel(product.Name)
		if msg := validateProduct(product); msg != "" {
			problems = append(problems, fmt.Sprintf("products[%d]: %s", idx, msg))
			continue
		}
		if _, dup := c.byID[product.ID]; dup {
			problems = append(problems, fmt.Sprintf("products[%d]: duplicate id %q", idx, product.ID))
			continue
		}
		pos := len(c.products)
		c.products = append(c.products, product.Clone())
		c.byID[product.ID] = pos
		key := textutil.NormalizeKey(product.Category)
		c.byCategory[key] = append(c.byCategory[key], pos)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(problems, "; "))
	}
	return c, nil
}

func validateProduct(p domain.Product) string {
	switch {
	case p.ID == "":
		return "id is required"
	case p.Name == "":
		return "name is required"
	case !p.Type.Valid():
		return fmt.Sprintf("unknown type %q", p.Type)
	case p.Price.IsNegative():
		return "price must not be negative"
	case len(p.Options) > 0 && p.Type != domain.ProductTypeOption:
		return "options are only allowed on option products"
	}
	for category, limit := range p.Options {
		if limit < 0 {
			return fmt.Sprintf("option %q has a negative limit", category)
		}
	}
	return ""
}

// Product looks up a product by id.
func (c *Catalog) Product(id string) (domain.Product, bool) {
	pos, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return domain.Product{}, false
	}
	return c.products[pos].Clone(), true
}

// Products returns every product in file order.
func (c *Catalog) Products() []domain.Product {
	out := make([]domain.Product, len(c.products))
	for idx, p := range c.products {
		out[idx] = p.Clone()
	}
	return out
}

// ByCategory lists products of category, matched case- and normalisation-insensitively.
func (c *Catalog) ByCategory(category string) []domain.Product {
	positions := c.byCategory[textutil.NormalizeKey(category)]
	out := make([]domain.Product, 0, len(positions))
	for _, pos := range positions {
		out = append(out, c.products[pos].Clone())
	}
	return out
}

// Categories returns the distinct category labels, sorted.
func (c *Catalog) Categories() []string {
	seen := map[string]bool{}
	out := []string{}
	for _, p := range c.products {
		key := textutil.NormalizeKey(p.Category)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p.Category)
	}
	sort.Strings(out)
	return out
}
