package memory

import (
	"context"
	"sync"

	"github.com/lojavirtual/orderflow/internal/domain/product"
)

var _ product.Repository = (*Catalog)(nil)

// Catalog is an in-memory product.Repository.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]product.Product
}

// NewCatalog creates a catalog holding the given products.
func NewCatalog(products ...product.Product) *Catalog {
	c := &Catalog{products: make(map[string]product.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// Put inserts or replaces a product.
func (c *Catalog) Put(p product.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

func (c *Catalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (c *Catalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]product.Product, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, p)
		}
	}
	return out, nil
}
