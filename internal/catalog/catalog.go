// Package catalog lists the products eligible for the daily snapshot run.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// Product is one catalog entry with the image the daily job re-analyzes
type Product struct {
	ID       string
	Name     string
	ImageURL string
}

// Source enumerates products for scheduled re-snapshot runs
type Source interface {
	ListProducts(ctx context.Context) ([]Product, error)
}

// SQLSource reads products from the products table
type SQLSource struct {
	db *sql.DB
}

// NewSQLSource creates a catalog source over an open database handle
func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

// EnsureSchema creates the products table if missing
func (s *SQLSource) EnsureSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS products (
		id        TEXT PRIMARY KEY,
		name      TEXT,
		image_url TEXT NOT NULL DEFAULT ''
	)`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure products table: %w", err)
	}
	return nil
}

// ListProducts returns all products that have an image to snapshot
func (s *SQLSource) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, COALESCE(name, ''), image_url FROM products WHERE image_url <> '' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.ImageURL); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// StaticSource serves a fixed product list
type StaticSource []Product

// ListProducts returns the fixed list
func (s StaticSource) ListProducts(ctx context.Context) ([]Product, error) {
	return s, nil
}
