package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/product-snapshot-pipeline/internal/db"
)

func TestSQLSource_ListProducts(t *testing.T) {
	conn, err := db.OpenSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	source := NewSQLSource(conn)
	ctx := context.Background()
	require.NoError(t, source.EnsureSchema(ctx))

	_, err = conn.ExecContext(ctx, `INSERT INTO products (id, name, image_url) VALUES
		('p2', 'Mug', 'https://images.example.com/mug.jpg'),
		('p1', 'Cup', 'https://images.example.com/cup.jpg'),
		('p3', 'No image yet', '')`)
	require.NoError(t, err)

	products, err := source.ListProducts(ctx)
	require.NoError(t, err)

	require.Len(t, products, 2, "products without an image are skipped")
	assert.Equal(t, "p1", products[0].ID)
	assert.Equal(t, "Cup", products[0].Name)
	assert.Equal(t, "p2", products[1].ID)
}

func TestSQLSource_EmptyTable(t *testing.T) {
	conn, err := db.OpenSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	source := NewSQLSource(conn)
	ctx := context.Background()
	require.NoError(t, source.EnsureSchema(ctx))

	products, err := source.ListProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestStaticSource(t *testing.T) {
	source := StaticSource{{ID: "p1", ImageURL: "ref1"}}
	products, err := source.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 1)
}
