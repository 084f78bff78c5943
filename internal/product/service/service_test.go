package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaguard/internal/clock"
	"github.com/smallbiznis/quotaguard/internal/product/domain"
	"github.com/smallbiznis/quotaguard/internal/product/repository"
	"github.com/smallbiznis/quotaguard/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()
	conn := dbtest.Open(t, &domain.Product{})
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	return New(Params{
		DB:    conn,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func createProduct(t *testing.T, svc domain.Service, req domain.CreateRequest) *domain.Response {
	t.Helper()
	if req.Name == "" {
		req.Name = "Kingfisher Premium"
	}
	if req.Category == "" {
		req.Category = "beer"
	}
	if req.Volume == 0 {
		req.Volume = 650
		req.VolumeUnit = "ml"
	}
	if req.Price == 0 {
		req.Price = 18000
	}
	resp, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	return resp
}

func TestCreateNormalizesVolumeAndCategory(t *testing.T) {
	svc := newTestService(t)

	resp := createProduct(t, svc, domain.CreateRequest{
		Barcode:  "8901234000011",
		Category: "  Whiskey ",
		Volume:   0.75,
		Stock:    40,
	})
	assert.Equal(t, domain.CategoryWhiskey, resp.Category)
	assert.Equal(t, int64(750), resp.VolumeML)
	assert.InDelta(t, 0.75, resp.VolumeLiters, 1e-9)
	assert.Equal(t, int64(domain.DefaultReorderLevel), resp.ReorderLevel)
	assert.Equal(t, domain.StockStatusInStock, resp.StockStatus)

	ml := createProduct(t, svc, domain.CreateRequest{Barcode: "8901234000028", Volume: 330, VolumeUnit: "ML"})
	assert.Equal(t, int64(330), ml.VolumeML)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.CreateRequest
		err  error
	}{
		{"blank name", domain.CreateRequest{Barcode: "1", Category: "beer", Volume: 1}, domain.ErrInvalidName},
		{"blank barcode", domain.CreateRequest{Name: "x", Category: "beer", Volume: 1}, domain.ErrInvalidBarcode},
		{"bad category", domain.CreateRequest{Name: "x", Barcode: "1", Category: "juice", Volume: 1}, domain.ErrInvalidCategory},
		{"zero volume", domain.CreateRequest{Name: "x", Barcode: "1", Category: "beer"}, domain.ErrInvalidVolume},
		{"bad unit", domain.CreateRequest{Name: "x", Barcode: "1", Category: "beer", Volume: 1, VolumeUnit: "oz"}, domain.ErrInvalidVolume},
		{"abv", domain.CreateRequest{Name: "x", Barcode: "1", Category: "beer", Volume: 1, AlcoholContent: 120}, domain.ErrInvalidAlcoholContent},
		{"price", domain.CreateRequest{Name: "x", Barcode: "1", Category: "beer", Volume: 1, Price: -1}, domain.ErrInvalidPrice},
		{"stock", domain.CreateRequest{Name: "x", Barcode: "1", Category: "beer", Volume: 1, Stock: -3}, domain.ErrInvalidStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.req)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestCreateDuplicateBarcode(t *testing.T) {
	svc := newTestService(t)
	createProduct(t, svc, domain.CreateRequest{Barcode: "dup"})

	_, err := svc.Create(context.Background(), domain.CreateRequest{
		Name: "Other", Barcode: "dup", Category: "wine", Volume: 0.75,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateBarcode)
}

func TestGetByBarcodeSkipsInactive(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := createProduct(t, svc, domain.CreateRequest{Barcode: "scan-me", Stock: 5})

	got, err := svc.GetByBarcode(ctx, "scan-me")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	id, err := snowflake.ParseString(p.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, id))

	_, err = svc.GetByBarcode(ctx, "scan-me")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// still resolvable by id for history
	_, err = svc.Get(ctx, id)
	assert.NoError(t, err)
}

func TestListFiltersAndLowStock(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	createProduct(t, svc, domain.CreateRequest{Name: "Alpha Lager", Barcode: "a", Stock: 50})
	createProduct(t, svc, domain.CreateRequest{Name: "Bravo Red", Barcode: "b", Category: "wine", Volume: 0.75, Stock: 3})
	createProduct(t, svc, domain.CreateRequest{Name: "Charlie Dry", Barcode: "c", Category: "gin", Volume: 1, Stock: 0})

	all, err := svc.List(ctx, domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Alpha Lager", all[0].Name)

	wine, err := svc.List(ctx, domain.ListRequest{Category: domain.CategoryWine})
	require.NoError(t, err)
	require.Len(t, wine, 1)
	assert.Equal(t, domain.StockStatusLowStock, wine[0].StockStatus)

	inStock, err := svc.List(ctx, domain.ListRequest{InStock: true})
	require.NoError(t, err)
	assert.Len(t, inStock, 2)

	search, err := svc.List(ctx, domain.ListRequest{Search: "lager"})
	require.NoError(t, err)
	require.Len(t, search, 1)

	low, err := svc.ListLowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "Charlie Dry", low[0].Name)
	assert.Equal(t, domain.StockStatusOutOfStock, low[0].StockStatus)
}

func TestUpdateAndGetProducts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := createProduct(t, svc, domain.CreateRequest{Barcode: "u1"})
	id, err := snowflake.ParseString(p.ID)
	require.NoError(t, err)

	price := int64(21000)
	updated, err := svc.Update(ctx, id, domain.UpdateRequest{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, price, updated.Price)

	blank := " "
	_, err = svc.Update(ctx, id, domain.UpdateRequest{Name: &blank})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Update(ctx, snowflake.ID(42), domain.UpdateRequest{Price: &price})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	byID, err := svc.GetProducts(ctx, []snowflake.ID{id})
	require.NoError(t, err)
	assert.Equal(t, price, byID[id].Price)

	_, err = svc.GetProducts(ctx, []snowflake.ID{id, 99})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
