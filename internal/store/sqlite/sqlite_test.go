package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infopos/backend/internal/domain"
	"infopos/backend/internal/service"
	"infopos/backend/internal/store"
)

var (
	t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	t1 = time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	t2 = time.Date(2024, 5, 3, 8, 0, 0, 0, time.UTC)
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func exec(t *testing.T, s *Store, q string, args ...any) {
	t.Helper()
	_, err := s.Conn().ExecContext(context.Background(), Dialect{}.Rebind(q), args...)
	require.NoError(t, err, q)
}

func ts(t time.Time) string { return t.UTC().Format(TimeLayout) }

// seedCatalogue creates two products: product 1 stocked in stores 1 and 2,
// product 2 stocked only in store 2, and an inactive product 3.
func seedCatalogue(t *testing.T, s *Store) {
	exec(t, s, `INSERT INTO stores (id, name, created_at, updated_at) VALUES (1, 'Main', $1, $1), (2, 'Branch', $1, $1)`, ts(t0))
	exec(t, s, `INSERT INTO products (id, name, sku, created_at, updated_at, is_active) VALUES
		(1, 'Kopi', 'K-1', $1, $1, 1), (2, 'Teh', 'T-1', $1, $1, 1), (3, 'Old', 'O-1', $1, $1, 0)`, ts(t0))
	exec(t, s, `INSERT INTO product_batches (id, product_id, batch_number, cost, price, created_at, updated_at) VALUES
		(10, 1, 'B-10', 1500, 2500, $1, $1), (20, 2, 'B-20', 900, 1800, $1, $1), (30, 3, 'B-30', 1, 2, $1, $1)`, ts(t0))
	exec(t, s, `INSERT INTO product_stocks (id, product_id, batch_id, store_id, quantity, created_at, updated_at) VALUES
		(100, 1, 10, 1, 7, $1, $1), (101, 1, 10, 2, 5, $1, $1), (102, 2, 20, 2, 4, $1, $1), (103, 3, 30, 1, 9, $1, $1)`, ts(t0))
}

func TestPullProductsScopesStockToStore(t *testing.T) {
	s := openTestStore(t)
	seedCatalogue(t, s)
	ctx := context.Background()

	storeOne := int64(1)
	scoped, err := s.PullProducts(ctx, store.DeltaFilter{StoreID: &storeOne})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, int64(1), scoped[0].ID)
	require.Len(t, scoped[0].Batches, 1)
	assert.Equal(t, 7.0, scoped[0].Batches[0].StockQuantity)

	all, err := s.PullProducts(ctx, store.DeltaFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2, "inactive products are never pulled")
	assert.Equal(t, 12.0, all[0].Batches[0].StockQuantity)
	assert.Equal(t, t0, all[0].UpdatedAt)
}

func TestPullProductsDeltaFollowsBatchAndStockChanges(t *testing.T) {
	s := openTestStore(t)
	seedCatalogue(t, s)
	ctx := context.Background()

	none, err := s.PullProducts(ctx, store.DeltaFilter{Since: &t1})
	require.NoError(t, err)
	assert.Empty(t, none)

	exec(t, s, `UPDATE product_stocks SET updated_at = $1 WHERE id = 102`, ts(t2))
	changed, err := s.PullProducts(ctx, store.DeltaFilter{Since: &t1})
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, int64(2), changed[0].ID)

	storeOne := int64(1)
	scoped, err := s.PullProducts(ctx, store.DeltaFilter{Since: &t1, StoreID: &storeOne})
	require.NoError(t, err)
	assert.Empty(t, scoped, "a stock change in another store does not count")

	exec(t, s, `UPDATE product_batches SET updated_at = $1 WHERE id = 10`, ts(t2))
	scoped, err = s.PullProducts(ctx, store.DeltaFilter{Since: &t1, StoreID: &storeOne})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, int64(1), scoped[0].ID)

	boundary, err := s.PullProducts(ctx, store.DeltaFilter{Since: &t2, StoreID: &storeOne})
	require.NoError(t, err)
	assert.Len(t, boundary, 1, "updated_at equal to last_sync is included")
}

func TestPullStockJoinsAndTracksBatchChanges(t *testing.T) {
	s := openTestStore(t)
	seedCatalogue(t, s)
	ctx := context.Background()

	rows, err := s.PullStock(ctx, 1, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].ProductName)
	assert.Equal(t, "Kopi", *rows[0].ProductName)
	assert.Equal(t, "B-10", *rows[0].BatchNumber)
	assert.Equal(t, 2500.0, *rows[0].Price)

	delta, err := s.PullStock(ctx, 1, &t1)
	require.NoError(t, err)
	assert.Empty(t, delta)

	exec(t, s, `UPDATE product_batches SET updated_at = $1 WHERE id = 30`, ts(t2))
	delta, err = s.PullStock(ctx, 1, &t1)
	require.NoError(t, err)
	require.Len(t, delta, 1)
	assert.Equal(t, int64(103), delta[0].ID)
}

func TestBatchSavepointIsolatesRejectedRecord(t *testing.T) {
	s := openTestStore(t)
	seedCatalogue(t, s)
	ctx := context.Background()

	missing := int64(999)
	err := s.RunBatch(ctx, func(tx store.BatchTx) error {
		first := tx.Isolate(ctx, func() error {
			_, err := tx.CreateContact(ctx, domain.Contact{ID: 50, Name: "Budi", ContactType: "customer", IsActive: true, CreatedAt: t2, UpdatedAt: t2})
			return err
		})
		require.NoError(t, first)

		second := tx.Isolate(ctx, func() error {
			if _, err := tx.CreateContact(ctx, domain.Contact{Name: "Partial", ContactType: "customer", CreatedAt: t2, UpdatedAt: t2}); err != nil {
				return err
			}
			_, err := tx.CreateTransaction(ctx, domain.Transaction{StoreID: 1, SaleID: &missing, Amount: 10,
				PaymentMethod: "Cash", TransactionType: "payment", TransactionDate: t2, CreatedAt: t2, UpdatedAt: t2})
			return err
		})
		assert.True(t, errors.Is(second, store.ErrRecordRejected), "got %v", second)
		return nil
	})
	require.NoError(t, err)

	contacts, err := s.PullContacts(ctx, nil)
	require.NoError(t, err)
	require.Len(t, contacts, 1, "the partial write inside the failed savepoint is undone")
	assert.Equal(t, int64(50), contacts[0].ID)

	n, err := s.CountTransactions(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunBatchRollsBackOnEngineError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.RunBatch(ctx, func(tx store.BatchTx) error {
		if _, err := tx.CreateContact(ctx, domain.Contact{Name: "Gone", ContactType: "customer", CreatedAt: t1, UpdatedAt: t1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := s.CountContacts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaleUpsertWithItemsAndDelta(t *testing.T) {
	s := openTestStore(t)
	seedCatalogue(t, s)
	ctx := context.Background()

	product := int64(1)
	batch := int64(10)
	err := s.RunBatch(ctx, func(tx store.BatchTx) error {
		saleID, err := tx.CreateSale(ctx, domain.Sale{ID: 12, InvoiceNumber: "INV-12", StoreID: 1, SaleType: "normal",
			TotalAmount: 50, Status: "completed", PaymentStatus: "completed", PaymentMethod: "Cash",
			SaleDate: t1, CreatedAt: t1, UpdatedAt: t1})
		if err != nil {
			return err
		}
		_, err = tx.CreateSaleItem(ctx, domain.SaleItem{SaleID: saleID, ProductID: &product, BatchID: &batch,
			Quantity: 2, UnitPrice: 25, CreatedAt: t1, UpdatedAt: t1})
		return err
	})
	require.NoError(t, err)

	err = s.RunBatch(ctx, func(tx store.BatchTx) error {
		owner, exists, err := tx.FindSaleStore(ctx, 12)
		require.NoError(t, err)
		require.True(t, exists)
		assert.Equal(t, int64(1), owner)

		id, found, err := tx.FindSaleByInvoice(ctx, 1, "INV-12")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int64(12), id)

		itemID, found, err := tx.FindSaleItem(ctx, 12, domain.SaleItemKey{ProductID: &product})
		require.NoError(t, err)
		require.True(t, found)
		return tx.UpdateSaleItem(ctx, domain.SaleItem{ID: itemID, SaleID: 12, ProductID: &product, BatchID: &batch,
			Quantity: 3, UnitPrice: 25, UpdatedAt: t2})
	})
	require.NoError(t, err)

	sales, err := s.PullSales(ctx, 1, &t2)
	require.NoError(t, err)
	require.Len(t, sales, 1, "an item change alone brings the sale into the delta")
	require.Len(t, sales[0].Items, 1)
	assert.Equal(t, 3.0, sales[0].Items[0].Quantity)
	assert.Equal(t, "INV-12", sales[0].InvoiceNumber)
	assert.Equal(t, t1, sales[0].SaleDate)

	other, err := s.PullSales(ctx, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, other)

	dup := s.RunBatch(ctx, func(tx store.BatchTx) error {
		_, err := tx.CreateSale(ctx, domain.Sale{InvoiceNumber: "INV-12", StoreID: 1, SaleType: "normal",
			TotalAmount: 1, Status: "completed", PaymentStatus: "completed", PaymentMethod: "Cash",
			SaleDate: t2, CreatedAt: t2, UpdatedAt: t2})
		return err
	})
	assert.ErrorIs(t, dup, store.ErrRecordRejected)
}

func TestStockUpsertKeyedByProductBatchStore(t *testing.T) {
	s := openTestStore(t)
	seedCatalogue(t, s)
	ctx := context.Background()

	err := s.RunBatch(ctx, func(tx store.BatchTx) error {
		id, found, err := tx.FindStock(ctx, 1, 10, 1)
		require.NoError(t, err)
		require.True(t, found)
		require.NoError(t, tx.UpdateStockQuantity(ctx, id, 3, t2))

		_, found, err = tx.FindStock(ctx, 2, 20, 1)
		require.NoError(t, err)
		require.False(t, found)
		_, err = tx.CreateStock(ctx, domain.Stock{ProductID: 2, BatchID: 20, StoreID: 1, Quantity: 6, CreatedAt: t2, UpdatedAt: t2})
		return err
	})
	require.NoError(t, err)

	n, err := s.CountStock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	rows, err := s.PullStock(ctx, 1, &t2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 3.0, rows[0].Quantity)
}

func TestStoreAndUserLookups(t *testing.T) {
	s := openTestStore(t)
	seedCatalogue(t, s)
	ctx := context.Background()

	info, err := s.GetStore(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Main", info.Name)

	_, err = s.GetStore(ctx, 404)
	assert.ErrorIs(t, err, store.ErrNotFound)

	exec(t, s, `INSERT INTO users (username, password_hash, role, store_id, active, created_at) VALUES ('Kasir', 'x', 'cashier', 1, 1, $1)`, ts(t0))
	u, err := s.FindUser(ctx, "kasir")
	require.NoError(t, err)
	require.NotNil(t, u.StoreID)
	assert.Equal(t, int64(1), *u.StoreID)
	assert.True(t, u.Active)

	_, err = s.FindUser(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPushedIDsStayWithTheirStore(t *testing.T) {
	s := openTestStore(t)
	seedCatalogue(t, s)
	ctx := context.Background()
	svc := service.New(s, service.Options{Now: func() time.Time { return t1 }})

	_, err := svc.Push(ctx, domain.EntitySales, 1, domain.RawRecords{[]byte(`{"id": 101, "total_amount": 100}`)})
	require.NoError(t, err)
	_, err = svc.Push(ctx, domain.EntityTransactions, 1, domain.RawRecords{[]byte(`{"id": 201, "amount": 100}`)})
	require.NoError(t, err)

	err = s.RunBatch(ctx, func(tx store.BatchTx) error {
		owner, found, err := tx.FindTransactionStore(ctx, 201)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int64(1), owner)
		_, found, err = tx.FindSaleStore(ctx, 999)
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	})
	require.NoError(t, err)

	res, err := svc.Push(ctx, domain.EntitySales, 2, domain.RawRecords{
		[]byte(`{"id": 101, "total_amount": 1}`),
		[]byte(`{"id": 102, "total_amount": 5}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "belongs to another store")

	txns, err := svc.Push(ctx, domain.EntityTransactions, 2, domain.RawRecords{[]byte(`{"id": 201, "amount": 1}`)})
	require.NoError(t, err)
	require.Len(t, txns.Errors, 1)

	mainSales, err := s.PullSales(ctx, 1, nil)
	require.NoError(t, err)
	require.Len(t, mainSales, 1)
	assert.Equal(t, 100.0, mainSales[0].TotalAmount)
	branch, err := s.CountTransactions(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, branch)
}
