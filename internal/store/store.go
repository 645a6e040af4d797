package store

import (
	"context"
	"errors"
	"time"

	"infopos/backend/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("store unavailable")
	// ErrRecordRejected marks a failure caused by the data of a single pushed record
	// (constraint or value violation). Anything else aborts the whole batch.
	ErrRecordRejected = errors.New("record rejected")
)

// DeltaFilter restricts a pull. A nil Since means a full pull.
type DeltaFilter struct {
	Since   *time.Time
	StoreID *int64
}

type Repository interface {
	PullProducts(ctx context.Context, filter DeltaFilter) ([]domain.Product, error)
	PullContacts(ctx context.Context, since *time.Time) ([]domain.Contact, error)
	PullCharges(ctx context.Context, since *time.Time) ([]domain.Charge, error)
	PullStock(ctx context.Context, storeID int64, since *time.Time) ([]domain.StockRow, error)
	PullSales(ctx context.Context, storeID int64, since *time.Time) ([]domain.Sale, error)

	CountProducts(ctx context.Context) (int64, error)
	CountContacts(ctx context.Context) (int64, error)
	CountCharges(ctx context.Context) (int64, error)
	CountSales(ctx context.Context, storeID int64) (int64, error)
	CountTransactions(ctx context.Context, storeID int64) (int64, error)
	CountStock(ctx context.Context, storeID int64) (int64, error)

	GetStore(ctx context.Context, id int64) (*domain.StoreInfo, error)
	FindUser(ctx context.Context, username string) (*domain.UserAccount, error)

	// RunBatch runs fn in one atomic transaction. The transaction commits only when fn
	// returns nil; a cancelled ctx rolls it back.
	RunBatch(ctx context.Context, fn func(tx BatchTx) error) error
}

// BatchTx is the write side of a push batch. Inserts with a non-zero ID keep that ID.
type BatchTx interface {
	// Isolate runs fn inside a savepoint. When fn fails the savepoint is rolled back,
	// the rest of the batch is kept, and fn's error is returned.
	Isolate(ctx context.Context, fn func() error) error

	// FindSaleStore returns the store that owns sale id.
	FindSaleStore(ctx context.Context, id int64) (int64, bool, error)
	FindSaleByInvoice(ctx context.Context, storeID int64, invoiceNumber string) (int64, bool, error)
	CreateSale(ctx context.Context, sale domain.Sale) (int64, error)
	UpdateSale(ctx context.Context, sale domain.Sale) error

	FindSaleItem(ctx context.Context, saleID int64, key domain.SaleItemKey) (int64, bool, error)
	CreateSaleItem(ctx context.Context, item domain.SaleItem) (int64, error)
	UpdateSaleItem(ctx context.Context, item domain.SaleItem) error

	FindTransactionStore(ctx context.Context, id int64) (int64, bool, error)
	CreateTransaction(ctx context.Context, txn domain.Transaction) (int64, error)
	UpdateTransaction(ctx context.Context, txn domain.Transaction) error

	ContactExists(ctx context.Context, id int64) (bool, error)
	CreateContact(ctx context.Context, contact domain.Contact) (int64, error)
	UpdateContact(ctx context.Context, contact domain.Contact) error

	FindStock(ctx context.Context, productID, batchID, storeID int64) (int64, bool, error)
	CreateStock(ctx context.Context, stock domain.Stock) (int64, error)
	UpdateStockQuantity(ctx context.Context, id int64, quantity float64, at time.Time) error
}
