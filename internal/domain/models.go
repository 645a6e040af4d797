package domain

import (
	"encoding/json"
	"time"
)

// Entity names a sync table as it appears in the `table` query parameter.
type Entity string

const (
	EntityProducts     Entity = "products"
	EntityContacts     Entity = "contacts"
	EntityCharges      Entity = "charges"
	EntityStock        Entity = "stock"
	EntitySales        Entity = "sales"
	EntityTransactions Entity = "transactions"
)

const (
	ContactTypeCustomer = "customer"
	ContactTypeVendor   = "vendor"
)

const (
	SaleTypeNormal      = "normal"
	SaleStatusCompleted = "completed"
	ItemTypeProduct     = "product"
	ItemTypeCharge      = "charge"

	DefaultPaymentMethod   = "Cash"
	DefaultTransactionType = "payment"
	DefaultCurrency        = "USD"
	DefaultTimezone        = "UTC"
	MissingBatchNumber     = "N/A"
)

type Product struct {
	ID             int64
	Name           string
	Description    string
	SKU            string
	Barcode        string
	Unit           string
	AlertQuantity  float64
	IsActive       bool
	IsStockManaged bool
	CategoryID     *int64
	ProductType    string
	MetaData       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Batches        []Batch
}

type Batch struct {
	ID                 int64
	ProductID          int64
	BatchNumber        string
	Cost               float64
	Price              float64
	Discount           float64
	DiscountPercentage float64
	IsActive           bool
	IsFeatured         bool
	// StockQuantity is the store-scoped (or summed) quantity resolved by the delta query.
	StockQuantity float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Stock struct {
	ID        int64
	ProductID int64
	BatchID   int64
	StoreID   int64
	Quantity  float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StockRow is a stock row joined with its product and batch; joined columns are nil
// when the related row no longer exists.
type StockRow struct {
	Stock
	ProductName *string
	BatchNumber *string
	Cost        *float64
	Price       *float64
}

type Contact struct {
	ID          int64
	Name        string
	Email       string
	Phone       string
	Address     string
	City        string
	ContactType string
	Balance     float64
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Charge struct {
	ID          int64
	Name        string
	ChargeType  string
	RateValue   float64
	RateType    string
	Description string
	IsActive    bool
	IsDefault   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Sale struct {
	ID                int64
	InvoiceNumber     string
	StoreID           int64
	ContactID         *int64
	SaleType          string
	TotalAmount       float64
	Discount          float64
	AmountReceived    float64
	ProfitAmount      float64
	TotalChargeAmount float64
	Status            string
	PaymentStatus     string
	PaymentMethod     string
	Note              string
	SaleDate          time.Time
	SaleTime          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Items             []SaleItem
}

type SaleItem struct {
	ID         int64
	SaleID     int64
	ProductID  *int64
	BatchID    *int64
	ChargeID   *int64
	Quantity   float64
	UnitPrice  float64
	Discount   float64
	ItemType   string
	ChargeType string
	RateValue  float64
	RateType   string
	BaseAmount float64
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SaleItemKey identifies a line inside one sale. Exactly one of ProductID and ChargeID is set.
type SaleItemKey struct {
	ProductID *int64
	ChargeID  *int64
}

type Transaction struct {
	ID              int64
	StoreID         int64
	SaleID          *int64
	ContactID       *int64
	Amount          float64
	PaymentMethod   string
	TransactionType string
	ReferenceNumber string
	Note            string
	TransactionDate time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type StoreInfo struct {
	ID        int64
	Name      string
	Address   string
	Phone     string
	Email     string
	Currency  string
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	StoreID   *int64
	Active    bool
	CreatedAt time.Time
}

type Actor struct {
	Username string
	Role     string
	StoreID  *int64
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	StoreID     *int64 `json:"store_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

type Manifest struct {
	Products     int64  `json:"products"`
	Contacts     int64  `json:"contacts"`
	Charges      int64  `json:"charges"`
	Sales        int64  `json:"sales"`
	Transactions int64  `json:"transactions"`
	Stock        *int64 `json:"stock,omitempty"`
}

type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// PullResult is the outcome of one delta pull. Data holds the projected records.
type PullResult struct {
	Entity    Entity
	Data      any
	Count     int
	Timestamp string
}

type PushResult struct {
	BatchID   string
	Entity    Entity
	Synced    int
	Errors    []RecordError
	Timestamp string
}

// RecordError reports one rejected push record. ID is the client identifier of the record
// (the sale, transaction or contact id, or the product id for stock) when it had one.
type RecordError struct {
	Index   int
	ID      *int64
	Message string
}

// RawRecords is the undecoded entity array of a push body.
type RawRecords []json.RawMessage
