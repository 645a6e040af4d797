package domain

// Pull projections. Numbers are float64, flags are bools and timestamps are rendered
// by the store's timestamp format, so clients never see driver-specific encodings.

type ProductPayload struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	SKU            string         `json:"sku"`
	Barcode        string         `json:"barcode"`
	Unit           string         `json:"unit"`
	IsStockManaged bool           `json:"is_stock_managed"`
	IsActive       bool           `json:"is_active"`
	CategoryID     *int64         `json:"category_id"`
	ProductType    string         `json:"product_type"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at"`
	Batches        []BatchPayload `json:"batches"`
}

type BatchPayload struct {
	ID            int64   `json:"id"`
	BatchNumber   string  `json:"batch_number"`
	Cost          float64 `json:"cost"`
	Price         float64 `json:"price"`
	StockQuantity float64 `json:"stock_quantity"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

type ContactPayload struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Phone       string  `json:"phone"`
	ContactType string  `json:"contact_type"`
	Address     string  `json:"address"`
	City        string  `json:"city"`
	Balance     float64 `json:"balance"`
	IsActive    bool    `json:"is_active"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type ChargePayload struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	ChargeType  string  `json:"charge_type"`
	RateValue   float64 `json:"rate_value"`
	RateType    string  `json:"rate_type"`
	Description string  `json:"description"`
	IsActive    bool    `json:"is_active"`
	IsDefault   bool    `json:"is_default"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type StockPayload struct {
	ID          int64   `json:"id"`
	ProductID   int64   `json:"product_id"`
	BatchID     int64   `json:"batch_id"`
	StoreID     int64   `json:"store_id"`
	Quantity    float64 `json:"quantity"`
	ProductName string  `json:"product_name"`
	BatchNumber string  `json:"batch_number"`
	Cost        float64 `json:"cost"`
	Price       float64 `json:"price"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type SalePayload struct {
	ID                int64             `json:"id"`
	InvoiceNumber     string            `json:"invoice_number"`
	StoreID           int64             `json:"store_id"`
	ContactID         *int64            `json:"contact_id"`
	SaleType          string            `json:"sale_type"`
	TotalAmount       float64           `json:"total_amount"`
	Discount          float64           `json:"discount"`
	AmountReceived    float64           `json:"amount_received"`
	ProfitAmount      float64           `json:"profit_amount"`
	TotalChargeAmount float64           `json:"total_charge_amount"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	PaymentMethod     string            `json:"payment_method"`
	Note              string            `json:"note"`
	SaleDate          string            `json:"sale_date"`
	SaleTime          string            `json:"sale_time"`
	CreatedAt         string            `json:"created_at"`
	UpdatedAt         string            `json:"updated_at"`
	Items             []SaleItemPayload `json:"items"`
}

type SaleItemPayload struct {
	ID         int64   `json:"id"`
	SaleID     int64   `json:"sale_id"`
	ProductID  *int64  `json:"product_id"`
	BatchID    *int64  `json:"batch_id"`
	ChargeID   *int64  `json:"charge_id"`
	Quantity   float64 `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	Discount   float64 `json:"discount"`
	ItemType   string  `json:"item_type"`
	ChargeType string  `json:"charge_type"`
	RateValue  float64 `json:"rate_value"`
	RateType   string  `json:"rate_type"`
	BaseAmount float64 `json:"base_amount"`
	Notes      string  `json:"notes"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

// StoreConfig is the per-store configuration handed to terminals on first sync.
type StoreConfig struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Currency  string `json:"currency"`
	Timezone  string `json:"timezone"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}
