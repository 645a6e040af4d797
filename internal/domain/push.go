package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// FlexID is an identifier sent by a client as a JSON number or a numeric string.
// null, "" and an absent key all decode to an invalid FlexID.
type FlexID struct {
	Value int64
	Valid bool
}

func NewFlexID(v int64) FlexID { return FlexID{Value: v, Valid: true} }

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = FlexID{}
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("invalid id %s", raw)
		}
		raw = strings.TrimSpace(unquoted)
		if raw == "" {
			*f = FlexID{}
			return nil
		}
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Accept integral floats such as 12.0 from loosely typed clients.
		d, derr := decimal.NewFromString(raw)
		if derr != nil || !d.IsInteger() {
			return fmt.Errorf("invalid id %s", string(data))
		}
		v = d.IntPart()
	}
	*f = FlexID{Value: v, Valid: true}
	return nil
}

func (f FlexID) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(f.Value, 10)), nil
}

// Ptr returns the id as a pointer, nil when absent.
func (f FlexID) Ptr() *int64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// SaleItemList holds the `items` of a pushed sale, which arrive either as an array
// or as a JSON-encoded string containing that array.
type SaleItemList struct {
	Items   []SaleItemRecord
	Present bool
}

var errItemsShape = errors.New("items must be an array or a JSON-encoded array")

func (l *SaleItemList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*l = SaleItemList{}
		return nil
	}
	if data[0] == '"' {
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			return errItemsShape
		}
		encoded = strings.TrimSpace(encoded)
		if encoded == "" {
			*l = SaleItemList{}
			return nil
		}
		data = []byte(encoded)
	}
	if len(data) == 0 || data[0] != '[' {
		return errItemsShape
	}
	var items []SaleItemRecord
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("items: %w", err)
	}
	*l = SaleItemList{Items: items, Present: true}
	return nil
}

// Inbound push records. Pointer fields are nil when the client omitted them or sent null.

type SaleRecord struct {
	ID                FlexID           `json:"id"`
	InvoiceNumber     *string          `json:"invoice_number"`
	ContactID         FlexID           `json:"contact_id"`
	SaleType          *string          `json:"sale_type"`
	TotalAmount       *decimal.Decimal `json:"total_amount" validate:"required"`
	Discount          *decimal.Decimal `json:"discount"`
	AmountReceived    *decimal.Decimal `json:"amount_received"`
	ProfitAmount      *decimal.Decimal `json:"profit_amount"`
	TotalChargeAmount *decimal.Decimal `json:"total_charge_amount"`
	Status            *string          `json:"status"`
	PaymentStatus     *string          `json:"payment_status"`
	PaymentMethod     *string          `json:"payment_method"`
	Note              *string          `json:"note"`
	SaleDate          any              `json:"sale_date"`
	SaleTime          *string          `json:"sale_time"`
	Items             SaleItemList     `json:"items"`
}

type SaleItemRecord struct {
	ProductID  FlexID           `json:"product_id"`
	BatchID    FlexID           `json:"batch_id"`
	ChargeID   FlexID           `json:"charge_id"`
	Quantity   *decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice  *decimal.Decimal `json:"unit_price" validate:"required"`
	Discount   *decimal.Decimal `json:"discount"`
	ItemType   *string          `json:"item_type"`
	ChargeType *string          `json:"charge_type"`
	RateValue  *decimal.Decimal `json:"rate_value"`
	RateType   *string          `json:"rate_type"`
	BaseAmount *decimal.Decimal `json:"base_amount"`
	Notes      *string          `json:"notes"`
}

type TransactionRecord struct {
	ID              FlexID           `json:"id"`
	SaleID          FlexID           `json:"sale_id"`
	ContactID       FlexID           `json:"contact_id"`
	Amount          *decimal.Decimal `json:"amount" validate:"required"`
	PaymentMethod   *string          `json:"payment_method"`
	TransactionType *string          `json:"transaction_type"`
	ReferenceNumber *string          `json:"reference_number"`
	Note            *string          `json:"note"`
	Notes           *string          `json:"notes"`
	TransactionDate any              `json:"transaction_date"`
}

type ContactRecord struct {
	ID          FlexID           `json:"id"`
	Name        *string          `json:"name" validate:"required,notblank"`
	Email       *string          `json:"email"`
	Phone       *string          `json:"phone"`
	Address     *string          `json:"address"`
	City        *string          `json:"city"`
	ContactType *string          `json:"contact_type" validate:"omitempty,oneof=customer vendor"`
	Balance     *decimal.Decimal `json:"balance"`
	IsActive    *bool            `json:"is_active"`
}

type StockRecord struct {
	ProductID FlexID           `json:"product_id" validate:"required"`
	BatchID   FlexID           `json:"batch_id" validate:"required"`
	Quantity  *decimal.Decimal `json:"quantity" validate:"required"`
}
