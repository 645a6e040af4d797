package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"infopos/backend/internal/domain"
	"infopos/backend/internal/store"
	"infopos/backend/internal/xid"
)

type recordApplier func(ctx context.Context, tx store.BatchTx, storeID int64, raw json.RawMessage, now time.Time) error

// Push upserts records of entity for storeID in one transaction. Records that fail
// validation or a store constraint are rolled back to their savepoint and reported in
// PushResult.Errors; any other failure aborts the batch and is returned.
func (s *Service) Push(ctx context.Context, entity domain.Entity, storeID int64, records domain.RawRecords) (domain.PushResult, error) {
	var apply recordApplier
	switch entity {
	case domain.EntitySales:
		apply = s.applySale
	case domain.EntityTransactions:
		apply = s.applyTransaction
	case domain.EntityContacts:
		apply = s.applyContact
	case domain.EntityStock:
		apply = s.applyStock
	default:
		return domain.PushResult{}, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	if storeID <= 0 {
		return domain.PushResult{}, missingField("store_id")
	}
	if len(records) == 0 {
		return domain.PushResult{}, missingField(string(entity))
	}
	if _, err := s.scopeStore(ctx, &storeID); err != nil {
		return domain.PushResult{}, err
	}

	now := s.now().UTC()
	result := domain.PushResult{
		BatchID: xid.New("push"),
		Entity:  entity,
		Errors:  []domain.RecordError{},
	}
	err := s.repo.RunBatch(ctx, func(tx store.BatchTx) error {
		for i, raw := range records {
			err := tx.Isolate(ctx, func() error {
				return apply(ctx, tx, storeID, raw, now)
			})
			if err == nil {
				result.Synced++
				continue
			}
			if !isRecordError(err) {
				return fmt.Errorf("%s record %d: %w", entity, i, err)
			}
			result.Errors = append(result.Errors, domain.RecordError{
				Index:   i,
				ID:      recordKey(entity, raw),
				Message: recordMessage(err),
			})
		}
		return nil
	})
	if err != nil {
		s.observer.ObservePush(string(entity), 0, 0, false)
		s.logger.Error("push aborted",
			"batch_id", result.BatchID,
			"table", string(entity),
			"store_id", storeID,
			"records", len(records),
			"error", err,
		)
		return domain.PushResult{}, err
	}

	if result.Synced > 0 {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("manifest cache invalidation failed", "error", err)
		}
	}
	s.observer.ObservePush(string(entity), result.Synced, len(result.Errors), true)
	s.logger.Info("push committed",
		"batch_id", result.BatchID,
		"table", string(entity),
		"store_id", storeID,
		"synced", result.Synced,
		"failed", len(result.Errors),
	)
	result.Timestamp = s.clock.Format(now)
	return result, nil
}

func (s *Service) applySale(ctx context.Context, tx store.BatchTx, storeID int64, raw json.RawMessage, now time.Time) error {
	var rec domain.SaleRecord
	if err := decodeRecord(raw, &rec); err != nil {
		return err
	}
	if err := s.validate.Struct(rec); err != nil {
		return describeValidation("", err)
	}
	keys := make([]domain.SaleItemKey, len(rec.Items.Items))
	for i, item := range rec.Items.Items {
		prefix := fmt.Sprintf("items[%d].", i)
		if err := s.validate.Struct(item); err != nil {
			return describeValidation(prefix, err)
		}
		switch {
		case item.ProductID.Valid:
			keys[i] = domain.SaleItemKey{ProductID: item.ProductID.Ptr()}
		case item.ChargeID.Valid:
			keys[i] = domain.SaleItemKey{ChargeID: item.ChargeID.Ptr()}
		default:
			return invalidRecord("%sproduct_id or charge_id is required", prefix)
		}
	}
	saleDate, err := s.recordTime("sale_date", rec.SaleDate, now)
	if err != nil {
		return err
	}

	sale := domain.Sale{
		InvoiceNumber:     strings.TrimSpace(stringValue(rec.InvoiceNumber)),
		StoreID:           storeID,
		ContactID:         rec.ContactID.Ptr(),
		SaleType:          defaultString(stringValue(rec.SaleType), domain.SaleTypeNormal),
		TotalAmount:       amount(rec.TotalAmount),
		Discount:          amount(rec.Discount),
		AmountReceived:    amount(rec.AmountReceived),
		ProfitAmount:      amount(rec.ProfitAmount),
		TotalChargeAmount: amount(rec.TotalChargeAmount),
		Status:            defaultString(stringValue(rec.Status), domain.SaleStatusCompleted),
		PaymentStatus:     defaultString(stringValue(rec.PaymentStatus), domain.SaleStatusCompleted),
		PaymentMethod:     defaultString(stringValue(rec.PaymentMethod), domain.DefaultPaymentMethod),
		Note:              stringValue(rec.Note),
		SaleDate:          saleDate,
		SaleTime:          defaultString(stringValue(rec.SaleTime), saleDate.In(s.clock.Location()).Format("15:04:05")),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	saleID, found, err := s.resolveSale(ctx, tx, storeID, rec, sale.InvoiceNumber)
	if err != nil {
		return err
	}
	if found {
		sale.ID = saleID
		if err := tx.UpdateSale(ctx, sale); err != nil {
			return err
		}
	} else {
		sale.ID = rec.ID.Value
		if saleID, err = tx.CreateSale(ctx, sale); err != nil {
			return err
		}
	}

	for i, item := range rec.Items.Items {
		if err := s.upsertSaleItem(ctx, tx, saleID, keys[i], item, now); err != nil {
			return fmt.Errorf("items[%d]: %w", i, err)
		}
	}
	return nil
}

// resolveSale finds the row a pushed sale maps to: its id, then its invoice number
// within the store. A sale id owned by another store is a record error.
func (s *Service) resolveSale(ctx context.Context, tx store.BatchTx, storeID int64, rec domain.SaleRecord, invoice string) (int64, bool, error) {
	if rec.ID.Valid {
		owner, exists, err := tx.FindSaleStore(ctx, rec.ID.Value)
		if err != nil {
			return 0, false, err
		}
		if exists && owner != storeID {
			return 0, false, invalidRecord("sale %d belongs to another store", rec.ID.Value)
		}
		return rec.ID.Value, exists, nil
	}
	if invoice == "" {
		return 0, false, nil
	}
	return tx.FindSaleByInvoice(ctx, storeID, invoice)
}

func (s *Service) upsertSaleItem(ctx context.Context, tx store.BatchTx, saleID int64, key domain.SaleItemKey, rec domain.SaleItemRecord, now time.Time) error {
	itemType := domain.ItemTypeProduct
	if key.ProductID == nil {
		itemType = domain.ItemTypeCharge
	}
	item := domain.SaleItem{
		SaleID:     saleID,
		ProductID:  key.ProductID,
		BatchID:    rec.BatchID.Ptr(),
		ChargeID:   rec.ChargeID.Ptr(),
		Quantity:   amount(rec.Quantity),
		UnitPrice:  amount(rec.UnitPrice),
		Discount:   amount(rec.Discount),
		ItemType:   defaultString(stringValue(rec.ItemType), itemType),
		ChargeType: stringValue(rec.ChargeType),
		RateValue:  amount(rec.RateValue),
		RateType:   stringValue(rec.RateType),
		BaseAmount: amount(rec.BaseAmount),
		Notes:      stringValue(rec.Notes),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	id, found, err := tx.FindSaleItem(ctx, saleID, key)
	if err != nil {
		return err
	}
	if found {
		item.ID = id
		return tx.UpdateSaleItem(ctx, item)
	}
	_, err = tx.CreateSaleItem(ctx, item)
	return err
}

func (s *Service) applyTransaction(ctx context.Context, tx store.BatchTx, storeID int64, raw json.RawMessage, now time.Time) error {
	var rec domain.TransactionRecord
	if err := decodeRecord(raw, &rec); err != nil {
		return err
	}
	if err := s.validate.Struct(rec); err != nil {
		return describeValidation("", err)
	}
	date, err := s.recordTime("transaction_date", rec.TransactionDate, now)
	if err != nil {
		return err
	}
	note := stringValue(rec.Note)
	if note == "" {
		note = stringValue(rec.Notes)
	}

	txn := domain.Transaction{
		StoreID:         storeID,
		SaleID:          rec.SaleID.Ptr(),
		ContactID:       rec.ContactID.Ptr(),
		Amount:          amount(rec.Amount),
		PaymentMethod:   defaultString(stringValue(rec.PaymentMethod), domain.DefaultPaymentMethod),
		TransactionType: defaultString(stringValue(rec.TransactionType), domain.DefaultTransactionType),
		ReferenceNumber: stringValue(rec.ReferenceNumber),
		Note:            note,
		TransactionDate: date,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if rec.ID.Valid {
		owner, exists, err := tx.FindTransactionStore(ctx, rec.ID.Value)
		if err != nil {
			return err
		}
		if exists && owner != storeID {
			return invalidRecord("transaction %d belongs to another store", rec.ID.Value)
		}
		txn.ID = rec.ID.Value
		if exists {
			return tx.UpdateTransaction(ctx, txn)
		}
	}
	_, err = tx.CreateTransaction(ctx, txn)
	return err
}

func (s *Service) applyContact(ctx context.Context, tx store.BatchTx, _ int64, raw json.RawMessage, now time.Time) error {
	var rec domain.ContactRecord
	if err := decodeRecord(raw, &rec); err != nil {
		return err
	}
	if err := s.validate.Struct(rec); err != nil {
		return describeValidation("", err)
	}

	contact := domain.Contact{
		Name:        strings.TrimSpace(stringValue(rec.Name)),
		Email:       stringValue(rec.Email),
		Phone:       stringValue(rec.Phone),
		Address:     stringValue(rec.Address),
		City:        stringValue(rec.City),
		ContactType: defaultString(stringValue(rec.ContactType), domain.ContactTypeCustomer),
		Balance:     amount(rec.Balance),
		IsActive:    rec.IsActive == nil || *rec.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if rec.ID.Valid {
		exists, err := tx.ContactExists(ctx, rec.ID.Value)
		if err != nil {
			return err
		}
		contact.ID = rec.ID.Value
		if exists {
			return tx.UpdateContact(ctx, contact)
		}
	}
	_, err := tx.CreateContact(ctx, contact)
	return err
}

func (s *Service) applyStock(ctx context.Context, tx store.BatchTx, storeID int64, raw json.RawMessage, now time.Time) error {
	var rec domain.StockRecord
	if err := decodeRecord(raw, &rec); err != nil {
		return err
	}
	if err := s.validate.Struct(rec); err != nil {
		return describeValidation("", err)
	}

	quantity := amount(rec.Quantity)
	id, found, err := tx.FindStock(ctx, rec.ProductID.Value, rec.BatchID.Value, storeID)
	if err != nil {
		return err
	}
	if found {
		return tx.UpdateStockQuantity(ctx, id, quantity, now)
	}
	_, err = tx.CreateStock(ctx, domain.Stock{
		ProductID: rec.ProductID.Value,
		BatchID:   rec.BatchID.Value,
		StoreID:   storeID,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return err
}

// recordTime reads a client date field, falling back to the reconciliation time.
func (s *Service) recordTime(field string, token any, now time.Time) (time.Time, error) {
	t, present, err := s.clock.Normalize(token)
	if err != nil {
		return time.Time{}, invalidRecord("%s: %v", field, err)
	}
	if !present {
		return now, nil
	}
	return t.UTC(), nil
}

func decodeRecord(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidRecord("%v", err)
	}
	return nil
}

// recordKey extracts the client identifier reported with a rejected record.
func recordKey(entity domain.Entity, raw json.RawMessage) *int64 {
	var key struct {
		ID        domain.FlexID `json:"id"`
		ProductID domain.FlexID `json:"product_id"`
	}
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil
	}
	if entity == domain.EntityStock {
		return key.ProductID.Ptr()
	}
	return key.ID.Ptr()
}

func amount(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
