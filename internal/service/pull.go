package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"infopos/backend/internal/domain"
	"infopos/backend/internal/store"
)

// ParseEntity resolves a `table` or `entity_type` parameter.
func ParseEntity(raw string) (domain.Entity, error) {
	entity := domain.Entity(strings.ToLower(strings.TrimSpace(raw)))
	switch entity {
	case domain.EntityProducts, domain.EntityContacts, domain.EntityCharges, domain.EntityStock,
		domain.EntitySales, domain.EntityTransactions:
		return entity, nil
	}
	if raw == "" {
		return "", missingField("table")
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownEntity, raw)
}

// Pull returns the records of entity changed at or after lastSync. An empty lastSync
// is a full pull.
func (s *Service) Pull(ctx context.Context, entity domain.Entity, lastSync string, storeID *int64) (domain.PullResult, error) {
	since, err := s.parseSince(lastSync)
	if err != nil {
		return domain.PullResult{}, err
	}
	storeID, err = s.scopeStore(ctx, storeID)
	if err != nil {
		return domain.PullResult{}, err
	}

	var (
		data  any
		count int
	)
	switch entity {
	case domain.EntityProducts:
		products, err := s.repo.PullProducts(ctx, store.DeltaFilter{Since: since, StoreID: storeID})
		if err != nil {
			return domain.PullResult{}, err
		}
		data, count = s.projectProducts(products), len(products)
	case domain.EntityContacts:
		contacts, err := s.repo.PullContacts(ctx, since)
		if err != nil {
			return domain.PullResult{}, err
		}
		data, count = s.projectContacts(contacts), len(contacts)
	case domain.EntityCharges:
		charges, err := s.repo.PullCharges(ctx, since)
		if err != nil {
			return domain.PullResult{}, err
		}
		data, count = s.projectCharges(charges), len(charges)
	case domain.EntityStock:
		if storeID == nil {
			return domain.PullResult{}, ErrMissingStoreID
		}
		rows, err := s.repo.PullStock(ctx, *storeID, since)
		if err != nil {
			return domain.PullResult{}, err
		}
		data, count = s.projectStock(rows), len(rows)
	case domain.EntitySales:
		if storeID == nil {
			return domain.PullResult{}, ErrMissingStoreID
		}
		sales, err := s.repo.PullSales(ctx, *storeID, since)
		if err != nil {
			return domain.PullResult{}, err
		}
		data, count = s.projectSales(sales), len(sales)
	default:
		return domain.PullResult{}, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}

	s.observer.ObservePull(string(entity), count)
	return domain.PullResult{
		Entity:    entity,
		Data:      data,
		Count:     count,
		Timestamp: s.clock.Format(s.now()),
	}, nil
}

// Delta is Pull with a mandatory lastSync.
func (s *Service) Delta(ctx context.Context, entity domain.Entity, lastSync string, storeID *int64) (domain.PullResult, error) {
	if strings.TrimSpace(lastSync) == "" {
		return domain.PullResult{}, missingField("last_sync")
	}
	return s.Pull(ctx, entity, lastSync, storeID)
}

func (s *Service) parseSince(lastSync string) (*time.Time, error) {
	t, present, err := s.clock.NormalizeString(lastSync)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	return &t, nil
}

func (s *Service) projectProducts(products []domain.Product) []domain.ProductPayload {
	out := make([]domain.ProductPayload, 0, len(products))
	for _, p := range products {
		batches := make([]domain.BatchPayload, 0, len(p.Batches))
		for _, b := range p.Batches {
			batches = append(batches, domain.BatchPayload{
				ID:            b.ID,
				BatchNumber:   defaultString(b.BatchNumber, domain.MissingBatchNumber),
				Cost:          b.Cost,
				Price:         b.Price,
				StockQuantity: b.StockQuantity,
				CreatedAt:     s.clock.Format(b.CreatedAt),
				UpdatedAt:     s.clock.Format(b.UpdatedAt),
			})
		}
		out = append(out, domain.ProductPayload{
			ID:             p.ID,
			Name:           p.Name,
			Description:    p.Description,
			SKU:            p.SKU,
			Barcode:        p.Barcode,
			Unit:           p.Unit,
			IsStockManaged: p.IsStockManaged,
			IsActive:       p.IsActive,
			CategoryID:     p.CategoryID,
			ProductType:    p.ProductType,
			CreatedAt:      s.clock.Format(p.CreatedAt),
			UpdatedAt:      s.clock.Format(p.UpdatedAt),
			Batches:        batches,
		})
	}
	return out
}

func (s *Service) projectContacts(contacts []domain.Contact) []domain.ContactPayload {
	out := make([]domain.ContactPayload, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, domain.ContactPayload{
			ID:          c.ID,
			Name:        c.Name,
			Email:       c.Email,
			Phone:       c.Phone,
			ContactType: c.ContactType,
			Address:     c.Address,
			City:        c.City,
			Balance:     c.Balance,
			IsActive:    c.IsActive,
			CreatedAt:   s.clock.Format(c.CreatedAt),
			UpdatedAt:   s.clock.Format(c.UpdatedAt),
		})
	}
	return out
}

func (s *Service) projectCharges(charges []domain.Charge) []domain.ChargePayload {
	out := make([]domain.ChargePayload, 0, len(charges))
	for _, c := range charges {
		out = append(out, domain.ChargePayload{
			ID:          c.ID,
			Name:        c.Name,
			ChargeType:  c.ChargeType,
			RateValue:   c.RateValue,
			RateType:    c.RateType,
			Description: c.Description,
			IsActive:    c.IsActive,
			IsDefault:   c.IsDefault,
			CreatedAt:   s.clock.Format(c.CreatedAt),
			UpdatedAt:   s.clock.Format(c.UpdatedAt),
		})
	}
	return out
}

func (s *Service) projectStock(rows []domain.StockRow) []domain.StockPayload {
	out := make([]domain.StockPayload, 0, len(rows))
	for _, row := range rows {
		payload := domain.StockPayload{
			ID:          row.ID,
			ProductID:   row.ProductID,
			BatchID:     row.BatchID,
			StoreID:     row.StoreID,
			Quantity:    row.Quantity,
			BatchNumber: domain.MissingBatchNumber,
			CreatedAt:   s.clock.Format(row.CreatedAt),
			UpdatedAt:   s.clock.Format(row.UpdatedAt),
		}
		if row.ProductName != nil {
			payload.ProductName = *row.ProductName
		}
		if row.BatchNumber != nil {
			payload.BatchNumber = defaultString(*row.BatchNumber, domain.MissingBatchNumber)
		}
		if row.Cost != nil {
			payload.Cost = *row.Cost
		}
		if row.Price != nil {
			payload.Price = *row.Price
		}
		out = append(out, payload)
	}
	return out
}

func (s *Service) projectSales(sales []domain.Sale) []domain.SalePayload {
	out := make([]domain.SalePayload, 0, len(sales))
	for _, sale := range sales {
		items := make([]domain.SaleItemPayload, 0, len(sale.Items))
		for _, item := range sale.Items {
			items = append(items, domain.SaleItemPayload{
				ID:         item.ID,
				SaleID:     item.SaleID,
				ProductID:  item.ProductID,
				BatchID:    item.BatchID,
				ChargeID:   item.ChargeID,
				Quantity:   item.Quantity,
				UnitPrice:  item.UnitPrice,
				Discount:   item.Discount,
				ItemType:   item.ItemType,
				ChargeType: item.ChargeType,
				RateValue:  item.RateValue,
				RateType:   item.RateType,
				BaseAmount: item.BaseAmount,
				Notes:      item.Notes,
				CreatedAt:  s.clock.Format(item.CreatedAt),
				UpdatedAt:  s.clock.Format(item.UpdatedAt),
			})
		}
		out = append(out, domain.SalePayload{
			ID:                sale.ID,
			InvoiceNumber:     sale.InvoiceNumber,
			StoreID:           sale.StoreID,
			ContactID:         sale.ContactID,
			SaleType:          sale.SaleType,
			TotalAmount:       sale.TotalAmount,
			Discount:          sale.Discount,
			AmountReceived:    sale.AmountReceived,
			ProfitAmount:      sale.ProfitAmount,
			TotalChargeAmount: sale.TotalChargeAmount,
			Status:            sale.Status,
			PaymentStatus:     sale.PaymentStatus,
			PaymentMethod:     sale.PaymentMethod,
			Note:              sale.Note,
			SaleDate:          s.clock.FormatDate(sale.SaleDate),
			SaleTime:          sale.SaleTime,
			CreatedAt:         s.clock.Format(sale.CreatedAt),
			UpdatedAt:         s.clock.Format(sale.UpdatedAt),
			Items:             items,
		})
	}
	return out
}
