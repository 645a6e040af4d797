package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"infopos/backend/internal/domain"
	"infopos/backend/internal/store"
)

func (s *DB) query(ctx context.Context, q string, args []any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.Rebind(q), args...)
}

func (s *DB) PullProducts(ctx context.Context, filter store.DeltaFilter) ([]domain.Product, error) {
	var a argList
	where := "p.is_active = TRUE"
	storeScope := ""
	if filter.StoreID != nil {
		sid := a.add(*filter.StoreID)
		storeScope = " AND s.store_id = " + sid
		where += " AND EXISTS (SELECT 1 FROM product_stocks s WHERE s.product_id = p.id" + storeScope + ")"
	}
	if filter.Since != nil {
		since := a.add(s.dialect.TimeArg(*filter.Since))
		where += fmt.Sprintf(` AND (
			p.updated_at >= %[1]s
			OR EXISTS (SELECT 1 FROM product_batches b WHERE b.product_id = p.id AND b.updated_at >= %[1]s)
			OR EXISTS (
				SELECT 1 FROM product_stocks s
				JOIN product_batches b ON b.id = s.batch_id
				WHERE b.product_id = p.id AND s.updated_at >= %[1]s%[2]s
			)
		)`, since, storeScope)
	}

	rows, err := s.query(ctx, `
		SELECT p.id, p.name, COALESCE(p.description, ''), COALESCE(p.sku, ''), COALESCE(p.barcode, ''),
			COALESCE(p.unit, ''), p.alert_quantity, p.is_active, p.is_stock_managed, p.category_id,
			COALESCE(p.product_type, ''), COALESCE(p.meta_data, ''), p.created_at, p.updated_at
		FROM products p
		WHERE `+where+`
		ORDER BY p.id
	`, a.vals)
	if err != nil {
		return nil, fmt.Errorf("pull products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	index := make(map[int64]int)
	ids := make([]int64, 0, 64)
	for rows.Next() {
		var p domain.Product
		var category sql.NullInt64
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.SKU, &p.Barcode, &p.Unit, &p.AlertQuantity,
			&p.IsActive, &p.IsStockManaged, &category, &p.ProductType, &p.MetaData,
			dbTime{&p.CreatedAt}, dbTime{&p.UpdatedAt}); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.CategoryID = ptrInt64(category)
		p.Batches = []domain.Batch{}
		index[p.ID] = len(products)
		ids = append(ids, p.ID)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()

	for _, chunk := range chunkIDs(ids) {
		batches, err := s.batchesFor(ctx, chunk, filter.StoreID)
		if err != nil {
			return nil, err
		}
		for _, b := range batches {
			i := index[b.ProductID]
			products[i].Batches = append(products[i].Batches, b)
		}
	}
	return products, nil
}

func (s *DB) batchesFor(ctx context.Context, productIDs []int64, storeID *int64) ([]domain.Batch, error) {
	var a argList
	stockScope := ""
	if storeID != nil {
		stockScope = " AND s.store_id = " + a.add(*storeID)
	}
	in := a.in(productIDs)
	rows, err := s.query(ctx, `
		SELECT b.id, b.product_id, COALESCE(b.batch_number, ''), b.cost, b.price, b.discount,
			b.discount_percentage, b.is_active, b.is_featured,
			COALESCE((SELECT SUM(s.quantity) FROM product_stocks s WHERE s.batch_id = b.id`+stockScope+`), 0),
			b.created_at, b.updated_at
		FROM product_batches b
		WHERE b.product_id IN (`+in+`)
		ORDER BY b.product_id, b.id
	`, a.vals)
	if err != nil {
		return nil, fmt.Errorf("pull batches: %w", err)
	}
	defer rows.Close()

	var out []domain.Batch
	for rows.Next() {
		var b domain.Batch
		if err := rows.Scan(&b.ID, &b.ProductID, &b.BatchNumber, &b.Cost, &b.Price, &b.Discount,
			&b.DiscountPercentage, &b.IsActive, &b.IsFeatured, &b.StockQuantity,
			dbTime{&b.CreatedAt}, dbTime{&b.UpdatedAt}); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *DB) PullContacts(ctx context.Context, since *time.Time) ([]domain.Contact, error) {
	var a argList
	where := "1 = 1"
	if since != nil {
		where = "updated_at >= " + a.add(s.dialect.TimeArg(*since))
	}
	rows, err := s.query(ctx, `
		SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(address, ''), COALESCE(city, ''),
			contact_type, balance, is_active, created_at, updated_at
		FROM contacts
		WHERE `+where+`
		ORDER BY id
	`, a.vals)
	if err != nil {
		return nil, fmt.Errorf("pull contacts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Contact, 0, 64)
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.City, &c.ContactType,
			&c.Balance, &c.IsActive, dbTime{&c.CreatedAt}, dbTime{&c.UpdatedAt}); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *DB) PullCharges(ctx context.Context, since *time.Time) ([]domain.Charge, error) {
	var a argList
	where := "is_active = TRUE"
	if since != nil {
		where += " AND updated_at >= " + a.add(s.dialect.TimeArg(*since))
	}
	rows, err := s.query(ctx, `
		SELECT id, name, charge_type, rate_value, rate_type, COALESCE(description, ''), is_active, is_default,
			created_at, updated_at
		FROM charges
		WHERE `+where+`
		ORDER BY id
	`, a.vals)
	if err != nil {
		return nil, fmt.Errorf("pull charges: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Charge, 0, 16)
	for rows.Next() {
		var c domain.Charge
		if err := rows.Scan(&c.ID, &c.Name, &c.ChargeType, &c.RateValue, &c.RateType, &c.Description,
			&c.IsActive, &c.IsDefault, dbTime{&c.CreatedAt}, dbTime{&c.UpdatedAt}); err != nil {
			return nil, fmt.Errorf("scan charge: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *DB) PullStock(ctx context.Context, storeID int64, since *time.Time) ([]domain.StockRow, error) {
	var a argList
	where := "s.store_id = " + a.add(storeID)
	if since != nil {
		t := a.add(s.dialect.TimeArg(*since))
		where += " AND (s.updated_at >= " + t + " OR b.updated_at >= " + t + ")"
	}
	rows, err := s.query(ctx, `
		SELECT s.id, s.product_id, s.batch_id, s.store_id, s.quantity, s.created_at, s.updated_at,
			p.name, b.batch_number, b.cost, b.price
		FROM product_stocks s
		LEFT JOIN products p ON p.id = s.product_id
		LEFT JOIN product_batches b ON b.id = s.batch_id
		WHERE `+where+`
		ORDER BY s.id
	`, a.vals)
	if err != nil {
		return nil, fmt.Errorf("pull stock: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StockRow, 0, 64)
	for rows.Next() {
		var r domain.StockRow
		var name, batchNumber sql.NullString
		var cost, price sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.ProductID, &r.BatchID, &r.StoreID, &r.Quantity,
			dbTime{&r.CreatedAt}, dbTime{&r.UpdatedAt}, &name, &batchNumber, &cost, &price); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		r.ProductName = ptrString(name)
		r.BatchNumber = ptrString(batchNumber)
		r.Cost = ptrFloat(cost)
		r.Price = ptrFloat(price)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *DB) PullSales(ctx context.Context, storeID int64, since *time.Time) ([]domain.Sale, error) {
	var a argList
	where := "s.store_id = " + a.add(storeID)
	if since != nil {
		t := a.add(s.dialect.TimeArg(*since))
		where += " AND (s.updated_at >= " + t +
			" OR EXISTS (SELECT 1 FROM sale_items i WHERE i.sale_id = s.id AND i.updated_at >= " + t + "))"
	}
	rows, err := s.query(ctx, `
		SELECT s.id, COALESCE(s.invoice_number, ''), s.store_id, s.contact_id, s.sale_type, s.total_amount,
			s.discount, s.amount_received, s.profit_amount, s.total_charge_amount, s.status, s.payment_status,
			s.payment_method, COALESCE(s.note, ''), s.sale_date, COALESCE(s.sale_time, ''), s.created_at, s.updated_at
		FROM sales s
		WHERE `+where+`
		ORDER BY s.id
	`, a.vals)
	if err != nil {
		return nil, fmt.Errorf("pull sales: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	index := make(map[int64]int)
	ids := make([]int64, 0, 64)
	for rows.Next() {
		var v domain.Sale
		var contact sql.NullInt64
		if err := rows.Scan(&v.ID, &v.InvoiceNumber, &v.StoreID, &contact, &v.SaleType, &v.TotalAmount,
			&v.Discount, &v.AmountReceived, &v.ProfitAmount, &v.TotalChargeAmount, &v.Status, &v.PaymentStatus,
			&v.PaymentMethod, &v.Note, dbTime{&v.SaleDate}, &v.SaleTime,
			dbTime{&v.CreatedAt}, dbTime{&v.UpdatedAt}); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		v.ContactID = ptrInt64(contact)
		v.Items = []domain.SaleItem{}
		index[v.ID] = len(sales)
		ids = append(ids, v.ID)
		sales = append(sales, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()

	for _, chunk := range chunkIDs(ids) {
		items, err := s.itemsFor(ctx, chunk)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			i := index[item.SaleID]
			sales[i].Items = append(sales[i].Items, item)
		}
	}
	return sales, nil
}

func (s *DB) itemsFor(ctx context.Context, saleIDs []int64) ([]domain.SaleItem, error) {
	var a argList
	in := a.in(saleIDs)
	rows, err := s.query(ctx, `
		SELECT id, sale_id, product_id, batch_id, charge_id, quantity, unit_price, discount,
			COALESCE(item_type, ''), COALESCE(charge_type, ''), rate_value, COALESCE(rate_type, ''),
			base_amount, COALESCE(notes, ''), created_at, updated_at
		FROM sale_items
		WHERE sale_id IN (`+in+`)
		ORDER BY sale_id, id
	`, a.vals)
	if err != nil {
		return nil, fmt.Errorf("pull sale items: %w", err)
	}
	defer rows.Close()

	var out []domain.SaleItem
	for rows.Next() {
		var item domain.SaleItem
		var product, batch, charge sql.NullInt64
		if err := rows.Scan(&item.ID, &item.SaleID, &product, &batch, &charge, &item.Quantity,
			&item.UnitPrice, &item.Discount, &item.ItemType, &item.ChargeType, &item.RateValue,
			&item.RateType, &item.BaseAmount, &item.Notes, dbTime{&item.CreatedAt}, dbTime{&item.UpdatedAt}); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		item.ProductID = ptrInt64(product)
		item.BatchID = ptrInt64(batch)
		item.ChargeID = ptrInt64(charge)
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *DB) count(ctx context.Context, q string, args ...any) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, s.dialect.Rebind(q), args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *DB) CountProducts(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM products WHERE is_active = TRUE`)
}

func (s *DB) CountContacts(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM contacts`)
}

func (s *DB) CountCharges(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM charges WHERE is_active = TRUE`)
}

func (s *DB) CountSales(ctx context.Context, storeID int64) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM sales WHERE store_id = $1`, storeID)
}

func (s *DB) CountTransactions(ctx context.Context, storeID int64) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM transactions WHERE store_id = $1`, storeID)
}

func (s *DB) CountStock(ctx context.Context, storeID int64) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM product_stocks WHERE store_id = $1`, storeID)
}

func (s *DB) GetStore(ctx context.Context, id int64) (*domain.StoreInfo, error) {
	var info domain.StoreInfo
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT id, name, COALESCE(address, ''), COALESCE(phone, ''), COALESCE(email, ''),
			COALESCE(currency, ''), COALESCE(timezone, ''), created_at, updated_at
		FROM stores
		WHERE id = $1
	`), id).Scan(&info.ID, &info.Name, &info.Address, &info.Phone, &info.Email, &info.Currency, &info.Timezone,
		dbTime{&info.CreatedAt}, dbTime{&info.UpdatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *DB) FindUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var u domain.UserAccount
	var storeID sql.NullInt64
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT username, password_hash, role, store_id, active, created_at
		FROM users
		WHERE lower(username) = lower($1)
	`), username).Scan(&u.Username, &u.Password, &u.Role, &storeID, &u.Active, dbTime{&u.CreatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.StoreID = ptrInt64(storeID)
	return &u, nil
}
