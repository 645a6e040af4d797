package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"infopos/backend/internal/domain"
	"infopos/backend/internal/store"
)

type batchTx struct {
	tx        *sql.Tx
	dialect   Dialect
	savepoint int
}

func (t *batchTx) exec(ctx context.Context, q string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, t.dialect.Rebind(q), args...)
	return err
}

// classify marks data-caused failures so the reconciler can report them per record.
func (t *batchTx) classify(err error) error {
	if err == nil {
		return nil
	}
	if t.dialect.IsRecordError(err) {
		return fmt.Errorf("%w: %w", store.ErrRecordRejected, err)
	}
	return err
}

func (t *batchTx) Isolate(ctx context.Context, fn func() error) error {
	t.savepoint++
	name := fmt.Sprintf("rec_%d", t.savepoint)
	if err := t.exec(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("open savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if rbErr := t.exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("rollback savepoint after %q: %w", err.Error(), rbErr)
		}
		if relErr := t.exec(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return fmt.Errorf("release savepoint: %w", relErr)
		}
		return err
	}
	if err := t.exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func (t *batchTx) exists(ctx context.Context, q string, args ...any) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, t.dialect.Rebind(q), args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *batchTx) findID(ctx context.Context, q string, args ...any) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, t.dialect.Rebind(q), args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// insert adds a row and returns its id. A positive id is written as-is.
func (t *batchTx) insert(ctx context.Context, table string, id int64, cols []string, vals []any) (int64, error) {
	if id > 0 {
		cols = append([]string{"id"}, cols...)
		vals = append([]any{id}, vals...)
	}
	var a argList
	ph := make([]string, 0, len(vals))
	for _, v := range vals {
		ph = append(ph, a.add(v))
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id", table, strings.Join(cols, ", "), strings.Join(ph, ", "))

	var newID int64
	if err := t.tx.QueryRowContext(ctx, t.dialect.Rebind(q), a.vals...).Scan(&newID); err != nil {
		return 0, t.classify(err)
	}
	if id > 0 {
		if err := t.dialect.AfterExplicitID(ctx, t.tx, table); err != nil {
			return 0, fmt.Errorf("realign %s ids: %w", table, err)
		}
	}
	return newID, nil
}

func (t *batchTx) update(ctx context.Context, table string, id int64, cols []string, vals []any) error {
	var a argList
	sets := make([]string, 0, len(cols))
	for i, col := range cols {
		sets = append(sets, col+" = "+a.add(vals[i]))
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s", table, strings.Join(sets, ", "), a.add(id))
	res, err := t.tx.ExecContext(ctx, t.dialect.Rebind(q), a.vals...)
	if err != nil {
		return t.classify(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

var saleCols = []string{
	"invoice_number", "store_id", "contact_id", "sale_type", "total_amount", "discount", "amount_received",
	"profit_amount", "total_charge_amount", "status", "payment_status", "payment_method", "note",
	"sale_date", "sale_time", "updated_at",
}

func (t *batchTx) saleVals(v domain.Sale) []any {
	return []any{
		nullIfEmpty(v.InvoiceNumber), v.StoreID, nullInt64(v.ContactID), v.SaleType, v.TotalAmount, v.Discount,
		v.AmountReceived, v.ProfitAmount, v.TotalChargeAmount, v.Status, v.PaymentStatus, v.PaymentMethod,
		nullIfEmpty(v.Note), t.dialect.TimeArg(v.SaleDate), nullIfEmpty(v.SaleTime), t.dialect.TimeArg(v.UpdatedAt),
	}
}

func (t *batchTx) FindSaleStore(ctx context.Context, id int64) (int64, bool, error) {
	return t.findID(ctx, `SELECT store_id FROM sales WHERE id = $1`, id)
}

func (t *batchTx) FindSaleByInvoice(ctx context.Context, storeID int64, invoiceNumber string) (int64, bool, error) {
	return t.findID(ctx, `SELECT id FROM sales WHERE store_id = $1 AND invoice_number = $2`, storeID, invoiceNumber)
}

func (t *batchTx) CreateSale(ctx context.Context, v domain.Sale) (int64, error) {
	cols := append(slices.Clone(saleCols), "created_at")
	vals := append(t.saleVals(v), t.dialect.TimeArg(v.CreatedAt))
	return t.insert(ctx, "sales", v.ID, cols, vals)
}

func (t *batchTx) UpdateSale(ctx context.Context, v domain.Sale) error {
	return t.update(ctx, "sales", v.ID, saleCols, t.saleVals(v))
}

var saleItemCols = []string{
	"sale_id", "product_id", "batch_id", "charge_id", "quantity", "unit_price", "discount", "item_type",
	"charge_type", "rate_value", "rate_type", "base_amount", "notes", "updated_at",
}

func (t *batchTx) saleItemVals(item domain.SaleItem) []any {
	return []any{
		item.SaleID, nullInt64(item.ProductID), nullInt64(item.BatchID), nullInt64(item.ChargeID), item.Quantity,
		item.UnitPrice, item.Discount, nullIfEmpty(item.ItemType), nullIfEmpty(item.ChargeType), item.RateValue,
		nullIfEmpty(item.RateType), item.BaseAmount, nullIfEmpty(item.Notes), t.dialect.TimeArg(item.UpdatedAt),
	}
}

func (t *batchTx) FindSaleItem(ctx context.Context, saleID int64, key domain.SaleItemKey) (int64, bool, error) {
	switch {
	case key.ProductID != nil:
		return t.findID(ctx, `SELECT id FROM sale_items WHERE sale_id = $1 AND product_id = $2 ORDER BY id LIMIT 1`,
			saleID, *key.ProductID)
	case key.ChargeID != nil:
		return t.findID(ctx, `SELECT id FROM sale_items WHERE sale_id = $1 AND product_id IS NULL AND charge_id = $2 ORDER BY id LIMIT 1`,
			saleID, *key.ChargeID)
	default:
		return 0, false, nil
	}
}

func (t *batchTx) CreateSaleItem(ctx context.Context, item domain.SaleItem) (int64, error) {
	cols := append(slices.Clone(saleItemCols), "created_at")
	vals := append(t.saleItemVals(item), t.dialect.TimeArg(item.CreatedAt))
	return t.insert(ctx, "sale_items", 0, cols, vals)
}

func (t *batchTx) UpdateSaleItem(ctx context.Context, item domain.SaleItem) error {
	return t.update(ctx, "sale_items", item.ID, saleItemCols, t.saleItemVals(item))
}

var transactionCols = []string{
	"store_id", "sale_id", "contact_id", "amount", "payment_method", "transaction_type", "reference_number",
	"note", "transaction_date", "updated_at",
}

func (t *batchTx) transactionVals(v domain.Transaction) []any {
	return []any{
		v.StoreID, nullInt64(v.SaleID), nullInt64(v.ContactID), v.Amount, v.PaymentMethod, v.TransactionType,
		nullIfEmpty(v.ReferenceNumber), nullIfEmpty(v.Note), t.dialect.TimeArg(v.TransactionDate),
		t.dialect.TimeArg(v.UpdatedAt),
	}
}

func (t *batchTx) FindTransactionStore(ctx context.Context, id int64) (int64, bool, error) {
	return t.findID(ctx, `SELECT store_id FROM transactions WHERE id = $1`, id)
}

func (t *batchTx) CreateTransaction(ctx context.Context, v domain.Transaction) (int64, error) {
	cols := append(slices.Clone(transactionCols), "created_at")
	vals := append(t.transactionVals(v), t.dialect.TimeArg(v.CreatedAt))
	return t.insert(ctx, "transactions", v.ID, cols, vals)
}

func (t *batchTx) UpdateTransaction(ctx context.Context, v domain.Transaction) error {
	return t.update(ctx, "transactions", v.ID, transactionCols, t.transactionVals(v))
}

var contactCols = []string{
	"name", "email", "phone", "address", "city", "contact_type", "balance", "is_active", "updated_at",
}

func (t *batchTx) contactVals(c domain.Contact) []any {
	return []any{
		c.Name, nullIfEmpty(c.Email), nullIfEmpty(c.Phone), nullIfEmpty(c.Address), nullIfEmpty(c.City),
		c.ContactType, c.Balance, c.IsActive, t.dialect.TimeArg(c.UpdatedAt),
	}
}

func (t *batchTx) ContactExists(ctx context.Context, id int64) (bool, error) {
	return t.exists(ctx, `SELECT 1 FROM contacts WHERE id = $1`, id)
}

func (t *batchTx) CreateContact(ctx context.Context, c domain.Contact) (int64, error) {
	cols := append(slices.Clone(contactCols), "created_at")
	vals := append(t.contactVals(c), t.dialect.TimeArg(c.CreatedAt))
	return t.insert(ctx, "contacts", c.ID, cols, vals)
}

func (t *batchTx) UpdateContact(ctx context.Context, c domain.Contact) error {
	return t.update(ctx, "contacts", c.ID, contactCols, t.contactVals(c))
}

func (t *batchTx) FindStock(ctx context.Context, productID, batchID, storeID int64) (int64, bool, error) {
	return t.findID(ctx, `SELECT id FROM product_stocks WHERE product_id = $1 AND batch_id = $2 AND store_id = $3`,
		productID, batchID, storeID)
}

func (t *batchTx) CreateStock(ctx context.Context, st domain.Stock) (int64, error) {
	return t.insert(ctx, "product_stocks", 0,
		[]string{"product_id", "batch_id", "store_id", "quantity", "created_at", "updated_at"},
		[]any{st.ProductID, st.BatchID, st.StoreID, st.Quantity, t.dialect.TimeArg(st.CreatedAt), t.dialect.TimeArg(st.UpdatedAt)})
}

func (t *batchTx) UpdateStockQuantity(ctx context.Context, id int64, quantity float64, at time.Time) error {
	return t.update(ctx, "product_stocks", id, []string{"quantity", "updated_at"}, []any{quantity, t.dialect.TimeArg(at)})
}
