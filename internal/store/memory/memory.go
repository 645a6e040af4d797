package memory

import (
	"context"
	"fmt"
	"log"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"infopos/backend/internal/domain"
	"infopos/backend/internal/store"
)

// Store keeps every table in process memory. Push batches run against a cloned
// working copy that replaces the live dataset only on commit.
type Store struct {
	mu              sync.RWMutex
	data            *dataset
	usersByUsername map[string]domain.UserAccount
}

type dataset struct {
	products     map[int64]domain.Product
	batches      map[int64]domain.Batch
	stocks       map[int64]domain.Stock
	contacts     map[int64]domain.Contact
	charges      map[int64]domain.Charge
	sales        map[int64]domain.Sale
	saleItems    map[int64]domain.SaleItem
	transactions map[int64]domain.Transaction
	stores       map[int64]domain.StoreInfo
	lastID       map[string]int64
}

func newDataset() *dataset {
	return &dataset{
		products:     make(map[int64]domain.Product),
		batches:      make(map[int64]domain.Batch),
		stocks:       make(map[int64]domain.Stock),
		contacts:     make(map[int64]domain.Contact),
		charges:      make(map[int64]domain.Charge),
		sales:        make(map[int64]domain.Sale),
		saleItems:    make(map[int64]domain.SaleItem),
		transactions: make(map[int64]domain.Transaction),
		stores:       make(map[int64]domain.StoreInfo),
		lastID:       make(map[string]int64),
	}
}

func (d *dataset) clone() *dataset {
	return &dataset{
		products:     maps.Clone(d.products),
		batches:      maps.Clone(d.batches),
		stocks:       maps.Clone(d.stocks),
		contacts:     maps.Clone(d.contacts),
		charges:      maps.Clone(d.charges),
		sales:        maps.Clone(d.sales),
		saleItems:    maps.Clone(d.saleItems),
		transactions: maps.Clone(d.transactions),
		stores:       maps.Clone(d.stores),
		lastID:       maps.Clone(d.lastID),
	}
}

// nextID allocates a row id, or claims the client-supplied one.
func (d *dataset) nextID(table string, requested int64) int64 {
	if requested > 0 {
		if requested > d.lastID[table] {
			d.lastID[table] = requested
		}
		return requested
	}
	d.lastID[table]++
	return d.lastID[table]
}

func New() *Store {
	return &Store{data: newDataset(), usersByUsername: map[string]domain.UserAccount{}}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses a SQL store when DATABASE_URL or SQLITE_PATH is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	mainStore := int64(1)
	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		storeID  *int64
	}{
		{"admin", adminPwd, "admin", nil},
		{"cashier", cashierPwd, "cashier", &mainStore},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			StoreID:   u.storeID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with one shop, a small catalogue, stock, contacts, charges
// and the demo user accounts.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()
	now := time.Now().UTC()
	d := s.data

	d.stores[1] = domain.StoreInfo{ID: 1, Name: "Main Store", Address: "Jl. Merdeka 1", Phone: "021-555-0101", Currency: "IDR", Timezone: "Asia/Jakarta", CreatedAt: now, UpdatedAt: now}
	d.stores[2] = domain.StoreInfo{ID: 2, Name: "Branch Store", CreatedAt: now, UpdatedAt: now}
	d.lastID["stores"] = 2

	catalogue := []struct {
		name, sku string
		cost      float64
		price     float64
		qty       float64
	}{
		{"Mie Goreng Instan", "SKU-MIE-01", 2700, 3500, 120},
		{"Telur 10 Butir", "SKU-TELUR-01", 23000, 26500, 40},
		{"Susu UHT 1L", "SKU-SUSU-01", 13600, 18900, 36},
		{"Kopi Sachet", "SKU-KOPI-01", 1700, 2600, 200},
		{"Air Mineral 600ml", "SKU-AIR-01", 3200, 3900, 96},
	}
	for _, c := range catalogue {
		pid := d.nextID("products", 0)
		d.products[pid] = domain.Product{ID: pid, Name: c.name, SKU: c.sku, Barcode: c.sku, Unit: "PC", IsActive: true, IsStockManaged: true, ProductType: "simple", CreatedAt: now, UpdatedAt: now}
		bid := d.nextID("batches", 0)
		d.batches[bid] = domain.Batch{ID: bid, ProductID: pid, BatchNumber: "DEFAULT", Cost: c.cost, Price: c.price, IsActive: true, CreatedAt: now, UpdatedAt: now}
		sid := d.nextID("stocks", 0)
		d.stocks[sid] = domain.Stock{ID: sid, ProductID: pid, BatchID: bid, StoreID: 1, Quantity: c.qty, CreatedAt: now, UpdatedAt: now}
	}

	d.contacts[d.nextID("contacts", 0)] = domain.Contact{ID: 1, Name: "Walk-In Customer", ContactType: domain.ContactTypeCustomer, IsActive: true, CreatedAt: now, UpdatedAt: now}
	d.contacts[d.nextID("contacts", 0)] = domain.Contact{ID: 2, Name: "PT Sumber Makmur", ContactType: domain.ContactTypeVendor, IsActive: true, CreatedAt: now, UpdatedAt: now}

	d.charges[d.nextID("charges", 0)] = domain.Charge{ID: 1, Name: "VAT", ChargeType: "tax", RateValue: 11, RateType: "percentage", IsActive: true, IsDefault: true, CreatedAt: now, UpdatedAt: now}
	d.charges[d.nextID("charges", 0)] = domain.Charge{ID: 2, Name: "Delivery", ChargeType: "fee", RateValue: 10000, RateType: "fixed", IsActive: true, CreatedAt: now, UpdatedAt: now}
	return s
}

// Fixture setters let tests and the demo build catalogue data the sync API cannot write.

func (s *Store) PutStore(info domain.StoreInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.stores[info.ID] = info
	s.data.nextID("stores", info.ID)
}

func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range p.Batches {
		b.ProductID = p.ID
		s.data.batches[b.ID] = b
		s.data.nextID("batches", b.ID)
	}
	p.Batches = nil
	s.data.products[p.ID] = p
	s.data.nextID("products", p.ID)
}

func (s *Store) PutStock(st domain.Stock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.stocks[st.ID] = st
	s.data.nextID("stocks", st.ID)
}

func (s *Store) PutContact(c domain.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.contacts[c.ID] = c
	s.data.nextID("contacts", c.ID)
}

func (s *Store) PutCharge(c domain.Charge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.charges[c.ID] = c
	s.data.nextID("charges", c.ID)
}

func (s *Store) PutUser(u domain.UserAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usersByUsername[strings.ToLower(u.Username)] = u
}

func (s *Store) PullProducts(_ context.Context, filter store.DeltaFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.data

	batchesByProduct := make(map[int64][]domain.Batch)
	for _, b := range d.batches {
		batchesByProduct[b.ProductID] = append(batchesByProduct[b.ProductID], b)
	}
	stocksByBatch := make(map[int64][]domain.Stock)
	for _, st := range d.stocks {
		if filter.StoreID != nil && st.StoreID != *filter.StoreID {
			continue
		}
		stocksByBatch[st.BatchID] = append(stocksByBatch[st.BatchID], st)
	}

	out := make([]domain.Product, 0, len(d.products))
	for _, p := range d.products {
		if !p.IsActive {
			continue
		}
		changed := changedSince(p.UpdatedAt, filter.Since)
		stocked := false
		batches := batchesByProduct[p.ID]
		slices.SortFunc(batches, func(a, b domain.Batch) int { return cmpInt64(a.ID, b.ID) })
		for i := range batches {
			changed = changed || changedSince(batches[i].UpdatedAt, filter.Since)
			for _, st := range stocksByBatch[batches[i].ID] {
				stocked = true
				batches[i].StockQuantity += st.Quantity
				changed = changed || changedSince(st.UpdatedAt, filter.Since)
			}
		}
		if filter.StoreID != nil && !stocked {
			continue
		}
		if !changed {
			continue
		}
		p.Batches = batches
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Product) int { return cmpInt64(a.ID, b.ID) })
	return out, nil
}

func (s *Store) PullContacts(_ context.Context, since *time.Time) ([]domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Contact, 0, len(s.data.contacts))
	for _, c := range s.data.contacts {
		if changedSince(c.UpdatedAt, since) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b domain.Contact) int { return cmpInt64(a.ID, b.ID) })
	return out, nil
}

func (s *Store) PullCharges(_ context.Context, since *time.Time) ([]domain.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Charge, 0, len(s.data.charges))
	for _, c := range s.data.charges {
		if c.IsActive && changedSince(c.UpdatedAt, since) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b domain.Charge) int { return cmpInt64(a.ID, b.ID) })
	return out, nil
}

func (s *Store) PullStock(_ context.Context, storeID int64, since *time.Time) ([]domain.StockRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.data
	out := make([]domain.StockRow, 0)
	for _, st := range d.stocks {
		if st.StoreID != storeID {
			continue
		}
		row := domain.StockRow{Stock: st}
		changed := changedSince(st.UpdatedAt, since)
		if b, ok := d.batches[st.BatchID]; ok {
			changed = changed || changedSince(b.UpdatedAt, since)
			row.BatchNumber = &b.BatchNumber
			row.Cost = &b.Cost
			row.Price = &b.Price
		}
		if p, ok := d.products[st.ProductID]; ok {
			row.ProductName = &p.Name
		}
		if changed {
			out = append(out, row)
		}
	}
	slices.SortFunc(out, func(a, b domain.StockRow) int { return cmpInt64(a.ID, b.ID) })
	return out, nil
}

func (s *Store) PullSales(_ context.Context, storeID int64, since *time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.data
	itemsBySale := make(map[int64][]domain.SaleItem)
	for _, item := range d.saleItems {
		itemsBySale[item.SaleID] = append(itemsBySale[item.SaleID], item)
	}

	out := make([]domain.Sale, 0)
	for _, sale := range d.sales {
		if sale.StoreID != storeID {
			continue
		}
		items := itemsBySale[sale.ID]
		changed := changedSince(sale.UpdatedAt, since)
		for _, item := range items {
			changed = changed || changedSince(item.UpdatedAt, since)
		}
		if !changed {
			continue
		}
		slices.SortFunc(items, func(a, b domain.SaleItem) int { return cmpInt64(a.ID, b.ID) })
		sale.Items = items
		out = append(out, sale)
	}
	slices.SortFunc(out, func(a, b domain.Sale) int { return cmpInt64(a.ID, b.ID) })
	return out, nil
}

func (s *Store) CountProducts(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countWhere(s.data.products, func(p domain.Product) bool { return p.IsActive }), nil
}

func (s *Store) CountContacts(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data.contacts)), nil
}

func (s *Store) CountCharges(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countWhere(s.data.charges, func(c domain.Charge) bool { return c.IsActive }), nil
}

func (s *Store) CountSales(_ context.Context, storeID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countWhere(s.data.sales, func(v domain.Sale) bool { return v.StoreID == storeID }), nil
}

func (s *Store) CountTransactions(_ context.Context, storeID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countWhere(s.data.transactions, func(v domain.Transaction) bool { return v.StoreID == storeID }), nil
}

func (s *Store) CountStock(_ context.Context, storeID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countWhere(s.data.stocks, func(v domain.Stock) bool { return v.StoreID == storeID }), nil
}

func (s *Store) GetStore(_ context.Context, id int64) (*domain.StoreInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.data.stores[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &info, nil
}

func (s *Store) FindUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) RunBatch(ctx context.Context, fn func(tx store.BatchTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &batchTx{data: s.data.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

type batchTx struct {
	data *dataset
}

func (tx *batchTx) Isolate(_ context.Context, fn func() error) error {
	snapshot := tx.data.clone()
	if err := fn(); err != nil {
		tx.data = snapshot
		return err
	}
	return nil
}

func (tx *batchTx) FindSaleStore(_ context.Context, id int64) (int64, bool, error) {
	sale, ok := tx.data.sales[id]
	return sale.StoreID, ok, nil
}

func (tx *batchTx) FindSaleByInvoice(_ context.Context, storeID int64, invoiceNumber string) (int64, bool, error) {
	for _, sale := range tx.data.sales {
		if sale.StoreID == storeID && sale.InvoiceNumber == invoiceNumber {
			return sale.ID, true, nil
		}
	}
	return 0, false, nil
}

func (tx *batchTx) CreateSale(_ context.Context, sale domain.Sale) (int64, error) {
	if _, ok := tx.data.sales[sale.ID]; ok && sale.ID > 0 {
		return 0, fmt.Errorf("%w: sale %d already exists", store.ErrRecordRejected, sale.ID)
	}
	if err := tx.checkSale(sale); err != nil {
		return 0, err
	}
	sale.ID = tx.data.nextID("sales", sale.ID)
	sale.Items = nil
	tx.data.sales[sale.ID] = sale
	return sale.ID, nil
}

func (tx *batchTx) UpdateSale(_ context.Context, sale domain.Sale) error {
	current, ok := tx.data.sales[sale.ID]
	if !ok {
		return store.ErrNotFound
	}
	if err := tx.checkSale(sale); err != nil {
		return err
	}
	sale.CreatedAt = current.CreatedAt
	sale.Items = nil
	tx.data.sales[sale.ID] = sale
	return nil
}

// checkSale mirrors the SQL constraints on sales.
func (tx *batchTx) checkSale(sale domain.Sale) error {
	if sale.ContactID != nil {
		if _, ok := tx.data.contacts[*sale.ContactID]; !ok {
			return fmt.Errorf("%w: contact %d does not exist", store.ErrRecordRejected, *sale.ContactID)
		}
	}
	if sale.InvoiceNumber == "" {
		return nil
	}
	for _, other := range tx.data.sales {
		if other.ID != sale.ID && other.StoreID == sale.StoreID && other.InvoiceNumber == sale.InvoiceNumber {
			return fmt.Errorf("%w: invoice number %s already used", store.ErrRecordRejected, sale.InvoiceNumber)
		}
	}
	return nil
}

func (tx *batchTx) FindSaleItem(_ context.Context, saleID int64, key domain.SaleItemKey) (int64, bool, error) {
	for _, item := range tx.data.saleItems {
		if item.SaleID != saleID {
			continue
		}
		if key.ProductID != nil {
			if item.ProductID != nil && *item.ProductID == *key.ProductID {
				return item.ID, true, nil
			}
			continue
		}
		if key.ChargeID != nil && item.ProductID == nil && item.ChargeID != nil && *item.ChargeID == *key.ChargeID {
			return item.ID, true, nil
		}
	}
	return 0, false, nil
}

func (tx *batchTx) CreateSaleItem(_ context.Context, item domain.SaleItem) (int64, error) {
	if err := tx.checkSaleItem(item); err != nil {
		return 0, err
	}
	item.ID = tx.data.nextID("sale_items", 0)
	tx.data.saleItems[item.ID] = item
	return item.ID, nil
}

func (tx *batchTx) UpdateSaleItem(_ context.Context, item domain.SaleItem) error {
	current, ok := tx.data.saleItems[item.ID]
	if !ok {
		return store.ErrNotFound
	}
	if err := tx.checkSaleItem(item); err != nil {
		return err
	}
	item.CreatedAt = current.CreatedAt
	tx.data.saleItems[item.ID] = item
	return nil
}

func (tx *batchTx) checkSaleItem(item domain.SaleItem) error {
	if _, ok := tx.data.sales[item.SaleID]; !ok {
		return fmt.Errorf("%w: sale %d does not exist", store.ErrRecordRejected, item.SaleID)
	}
	if item.ProductID != nil {
		if _, ok := tx.data.products[*item.ProductID]; !ok {
			return fmt.Errorf("%w: product %d does not exist", store.ErrRecordRejected, *item.ProductID)
		}
	}
	if item.BatchID != nil {
		if _, ok := tx.data.batches[*item.BatchID]; !ok {
			return fmt.Errorf("%w: batch %d does not exist", store.ErrRecordRejected, *item.BatchID)
		}
	}
	if item.ChargeID != nil {
		if _, ok := tx.data.charges[*item.ChargeID]; !ok {
			return fmt.Errorf("%w: charge %d does not exist", store.ErrRecordRejected, *item.ChargeID)
		}
	}
	return nil
}

func (tx *batchTx) FindTransactionStore(_ context.Context, id int64) (int64, bool, error) {
	txn, ok := tx.data.transactions[id]
	return txn.StoreID, ok, nil
}

func (tx *batchTx) CreateTransaction(_ context.Context, txn domain.Transaction) (int64, error) {
	if _, ok := tx.data.transactions[txn.ID]; ok && txn.ID > 0 {
		return 0, fmt.Errorf("%w: transaction %d already exists", store.ErrRecordRejected, txn.ID)
	}
	if err := tx.checkTransaction(txn); err != nil {
		return 0, err
	}
	txn.ID = tx.data.nextID("transactions", txn.ID)
	tx.data.transactions[txn.ID] = txn
	return txn.ID, nil
}

func (tx *batchTx) UpdateTransaction(_ context.Context, txn domain.Transaction) error {
	current, ok := tx.data.transactions[txn.ID]
	if !ok {
		return store.ErrNotFound
	}
	if err := tx.checkTransaction(txn); err != nil {
		return err
	}
	txn.CreatedAt = current.CreatedAt
	tx.data.transactions[txn.ID] = txn
	return nil
}

func (tx *batchTx) checkTransaction(txn domain.Transaction) error {
	if txn.SaleID != nil {
		if _, ok := tx.data.sales[*txn.SaleID]; !ok {
			return fmt.Errorf("%w: sale %d does not exist", store.ErrRecordRejected, *txn.SaleID)
		}
	}
	if txn.ContactID != nil {
		if _, ok := tx.data.contacts[*txn.ContactID]; !ok {
			return fmt.Errorf("%w: contact %d does not exist", store.ErrRecordRejected, *txn.ContactID)
		}
	}
	return nil
}

func (tx *batchTx) ContactExists(_ context.Context, id int64) (bool, error) {
	_, ok := tx.data.contacts[id]
	return ok, nil
}

func (tx *batchTx) CreateContact(_ context.Context, contact domain.Contact) (int64, error) {
	if _, ok := tx.data.contacts[contact.ID]; ok && contact.ID > 0 {
		return 0, fmt.Errorf("%w: contact %d already exists", store.ErrRecordRejected, contact.ID)
	}
	contact.ID = tx.data.nextID("contacts", contact.ID)
	tx.data.contacts[contact.ID] = contact
	return contact.ID, nil
}

func (tx *batchTx) UpdateContact(_ context.Context, contact domain.Contact) error {
	current, ok := tx.data.contacts[contact.ID]
	if !ok {
		return store.ErrNotFound
	}
	contact.CreatedAt = current.CreatedAt
	tx.data.contacts[contact.ID] = contact
	return nil
}

func (tx *batchTx) FindStock(_ context.Context, productID, batchID, storeID int64) (int64, bool, error) {
	for _, st := range tx.data.stocks {
		if st.ProductID == productID && st.BatchID == batchID && st.StoreID == storeID {
			return st.ID, true, nil
		}
	}
	return 0, false, nil
}

func (tx *batchTx) CreateStock(_ context.Context, st domain.Stock) (int64, error) {
	if _, ok := tx.data.products[st.ProductID]; !ok {
		return 0, fmt.Errorf("%w: product %d does not exist", store.ErrRecordRejected, st.ProductID)
	}
	if _, ok := tx.data.batches[st.BatchID]; !ok {
		return 0, fmt.Errorf("%w: batch %d does not exist", store.ErrRecordRejected, st.BatchID)
	}
	st.ID = tx.data.nextID("stocks", 0)
	tx.data.stocks[st.ID] = st
	return st.ID, nil
}

func (tx *batchTx) UpdateStockQuantity(_ context.Context, id int64, quantity float64, at time.Time) error {
	st, ok := tx.data.stocks[id]
	if !ok {
		return store.ErrNotFound
	}
	st.Quantity = quantity
	st.UpdatedAt = at
	tx.data.stocks[id] = st
	return nil
}

func changedSince(updatedAt time.Time, since *time.Time) bool {
	return since == nil || !updatedAt.Before(*since)
}

func countWhere[V any](m map[int64]V, keep func(V) bool) int64 {
	var n int64
	for _, v := range m {
		if keep(v) {
			n++
		}
	}
	return n
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
