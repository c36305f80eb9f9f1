package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/retailstock/internal/platform/db"
	"github.com/odyssey-erp/retailstock/internal/shared"
)

// TxRepository exposes transactional operations used by the ledger and workflows.
type TxRepository interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetStore(ctx context.Context, id int64) (Store, error)
	// LockRecord reads the record and holds its row lock until the transaction ends.
	LockRecord(ctx context.Context, storeID, productID int64) (Record, error)
	InsertRecord(ctx context.Context, rec Record) error
	UpdateRecord(ctx context.Context, rec Record) error
	LatestMovement(ctx context.Context, storeID, productID int64) (Movement, bool, error)
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
	ListPurchaseMovements(ctx context.Context, storeID, productID int64) ([]Movement, error)
	NextSequence(ctx context.Context, docType, day string) (int64, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRecord(ctx context.Context, storeID, productID int64) (RecordView, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]RecordView, int, error)
	ListAlertCandidates(ctx context.Context, filter AlertFilter) ([]RecordView, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error)
	ListLedger(ctx context.Context, storeID, productID int64) ([]Movement, error)
	ListRecordKeys(ctx context.Context, storeID int64) ([]RecordKey, error)
	ListStores(ctx context.Context) ([]Store, error)
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds ledger operations to an open transaction so workflow
// repositories can share it.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const recordViewColumns = `r.store_id, s.name, r.product_id, p.name, p.sku, p.category, r.quantity, r.minimum_stock,
r.maximum_stock, r.average_cost, r.last_cost, r.location, r.last_restock_date, r.updated_at`

const recordViewFrom = `FROM inventory_records r
JOIN stores s ON s.id = r.store_id
JOIN products p ON p.id = r.product_id`

func scanRecordView(row pgx.Row) (RecordView, error) {
	var v RecordView
	err := row.Scan(&v.StoreID, &v.StoreName, &v.ProductID, &v.ProductName, &v.SKU, &v.Category, &v.Quantity, &v.MinimumStock,
		&v.MaximumStock, &v.AverageCost, &v.LastCost, &v.Location, &v.LastRestockDate, &v.UpdatedAt)
	if err != nil {
		return RecordView{}, err
	}
	v.Status = StockStatusOf(v.Quantity, v.MinimumStock)
	return v, nil
}

func collectRecordViews(rows pgx.Rows) ([]RecordView, error) {
	defer rows.Close()
	var out []RecordView
	for rows.Next() {
		v, err := scanRecordView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetRecord loads a record with catalog details.
func (r *Repository) GetRecord(ctx context.Context, storeID, productID int64) (RecordView, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordViewColumns+` `+recordViewFrom+`
WHERE r.store_id=$1 AND r.product_id=$2`, storeID, productID)
	v, err := scanRecordView(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return RecordView{}, ErrRecordNotFound
	}
	return v, err
}

// whereBuilder accumulates positional predicates.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *whereBuilder) addRaw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// ListRecords lists records with catalog details.
func (r *Repository) ListRecords(ctx context.Context, filter RecordFilter) ([]RecordView, int, error) {
	var w whereBuilder
	if filter.StoreID != 0 {
		w.add("r.store_id = ?", filter.StoreID)
	}
	if filter.Category != "" {
		w.add("p.category = ?", filter.Category)
	}
	if filter.Search != "" {
		w.add("(p.name ILIKE ? OR p.sku ILIKE ?)", "%"+filter.Search+"%")
	}
	switch filter.Status {
	case StatusOutOfStock:
		w.addRaw("r.quantity <= 0")
	case StatusLowStock:
		w.addRaw("r.quantity > 0 AND r.quantity <= r.minimum_stock")
	case StatusInStock:
		w.addRaw("r.quantity > r.minimum_stock")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) `+recordViewFrom+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	args := append(w.args, perPage, (page-1)*perPage)
	rows, err := r.pool.Query(ctx, `SELECT `+recordViewColumns+` `+recordViewFrom+w.sql()+
		fmt.Sprintf(` ORDER BY s.name, p.name LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	views, err := collectRecordViews(rows)
	return views, total, err
}

// ListAlertCandidates returns records at or below 1.5 x their minimum.
func (r *Repository) ListAlertCandidates(ctx context.Context, filter AlertFilter) ([]RecordView, error) {
	var w whereBuilder
	w.addRaw("r.minimum_stock > 0")
	if filter.IncludeApproaching {
		w.addRaw("r.quantity * 2 <= r.minimum_stock * 3")
	} else {
		w.addRaw("r.quantity <= r.minimum_stock")
	}
	if filter.StoreID != 0 {
		w.add("r.store_id = ?", filter.StoreID)
	}
	if filter.Category != "" {
		w.add("p.category = ?", filter.Category)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+recordViewColumns+` `+recordViewFrom+w.sql()+
		` ORDER BY r.quantity ASC, s.name, p.name`, w.args...)
	if err != nil {
		return nil, err
	}
	return collectRecordViews(rows)
}

const movementColumns = `id, store_id, product_id, actor_id, movement_type, quantity_before, quantity_change, quantity_after,
unit_cost, origin_kind, origin_id, movement_date, notes, created_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.StoreID, &m.ProductID, &m.ActorID, &m.Type, &m.QuantityBefore, &m.QuantityChange, &m.QuantityAfter,
		&m.UnitCost, &m.Origin.Kind, &m.Origin.ID, &m.MovementDate, &m.Notes, &m.CreatedAt)
	return m, err
}

func collectMovements(rows pgx.Rows) ([]Movement, error) {
	defer rows.Close()
	out := []Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListMovements returns history newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	var w whereBuilder
	if filter.StoreID != 0 {
		w.add("store_id = ?", filter.StoreID)
	}
	if filter.ProductID != 0 {
		w.add("product_id = ?", filter.ProductID)
	}
	if filter.Type != "" {
		w.add("movement_type = ?", string(filter.Type))
	}
	if !filter.From.IsZero() {
		w.add("movement_date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("movement_date <= ?", filter.To)
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	args := append(w.args, perPage, (page-1)*perPage)
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements`+w.sql()+
		fmt.Sprintf(` ORDER BY movement_date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	movements, err := collectMovements(rows)
	return movements, total, err
}

// ListLedger returns every movement of a key in insertion order.
func (r *Repository) ListLedger(ctx context.Context, storeID, productID int64) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE store_id=$1 AND product_id=$2 ORDER BY id ASC`, storeID, productID)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

// ListRecordKeys lists record keys, optionally for one store.
func (r *Repository) ListRecordKeys(ctx context.Context, storeID int64) ([]RecordKey, error) {
	rows, err := r.pool.Query(ctx, `SELECT store_id, product_id FROM inventory_records
WHERE ($1::bigint = 0 OR store_id = $1) ORDER BY store_id, product_id`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []RecordKey
	for rows.Next() {
		var k RecordKey
		if err := rows.Scan(&k.StoreID, &k.ProductID); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListStores returns active stores.
func (r *Repository) ListStores(ctx context.Context) ([]Store, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, active FROM stores WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stores []Store
	for rows.Next() {
		var s Store
		if err := rows.Scan(&s.ID, &s.Name, &s.Active); err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

func (r *txRepository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.tx.QueryRow(ctx, `SELECT id, sku, COALESCE(barcode, ''), name, category, purchase_price, selling_price, minimum_stock, active
FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SKU, &p.Barcode, &p.Name, &p.Category, &p.PurchasePrice, &p.SellingPrice, &p.MinimumStock, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

func (r *txRepository) GetStore(ctx context.Context, id int64) (Store, error) {
	var s Store
	err := r.tx.QueryRow(ctx, `SELECT id, name, active FROM stores WHERE id=$1`, id).Scan(&s.ID, &s.Name, &s.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Store{}, ErrStoreNotFound
	}
	return s, err
}

func (r *txRepository) LockRecord(ctx context.Context, storeID, productID int64) (Record, error) {
	var rec Record
	err := r.tx.QueryRow(ctx, `SELECT store_id, product_id, quantity, minimum_stock, maximum_stock, average_cost, last_cost,
location, last_restock_date, updated_at
FROM inventory_records WHERE store_id=$1 AND product_id=$2 FOR UPDATE`, storeID, productID).
		Scan(&rec.StoreID, &rec.ProductID, &rec.Quantity, &rec.MinimumStock, &rec.MaximumStock, &rec.AverageCost, &rec.LastCost,
			&rec.Location, &rec.LastRestockDate, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

func (r *txRepository) InsertRecord(ctx context.Context, rec Record) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_records (store_id, product_id, quantity, minimum_stock, maximum_stock,
average_cost, last_cost, location, last_restock_date, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, rec.StoreID, rec.ProductID, rec.Quantity, rec.MinimumStock, rec.MaximumStock,
		rec.AverageCost, rec.LastCost, rec.Location, rec.LastRestockDate, rec.UpdatedAt)
	return err
}

func (r *txRepository) UpdateRecord(ctx context.Context, rec Record) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_records SET quantity=$3, minimum_stock=$4, maximum_stock=$5, average_cost=$6,
last_cost=$7, location=$8, last_restock_date=$9, updated_at=$10
WHERE store_id=$1 AND product_id=$2`, rec.StoreID, rec.ProductID, rec.Quantity, rec.MinimumStock, rec.MaximumStock,
		rec.AverageCost, rec.LastCost, rec.Location, rec.LastRestockDate, rec.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *txRepository) LatestMovement(ctx context.Context, storeID, productID int64) (Movement, bool, error) {
	m, err := scanMovement(r.tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE store_id=$1 AND product_id=$2 ORDER BY id DESC LIMIT 1`, storeID, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, false, nil
	}
	if err != nil {
		return Movement{}, false, err
	}
	return m, true, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (store_id, product_id, actor_id, movement_type, quantity_before,
quantity_change, quantity_after, unit_cost, origin_kind, origin_id, movement_date, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW()) RETURNING id, created_at`,
		m.StoreID, m.ProductID, m.ActorID, string(m.Type), m.QuantityBefore, m.QuantityChange, m.QuantityAfter,
		m.UnitCost, string(m.Origin.Kind), m.Origin.ID, m.MovementDate, m.Notes).Scan(&m.ID, &m.CreatedAt)
	return m, err
}

func (r *txRepository) ListPurchaseMovements(ctx context.Context, storeID, productID int64) ([]Movement, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE store_id=$1 AND product_id=$2 AND movement_type=$3 AND quantity_change > 0
ORDER BY movement_date ASC, id ASC`, storeID, productID, string(MovementPurchase))
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

func (r *txRepository) NextSequence(ctx context.Context, docType, day string) (int64, error) {
	return db.NextSequence(ctx, r.tx, docType, day)
}
