package procurement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/retailstock/internal/inventory"
	"github.com/odyssey-erp/retailstock/internal/platform/db"
	"github.com/odyssey-erp/retailstock/internal/shared"
)

// TxRepository exposes transactional purchase order operations. It embeds the
// ledger repository so receiving posts stock in the same transaction.
type TxRepository interface {
	inventory.TxRepository
	SupplierActive(ctx context.Context, id int64) (bool, error)
	InsertPO(ctx context.Context, po PurchaseOrder) (int64, error)
	// LockPO loads the order with its items and holds the row lock.
	LockPO(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdatePO(ctx context.Context, po PurchaseOrder) error
	ReplaceItems(ctx context.Context, poID int64, items []POItem) error
	UpdateItemReceived(ctx context.Context, itemID, quantityReceived int64) error
	InsertReceipt(ctx context.Context, receipt Receipt) (int64, error)
	DeletePO(ctx context.Context, id int64) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error)
	ListReceipts(ctx context.Context, poID int64) ([]Receipt, error)
}

// Repository persists purchase orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	inventory.TxRepository
	tx pgx.Tx
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("procurement repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: inventory.NewTxRepository(tx), tx: tx})
	})
}

const poColumns = `id, number, store_id, supplier_id, status, order_date, expected_date, received_date, subtotal, tax_amount,
shipping_cost, discount_amount, total, notes, created_by, approved_by, approved_at, created_at, updated_at`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := row.Scan(&po.ID, &po.Number, &po.StoreID, &po.SupplierID, &status, &po.OrderDate, &po.ExpectedDate, &po.ReceivedDate,
		&po.Subtotal, &po.TaxAmount, &po.ShippingCost, &po.DiscountAmount, &po.Total, &po.Notes, &po.CreatedBy,
		&po.ApprovedBy, &po.ApprovedAt, &po.CreatedAt, &po.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrPONotFound
	}
	po.Status = POStatus(status)
	return po, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, poID int64) ([]POItem, error) {
	rows, err := q.Query(ctx, `SELECT id, po_id, product_id, quantity_ordered, quantity_received, unit_cost, total_cost
FROM purchase_order_items WHERE po_id=$1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []POItem
	for rows.Next() {
		var it POItem
		if err := rows.Scan(&it.ID, &it.POID, &it.ProductID, &it.QuantityOrdered, &it.QuantityReceived, &it.UnitCost, &it.TotalCost); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetPO loads an order with its items.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanPO(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, id))
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items, err = loadItems(ctx, r.pool, id)
	return po, err
}

// ListPOs lists orders newest first without items.
func (r *Repository) ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.StoreID != 0 {
		add("store_id = $%d", filter.StoreID)
	}
	if filter.SupplierID != 0 {
		add("supplier_id = $%d", filter.SupplierID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if !filter.From.IsZero() {
		add("order_date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("order_date <= $%d", filter.To)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.pool.Query(ctx, `SELECT `+poColumns+` FROM purchase_orders`+where+
		fmt.Sprintf(` ORDER BY order_date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, po)
	}
	return out, total, rows.Err()
}

// ListReceipts returns the receiving history of an order, oldest first.
func (r *Repository) ListReceipts(ctx context.Context, poID int64) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, po_id, received_by, received_at, notes, items
FROM purchase_order_receipts WHERE po_id=$1 ORDER BY received_at, id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		var rc Receipt
		var raw []byte
		if err := rows.Scan(&rc.ID, &rc.POID, &rc.ReceivedBy, &rc.ReceivedAt, &rc.Notes, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &rc.Items); err != nil {
			return nil, fmt.Errorf("decode receipt %d: %w", rc.ID, err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (r *txRepository) SupplierActive(ctx context.Context, id int64) (bool, error) {
	var active bool
	err := r.tx.QueryRow(ctx, `SELECT active FROM suppliers WHERE id=$1`, id).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrSupplierNotFound
	}
	return active, err
}

func (r *txRepository) InsertPO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, store_id, supplier_id, status, order_date, expected_date,
subtotal, tax_amount, shipping_cost, discount_amount, total, notes, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14) RETURNING id`,
		po.Number, po.StoreID, po.SupplierID, string(po.Status), po.OrderDate, po.ExpectedDate, po.Subtotal, po.TaxAmount,
		po.ShippingCost, po.DiscountAmount, po.Total, po.Notes, po.CreatedBy, po.CreatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, r.ReplaceItems(ctx, id, po.Items)
}

func (r *txRepository) LockPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanPO(r.tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items, err = loadItems(ctx, r.tx, id)
	return po, err
}

func (r *txRepository) UpdatePO(ctx context.Context, po PurchaseOrder) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET supplier_id=$2, status=$3, expected_date=$4, received_date=$5,
subtotal=$6, tax_amount=$7, shipping_cost=$8, discount_amount=$9, total=$10, notes=$11, approved_by=$12, approved_at=$13,
updated_at=$14 WHERE id=$1`,
		po.ID, po.SupplierID, string(po.Status), po.ExpectedDate, po.ReceivedDate, po.Subtotal, po.TaxAmount, po.ShippingCost,
		po.DiscountAmount, po.Total, po.Notes, po.ApprovedBy, po.ApprovedAt, po.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPONotFound
	}
	return nil
}

func (r *txRepository) ReplaceItems(ctx context.Context, poID int64, items []POItem) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE po_id=$1`, poID); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO purchase_order_items (po_id, product_id, quantity_ordered, quantity_received, unit_cost, total_cost)
VALUES ($1,$2,$3,$4,$5,$6)`, poID, it.ProductID, it.QuantityOrdered, it.QuantityReceived, it.UnitCost, it.TotalCost)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) UpdateItemReceived(ctx context.Context, itemID, quantityReceived int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_order_items SET quantity_received=$2 WHERE id=$1`, itemID, quantityReceived)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPONotFound
	}
	return nil
}

func (r *txRepository) InsertReceipt(ctx context.Context, receipt Receipt) (int64, error) {
	items, err := json.Marshal(receipt.Items)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.tx.QueryRow(ctx, `INSERT INTO purchase_order_receipts (po_id, received_by, received_at, notes, items)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, receipt.POID, receipt.ReceivedBy, receipt.ReceivedAt, receipt.Notes, items).Scan(&id)
	return id, err
}

func (r *txRepository) DeletePO(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM purchase_orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPONotFound
	}
	return nil
}
