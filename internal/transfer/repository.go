package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/retailstock/internal/inventory"
	"github.com/odyssey-erp/retailstock/internal/platform/db"
	"github.com/odyssey-erp/retailstock/internal/shared"
)

// TxRepository exposes transactional transfer operations on top of the ledger repository.
type TxRepository interface {
	inventory.TxRepository
	InsertTransfer(ctx context.Context, t Transfer) (int64, error)
	LockTransfer(ctx context.Context, id int64) (Transfer, error)
	UpdateTransfer(ctx context.Context, t Transfer) error
	UpdateItemQuantities(ctx context.Context, item Item) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTransfer(ctx context.Context, id int64) (Transfer, error)
	ListTransfers(ctx context.Context, filter ListFilter) ([]Transfer, int, error)
}

// Repository persists transfers in PostgreSQL.
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
		return errors.New("transfer repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: inventory.NewTxRepository(tx), tx: tx})
	})
}

const transferColumns = `id, number, from_store_id, to_store_id, status, transfer_date, total_value, notes, created_by,
approved_by, approved_at, shipped_by, shipped_at, received_by, received_at, created_at, updated_at`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var t Transfer
	var status string
	err := row.Scan(&t.ID, &t.Number, &t.FromStoreID, &t.ToStoreID, &status, &t.TransferDate, &t.TotalValue, &t.Notes,
		&t.CreatedBy, &t.ApprovedBy, &t.ApprovedAt, &t.ShippedBy, &t.ShippedAt, &t.ReceivedBy, &t.ReceivedAt,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, ErrTransferNotFound
	}
	t.Status = Status(status)
	return t, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, transferID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, transfer_id, product_id, quantity_requested, quantity_shipped, quantity_received,
unit_cost, total_cost FROM stock_transfer_items WHERE transfer_id=$1 ORDER BY id`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.TransferID, &it.ProductID, &it.QuantityRequested, &it.QuantityShipped,
			&it.QuantityReceived, &it.UnitCost, &it.TotalCost); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetTransfer loads a transfer with its items.
func (r *Repository) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	t, err := scanTransfer(r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM stock_transfers WHERE id=$1`, id))
	if err != nil {
		return Transfer{}, err
	}
	t.Items, err = loadItems(ctx, r.pool, id)
	return t, err
}

// ListTransfers lists transfers newest first without items.
func (r *Repository) ListTransfers(ctx context.Context, filter ListFilter) ([]Transfer, int, error) {
	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(args))))
	}
	if filter.StoreID != 0 {
		add("(from_store_id = ? OR to_store_id = ?)", filter.StoreID)
	}
	if filter.FromStoreID != 0 {
		add("from_store_id = ?", filter.FromStoreID)
	}
	if filter.ToStoreID != 0 {
		add("to_store_id = ?", filter.ToStoreID)
	}
	if filter.Status != "" {
		add("status = ?", string(filter.Status))
	}
	if !filter.From.IsZero() {
		add("transfer_date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		add("transfer_date <= ?", filter.To)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_transfers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.pool.Query(ctx, `SELECT `+transferColumns+` FROM stock_transfers`+where+
		fmt.Sprintf(` ORDER BY transfer_date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (r *txRepository) InsertTransfer(ctx context.Context, t Transfer) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_transfers (number, from_store_id, to_store_id, status, transfer_date,
total_value, notes, created_by, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9) RETURNING id`,
		t.Number, t.FromStoreID, t.ToStoreID, string(t.Status), t.TransferDate, t.TotalValue, t.Notes, t.CreatedBy,
		t.CreatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	batch := &pgx.Batch{}
	for _, it := range t.Items {
		batch.Queue(`INSERT INTO stock_transfer_items (transfer_id, product_id, quantity_requested, unit_cost, total_cost)
VALUES ($1,$2,$3,$4,$5)`, id, it.ProductID, it.QuantityRequested, it.UnitCost, it.TotalCost)
	}
	return id, r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) LockTransfer(ctx context.Context, id int64) (Transfer, error) {
	t, err := scanTransfer(r.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM stock_transfers WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Transfer{}, err
	}
	t.Items, err = loadItems(ctx, r.tx, id)
	return t, err
}

func (r *txRepository) UpdateTransfer(ctx context.Context, t Transfer) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_transfers SET status=$2, notes=$3, approved_by=$4, approved_at=$5, shipped_by=$6,
shipped_at=$7, received_by=$8, received_at=$9, updated_at=$10 WHERE id=$1`,
		t.ID, string(t.Status), t.Notes, t.ApprovedBy, t.ApprovedAt, t.ShippedBy, t.ShippedAt, t.ReceivedBy, t.ReceivedAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

func (r *txRepository) UpdateItemQuantities(ctx context.Context, item Item) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_transfer_items SET quantity_shipped=$2, quantity_received=$3 WHERE id=$1`,
		item.ID, item.QuantityShipped, item.QuantityReceived)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}
