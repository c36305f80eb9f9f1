package adjustment

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

// TxRepository exposes transactional adjustment operations on top of the ledger repository.
type TxRepository interface {
	inventory.TxRepository
	InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error)
	LockAdjustment(ctx context.Context, id int64) (Adjustment, error)
	UpdateAdjustment(ctx context.Context, adj Adjustment) error
	ReplaceItems(ctx context.Context, adjustmentID int64, items []Item) error
	DeleteAdjustment(ctx context.Context, id int64) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAdjustment(ctx context.Context, id int64) (Adjustment, error)
	ListAdjustments(ctx context.Context, filter ListFilter) ([]Adjustment, int, error)
}

// Repository persists adjustments in PostgreSQL.
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
		return errors.New("adjustment repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: inventory.NewTxRepository(tx), tx: tx})
	})
}

const adjustmentColumns = `id, number, store_id, adjustment_type, reason, status, notes, total_value_impact, created_by,
approved_by, approved_at, created_at, updated_at`

func scanAdjustment(row pgx.Row) (Adjustment, error) {
	var a Adjustment
	var typ, reason, status string
	err := row.Scan(&a.ID, &a.Number, &a.StoreID, &typ, &reason, &status, &a.Notes, &a.TotalValueImpact, &a.CreatedBy,
		&a.ApprovedBy, &a.ApprovedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Adjustment{}, ErrAdjustmentNotFound
	}
	a.Type, a.Reason, a.Status = Type(typ), Reason(reason), Status(status)
	return a, err
}

func loadItems(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, adjustmentID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, adjustment_id, product_id, current_quantity, adjusted_quantity, new_quantity, unit_cost,
total_value_impact, notes FROM stock_adjustment_items WHERE adjustment_id=$1 ORDER BY id`, adjustmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.AdjustmentID, &it.ProductID, &it.CurrentQuantity, &it.AdjustedQuantity, &it.NewQuantity,
			&it.UnitCost, &it.TotalValueImpact, &it.Notes); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetAdjustment loads an adjustment with its items.
func (r *Repository) GetAdjustment(ctx context.Context, id int64) (Adjustment, error) {
	a, err := scanAdjustment(r.pool.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments WHERE id=$1`, id))
	if err != nil {
		return Adjustment{}, err
	}
	a.Items, err = loadItems(ctx, r.pool, id)
	return a, err
}

// ListAdjustments lists adjustments newest first without items.
func (r *Repository) ListAdjustments(ctx context.Context, filter ListFilter) ([]Adjustment, int, error) {
	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.StoreID != 0 {
		add("store_id = $%d", filter.StoreID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Type != "" {
		add("adjustment_type = $%d", string(filter.Type))
	}
	if filter.Reason != "" {
		add("reason = $%d", string(filter.Reason))
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_adjustments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.pool.Query(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments`+where+
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Adjustment
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *txRepository) InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_adjustments (number, store_id, adjustment_type, reason, status, notes,
total_value_impact, created_by, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9) RETURNING id`,
		adj.Number, adj.StoreID, string(adj.Type), string(adj.Reason), string(adj.Status), adj.Notes, adj.TotalValueImpact,
		adj.CreatedBy, adj.CreatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, r.ReplaceItems(ctx, id, adj.Items)
}

func (r *txRepository) LockAdjustment(ctx context.Context, id int64) (Adjustment, error) {
	a, err := scanAdjustment(r.tx.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Adjustment{}, err
	}
	a.Items, err = loadItems(ctx, r.tx, id)
	return a, err
}

func (r *txRepository) UpdateAdjustment(ctx context.Context, adj Adjustment) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_adjustments SET adjustment_type=$2, reason=$3, status=$4, notes=$5,
total_value_impact=$6, approved_by=$7, approved_at=$8, updated_at=$9 WHERE id=$1`,
		adj.ID, string(adj.Type), string(adj.Reason), string(adj.Status), adj.Notes, adj.TotalValueImpact, adj.ApprovedBy,
		adj.ApprovedAt, adj.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAdjustmentNotFound
	}
	return nil
}

func (r *txRepository) ReplaceItems(ctx context.Context, adjustmentID int64, items []Item) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM stock_adjustment_items WHERE adjustment_id=$1`, adjustmentID); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO stock_adjustment_items (adjustment_id, product_id, current_quantity, adjusted_quantity,
new_quantity, unit_cost, total_value_impact, notes) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			adjustmentID, it.ProductID, it.CurrentQuantity, it.AdjustedQuantity, it.NewQuantity, it.UnitCost, it.TotalValueImpact, it.Notes)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) DeleteAdjustment(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM stock_adjustments WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAdjustmentNotFound
	}
	return nil
}
