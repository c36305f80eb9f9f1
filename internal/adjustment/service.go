package adjustment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retailstock/internal/inventory"
	"github.com/odyssey-erp/retailstock/internal/shared"
)

const (
	approvalModule = "stock_adjustment"
	lockKind       = "stock_adjustment"
)

// LedgerPort is the part of the stock ledger used on approval.
type LedgerPort interface {
	AppendTx(ctx context.Context, tx inventory.TxRepository, in inventory.AppendInput) (inventory.Movement, error)
	Now() time.Time
}

// Options carries the optional collaborators of Service.
type Options struct {
	CostFallback inventory.CostFallback
	Approvals    shared.Approvals
	Audit        shared.AuditRecorder
	Locker       shared.Locker
	Logger       *slog.Logger
}

// Service orchestrates stock adjustments.
type Service struct {
	repo      RepositoryPort
	ledger    LedgerPort
	policy    inventory.CostFallback
	approvals shared.Approvals
	audit     shared.AuditRecorder
	locker    shared.Locker
	logger    *slog.Logger
}

// NewService constructs adjustment service. An unset cost fallback keeps the
// selling price behaviour.
func NewService(repo RepositoryPort, ledger LedgerPort, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	policy := opts.CostFallback
	if !policy.Valid() {
		policy = inventory.CostFallbackSellingPrice
	}
	return &Service{
		repo:      repo,
		ledger:    ledger,
		policy:    policy,
		approvals: opts.Approvals,
		audit:     opts.Audit,
		locker:    opts.Locker,
		logger:    logger,
	}
}

// snapshot reads the locked record of every line and derives the signed
// delta, the resulting quantity and the valued impact.
func (s *Service) snapshot(ctx context.Context, tx TxRepository, storeID int64, typ Type, inputs []ItemInput) ([]Item, decimal.Decimal, error) {
	items := make([]Item, 0, len(inputs))
	total := decimal.Zero
	for _, in := range inputs {
		product, err := tx.GetProduct(ctx, in.ProductID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		var rec *inventory.Record
		locked, err := tx.LockRecord(ctx, storeID, in.ProductID)
		switch {
		case err == nil:
			rec = &locked
		case !shared.IsNotFound(err):
			return nil, decimal.Zero, err
		}
		var current int64
		if rec != nil {
			current = rec.Quantity
		}
		delta := SignedQuantity(typ, in.Quantity)
		newQuantity := current + delta
		if newQuantity < 0 {
			return nil, decimal.Zero, &shared.StockError{
				Kind:      shared.ErrNegativeStock,
				StoreID:   storeID,
				ProductID: in.ProductID,
				Product:   product.Name,
				Available: current,
				Requested: -delta,
			}
		}
		cost := inventory.DefaultUnitCost(rec, product, s.policy)
		if in.UnitCost.Valid {
			cost = in.UnitCost.Decimal
		}
		cost = cost.Round(inventory.CostPrecision)
		impact := cost.Mul(decimal.NewFromInt(delta))
		items = append(items, Item{
			ProductID:        in.ProductID,
			CurrentQuantity:  current,
			AdjustedQuantity: delta,
			NewQuantity:      newQuantity,
			UnitCost:         cost,
			TotalValueImpact: impact,
			Notes:            in.Notes,
		})
		total = total.Add(impact)
	}
	return items, total, nil
}

// Create stores a draft adjustment with quantities snapshotted from the current records.
func (s *Service) Create(ctx context.Context, in CreateInput) (Adjustment, error) {
	if in.StoreID <= 0 {
		return Adjustment{}, shared.Invalid("store_id", "store required")
	}
	if err := validateHeader(in.Type, in.Reason); err != nil {
		return Adjustment{}, err
	}
	if err := validateItems(in.Items); err != nil {
		return Adjustment{}, err
	}
	now := s.ledger.Now()
	adj := Adjustment{
		StoreID:   in.StoreID,
		Type:      in.Type,
		Reason:    in.Reason,
		Status:    StatusDraft,
		Notes:     in.Notes,
		CreatedBy: in.ActorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetStore(ctx, in.StoreID); err != nil {
			return err
		}
		var err error
		adj.Items, adj.TotalValueImpact, err = s.snapshot(ctx, tx, in.StoreID, in.Type, in.Items)
		if err != nil {
			return err
		}
		seq, err := tx.NextSequence(ctx, shared.PrefixAdjustment, shared.SequenceDay(now))
		if err != nil {
			return err
		}
		adj.Number = shared.FormatDocumentNumber(shared.PrefixAdjustment, now, seq)
		adj.ID, err = tx.InsertAdjustment(ctx, adj)
		return err
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.recordAudit(ctx, in.ActorID, "adjustment:create", adj.ID, map[string]any{
		"number": adj.Number, "type": string(adj.Type), "impact": adj.TotalValueImpact.String(),
	})
	return s.repo.GetAdjustment(ctx, adj.ID)
}

// Update rewrites a draft adjustment and takes a fresh snapshot of every line.
func (s *Service) Update(ctx context.Context, in UpdateInput) (Adjustment, error) {
	if err := validateHeader(in.Type, in.Reason); err != nil {
		return Adjustment{}, err
	}
	if err := validateItems(in.Items); err != nil {
		return Adjustment{}, err
	}
	err := s.mutate(ctx, in.ID, "update", func(ctx context.Context, tx TxRepository, adj *Adjustment) error {
		items, total, err := s.snapshot(ctx, tx, adj.StoreID, in.Type, in.Items)
		if err != nil {
			return err
		}
		adj.Type, adj.Reason, adj.Notes = in.Type, in.Reason, in.Notes
		adj.Items, adj.TotalValueImpact = items, total
		return tx.ReplaceItems(ctx, adj.ID, items)
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.recordAudit(ctx, in.ActorID, "adjustment:update", in.ID, nil)
	return s.repo.GetAdjustment(ctx, in.ID)
}

// Approve posts every line to the ledger. A record that moved since its
// snapshot fails the approval with a concurrent modification error.
func (s *Service) Approve(ctx context.Context, id, actorID int64) (Adjustment, error) {
	err := s.mutate(ctx, id, "approve", func(ctx context.Context, tx TxRepository, adj *Adjustment) error {
		if len(adj.Items) == 0 {
			return shared.Invalid("items", "adjustment has no items")
		}
		items := append([]Item(nil), adj.Items...)
		sort.Slice(items, func(a, b int) bool { return items[a].ProductID < items[b].ProductID })
		for _, it := range items {
			var fresh int64
			rec, err := tx.LockRecord(ctx, adj.StoreID, it.ProductID)
			switch {
			case err == nil:
				fresh = rec.Quantity
			case !shared.IsNotFound(err):
				return err
			}
			if fresh != it.CurrentQuantity {
				return fmt.Errorf("%w: product %d in store %d changed from %d to %d since the adjustment was written",
					shared.ErrConcurrentModification, it.ProductID, adj.StoreID, it.CurrentQuantity, fresh)
			}
			if it.AdjustedQuantity == 0 {
				continue
			}
			notes := fmt.Sprintf("%s (%s)", adj.Number, adj.Reason)
			if it.Notes != "" {
				notes += ": " + it.Notes
			}
			if _, err := s.ledger.AppendTx(ctx, tx, inventory.AppendInput{
				StoreID:        adj.StoreID,
				ProductID:      it.ProductID,
				ActorID:        actorID,
				Type:           inventory.MovementAdjustment,
				QuantityChange: it.AdjustedQuantity,
				UnitCost:       decimal.NewNullDecimal(it.UnitCost),
				Origin:         inventory.AdjustmentOrigin(adj.ID),
				Notes:          notes,
			}); err != nil {
				return err
			}
		}
		now := s.ledger.Now()
		adj.Status = StatusApproved
		adj.ApprovedBy = &actorID
		adj.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.recordApproval(ctx, id, actorID, shared.ApprovalApprove, "")
	s.recordAudit(ctx, actorID, "adjustment:approve", id, nil)
	return s.repo.GetAdjustment(ctx, id)
}

// Reject closes a draft adjustment without touching stock.
func (s *Service) Reject(ctx context.Context, id, actorID int64, reason string) (Adjustment, error) {
	err := s.mutate(ctx, id, "reject", func(_ context.Context, _ TxRepository, adj *Adjustment) error {
		adj.Status = StatusRejected
		if reason != "" {
			if adj.Notes != "" {
				adj.Notes += "\n"
			}
			adj.Notes += "Rejected: " + reason
		}
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.recordApproval(ctx, id, actorID, shared.ApprovalReject, reason)
	s.recordAudit(ctx, actorID, "adjustment:reject", id, nil)
	return s.repo.GetAdjustment(ctx, id)
}

// Delete removes a draft adjustment.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	err := shared.WithLock(ctx, s.locker, shared.DocumentLockKey(lockKind, id), func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			adj, err := tx.LockAdjustment(ctx, id)
			if err != nil {
				return err
			}
			if adj.Status != StatusDraft {
				return &shared.TransitionError{Document: "stock adjustment", Action: "delete", Status: string(adj.Status)}
			}
			return tx.DeleteAdjustment(ctx, id)
		})
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "adjustment:delete", id, nil)
	return nil
}

// Get loads an adjustment with its items.
func (s *Service) Get(ctx context.Context, id int64) (Adjustment, error) {
	return s.repo.GetAdjustment(ctx, id)
}

// List returns adjustments matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Adjustment, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, shared.Invalid("status", "unknown status")
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, shared.Pagination{}, shared.Invalid("type", "unknown type")
	}
	if filter.Reason != "" && !filter.Reason.Valid() {
		return nil, shared.Pagination{}, shared.Invalid("reason", "unknown reason")
	}
	adjustments, total, err := s.repo.ListAdjustments(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if adjustments == nil {
		adjustments = []Adjustment{}
	}
	return adjustments, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// mutate locks a draft adjustment, applies fn and persists the header.
func (s *Service) mutate(ctx context.Context, id int64, action string, fn func(context.Context, TxRepository, *Adjustment) error) error {
	return shared.WithLock(ctx, s.locker, shared.DocumentLockKey(lockKind, id), func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			adj, err := tx.LockAdjustment(ctx, id)
			if err != nil {
				return err
			}
			if adj.Status != StatusDraft {
				return &shared.TransitionError{Document: "stock adjustment", Action: action, Status: string(adj.Status)}
			}
			if err := fn(ctx, tx, &adj); err != nil {
				return err
			}
			adj.UpdatedAt = s.ledger.Now()
			return tx.UpdateAdjustment(ctx, adj)
		})
	})
}

func (s *Service) recordApproval(ctx context.Context, id, actorID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil || actorID == 0 {
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   shared.ApprovalRef(approvalModule, id),
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
	if err != nil {
		s.logger.Warn("record approval failed", slog.Int64("adjustment_id", id), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.NewAuditLog(actorID, action, "stock_adjustment", id, meta)); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
