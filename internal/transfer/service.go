package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retailstock/internal/inventory"
	"github.com/odyssey-erp/retailstock/internal/shared"
)

const (
	approvalModule = "stock_transfer"
	lockKind       = "stock_transfer"
	shipModule     = "transfer.ship"
	receiveModule  = "transfer.receive"
)

// LedgerPort is the part of the stock ledger used by transfers.
type LedgerPort interface {
	AppendTx(ctx context.Context, tx inventory.TxRepository, in inventory.AppendInput) (inventory.Movement, error)
	EnsureAvailableTx(ctx context.Context, tx inventory.TxRepository, storeID, productID, quantity int64) error
	Now() time.Time
}

// Options carries the optional collaborators of Service.
type Options struct {
	Approvals   shared.Approvals
	Audit       shared.AuditRecorder
	Idempotency shared.Idempotency
	Locker      shared.Locker
	Logger      *slog.Logger
}

// Service orchestrates stock transfers.
type Service struct {
	repo      RepositoryPort
	ledger    LedgerPort
	approvals shared.Approvals
	audit     shared.AuditRecorder
	idem      shared.Idempotency
	locker    shared.Locker
	logger    *slog.Logger
}

// NewService constructs transfer service.
func NewService(repo RepositoryPort, ledger LedgerPort, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		repo:      repo,
		ledger:    ledger,
		approvals: opts.Approvals,
		audit:     opts.Audit,
		idem:      opts.Idempotency,
		locker:    opts.Locker,
		logger:    logger,
	}
}

func checkStore(ctx context.Context, tx TxRepository, field string, id int64) error {
	store, err := tx.GetStore(ctx, id)
	if err != nil {
		return err
	}
	if !store.Active {
		return shared.Invalid(field, "store is inactive")
	}
	return nil
}

// Create records a transfer after an advisory availability check at the source.
func (s *Service) Create(ctx context.Context, in CreateInput) (Transfer, error) {
	if in.FromStoreID <= 0 || in.ToStoreID <= 0 {
		return Transfer{}, shared.Invalid("from_store_id", "source and destination stores required")
	}
	if in.FromStoreID == in.ToStoreID {
		return Transfer{}, shared.Invalid("to_store_id", "must differ from the source store")
	}
	if err := validateItems(in.Items); err != nil {
		return Transfer{}, err
	}
	now := s.ledger.Now()
	t := Transfer{
		FromStoreID:  in.FromStoreID,
		ToStoreID:    in.ToStoreID,
		Status:       StatusPending,
		TransferDate: in.TransferDate,
		Notes:        in.Notes,
		CreatedBy:    in.ActorID,
		CreatedAt:    now,
		UpdatedAt:    now,
		TotalValue:   decimal.Zero,
	}
	if in.SaveAsDraft {
		t.Status = StatusDraft
	}
	if t.TransferDate.IsZero() {
		t.TransferDate = now
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := checkStore(ctx, tx, "from_store_id", in.FromStoreID); err != nil {
			return err
		}
		if err := checkStore(ctx, tx, "to_store_id", in.ToStoreID); err != nil {
			return err
		}
		for _, line := range in.Items {
			product, err := tx.GetProduct(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if err := s.ledger.EnsureAvailableTx(ctx, tx, in.FromStoreID, line.ProductID, line.Quantity); err != nil {
				return err
			}
			var rec *inventory.Record
			if locked, err := tx.LockRecord(ctx, in.FromStoreID, line.ProductID); err == nil {
				rec = &locked
			}
			cost := inventory.DefaultUnitCost(rec, product, inventory.CostFallbackPurchasePrice).Round(inventory.CostPrecision)
			item := Item{
				ProductID:         line.ProductID,
				QuantityRequested: line.Quantity,
				UnitCost:          cost,
				TotalCost:         cost.Mul(decimal.NewFromInt(line.Quantity)),
			}
			t.TotalValue = t.TotalValue.Add(item.TotalCost)
			t.Items = append(t.Items, item)
		}
		seq, err := tx.NextSequence(ctx, shared.PrefixTransfer, shared.SequenceDay(now))
		if err != nil {
			return err
		}
		t.Number = shared.FormatDocumentNumber(shared.PrefixTransfer, now, seq)
		t.ID, err = tx.InsertTransfer(ctx, t)
		return err
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, in.ActorID, "transfer:create", t.ID, map[string]any{
		"number": t.Number, "from": t.FromStoreID, "to": t.ToStoreID, "status": string(t.Status),
	})
	return s.repo.GetTransfer(ctx, t.ID)
}

// Submit moves a draft to pending after re-checking availability.
func (s *Service) Submit(ctx context.Context, id, actorID int64) (Transfer, error) {
	err := s.mutate(ctx, id, "submit", func(ctx context.Context, tx TxRepository, t *Transfer) error {
		for _, it := range t.Items {
			if err := s.ledger.EnsureAvailableTx(ctx, tx, t.FromStoreID, it.ProductID, it.QuantityRequested); err != nil {
				return err
			}
		}
		t.Status = StatusPending
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordApproval(ctx, id, actorID, shared.ApprovalSubmit, "")
	s.recordAudit(ctx, actorID, "transfer:submit", id, nil)
	return s.repo.GetTransfer(ctx, id)
}

// Approve signs off a pending transfer. The status stays pending.
func (s *Service) Approve(ctx context.Context, id, actorID int64) (Transfer, error) {
	err := s.mutate(ctx, id, "approve", func(_ context.Context, _ TxRepository, t *Transfer) error {
		if t.ApprovedBy != nil {
			return &shared.TransitionError{Document: "stock transfer", Action: "approve", Status: "approved"}
		}
		now := s.ledger.Now()
		t.ApprovedBy = &actorID
		t.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordApproval(ctx, id, actorID, shared.ApprovalApprove, "")
	s.recordAudit(ctx, actorID, "transfer:approve", id, nil)
	return s.repo.GetTransfer(ctx, id)
}

// Ship deducts the shipped quantities at the source store. Any line that
// cannot be deducted aborts the whole shipment.
func (s *Service) Ship(ctx context.Context, in ShipInput) (Transfer, error) {
	key := ""
	if in.IdempotencyKey != "" {
		key = fmt.Sprintf("transfer:%d:ship:%s", in.ID, in.IdempotencyKey)
	}
	var shipped int64
	err := shared.Guard(ctx, s.idem, key, shipModule, func() error {
		return s.mutate(ctx, in.ID, "ship", func(ctx context.Context, tx TxRepository, t *Transfer) error {
			submitted, err := quantities(t.Items, in.Items)
			if err != nil {
				return err
			}
			now := s.ledger.Now()
			for _, idx := range byProduct(t.Items) {
				item := &t.Items[idx]
				qty := item.QuantityRequested
				if q, ok := submitted[item.ID]; ok && q != nil {
					qty = *q
				}
				if qty > item.QuantityRequested {
					return shared.Invalid("items", fmt.Sprintf("item %d ships %d but only %d were requested", item.ID, qty, item.QuantityRequested))
				}
				item.QuantityShipped = qty
				if err := tx.UpdateItemQuantities(ctx, *item); err != nil {
					return err
				}
				if qty == 0 {
					continue
				}
				if _, err := s.ledger.AppendTx(ctx, tx, inventory.AppendInput{
					StoreID:        t.FromStoreID,
					ProductID:      item.ProductID,
					ActorID:        in.ActorID,
					Type:           inventory.MovementTransferOut,
					QuantityChange: -qty,
					UnitCost:       decimal.NewNullDecimal(item.UnitCost),
					Origin:         inventory.TransferOrigin(t.ID),
					Notes:          "Shipped on " + t.Number,
					MovementDate:   now,
				}); err != nil {
					return err
				}
				shipped += qty
			}
			if shipped == 0 {
				return shared.Invalid("items", "nothing to ship")
			}
			t.Status = StatusInTransit
			t.ShippedBy = &in.ActorID
			t.ShippedAt = &now
			return nil
		})
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, in.ActorID, "transfer:ship", in.ID, map[string]any{"units": shipped})
	return s.repo.GetTransfer(ctx, in.ID)
}

// Receive credits the destination with what arrived and completes the transfer.
func (s *Service) Receive(ctx context.Context, in ReceiveInput) (Transfer, error) {
	if len(in.Items) == 0 {
		return Transfer{}, shared.Invalid("items", "at least one item required")
	}
	key := ""
	if in.IdempotencyKey != "" {
		key = fmt.Sprintf("transfer:%d:receive:%s", in.ID, in.IdempotencyKey)
	}
	var received, shipped int64
	err := shared.Guard(ctx, s.idem, key, receiveModule, func() error {
		return s.mutate(ctx, in.ID, "receive", func(ctx context.Context, tx TxRepository, t *Transfer) error {
			submitted, err := quantities(t.Items, in.Items)
			if err != nil {
				return err
			}
			now := s.ledger.Now()
			for _, idx := range byProduct(t.Items) {
				item := &t.Items[idx]
				var qty int64
				if q, ok := submitted[item.ID]; ok {
					qty = item.QuantityShipped
					if q != nil {
						qty = *q
					}
				}
				if qty > item.QuantityShipped {
					return shared.Invalid("items", fmt.Sprintf("item %d receives %d but only %d were shipped", item.ID, qty, item.QuantityShipped))
				}
				item.QuantityReceived = qty
				shipped += item.QuantityShipped
				if err := tx.UpdateItemQuantities(ctx, *item); err != nil {
					return err
				}
				if qty == 0 {
					continue
				}
				if _, err := s.ledger.AppendTx(ctx, tx, inventory.AppendInput{
					StoreID:        t.ToStoreID,
					ProductID:      item.ProductID,
					ActorID:        in.ActorID,
					Type:           inventory.MovementTransferIn,
					QuantityChange: qty,
					UnitCost:       decimal.NewNullDecimal(item.UnitCost),
					Origin:         inventory.TransferOrigin(t.ID),
					Notes:          "Received on " + t.Number,
					MovementDate:   now,
				}); err != nil {
					return err
				}
				if err := s.stampDestination(ctx, tx, t.ToStoreID, *item, now); err != nil {
					return err
				}
				received += qty
			}
			if in.Notes != "" {
				t.Notes = appendNote(t.Notes, "Received", in.Notes)
			}
			t.Status = StatusCompleted
			t.ReceivedBy = &in.ActorID
			t.ReceivedAt = &now
			return nil
		})
	})
	if err != nil {
		return Transfer{}, err
	}
	if received < shipped {
		s.logger.Info("transfer received short",
			slog.Int64("transfer_id", in.ID),
			slog.Int64("shipped", shipped),
			slog.Int64("received", received))
	}
	s.recordAudit(ctx, in.ActorID, "transfer:receive", in.ID, map[string]any{"units": received, "shipped": shipped})
	return s.repo.GetTransfer(ctx, in.ID)
}

// stampDestination seeds the cost of a destination record that has none yet
// and marks the restock date.
func (s *Service) stampDestination(ctx context.Context, tx TxRepository, storeID int64, item Item, at time.Time) error {
	rec, err := tx.LockRecord(ctx, storeID, item.ProductID)
	if err != nil {
		return err
	}
	if !rec.AverageCost.IsPositive() {
		rec.AverageCost = item.UnitCost
	}
	if !rec.LastCost.IsPositive() {
		rec.LastCost = item.UnitCost
	}
	rec.LastRestockDate = &at
	rec.UpdatedAt = at
	return tx.UpdateRecord(ctx, rec)
}

// Cancel cancels a transfer before it ships.
func (s *Service) Cancel(ctx context.Context, id, actorID int64, reason string) (Transfer, error) {
	err := s.mutate(ctx, id, "cancel", func(_ context.Context, _ TxRepository, t *Transfer) error {
		t.Status = StatusCancelled
		t.Notes = appendNote(t.Notes, "Cancelled", reason)
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, actorID, "transfer:cancel", id, map[string]any{"reason": reason})
	return s.repo.GetTransfer(ctx, id)
}

// Get loads a transfer with its items.
func (s *Service) Get(ctx context.Context, id int64) (Transfer, error) {
	return s.repo.GetTransfer(ctx, id)
}

// List returns transfers matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Transfer, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, shared.Invalid("status", "unknown status")
	}
	transfers, total, err := s.repo.ListTransfers(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if transfers == nil {
		transfers = []Transfer{}
	}
	return transfers, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) mutate(ctx context.Context, id int64, action string, fn func(context.Context, TxRepository, *Transfer) error) error {
	return shared.WithLock(ctx, s.locker, shared.DocumentLockKey(lockKind, id), func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			t, err := tx.LockTransfer(ctx, id)
			if err != nil {
				return err
			}
			if err := checkTransition(t.Status, action); err != nil {
				return err
			}
			if err := fn(ctx, tx, &t); err != nil {
				return err
			}
			t.UpdatedAt = s.ledger.Now()
			return tx.UpdateTransfer(ctx, t)
		})
	})
}

// byProduct returns item indexes ordered by product so records are locked in a stable order.
func byProduct(items []Item) []int {
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return items[idx[a]].ProductID < items[idx[b]].ProductID })
	return idx
}

func appendNote(notes, label, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return notes
	}
	line := label + ": " + text
	if notes == "" {
		return line
	}
	return notes + "\n" + line
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
		s.logger.Warn("record approval failed", slog.Int64("transfer_id", id), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.NewAuditLog(actorID, action, "stock_transfer", id, meta)); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
