package procurement

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/retailstock/internal/inventory"
	"github.com/odyssey-erp/retailstock/internal/shared"
)

const (
	approvalModule = "purchase_order"
	lockKind       = "purchase_order"
	receiveModule  = "procurement.receive"
)

// LedgerPort is the part of the stock ledger used when goods arrive.
type LedgerPort interface {
	ReceivePurchaseTx(ctx context.Context, tx inventory.TxRepository, in inventory.ReceivePurchaseInput) (inventory.Movement, error)
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

// Service orchestrates the purchase order lifecycle.
type Service struct {
	repo      RepositoryPort
	ledger    LedgerPort
	approvals shared.Approvals
	audit     shared.AuditRecorder
	idem      shared.Idempotency
	locker    shared.Locker
	logger    *slog.Logger
}

// NewService constructs procurement service.
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

func (s *Service) checkParties(ctx context.Context, tx TxRepository, storeID, supplierID int64, items []ItemInput) error {
	store, err := tx.GetStore(ctx, storeID)
	if err != nil {
		return err
	}
	if !store.Active {
		return shared.Invalid("store_id", "store is inactive")
	}
	active, err := tx.SupplierActive(ctx, supplierID)
	if err != nil {
		return err
	}
	if !active {
		return shared.Invalid("supplier_id", "supplier is inactive")
	}
	for i, it := range items {
		product, err := tx.GetProduct(ctx, it.ProductID)
		if err != nil {
			return err
		}
		if !product.Active {
			return shared.Invalid(fmt.Sprintf("items[%d].product_id", i), "product is inactive")
		}
	}
	return nil
}

// Create stores a draft purchase order with a generated number.
func (s *Service) Create(ctx context.Context, in CreateInput) (PurchaseOrder, error) {
	if in.StoreID <= 0 {
		return PurchaseOrder{}, shared.Invalid("store_id", "store required")
	}
	if in.SupplierID <= 0 {
		return PurchaseOrder{}, shared.Invalid("supplier_id", "supplier required")
	}
	if err := validateAmounts(in.TaxAmount, in.ShippingCost, in.DiscountAmount); err != nil {
		return PurchaseOrder{}, err
	}
	if err := validateItems(in.Items); err != nil {
		return PurchaseOrder{}, err
	}
	now := s.ledger.Now()
	orderDate := in.OrderDate
	if orderDate.IsZero() {
		orderDate = now
	}
	po := PurchaseOrder{
		StoreID:        in.StoreID,
		SupplierID:     in.SupplierID,
		Status:         POStatusDraft,
		OrderDate:      orderDate,
		ExpectedDate:   in.ExpectedDate,
		TaxAmount:      in.TaxAmount,
		ShippingCost:   in.ShippingCost,
		DiscountAmount: in.DiscountAmount,
		Notes:          in.Notes,
		CreatedBy:      in.ActorID,
		CreatedAt:      now,
		UpdatedAt:      now,
		Items:          buildItems(in.Items),
	}
	po.Subtotal, po.Total = Totals(po.Items, po.TaxAmount, po.ShippingCost, po.DiscountAmount)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.checkParties(ctx, tx, in.StoreID, in.SupplierID, in.Items); err != nil {
			return err
		}
		seq, err := tx.NextSequence(ctx, shared.PrefixPurchaseOrder, shared.SequenceDay(now))
		if err != nil {
			return err
		}
		po.Number = shared.FormatDocumentNumber(shared.PrefixPurchaseOrder, now, seq)
		po.ID, err = tx.InsertPO(ctx, po)
		return err
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, in.ActorID, "po:create", po.ID, map[string]any{"number": po.Number, "total": po.Total.String()})
	return s.repo.GetPO(ctx, po.ID)
}

// Update replaces the editable fields and the lines of a draft or pending order.
func (s *Service) Update(ctx context.Context, in UpdateInput) (PurchaseOrder, error) {
	if in.SupplierID <= 0 {
		return PurchaseOrder{}, shared.Invalid("supplier_id", "supplier required")
	}
	if err := validateAmounts(in.TaxAmount, in.ShippingCost, in.DiscountAmount); err != nil {
		return PurchaseOrder{}, err
	}
	if err := validateItems(in.Items); err != nil {
		return PurchaseOrder{}, err
	}
	err := s.mutate(ctx, in.ID, ActionUpdate, func(ctx context.Context, tx TxRepository, po *PurchaseOrder) error {
		if err := s.checkParties(ctx, tx, po.StoreID, in.SupplierID, in.Items); err != nil {
			return err
		}
		po.SupplierID = in.SupplierID
		po.ExpectedDate = in.ExpectedDate
		po.TaxAmount = in.TaxAmount
		po.ShippingCost = in.ShippingCost
		po.DiscountAmount = in.DiscountAmount
		po.Notes = in.Notes
		po.Items = buildItems(in.Items)
		po.Subtotal, po.Total = Totals(po.Items, po.TaxAmount, po.ShippingCost, po.DiscountAmount)
		return tx.ReplaceItems(ctx, po.ID, po.Items)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, in.ActorID, "po:update", in.ID, nil)
	return s.repo.GetPO(ctx, in.ID)
}

// Submit sends a draft order for approval.
func (s *Service) Submit(ctx context.Context, id, actorID int64) (PurchaseOrder, error) {
	return s.transition(ctx, id, actorID, ActionSubmit, shared.ApprovalSubmit, "", func(po *PurchaseOrder) error {
		po.Status = POStatusPending
		return nil
	})
}

// Approve approves a pending order.
func (s *Service) Approve(ctx context.Context, id, actorID int64) (PurchaseOrder, error) {
	return s.transition(ctx, id, actorID, ActionApprove, shared.ApprovalApprove, "", func(po *PurchaseOrder) error {
		now := s.ledger.Now()
		po.Status = POStatusApproved
		po.ApprovedBy = &actorID
		po.ApprovedAt = &now
		return nil
	})
}

// Reject closes a pending order without approval.
func (s *Service) Reject(ctx context.Context, id, actorID int64, reason string) (PurchaseOrder, error) {
	return s.transition(ctx, id, actorID, ActionReject, shared.ApprovalReject, reason, func(po *PurchaseOrder) error {
		po.Status = POStatusRejected
		po.Notes = appendNote(po.Notes, "Rejected", reason)
		return nil
	})
}

// MarkOrdered records that an approved order was sent to the supplier.
func (s *Service) MarkOrdered(ctx context.Context, id, actorID int64) (PurchaseOrder, error) {
	return s.transition(ctx, id, actorID, ActionOrder, "", "", func(po *PurchaseOrder) error {
		po.Status = POStatusOrdered
		return nil
	})
}

// Cancel cancels an order on which nothing has been received.
func (s *Service) Cancel(ctx context.Context, id, actorID int64, reason string) (PurchaseOrder, error) {
	return s.transition(ctx, id, actorID, ActionCancel, "", reason, func(po *PurchaseOrder) error {
		for _, it := range po.Items {
			if it.QuantityReceived > 0 {
				return &shared.TransitionError{Document: "purchase order", Action: string(ActionCancel), Status: string(POStatusPartialReceived)}
			}
		}
		po.Status = POStatusCancelled
		po.Notes = appendNote(po.Notes, "Cancelled", reason)
		return nil
	})
}

// Delete removes a draft or cancelled order.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	err := shared.WithLock(ctx, s.locker, shared.DocumentLockKey(lockKind, id), func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			po, err := tx.LockPO(ctx, id)
			if err != nil {
				return err
			}
			if err := CheckTransition(po.Status, ActionDelete); err != nil {
				return err
			}
			return tx.DeletePO(ctx, id)
		})
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "po:delete", id, nil)
	return nil
}

// Receive posts received quantities into the ledger. Each line is capped at
// what remains outstanding; the whole receipt commits or nothing does.
//
// A receipt that would post zero units, because every submitted line is
// already fully received or was sent as 0, is refused with a ValidationError.
// The order keeps its status and no receipt history row is written.
func (s *Service) Receive(ctx context.Context, in ReceiveInput) (PurchaseOrder, error) {
	if in.POID <= 0 {
		return PurchaseOrder{}, shared.Invalid("po_id", "purchase order required")
	}
	if len(in.Items) == 0 {
		return PurchaseOrder{}, shared.Invalid("items", "at least one item required")
	}
	for i, line := range in.Items {
		if line.Quantity < 0 {
			return PurchaseOrder{}, shared.Invalid(fmt.Sprintf("items[%d].quantity_received", i), "must be >= 0")
		}
	}
	key := ""
	if in.IdempotencyKey != "" {
		key = fmt.Sprintf("po:%d:receive:%s", in.POID, in.IdempotencyKey)
	}
	var receipt Receipt
	err := shared.Guard(ctx, s.idem, key, receiveModule, func() error {
		return shared.WithLock(ctx, s.locker, shared.DocumentLockKey(lockKind, in.POID), func() error {
			return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				var err error
				receipt, err = s.receiveTx(ctx, tx, in)
				return err
			})
		})
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	units := int64(0)
	for _, line := range receipt.Items {
		units += line.QuantityReceived
	}
	s.recordAudit(ctx, in.ActorID, "po:receive", in.POID, map[string]any{"receipt_id": receipt.ID, "units": units})
	return s.repo.GetPO(ctx, in.POID)
}

func (s *Service) receiveTx(ctx context.Context, tx TxRepository, in ReceiveInput) (Receipt, error) {
	po, err := tx.LockPO(ctx, in.POID)
	if err != nil {
		return Receipt{}, err
	}
	if err := CheckTransition(po.Status, ActionReceive); err != nil {
		return Receipt{}, err
	}
	index := make(map[int64]int, len(po.Items))
	for i, it := range po.Items {
		index[it.ID] = i
	}
	seen := make(map[int64]struct{}, len(in.Items))
	for i, line := range in.Items {
		if _, ok := index[line.ItemID]; !ok {
			return Receipt{}, shared.Invalid(fmt.Sprintf("items[%d].item_id", i), "item does not belong to this purchase order")
		}
		if _, dup := seen[line.ItemID]; dup {
			return Receipt{}, shared.Invalid(fmt.Sprintf("items[%d].item_id", i), "item listed twice")
		}
		seen[line.ItemID] = struct{}{}
	}

	lines := append([]ReceiveLine(nil), in.Items...)
	sort.SliceStable(lines, func(a, b int) bool {
		return po.Items[index[lines[a].ItemID]].ProductID < po.Items[index[lines[b].ItemID]].ProductID
	})

	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.ledger.Now()
	}
	receipt := Receipt{POID: po.ID, ReceivedBy: in.ActorID, ReceivedAt: receivedAt, Notes: in.Notes}
	var units int64
	for _, line := range lines {
		item := &po.Items[index[line.ItemID]]
		qty := min(line.Quantity, item.Remaining())
		receipt.Items = append(receipt.Items, ReceiptLine{
			ItemID:            item.ID,
			ProductID:         item.ProductID,
			QuantitySubmitted: line.Quantity,
			QuantityReceived:  max(qty, 0),
			UnitCost:          item.UnitCost,
		})
		if qty <= 0 {
			continue
		}
		if _, err := s.ledger.ReceivePurchaseTx(ctx, tx, inventory.ReceivePurchaseInput{
			StoreID:    po.StoreID,
			ProductID:  item.ProductID,
			ActorID:    in.ActorID,
			Quantity:   qty,
			UnitCost:   item.UnitCost,
			Origin:     inventory.PurchaseOrderOrigin(po.ID),
			Notes:      "Received from " + po.Number,
			ReceivedAt: receivedAt,
		}); err != nil {
			return Receipt{}, err
		}
		item.QuantityReceived += qty
		if err := tx.UpdateItemReceived(ctx, item.ID, item.QuantityReceived); err != nil {
			return Receipt{}, err
		}
		units += qty
	}
	if units == 0 {
		return Receipt{}, shared.Invalid("items", "nothing left to receive on the submitted lines")
	}

	po.Status = DeriveStatus(po.Items, po.Status)
	if po.Status == POStatusReceived {
		po.ReceivedDate = &receivedAt
	}
	po.UpdatedAt = s.ledger.Now()
	if err := tx.UpdatePO(ctx, po); err != nil {
		return Receipt{}, err
	}
	receipt.ID, err = tx.InsertReceipt(ctx, receipt)
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// Get loads an order with its items.
func (s *Service) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetPO(ctx, id)
}

// List returns orders matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, shared.Invalid("status", "unknown status")
	}
	orders, total, err := s.repo.ListPOs(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if orders == nil {
		orders = []PurchaseOrder{}
	}
	return orders, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Receipts returns the receiving history of an order.
func (s *Service) Receipts(ctx context.Context, id int64) ([]Receipt, error) {
	if _, err := s.repo.GetPO(ctx, id); err != nil {
		return nil, err
	}
	receipts, err := s.repo.ListReceipts(ctx, id)
	if err != nil {
		return nil, err
	}
	if receipts == nil {
		receipts = []Receipt{}
	}
	return receipts, nil
}

// Approvals returns the approval history of an order.
func (s *Service) Approvals(ctx context.Context, id int64) ([]shared.ApprovalLog, error) {
	if s.approvals == nil {
		return []shared.ApprovalLog{}, nil
	}
	return s.approvals.List(ctx, approvalModule, shared.ApprovalRef(approvalModule, id))
}

func (s *Service) mutate(ctx context.Context, id int64, action Action, fn func(context.Context, TxRepository, *PurchaseOrder) error) error {
	return shared.WithLock(ctx, s.locker, shared.DocumentLockKey(lockKind, id), func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			po, err := tx.LockPO(ctx, id)
			if err != nil {
				return err
			}
			if err := CheckTransition(po.Status, action); err != nil {
				return err
			}
			if err := fn(ctx, tx, &po); err != nil {
				return err
			}
			po.UpdatedAt = s.ledger.Now()
			return tx.UpdatePO(ctx, po)
		})
	})
}

func (s *Service) transition(ctx context.Context, id, actorID int64, action Action, approval shared.ApprovalAction, note string, apply func(*PurchaseOrder) error) (PurchaseOrder, error) {
	var number string
	err := s.mutate(ctx, id, action, func(_ context.Context, _ TxRepository, po *PurchaseOrder) error {
		number = po.Number
		return apply(po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	if approval != "" {
		s.recordApproval(ctx, id, actorID, approval, strings.TrimSpace(fmt.Sprintf("PO %s %s %s", number, strings.ToLower(string(approval)), note)))
	}
	s.recordAudit(ctx, actorID, "po:"+strings.ReplaceAll(string(action), " ", "_"), id, nil)
	return s.repo.GetPO(ctx, id)
}

func appendNote(notes, label, reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return notes
	}
	line := label + ": " + reason
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
		s.logger.Warn("record approval failed", slog.Int64("po_id", id), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.NewAuditLog(actorID, action, "purchase_order", id, meta)); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
