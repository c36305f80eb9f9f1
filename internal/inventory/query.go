package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/odyssey-erp/retailstock/internal/shared"
)

// ListRecords returns a page of inventory records.
func (s *Service) ListRecords(ctx context.Context, filter RecordFilter) ([]RecordView, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, shared.Invalid("status", fmt.Sprintf("unknown stock status %q", filter.Status))
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	views, total, err := s.repo.ListRecords(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return views, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// GetRecord returns one record.
func (s *Service) GetRecord(ctx context.Context, storeID, productID int64) (RecordView, error) {
	if storeID <= 0 || productID <= 0 {
		return RecordView{}, shared.Invalid("store_id", "store and product required")
	}
	return s.repo.GetRecord(ctx, storeID, productID)
}

func levelRank(l AlertLevel) int {
	switch l {
	case AlertCritical:
		return 0
	case AlertWarning:
		return 1
	default:
		return 2
	}
}

// LowStockAlerts returns records at or below their minimum, most urgent first.
// With IncludeApproaching the feed also carries the low level.
func (s *Service) LowStockAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error) {
	if filter.Level != "" && !filter.Level.Valid() {
		return nil, shared.Invalid("level", fmt.Sprintf("unknown alert level %q", filter.Level))
	}
	if filter.Level == AlertLow {
		filter.IncludeApproaching = true
	}
	candidates, err := s.repo.ListAlertCandidates(ctx, filter)
	if err != nil {
		return nil, err
	}
	alerts := make([]Alert, 0, len(candidates))
	for _, v := range candidates {
		level, ok := ClassifyAlert(v.Quantity, v.MinimumStock)
		if !ok {
			continue
		}
		if level == AlertLow && !filter.IncludeApproaching {
			continue
		}
		if filter.Level != "" && level != filter.Level {
			continue
		}
		shortage := v.MinimumStock - v.Quantity
		if shortage < 0 {
			shortage = 0
		}
		alerts = append(alerts, Alert{
			StoreID:      v.StoreID,
			StoreName:    v.StoreName,
			ProductID:    v.ProductID,
			ProductName:  v.ProductName,
			SKU:          v.SKU,
			Category:     v.Category,
			Quantity:     v.Quantity,
			MinimumStock: v.MinimumStock,
			Shortage:     shortage,
			Level:        level,
			UpdatedAt:    v.UpdatedAt,
		})
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return levelRank(alerts[i].Level) < levelRank(alerts[j].Level)
	})
	return alerts, nil
}

// MovementHistory returns a page of movements, newest first.
func (s *Service) MovementHistory(ctx context.Context, filter MovementFilter) ([]Movement, shared.Pagination, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, shared.Pagination{}, shared.Invalid("type", fmt.Sprintf("unknown movement type %q", filter.Type))
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, shared.Pagination{}, shared.Invalid("to", "must not be before from")
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	movements, total, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return movements, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}
