package records

import (
	"context"
	"time"

	"liquimed/internal/core/apperror"
)

// Service is the read side of the billing workflow: it fetches raw rows from
// the clinical source and stitches in exclusion and settlement state.
type Service struct {
	source     Source
	exclusions ExclusionLookup
	settled    SettledLookup
}

// NewService creates a new record read service.
func NewService(source Source, exclusions ExclusionLookup, settled SettledLookup) *Service {
	return &Service{
		source:     source,
		exclusions: exclusions,
		settled:    settled,
	}
}

// ValidateRange checks a settlement/query date range.
func ValidateRange(dateFrom, dateTo time.Time) error {
	if dateFrom.IsZero() || dateTo.IsZero() {
		return apperror.NewValidation("date range is required").
			WithDetail("field", "dateFrom/dateTo")
	}
	if dateFrom.After(dateTo) {
		return apperror.NewValidation("dateFrom must not be after dateTo").
			WithDetail("dateFrom", dateFrom).
			WithDetail("dateTo", dateTo)
	}
	return nil
}

// FetchWithStatus returns line items for the range with IsExcluded,
// IsSettled and CarriedOver resolved against the current ledger state.
// The returned slice is a fresh snapshot; callers re-invoke after any
// mutation instead of patching it.
func (s *Service) FetchWithStatus(ctx context.Context, dateFrom, dateTo time.Time, f Filters) ([]LineItem, error) {
	if err := ValidateRange(dateFrom, dateTo); err != nil {
		return nil, err
	}

	items, err := s.source.FetchLineItems(ctx, dateFrom, dateTo, f)
	if err != nil {
		if apperror.IsAppError(err) {
			return nil, err
		}
		return nil, apperror.NewExternalSource(err)
	}

	if len(items) == 0 {
		return items, nil
	}

	ids := make([]Identity, len(items))
	for i := range items {
		ids[i] = items[i].Identity
	}

	marks, err := s.exclusions.Marks(ctx, ids)
	if err != nil {
		return nil, err
	}

	settled, err := s.settled.Settled(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i := range items {
		it := &items[i]
		it.SiteName = SiteName(it.SiteCode)
		if mark, ok := marks[it.Identity]; ok {
			it.IsExcluded = mark.Excluded
			// Excluded before the start of this period and still unresolved.
			it.CarriedOver = mark.Excluded && mark.CreatedAt.Before(dateFrom)
		}
		it.IsSettled = settled[it.Identity]
	}

	return items, nil
}
