package service

import (
	"context"
	"time"

	"github.com/meterflow/meterflow/internal/api/dto"
	"github.com/meterflow/meterflow/internal/cache"
	"github.com/meterflow/meterflow/internal/domain/burndown"
	"github.com/meterflow/meterflow/internal/domain/entitlement"
	"github.com/meterflow/meterflow/internal/domain/events"
	"github.com/meterflow/meterflow/internal/domain/grant"
	"github.com/meterflow/meterflow/internal/domain/usageperiod"
	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/meterflow/meterflow/internal/types"
	"github.com/shopspring/decimal"
)

// BalanceHistoryService produces windowed balance history and burn-down
// segments for a metered entitlement. Queries are read-only projections over
// the burn-down engine and are cached per (entitlement, range, window size)
// once the range lies entirely in the past.
type BalanceHistoryService interface {
	GetWindowedBalanceHistory(ctx context.Context, entitlementID string, req dto.WindowedBalanceHistoryRequest) (*dto.WindowedBalanceHistory, error)
}

type balanceHistoryService struct {
	ServiceParams
	engine *burndown.Engine
}

func NewBalanceHistoryService(params ServiceParams) BalanceHistoryService {
	return &balanceHistoryService{
		ServiceParams: params,
		engine:        burndown.NewEngine(),
	}
}

func (s *balanceHistoryService) GetWindowedBalanceHistory(ctx context.Context, entitlementID string, req dto.WindowedBalanceHistoryRequest) (*dto.WindowedBalanceHistory, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	e, err := loadMeteredEntitlement(ctx, s.EntitlementRepo, entitlementID)
	if err != nil {
		return nil, err
	}

	from, to := req.From.UTC(), req.To.UTC()
	now := time.Now().UTC()

	cacheKey := cache.GenerateKey(historyCachePrefix(ctx, entitlementID),
		from.Unix(), to.Unix(), req.WindowSize)
	if cached, found := s.Cache.Get(ctx, cacheKey); found {
		if history, ok := cached.(*dto.WindowedBalanceHistory); ok {
			return history, nil
		}
	}

	marks, err := s.periodMarks(e, from, to)
	if err != nil {
		return nil, err
	}

	grants, err := s.GrantRepo.ListForEntitlement(ctx, e.ID)
	if err != nil {
		return nil, err
	}

	// The final window is inclusive of its end when shorter than a full
	// window, so events at exactly `to` are part of the query in that case
	seriesEnd := to
	if req.WindowSize.Truncate(to).Before(to) {
		seriesEnd = to.Add(time.Nanosecond)
	}
	series, err := s.EventRepo.GetUsageSeries(ctx, e.SubjectID, e.FeatureKey, from, seriesEnd)
	if err != nil {
		return nil, err
	}

	// Overage preserved at the last reset only belongs to ranges that start
	// inside the current period
	carried := decimal.Zero
	if e.CurrentUsagePeriod != nil && !from.Before(e.CurrentUsagePeriod.From) {
		carried = e.CarriedOverage
	}

	boundaries := segmentBoundaries(from, to, grants, marks)
	maxSegments := s.Config.Entitlement.MaxHistorySegments
	if len(boundaries)-1 > maxSegments {
		return nil, ierr.NewError("history range produces too many segments").
			WithHint("Narrow the query window or use a coarser window size").
			WithReportableDetails(map[string]interface{}{
				"from":         from,
				"to":           to,
				"segments":     len(boundaries) - 1,
				"max_segments": maxSegments,
			}).
			Mark(ierr.ErrHistoryRangeTooLarge)
	}

	runs, err := runTimeline(ctx, s.engine, e.ID, grants, series, boundaries, carried)
	if err != nil {
		return nil, err
	}

	windows, err := s.windowedHistory(ctx, e.ID, grants, series, marks, carried, from, to, req.WindowSize)
	if err != nil {
		return nil, err
	}

	history := &dto.WindowedBalanceHistory{
		WindowedHistory: windows,
		BurndownHistory: burndownSegments(runs),
	}

	// Grants and usage in the past are immutable, so a fully-finalized range
	// can be cached
	if s.Config.Cache.Enabled && !seriesEnd.After(now) {
		s.Cache.Set(ctx, cacheKey, history, s.Config.Cache.HistoryTTL)
	}

	return history, nil
}

// periodMarks lists the usage period boundaries falling inside (from, to):
// the last reset plus every period edge derived from the current anchor.
func (s *balanceHistoryService) periodMarks(e *entitlement.Entitlement, from, to time.Time) ([]time.Time, error) {
	marks := []time.Time{}
	if e.LastReset != nil {
		marks = append(marks, *e.LastReset)
	}

	period, err := usageperiod.PeriodContaining(e.UsagePeriod.Anchor, e.UsagePeriod.Interval, from)
	if err != nil {
		return nil, err
	}
	edge := period.To
	limit := s.Config.Entitlement.MaxHistorySegments
	for i := 0; edge.Before(to); i++ {
		if i > limit {
			return nil, ierr.NewError("history range spans too many usage periods").
				WithHint("Narrow the query window").
				WithReportableDetails(map[string]interface{}{
					"from":        from,
					"to":          to,
					"max_periods": limit,
				}).
				Mark(ierr.ErrHistoryRangeTooLarge)
		}
		marks = append(marks, edge)
		next, err := usageperiod.PeriodContaining(e.UsagePeriod.Anchor, e.UsagePeriod.Interval, edge)
		if err != nil {
			return nil, err
		}
		edge = next.To
	}

	return marks, nil
}

// windowedHistory re-buckets the timeline into fixed windows. The timeline
// is re-segmented at the edges of every window that contains usage, on top
// of the grant and period boundaries, so each window's opening and closing
// balances come from a chained engine run. Windows without usage are
// dropped.
func (s *balanceHistoryService) windowedHistory(
	ctx context.Context,
	entitlementID string,
	grants []*grant.Grant,
	series []*events.UsageEvent,
	marks []time.Time,
	carried decimal.Decimal,
	from, to time.Time,
	windowSize types.WindowSize,
) ([]*dto.BalanceHistoryWindow, error) {
	if len(series) == 0 {
		return []*dto.BalanceHistoryWindow{}, nil
	}

	seen := map[int64]struct{}{}
	edges := make([]time.Time, 0, 2*len(series)+len(marks))
	edges = append(edges, marks...)
	for _, ev := range series {
		ws := windowSize.Truncate(ev.Timestamp)
		if _, ok := seen[ws.UnixNano()]; ok {
			continue
		}
		seen[ws.UnixNano()] = struct{}{}
		edges = append(edges, ws, windowSize.Next(ws))
	}

	// The final boundary extends past `to` when the last window is short, so
	// its closing events at exactly `to` stay in scope
	end := to
	if windowSize.Truncate(to).Before(to) {
		end = to.Add(time.Nanosecond)
	}

	boundaries := segmentBoundaries(from, end, grants, edges)
	maxSegments := s.Config.Entitlement.MaxHistorySegments
	if len(boundaries)-1 > maxSegments {
		return nil, ierr.NewError("history range produces too many segments").
			WithHint("Narrow the query window or use a coarser window size").
			WithReportableDetails(map[string]interface{}{
				"from":         from,
				"to":           to,
				"segments":     len(boundaries) - 1,
				"max_segments": maxSegments,
			}).
			Mark(ierr.ErrHistoryRangeTooLarge)
	}

	runs, err := runTimeline(ctx, s.engine, entitlementID, grants, series, boundaries, carried)
	if err != nil {
		return nil, err
	}

	windows := []*dto.BalanceHistoryWindow{}
	var current *dto.BalanceHistoryWindow
	var currentUsage decimal.Decimal
	flush := func() {
		if current != nil && currentUsage.IsPositive() {
			current.Usage = types.FormatNumeric(currentUsage)
			windows = append(windows, current)
		}
	}

	for _, run := range runs {
		ws := windowSize.Truncate(run.From)
		if current == nil || !current.From.Equal(ws) {
			flush()
			we := windowSize.Next(ws)
			if we.After(to) {
				we = to
			}
			current = &dto.BalanceHistoryWindow{
				From:           ws,
				To:             we,
				BalanceAtStart: types.FormatNumeric(run.openingBalanceAt(run.From)),
			}
			currentUsage = decimal.Zero
		}
		currentUsage = currentUsage.Add(run.Result.TotalUsage)
		current.BalanceAtEnd = types.FormatNumeric(run.Result.BalanceAt(run.Grants, run.From))
	}
	flush()

	return windows, nil
}

// historyCachePrefix scopes cached history entries so mutations can drop
// every range of one entitlement at once
func historyCachePrefix(ctx context.Context, entitlementID string) string {
	return cache.GenerateKey(cache.PrefixBalanceHistory, types.GetTenantID(ctx), entitlementID)
}

// burndownSegments renders engine runs as wire segments
func burndownSegments(runs []*segmentRun) []*dto.GrantBurnDownHistorySegment {
	segments := make([]*dto.GrantBurnDownHistorySegment, 0, len(runs))
	for _, run := range runs {
		segment := &dto.GrantBurnDownHistorySegment{
			From:                 run.From,
			To:                   run.To,
			BalanceAtStart:       types.FormatNumeric(run.openingBalanceAt(run.From)),
			BalanceAtEnd:         types.FormatNumeric(run.Result.BalanceAt(run.Grants, run.From)),
			GrantBalancesAtStart: map[string]string{},
			GrantBalancesAtEnd:   map[string]string{},
			GrantUsages:          map[string]string{},
			Overage:              types.FormatNumeric(run.Result.Overage),
		}
		for _, g := range run.Grants {
			if !g.IsActiveAt(run.From) {
				continue
			}
			opening := g.Amount
			if b, ok := run.Opening[g.ID]; ok {
				opening = b
			}
			segment.GrantBalancesAtStart[g.ID] = types.FormatNumeric(opening)
			segment.GrantBalancesAtEnd[g.ID] = types.FormatNumeric(run.Result.FinalBalances[g.ID])
			segment.GrantUsages[g.ID] = types.FormatNumeric(run.Result.PerGrantUsage[g.ID])
		}
		segments = append(segments, segment)
	}
	return segments
}
