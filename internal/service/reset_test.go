package service

import (
	"testing"
	"time"

	"github.com/meterflow/meterflow/internal/api/dto"
	"github.com/meterflow/meterflow/internal/domain/entitlement"
	"github.com/meterflow/meterflow/internal/domain/events"
	"github.com/meterflow/meterflow/internal/domain/feature"
	"github.com/meterflow/meterflow/internal/domain/grant"
	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/meterflow/meterflow/internal/testutil"
	"github.com/meterflow/meterflow/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type ResetServiceSuite struct {
	testutil.BaseServiceTestSuite
	service ResetService

	periodStart time.Time
	ent         *entitlement.Entitlement
}

func TestResetService(t *testing.T) {
	suite.Run(t, new(ResetServiceSuite))
}

func (s *ResetServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	stores := s.GetStores()
	s.service = NewResetService(ServiceParams{
		Logger:          s.GetLogger(),
		Config:          s.GetConfig(),
		Cache:           s.GetCache(),
		Locker:          s.GetLocker(),
		FeatureRepo:     stores.FeatureRepo,
		EntitlementRepo: stores.EntitlementRepo,
		GrantRepo:       stores.GrantRepo,
		EventRepo:       stores.EventRepo,
	})

	f := &feature.Feature{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_FEATURE),
		Name:             "api_calls",
		LookupKey:        "api_calls",
		Type:             types.FeatureTypeMetered,
		MeterAggregation: types.AggregationSum,
		BaseModel:        types.GetDefaultBaseModel(s.GetContext()),
	}
	_, err := stores.FeatureRepo.Create(s.GetContext(), f)
	s.Require().NoError(err)

	s.periodStart = time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Minute)
	e := &entitlement.Entitlement{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ENTITLEMENT),
		SubjectID:   "cust_1",
		FeatureID:   f.ID,
		FeatureKey:  f.LookupKey,
		FeatureType: types.FeatureTypeMetered,
		UsagePeriod: &types.UsagePeriod{
			Interval: types.USAGE_PERIOD_INTERVAL_MONTH,
			Anchor:   s.periodStart,
		},
		MeasureUsageFrom:   &s.periodStart,
		LastReset:          &s.periodStart,
		CurrentUsagePeriod: &types.Period{From: s.periodStart, To: types.AddClampedDate(s.periodStart, 0, 1, 0)},
		CarriedOverage:     decimal.Zero,
		BaseModel:          types.GetDefaultBaseModel(s.GetContext()),
	}
	s.ent, err = stores.EntitlementRepo.Create(s.GetContext(), e)
	s.Require().NoError(err)
}

func (s *ResetServiceSuite) seedGrant(amount int64, minRollover, maxRollover int64, recurrence *types.GrantRecurrence) *grant.Grant {
	g := &grant.Grant{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_GRANT),
		EntitlementID:     s.ent.ID,
		Amount:            decimal.NewFromInt(amount),
		Priority:          1,
		EffectiveAt:       s.periodStart,
		Recurrence:        recurrence,
		MinRolloverAmount: decimal.NewFromInt(minRollover),
		MaxRolloverAmount: decimal.NewFromInt(maxRollover),
		BaseModel:         types.GetDefaultBaseModel(s.GetContext()),
	}
	created, err := s.GetStores().GrantRepo.Create(s.GetContext(), g)
	s.Require().NoError(err)
	return created
}

func (s *ResetServiceSuite) recordUsage(at time.Time, delta int64) {
	err := s.GetStores().EventRepo.Insert(s.GetContext(), &events.UsageEvent{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_EVENT),
		SubjectID:  "cust_1",
		FeatureKey: "api_calls",
		Timestamp:  at,
		Delta:      decimal.NewFromInt(delta),
	})
	s.Require().NoError(err)
}

func (s *ResetServiceSuite) activeGrants() []*grant.Grant {
	grants, err := s.GetStores().GrantRepo.ListActive(s.GetContext(), s.ent.ID, time.Now().UTC())
	s.Require().NoError(err)
	return grants
}

func (s *ResetServiceSuite) TestReset_RejectsFutureEffectiveAt() {
	future := time.Now().UTC().Add(2 * time.Hour)
	_, err := s.service.ResetEntitlementUsage(s.GetContext(), s.ent.ID, dto.ResetEntitlementUsageInput{
		EffectiveAt: &future,
	})
	s.Error(err)
	s.True(ierr.IsInvalidResetTime(err))
}

func (s *ResetServiceSuite) TestReset_DuplicateIsNoOp() {
	s.seedGrant(100, 0, 0, nil)
	effectiveAt := s.periodStart.Add(24 * time.Hour)

	first, err := s.service.ResetEntitlementUsage(s.GetContext(), s.ent.ID, dto.ResetEntitlementUsageInput{
		EffectiveAt:  &effectiveAt,
		RetainAnchor: true,
	})
	s.Require().NoError(err)

	grantsAfterFirst := s.activeGrants()

	// replaying the same reset succeeds without mutating anything
	second, err := s.service.ResetEntitlementUsage(s.GetContext(), s.ent.ID, dto.ResetEntitlementUsageInput{
		EffectiveAt:  &effectiveAt,
		RetainAnchor: true,
	})
	s.Require().NoError(err)
	s.True(first.LastReset.Equal(second.LastReset))
	s.Len(s.activeGrants(), len(grantsAfterFirst))
}

func (s *ResetServiceSuite) TestReset_RolloverCappedByMax() {
	// 100 granted, 5 used: balance 95 rolls into min(80, max(95, 0)) = 80
	s.seedGrant(100, 0, 80, nil)
	s.recordUsage(s.periodStart.Add(time.Hour), 5)

	effectiveAt := s.periodStart.Add(24 * time.Hour)
	_, err := s.service.ResetEntitlementUsage(s.GetContext(), s.ent.ID, dto.ResetEntitlementUsageInput{
		EffectiveAt:  &effectiveAt,
		RetainAnchor: true,
	})
	s.Require().NoError(err)

	grants := s.activeGrants()
	s.Require().Len(grants, 1)
	s.True(grants[0].Amount.Equal(decimal.NewFromInt(80)), "got %s", grants[0].Amount)
	s.True(grants[0].EffectiveAt.Equal(effectiveAt))
}

func (s *ResetServiceSuite) TestReset_RolloverRaisedToMin() {
	// 100 granted, 95 used: balance 5 rolls into min(100, max(5, 10)) = 10
	s.seedGrant(100, 10, 100, nil)
	s.recordUsage(s.periodStart.Add(time.Hour), 95)

	effectiveAt := s.periodStart.Add(24 * time.Hour)
	_, err := s.service.ResetEntitlementUsage(s.GetContext(), s.ent.ID, dto.ResetEntitlementUsageInput{
		EffectiveAt:  &effectiveAt,
		RetainAnchor: true,
	})
	s.Require().NoError(err)

	grants := s.activeGrants()
	s.Require().Len(grants, 1)
	s.True(grants[0].Amount.Equal(decimal.NewFromInt(10)), "got %s", grants[0].Amount)
}

func (s *ResetServiceSuite) TestReset_NoRolloverDropsBalance() {
	s.seedGrant(100, 0, 0, nil)
	s.recordUsage(s.periodStart.Add(time.Hour), 5)

	effectiveAt := s.periodStart.Add(24 * time.Hour)
	_, err := s.service.ResetEntitlementUsage(s.GetContext(), s.ent.ID, dto.ResetEntitlementUsageInput{
		EffectiveAt:  &effectiveAt,
		RetainAnchor: true,
	})
	s.Require().NoError(err)

	s.Empty(s.activeGrants())
}

func (s *ResetServiceSuite) TestReset_RecurringGrantReissuedInFull() {
	s.seedGrant(100, 0, 0, &types.GrantRecurrence{Interval: types.USAGE_PERIOD_INTERVAL_MONTH})
	s.recordUsage(s.periodStart.Add(time.Hour), 60)

	effectiveAt := s.periodStart.Add(24 * time.Hour)
	_, err := s.service.ResetEntitlementUsage(s.GetContext(), s.ent.ID, dto.ResetEntitlementUsageInput{
		EffectiveAt:  &effectiveAt,
		RetainAnchor: true,
	})
	s.Require().NoError(err)

	grants := s.activeGrants()
	s.Require().Len(grants, 1)
	s.True(grants[0].Amount.Equal(decimal.NewFromInt(100)))
	s.NotNil(grants[0].Recurrence)
	s.NotNil(grants[0].NextRecurrence)
}

func (s *ResetServiceSuite) TestReset_PreserveOverageCarriesForward() {
	s.seedGrant(100, 0, 0, nil)
	s.recordUsage(s.periodStart.Add(time.Hour), 130)

	preserve := true
	effectiveAt := s.periodStart.Add(24 * time.Hour)
	resp, err := s.service.ResetEntitlementUsage(s.GetContext(), s.ent.ID, dto.ResetEntitlementUsageInput{
		EffectiveAt:     &effectiveAt,
		RetainAnchor:    true,
		PreserveOverage: &preserve,
	})
	s.Require().NoError(err)
	s.Equal("30", resp.CarriedOverage)

	updated, err := s.GetStores().EntitlementRepo.Get(s.GetContext(), s.ent.ID)
	s.Require().NoError(err)
	s.True(updated.CarriedOverage.Equal(decimal.NewFromInt(30)))
}

func (s *ResetServiceSuite) TestReset_DiscardsOverageByDefault() {
	s.seedGrant(100, 0, 0, nil)
	s.recordUsage(s.periodStart.Add(time.Hour), 130)

	effectiveAt := s.periodStart.Add(24 * time.Hour)
	resp, err := s.service.ResetEntitlementUsage(s.GetContext(), s.ent.ID, dto.ResetEntitlementUsageInput{
		EffectiveAt:  &effectiveAt,
		RetainAnchor: true,
	})
	s.Require().NoError(err)
	s.Equal("0", resp.CarriedOverage)
}

func (s *ResetServiceSuite) TestReset_RetainAnchorKeepsCadence() {
	s.seedGrant(100, 0, 0, nil)

	effectiveAt := s.periodStart.Add(24 * time.Hour)
	resp, err := s.service.ResetEntitlementUsage(s.GetContext(), s.ent.ID, dto.ResetEntitlementUsageInput{
		EffectiveAt:  &effectiveAt,
		RetainAnchor: true,
	})
	s.Require().NoError(err)

	// new period starts at the reset but still ends on the anchor cadence
	s.True(resp.CurrentUsagePeriod.From.Equal(effectiveAt))
	s.True(resp.CurrentUsagePeriod.To.Equal(types.AddClampedDate(s.periodStart, 0, 1, 0)))

	updated, err := s.GetStores().EntitlementRepo.Get(s.GetContext(), s.ent.ID)
	s.Require().NoError(err)
	s.True(updated.UsagePeriod.Anchor.Equal(s.periodStart))
}

func (s *ResetServiceSuite) TestReset_MovedAnchorRederivesBoundaries() {
	s.seedGrant(100, 0, 0, nil)

	effectiveAt := s.periodStart.Add(24 * time.Hour)
	resp, err := s.service.ResetEntitlementUsage(s.GetContext(), s.ent.ID, dto.ResetEntitlementUsageInput{
		EffectiveAt:  &effectiveAt,
		RetainAnchor: false,
	})
	s.Require().NoError(err)

	s.True(resp.CurrentUsagePeriod.From.Equal(effectiveAt))
	s.True(resp.CurrentUsagePeriod.To.Equal(types.AddClampedDate(effectiveAt, 0, 1, 0)))

	updated, err := s.GetStores().EntitlementRepo.Get(s.GetContext(), s.ent.ID)
	s.Require().NoError(err)
	s.True(updated.UsagePeriod.Anchor.Equal(effectiveAt))
}

func (s *ResetServiceSuite) TestReset_RejectsBooleanEntitlement() {
	f := &feature.Feature{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_FEATURE),
		Name:      "sso",
		LookupKey: "sso",
		Type:      types.FeatureTypeBoolean,
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	_, err := s.GetStores().FeatureRepo.Create(s.GetContext(), f)
	s.Require().NoError(err)

	e := &entitlement.Entitlement{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ENTITLEMENT),
		SubjectID:   "cust_2",
		FeatureID:   f.ID,
		FeatureKey:  f.LookupKey,
		FeatureType: types.FeatureTypeBoolean,
		BaseModel:   types.GetDefaultBaseModel(s.GetContext()),
	}
	_, err = s.GetStores().EntitlementRepo.Create(s.GetContext(), e)
	s.Require().NoError(err)

	_, err = s.service.ResetEntitlementUsage(s.GetContext(), e.ID, dto.ResetEntitlementUsageInput{})
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}
