package service

import (
	"testing"
	"time"

	"github.com/meterflow/meterflow/internal/api/dto"
	"github.com/meterflow/meterflow/internal/domain/entitlement"
	"github.com/meterflow/meterflow/internal/domain/feature"
	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/meterflow/meterflow/internal/testutil"
	"github.com/meterflow/meterflow/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type GrantServiceSuite struct {
	testutil.BaseServiceTestSuite
	service GrantService
}

func TestGrantService(t *testing.T) {
	suite.Run(t, new(GrantServiceSuite))
}

func (s *GrantServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	stores := s.GetStores()
	s.service = NewGrantService(ServiceParams{
		Logger:          s.GetLogger(),
		Config:          s.GetConfig(),
		Cache:           s.GetCache(),
		Locker:          s.GetLocker(),
		FeatureRepo:     stores.FeatureRepo,
		EntitlementRepo: stores.EntitlementRepo,
		GrantRepo:       stores.GrantRepo,
		EventRepo:       stores.EventRepo,
	})
}

func (s *GrantServiceSuite) seedEntitlement(featureType types.FeatureType) *entitlement.Entitlement {
	f := &feature.Feature{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_FEATURE),
		Name:             "api_calls",
		LookupKey:        "api_calls",
		Type:             featureType,
		MeterAggregation: types.AggregationSum,
		BaseModel:        types.GetDefaultBaseModel(s.GetContext()),
	}
	_, err := s.GetStores().FeatureRepo.Create(s.GetContext(), f)
	s.Require().NoError(err)

	now := time.Now().UTC()
	e := &entitlement.Entitlement{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ENTITLEMENT),
		SubjectID:   "cust_1",
		FeatureID:   f.ID,
		FeatureKey:  f.LookupKey,
		FeatureType: featureType,
		Config:      "on",
		BaseModel:   types.GetDefaultBaseModel(s.GetContext()),
	}
	if featureType == types.FeatureTypeMetered {
		e.Config = ""
		e.UsagePeriod = &types.UsagePeriod{
			Interval: types.USAGE_PERIOD_INTERVAL_MONTH,
			Anchor:   now,
		}
		e.CurrentUsagePeriod = &types.Period{From: now, To: types.AddClampedDate(now, 0, 1, 0)}
		e.LastReset = &now
	}
	created, err := s.GetStores().EntitlementRepo.Create(s.GetContext(), e)
	s.Require().NoError(err)
	return created
}

func (s *GrantServiceSuite) TestCreateGrant() {
	e := s.seedEntitlement(types.FeatureTypeMetered)

	resp, err := s.service.CreateGrant(s.GetContext(), e.ID, dto.CreateGrantRequest{
		Amount:            "100.5",
		Priority:          1,
		MinRolloverAmount: "10",
		MaxRolloverAmount: "80",
	})
	s.Require().NoError(err)

	s.True(resp.Amount.Equal(decimal.RequireFromString("100.5")))
	s.Equal(1, resp.Priority)
	s.True(resp.MinRolloverAmount.Equal(decimal.NewFromInt(10)))
	s.True(resp.MaxRolloverAmount.Equal(decimal.NewFromInt(80)))
	s.Nil(resp.ExpiresAt)
	s.Nil(resp.VoidedAt)
}

func (s *GrantServiceSuite) TestCreateGrant_DefaultsMaxRolloverToAmount() {
	e := s.seedEntitlement(types.FeatureTypeMetered)

	resp, err := s.service.CreateGrant(s.GetContext(), e.ID, dto.CreateGrantRequest{
		Amount: "100",
	})
	s.Require().NoError(err)

	s.True(resp.MinRolloverAmount.IsZero())
	s.True(resp.MaxRolloverAmount.Equal(decimal.NewFromInt(100)))
}

func (s *GrantServiceSuite) TestCreateGrant_DerivesExpiry() {
	e := s.seedEntitlement(types.FeatureTypeMetered)
	effectiveAt := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	resp, err := s.service.CreateGrant(s.GetContext(), e.ID, dto.CreateGrantRequest{
		Amount:      "50",
		EffectiveAt: &effectiveAt,
		Expiration: &types.GrantExpiration{
			Duration: types.GrantExpiryDurationUnitMonth,
			Count:    1,
		},
	})
	s.Require().NoError(err)

	s.Require().NotNil(resp.ExpiresAt)
	// Jan 31 + 1 month clamps to Feb 29 in a leap year
	s.True(resp.ExpiresAt.Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)))
}

func (s *GrantServiceSuite) TestCreateGrant_RecurrenceSchedulesReissue() {
	e := s.seedEntitlement(types.FeatureTypeMetered)
	effectiveAt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	resp, err := s.service.CreateGrant(s.GetContext(), e.ID, dto.CreateGrantRequest{
		Amount:      "50",
		EffectiveAt: &effectiveAt,
		Recurrence: &types.GrantRecurrence{
			Interval: types.USAGE_PERIOD_INTERVAL_WEEK,
		},
	})
	s.Require().NoError(err)

	s.Require().NotNil(resp.NextRecurrence)
	s.True(resp.NextRecurrence.Equal(effectiveAt.AddDate(0, 0, 7)))
}

func (s *GrantServiceSuite) TestCreateGrant_RejectsNonPositiveAmount() {
	e := s.seedEntitlement(types.FeatureTypeMetered)

	_, err := s.service.CreateGrant(s.GetContext(), e.ID, dto.CreateGrantRequest{
		Amount: "0",
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))

	_, err = s.service.CreateGrant(s.GetContext(), e.ID, dto.CreateGrantRequest{
		Amount: "not-a-number",
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *GrantServiceSuite) TestCreateGrant_RejectsRolloverBoundsInversion() {
	e := s.seedEntitlement(types.FeatureTypeMetered)

	_, err := s.service.CreateGrant(s.GetContext(), e.ID, dto.CreateGrantRequest{
		Amount:            "100",
		MinRolloverAmount: "50",
		MaxRolloverAmount: "20",
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *GrantServiceSuite) TestCreateGrant_RejectsBooleanEntitlement() {
	e := s.seedEntitlement(types.FeatureTypeBoolean)

	_, err := s.service.CreateGrant(s.GetContext(), e.ID, dto.CreateGrantRequest{
		Amount: "100",
	})
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *GrantServiceSuite) TestCreateGrant_RejectsDeletedEntitlement() {
	e := s.seedEntitlement(types.FeatureTypeMetered)
	s.Require().NoError(s.GetStores().EntitlementRepo.Delete(s.GetContext(), e.ID))

	_, err := s.service.CreateGrant(s.GetContext(), e.ID, dto.CreateGrantRequest{
		Amount: "100",
	})
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *GrantServiceSuite) TestVoidGrant_Idempotent() {
	e := s.seedEntitlement(types.FeatureTypeMetered)
	created, err := s.service.CreateGrant(s.GetContext(), e.ID, dto.CreateGrantRequest{Amount: "100"})
	s.Require().NoError(err)

	first, err := s.service.VoidGrant(s.GetContext(), created.ID)
	s.Require().NoError(err)
	s.Require().NotNil(first.VoidedAt)

	// voiding again succeeds and keeps the original instant
	second, err := s.service.VoidGrant(s.GetContext(), created.ID)
	s.Require().NoError(err)
	s.Require().NotNil(second.VoidedAt)
	s.True(first.VoidedAt.Equal(*second.VoidedAt))
}

func (s *GrantServiceSuite) TestListGrants_ExcludesVoidedByDefault() {
	e := s.seedEntitlement(types.FeatureTypeMetered)
	kept, err := s.service.CreateGrant(s.GetContext(), e.ID, dto.CreateGrantRequest{Amount: "100"})
	s.Require().NoError(err)
	voided, err := s.service.CreateGrant(s.GetContext(), e.ID, dto.CreateGrantRequest{Amount: "50"})
	s.Require().NoError(err)
	_, err = s.service.VoidGrant(s.GetContext(), voided.ID)
	s.Require().NoError(err)

	resp, err := s.service.ListGrants(s.GetContext(), types.NewDefaultGrantFilter().WithEntitlementIDs([]string{e.ID}))
	s.Require().NoError(err)
	s.Require().Len(resp.Items, 1)
	s.Equal(kept.ID, resp.Items[0].ID)

	all, err := s.service.ListGrants(s.GetContext(), types.NewDefaultGrantFilter().WithEntitlementIDs([]string{e.ID}).WithIncludeVoided())
	s.Require().NoError(err)
	s.Len(all.Items, 2)
}
