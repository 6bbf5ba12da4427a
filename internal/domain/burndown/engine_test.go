package burndown

import (
	"testing"
	"time"

	"github.com/meterflow/meterflow/internal/domain/events"
	"github.com/meterflow/meterflow/internal/domain/grant"
	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/meterflow/meterflow/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newGrant(id string, amount int64, priority int, opts ...func(*grant.Grant)) *grant.Grant {
	g := &grant.Grant{
		ID:            id,
		EntitlementID: "ent_1",
		Amount:        decimal.NewFromInt(amount),
		Priority:      priority,
		EffectiveAt:   t0,
		BaseModel:     types.BaseModel{CreatedAt: t0},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func newEvent(at time.Time, delta int64) *events.UsageEvent {
	return &events.UsageEvent{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_EVENT),
		SubjectID:  "sub_1",
		FeatureKey: "api_calls",
		Timestamp:  at,
		Delta:      decimal.NewFromInt(delta),
	}
}

func TestEngine_PriorityOrdering(t *testing.T) {
	engine := NewEngine()

	result, err := engine.Run(Input{
		EntitlementID: "ent_1",
		Grants: []*grant.Grant{
			newGrant("grant_2", 50, 2),
			newGrant("grant_1", 50, 1),
		},
		UsageSeries: []*events.UsageEvent{
			newEvent(t0.Add(time.Hour), 70),
		},
	})
	require.NoError(t, err)

	assert.True(t, result.FinalBalances["grant_1"].IsZero(), "got %s", result.FinalBalances["grant_1"])
	assert.True(t, result.FinalBalances["grant_2"].Equal(decimal.NewFromInt(30)))
	assert.True(t, result.PerGrantUsage["grant_1"].Equal(decimal.NewFromInt(50)))
	assert.True(t, result.PerGrantUsage["grant_2"].Equal(decimal.NewFromInt(20)))
	assert.True(t, result.Overage.IsZero())
}

func TestEngine_TieBreaks(t *testing.T) {
	engine := NewEngine()
	expiry := t0.Add(48 * time.Hour)

	t.Run("soonest_expiry_first", func(t *testing.T) {
		result, err := engine.Run(Input{
			EntitlementID: "ent_1",
			Grants: []*grant.Grant{
				newGrant("unbounded", 100, 1),
				newGrant("expiring", 100, 1, func(g *grant.Grant) { g.ExpiresAt = &expiry }),
			},
			UsageSeries: []*events.UsageEvent{newEvent(t0.Add(time.Hour), 40)},
		})
		require.NoError(t, err)
		assert.True(t, result.FinalBalances["expiring"].Equal(decimal.NewFromInt(60)))
		assert.True(t, result.FinalBalances["unbounded"].Equal(decimal.NewFromInt(100)))
	})

	t.Run("earliest_created_first", func(t *testing.T) {
		result, err := engine.Run(Input{
			EntitlementID: "ent_1",
			Grants: []*grant.Grant{
				newGrant("younger", 100, 1, func(g *grant.Grant) { g.CreatedAt = t0.Add(time.Minute) }),
				newGrant("older", 100, 1),
			},
			UsageSeries: []*events.UsageEvent{newEvent(t0.Add(time.Hour), 40)},
		})
		require.NoError(t, err)
		assert.True(t, result.FinalBalances["older"].Equal(decimal.NewFromInt(60)))
		assert.True(t, result.FinalBalances["younger"].Equal(decimal.NewFromInt(100)))
	})
}

func TestEngine_OverageWhenExhausted(t *testing.T) {
	engine := NewEngine()

	result, err := engine.Run(Input{
		EntitlementID: "ent_1",
		Grants:        []*grant.Grant{newGrant("grant_1", 100, 1)},
		UsageSeries: []*events.UsageEvent{
			newEvent(t0.Add(time.Hour), 60),
			newEvent(t0.Add(2*time.Hour), 60),
		},
	})
	require.NoError(t, err)

	assert.True(t, result.FinalBalances["grant_1"].IsZero())
	assert.True(t, result.Overage.Equal(decimal.NewFromInt(20)))
	assert.True(t, result.TotalUsage.Equal(decimal.NewFromInt(120)))
}

// No usage may be lost or double counted: per-grant usages plus overage must
// equal the series total, whatever the grant set looks like.
func TestEngine_Conservation(t *testing.T) {
	engine := NewEngine()
	expiry := t0.Add(90 * time.Minute)

	result, err := engine.Run(Input{
		EntitlementID: "ent_1",
		Grants: []*grant.Grant{
			newGrant("grant_1", 25, 1, func(g *grant.Grant) { g.ExpiresAt = &expiry }),
			newGrant("grant_2", 40, 2),
			newGrant("grant_3", 10, 3),
		},
		UsageSeries: []*events.UsageEvent{
			newEvent(t0.Add(time.Hour), 17),
			newEvent(t0.Add(2*time.Hour), 33),
			newEvent(t0.Add(3*time.Hour), 50),
		},
	})
	require.NoError(t, err)

	attributed := decimal.Zero
	for _, used := range result.PerGrantUsage {
		attributed = attributed.Add(used)
	}
	assert.True(t, attributed.Add(result.Overage).Equal(decimal.NewFromInt(100)),
		"attributed %s + overage %s != 100", attributed, result.Overage)
}

func TestEngine_Deterministic(t *testing.T) {
	engine := NewEngine()
	in := Input{
		EntitlementID: "ent_1",
		Grants: []*grant.Grant{
			newGrant("grant_2", 50, 2),
			newGrant("grant_1", 50, 1),
		},
		UsageSeries: []*events.UsageEvent{
			newEvent(t0.Add(time.Hour), 30),
			newEvent(t0.Add(2*time.Hour), 45),
		},
	}

	first, err := engine.Run(in)
	require.NoError(t, err)
	second, err := engine.Run(in)
	require.NoError(t, err)

	assert.Equal(t, first.Overage.String(), second.Overage.String())
	for id, balance := range first.FinalBalances {
		assert.True(t, balance.Equal(second.FinalBalances[id]))
	}
}

func TestEngine_ExpiredGrantNotBurnable(t *testing.T) {
	engine := NewEngine()
	expiry := t0.Add(time.Hour)

	result, err := engine.Run(Input{
		EntitlementID: "ent_1",
		Grants: []*grant.Grant{
			newGrant("expired", 100, 1, func(g *grant.Grant) { g.ExpiresAt = &expiry }),
			newGrant("active", 100, 2),
		},
		UsageSeries: []*events.UsageEvent{
			// at the expiry instant the grant is already out of scope
			newEvent(expiry, 30),
		},
	})
	require.NoError(t, err)

	assert.True(t, result.FinalBalances["expired"].Equal(decimal.NewFromInt(100)))
	assert.True(t, result.FinalBalances["active"].Equal(decimal.NewFromInt(70)))
}

func TestEngine_VoidedGrantNotBurnable(t *testing.T) {
	engine := NewEngine()
	voidedAt := t0.Add(time.Hour)

	result, err := engine.Run(Input{
		EntitlementID: "ent_1",
		Grants: []*grant.Grant{
			newGrant("voided", 100, 1, func(g *grant.Grant) { g.VoidedAt = &voidedAt }),
			newGrant("active", 100, 2),
		},
		UsageSeries: []*events.UsageEvent{
			newEvent(t0.Add(30*time.Minute), 10),
			newEvent(t0.Add(2*time.Hour), 30),
		},
	})
	require.NoError(t, err)

	// first delta burns the grant before it was voided, second cannot
	assert.True(t, result.FinalBalances["voided"].Equal(decimal.NewFromInt(90)))
	assert.True(t, result.FinalBalances["active"].Equal(decimal.NewFromInt(70)))
}

func TestEngine_OpeningBalances(t *testing.T) {
	engine := NewEngine()

	result, err := engine.Run(Input{
		EntitlementID: "ent_1",
		Grants:        []*grant.Grant{newGrant("grant_1", 100, 1)},
		OpeningBalances: map[string]decimal.Decimal{
			"grant_1": decimal.NewFromInt(20),
		},
		UsageSeries: []*events.UsageEvent{newEvent(t0.Add(time.Hour), 30)},
	})
	require.NoError(t, err)

	assert.True(t, result.FinalBalances["grant_1"].IsZero())
	assert.True(t, result.Overage.Equal(decimal.NewFromInt(10)))
}

func TestEngine_CarriedOverage(t *testing.T) {
	engine := NewEngine()

	result, err := engine.Run(Input{
		EntitlementID:  "ent_1",
		Grants:         []*grant.Grant{newGrant("grant_1", 100, 1)},
		CarriedOverage: decimal.NewFromInt(25),
		UsageSeries:    []*events.UsageEvent{newEvent(t0.Add(time.Hour), 30)},
	})
	require.NoError(t, err)

	// 25 consumed up front, 30 by usage
	assert.True(t, result.FinalBalances["grant_1"].Equal(decimal.NewFromInt(45)))
	// the carried consumption is not usage of this period
	assert.True(t, result.PerGrantUsage["grant_1"].Equal(decimal.NewFromInt(30)))
	assert.True(t, result.TotalUsage.Equal(decimal.NewFromInt(30)))
	assert.True(t, result.Overage.IsZero())
}

func TestEngine_InconsistentGrantSet(t *testing.T) {
	engine := NewEngine()

	_, err := engine.Run(Input{
		EntitlementID: "ent_1",
		Grants: []*grant.Grant{
			newGrant("late", 100, 1, func(g *grant.Grant) { g.EffectiveAt = t0.Add(2 * time.Hour) }),
		},
		UsageSeries: []*events.UsageEvent{newEvent(t0.Add(time.Hour), 10)},
	})
	require.Error(t, err)
	assert.True(t, ierr.IsInconsistentGrantSet(err))
}

func TestEngine_EmptyInputs(t *testing.T) {
	engine := NewEngine()

	t.Run("no_grants", func(t *testing.T) {
		result, err := engine.Run(Input{
			EntitlementID: "ent_1",
			UsageSeries:   []*events.UsageEvent{newEvent(t0.Add(time.Hour), 30)},
		})
		require.NoError(t, err)
		assert.True(t, result.Overage.Equal(decimal.NewFromInt(30)))
	})

	t.Run("no_usage", func(t *testing.T) {
		result, err := engine.Run(Input{
			EntitlementID: "ent_1",
			Grants:        []*grant.Grant{newGrant("grant_1", 100, 1)},
		})
		require.NoError(t, err)
		assert.True(t, result.FinalBalances["grant_1"].Equal(decimal.NewFromInt(100)))
		assert.True(t, result.Overage.IsZero())
	})
}

func TestResult_BalanceAt(t *testing.T) {
	engine := NewEngine()
	expiry := t0.Add(2 * time.Hour)
	grants := []*grant.Grant{
		newGrant("expiring", 50, 1, func(g *grant.Grant) { g.ExpiresAt = &expiry }),
		newGrant("open", 50, 2),
	}

	result, err := engine.Run(Input{
		EntitlementID: "ent_1",
		Grants:        grants,
		UsageSeries:   []*events.UsageEvent{newEvent(t0.Add(time.Hour), 20)},
	})
	require.NoError(t, err)

	assert.True(t, result.BalanceAt(grants, t0.Add(90*time.Minute)).Equal(decimal.NewFromInt(80)))
	// after expiry only the open-ended grant counts
	assert.True(t, result.BalanceAt(grants, t0.Add(3*time.Hour)).Equal(decimal.NewFromInt(50)))
}
