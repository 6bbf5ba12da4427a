package service

import (
	"github.com/meterflow/meterflow/internal/cache"
	"github.com/meterflow/meterflow/internal/config"
	"github.com/meterflow/meterflow/internal/domain/entitlement"
	"github.com/meterflow/meterflow/internal/domain/events"
	"github.com/meterflow/meterflow/internal/domain/feature"
	"github.com/meterflow/meterflow/internal/domain/grant"
	"github.com/meterflow/meterflow/internal/locker"
	"github.com/meterflow/meterflow/internal/logger"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	Cache  cache.Cache
	Locker *locker.Locker

	FeatureRepo     feature.Repository
	EntitlementRepo entitlement.Repository
	GrantRepo       grant.Repository
	EventRepo       events.Repository
}
