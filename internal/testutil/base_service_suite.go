package testutil

import (
	"context"

	"github.com/meterflow/meterflow/internal/cache"
	"github.com/meterflow/meterflow/internal/config"
	"github.com/meterflow/meterflow/internal/locker"
	"github.com/meterflow/meterflow/internal/logger"
	"github.com/stretchr/testify/suite"
)

// Stores holds the in-memory repositories backing a service test suite
type Stores struct {
	FeatureRepo     *InMemoryFeatureStore
	EntitlementRepo *InMemoryEntitlementStore
	GrantRepo       *InMemoryGrantStore
	EventRepo       *InMemoryUsageStore
}

// BaseServiceTestSuite provides common setup for service tests: fresh
// in-memory stores per test, a quiet logger, default config, cache and a
// keyed locker.
type BaseServiceTestSuite struct {
	suite.Suite
	ctx    context.Context
	stores Stores
	logger *logger.Logger
	config *config.Configuration
	cache  cache.Cache
	locker *locker.Locker
}

// SetupSuite initializes dependencies shared by all tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	s.config = config.GetDefaultConfig()

	var err error
	s.logger, err = logger.NewLogger(s.config)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
}

// SetupTest gives every test a fresh context, stores, cache and locker
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.stores = Stores{
		FeatureRepo:     NewInMemoryFeatureStore(),
		EntitlementRepo: NewInMemoryEntitlementStore(),
		GrantRepo:       NewInMemoryGrantStore(),
		EventRepo:       NewInMemoryUsageStore(),
	}
	s.cache = cache.NewInMemoryCache()
	s.cache.Flush(s.ctx)
	s.locker = locker.NewLocker()
}

// TearDownTest clears all stores after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.stores.FeatureRepo.Clear()
	s.stores.EntitlementRepo.Clear()
	s.stores.GrantRepo.Clear()
	s.stores.EventRepo.Clear()
	s.cache.Flush(s.ctx)
}

// GetContext returns the test context carrying the default tenant
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetStores returns the current in-memory stores
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetLogger returns the suite logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetConfig returns the suite configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetCache returns the suite cache
func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

// GetLocker returns the suite locker
func (s *BaseServiceTestSuite) GetLocker() *locker.Locker {
	return s.locker
}
