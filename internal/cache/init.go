package cache

import (
	"github.com/meterflow/meterflow/internal/logger"
)

// Initialize initializes the cache system
func Initialize(log *logger.Logger) *InMemoryCache {
	log.Info("Initializing cache system")

	InitializeInMemoryCache()

	log.Info("Cache system initialized")

	return GetInMemoryCache()
}
