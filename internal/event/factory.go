package event

import (
	"fmt"

	"github.com/openorbit/agenthub/internal/common/config"
	"github.com/openorbit/agenthub/pkg/metrics"
	"go.uber.org/zap"
)

// Type represents the type of event bus
type Type string

const (
	// TypeMemory represents the in-process event bus
	TypeMemory Type = "memory"
	// TypeRedis represents the redis-backed distributed event bus
	TypeRedis Type = "redis"
)

// NewBus creates a new event bus based on configuration
func NewBus(logger *zap.Logger, m *metrics.Metrics, cfg *config.BusConfig) (Bus, error) {
	logger.Info("Initializing event bus", zap.String("type", cfg.Type))
	switch Type(cfg.Type) {
	case TypeMemory:
		return NewMemoryBus(logger, m, cfg.QueueSize), nil
	case TypeRedis:
		return NewRedisBus(logger, m, cfg.Redis, cfg.QueueSize)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
