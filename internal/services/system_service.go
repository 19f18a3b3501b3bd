package services

import (
	"context"
	"errors"
	"time"

	"github.com/maplemart/api/internal/repositories"
)

// BuildInfo identifies the running binary for health reporting.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps wires dependency probes into the system service.
type SystemServiceDeps struct {
	Health repositories.HealthRepository
}

type systemService struct {
	health repositories.HealthRepository
}

// NewSystemService constructs the system utility service.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errors.New("system service: health repository is required")
	}
	return &systemService{health: deps.Health}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	return s.health.Collect(ctx)
}
