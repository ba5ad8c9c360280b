package services

import (
	"context"
	"time"

	gateway "github.com/nimasrn/finance-ledger/internal/gateways"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderReporter is an outbound client that tracks its own call stats.
type ProviderReporter interface {
	Stats() gateway.ProviderStats
}

type HealthService struct {
	db        Pinger
	providers []ProviderReporter
	timeout   time.Duration
}

func NewHealthService(db Pinger, providers ...ProviderReporter) *HealthService {
	return &HealthService{db: db, providers: providers, timeout: 2 * time.Second}
}

// Get reports whether the database answers within the timeout.
func (s *HealthService) Get() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.db.Ping(ctx)
}

func (s *HealthService) Providers() []gateway.ProviderStats {
	out := make([]gateway.ProviderStats, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, p.Stats())
	}
	return out
}
