package syncer

import (
	"context"
	"sync"

	"github.com/the-data-sherpa/vanguard-sub000/internal/domain"
)

// RunTick executes one fast-cadence pass: list eligible tenants and sync
// incidents and weather for each, running at most Options.TenantBatchSize
// tenants at a time. A panic inside one tenant's sync is recovered and
// recorded so the remaining tenants still run.
func (s *Syncer) RunTick(ctx context.Context) TickResult {
	start := s.clock.Now()
	res := TickResult{Start: start}

	tenants, err := s.tenants.EligibleTenants(ctx)
	if err != nil {
		res.Errors = append(res.Errors, "list tenants: "+err.Error())
		s.metrics.SyncErrors.WithLabelValues("tenant").Inc()
		s.logger.Error("tenant listing failed", "error", err)
		res.Duration = s.clock.Now().Sub(start)
		return res
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.opts.TenantBatchSize)
	)
	for _, tenant := range tenants {
		wg.Add(1)
		go func(tenant domain.TenantConfig) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			ir, wr, perr := s.syncTenant(ctx, tenant)

			mu.Lock()
			defer mu.Unlock()
			res.Incident = append(res.Incident, ir)
			res.Weather = append(res.Weather, wr)
			if perr != "" {
				res.Errors = append(res.Errors, perr)
			}
		}(tenant)
	}
	wg.Wait()

	res.Duration = s.clock.Now().Sub(start)
	s.logger.Info("sync tick finished", "tenants", len(tenants),
		"duration", res.Duration, "errors", len(res.Errors))
	return res
}

func (s *Syncer) syncTenant(ctx context.Context, tenant domain.TenantConfig) (ir IncidentSyncResult, wr WeatherSyncResult, panicMsg string) {
	defer func() {
		if r := recover(); r != nil {
			panicMsg = "tenant " + tenant.ID + ": panic in sync"
			s.logger.Error("tenant sync panicked", "tenant", tenant.ID, "panic", r)
			s.metrics.SyncErrors.WithLabelValues("tenant").Inc()
		}
	}()
	ir = s.SyncTenantIncidents(ctx, tenant)
	wr = s.SyncTenantWeather(ctx, tenant)
	return ir, wr, ""
}
