package service

import (
	"time"

	"cryptoverse/internal/infra"
	"cryptoverse/internal/query"
)

// queryHooks routes query client events into metrics
func queryHooks(m *infra.Metrics) query.Hooks {
	if m == nil {
		return query.Hooks{}
	}
	return query.Hooks{
		OnFetch: func(_ string, latency time.Duration, err error) {
			m.RecordFetch(latency.Nanoseconds())
			if err != nil {
				m.RecordFailure(err)
			}
		},
		OnShared: func(string) { m.RecordShared() },
		OnStale:  func(string) { m.RecordStale() },
	}
}
