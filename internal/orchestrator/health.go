package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/adverant/nexus/ocr-engine/internal/ocr"
	"github.com/adverant/nexus/ocr-engine/internal/providers"
)

const pingTimeout = 5 * time.Second

// HealthReport aggregates the real providers; the fallback never counts
type HealthReport struct {
	Healthy            bool                                    `json:"healthy"`
	AvailableProviders []ocr.ProviderType                      `json:"availableProviders"`
	Issues             []string                                `json:"issues"`
	Providers          map[ocr.ProviderType]ocr.ProviderStatus `json:"providers"`
}

// HealthCheck is healthy iff at least one real provider is usable right now
func (o *Orchestrator) HealthCheck(ctx context.Context) HealthReport {
	report := HealthReport{
		AvailableProviders: make([]ocr.ProviderType, 0),
		Issues:             make([]string, 0),
		Providers:          make(map[ocr.ProviderType]ocr.ProviderStatus),
	}

	realProviders := o.registry.Real()
	if len(realProviders) == 0 {
		report.Issues = append(report.Issues, "No OCR providers configured")
		return report
	}

	rateLimited, quotaExceeded := 0, 0
	for _, p := range realProviders {
		status := p.Status()
		report.Providers[p.Type()] = status

		switch {
		case !status.Available:
			quotaExceeded++
			continue
		case status.RateLimited:
			rateLimited++
			continue
		}

		if o.cfg.PingOnHealthCheck {
			if pinger, ok := p.(providers.Pinger); ok {
				pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
				err := pinger.Ping(pingCtx)
				cancel()
				if err != nil {
					report.Issues = append(report.Issues, fmt.Sprintf("%s: health check failed: %v", p.Type(), err))
					continue
				}
			}
		}

		report.AvailableProviders = append(report.AvailableProviders, p.Type())
	}

	report.Healthy = len(report.AvailableProviders) > 0
	if report.Healthy {
		return report
	}

	switch {
	case rateLimited == len(realProviders):
		report.Issues = append(report.Issues, "All providers are rate limited")
	case quotaExceeded == len(realProviders):
		report.Issues = append(report.Issues, "All providers have exceeded their daily quota")
	default:
		report.Issues = append(report.Issues, fmt.Sprintf("%d of %d providers unavailable", len(realProviders)-len(report.AvailableProviders), len(realProviders)))
	}

	return report
}
