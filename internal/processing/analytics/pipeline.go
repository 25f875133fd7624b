package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Visit is the per-redirect context handed to the pipeline by the
// transport layer (or replayed from the event stream).
type Visit struct {
	IP      string
	Referer string
	At      time.Time
}

// Pipeline applies the analytics side effects of a redirect: the aggregate
// click counter, the unique-IP set, the referer aggregation, and the region
// aggregation. Every step is attempted even when an earlier one fails; the
// joined error is for logging only and must never fail the redirect.
type Pipeline struct {
	clicks ClickRepository
	stats  StatsRepository
	geo    GeoResolver

	serviceDomain string
	now           func() time.Time
}

func NewPipeline(clicks ClickRepository, stats StatsRepository, geo GeoResolver, serviceDomain string) *Pipeline {
	return &Pipeline{
		clicks:        clicks,
		stats:         stats,
		geo:           geo,
		serviceDomain: strings.ToLower(strings.TrimSpace(serviceDomain)),
		now:           time.Now,
	}
}

// Record counts one visit against the link with the given key.
func (p *Pipeline) Record(ctx context.Context, key string, visit Visit) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}

	at := visit.At
	if at.IsZero() {
		at = p.now()
	}
	at = at.UTC()

	var errs []error

	if err := p.clicks.IncrementTotalClicks(ctx, key); err != nil {
		errs = append(errs, fmt.Errorf("increment total clicks: %w", err))
	}

	ip := strings.TrimSpace(visit.IP)
	if ip != "" {
		if err := p.clicks.AddUniqueIP(ctx, key, ip); err != nil {
			errs = append(errs, fmt.Errorf("add unique ip: %w", err))
		}
	}

	source := NormalizeRefererSource(visit.Referer, p.serviceDomain)
	if err := p.clicks.UpsertReferer(ctx, key, source, at); err != nil {
		errs = append(errs, fmt.Errorf("upsert referer: %w", err))
	}

	// Geo failures (missing, private, or unmapped addresses) are absorbed
	// here: the visit still lands in the null-country region bucket.
	var country *Country
	if ip != "" && p.geo != nil {
		if c, err := p.geo.Country(ctx, ip); err == nil {
			country = &c
		}
	}
	if err := p.clicks.UpsertRegion(ctx, key, country, at); err != nil {
		errs = append(errs, fmt.Errorf("upsert region: %w", err))
	}

	return errors.Join(errs...)
}

// Summary returns the aggregated analytics for one link.
func (p *Pipeline) Summary(ctx context.Context, key string) (Summary, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Summary{}, errors.New("key must not be empty")
	}
	if p.stats == nil {
		return Summary{}, errors.New("stats repository not configured")
	}
	return p.stats.Summary(ctx, key)
}
