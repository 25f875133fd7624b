package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/linkkey/linkkey/internal/infrastructure/db"
	"github.com/linkkey/linkkey/internal/processing/analytics"
)

// AnalyticsRepository covers both sides of the analytics pipeline: the
// per-visit writes and the aggregated reads behind the stats endpoint.
type AnalyticsRepository struct {
	db *db.Postgres
}

func NewAnalyticsRepository(p *db.Postgres) (*AnalyticsRepository, error) {
	if p == nil || p.Pool == nil {
		return nil, errors.New("postgres pool is nil")
	}
	return &AnalyticsRepository{db: p}, nil
}

func (r *AnalyticsRepository) IncrementTotalClicks(ctx context.Context, key string) error {
	const q = `UPDATE links SET total_clicks = total_clicks + 1 WHERE key = @key`

	_, err := r.db.Pool.Exec(ctx, q, pgx.NamedArgs{"key": key})
	return err
}

func (r *AnalyticsRepository) AddUniqueIP(ctx context.Context, key, address string) error {
	const q = `
		INSERT INTO link_ips (link_key, address, first_seen)
		VALUES (@key, @address, now())
		ON CONFLICT (link_key, address) DO NOTHING`

	_, err := r.db.Pool.Exec(ctx, q, pgx.NamedArgs{"key": key, "address": address})
	return err
}

func (r *AnalyticsRepository) UpsertReferer(ctx context.Context, key, source string, at time.Time) error {
	const q = `
		INSERT INTO link_referers (link_key, source, total_clicks, last_visited)
		VALUES (@key, @source, 1, @at)
		ON CONFLICT (link_key, source) DO UPDATE
		SET total_clicks = link_referers.total_clicks + 1,
		    last_visited = EXCLUDED.last_visited`

	_, err := r.db.Pool.Exec(ctx, q, pgx.NamedArgs{
		"key":    key,
		"source": source,
		"at":     toTimestamptz(at),
	})
	return err
}

func (r *AnalyticsRepository) UpsertRegion(ctx context.Context, key string, country *analytics.Country, at time.Time) error {
	var countryID pgtype.Int8
	if country != nil {
		const upsertCountry = `
			INSERT INTO countries (name, code)
			VALUES (@name, @code)
			ON CONFLICT (code) DO UPDATE SET code = EXCLUDED.code
			RETURNING id`

		var id int64
		err := r.db.Pool.QueryRow(ctx, upsertCountry, pgx.NamedArgs{
			"name": country.Name,
			"code": country.Code,
		}).Scan(&id)
		if err != nil {
			return err
		}
		countryID = pgtype.Int8{Int64: id, Valid: true}
	}

	// The unique index on (link_key, country_id) treats NULLs as equal, so
	// unresolved visits all land in one null-country bucket per link.
	const q = `
		INSERT INTO link_regions (link_key, country_id, total_clicks, last_visited)
		VALUES (@key, @country_id, 1, @at)
		ON CONFLICT (link_key, country_id) DO UPDATE
		SET total_clicks = link_regions.total_clicks + 1,
		    last_visited = EXCLUDED.last_visited`

	_, err := r.db.Pool.Exec(ctx, q, pgx.NamedArgs{
		"key":        key,
		"country_id": countryID,
		"at":         toTimestamptz(at),
	})
	return err
}

func (r *AnalyticsRepository) Summary(ctx context.Context, key string) (analytics.Summary, error) {
	out := analytics.Summary{
		Referers: []analytics.RefererStat{},
		Regions:  []analytics.RegionStat{},
	}

	const countIPs = `SELECT count(*) FROM link_ips WHERE link_key = @key`
	if err := r.db.Pool.QueryRow(ctx, countIPs, pgx.NamedArgs{"key": key}).Scan(&out.UniqueVisitors); err != nil {
		return analytics.Summary{}, err
	}

	const listReferers = `
		SELECT source, total_clicks, last_visited
		FROM link_referers
		WHERE link_key = @key
		ORDER BY total_clicks DESC, source`

	rows, err := r.db.Pool.Query(ctx, listReferers, pgx.NamedArgs{"key": key})
	if err != nil {
		return analytics.Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			stat analytics.RefererStat
			at   pgtype.Timestamptz
		)
		if err := rows.Scan(&stat.Source, &stat.TotalClicks, &at); err != nil {
			return analytics.Summary{}, err
		}
		stat.LastVisited = at.Time.UTC()
		out.Referers = append(out.Referers, stat)
	}
	if err := rows.Err(); err != nil {
		return analytics.Summary{}, err
	}

	const listRegions = `
		SELECT COALESCE(c.name, ''), COALESCE(c.code, ''), lr.total_clicks, lr.last_visited
		FROM link_regions lr
		LEFT JOIN countries c ON c.id = lr.country_id
		WHERE lr.link_key = @key
		ORDER BY lr.total_clicks DESC, c.code NULLS LAST`

	regionRows, err := r.db.Pool.Query(ctx, listRegions, pgx.NamedArgs{"key": key})
	if err != nil {
		return analytics.Summary{}, err
	}
	defer regionRows.Close()
	for regionRows.Next() {
		var (
			stat analytics.RegionStat
			at   pgtype.Timestamptz
		)
		if err := regionRows.Scan(&stat.CountryName, &stat.CountryCode, &stat.TotalClicks, &at); err != nil {
			return analytics.Summary{}, err
		}
		stat.LastVisited = at.Time.UTC()
		out.Regions = append(out.Regions, stat)
	}
	return out, regionRows.Err()
}
