package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/linkkey/linkkey/internal/infrastructure/db"
)

type TagsRepository struct {
	db *db.Postgres
}

func NewTagsRepository(p *db.Postgres) (*TagsRepository, error) {
	if p == nil || p.Pool == nil {
		return nil, errors.New("postgres pool is nil")
	}
	return &TagsRepository{db: p}, nil
}

// ReplaceForLink swaps the link's tag set in one transaction: get-or-create
// each slug, rewrite the join rows, then prune the tags this link dropped if
// no other link still references them. A concurrent replace can re-adopt a
// tag we are pruning and fail with a foreign key violation, so the whole
// transaction is retried once.
func (r *TagsRepository) ReplaceForLink(ctx context.Context, key string, slugs []string) error {
	err := r.replaceForLink(ctx, key, slugs)
	if isForeignKeyViolation(err) {
		err = r.replaceForLink(ctx, key, slugs)
	}
	return err
}

func (r *TagsRepository) replaceForLink(ctx context.Context, key string, slugs []string) error {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const listPrevious = `
		SELECT t.name
		FROM tags t
		JOIN link_tags lt ON lt.tag_id = t.id
		WHERE lt.link_key = @key`

	rows, err := tx.Query(ctx, listPrevious, pgx.NamedArgs{"key": key})
	if err != nil {
		return err
	}
	var previous []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		previous = append(previous, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	// The DO UPDATE SET trick forces the RETURNING clause to fire even when
	// the conflict handler skips the insert; plain DO NOTHING returns no row
	// for an existing tag.
	const upsertTag = `
		INSERT INTO tags (name)
		VALUES (@name)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`

	tagIDs := make([]int64, 0, len(slugs))
	for _, slug := range slugs {
		var id int64
		if err := tx.QueryRow(ctx, upsertTag, pgx.NamedArgs{"name": slug}).Scan(&id); err != nil {
			return err
		}
		tagIDs = append(tagIDs, id)
	}

	const clearJoin = `DELETE FROM link_tags WHERE link_key = @key`
	if _, err := tx.Exec(ctx, clearJoin, pgx.NamedArgs{"key": key}); err != nil {
		return err
	}

	const insertJoin = `
		INSERT INTO link_tags (link_key, tag_id)
		VALUES (@key, @tag_id)
		ON CONFLICT (link_key, tag_id) DO NOTHING`
	for _, id := range tagIDs {
		if _, err := tx.Exec(ctx, insertJoin, pgx.NamedArgs{"key": key, "tag_id": id}); err != nil {
			return err
		}
	}

	if removed := removedTagNames(previous, slugs); len(removed) > 0 {
		const pruneRemoved = `
			DELETE FROM tags t
			WHERE t.name = ANY(@names)
			  AND NOT EXISTS (SELECT 1 FROM link_tags lt WHERE lt.tag_id = t.id)`
		if _, err := tx.Exec(ctx, pruneRemoved, pgx.NamedArgs{"names": removed}); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *TagsRepository) ListForLink(ctx context.Context, key string) ([]string, error) {
	const q = `
		SELECT t.name
		FROM tags t
		JOIN link_tags lt ON lt.tag_id = t.id
		WHERE lt.link_key = @key
		ORDER BY t.name`

	rows, err := r.db.Pool.Query(ctx, q, pgx.NamedArgs{"key": key})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func removedTagNames(previous, current []string) []string {
	kept := make(map[string]struct{}, len(current))
	for _, name := range current {
		kept[name] = struct{}{}
	}

	var removed []string
	for _, name := range previous {
		if _, ok := kept[name]; !ok {
			removed = append(removed, name)
		}
	}
	return removed
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
