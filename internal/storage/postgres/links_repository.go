package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/linkkey/linkkey/internal/infrastructure/db"
	"github.com/linkkey/linkkey/internal/processing/links"
)

type LinksRepository struct {
	db *db.Postgres
}

func NewLinksRepository(p *db.Postgres) (*LinksRepository, error) {
	if p == nil || p.Pool == nil {
		return nil, errors.New("postgres pool is nil")
	}
	return &LinksRepository{db: p}, nil
}

func (r *LinksRepository) Insert(ctx context.Context, link *links.Link) error {
	if link == nil {
		return errors.New("link is nil")
	}

	const q = `
		INSERT INTO links (key, destination, title, user_id, total_clicks, created_on, modified_on)
		VALUES (@key, @destination, @title, @user_id, @total_clicks, @created_on, @modified_on)`

	_, err := r.db.Pool.Exec(ctx, q, pgx.NamedArgs{
		"key":          link.Key,
		"destination":  link.Destination,
		"title":        link.Title,
		"user_id":      toNullableText(link.UserID),
		"total_clicks": link.TotalClicks,
		"created_on":   toTimestamptz(link.CreatedOn),
		"modified_on":  toTimestamptz(link.ModifiedOn),
	})
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return links.ErrKeyTaken
	}
	return err
}

func (r *LinksRepository) FindByKey(ctx context.Context, key string) (*links.Link, error) {
	const q = `
		SELECT key, destination, title, user_id, total_clicks, created_on, modified_on
		FROM links
		WHERE key = @key`

	row := r.db.Pool.QueryRow(ctx, q, pgx.NamedArgs{"key": key})

	link, err := scanLink(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, links.ErrNotFound
		}
		return nil, err
	}

	tags, err := r.listTags(ctx, key)
	if err != nil {
		return nil, err
	}
	link.Tags = tags
	return link, nil
}

func (r *LinksRepository) Update(ctx context.Context, link *links.Link) error {
	if link == nil {
		return errors.New("link is nil")
	}

	const q = `
		UPDATE links
		SET destination = @destination,
		    title = @title,
		    modified_on = @modified_on
		WHERE key = @key`

	tag, err := r.db.Pool.Exec(ctx, q, pgx.NamedArgs{
		"key":         link.Key,
		"destination": link.Destination,
		"title":       link.Title,
		"modified_on": toTimestamptz(link.ModifiedOn),
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return links.ErrNotFound
	}
	return nil
}

func (r *LinksRepository) DeleteByKey(ctx context.Context, key string) (bool, error) {
	const q = `DELETE FROM links WHERE key = @key`

	tag, err := r.db.Pool.Exec(ctx, q, pgx.NamedArgs{"key": key})
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *LinksRepository) listTags(ctx context.Context, key string) ([]string, error) {
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

func scanLink(row pgx.Row) (*links.Link, error) {
	var (
		out        links.Link
		userID     pgtype.Text
		createdOn  pgtype.Timestamptz
		modifiedOn pgtype.Timestamptz
	)
	if err := row.Scan(&out.Key, &out.Destination, &out.Title, &userID, &out.TotalClicks, &createdOn, &modifiedOn); err != nil {
		return nil, err
	}
	out.UserID = nullableTextValue(userID)
	out.CreatedOn = createdOn.Time.UTC()
	out.ModifiedOn = modifiedOn.Time.UTC()
	return &out, nil
}

func toNullableText(v string) pgtype.Text {
	v = strings.TrimSpace(v)
	if v == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{
		String: v,
		Valid:  true,
	}
}

func nullableTextValue(v pgtype.Text) string {
	if !v.Valid {
		return ""
	}
	return v.String
}

func toTimestamptz(v time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{
		Time:  v.UTC(),
		Valid: true,
	}
}
