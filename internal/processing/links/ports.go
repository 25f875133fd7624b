package links

import "context"

// LinkRepository persists Link entities. The storage layer owns the unique
// constraint on key: Insert must report ErrKeyTaken on a conflict so the
// Service can retry with a fresh key instead of pre-checking existence.
type LinkRepository interface {
	Insert(ctx context.Context, link *Link) error
	FindByKey(ctx context.Context, key string) (*Link, error)
	Update(ctx context.Context, link *Link) error
	DeleteByKey(ctx context.Context, key string) (bool, error)
}

// TagRepository owns tag association. ReplaceForLink fully replaces the
// link's tag set (get-or-create each slug, clear prior associations) and
// prunes any tag left with zero link references.
type TagRepository interface {
	ReplaceForLink(ctx context.Context, key string, slugs []string) error
	ListForLink(ctx context.Context, key string) ([]string, error)
}

// KeyGenerator produces candidate keys for the collision-retry loop.
type KeyGenerator interface {
	Generate(length int) (string, error)
}
