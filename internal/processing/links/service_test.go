package links

import (
	"context"
	"errors"
	"testing"
)

// --- Hand-written mocks ---

type mockLinkRepo struct {
	insertFn    func(ctx context.Context, link *Link) error
	findByKeyFn func(ctx context.Context, key string) (*Link, error)
	updateFn    func(ctx context.Context, link *Link) error
	deleteFn    func(ctx context.Context, key string) (bool, error)
}

func (m *mockLinkRepo) Insert(ctx context.Context, link *Link) error {
	return m.insertFn(ctx, link)
}
func (m *mockLinkRepo) FindByKey(ctx context.Context, key string) (*Link, error) {
	return m.findByKeyFn(ctx, key)
}
func (m *mockLinkRepo) Update(ctx context.Context, link *Link) error {
	return m.updateFn(ctx, link)
}
func (m *mockLinkRepo) DeleteByKey(ctx context.Context, key string) (bool, error) {
	return m.deleteFn(ctx, key)
}

type mockTagRepo struct {
	replaceFn func(ctx context.Context, key string, slugs []string) error
	listFn    func(ctx context.Context, key string) ([]string, error)
}

func (m *mockTagRepo) ReplaceForLink(ctx context.Context, key string, slugs []string) error {
	if m.replaceFn == nil {
		return nil
	}
	return m.replaceFn(ctx, key, slugs)
}
func (m *mockTagRepo) ListForLink(ctx context.Context, key string) ([]string, error) {
	if m.listFn == nil {
		return nil, nil
	}
	return m.listFn(ctx, key)
}

type mockKeygen struct {
	keys []string
	idx  int
}

func (m *mockKeygen) Generate(int) (string, error) {
	if m.idx >= len(m.keys) {
		return "", errors.New("no more keys")
	}
	k := m.keys[m.idx]
	m.idx++
	return k, nil
}

func newTestService(repo *mockLinkRepo, tags *mockTagRepo, gen *mockKeygen) *Service {
	if tags == nil {
		tags = &mockTagRepo{}
	}
	if gen == nil {
		gen = &mockKeygen{keys: []string{"gen001"}}
	}
	return NewService(repo, tags, gen, Config{
		KeyLength:     6,
		MaxTags:       3,
		ServiceDomain: "lk.example",
	})
}

var authed = Principal{ID: "u1", Authenticated: true}

// --- CreateLink ---

func TestCreateLinkGeneratesKey(t *testing.T) {
	var inserted *Link
	repo := &mockLinkRepo{
		insertFn: func(_ context.Context, link *Link) error {
			inserted = link
			return nil
		},
	}

	svc := newTestService(repo, nil, &mockKeygen{keys: []string{"abc123"}})
	link, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Destination: "https://example.com/page",
	}, Anonymous())
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if link.Key != "abc123" {
		t.Errorf("Key = %q, want generated abc123", link.Key)
	}
	if link.Title != "Link - abc123" {
		t.Errorf("Title = %q, want default derived from key", link.Title)
	}
	if link.UserID != "" {
		t.Errorf("anonymous link should have no owner, got %q", link.UserID)
	}
	if inserted == nil {
		t.Fatal("Insert was never called")
	}
}

func TestCreateLinkRetriesOnKeyCollision(t *testing.T) {
	attempts := 0
	repo := &mockLinkRepo{
		insertFn: func(_ context.Context, link *Link) error {
			attempts++
			if link.Key == "taken1" || link.Key == "taken2" {
				return ErrKeyTaken
			}
			return nil
		},
	}

	svc := newTestService(repo, nil, &mockKeygen{keys: []string{"taken1", "taken2", "free99"}})
	link, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Destination: "https://example.com",
	}, Anonymous())
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Insert attempts = %d, want 3", attempts)
	}
	if link.Key != "free99" {
		t.Errorf("Key = %q, want free99", link.Key)
	}
	if link.Title != "Link - free99" {
		t.Errorf("Title = %q, default title must track the final key", link.Title)
	}
}

func TestCreateLinkAnonymousCustomKeyRejected(t *testing.T) {
	repo := &mockLinkRepo{
		insertFn: func(context.Context, *Link) error {
			t.Fatal("Insert should not be reached")
			return nil
		},
	}

	svc := newTestService(repo, nil, nil)
	_, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Destination: "https://example.com",
		CustomKey:   "my-key",
	}, Anonymous())

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if _, ok := verr.Fields["key"]; !ok {
		t.Errorf("ValidationError should target the key field, got %v", verr.Fields)
	}
}

func TestCreateLinkCustomKeyTaken(t *testing.T) {
	repo := &mockLinkRepo{
		insertFn: func(context.Context, *Link) error { return ErrKeyTaken },
	}

	svc := newTestService(repo, nil, nil)
	_, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Destination: "https://example.com",
		CustomKey:   "wanted",
	}, authed)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError for taken custom key", err)
	}
}

func TestCreateLinkInvalidCustomKey(t *testing.T) {
	repo := &mockLinkRepo{insertFn: func(context.Context, *Link) error { return nil }}

	svc := newTestService(repo, nil, nil)
	_, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Destination: "https://example.com",
		CustomKey:   "bad key!",
	}, authed)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError for invalid key", err)
	}
}

func TestCreateLinkDestinationValidation(t *testing.T) {
	repo := &mockLinkRepo{insertFn: func(context.Context, *Link) error { return nil }}
	svc := newTestService(repo, nil, nil)

	tests := []struct {
		name        string
		destination string
	}{
		{"empty", ""},
		{"not a url", "not a url"},
		{"ftp scheme", "ftp://example.com/file"},
		{"missing host", "https://"},
		{"own domain", "https://lk.example/abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateLink(context.Background(), CreateLinkInput{Destination: tt.destination}, authed)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if _, ok := verr.Fields["destination"]; !ok {
				t.Errorf("ValidationError should target destination, got %v", verr.Fields)
			}
		})
	}
}

func TestCreateLinkTagHandling(t *testing.T) {
	var replacedWith []string
	repo := &mockLinkRepo{insertFn: func(context.Context, *Link) error { return nil }}
	tags := &mockTagRepo{
		replaceFn: func(_ context.Context, _ string, slugs []string) error {
			replacedWith = slugs
			return nil
		},
	}

	svc := newTestService(repo, tags, &mockKeygen{keys: []string{"k1"}})
	link, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Destination: "https://example.com",
		Tags:        []string{"Go Lang", "bad!tag", "go-lang"},
	}, authed)
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}

	// Invalid entries are filtered, duplicates collapse.
	if len(replacedWith) != 1 || replacedWith[0] != "go-lang" {
		t.Errorf("tags persisted = %v, want [go-lang]", replacedWith)
	}
	if len(link.Tags) != 1 {
		t.Errorf("link.Tags = %v, want one normalized tag", link.Tags)
	}
}

func TestCreateLinkTooManyTags(t *testing.T) {
	repo := &mockLinkRepo{insertFn: func(context.Context, *Link) error { return nil }}

	svc := newTestService(repo, nil, nil)
	_, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Destination: "https://example.com",
		Tags:        []string{"a", "b", "c", "d"},
	}, authed)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError for too many tags", err)
	}
	if _, ok := verr.Fields["tags"]; !ok {
		t.Errorf("ValidationError should target tags, got %v", verr.Fields)
	}
}

// --- EditLink ---

func TestEditLinkPermissions(t *testing.T) {
	stored := &Link{Key: "k1", Destination: "https://old.example", Title: "Old", UserID: "u1"}
	repo := &mockLinkRepo{
		findByKeyFn: func(context.Context, string) (*Link, error) {
			cp := *stored
			return &cp, nil
		},
		updateFn: func(context.Context, *Link) error { return nil },
	}
	svc := newTestService(repo, nil, nil)

	newDest := "https://new.example/page"

	if _, err := svc.EditLink(context.Background(), "k1", EditLinkInput{Destination: &newDest}, Anonymous()); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("anonymous edit error = %v, want ErrUnauthenticated", err)
	}

	other := Principal{ID: "u2", Authenticated: true}
	if _, err := svc.EditLink(context.Background(), "k1", EditLinkInput{Destination: &newDest}, other); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-owner edit error = %v, want ErrForbidden", err)
	}

	link, err := svc.EditLink(context.Background(), "k1", EditLinkInput{Destination: &newDest}, authed)
	if err != nil {
		t.Fatalf("owner edit: %v", err)
	}
	if link.Destination != newDest {
		t.Errorf("Destination = %q, want %q", link.Destination, newDest)
	}
	if link.Title != "Old" {
		t.Errorf("Title changed without being in the patch: %q", link.Title)
	}
}

func TestEditLinkNotFound(t *testing.T) {
	repo := &mockLinkRepo{
		findByKeyFn: func(context.Context, string) (*Link, error) { return nil, ErrNotFound },
	}
	svc := newTestService(repo, nil, nil)

	if _, err := svc.EditLink(context.Background(), "ghost", EditLinkInput{}, authed); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestEditLinkClearsTitleToDefault(t *testing.T) {
	repo := &mockLinkRepo{
		findByKeyFn: func(context.Context, string) (*Link, error) {
			return &Link{Key: "k1", Destination: "https://example.com", Title: "Custom", UserID: "u1"}, nil
		},
		updateFn: func(context.Context, *Link) error { return nil },
	}
	svc := newTestService(repo, nil, nil)

	empty := ""
	link, err := svc.EditLink(context.Background(), "k1", EditLinkInput{Title: &empty}, authed)
	if err != nil {
		t.Fatalf("EditLink: %v", err)
	}
	if link.Title != "Link - k1" {
		t.Errorf("Title = %q, want default title", link.Title)
	}
}

func TestEditLinkTagReplacement(t *testing.T) {
	var replacedWith []string
	replaceCalled := false
	repo := &mockLinkRepo{
		findByKeyFn: func(context.Context, string) (*Link, error) {
			return &Link{Key: "k1", Destination: "https://example.com", UserID: "u1", Tags: []string{"old"}}, nil
		},
		updateFn: func(context.Context, *Link) error { return nil },
	}
	tags := &mockTagRepo{
		replaceFn: func(_ context.Context, _ string, slugs []string) error {
			replaceCalled = true
			replacedWith = slugs
			return nil
		},
	}
	svc := newTestService(repo, tags, nil)

	// Nil Tags leaves associations untouched.
	if _, err := svc.EditLink(context.Background(), "k1", EditLinkInput{}, authed); err != nil {
		t.Fatalf("EditLink: %v", err)
	}
	if replaceCalled {
		t.Error("ReplaceForLink called although Tags was nil")
	}

	// Empty (non-nil) Tags clears the set.
	link, err := svc.EditLink(context.Background(), "k1", EditLinkInput{Tags: []string{}}, authed)
	if err != nil {
		t.Fatalf("EditLink: %v", err)
	}
	if !replaceCalled {
		t.Fatal("ReplaceForLink not called for empty tag list")
	}
	if len(replacedWith) != 0 {
		t.Errorf("tags persisted = %v, want empty", replacedWith)
	}
	if len(link.Tags) != 0 {
		t.Errorf("link.Tags = %v, want cleared", link.Tags)
	}
}

// --- DeleteLink / Resolve ---

func TestDeleteLink(t *testing.T) {
	deleted := false
	tagsCleared := false
	repo := &mockLinkRepo{
		findByKeyFn: func(context.Context, string) (*Link, error) {
			return &Link{Key: "k1", UserID: "u1"}, nil
		},
		deleteFn: func(context.Context, string) (bool, error) {
			deleted = true
			return true, nil
		},
	}
	tags := &mockTagRepo{
		replaceFn: func(_ context.Context, _ string, slugs []string) error {
			if len(slugs) != 0 {
				t.Errorf("delete should clear tags, got %v", slugs)
			}
			tagsCleared = true
			return nil
		},
	}
	svc := newTestService(repo, tags, nil)

	if err := svc.DeleteLink(context.Background(), "k1", authed); err != nil {
		t.Fatalf("DeleteLink: %v", err)
	}
	if !deleted || !tagsCleared {
		t.Errorf("deleted=%v tagsCleared=%v, want both true", deleted, tagsCleared)
	}

	other := Principal{ID: "u2", Authenticated: true}
	if err := svc.DeleteLink(context.Background(), "k1", other); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-owner delete error = %v, want ErrForbidden", err)
	}
}

func TestResolveEmptyKey(t *testing.T) {
	repo := &mockLinkRepo{
		findByKeyFn: func(context.Context, string) (*Link, error) {
			t.Fatal("FindByKey should not be reached for empty key")
			return nil, nil
		},
	}
	svc := newTestService(repo, nil, nil)

	if _, err := svc.Resolve(context.Background(), "   "); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
