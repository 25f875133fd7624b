package links

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config carries the service-level tuning knobs.
type Config struct {
	KeyLength     int
	MaxTags       int
	ServiceDomain string // destinations pointing back here are rejected
}

const DefaultMaxTags = 8

type Service struct {
	linkRepo LinkRepository
	tagRepo  TagRepository
	keygen   KeyGenerator

	keyLength     int
	maxTags       int
	serviceDomain string
	now           func() time.Time
}

func NewService(linkRepo LinkRepository, tagRepo TagRepository, keygen KeyGenerator, cfg Config) *Service {
	if cfg.KeyLength <= 0 {
		cfg.KeyLength = DefaultKeyLength
	}
	if cfg.MaxTags <= 0 {
		cfg.MaxTags = DefaultMaxTags
	}

	return &Service{
		linkRepo:      linkRepo,
		tagRepo:       tagRepo,
		keygen:        keygen,
		keyLength:     cfg.KeyLength,
		maxTags:       cfg.MaxTags,
		serviceDomain: strings.ToLower(strings.TrimSpace(cfg.ServiceDomain)),
		now:           time.Now,
	}
}

// CreateLink validates the input and persists a new Link. Custom keys and
// titles require an authenticated principal; without a custom key a random
// one is assigned via the collision-retry loop.
func (s *Service) CreateLink(ctx context.Context, in CreateLinkInput, principal Principal) (*Link, error) {
	dest, verr := s.validateDestination(in.Destination)
	if verr != nil {
		return nil, verr
	}

	customKey := ""
	if nk, err := NormalizeKey(in.CustomKey); err == nil {
		customKey = nk
	} else if errors.Is(err, ErrKeyInvalid) {
		return nil, newValidationError("key", "key may only contain letters, digits, and dashes")
	}
	// ErrKeyEmpty means no key was supplied; fall through to generation.

	if customKey != "" && !CanSetCustomKey(principal) {
		return nil, newValidationError("key", "custom keys require an authenticated user")
	}

	title := strings.TrimSpace(in.Title)
	if title != "" && !CanSetTitle(principal) {
		return nil, newValidationError("title", "titles require an authenticated user")
	}

	tags := NormalizeTagList(in.Tags)
	if len(tags) > s.maxTags {
		return nil, newValidationError("tags", fmt.Sprintf("at most %d tags are allowed", s.maxTags))
	}

	now := s.now().UTC()
	link := &Link{
		Destination: dest,
		Title:       title,
		Tags:        tags,
		CreatedOn:   now,
		ModifiedOn:  now,
	}
	if principal.Authenticated {
		link.UserID = principal.ID
	}

	if customKey != "" {
		link.Key = customKey
		if link.Title == "" {
			link.Title = defaultTitle(customKey)
		}
		if err := s.linkRepo.Insert(ctx, link); err != nil {
			if errors.Is(err, ErrKeyTaken) {
				return nil, newValidationError("key", "custom key is already taken")
			}
			return nil, err
		}
	} else {
		if err := s.insertWithGeneratedKey(ctx, link); err != nil {
			return nil, err
		}
	}

	if len(tags) > 0 {
		if err := s.tagRepo.ReplaceForLink(ctx, link.Key, tags); err != nil {
			return nil, err
		}
	}

	return link, nil
}

// insertWithGeneratedKey retries until the unique constraint accepts a key.
// The retry is not capped: the collision probability shrinks geometrically,
// and the context bounds the loop if storage misbehaves.
func (s *Service) insertWithGeneratedKey(ctx context.Context, link *Link) error {
	autoTitle := link.Title == ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		key, err := s.keygen.Generate(s.keyLength)
		if err != nil {
			return err
		}
		link.Key = key
		if autoTitle {
			link.Title = defaultTitle(key)
		}

		err = s.linkRepo.Insert(ctx, link)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrKeyTaken) {
			return err
		}
	}
}

// EditLink applies changes to an existing link. Only the owning principal
// may edit; anonymous-owned links cannot be edited through this path.
func (s *Service) EditLink(ctx context.Context, key string, changes EditLinkInput, principal Principal) (*Link, error) {
	link, err := s.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	if !principal.Authenticated {
		return nil, ErrUnauthenticated
	}
	if !CanEdit(principal, link) {
		return nil, ErrForbidden
	}

	if changes.Destination != nil {
		dest, verr := s.validateDestination(*changes.Destination)
		if verr != nil {
			return nil, verr
		}
		link.Destination = dest
	}

	if changes.Title != nil {
		title := strings.TrimSpace(*changes.Title)
		if title == "" {
			title = defaultTitle(link.Key)
		}
		link.Title = title
	}

	replaceTags := changes.Tags != nil
	var tags []string
	if replaceTags {
		tags = NormalizeTagList(changes.Tags)
		if len(tags) > s.maxTags {
			return nil, newValidationError("tags", fmt.Sprintf("at most %d tags are allowed", s.maxTags))
		}
	}

	link.ModifiedOn = s.now().UTC()
	if err := s.linkRepo.Update(ctx, link); err != nil {
		return nil, err
	}

	if replaceTags {
		if err := s.tagRepo.ReplaceForLink(ctx, link.Key, tags); err != nil {
			return nil, err
		}
		link.Tags = tags
	}

	return link, nil
}

// DeleteLink removes a link and, via storage-level cascade, its analytics
// rows. Same ownership rules as EditLink.
func (s *Service) DeleteLink(ctx context.Context, key string, principal Principal) error {
	link, err := s.Resolve(ctx, key)
	if err != nil {
		return err
	}

	if !principal.Authenticated {
		return ErrUnauthenticated
	}
	if !CanEdit(principal, link) {
		return ErrForbidden
	}

	if err := s.tagRepo.ReplaceForLink(ctx, link.Key, nil); err != nil {
		return err
	}

	deleted, err := s.linkRepo.DeleteByKey(ctx, link.Key)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// Resolve looks up the link for a key.
func (s *Service) Resolve(ctx context.Context, key string) (*Link, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrNotFound
	}
	return s.linkRepo.FindByKey(ctx, key)
}

func (s *Service) validateDestination(raw string) (string, *ValidationError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", newValidationError("destination", "destination is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", newValidationError("destination", "destination must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", newValidationError("destination", "destination must be an http or https URL")
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", newValidationError("destination", "destination must include a host")
	}
	if s.serviceDomain != "" && host == s.serviceDomain {
		return "", newValidationError("destination", "destination not allowed")
	}

	return raw, nil
}

func defaultTitle(key string) string {
	return fmt.Sprintf("Link - %s", key)
}
