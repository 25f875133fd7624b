package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linkkey/linkkey/internal/infrastructure/db"
	"github.com/linkkey/linkkey/internal/processing/links"
)

// TagsRepository keeps the tag set embedded on the link document and mirrors
// the distinct slugs into a tags collection so they can be enumerated and
// pruned once no link references them.
type TagsRepository struct {
	links *mongo.Collection
	tags  *mongo.Collection
}

func NewTagsRepository(m *db.Mongo) (*TagsRepository, error) {
	repo := &TagsRepository{
		links: m.Collection("links"),
		tags:  m.Collection("tags"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := repo.tags.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_name"),
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *TagsRepository) ReplaceForLink(ctx context.Context, key string, slugs []string) error {
	previous, err := r.ListForLink(ctx, key)
	if err != nil && !errors.Is(err, links.ErrNotFound) {
		return err
	}

	if slugs == nil {
		slugs = []string{}
	}

	res, err := r.links.UpdateOne(ctx, bson.M{"key": key}, bson.M{"$set": bson.M{"tags": slugs}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return links.ErrNotFound
	}

	now := time.Now().UTC()
	for _, slug := range slugs {
		_, err := r.tags.UpdateOne(
			ctx,
			bson.M{"name": slug},
			bson.M{"$setOnInsert": bson.M{"name": slug, "createdOn": now}},
			options.Update().SetUpsert(true),
		)
		if err != nil && !mongo.IsDuplicateKeyError(err) {
			return err
		}
	}

	return r.pruneOrphans(ctx, removedSlugs(previous, slugs))
}

func (r *TagsRepository) ListForLink(ctx context.Context, key string) ([]string, error) {
	var doc struct {
		Tags []string `bson:"tags"`
	}
	err := r.links.FindOne(
		ctx,
		bson.M{"key": key},
		options.FindOne().SetProjection(bson.M{"tags": 1}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, links.ErrNotFound
		}
		return nil, err
	}
	return doc.Tags, nil
}

func (r *TagsRepository) pruneOrphans(ctx context.Context, candidates []string) error {
	for _, slug := range candidates {
		count, err := r.links.CountDocuments(ctx, bson.M{"tags": slug})
		if err != nil {
			return err
		}
		if count == 0 {
			if _, err := r.tags.DeleteOne(ctx, bson.M{"name": slug}); err != nil {
				return err
			}
		}
	}
	return nil
}

func removedSlugs(previous, current []string) []string {
	kept := make(map[string]struct{}, len(current))
	for _, slug := range current {
		kept[slug] = struct{}{}
	}

	var removed []string
	for _, slug := range previous {
		if _, ok := kept[slug]; !ok {
			removed = append(removed, slug)
		}
	}
	return removed
}
