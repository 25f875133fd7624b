package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linkkey/linkkey/internal/infrastructure/db"
	"github.com/linkkey/linkkey/internal/processing/links"
)

type LinksRepository struct {
	coll *mongo.Collection
}

type linkDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Key         string             `bson:"key"`
	Destination string             `bson:"destination"`
	Title       string             `bson:"title,omitempty"`
	UserID      string             `bson:"userId,omitempty"`
	TotalClicks int64              `bson:"totalClicks,omitempty"`
	Tags        []string           `bson:"tags,omitempty"`
	CreatedOn   time.Time          `bson:"createdOn"`
	ModifiedOn  time.Time          `bson:"modifiedOn"`
}

func NewLinksRepository(m *db.Mongo) (*LinksRepository, error) {
	repo := &LinksRepository{coll: m.Collection("links")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := repo.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_key"),
		},
		{
			Keys:    bson.D{{Key: "createdOn", Value: -1}},
			Options: options.Index().SetName("createdOn_desc"),
		},
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *LinksRepository) Insert(ctx context.Context, link *links.Link) error {
	doc := linkDoc{
		Key:         link.Key,
		Destination: link.Destination,
		Title:       link.Title,
		UserID:      link.UserID,
		TotalClicks: link.TotalClicks,
		Tags:        link.Tags,
		CreatedOn:   link.CreatedOn.UTC(),
		ModifiedOn:  link.ModifiedOn.UTC(),
	}

	_, err := r.coll.InsertOne(ctx, doc)
	if err == nil {
		return nil
	}

	if mongo.IsDuplicateKeyError(err) {
		return links.ErrKeyTaken
	}

	return err
}

func (r *LinksRepository) FindByKey(ctx context.Context, key string) (*links.Link, error) {
	var doc linkDoc
	err := r.coll.FindOne(ctx, bson.M{"key": key}).Decode(&doc)
	if err == nil {
		return mapLinkDoc(doc), nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, links.ErrNotFound
	}

	return nil, err
}

func (r *LinksRepository) Update(ctx context.Context, link *links.Link) error {
	update := bson.M{
		"$set": bson.M{
			"destination": link.Destination,
			"title":       link.Title,
			"modifiedOn":  link.ModifiedOn.UTC(),
		},
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"key": link.Key}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return links.ErrNotFound
	}
	return nil
}

func (r *LinksRepository) DeleteByKey(ctx context.Context, key string) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"key": key})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func mapLinkDoc(doc linkDoc) *links.Link {
	return &links.Link{
		Key:         doc.Key,
		Destination: doc.Destination,
		Title:       doc.Title,
		UserID:      doc.UserID,
		TotalClicks: doc.TotalClicks,
		Tags:        doc.Tags,
		CreatedOn:   doc.CreatedOn,
		ModifiedOn:  doc.ModifiedOn,
	}
}
