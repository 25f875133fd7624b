package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linkkey/linkkey/internal/infrastructure/db"
	"github.com/linkkey/linkkey/internal/processing/analytics"
)

// AnalyticsRepository backs the analytics pipeline with one collection per
// aggregation. Upserts with $inc keep the counters atomic under concurrent
// visits; the unique indexes make the get-or-create races converge on a
// single document.
type AnalyticsRepository struct {
	links    *mongo.Collection
	ips      *mongo.Collection
	referers *mongo.Collection
	regions  *mongo.Collection
}

func NewAnalyticsRepository(m *db.Mongo) (*AnalyticsRepository, error) {
	repo := &AnalyticsRepository{
		links:    m.Collection("links"),
		ips:      m.Collection("link_ips"),
		referers: m.Collection("link_referers"),
		regions:  m.Collection("link_regions"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type indexSpec struct {
		coll *mongo.Collection
		keys bson.D
		name string
	}
	for _, spec := range []indexSpec{
		{repo.ips, bson.D{{Key: "key", Value: 1}, {Key: "address", Value: 1}}, "uniq_key_address"},
		{repo.referers, bson.D{{Key: "key", Value: 1}, {Key: "source", Value: 1}}, "uniq_key_source"},
		{repo.regions, bson.D{{Key: "key", Value: 1}, {Key: "countryCode", Value: 1}}, "uniq_key_country"},
	} {
		_, err := spec.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    spec.keys,
			Options: options.Index().SetUnique(true).SetName(spec.name),
		})
		if err != nil {
			return nil, err
		}
	}

	return repo, nil
}

func (r *AnalyticsRepository) IncrementTotalClicks(ctx context.Context, key string) error {
	_, err := r.links.UpdateOne(ctx, bson.M{"key": key}, bson.M{"$inc": bson.M{"totalClicks": 1}})
	return err
}

func (r *AnalyticsRepository) AddUniqueIP(ctx context.Context, key, address string) error {
	_, err := r.ips.UpdateOne(
		ctx,
		bson.M{"key": key, "address": address},
		bson.M{"$setOnInsert": bson.M{"firstSeen": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	// A duplicate key means the address is already in the set; unlike the
	// counter upserts there is nothing to retry.
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

func (r *AnalyticsRepository) UpsertReferer(ctx context.Context, key, source string, at time.Time) error {
	return retryOnDuplicateKey(ctx, func(ctx context.Context) error {
		_, err := r.referers.UpdateOne(
			ctx,
			bson.M{"key": key, "source": source},
			bson.M{
				"$inc": bson.M{"totalClicks": 1},
				"$set": bson.M{"lastVisited": at.UTC()},
			},
			options.Update().SetUpsert(true),
		)
		return err
	})
}

func (r *AnalyticsRepository) UpsertRegion(ctx context.Context, key string, country *analytics.Country, at time.Time) error {
	code, name := "", ""
	if country != nil {
		code = country.Code
		name = country.Name
	}

	return retryOnDuplicateKey(ctx, func(ctx context.Context) error {
		_, err := r.regions.UpdateOne(
			ctx,
			bson.M{"key": key, "countryCode": code},
			bson.M{
				"$inc":         bson.M{"totalClicks": 1},
				"$set":         bson.M{"lastVisited": at.UTC()},
				"$setOnInsert": bson.M{"countryName": name},
			},
			options.Update().SetUpsert(true),
		)
		return err
	})
}

// retryOnDuplicateKey re-runs an upsert once after a duplicate key error.
// Two first visits can race on the unique index: both miss the filter, one
// insert wins and the other fails. The losing upsert must run again so its
// increment lands on the document that now exists; swallowing the error
// would drop that visit from the counter.
func retryOnDuplicateKey(ctx context.Context, op func(context.Context) error) error {
	err := op(ctx)
	if mongo.IsDuplicateKeyError(err) {
		err = op(ctx)
	}
	return err
}

func (r *AnalyticsRepository) Summary(ctx context.Context, key string) (analytics.Summary, error) {
	out := analytics.Summary{
		Referers: []analytics.RefererStat{},
		Regions:  []analytics.RegionStat{},
	}

	uniques, err := r.ips.CountDocuments(ctx, bson.M{"key": key})
	if err != nil {
		return analytics.Summary{}, err
	}
	out.UniqueVisitors = uniques

	refCursor, err := r.referers.Find(
		ctx,
		bson.M{"key": key},
		options.Find().SetSort(bson.D{{Key: "totalClicks", Value: -1}, {Key: "source", Value: 1}}),
	)
	if err != nil {
		return analytics.Summary{}, err
	}
	defer refCursor.Close(ctx)
	for refCursor.Next(ctx) {
		var doc struct {
			Source      string    `bson:"source"`
			TotalClicks int64     `bson:"totalClicks"`
			LastVisited time.Time `bson:"lastVisited"`
		}
		if err := refCursor.Decode(&doc); err != nil {
			return analytics.Summary{}, err
		}
		out.Referers = append(out.Referers, analytics.RefererStat{
			Source:      doc.Source,
			TotalClicks: doc.TotalClicks,
			LastVisited: doc.LastVisited.UTC(),
		})
	}
	if err := refCursor.Err(); err != nil {
		return analytics.Summary{}, err
	}

	regCursor, err := r.regions.Find(
		ctx,
		bson.M{"key": key},
		options.Find().SetSort(bson.D{{Key: "totalClicks", Value: -1}, {Key: "countryCode", Value: 1}}),
	)
	if err != nil {
		return analytics.Summary{}, err
	}
	defer regCursor.Close(ctx)
	for regCursor.Next(ctx) {
		var doc struct {
			CountryName string    `bson:"countryName"`
			CountryCode string    `bson:"countryCode"`
			TotalClicks int64     `bson:"totalClicks"`
			LastVisited time.Time `bson:"lastVisited"`
		}
		if err := regCursor.Decode(&doc); err != nil {
			return analytics.Summary{}, err
		}
		out.Regions = append(out.Regions, analytics.RegionStat{
			CountryName: doc.CountryName,
			CountryCode: doc.CountryCode,
			TotalClicks: doc.TotalClicks,
			LastVisited: doc.LastVisited.UTC(),
		})
	}
	return out, regCursor.Err()
}
