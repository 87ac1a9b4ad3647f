package locstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// locationDocument is the MongoDB representation of a Location.
type locationDocument struct {
	ID        string `bson:"_id"`
	Name      string `bson:"name"`
	Rate      int    `bson:"rate"`
	Geo       Geo    `bson:"geo"`
	CreatedAt int64  `bson:"createdAt"`
	UpdatedAt int64  `bson:"updatedAt"`
}

func toDocument(l Location) locationDocument {
	return locationDocument{ID: l.ID, Name: l.Name, Rate: l.Rate, Geo: l.Geo, CreatedAt: l.CreatedAt, UpdatedAt: l.UpdatedAt}
}

func (d locationDocument) location() Location {
	return Location{ID: d.ID, Name: d.Name, Rate: d.Rate, Geo: d.Geo, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

// MongoStore persists locations in a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

var _ Store = (*MongoStore)(nil)

// OpenMongo connects to uri and uses database/collection for storage.
func OpenMongo(ctx context.Context, uri, database, collection string, opts ...Option) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	o := buildOptions(opts)
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		now:        o.now,
	}, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Create(ctx context.Context, loc Location) (Location, error) {
	if err := loc.Validate(); err != nil {
		return Location{}, err
	}
	loc.ID = uuid.NewString()
	loc.CreatedAt = s.now().UnixMilli()
	loc.UpdatedAt = loc.CreatedAt
	if _, err := s.collection.InsertOne(ctx, toDocument(loc)); err != nil {
		return Location{}, fmt.Errorf("insert location: %w", err)
	}
	return loc, nil
}

func (s *MongoStore) GetByID(ctx context.Context, id string) (Location, error) {
	var doc locationDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Location{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Location{}, fmt.Errorf("get location %s: %w", id, err)
	}
	return doc.location(), nil
}

func (s *MongoStore) Update(ctx context.Context, loc Location) (Location, error) {
	if err := loc.Validate(); err != nil {
		return Location{}, err
	}
	prev, err := s.GetByID(ctx, loc.ID)
	if err != nil {
		return Location{}, err
	}
	prev.Name = loc.Name
	prev.Rate = loc.Rate
	prev.UpdatedAt = editStamp(s.now(), prev.CreatedAt)
	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": prev.ID}, bson.M{"$set": bson.M{
		"name":      prev.Name,
		"rate":      prev.Rate,
		"updatedAt": prev.UpdatedAt,
	}})
	if err != nil {
		return Location{}, fmt.Errorf("update location %s: %w", loc.ID, err)
	}
	if res.MatchedCount == 0 {
		return Location{}, fmt.Errorf("%w: %s", ErrNotFound, loc.ID)
	}
	return prev, nil
}

func (s *MongoStore) Remove(ctx context.Context, id string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete location %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *MongoStore) Query(ctx context.Context, f Filter, srt Sort) ([]Location, error) {
	cursor, err := s.collection.Find(ctx, mongoFilter(f), options.Find().SetSort(mongoSort(srt)))
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer cursor.Close(ctx)

	locs := make([]Location, 0)
	for cursor.Next(ctx) {
		var doc locationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		locs = append(locs, doc.location())
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return locs, nil
}

func (s *MongoStore) CountByRating(ctx context.Context) (Tally, error) {
	t := NewTally(BucketHigh, BucketMedium, BucketLow)
	ranges := []struct {
		label string
		cond  bson.M
	}{
		{BucketHigh, bson.M{"$gt": 4}},
		{BucketMedium, bson.M{"$gte": 3, "$lte": 4}},
		{BucketLow, bson.M{"$lt": 3}},
	}
	for _, r := range ranges {
		n, err := s.collection.CountDocuments(ctx, bson.M{"rate": r.cond})
		if err != nil {
			return Tally{}, fmt.Errorf("count by rating: %w", err)
		}
		t.Add(r.label, int(n))
	}
	return t, nil
}

func (s *MongoStore) CountByRecency(ctx context.Context) (Tally, error) {
	locs, err := s.Query(ctx, Filter{}, Sort{})
	if err != nil {
		return Tally{}, fmt.Errorf("count by recency: %w", err)
	}
	return RecencyTally(locs, s.now()), nil
}

func mongoFilter(f Filter) bson.M {
	filter := bson.M{}
	if f.MinRate > 0 {
		filter["rate"] = bson.M{"$gte": f.MinRate}
	}
	if f.Text != "" {
		pattern := regexp.QuoteMeta(f.Text)
		filter["$or"] = []bson.M{
			{"name": bson.M{"$regex": pattern, "$options": "i"}},
			{"geo.address": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}
	return filter
}

var mongoSortKeys = map[SortField]string{
	SortName:      "name",
	SortRate:      "rate",
	SortCreatedAt: "createdAt",
	SortUpdatedAt: "updatedAt",
}

func mongoSort(s Sort) bson.D {
	key, ok := mongoSortKeys[s.Field]
	if !ok {
		return bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}
	}
	dir := 1
	if s.Descending() {
		dir = -1
	}
	return bson.D{{Key: key, Value: dir}, {Key: "_id", Value: 1}}
}
