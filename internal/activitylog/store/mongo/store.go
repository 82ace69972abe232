package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"catalogue/internal/activitylog/models"
	"catalogue/pkg/platform/sentinel"
)

// Collection holds one document per activity-log entry.
const Collection = "activity_logs"

type document struct {
	ID            string             `bson:"_id"`
	EventType     string             `bson:"eventType"`
	LogCategory   string             `bson:"logCategory"`
	AudienceTypes []string           `bson:"audienceTypes"`
	Timestamp     time.Time          `bson:"timestamp"`
	ActorID       string             `bson:"actorId"`
	VersionID     string             `bson:"versionId"`
	VersionLabel  string             `bson:"versionLabel"`
	PlainText     string             `bson:"plainText"`
	HTML          string             `bson:"html"`
	DetailedText  string             `bson:"detailedText,omitempty"`
	DetailedHTML  string             `bson:"detailedHtml,omitempty"`
	AdminComment  string             `bson:"adminComment,omitempty"`
	FieldDiffs    []models.FieldDiff `bson:"fieldDiffs,omitempty"`
}

// MongoStore persists activity-log entries in a MongoDB collection.
type MongoStore struct {
	collection *mongo.Collection
}

func New(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(Collection)}
}

// EnsureIndexes creates the indexes backing Search.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "versionId", Value: 1},
				{Key: "logCategory", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "timestamp", Value: -1}},
		},
	}
	if _, err := s.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create activity log indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Search(ctx context.Context, q models.Query) ([]*models.EventRecord, error) {
	filter := bson.M{
		"versionId":     bson.M{"$in": q.VersionIDs},
		"logCategory":   string(q.LogCategory),
		"audienceTypes": string(q.AudienceType),
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find activity logs: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode activity logs: %w", err)
	}
	events := make([]*models.EventRecord, 0, len(docs))
	for _, d := range docs {
		events = append(events, d.toRecord())
	}
	return events, nil
}

func (s *MongoStore) Insert(ctx context.Context, e *models.EventRecord) error {
	if _, err := s.collection.InsertOne(ctx, fromRecord(e)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (*models.EventRecord, error) {
	var d document
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find activity log: %w", err)
	}
	return d.toRecord(), nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete activity log: %w", err)
	}
	if res.DeletedCount == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func fromRecord(e *models.EventRecord) document {
	audiences := make([]string, len(e.AudienceTypes))
	for i, a := range e.AudienceTypes {
		audiences[i] = string(a)
	}
	return document{
		ID:            e.ID,
		EventType:     string(e.EventType),
		LogCategory:   string(e.LogCategory),
		AudienceTypes: audiences,
		Timestamp:     e.Timestamp,
		ActorID:       e.ActorID,
		VersionID:     e.VersionID,
		VersionLabel:  e.VersionLabel,
		PlainText:     e.PlainText,
		HTML:          e.HTML,
		DetailedText:  e.DetailedText,
		DetailedHTML:  e.DetailedHTML,
		AdminComment:  e.AdminComment,
		FieldDiffs:    e.FieldDiffs,
	}
}

func (d document) toRecord() *models.EventRecord {
	audiences := make([]models.AudienceType, len(d.AudienceTypes))
	for i, a := range d.AudienceTypes {
		audiences[i] = models.AudienceType(a)
	}
	return &models.EventRecord{
		ID:            d.ID,
		EventType:     models.EventType(d.EventType),
		LogCategory:   models.LogCategory(d.LogCategory),
		AudienceTypes: audiences,
		Timestamp:     d.Timestamp.UTC(),
		ActorID:       d.ActorID,
		VersionID:     d.VersionID,
		VersionLabel:  d.VersionLabel,
		PlainText:     d.PlainText,
		HTML:          d.HTML,
		DetailedText:  d.DetailedText,
		DetailedHTML:  d.DetailedHTML,
		AdminComment:  d.AdminComment,
		FieldDiffs:    d.FieldDiffs,
	}
}
