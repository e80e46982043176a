package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/repository"
	"github.com/eslsoft/chordnet/pkg/filterexpr"
)

// progressDocument is the stored shape of a record. The id is
// "<item_type>:<item_id>". Mongo keeps timestamps at millisecond precision.
type progressDocument struct {
	ID                    string     `bson:"_id"`
	ItemType              string     `bson:"item_type"`
	ItemID                string     `bson:"item_id"`
	Repetitions           int        `bson:"repetitions"`
	EaseFactor            float64    `bson:"ease_factor"`
	IntervalDays          float64    `bson:"interval_days"`
	NextReviewDate        time.Time  `bson:"next_review_date"`
	TotalAttempts         int        `bson:"total_attempts"`
	CorrectAttempts       int        `bson:"correct_attempts"`
	AverageResponseTimeMs float64    `bson:"average_response_time_ms"`
	LastQuality           int        `bson:"last_quality"`
	LastAttemptDate       *time.Time `bson:"last_attempt_date,omitempty"`
	CreatedAt             time.Time  `bson:"created_at"`
	UpdatedAt             time.Time  `bson:"updated_at"`
}

// MongoProgressRepository stores one document per record.
type MongoProgressRepository struct {
	collection *mongo.Collection
}

// NewMongoProgressRepository uses the named collection of database.
func NewMongoProgressRepository(database *mongo.Database, collection string) *MongoProgressRepository {
	return &MongoProgressRepository{collection: database.Collection(collection)}
}

// EnsureIndexes creates the indexes listings and due queries rely on.
func (r *MongoProgressRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "item_type", Value: 1}, {Key: "item_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "next_review_date", Value: 1}, {Key: "item_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "item_type", Value: 1}, {Key: "next_review_date", Value: 1}},
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create progress indexes: %w", err)
	}
	return nil
}

func (r *MongoProgressRepository) Get(ctx context.Context, key entity.ItemKey) (*entity.ProgressRecord, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	key.ID = entity.NormalizeItemID(key.ID)

	var doc progressDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": key.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, entity.ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress %s: %w", key, err)
	}
	return doc.toEntity(), nil
}

func (r *MongoProgressRepository) Save(ctx context.Context, record *entity.ProgressRecord) error {
	if record == nil {
		return entity.ErrInvalidItemID
	}
	if err := record.Key().Validate(); err != nil {
		return err
	}
	doc := newProgressDocument(record)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save progress %s: %w", record.Key(), err)
	}
	return nil
}

func (r *MongoProgressRepository) List(ctx context.Context, query *repository.ListProgressQuery) ([]entity.ProgressRecord, int64, error) {
	if query == nil {
		query = &repository.ListProgressQuery{}
	}
	preds, err := filterexpr.Parse(query.GetFilter(), listProgressSchema)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: filter: %s", entity.ErrUnsupportedQuery, err.Error())
	}
	order, err := filterexpr.ParseOrder(query.GetOrderBy(), listProgressSchema.Order)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: order_by: %s", entity.ErrUnsupportedQuery, err.Error())
	}
	query.Pagination.Normalize(defaultPageSize, maxPageSize)

	filter := mongoFilter(query.ItemType, preds)
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count progress: %w", err)
	}

	findOpts := options.Find().
		SetSort(mongoSort(order)).
		SetSkip(int64(query.Offset())).
		SetLimit(int64(query.PageSize))
	records, err := r.find(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("list progress: %w", err)
	}
	return records, total, nil
}

func (r *MongoProgressRepository) ListDue(ctx context.Context, itemType entity.ItemType, now time.Time, limit int) ([]entity.ProgressRecord, error) {
	filter := bson.M{"next_review_date": bson.M{"$lte": now.UTC()}}
	if itemType != entity.ItemTypeUnspecified {
		filter["item_type"] = string(itemType)
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "next_review_date", Value: 1}, {Key: "item_id", Value: 1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	records, err := r.find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("list due progress: %w", err)
	}
	return records, nil
}

func (r *MongoProgressRepository) ListByType(ctx context.Context, itemType entity.ItemType) ([]entity.ProgressRecord, error) {
	filter := bson.M{}
	if itemType != entity.ItemTypeUnspecified {
		filter["item_type"] = string(itemType)
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "item_type", Value: 1}, {Key: "item_id", Value: 1}})
	records, err := r.find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("list progress by type: %w", err)
	}
	return records, nil
}

func (r *MongoProgressRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]entity.ProgressRecord, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []progressDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return lo.Map(docs, func(doc progressDocument, _ int) entity.ProgressRecord {
		return *doc.toEntity()
	}), nil
}

// mongoFilter translates validated predicates into a query document. Each
// predicate becomes its own clause so repeated fields all apply.
func mongoFilter(itemType entity.ItemType, preds []filterexpr.Predicate) bson.M {
	var clauses []bson.M
	if itemType != entity.ItemTypeUnspecified {
		clauses = append(clauses, bson.M{"item_type": string(itemType)})
	}
	for _, p := range preds {
		value := p.Value
		if ts, ok := value.(time.Time); ok {
			value = ts.UTC()
		}
		var op string
		switch p.Op {
		case filterexpr.OpEQ:
			op = "$eq"
		case filterexpr.OpGTE:
			op = "$gte"
		case filterexpr.OpLTE:
			op = "$lte"
		case filterexpr.OpIN:
			op = "$in"
		case filterexpr.OpSW:
			op = "$regex"
			value = bson.Regex{Pattern: "^" + regexp.QuoteMeta(value.(string))}
		default:
			continue
		}
		clauses = append(clauses, bson.M{p.Field: bson.M{op: value}})
	}
	switch len(clauses) {
	case 0:
		return bson.M{}
	case 1:
		return clauses[0]
	default:
		return bson.M{"$and": clauses}
	}
}

func mongoSort(order []filterexpr.OrderTerm) bson.D {
	sort := make(bson.D, 0, len(order))
	for _, term := range order {
		dir := 1
		if term.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: term.Field, Value: dir})
	}
	return sort
}

func newProgressDocument(rec *entity.ProgressRecord) progressDocument {
	id := entity.NormalizeItemID(rec.ItemID)
	doc := progressDocument{
		ID:                    entity.ItemKey{ID: id, Type: rec.ItemType}.String(),
		ItemType:              string(rec.ItemType),
		ItemID:                id,
		Repetitions:           rec.Repetitions,
		EaseFactor:            rec.EaseFactor,
		IntervalDays:          rec.IntervalDays,
		NextReviewDate:        rec.NextReviewDate.UTC(),
		TotalAttempts:         rec.TotalAttempts,
		CorrectAttempts:       rec.CorrectAttempts,
		AverageResponseTimeMs: rec.AverageResponseTimeMs,
		LastQuality:           rec.LastQuality,
		CreatedAt:             rec.CreatedAt.UTC(),
		UpdatedAt:             rec.UpdatedAt.UTC(),
	}
	if rec.LastAttemptDate != nil {
		last := rec.LastAttemptDate.UTC()
		doc.LastAttemptDate = &last
	}
	return doc
}

func (doc progressDocument) toEntity() *entity.ProgressRecord {
	rec := &entity.ProgressRecord{
		ItemID:                doc.ItemID,
		ItemType:              entity.ItemType(doc.ItemType),
		Repetitions:           doc.Repetitions,
		EaseFactor:            doc.EaseFactor,
		IntervalDays:          doc.IntervalDays,
		NextReviewDate:        doc.NextReviewDate.UTC(),
		TotalAttempts:         doc.TotalAttempts,
		CorrectAttempts:       doc.CorrectAttempts,
		AverageResponseTimeMs: doc.AverageResponseTimeMs,
		LastQuality:           doc.LastQuality,
		CreatedAt:             doc.CreatedAt.UTC(),
		UpdatedAt:             doc.UpdatedAt.UTC(),
	}
	if doc.LastAttemptDate != nil {
		last := doc.LastAttemptDate.UTC()
		rec.LastAttemptDate = &last
	}
	return rec
}
