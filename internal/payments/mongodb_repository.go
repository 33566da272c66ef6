package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository implements Repository on a MongoDB collection.
//
// First-success-wins is enforced with conditional updates rather than
// transactions: paid_at is only ever set through a filter requiring it to be
// absent, and MarkFailed filters out records already in success.
type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoRepository connects to MongoDB and prepares the payments collection.
func NewMongoRepository(ctx context.Context, uri, database, collection string) (*MongoRepository, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	repo := &MongoRepository{client: client, collection: coll}
	if err := repo.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return repo, nil
}

func (m *MongoRepository) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reference", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "email", Value: 1}}},
	}
	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create payment indexes: %w", err)
	}
	return nil
}

// mongoRecord is the stored document shape. Amount travels as a string to
// avoid lossy float round-trips through BSON.
type mongoRecord struct {
	Reference       string         `bson:"reference"`
	TransactionID   string         `bson:"transaction_id,omitempty"`
	Name            string         `bson:"name"`
	Email           string         `bson:"email"`
	Mobile          string         `bson:"mobile,omitempty"`
	Address         string         `bson:"address,omitempty"`
	Amount          string         `bson:"amount"`
	Currency        string         `bson:"currency"`
	Card            Card           `bson:"card,omitempty"`
	OfferType       string         `bson:"offer_type,omitempty"`
	OfferName       string         `bson:"offer_name,omitempty"`
	Source          string         `bson:"source"`
	Status          Status         `bson:"status"`
	Metadata        map[string]any `bson:"metadata,omitempty"`
	GatewayResponse map[string]any `bson:"gateway_response,omitempty"`
	CreatedAt       time.Time      `bson:"created_at"`
	UpdatedAt       time.Time      `bson:"updated_at"`
	PaidAt          *time.Time     `bson:"paid_at,omitempty"`
}

func toMongoRecord(rec Record) mongoRecord {
	return mongoRecord{
		Reference:       rec.Reference,
		TransactionID:   rec.TransactionID,
		Name:            rec.Name,
		Email:           rec.Email,
		Mobile:          rec.Mobile,
		Address:         rec.Address,
		Amount:          rec.Amount.String(),
		Currency:        rec.Currency,
		Card:            rec.Card,
		OfferType:       rec.OfferType,
		OfferName:       rec.OfferName,
		Source:          rec.Source,
		Status:          rec.Status,
		Metadata:        rec.Metadata,
		GatewayResponse: rec.GatewayResponse,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
		PaidAt:          rec.PaidAt,
	}
}

func (d mongoRecord) toRecord() Record {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		amount = decimal.Zero
	}
	return Record{
		Reference:       d.Reference,
		TransactionID:   d.TransactionID,
		Name:            d.Name,
		Email:           d.Email,
		Mobile:          d.Mobile,
		Address:         d.Address,
		Amount:          amount,
		Currency:        d.Currency,
		Card:            d.Card,
		OfferType:       d.OfferType,
		OfferName:       d.OfferName,
		Source:          d.Source,
		Status:          d.Status,
		Metadata:        d.Metadata,
		GatewayResponse: d.GatewayResponse,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		PaidAt:          d.PaidAt,
	}
}

func (m *MongoRepository) Create(ctx context.Context, params CreateParams) (Record, error) {
	now := time.Now().UTC()
	rec := Record{
		Reference: params.Reference,
		Name:      params.Name,
		Email:     params.Email,
		Mobile:    params.Mobile,
		Address:   params.Address,
		Amount:    params.Amount,
		Currency:  params.Currency,
		OfferType: params.OfferType,
		OfferName: params.OfferName,
		Source:    params.Source,
		Status:    StatusPending,
		Metadata:  params.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := m.collection.InsertOne(ctx, toMongoRecord(rec)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Record{}, ErrDuplicateReference
		}
		return Record{}, fmt.Errorf("insert payment: %w", err)
	}
	return rec, nil
}

func (m *MongoRepository) GetByReference(ctx context.Context, reference string) (Record, error) {
	var doc mongoRecord
	err := m.collection.FindOne(ctx, bson.M{"reference": reference}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("find payment: %w", err)
	}
	return doc.toRecord(), nil
}

func (m *MongoRepository) FindOrCreatePlaceholder(ctx context.Context, reference string, seed PlaceholderSeed) (Record, bool, error) {
	now := time.Now().UTC()
	source := seed.Source
	if source == "" {
		source = "black_friday"
	}

	// $setOnInsert with upsert makes this atomic against concurrent callers.
	update := bson.M{
		"$setOnInsert": toMongoRecord(Record{
			Reference: reference,
			Name:      seed.Name,
			Email:     seed.Email,
			Mobile:    seed.Mobile,
			Amount:    decimal.Zero,
			Currency:  "USD",
			Source:    source,
			Status:    StatusPending,
			Metadata:  map[string]any{"placeholder": true},
			CreatedAt: now,
			UpdatedAt: now,
		}),
	}

	result, err := m.collection.UpdateOne(ctx, bson.M{"reference": reference}, update, options.Update().SetUpsert(true))
	if err != nil {
		return Record{}, false, fmt.Errorf("upsert placeholder: %w", err)
	}
	created := result.UpsertedCount > 0

	rec, err := m.GetByReference(ctx, reference)
	return rec, created, err
}

func (m *MongoRepository) MarkSuccess(ctx context.Context, reference string, payload map[string]any) (Record, error) {
	current, err := m.GetByReference(ctx, reference)
	if err != nil {
		return Record{}, err
	}

	now := time.Now().UTC()
	current.applySuccess(payload, now)

	set := bson.M{
		"transaction_id":   current.TransactionID,
		"amount":           current.Amount.String(),
		"currency":         current.Currency,
		"card":             current.Card,
		"status":           StatusSuccess,
		"gateway_response": current.GatewayResponse,
		"email":            current.Email,
		"name":             current.Name,
		"updated_at":       now,
	}
	if _, err := m.collection.UpdateOne(ctx, bson.M{"reference": reference}, bson.M{"$set": set}); err != nil {
		return Record{}, fmt.Errorf("update payment success: %w", err)
	}

	// paid_at only through a guarded write, so a racing success keeps the
	// first timestamp.
	_, err = m.collection.UpdateOne(ctx,
		bson.M{"reference": reference, "paid_at": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"paid_at": now}})
	if err != nil {
		return Record{}, fmt.Errorf("set paid_at: %w", err)
	}

	return m.GetByReference(ctx, reference)
}

func (m *MongoRepository) MarkFailed(ctx context.Context, reference string, reason string) (Record, error) {
	current, err := m.GetByReference(ctx, reference)
	if err != nil {
		return Record{}, err
	}
	if current.Status == StatusSuccess {
		return current, ErrAlreadySucceeded
	}

	now := time.Now().UTC()
	current.applyFailure(reason, now)

	result, err := m.collection.UpdateOne(ctx,
		bson.M{"reference": reference, "status": bson.M{"$ne": StatusSuccess}},
		bson.M{"$set": bson.M{
			"status":     StatusFailed,
			"metadata":   current.Metadata,
			"updated_at": now,
		}})
	if err != nil {
		return Record{}, fmt.Errorf("update payment failed: %w", err)
	}

	rec, err := m.GetByReference(ctx, reference)
	if err != nil {
		return Record{}, err
	}
	// Zero matches means a success write won the race after our read.
	if result.MatchedCount == 0 {
		return rec, ErrAlreadySucceeded
	}
	return rec, nil
}

func (m *MongoRepository) CacheGatewayResponse(ctx context.Context, reference string, payload map[string]any) (Record, error) {
	if len(payload) == 0 {
		return m.GetByReference(ctx, reference)
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range payload {
		set["gateway_response."+k] = v
	}

	result, err := m.collection.UpdateOne(ctx, bson.M{"reference": reference}, bson.M{"$set": set})
	if err != nil {
		return Record{}, fmt.Errorf("cache gateway response: %w", err)
	}
	if result.MatchedCount == 0 {
		return Record{}, ErrNotFound
	}
	return m.GetByReference(ctx, reference)
}

func (m *MongoRepository) SetTransactionID(ctx context.Context, reference, transactionID string) error {
	_, err := m.collection.UpdateOne(ctx,
		bson.M{"reference": reference, "transaction_id": bson.M{"$in": bson.A{"", nil}}},
		bson.M{"$set": bson.M{"transaction_id": transactionID, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("set transaction id: %w", err)
	}
	return nil
}

func (m *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
