// Package mongodb implements the storage adapter contract on MongoDB. It is
// the change-feed-capable backend: subscriptions ride on collection change
// streams with pre/post images, so subscribers see both sides of every
// mutation.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"docstore-gateway/internal/gateway/adapter/persistence/provision"
	"docstore-gateway/internal/gateway/domain/model"
	"docstore-gateway/internal/gateway/domain/repository"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Adapter implements repository.StorageAdapter on a MongoDB deployment.
// Databases and collections map 1:1 onto MongoDB databases and collections;
// document ids live in _id.
type Adapter struct {
	client      *mongo.Client
	log         *zap.Logger
	provisioner *provision.Registry

	mu      sync.Mutex
	streams map[string]context.CancelFunc
}

// New wraps an already constructed mongo client.
func New(client *mongo.Client, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		client:      client,
		log:         log,
		provisioner: provision.NewRegistry(),
		streams:     make(map[string]context.CancelFunc),
	}
}

var _ repository.StorageAdapter = (*Adapter)(nil)

// Connect verifies the deployment is reachable.
func (a *Adapter) Connect(ctx context.Context) error {
	return a.client.Ping(ctx, nil)
}

// Close cancels every live change stream.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, cancel := range a.streams {
		cancel()
		delete(a.streams, id)
	}
}

func (a *Adapter) ReadDocument(ctx context.Context, ref model.DocumentRef) (map[string]interface{}, error) {
	var doc bson.M
	err := a.collection(ref.Collection).FindOne(ctx, bson.M{"_id": ref.ID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toRecord(doc), nil
}

func (a *Adapter) ReadCollection(ctx context.Context, ref model.CollectionRef) ([]map[string]interface{}, error) {
	findOpts := options.Find()
	if len(ref.Query.OrderBy) > 0 {
		sortDoc := bson.D{}
		for _, order := range ref.Query.OrderBy {
			direction := 1
			if order.Direction == model.Descending {
				direction = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: order.Field, Value: direction})
		}
		findOpts.SetSort(sortDoc)
	}
	if ref.Query.Limit > 0 {
		findOpts.SetLimit(int64(ref.Query.Limit))
	}

	cursor, err := a.collection(ref).Find(ctx, translateWhere(ref.Query.Where), findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []map[string]interface{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		rows = append(rows, toRecord(doc))
	}
	return rows, cursor.Err()
}

func (a *Adapter) CreateDocument(ctx context.Context, ref model.CollectionRef, data map[string]interface{}) (map[string]interface{}, error) {
	if err := a.ensureCollection(ctx, ref); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	doc := bson.M{}
	for key, value := range data {
		doc[key] = value
	}
	if explicit, ok := doc["id"].(string); ok && explicit != "" {
		id = explicit
	}
	delete(doc, "id")
	doc["_id"] = id

	if _, err := a.collection(ref).InsertOne(ctx, doc); err != nil {
		return nil, err
	}
	return toRecord(doc), nil
}

func (a *Adapter) UpdateDocument(ctx context.Context, ref model.DocumentRef, data map[string]interface{}, opts model.WriteOptions) (map[string]interface{}, error) {
	fields := bson.M{}
	for key, value := range data {
		if key == "id" {
			continue
		}
		fields[key] = value
	}

	findOpts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var update interface{} = bson.M{"$set": fields}
	if opts.Replace {
		var updated bson.M
		err := a.collection(ref.Collection).
			FindOneAndReplace(ctx, bson.M{"_id": ref.ID}, fields, options.FindOneAndReplace().SetReturnDocument(options.After)).
			Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		updated["_id"] = ref.ID
		return toRecord(updated), nil
	}

	var updated bson.M
	err := a.collection(ref.Collection).
		FindOneAndUpdate(ctx, bson.M{"_id": ref.ID}, update, findOpts).
		Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toRecord(updated), nil
}

func (a *Adapter) DeleteDocument(ctx context.Context, ref model.DocumentRef) (map[string]interface{}, error) {
	var deleted bson.M
	err := a.collection(ref.Collection).FindOneAndDelete(ctx, bson.M{"_id": ref.ID}).Decode(&deleted)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toRecord(deleted), nil
}

func (a *Adapter) SubscribeDocument(ctx context.Context, subscriptionID string, ref model.DocumentRef, handler repository.ChangeHandler) error {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"documentKey._id": ref.ID}}},
	}
	return a.watch(ctx, subscriptionID, ref.Collection, pipeline, handler)
}

func (a *Adapter) SubscribeCollection(ctx context.Context, subscriptionID string, ref model.CollectionRef, handler repository.ChangeHandler) error {
	return a.watch(ctx, subscriptionID, ref, changeStreamMatch(ref.Query.Where), handler)
}

func (a *Adapter) Unsubscribe(ctx context.Context, subscriptionID string) error {
	a.mu.Lock()
	cancel, ok := a.streams[subscriptionID]
	delete(a.streams, subscriptionID)
	a.mu.Unlock()

	if ok {
		cancel()
	}
	return nil
}

func (a *Adapter) GetCollections(ctx context.Context, ref model.DatabaseRef) ([]string, error) {
	return a.client.Database(ref.Name).ListCollectionNames(ctx, bson.M{})
}

func (a *Adapter) watch(ctx context.Context, subscriptionID string, ref model.CollectionRef, pipeline mongo.Pipeline, handler repository.ChangeHandler) error {
	if err := a.ensureCollection(ctx, ref); err != nil {
		return err
	}

	streamOpts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)

	stream, err := a.collection(ref).Watch(ctx, pipeline, streamOpts)
	if err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.streams[subscriptionID] = cancel
	a.mu.Unlock()

	go a.pump(streamCtx, subscriptionID, stream, handler)
	return nil
}

// pump drains one change stream, translating its events into handler calls.
// Stream errors are reported through the handler but never tear the
// subscription down from this side; the consumer decides via Unsubscribe.
func (a *Adapter) pump(ctx context.Context, subscriptionID string, stream *mongo.ChangeStream, handler repository.ChangeHandler) {
	defer stream.Close(context.Background())

	for stream.Next(ctx) {
		var event struct {
			OperationType            string `bson:"operationType"`
			FullDocument             bson.M `bson:"fullDocument"`
			FullDocumentBeforeChange bson.M `bson:"fullDocumentBeforeChange"`
		}
		if err := stream.Decode(&event); err != nil {
			a.log.Error("failed to decode change stream event",
				zap.String("subscription_id", subscriptionID),
				zap.Error(err))
			handler(err, nil, nil)
			continue
		}

		handler(nil, toRecord(event.FullDocumentBeforeChange), toRecord(event.FullDocument))
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		a.log.Error("change stream terminated",
			zap.String("subscription_id", subscriptionID),
			zap.Error(err))
		handler(err, nil, nil)
	}
}

// ensureCollection lazily creates the collection with pre/post images
// enabled so change streams can report both event sides. Concurrent first
// accesses share a single provisioning attempt.
func (a *Adapter) ensureCollection(ctx context.Context, ref model.CollectionRef) error {
	key := ref.Path()
	return a.provisioner.Do(ctx, key, func(ctx context.Context) error {
		db := a.client.Database(ref.Database.Name)
		opts := options.CreateCollection().SetChangeStreamPreAndPostImages(bson.M{"enabled": true})
		err := db.CreateCollection(ctx, ref.Name, opts)
		if err == nil {
			return nil
		}

		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Name == "NamespaceExists" {
			return nil
		}
		return fmt.Errorf("failed to provision collection %s: %w", key, err)
	})
}

func (a *Adapter) collection(ref model.CollectionRef) *mongo.Collection {
	return a.client.Database(ref.Database.Name).Collection(ref.Name)
}

// toRecord converts a stored document into the adapter record shape, with
// the id exposed under "id".
func toRecord(doc bson.M) map[string]interface{} {
	if doc == nil {
		return nil
	}
	record := make(map[string]interface{}, len(doc))
	for key, value := range doc {
		if key == "_id" {
			record["id"] = fmt.Sprintf("%v", value)
			continue
		}
		record[key] = value
	}
	return record
}

// changeStreamMatch prefilters a collection change stream by the query where
// clauses. An event passes when either side of the mutation satisfies every
// clause, so subscribers still see documents leaving the matched set.
func changeStreamMatch(where []model.Filter) mongo.Pipeline {
	if len(where) == 0 {
		return mongo.Pipeline{}
	}
	sides := []bson.M{
		prefixedWhere("fullDocument", where),
		prefixedWhere("fullDocumentBeforeChange", where),
	}
	return mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"$or": sides}}},
	}
}

func prefixedWhere(prefix string, where []model.Filter) bson.M {
	var clauses []bson.M
	for _, clause := range where {
		field := clause.Field
		if field == "id" {
			field = "_id"
		}
		clauses = append(clauses, translateClause(prefix+"."+field, clause.Operator, clause.Value))
	}
	return bson.M{"$and": clauses}
}

// translateWhere maps the flat conjunction of filters onto a MongoDB filter
// document.
func translateWhere(where []model.Filter) bson.M {
	if len(where) == 0 {
		return bson.M{}
	}

	filter := bson.M{}
	var clauses []bson.M
	for _, clause := range where {
		field := clause.Field
		if field == "id" {
			field = "_id"
		}
		clauses = append(clauses, translateClause(field, clause.Operator, clause.Value))
	}
	filter["$and"] = clauses
	return filter
}

func translateClause(field, operator string, value interface{}) bson.M {
	switch operator {
	case model.OperatorEqual:
		return bson.M{field: bson.M{"$eq": value}}
	case model.OperatorNotEqual:
		return bson.M{field: bson.M{"$ne": value}}
	case model.OperatorGreaterThan:
		return bson.M{field: bson.M{"$gt": value}}
	case model.OperatorLessThan:
		return bson.M{field: bson.M{"$lt": value}}
	case model.OperatorGreaterThanOrEqual:
		return bson.M{field: bson.M{"$gte": value}}
	case model.OperatorLessThanOrEqual:
		return bson.M{field: bson.M{"$lte": value}}
	case model.OperatorArrayContains:
		return bson.M{field: bson.M{"$elemMatch": bson.M{"$eq": value}}}
	case model.OperatorArrayNotContains:
		return bson.M{field: bson.M{"$not": bson.M{"$elemMatch": bson.M{"$eq": value}}}}
	default:
		// Unknown operators match nothing rather than everything.
		return bson.M{"$expr": false}
	}
}
