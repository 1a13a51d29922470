package repository

import (
	"context"

	"docstore-gateway/internal/gateway/domain/model"
)

// ChangeHandler is invoked by an adapter once per mutation event touching a
// watched scope. Either oldData or newData may be nil (creation/deletion) but
// never both. A non-nil err reports a mid-stream backend failure scoped to
// the subscription; the feed itself stays alive.
type ChangeHandler func(err error, oldData, newData map[string]interface{})

// StorageAdapter is the contract every storage backend implements. The
// orchestrator is its only consumer; filtering by the collection query is the
// adapter's job.
//
// Backends without a native change feed may implement SubscribeDocument and
// SubscribeCollection as documented no-ops.
type StorageAdapter interface {
	// Connect establishes the backend connection. It is called once at
	// service start.
	Connect(ctx context.Context) error

	// ReadDocument returns the stored record, or (nil, nil) when the
	// document is absent.
	ReadDocument(ctx context.Context, ref model.DocumentRef) (map[string]interface{}, error)

	// ReadCollection returns the matching records in backend order. Every
	// row includes its id under the "id" key.
	ReadCollection(ctx context.Context, ref model.CollectionRef) ([]map[string]interface{}, error)

	// CreateDocument stores data and returns the record including its
	// assigned id.
	CreateDocument(ctx context.Context, ref model.CollectionRef, data map[string]interface{}) (map[string]interface{}, error)

	// UpdateDocument applies data to the document and returns the updated
	// record, or nil when the document does not exist.
	UpdateDocument(ctx context.Context, ref model.DocumentRef, data map[string]interface{}, opts model.WriteOptions) (map[string]interface{}, error)

	// DeleteDocument removes the document and returns the deleted record.
	DeleteDocument(ctx context.Context, ref model.DocumentRef) (map[string]interface{}, error)

	// SubscribeDocument registers handler for every mutation of the
	// referenced document until Unsubscribe is called with the same id.
	SubscribeDocument(ctx context.Context, subscriptionID string, ref model.DocumentRef, handler ChangeHandler) error

	// SubscribeCollection registers handler for every mutation inside the
	// referenced collection, pre-filtered by the reference query.
	SubscribeCollection(ctx context.Context, subscriptionID string, ref model.CollectionRef, handler ChangeHandler) error

	// Unsubscribe releases the adapter-level handle for subscriptionID.
	// Unknown ids are a no-op.
	Unsubscribe(ctx context.Context, subscriptionID string) error

	// GetCollections lists the collection names present in the database.
	GetCollections(ctx context.Context, ref model.DatabaseRef) ([]string, error)
}
