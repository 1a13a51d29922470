// Package usecase implements the command orchestrator: the façade the
// transport calls for every client command. It composes the reference model,
// the rule validator, the storage adapter and the subscription registry.
package usecase

import (
	"context"
	"sync"
	"time"

	"docstore-gateway/internal/gateway/domain/model"
	"docstore-gateway/internal/gateway/domain/repository"
	"docstore-gateway/internal/gateway/rules"
	apperrors "docstore-gateway/internal/shared/errors"
	"docstore-gateway/internal/shared/logger"

	"github.com/oklog/ulid/v2"
)

// EventJournal persists emitted change events for resume/auditing. It is an
// optional collaborator; a nil journal disables journaling.
type EventJournal interface {
	Append(ctx context.Context, event model.ChangeEvent) error
}

// Commands orchestrates the public command surface. All command errors are
// returned to the caller; none crash the process.
type Commands struct {
	adapter  repository.StorageAdapter
	rules    *rules.Validator
	registry *SubscriptionRegistry
	journal  EventJournal
	log      logger.Logger

	queueSize int
}

// NewCommands creates the orchestrator. journal may be nil.
func NewCommands(adapter repository.StorageAdapter, validator *rules.Validator, journal EventJournal, log logger.Logger) *Commands {
	if log == nil {
		log = logger.Noop()
	}
	return &Commands{
		adapter:   adapter,
		rules:     validator,
		registry:  NewSubscriptionRegistry(),
		journal:   journal,
		log:       log.WithComponent("commands"),
		queueSize: defaultQueueSize,
	}
}

// Start connects the storage adapter.
func (c *Commands) Start(ctx context.Context) error {
	if err := c.adapter.Connect(ctx); err != nil {
		return apperrors.NewAdapterError("connect", err)
	}
	return nil
}

// SubscriptionCount reports the number of live subscriptions, for health
// reporting.
func (c *Commands) SubscriptionCount() int { return c.registry.Count() }

// CreateDocument resolves server values in data, validates the create rule
// and stores the document. The returned snapshot carries the document
// reference composed from the adapter-assigned id.
func (c *Commands) CreateDocument(ctx context.Context, client *model.Client, ref model.CollectionRef, data map[string]interface{}) (*model.Snapshot, error) {
	if data != nil {
		model.ResolveServerValues(data, time.Now())
	}

	req := &rules.Request{Client: client, Ref: ref, Data: data}
	if err := c.rules.Validate(ctx, rules.OperationCreate, ref, req, nil); err != nil {
		return nil, err
	}

	record, err := c.adapter.CreateDocument(ctx, ref, data)
	if err != nil {
		return nil, apperrors.NewAdapterError("createDocument", err)
	}

	docRef := ref.Doc(recordID(record))
	return &model.Snapshot{Ref: docRef, Data: record}, nil
}

// ReadDocument reads the document and validates the read rule against the
// returned data. Single-document reads are all-or-nothing: a denial fails
// the whole call.
func (c *Commands) ReadDocument(ctx context.Context, client *model.Client, ref model.DocumentRef) (*model.Snapshot, error) {
	data, err := c.adapter.ReadDocument(ctx, ref)
	if err != nil {
		return nil, apperrors.NewAdapterError("readDocument", err)
	}

	req := &rules.Request{Client: client, Ref: ref}
	if err := c.rules.Validate(ctx, rules.OperationRead, ref, req, &rules.Response{Data: data}); err != nil {
		return nil, err
	}

	return &model.Snapshot{Ref: ref, Data: data}, nil
}

// UpdateDocument resolves server values, validates the update rule and
// applies the write. A non-existent document yields a snapshot with nil
// data, not an error.
func (c *Commands) UpdateDocument(ctx context.Context, client *model.Client, ref model.DocumentRef, data map[string]interface{}, opts model.WriteOptions) (*model.Snapshot, error) {
	if data != nil {
		model.ResolveServerValues(data, time.Now())
	}

	req := &rules.Request{Client: client, Ref: ref, Data: data}
	if err := c.rules.Validate(ctx, rules.OperationUpdate, ref, req, nil); err != nil {
		return nil, err
	}

	record, err := c.adapter.UpdateDocument(ctx, ref, data, opts)
	if err != nil {
		return nil, apperrors.NewAdapterError("updateDocument", err)
	}

	return &model.Snapshot{Ref: ref, Data: record}, nil
}

// DeleteDocument validates the delete rule and removes the document. The
// snapshot reply carries no data.
func (c *Commands) DeleteDocument(ctx context.Context, client *model.Client, ref model.DocumentRef) (*model.Snapshot, error) {
	req := &rules.Request{Client: client, Ref: ref}
	if err := c.rules.Validate(ctx, rules.OperationDelete, ref, req, nil); err != nil {
		return nil, err
	}

	if _, err := c.adapter.DeleteDocument(ctx, ref); err != nil {
		return nil, apperrors.NewAdapterError("deleteDocument", err)
	}

	return &model.Snapshot{Ref: ref}, nil
}

// ReadCollection reads the collection (query filtering is the adapter's job)
// and validates the read rule for every row independently and concurrently.
// Rows whose rule fails are silently dropped; the survivors keep the
// adapter's order.
func (c *Commands) ReadCollection(ctx context.Context, client *model.Client, ref model.CollectionRef) ([]*model.Snapshot, error) {
	rows, err := c.adapter.ReadCollection(ctx, ref)
	if err != nil {
		return nil, apperrors.NewAdapterError("readCollection", err)
	}

	allowed := make([]*model.Snapshot, len(rows))
	var wg sync.WaitGroup
	for i, row := range rows {
		wg.Add(1)
		go func(i int, row map[string]interface{}) {
			defer wg.Done()
			docRef := ref.Doc(recordID(row))
			req := &rules.Request{Client: client, Ref: docRef}
			if err := c.rules.Validate(ctx, rules.OperationRead, docRef, req, &rules.Response{Data: row}); err != nil {
				c.log.WithFields(map[string]interface{}{"ref": docRef.Path()}).Debugf("row dropped from collection read: %v", err)
				return
			}
			allowed[i] = &model.Snapshot{Ref: docRef, Data: row}
		}(i, row)
	}
	wg.Wait()

	snapshots := make([]*model.Snapshot, 0, len(rows))
	for _, snap := range allowed {
		if snap != nil {
			snapshots = append(snapshots, snap)
		}
	}
	return snapshots, nil
}

// SubscribeDocument registers a change listener for a single document.
// Events stream asynchronously on events after the call returns.
func (c *Commands) SubscribeDocument(ctx context.Context, client *model.Client, ref model.DocumentRef, events chan<- model.ChangeEvent) (*model.Subscription, error) {
	sub := newSubscription(newSubscriptionID(), ref, client, events, c.queueSize)
	c.registry.add(sub)

	go sub.run(func(raw rawChange) {
		c.handleChange(sub, raw, func(map[string]interface{}) model.DocumentRef { return ref })
	})

	if err := c.adapter.SubscribeDocument(ctx, sub.id, ref, sub.handler()); err != nil {
		c.registry.remove(sub.id)
		sub.close()
		return nil, apperrors.NewAdapterError("subscribeDocument", err)
	}

	return &model.Subscription{Ref: ref, ID: sub.id}, nil
}

// SubscribeCollection registers a change listener for a collection scope.
// Each event side derives its own document reference from the row id, since
// old and new rows may differ in id on replace-style updates.
func (c *Commands) SubscribeCollection(ctx context.Context, client *model.Client, ref model.CollectionRef, events chan<- model.ChangeEvent) (*model.Subscription, error) {
	sub := newSubscription(newSubscriptionID(), ref, client, events, c.queueSize)
	c.registry.add(sub)

	go sub.run(func(raw rawChange) {
		c.handleChange(sub, raw, func(data map[string]interface{}) model.DocumentRef { return ref.Doc(recordID(data)) })
	})

	if err := c.adapter.SubscribeCollection(ctx, sub.id, ref, sub.handler()); err != nil {
		c.registry.remove(sub.id)
		sub.close()
		return nil, apperrors.NewAdapterError("subscribeCollection", err)
	}

	return &model.Subscription{Ref: ref, ID: sub.id}, nil
}

// Unsubscribe releases the subscription. It is idempotent: unknown or
// already-removed ids are a no-op, never an error.
func (c *Commands) Unsubscribe(ctx context.Context, subscriptionID string) error {
	if sub := c.registry.remove(subscriptionID); sub != nil {
		sub.close()
	}
	if err := c.adapter.Unsubscribe(ctx, subscriptionID); err != nil {
		return apperrors.NewAdapterError("unsubscribe", err)
	}
	return nil
}

// AdminGetCollections lists the collections of a database. The session must
// carry the admin credential; the check happens before any adapter call.
func (c *Commands) AdminGetCollections(ctx context.Context, client *model.Client, ref model.DatabaseRef) ([]string, error) {
	if client == nil || !client.Admin {
		return nil, apperrors.NewUnauthorized("admin commands require admin credentials")
	}

	collections, err := c.adapter.GetCollections(ctx, ref)
	if err != nil {
		return nil, apperrors.NewAdapterError("getCollections", err)
	}
	return collections, nil
}

// handleChange turns one raw adapter change into at most one client event.
// The old and new sides are rule-masked independently: a denial on one side
// never suppresses an event derivable from the other. When both sides end
// up absent nothing user-visible changed for this client, so the event is
// suppressed entirely.
func (c *Commands) handleChange(sub *subscription, raw rawChange, refFor func(data map[string]interface{}) model.DocumentRef) {
	if raw.err != nil {
		c.log.WithFields(map[string]interface{}{"subscription_id": sub.id}).Errorf("change feed error: %v", raw.err)
		sub.emit(model.ChangeEvent{SubscriptionID: sub.id, Ref: sub.ref, Error: raw.err.Error()})
		return
	}

	oldData, newData := raw.oldData, raw.newData

	var oldRef, newRef model.DocumentRef
	if oldData != nil {
		oldRef = refFor(oldData)
		if err := c.validateEventSide(sub, oldRef, oldData); err != nil {
			oldData = nil
		}
	}
	if newData != nil {
		newRef = refFor(newData)
		if err := c.validateEventSide(sub, newRef, newData); err != nil {
			newData = nil
		}
	}

	if oldData == nil && newData == nil {
		return
	}

	event := model.ChangeEvent{
		SubscriptionID: sub.id,
		Ref:            sub.ref,
		ChangeType:     model.ClassifyChange(oldData, newData),
	}
	if oldData != nil {
		event.OldSnapshot = &model.Snapshot{Ref: oldRef, Data: oldData}
	}
	if newData != nil {
		event.NewSnapshot = &model.Snapshot{Ref: newRef, Data: newData}
	}

	if c.journal != nil {
		if err := c.journal.Append(sub.ctx, event); err != nil {
			c.log.WithFields(map[string]interface{}{"subscription_id": sub.id}).Warnf("event journal append failed: %v", err)
		}
	}

	sub.emit(event)
}

func (c *Commands) validateEventSide(sub *subscription, ref model.DocumentRef, data map[string]interface{}) error {
	req := &rules.Request{Client: sub.client, Ref: ref}
	err := c.rules.Validate(sub.ctx, rules.OperationRead, ref, req, &rules.Response{Data: data})
	if err != nil {
		c.log.WithFields(map[string]interface{}{
			"subscription_id": sub.id,
			"ref":             ref.Path(),
		}).Debugf("event side masked: %v", err)
	}
	return err
}

// newSubscriptionID generates a fresh opaque subscription token.
func newSubscriptionID() string { return ulid.Make().String() }

func recordID(record map[string]interface{}) string {
	if record == nil {
		return ""
	}
	id, _ := record["id"].(string)
	return id
}
