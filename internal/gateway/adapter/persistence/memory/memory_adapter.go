// Package memory provides an in-process storage adapter backed by a mutex
// guarded map store. It supports the full adapter contract including
// synchronous change fan-out, which makes it the reference backend for tests
// and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"docstore-gateway/internal/gateway/domain/model"
	"docstore-gateway/internal/gateway/domain/repository"

	"github.com/google/uuid"
)

// Adapter implements repository.StorageAdapter on nested maps. The store is
// owned by the adapter instance; there is no process-wide hidden state.
type Adapter struct {
	mu sync.RWMutex
	// databases: database -> collection -> id -> document fields (id excluded)
	databases map[string]map[string]map[string]map[string]interface{}

	docSubs map[string]*docSubscription
	colSubs map[string]*colSubscription
}

type docSubscription struct {
	ref     model.DocumentRef
	handler repository.ChangeHandler
}

type colSubscription struct {
	ref     model.CollectionRef
	handler repository.ChangeHandler
}

// New creates an empty adapter.
func New() *Adapter {
	return &Adapter{
		databases: make(map[string]map[string]map[string]map[string]interface{}),
		docSubs:   make(map[string]*docSubscription),
		colSubs:   make(map[string]*colSubscription),
	}
}

var _ repository.StorageAdapter = (*Adapter)(nil)

// Connect is a no-op for the in-memory backend.
func (a *Adapter) Connect(ctx context.Context) error { return nil }

func (a *Adapter) ReadDocument(ctx context.Context, ref model.DocumentRef) (map[string]interface{}, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	doc, ok := a.collection(ref.Collection)[ref.ID]
	if !ok {
		return nil, nil
	}
	return withID(ref.ID, doc), nil
}

func (a *Adapter) ReadCollection(ctx context.Context, ref model.CollectionRef) ([]map[string]interface{}, error) {
	a.mu.RLock()
	collection := a.collection(ref)
	rows := make([]map[string]interface{}, 0, len(collection))
	for id, doc := range collection {
		rows = append(rows, withID(id, doc))
	}
	a.mu.RUnlock()

	// Map iteration order is random; give callers a stable baseline before
	// any explicit ordering is applied.
	sort.Slice(rows, func(i, j int) bool {
		return rows[i]["id"].(string) < rows[j]["id"].(string)
	})

	rows = filterRows(rows, ref.Query.Where)
	orderRows(rows, ref.Query.OrderBy)
	if ref.Query.Limit > 0 && len(rows) > ref.Query.Limit {
		rows = rows[:ref.Query.Limit]
	}
	return rows, nil
}

func (a *Adapter) CreateDocument(ctx context.Context, ref model.CollectionRef, data map[string]interface{}) (map[string]interface{}, error) {
	id := uuid.NewString()
	fields := cloneDoc(data)
	if explicit, ok := fields["id"].(string); ok && explicit != "" {
		id = explicit
	}
	delete(fields, "id")

	a.mu.Lock()
	a.ensureCollection(ref)[id] = fields
	a.mu.Unlock()

	record := withID(id, fields)
	a.fanout(ref, id, nil, record)
	return record, nil
}

func (a *Adapter) UpdateDocument(ctx context.Context, ref model.DocumentRef, data map[string]interface{}, opts model.WriteOptions) (map[string]interface{}, error) {
	fields := cloneDoc(data)
	delete(fields, "id")

	a.mu.Lock()
	collection := a.ensureCollection(ref.Collection)
	existing, ok := collection[ref.ID]
	if !ok {
		a.mu.Unlock()
		return nil, nil
	}

	oldRecord := withID(ref.ID, existing)
	if opts.Replace {
		collection[ref.ID] = fields
	} else {
		merged := cloneDoc(existing)
		for key, value := range fields {
			merged[key] = value
		}
		collection[ref.ID] = merged
	}
	newRecord := withID(ref.ID, collection[ref.ID])
	a.mu.Unlock()

	a.fanout(ref.Collection, ref.ID, oldRecord, newRecord)
	return newRecord, nil
}

func (a *Adapter) DeleteDocument(ctx context.Context, ref model.DocumentRef) (map[string]interface{}, error) {
	a.mu.Lock()
	collection := a.ensureCollection(ref.Collection)
	existing, ok := collection[ref.ID]
	if !ok {
		a.mu.Unlock()
		return nil, nil
	}
	record := withID(ref.ID, existing)
	delete(collection, ref.ID)
	a.mu.Unlock()

	a.fanout(ref.Collection, ref.ID, record, nil)
	return record, nil
}

func (a *Adapter) SubscribeDocument(ctx context.Context, subscriptionID string, ref model.DocumentRef, handler repository.ChangeHandler) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.docSubs[subscriptionID] = &docSubscription{ref: ref, handler: handler}
	return nil
}

func (a *Adapter) SubscribeCollection(ctx context.Context, subscriptionID string, ref model.CollectionRef, handler repository.ChangeHandler) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.colSubs[subscriptionID] = &colSubscription{ref: ref, handler: handler}
	return nil
}

func (a *Adapter) Unsubscribe(ctx context.Context, subscriptionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.docSubs, subscriptionID)
	delete(a.colSubs, subscriptionID)
	return nil
}

func (a *Adapter) GetCollections(ctx context.Context, ref model.DatabaseRef) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.databases[ref.Name]))
	for name := range a.databases[ref.Name] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// fanout invokes every matching subscription handler outside the store lock,
// so handlers may safely re-enter the adapter.
func (a *Adapter) fanout(ref model.CollectionRef, id string, oldData, newData map[string]interface{}) {
	a.mu.RLock()
	var handlers []repository.ChangeHandler
	for _, sub := range a.docSubs {
		if sub.ref.Collection.Equal(ref) && sub.ref.ID == id {
			handlers = append(handlers, sub.handler)
		}
	}
	for _, sub := range a.colSubs {
		if sub.ref.Equal(ref) && eventMatchesQuery(sub.ref.Query, oldData, newData) {
			handlers = append(handlers, sub.handler)
		}
	}
	a.mu.RUnlock()

	for _, handler := range handlers {
		handler(nil, cloneDoc(oldData), cloneDoc(newData))
	}
}

// eventMatchesQuery pre-filters collection events by the subscription query.
// Deletions match on their old side so subscribers see documents leaving the
// result set.
func eventMatchesQuery(query model.Query, oldData, newData map[string]interface{}) bool {
	if len(query.Where) == 0 {
		return true
	}
	if newData != nil {
		return rowMatches(newData, query.Where)
	}
	return oldData != nil && rowMatches(oldData, query.Where)
}

func (a *Adapter) collection(ref model.CollectionRef) map[string]map[string]interface{} {
	return a.databases[ref.Database.Name][ref.Name]
}

func (a *Adapter) ensureCollection(ref model.CollectionRef) map[string]map[string]interface{} {
	db, ok := a.databases[ref.Database.Name]
	if !ok {
		db = make(map[string]map[string]map[string]interface{})
		a.databases[ref.Database.Name] = db
	}
	collection, ok := db[ref.Name]
	if !ok {
		collection = make(map[string]map[string]interface{})
		db[ref.Name] = collection
	}
	return collection
}

func filterRows(rows []map[string]interface{}, where []model.Filter) []map[string]interface{} {
	if len(where) == 0 {
		return rows
	}
	filtered := rows[:0]
	for _, row := range rows {
		if rowMatches(row, where) {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

func rowMatches(row map[string]interface{}, where []model.Filter) bool {
	for _, filter := range where {
		if !compare(row[filter.Field], filter.Operator, filter.Value) {
			return false
		}
	}
	return true
}

func compare(value interface{}, operator string, test interface{}) bool {
	switch operator {
	case model.OperatorEqual:
		return equalValues(value, test)
	case model.OperatorNotEqual:
		return !equalValues(value, test)
	case model.OperatorGreaterThan:
		return orderValues(value, test) > 0
	case model.OperatorLessThan:
		return orderValues(value, test) < 0
	case model.OperatorGreaterThanOrEqual:
		return orderValues(value, test) >= 0
	case model.OperatorLessThanOrEqual:
		return orderValues(value, test) <= 0
	case model.OperatorArrayContains:
		return arrayContains(value, test)
	case model.OperatorArrayNotContains:
		return !arrayContains(value, test)
	default:
		return false
	}
}

func arrayContains(value, test interface{}) bool {
	items, ok := value.([]interface{})
	if !ok {
		return false
	}
	for _, item := range items {
		if equalValues(item, test) {
			return true
		}
	}
	return false
}

func equalValues(a, b interface{}) bool {
	if fa, oka := asFloat(a); oka {
		if fb, okb := asFloat(b); okb {
			return fa == fb
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b) && (a == nil) == (b == nil)
}

// orderValues compares two field values: numerically when both sides are
// numbers, lexically otherwise.
func orderValues(a, b interface{}) int {
	if fa, oka := asFloat(a); oka {
		if fb, okb := asFloat(b); okb {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func orderRows(rows []map[string]interface{}, orderBy []model.Order) {
	if len(orderBy) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, order := range orderBy {
			cmp := orderValues(rows[i][order.Field], rows[j][order.Field])
			if cmp == 0 {
				continue
			}
			if order.Direction == model.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func withID(id string, doc map[string]interface{}) map[string]interface{} {
	record := cloneDoc(doc)
	if record == nil {
		record = make(map[string]interface{}, 1)
	}
	record["id"] = id
	return record
}

func cloneDoc(doc map[string]interface{}) map[string]interface{} {
	if doc == nil {
		return nil
	}
	clone := make(map[string]interface{}, len(doc))
	for key, value := range doc {
		clone[key] = cloneValue(value)
	}
	return clone
}

func cloneValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return cloneDoc(v)
	case []interface{}:
		items := make([]interface{}, len(v))
		for i, item := range v {
			items[i] = cloneValue(item)
		}
		return items
	default:
		return value
	}
}
