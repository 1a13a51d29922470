package model

// Snapshot pairs a reference with its current data value. It is the
// authoritative reply for document and collection reads and writes.
type Snapshot struct {
	Ref  Reference              `json:"ref"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// ChangeType classifies a change event from the presence of its sides.
type ChangeType string

const (
	ChangeTypeCreate ChangeType = "create"
	ChangeTypeUpdate ChangeType = "update"
	ChangeTypeDelete ChangeType = "delete"
)

// ClassifyChange derives the change type from the old/new data pair after
// rule masking. Callers must not pass two absent sides.
func ClassifyChange(oldData, newData map[string]interface{}) ChangeType {
	switch {
	case oldData != nil && newData != nil:
		return ChangeTypeUpdate
	case oldData == nil && newData != nil:
		return ChangeTypeCreate
	default:
		return ChangeTypeDelete
	}
}

// Subscription is the client-visible registration for a change stream.
type Subscription struct {
	Ref Reference `json:"ref"`
	ID  string    `json:"id"`
}

// ChangeEvent is a rule-filtered, classified notification of a data mutation,
// delivered to the client channel keyed by subscription id. Error carries
// mid-stream adapter failures scoped to the subscription; such events leave
// the subscription alive.
type ChangeEvent struct {
	SubscriptionID string     `json:"subscriptionId"`
	Ref            Reference  `json:"ref"`
	ChangeType     ChangeType `json:"changeType,omitempty"`
	OldSnapshot    *Snapshot  `json:"oldSnapshot,omitempty"`
	NewSnapshot    *Snapshot  `json:"newSnapshot,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// WriteOptions carries per-write adapter options.
type WriteOptions struct {
	// Replace overwrites the stored document instead of merging fields.
	Replace bool `json:"replace,omitempty"`
}
