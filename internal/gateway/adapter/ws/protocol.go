package ws

import (
	"docstore-gateway/internal/gateway/domain/model"
)

// Command names accepted on the wire.
const (
	CmdCreateDocument      = "database.createDocument"
	CmdReadDocument        = "database.readDocument"
	CmdUpdateDocument      = "database.updateDocument"
	CmdDeleteDocument      = "database.deleteDocument"
	CmdReadCollection      = "database.readCollection"
	CmdSubscribeDocument   = "database.subscribeDocument"
	CmdSubscribeCollection = "database.subscribeCollection"
	CmdUnsubscribe         = "database.unsubscribe"
	CmdAdminGetCollections = "database.admin.getCollections"
)

// CommandFrame is one client request. The id is echoed verbatim on the reply
// so the client can correlate concurrent commands.
type CommandFrame struct {
	ID      string      `json:"id"`
	Command string      `json:"command"`
	Args    CommandArgs `json:"args"`
}

// CommandArgs carries the union of argument fields across all commands;
// each command reads only the fields it needs.
type CommandArgs struct {
	Ref            string                 `json:"ref,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
	Options        *WriteOptions          `json:"options,omitempty"`
	Query          *QueryArgs             `json:"query,omitempty"`
	SubscriptionID string                 `json:"subscriptionId,omitempty"`
}

// WriteOptions mirrors model.WriteOptions on the wire.
type WriteOptions struct {
	Replace bool `json:"replace,omitempty"`
}

// QueryArgs is the wire form of a collection query.
type QueryArgs struct {
	Where   []FilterArgs `json:"where,omitempty"`
	OrderBy []OrderArgs  `json:"orderBy,omitempty"`
	Limit   int          `json:"limit,omitempty"`
}

type FilterArgs struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

type OrderArgs struct {
	Field     string `json:"field"`
	Direction string `json:"direction,omitempty"`
}

// Reply answers one command frame. Error is the literal false on success and
// the error message string on failure, matching the client contract.
type Reply struct {
	ID             string            `json:"id"`
	Error          interface{}       `json:"error"`
	Ref            string            `json:"ref,omitempty"`
	Snapshot       *SnapshotPayload  `json:"snapshot,omitempty"`
	Collection     []SnapshotPayload `json:"collection,omitempty"`
	SubscriptionID string            `json:"subscriptionId,omitempty"`
	Collections    []string          `json:"collections,omitempty"`
}

// EventFrame pushes one subscription change to the client outside the
// request/reply correlation.
type EventFrame struct {
	Event          string           `json:"event"`
	SubscriptionID string           `json:"subscriptionId"`
	Ref            string           `json:"ref"`
	Type           string           `json:"type,omitempty"`
	OldSnapshot    *SnapshotPayload `json:"oldSnapshot,omitempty"`
	NewSnapshot    *SnapshotPayload `json:"newSnapshot,omitempty"`
	Error          string           `json:"error,omitempty"`
}

// SnapshotPayload is the wire form of a snapshot.
type SnapshotPayload struct {
	Ref  string                 `json:"ref"`
	Data map[string]interface{} `json:"data"`
}

func okReply(id string) Reply {
	return Reply{ID: id, Error: false}
}

// errorReply echoes the partially resolved reference so the caller can
// correlate failures.
func errorReply(id, ref string, err error) Reply {
	return Reply{ID: id, Error: err.Error(), Ref: ref}
}

func toSnapshotPayload(snap *model.Snapshot) *SnapshotPayload {
	if snap == nil {
		return nil
	}
	return &SnapshotPayload{Ref: snap.Ref.Path(), Data: snap.Data}
}

func toEventFrame(event model.ChangeEvent) EventFrame {
	return EventFrame{
		Event:          "change",
		SubscriptionID: event.SubscriptionID,
		Ref:            event.Ref.Path(),
		Type:           string(event.ChangeType),
		OldSnapshot:    toSnapshotPayload(event.OldSnapshot),
		NewSnapshot:    toSnapshotPayload(event.NewSnapshot),
		Error:          event.Error,
	}
}

// toQuery maps wire query args onto the domain query.
func toQuery(args *QueryArgs) model.Query {
	if args == nil {
		return model.Query{}
	}
	query := model.Query{Limit: args.Limit}
	for _, clause := range args.Where {
		query.Where = append(query.Where, model.Filter{
			Field:    clause.Field,
			Operator: clause.Operator,
			Value:    clause.Value,
		})
	}
	for _, order := range args.OrderBy {
		direction := model.Ascending
		if order.Direction == model.Descending {
			direction = model.Descending
		}
		query.OrderBy = append(query.OrderBy, model.Order{Field: order.Field, Direction: direction})
	}
	return query
}

func toWriteOptions(args *WriteOptions) model.WriteOptions {
	if args == nil {
		return model.WriteOptions{}
	}
	return model.WriteOptions{Replace: args.Replace}
}
