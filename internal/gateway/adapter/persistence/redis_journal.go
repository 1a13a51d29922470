// Package persistence holds storage collaborators that sit beside the
// backend adapters, such as the Redis change journal.
package persistence

import (
	"context"
	"encoding/json"
	"time"

	"docstore-gateway/internal/gateway/domain/model"
	"docstore-gateway/internal/shared/logger"

	"github.com/redis/go-redis/v9"
)

const defaultJournalMaxLen = 10000

// RedisJournal records every delivered change event in a Redis Stream, one
// stream per subscribed reference. The journal is an audit/replay aid; the
// live delivery path never depends on it.
type RedisJournal struct {
	client *redis.Client
	log    logger.Logger
	maxLen int64
}

// NewRedisJournal creates a journal on an existing Redis client.
func NewRedisJournal(client *redis.Client, log logger.Logger) *RedisJournal {
	if log == nil {
		log = logger.Noop()
	}
	return &RedisJournal{
		client: client,
		log:    log.WithComponent("redis_journal"),
		maxLen: defaultJournalMaxLen,
	}
}

// streamName scopes journal streams away from other keys in the instance.
func streamName(ref model.Reference) string {
	return "changes:" + ref.Path()
}

// Append stores one change event. Streams are capped approximately at the
// configured length, so the journal never grows without bound.
func (j *RedisJournal) Append(ctx context.Context, event model.ChangeEvent) error {
	values := map[string]interface{}{
		"subscriptionId": event.SubscriptionID,
		"type":           string(event.ChangeType),
		"ref":            event.Ref.Path(),
		"timestamp":      time.Now().UnixNano(),
	}
	if event.Error != "" {
		values["error"] = event.Error
	}
	if event.OldSnapshot != nil {
		old, err := json.Marshal(event.OldSnapshot.Data)
		if err != nil {
			return err
		}
		values["oldData"] = old
	}
	if event.NewSnapshot != nil {
		data, err := json.Marshal(event.NewSnapshot.Data)
		if err != nil {
			return err
		}
		values["data"] = data
	}

	_, err := j.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName(event.Ref),
		MaxLen: j.maxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		j.log.WithFields(map[string]interface{}{
			"stream":          streamName(event.Ref),
			"subscription_id": event.SubscriptionID,
		}).Errorf("failed to journal change event: %v", err)
		return err
	}
	return nil
}

// JournalEntry is one recorded change with its stream position, usable as a
// resume cursor.
type JournalEntry struct {
	ID    string
	Event model.ChangeEvent
}

// EventsSince reads journaled events for ref recorded after the given stream
// id; an empty id reads from the beginning. A missing stream yields no
// entries, not an error.
func (j *RedisJournal) EventsSince(ctx context.Context, ref model.Reference, sinceID string) ([]JournalEntry, error) {
	stream := streamName(ref)

	exists, err := j.client.Exists(ctx, stream).Result()
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, nil
	}

	lastID := sinceID
	if lastID == "" {
		lastID = "0"
	}

	res, err := j.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   1000,
		Block:   -1,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []JournalEntry
	for _, streamRes := range res {
		for _, msg := range streamRes.Messages {
			event, err := parseJournalMessage(ref, msg)
			if err != nil {
				j.log.WithFields(map[string]interface{}{
					"stream":     stream,
					"message_id": msg.ID,
				}).Warnf("skipping unreadable journal entry: %v", err)
				continue
			}
			entries = append(entries, JournalEntry{ID: msg.ID, Event: event})
		}
	}
	return entries, nil
}

// Len reports the number of retained entries for ref.
func (j *RedisJournal) Len(ctx context.Context, ref model.Reference) (int64, error) {
	length, err := j.client.XLen(ctx, streamName(ref)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	return length, err
}

func parseJournalMessage(ref model.Reference, msg redis.XMessage) (model.ChangeEvent, error) {
	event := model.ChangeEvent{Ref: ref}

	if id, ok := msg.Values["subscriptionId"].(string); ok {
		event.SubscriptionID = id
	}
	if kind, ok := msg.Values["type"].(string); ok {
		event.ChangeType = model.ChangeType(kind)
	}
	if errMsg, ok := msg.Values["error"].(string); ok {
		event.Error = errMsg
	}

	if raw, ok := msg.Values["oldData"].(string); ok && raw != "" {
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return event, err
		}
		event.OldSnapshot = &model.Snapshot{Ref: ref, Data: data}
	}
	if raw, ok := msg.Values["data"].(string); ok && raw != "" {
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return event, err
		}
		event.NewSnapshot = &model.Snapshot{Ref: ref, Data: data}
	}

	return event, nil
}
