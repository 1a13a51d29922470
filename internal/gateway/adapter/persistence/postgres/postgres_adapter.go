// Package postgres implements the storage adapter contract on PostgreSQL.
// Each database maps to a schema and each collection to a JSONB document
// table, provisioned lazily on first access. PostgreSQL has no native change
// feed here, so the subscription operations are documented no-ops.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"docstore-gateway/internal/gateway/adapter/persistence/provision"
	"docstore-gateway/internal/gateway/domain/model"
	"docstore-gateway/internal/gateway/domain/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Adapter implements repository.StorageAdapter on a pgx connection pool.
type Adapter struct {
	pool        *pgxpool.Pool
	log         *zap.Logger
	provisioner *provision.Registry
}

// New wraps an already constructed pool.
func New(pool *pgxpool.Pool, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		pool:        pool,
		log:         log,
		provisioner: provision.NewRegistry(),
	}
}

var _ repository.StorageAdapter = (*Adapter)(nil)

// Connect verifies the pool is usable.
func (a *Adapter) Connect(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

func (a *Adapter) ReadDocument(ctx context.Context, ref model.DocumentRef) (map[string]interface{}, error) {
	if err := a.ensureTable(ctx, ref.Collection); err != nil {
		return nil, err
	}

	var raw []byte
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, tableName(ref.Collection))
	err := a.pool.QueryRow(ctx, query, ref.ID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toRecord(ref.ID, raw)
}

func (a *Adapter) ReadCollection(ctx context.Context, ref model.CollectionRef) ([]map[string]interface{}, error) {
	if err := a.ensureTable(ctx, ref); err != nil {
		return nil, err
	}

	sql, args := buildSelect(ref)
	pgRows, err := a.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer pgRows.Close()

	var rows []map[string]interface{}
	for pgRows.Next() {
		var id string
		var raw []byte
		if err := pgRows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		record, err := toRecord(id, raw)
		if err != nil {
			return nil, err
		}
		rows = append(rows, record)
	}
	return rows, pgRows.Err()
}

func (a *Adapter) CreateDocument(ctx context.Context, ref model.CollectionRef, data map[string]interface{}) (map[string]interface{}, error) {
	if err := a.ensureTable(ctx, ref); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	fields := make(map[string]interface{}, len(data))
	for key, value := range data {
		fields[key] = value
	}
	if explicit, ok := fields["id"].(string); ok && explicit != "" {
		id = explicit
	}
	delete(fields, "id")

	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, data) VALUES ($1, $2::jsonb)`, tableName(ref))
	if _, err := a.pool.Exec(ctx, query, id, raw); err != nil {
		return nil, err
	}

	fields["id"] = id
	return fields, nil
}

func (a *Adapter) UpdateDocument(ctx context.Context, ref model.DocumentRef, data map[string]interface{}, opts model.WriteOptions) (map[string]interface{}, error) {
	if err := a.ensureTable(ctx, ref.Collection); err != nil {
		return nil, err
	}

	fields := make(map[string]interface{}, len(data))
	for key, value := range data {
		if key == "id" {
			continue
		}
		fields[key] = value
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	assignment := `data = data || $2::jsonb`
	if opts.Replace {
		assignment = `data = $2::jsonb`
	}
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $1 RETURNING data`, tableName(ref.Collection), assignment)

	var updated []byte
	err = a.pool.QueryRow(ctx, query, ref.ID, raw).Scan(&updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toRecord(ref.ID, updated)
}

func (a *Adapter) DeleteDocument(ctx context.Context, ref model.DocumentRef) (map[string]interface{}, error) {
	if err := a.ensureTable(ctx, ref.Collection); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 RETURNING data`, tableName(ref.Collection))

	var deleted []byte
	err := a.pool.QueryRow(ctx, query, ref.ID).Scan(&deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toRecord(ref.ID, deleted)
}

// SubscribeDocument is a documented no-op: this backend has no change feed.
func (a *Adapter) SubscribeDocument(ctx context.Context, subscriptionID string, ref model.DocumentRef, handler repository.ChangeHandler) error {
	a.log.Warn("document subscriptions are not supported by the postgres backend",
		zap.String("subscription_id", subscriptionID),
		zap.String("ref", ref.Path()))
	return nil
}

// SubscribeCollection is a documented no-op: this backend has no change feed.
func (a *Adapter) SubscribeCollection(ctx context.Context, subscriptionID string, ref model.CollectionRef, handler repository.ChangeHandler) error {
	a.log.Warn("collection subscriptions are not supported by the postgres backend",
		zap.String("subscription_id", subscriptionID),
		zap.String("ref", ref.Path()))
	return nil
}

func (a *Adapter) Unsubscribe(ctx context.Context, subscriptionID string) error { return nil }

func (a *Adapter) GetCollections(ctx context.Context, ref model.DatabaseRef) ([]string, error) {
	rows, err := a.pool.Query(ctx, `SELECT tablename FROM pg_tables WHERE schemaname = $1 ORDER BY tablename`, ref.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ensureTable lazily provisions the schema and document table for a
// collection; concurrent first accesses share one attempt.
func (a *Adapter) ensureTable(ctx context.Context, ref model.CollectionRef) error {
	return a.provisioner.Do(ctx, ref.Path(), func(ctx context.Context) error {
		schema := pgx.Identifier{ref.Database.Name}.Sanitize()
		if _, err := a.pool.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema)); err != nil {
			return fmt.Errorf("failed to provision schema %s: %w", ref.Database.Name, err)
		}
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, data JSONB NOT NULL DEFAULT '{}'::jsonb)`, tableName(ref))
		if _, err := a.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to provision table %s: %w", ref.Path(), err)
		}
		return nil
	})
}

func tableName(ref model.CollectionRef) string {
	return pgx.Identifier{ref.Database.Name, ref.Name}.Sanitize()
}

func toRecord(id string, raw []byte) (map[string]interface{}, error) {
	record := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, err
		}
	}
	record["id"] = id
	return record, nil
}

// buildSelect translates the collection query into SQL over the JSONB
// document column. Filters compare text extractions, casting to numeric
// when the comparison value is a number.
func buildSelect(ref model.CollectionRef) (string, []interface{}) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT id, data FROM %s`, tableName(ref))

	var args []interface{}
	var conditions []string
	for _, clause := range ref.Query.Where {
		condition, clauseArgs := translateClause(clause, len(args)+1)
		if condition == "" {
			continue
		}
		conditions = append(conditions, condition)
		args = append(args, clauseArgs...)
	}
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}

	if len(ref.Query.OrderBy) > 0 {
		var orderings []string
		for _, order := range ref.Query.OrderBy {
			direction := "ASC"
			if order.Direction == model.Descending {
				direction = "DESC"
			}
			orderings = append(orderings, fmt.Sprintf(`data->>%s %s`, quoteLiteral(order.Field), direction))
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(orderings, ", "))
	} else {
		sb.WriteString(" ORDER BY id")
	}

	if ref.Query.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", ref.Query.Limit)
	}

	return sb.String(), args
}

func translateClause(clause model.Filter, argIndex int) (string, []interface{}) {
	field := quoteLiteral(clause.Field)

	switch clause.Operator {
	case model.OperatorEqual, model.OperatorNotEqual,
		model.OperatorGreaterThan, model.OperatorLessThan,
		model.OperatorGreaterThanOrEqual, model.OperatorLessThanOrEqual:
		op := clause.Operator
		if op == model.OperatorEqual {
			op = "="
		}
		if op == model.OperatorNotEqual {
			op = "<>"
		}
		// The document id lives in the id column, not the JSONB payload.
		if clause.Field == "id" {
			return fmt.Sprintf(`id %s $%d`, op, argIndex), []interface{}{fmt.Sprintf("%v", clause.Value)}
		}
		if isNumeric(clause.Value) {
			return fmt.Sprintf(`(data->>%s)::numeric %s $%d`, field, op, argIndex), []interface{}{clause.Value}
		}
		return fmt.Sprintf(`data->>%s %s $%d`, field, op, argIndex), []interface{}{fmt.Sprintf("%v", clause.Value)}
	case model.OperatorArrayContains:
		return fmt.Sprintf(`data->%s @> to_jsonb($%d)`, field, argIndex), []interface{}{wrapArray(clause.Value)}
	case model.OperatorArrayNotContains:
		return fmt.Sprintf(`NOT (data->%s @> to_jsonb($%d))`, field, argIndex), []interface{}{wrapArray(clause.Value)}
	default:
		return "FALSE", nil
	}
}

func wrapArray(value interface{}) []interface{} { return []interface{}{value} }

func isNumeric(value interface{}) bool {
	switch value.(type) {
	case int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
