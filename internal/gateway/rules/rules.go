// Package rules stores the nested rule table and evaluates operation
// predicates. Predicate evaluation is the single authorization boundary of
// the gateway: every create/read/update/delete and every event on every
// subscription stream passes through Validator.Validate.
package rules

import (
	"context"
	"fmt"
	"strings"

	"docstore-gateway/internal/gateway/domain/model"
)

// Operation names the predicate slot a command checks.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationRead   Operation = "read"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Request is the predicate's view of the command being authorized.
type Request struct {
	Client *model.Client
	Ref    model.Reference
	Data   map[string]interface{}
}

// Response is the predicate's view of the data the command would return.
// It is nil for write-side checks.
type Response struct {
	Data map[string]interface{}
}

// Rule is a single-operation boolean predicate. Evaluation may itself
// suspend, e.g. to perform its own reads.
type Rule interface {
	Evaluate(ctx context.Context, req *Request, res *Response) (bool, error)
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc func(ctx context.Context, req *Request, res *Response) (bool, error)

func (f RuleFunc) Evaluate(ctx context.Context, req *Request, res *Response) (bool, error) {
	return f(ctx, req, res)
}

// Table is the three-level rule mapping: database name, collection name,
// operation. It is supplied at construction and read-only thereafter, so it
// is safely shared without locking.
type Table map[string]map[string]map[Operation]Rule

// Mode selects the policy for operations with no matching rule.
type Mode int

const (
	// FailOpen treats a missing rule as unconditionally allowed.
	FailOpen Mode = iota
	// FailClosed treats a missing rule as denied.
	FailClosed
)

// DeniedError reports that a predicate rejected an operation.
type DeniedError struct {
	Operation Operation
	Ref       model.Reference
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("operation %s denied on '%s'", strings.ToUpper(string(e.Operation)), refTarget(e.Ref))
}

func refTarget(ref model.Reference) string {
	switch r := ref.(type) {
	case model.DocumentRef:
		return r.ID
	case model.CollectionRef:
		return r.Name
	case model.DatabaseRef:
		return r.Name
	default:
		return ""
	}
}

// Validator resolves and evaluates rules for references.
type Validator struct {
	table Table
	mode  Mode
}

// NewValidator creates a fail-open validator over table.
func NewValidator(table Table) *Validator {
	return NewValidatorWithMode(table, FailOpen)
}

// NewValidatorWithMode creates a validator with an explicit missing-rule
// policy.
func NewValidatorWithMode(table Table, mode Mode) *Validator {
	return &Validator{table: table, mode: mode}
}

// RuleForRef looks up the predicate for ref and operation. It returns nil at
// the first missing level and for unknown reference kinds, never panicking.
func (v *Validator) RuleForRef(ref model.Reference, op Operation) Rule {
	switch r := ref.(type) {
	case model.DocumentRef:
		return v.lookup(r.Collection.Database.Name, r.Collection.Name, op)
	case model.CollectionRef:
		return v.lookup(r.Database.Name, r.Name, op)
	default:
		return nil
	}
}

func (v *Validator) lookup(database, collection string, op Operation) Rule {
	databaseRules, ok := v.table[database]
	if !ok {
		return nil
	}
	collectionRules, ok := databaseRules[collection]
	if !ok {
		return nil
	}
	return collectionRules[op]
}

// Validate resolves the predicate for ref and operation and evaluates it
// with (req, res). A missing rule succeeds or fails per the validator mode.
// A false result yields a *DeniedError; predicate errors propagate as-is.
func (v *Validator) Validate(ctx context.Context, op Operation, ref model.Reference, req *Request, res *Response) error {
	rule := v.RuleForRef(ref, op)
	if rule == nil {
		if v.mode == FailClosed {
			return &DeniedError{Operation: op, Ref: ref}
		}
		return nil
	}

	valid, err := rule.Evaluate(ctx, req, res)
	if err != nil {
		return err
	}
	if !valid {
		return &DeniedError{Operation: op, Ref: ref}
	}
	return nil
}
