package model

// Query describes the flat conjunction of filters applied to a collection
// read or subscription. It is passed through to the storage adapter untouched.
type Query struct {
	Where   []Filter // List of where clauses, combined with AND
	OrderBy []Order  // List of order by clauses
	Limit   int      // Maximum number of documents, 0 means no limit
}

// Filter represents a single where clause.
type Filter struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// Order represents a single ordering clause.
type Order struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

const (
	// Ascending is used for ordering in ascending order.
	Ascending = "asc"
	// Descending is used for ordering in descending order.
	Descending = "desc"
)

// Operator types for filters
const (
	OperatorEqual              = "=="
	OperatorNotEqual           = "!="
	OperatorLessThan           = "<"
	OperatorLessThanOrEqual    = "<="
	OperatorGreaterThan        = ">"
	OperatorGreaterThanOrEqual = ">="
	OperatorArrayContains      = "array-contains"
	OperatorArrayNotContains   = "array-not-contains"
)

// IsEmpty reports whether the query narrows the collection at all.
func (q Query) IsEmpty() bool {
	return len(q.Where) == 0 && len(q.OrderBy) == 0 && q.Limit == 0
}
