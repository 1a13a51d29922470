package rules

import (
	"encoding/json"
	"fmt"
	"os"
)

// TableDefinition is the serialized rule table: database, collection and
// operation map to a CEL expression string.
type TableDefinition map[string]map[string]map[string]string

// ParseTable compiles a serialized table definition.
func ParseTable(def TableDefinition) (Table, error) {
	table := make(Table, len(def))
	for database, collections := range def {
		table[database] = make(map[string]map[Operation]Rule, len(collections))
		for collection, operations := range collections {
			table[database][collection] = make(map[Operation]Rule, len(operations))
			for op, expression := range operations {
				switch Operation(op) {
				case OperationCreate, OperationRead, OperationUpdate, OperationDelete:
				default:
					return nil, fmt.Errorf("unknown operation %q in rules for %s/%s", op, database, collection)
				}
				rule, err := CompileCEL(expression)
				if err != nil {
					return nil, fmt.Errorf("invalid rule for %s/%s %s: %w", database, collection, op, err)
				}
				table[database][collection][Operation(op)] = rule
			}
		}
	}
	return table, nil
}

// LoadTable reads and compiles a JSON table definition from path.
func LoadTable(path string) (Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var def TableDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	return ParseTable(def)
}
