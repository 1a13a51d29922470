package model

import "time"

// Server-value placeholders are sentinel objects embedded anywhere inside a
// write payload. The orchestrator resolves every occurrence, recursively
// through nested maps and slices, to a concrete value before rule validation
// and adapter dispatch, so rules always see resolved data.

const (
	serverValueKey = ".sv"

	// ServerValueTimestamp resolves to the current server time in
	// milliseconds since the Unix epoch.
	ServerValueTimestamp = "timestamp"
)

// ServerTimestamp returns the placeholder for the current server time.
func ServerTimestamp() map[string]interface{} {
	return map[string]interface{}{serverValueKey: ServerValueTimestamp}
}

// ResolveServerValues replaces every server-value placeholder in data with
// its concrete value, mutating nested containers in place. now fixes the
// timestamp used for the whole payload so one write never sees two clocks.
func ResolveServerValues(data map[string]interface{}, now time.Time) {
	for key, value := range data {
		data[key] = resolveValue(value, now)
	}
}

func resolveValue(value interface{}, now time.Time) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		if name, ok := serverValueName(v); ok {
			return resolveSentinel(name, now)
		}
		for key, nested := range v {
			v[key] = resolveValue(nested, now)
		}
		return v
	case []interface{}:
		for i, nested := range v {
			v[i] = resolveValue(nested, now)
		}
		return v
	default:
		return value
	}
}

func serverValueName(m map[string]interface{}) (string, bool) {
	if len(m) != 1 {
		return "", false
	}
	name, ok := m[serverValueKey].(string)
	return name, ok
}

func resolveSentinel(name string, now time.Time) interface{} {
	switch name {
	case ServerValueTimestamp:
		return now.UnixMilli()
	default:
		// Unknown sentinel names pass through untouched so future
		// placeholders fail loudly at the rule or adapter layer.
		return map[string]interface{}{serverValueKey: name}
	}
}
