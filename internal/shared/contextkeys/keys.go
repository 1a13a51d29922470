package contextkeys

// contextKey is unexported so no other package can collide with our keys.
type contextKey string

const (
	// ClientIDKey carries the authenticated client id of the session.
	ClientIDKey contextKey = "client_id"

	// RequestIDKey carries the per-command correlation id.
	RequestIDKey contextKey = "request_id"

	// SubscriptionIDKey carries the subscription id while processing a
	// change event.
	SubscriptionIDKey contextKey = "subscription_id"

	// ComponentKey carries the component name for log enrichment.
	ComponentKey contextKey = "component"
)
