package model

// Client describes the session issuing a command, as established by the
// transport. Rule predicates receive it through the request value.
type Client struct {
	// ID is the authenticated subject, empty for anonymous sessions.
	ID string `json:"id,omitempty"`

	// Admin is set when the session presented a valid admin credential.
	Admin bool `json:"admin,omitempty"`

	// Claims holds the remaining verified token claims.
	Claims map[string]interface{} `json:"claims,omitempty"`
}
