// Package warden provides a Go SDK for the Warden decision API.
//
// Warden is the security core of a multi-user agent platform. This SDK lets
// Go services — gateways, bots, background workers — ask the core whether an
// action is authorized before executing it. It uses only the Go standard
// library (net/http) with zero external dependencies.
//
// Quick start:
//
//	// Set WARDEN_SERVER_ADDR and WARDEN_API_KEY env vars, then:
//	client := warden.NewClient()
//
//	resp, err := client.Authorize(ctx, warden.AuthorizeRequest{
//	    Action:     "tool.invoke",
//	    Permission: "tools.execute",
//	    Tool:       "web_search",
//	})
//	if err != nil {
//	    var denied *warden.DeniedError
//	    if errors.As(err, &denied) {
//	        fmt.Printf("Denied: %s\n", denied.Reason)
//	    }
//	}
package warden

// Decision represents the outcome of an authorization request.
type Decision string

const (
	// DecisionAllow indicates the action is permitted.
	DecisionAllow Decision = "allow"

	// DecisionDeny indicates the action is denied.
	DecisionDeny Decision = "deny"

	// DecisionAskUser indicates the action needs the end user's consent.
	DecisionAskUser Decision = "ask_user"
)

// AuthorizeRequest is the body of one decision request. Exactly one
// credential identifies the subject: a raw API key, a platform user id, or a
// channel identity (Channel plus ExternalID). When the request names no
// credential, the client fills in its configured API key.
type AuthorizeRequest struct {
	// APIKey is the subject's raw API key.
	APIKey string `json:"api_key,omitempty"`

	// UserID is the subject's platform user id.
	UserID string `json:"user_id,omitempty"`

	// ExternalID is the subject's identity on an external channel.
	// Requires Channel.
	ExternalID string `json:"external_id,omitempty"`

	// Action names what the subject is trying to do, e.g. "tool.invoke".
	Action string `json:"action"`

	// Resource names what the action touches.
	Resource string `json:"resource,omitempty"`

	// Permission is the required permission, e.g. "tools.execute".
	Permission string `json:"permission"`

	// Actor is the origin class: "user", "agent", or "system".
	Actor string `json:"actor,omitempty"`

	// Tool is the tool being invoked, when the action is a tool call.
	Tool string `json:"tool,omitempty"`

	// Args are the tool arguments, inspected by the threat detector.
	Args map[string]any `json:"args,omitempty"`

	// DataBytes is the size of data moved by the action.
	DataBytes int `json:"data_bytes,omitempty"`

	// Source is the network origin of the request.
	Source string `json:"source,omitempty"`

	// Channel is the ingress channel ("telegram", "slack", "api").
	Channel string `json:"channel,omitempty"`
}

// User is the redacted identity echoed with a decision. Credential fields
// never appear on the wire.
type User struct {
	ID          string            `json:"id"`
	Username    string            `json:"username"`
	Email       string            `json:"email,omitempty"`
	RoleName    string            `json:"role_name"`
	IsActive    bool              `json:"is_active"`
	Channels    map[string]string `json:"channels,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   string            `json:"created_at,omitempty"`
	LastLoginAt string            `json:"last_login_at,omitempty"`
}

// ThreatEvent is a detector event attached to a decision when the request
// tripped a rule.
type ThreatEvent struct {
	ID          string         `json:"id"`
	Timestamp   int64          `json:"timestamp"`
	Category    string         `json:"category"`
	Level       string         `json:"level"`
	Description string         `json:"description"`
	UserID      string         `json:"user_id,omitempty"`
	Source      string         `json:"source,omitempty"`
	Channel     string         `json:"channel,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Mitigated   bool           `json:"mitigated"`
	Action      string         `json:"action,omitempty"`
}

// AuthorizeResponse is the decided outcome.
type AuthorizeResponse struct {
	// User is the resolved, redacted subject identity.
	User *User `json:"user"`

	// Decision is the outcome.
	Decision Decision `json:"decision"`

	// Reason explains a deny or ask_user outcome.
	Reason string `json:"reason,omitempty"`

	// Threat is the highest-severity event the request tripped, if any.
	Threat *ThreatEvent `json:"threat,omitempty"`
}
