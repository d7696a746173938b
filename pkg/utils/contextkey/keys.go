package contextkey

// Key namespaces values stored on request contexts.
type Key string

func (k Key) String() string { return string(k) }

const (
	TraceID   Key = "trace_id"
	RequestID Key = "request_id"
	UserID    Key = "user_id"
)
