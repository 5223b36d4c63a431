package logger

// Standard field keys for structured logging. Use these consistently across
// all log statements so document and connection events can be aggregated and
// queried uniformly.
const (
	// Document & session
	KeyDocumentID = "document_id" // Short document identifier from the URL
	KeyClientID   = "client_id"   // Session-scoped numeric client identifier
	KeyRevision   = "revision"    // Revision log length at the time of the event
	KeyLanguage   = "language"    // Editor language tag

	// Client identification
	KeyRemoteAddr = "remote_addr" // Client address as seen by the server
	KeyRequestID  = "request_id"  // HTTP middleware request ID

	// Operation metadata
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message

	// Storage
	KeyStoreOp = "store_op" // Durable store operation: load, save, count
)
