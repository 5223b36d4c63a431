package metrics

// CollabMetrics provides observability for the collaborative editing core.
//
// Implementations must tolerate a nil receiver so call sites can stay
// unconditional; pass the value returned by prometheus.NewCollabMetrics even
// when metrics are disabled.
type CollabMetrics interface {
	// RecordConnectionOpened increments the live websocket connection gauge.
	RecordConnectionOpened()

	// RecordConnectionClosed decrements the live websocket connection gauge.
	RecordConnectionClosed()

	// RecordEdit records one successfully applied edit operation.
	RecordEdit()

	// RecordEditRejected records an edit that failed validation or transform
	// and terminated its connection.
	RecordEditRejected()

	// SetOpenDocuments records the number of documents resident in memory.
	SetOpenDocuments(n int)

	// RecordDocumentEvicted records an idle document removed by the cleaner.
	RecordDocumentEvicted()

	// RecordStorageError records a failed durable-store operation.
	// op is "load" or "save".
	RecordStorageError(op string)

	// RecordSubscriberDropped records a presence subscriber disconnected for
	// lagging behind the broadcast channel.
	RecordSubscriberDropped()
}
