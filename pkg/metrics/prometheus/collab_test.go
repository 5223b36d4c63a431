package prometheus

import (
	"testing"

	"github.com/marmos91/copad/pkg/metrics"
)

func TestNoopWhenDisabled(t *testing.T) {
	if metrics.IsEnabled() {
		t.Skip("registry already initialized by another test")
	}

	m := NewCollabMetrics()

	// Every method must be safe on the disabled implementation.
	m.RecordConnectionOpened()
	m.RecordConnectionClosed()
	m.RecordEdit()
	m.RecordEditRejected()
	m.SetOpenDocuments(3)
	m.RecordDocumentEvicted()
	m.RecordStorageError("save")
	m.RecordSubscriberDropped()
}

func TestRecordsWhenEnabled(t *testing.T) {
	metrics.InitRegistry()
	m := NewCollabMetrics()

	m.RecordConnectionOpened()
	m.RecordEdit()
	m.SetOpenDocuments(2)
	m.RecordStorageError("load")

	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	found := make(map[string]bool)
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		"copad_connections_active",
		"copad_edits_total",
		"copad_documents_open",
		"copad_storage_errors_total",
	} {
		if !found[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}
