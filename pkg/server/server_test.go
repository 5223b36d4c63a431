package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/copad/internal/logger"
	"github.com/marmos91/copad/pkg/document"
	"github.com/marmos91/copad/pkg/metrics/prometheus"
	"github.com/marmos91/copad/pkg/registry"
	"github.com/marmos91/copad/pkg/store"
)

func setupServer(t *testing.T, st store.Store) *httptest.Server {
	t.Helper()
	reg := registry.New(st, prometheus.NewCollabMetrics(), registry.Config{
		PersistInterval: 50 * time.Millisecond,
	})
	t.Cleanup(reg.Close)

	ts := httptest.NewServer(NewRouter(reg, st))
	t.Cleanup(ts.Close)
	return ts
}

func setupTestStore(t *testing.T) *store.GORMStore {
	t.Helper()
	s, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dialSocket(t *testing.T, ts *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/socket/" + id
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) document.ServerMsg {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg document.ServerMsg
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func sendMsg(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func TestSocketEditFlow(t *testing.T) {
	ts := setupServer(t, nil)

	alice := dialSocket(t, ts, "doc1")
	msg := readMsg(t, alice)
	require.NotNil(t, msg.Identity)
	require.EqualValues(t, 0, *msg.Identity)

	sendMsg(t, alice, map[string]any{
		"Edit": map[string]any{"revision": 0, "operation": []any{"hello"}},
	})

	msg = readMsg(t, alice)
	require.NotNil(t, msg.History)
	require.Equal(t, 0, msg.History.Start)
	require.Len(t, msg.History.Operations, 1)
	require.EqualValues(t, 0, msg.History.Operations[0].ID)

	// A second client gets its own identity and the full history.
	bob := dialSocket(t, ts, "doc1")
	msg = readMsg(t, bob)
	require.NotNil(t, msg.Identity)
	require.EqualValues(t, 1, *msg.Identity)

	msg = readMsg(t, bob)
	require.NotNil(t, msg.History)
	require.Equal(t, 0, msg.History.Start)
	require.Len(t, msg.History.Operations, 1)

	resp, err := http.Get(ts.URL + "/api/text/doc1")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hello", string(body))
}

// syncWriter is a concurrency-safe buffer for capturing log output.
type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestSocketLogsCarryConnectionContext(t *testing.T) {
	out := &syncWriter{}
	logger.InitWithWriter(out, "INFO", "json", false)
	defer logger.InitWithWriter(os.Stdout, "INFO", "text", false)

	ts := setupServer(t, nil)

	conn := dialSocket(t, ts, "doc1")
	readMsg(t, conn) // identity

	// The connection log lines carry the scoped document and client fields.
	require.Eventually(t, func() bool {
		logs := out.String()
		return strings.Contains(logs, `"msg":"client connected"`) &&
			strings.Contains(logs, `"document_id":"doc1"`) &&
			strings.Contains(logs, `"client_id":0`)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSocketPresenceBroadcast(t *testing.T) {
	ts := setupServer(t, nil)

	alice := dialSocket(t, ts, "doc1")
	readMsg(t, alice) // identity

	bob := dialSocket(t, ts, "doc1")
	readMsg(t, bob) // identity

	sendMsg(t, alice, map[string]any{
		"ClientInfo": map[string]any{"name": "alice", "hue": 200},
	})

	msg := readMsg(t, bob)
	require.NotNil(t, msg.UserInfo)
	require.EqualValues(t, 0, msg.UserInfo.ID)
	require.NotNil(t, msg.UserInfo.Info)
	require.Equal(t, "alice", msg.UserInfo.Info.Name)
	require.EqualValues(t, 200, msg.UserInfo.Info.Hue)
}

func TestSocketLanguageBroadcast(t *testing.T) {
	ts := setupServer(t, nil)

	alice := dialSocket(t, ts, "doc1")
	readMsg(t, alice) // identity

	sendMsg(t, alice, map[string]any{"SetLanguage": "go"})

	msg := readMsg(t, alice)
	require.NotNil(t, msg.Language)
	require.Equal(t, "go", *msg.Language)

	// Late joiners see the language in their initial sync.
	bob := dialSocket(t, ts, "doc1")
	readMsg(t, bob) // identity
	msg = readMsg(t, bob)
	require.NotNil(t, msg.Language)
	require.Equal(t, "go", *msg.Language)
}

func TestSocketClosesOnBadFrame(t *testing.T) {
	ts := setupServer(t, nil)

	conn := dialSocket(t, ts, "doc1")
	readMsg(t, conn) // identity

	sendMsg(t, conn, map[string]any{"Bogus": 1})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg document.ServerMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
	}
}

func TestSocketClosesOnStaleRevision(t *testing.T) {
	ts := setupServer(t, nil)

	conn := dialSocket(t, ts, "doc1")
	readMsg(t, conn) // identity

	// Revision 5 is ahead of the log; the edit is fatal for this connection.
	sendMsg(t, conn, map[string]any{
		"Edit": map[string]any{"revision": 5, "operation": []any{"x"}},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg document.ServerMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
	}
}

func TestTextUnknownDocument(t *testing.T) {
	ts := setupServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/text/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, string(body))
}

func createDocument(t *testing.T, ts *httptest.Server, path string, body io.Reader) string {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "text/plain", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	id, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(id)
}

func TestCreateDocument(t *testing.T) {
	ts := setupServer(t, nil)

	// The response body is the bare id, not a JSON envelope.
	id := createDocument(t, ts, "/api/create", nil)
	require.Len(t, id, 6)
	require.Regexp(t, "^[a-z0-9]{6}$", id)
}

func TestCreateDocumentWithInitialText(t *testing.T) {
	ts := setupServer(t, nil)

	id := createDocument(t, ts, "/api/create", strings.NewReader("seeded text"))

	textResp, err := http.Get(ts.URL + "/api/text/" + id)
	require.NoError(t, err)
	defer textResp.Body.Close()
	body, err := io.ReadAll(textResp.Body)
	require.NoError(t, err)
	require.Equal(t, "seeded text", string(body))
}

func TestCreateDocumentWithLanguage(t *testing.T) {
	ts := setupServer(t, nil)

	id := createDocument(t, ts, "/api/create/python", nil)

	conn := dialSocket(t, ts, id)
	readMsg(t, conn) // identity
	msg := readMsg(t, conn)
	require.NotNil(t, msg.Language)
	require.Equal(t, "python", *msg.Language)
}

func TestStats(t *testing.T) {
	t.Run("without persistence", func(t *testing.T) {
		ts := setupServer(t, nil)

		conn := dialSocket(t, ts, "doc1")
		readMsg(t, conn) // identity

		resp, err := http.Get(ts.URL + "/api/stats")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var stats StatsResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
		require.EqualValues(t, 1, stats.NumDocuments)
		require.EqualValues(t, -1, stats.DatabaseSize)
		require.LessOrEqual(t, stats.StartTime, time.Now().Unix())
	})

	t.Run("with persistence", func(t *testing.T) {
		st := setupTestStore(t)
		require.NoError(t, st.Save(context.Background(), &store.PersistedDocument{ID: "old", Text: "x"}))

		ts := setupServer(t, st)

		resp, err := http.Get(ts.URL + "/api/stats")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var stats StatsResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
		require.EqualValues(t, 1, stats.NumDocuments)
	})
}

func TestPersistedDocumentSurvivesReload(t *testing.T) {
	st := setupTestStore(t)
	ts := setupServer(t, st)

	conn := dialSocket(t, ts, "doc1")
	readMsg(t, conn) // identity
	sendMsg(t, conn, map[string]any{
		"Edit": map[string]any{"revision": 0, "operation": []any{"persist me"}},
	})
	readMsg(t, conn) // history echo

	// Wait for the persistence worker to flush the snapshot.
	require.Eventually(t, func() bool {
		exists, err := st.Exists(context.Background(), "doc1")
		return err == nil && exists
	}, 5*time.Second, 20*time.Millisecond)

	// A brand new server backed by the same store serves the text without
	// any live session.
	ts2 := setupServer(t, st)
	resp, err := http.Get(ts2.URL + "/api/text/doc1")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "persist me", string(body))
}

func TestHealth(t *testing.T) {
	ts := setupServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.Equal(t, "healthy", health.Status)
}

func TestMetricsDisabledByDefault(t *testing.T) {
	ts := setupServer(t, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
