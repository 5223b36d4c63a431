package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/marmos91/copad/internal/logger"
)

// pollInterval is the safety-valve tick of the connection loop. Edits are
// pushed through the notify channel; the tick only bounds how long a lost
// wakeup could go unnoticed.
const pollInterval = 500 * time.Millisecond

var validate = validator.New()

// HandleConnection runs the duplex session for one upgraded websocket until
// the client disconnects, the context is cancelled, or a protocol violation
// closes the connection. It owns all writes to the socket.
func (d *Document) HandleConnection(ctx context.Context, sock *websocket.Conn) {
	id := d.NextClientID()
	if lc := logger.FromContext(ctx); lc != nil {
		lc.ClientID = id
		lc.HasClient = true
	} else {
		ctx = logger.WithContext(ctx, connLogContext(id, sock))
	}
	d.metrics.RecordConnectionOpened()
	logger.InfoCtx(ctx, "client connected")

	if err := d.serveConnection(ctx, id, sock); err != nil {
		logger.WarnCtx(ctx, "connection terminated early", logger.KeyError, err)
	}

	d.RemoveUser(id)
	d.metrics.RecordConnectionClosed()
	logger.InfoCtx(ctx, "client disconnected")
}

// connLogContext builds a connection-scoped log context for callers that did
// not attach one themselves.
func connLogContext(id uint64, sock *websocket.Conn) *logger.LogContext {
	lc := logger.NewLogContext("", sock.RemoteAddr().String())
	lc.ClientID = id
	lc.HasClient = true
	return lc
}

func (d *Document) serveConnection(ctx context.Context, id uint64, sock *websocket.Conn) error {
	if err := sock.WriteJSON(identityMsg(id)); err != nil {
		return fmt.Errorf("send identity: %w", err)
	}

	// Subscribe before the snapshot so presence updates raced with it are
	// delivered rather than lost.
	sub := d.subscribe()
	defer d.unsubscribe(sub)

	msgs, seenRev := d.initialSync()
	for _, msg := range msgs {
		if err := sock.WriteJSON(msg); err != nil {
			return fmt.Errorf("initial sync: %w", err)
		}
	}

	inbound := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go readFrames(sock, inbound, readErr, done)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		// Grab the wake channel before checking the revision: an edit landing
		// between the check and the select closes this same channel.
		notify := d.notified()
		if ops := d.historySince(seenRev); len(ops) > 0 {
			if err := sock.WriteJSON(historyMsg(seenRev, ops)); err != nil {
				return fmt.Errorf("send history: %w", err)
			}
			seenRev += len(ops)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-notify:
		case msg, ok := <-sub.ch:
			if !ok {
				return errors.New("presence channel overflowed")
			}
			if err := sock.WriteJSON(msg); err != nil {
				return fmt.Errorf("send broadcast: %w", err)
			}
		case data := <-inbound:
			if err := d.handleMessage(id, data); err != nil {
				return err
			}
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return err
		}
	}
}

// readFrames pumps inbound text frames to the connection loop. Binary frames
// are dropped; ping and pong are consumed by the websocket library during
// the read.
func readFrames(sock *websocket.Conn, inbound chan<- []byte, readErr chan<- error, done <-chan struct{}) {
	for {
		msgType, data, err := sock.ReadMessage()
		if err != nil {
			select {
			case readErr <- err:
			case <-done:
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		select {
		case inbound <- data:
		case <-done:
			return
		}
	}
}

// handleMessage dispatches one inbound frame. Any returned error is a
// protocol or edit failure that must close this connection; other clients
// and the session itself are unaffected.
func (d *Document) handleMessage(id uint64, data []byte) error {
	msg, err := parseClientMsg(data)
	if err != nil {
		return err
	}
	switch {
	case msg.Edit != nil:
		if msg.Edit.Operation == nil {
			return errors.New("edit frame missing operation")
		}
		if err := d.ApplyEdit(id, msg.Edit.Revision, msg.Edit.Operation); err != nil {
			return fmt.Errorf("invalid edit operation: %w", err)
		}
	case msg.SetLanguage != nil:
		d.SetLanguage(*msg.SetLanguage)
	case msg.ClientInfo != nil:
		if err := validate.Struct(msg.ClientInfo); err != nil {
			return fmt.Errorf("invalid client info: %w", err)
		}
		d.SetUserInfo(id, UserInfo{Name: *msg.ClientInfo.Name, Hue: *msg.ClientInfo.Hue})
	case msg.CursorData != nil:
		d.SetCursorData(id, *msg.CursorData)
	}
	return nil
}
