// Package ws_transport talks to a device exposed by a websocket bridge.
// Every binary message sent is an encoded APDU command, every binary
// message received is the raw response, status word included.
package ws_transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/ledger-bitcoin/pkg/apdu"
)

var (
	ErrClosed                = errors.New("transport is closed")
	ErrUnexpectedMessageType = errors.New("expected binary message")
)

type Transport struct {
	conn   *websocket.Conn
	closed bool
	lock   *sync.Mutex

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewTransport(ctx context.Context, url string) (*Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("websocket: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("websocket: %s", format)
		log.WithError(err).Warnf(format, a...)
	}

	return &Transport{
		conn: conn,
		lock: &sync.Mutex{},
		log:  logFn,
		warn: warnFn,
	}, nil
}

func (t *Transport) Exchange(
	ctx context.Context, cmd apdu.Command,
) (apdu.StatusWord, []byte, error) {
	raw, err := cmd.Encode()
	if err != nil {
		return 0, nil, err
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	if t.closed {
		return 0, nil, ErrClosed
	}

	deadline, _ := ctx.Deadline()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return 0, nil, err
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return 0, nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		// nolint
		t.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	t.log("=> %x", raw)
	if err := t.conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
		return 0, nil, t.contextErr(ctx, err)
	}

	msgType, msg, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(
			err, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived,
		) {
			t.warn(err, "connection dropped")
		}
		return 0, nil, t.contextErr(ctx, err)
	}
	if msgType != websocket.BinaryMessage {
		return 0, nil, ErrUnexpectedMessageType
	}
	t.log("<= %x", msg)

	return apdu.ParseResponse(msg)
}

func (t *Transport) Close() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := t.conn.WriteControl(
		websocket.CloseMessage, msg, time.Now().Add(time.Second),
	); err != nil {
		t.warn(err, "failed to send close message")
	}
	return t.conn.Close()
}

func (t *Transport) contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}
