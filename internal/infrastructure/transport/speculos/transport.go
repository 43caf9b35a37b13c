// Package speculos_transport talks to an emulated device through the APDU
// port of the speculos emulator.
package speculos_transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/ledger-bitcoin/pkg/apdu"
)

const (
	DefaultAddress = "127.0.0.1:9999"

	lengthPrefixSize = 4
	statusWordSize   = 2
	// maxResponseLength bounds what is read from a misbehaving peer.
	maxResponseLength = 1 << 16
)

var (
	ErrClosed           = errors.New("transport is closed")
	ErrResponseTooLarge = errors.New("response exceeds maximum length")
)

type Transport struct {
	conn   net.Conn
	closed bool
	lock   *sync.Mutex

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

// NewTransport dials the emulator at the given address. Every frame is the
// big endian length of the payload followed by the payload. Responses carry
// the length of the data, the status word is not counted.
func NewTransport(ctx context.Context, addr string) (*Transport, error) {
	if len(addr) <= 0 {
		addr = DefaultAddress
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return newTransport(conn), nil
}

func newTransport(conn net.Conn) *Transport {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("speculos: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("speculos: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &Transport{
		conn: conn,
		lock: &sync.Mutex{},
		log:  logFn,
		warn: warnFn,
	}
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

	stop := t.bindDeadline(ctx)
	defer stop()

	frame := make([]byte, lengthPrefixSize, lengthPrefixSize+len(raw))
	binary.BigEndian.PutUint32(frame, uint32(len(raw)))
	frame = append(frame, raw...)

	t.log("=> %x", raw)
	if _, err := t.conn.Write(frame); err != nil {
		return 0, nil, t.contextErr(ctx, err)
	}

	prefix := make([]byte, lengthPrefixSize)
	if _, err := io.ReadFull(t.conn, prefix); err != nil {
		return 0, nil, t.contextErr(ctx, err)
	}
	length := binary.BigEndian.Uint32(prefix)
	if length > maxResponseLength {
		return 0, nil, ErrResponseTooLarge
	}

	resp := make([]byte, int(length)+statusWordSize)
	if _, err := io.ReadFull(t.conn, resp); err != nil {
		return 0, nil, t.contextErr(ctx, err)
	}
	t.log("<= %x", resp)

	return apdu.ParseResponse(resp)
}

func (t *Transport) Close() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

// bindDeadline makes pending reads and writes fail once ctx is done.
func (t *Transport) bindDeadline(ctx context.Context) func() {
	deadline, _ := ctx.Deadline()
	if err := t.conn.SetDeadline(deadline); err != nil {
		t.warn(err, "failed to set connection deadline")
	}
	stop := context.AfterFunc(ctx, func() {
		// nolint
		t.conn.SetDeadline(time.Unix(1, 0))
	})
	return func() { stop() }
}

// contextErr returns the context error in place of the timeout it caused,
// wrapping the network error.
func (t *Transport) contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}
