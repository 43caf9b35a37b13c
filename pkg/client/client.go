// Package client drives the Bitcoin app of a Ledger device. Every command
// is a single request/response exchange over a Transport, during which the
// device may interrupt its execution to ask the client for data it
// committed to. Every failure of a client operation is an *Error.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/ledger-bitcoin/pkg/apdu"
	"github.com/vulpemventures/ledger-bitcoin/pkg/interpreter"
)

// Transport moves commands to the device and returns the status word and
// data of its response. Errors returned by a Transport are reported by the
// client as ErrTransport errors carrying them unchanged.
type Transport interface {
	Exchange(ctx context.Context, cmd apdu.Command) (apdu.StatusWord, []byte, error)
}

// Client is a client for the Bitcoin app. It issues one command at a time
// and is not safe for concurrent use: callers sharing a device must
// serialize access to it.
type Client struct {
	transport Transport
	network   *chaincfg.Params

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

// New returns a client that exchanges commands over the given transport.
// Addresses returned by the device are decoded for the given network.
func New(transport Transport, network *chaincfg.Params) *Client {
	if network == nil {
		network = &chaincfg.MainNetParams
	}

	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("client: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("client: %s", format)
		log.WithError(err).Warnf(format, a...)
	}

	return &Client{transport, network, logFn, warnFn}
}

// makeRequest sends the command and serves every request the device issues
// while the command is interrupted, until the device returns a final
// status word. Failures of the interpreter are promoted to ErrInterpreter
// errors here, and nowhere else.
func (c *Client) makeRequest(
	ctx context.Context, cmd apdu.Command, interp *interpreter.Interpreter,
) ([]byte, error) {
	c.log("sending command 0x%02x with %d bytes of data", cmd.Ins, len(cmd.Data))

	sw, data, err := c.transport.Exchange(ctx, cmd)
	if err != nil {
		return nil, NewTransportError(err)
	}

	for sw == apdu.SwInterruptedExecution {
		if interp == nil {
			return nil, NewDeviceError(cmd.Ins, sw)
		}

		response, err := interp.Execute(data)
		if err != nil {
			return nil, promote(err)
		}

		sw, data, err = c.transport.Exchange(ctx, apdu.NewContinueCommand(response))
		if err != nil {
			return nil, NewTransportError(err)
		}
	}

	if sw != apdu.SwOK {
		c.log("command 0x%02x failed with status %s", cmd.Ins, sw)
		return nil, NewDeviceError(cmd.Ins, sw)
	}

	return data, nil
}

func promote(err error) error {
	var interpreterErr *interpreter.Error
	if errors.As(err, &interpreterErr) {
		return NewInterpreterError(interpreterErr)
	}
	return NewInterpreterError(&interpreter.Error{
		Kind:        interpreter.ErrMalformedRequest,
		Description: "interpreter failure",
		Cause:       err,
	})
}
