package client_test

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/ledger-bitcoin/pkg/apdu"
	"github.com/vulpemventures/ledger-bitcoin/pkg/client"
	"github.com/vulpemventures/ledger-bitcoin/pkg/interpreter"
)

var allKinds = []client.ErrorKind{
	client.ErrInvalidPsbt,
	client.ErrTransport,
	client.ErrInterpreter,
	client.ErrDevice,
	client.ErrUnexpectedResult,
	client.ErrUnsupportedAppVersion,
}

type usbError struct {
	endpoint int
}

func (e usbError) Error() string {
	return "usb endpoint stalled"
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *client.Error
		kind client.ErrorKind
	}{
		{"invalid psbt", client.NewInvalidPsbtError(), client.ErrInvalidPsbt},
		{"transport", client.NewTransportError(usbError{1}), client.ErrTransport},
		{"interpreter", client.NewInterpreterError(&interpreter.Error{Kind: interpreter.ErrEmptyQueue}), client.ErrInterpreter},
		{"device", client.NewDeviceError(0x04, apdu.SwDeny), client.ErrDevice},
		{"unexpected result", client.NewUnexpectedResultError(0x05, []byte{0x01}), client.ErrUnexpectedResult},
		{"unsupported app version", client.NewUnsupportedAppVersionError(), client.ErrUnsupportedAppVersion},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.kind, tt.err.Kind())
			require.NotEmpty(t, tt.err.Error())

			for _, k := range allKinds {
				require.Equal(t, k == tt.kind, errors.Is(tt.err, k), k.String())
			}

			_, hasCommand := tt.err.Command()
			require.Equal(
				t, tt.kind == client.ErrDevice || tt.kind == client.ErrUnexpectedResult,
				hasCommand,
			)
			_, hasStatus := tt.err.Status()
			require.Equal(t, tt.kind == client.ErrDevice, hasStatus)
			_, hasData := tt.err.Data()
			require.Equal(t, tt.kind == client.ErrUnexpectedResult, hasData)
			require.Equal(t, tt.kind == client.ErrTransport, tt.err.Transport() != nil)
			require.Equal(t, tt.kind == client.ErrInterpreter, tt.err.Interpreter() != nil)
		})
	}
}

func TestPayloadlessKinds(t *testing.T) {
	t.Parallel()

	invalidPsbt := client.NewInvalidPsbtError()
	unsupported := client.NewUnsupportedAppVersionError()

	for _, err := range []*client.Error{invalidPsbt, unsupported} {
		require.Nil(t, err.Unwrap())
		require.Nil(t, err.Transport())
		require.Nil(t, err.Interpreter())
	}
	require.NotEqual(t, invalidPsbt.Kind(), unsupported.Kind())
	require.NotEqual(t, invalidPsbt.Error(), unsupported.Error())
	require.False(t, errors.Is(invalidPsbt, client.ErrUnsupportedAppVersion))
	require.False(t, errors.Is(unsupported, client.ErrInvalidPsbt))
}

func TestInterpreterPromotion(t *testing.T) {
	t.Parallel()

	policyCause := errors.New("change output not owned by wallet")
	interpreterErr := &interpreter.Error{
		Kind:        interpreter.ErrPolicyViolation,
		Command:     interpreter.Yield,
		Description: "yielded value rejected",
		Cause:       policyCause,
	}

	err := client.NewInterpreterError(interpreterErr)
	require.Equal(t, client.ErrInterpreter, err.Kind())
	require.Same(t, interpreterErr, err.Interpreter())
	require.Equal(t, interpreter.ErrPolicyViolation, err.Interpreter().Kind)
	require.Same(t, policyCause, err.Interpreter().Cause)

	require.ErrorIs(t, err, client.ErrInterpreter)
	require.ErrorIs(t, err, interpreter.ErrPolicyViolation)
	require.ErrorIs(t, err, policyCause)

	var target *interpreter.Error
	require.ErrorAs(t, err, &target)
	require.Same(t, interpreterErr, target)
}

func TestDeviceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		command byte
		status  apdu.StatusWord
	}{
		{0x40, apdu.SwNotSupported},
		{0x04, apdu.SwDeny},
		{0x00, apdu.StatusWord(0x0000)},
		{0xff, apdu.StatusWord(0xffff)},
		{0x10, apdu.StatusWord(0x6f42)},
	}
	for _, tt := range tests {
		err := client.NewDeviceError(tt.command, tt.status)

		command, ok := err.Command()
		require.True(t, ok)
		require.Equal(t, tt.command, command)

		status, ok := err.Status()
		require.True(t, ok)
		require.Equal(t, tt.status, status)

		data, ok := err.Data()
		require.False(t, ok)
		require.Nil(t, data)
		require.Nil(t, err.Unwrap())
	}

	err := client.NewDeviceError(0x40, apdu.StatusWord(0x6A82))
	require.Contains(t, err.Error(), "0x40")
	require.Contains(t, err.Error(), "0x6A82")
}

func TestUnexpectedResultError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		command byte
		data    []byte
	}{
		{"empty", 0x10, []byte{}},
		{"nil", 0x10, nil},
		{"single byte", 0x05, []byte{0x00}},
		{"ordered", 0x03, []byte{0x03, 0x02, 0x01, 0x00, 0xff}},
		{"max apdu", 0x04, make([]byte, apdu.MaxDataLength)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			input := append([]byte(nil), tt.data...)
			err := client.NewUnexpectedResultError(tt.command, input)

			command, ok := err.Command()
			require.True(t, ok)
			require.Equal(t, tt.command, command)

			data, ok := err.Data()
			require.True(t, ok)
			require.NotNil(t, data)
			require.Len(t, data, len(tt.data))
			if len(tt.data) > 0 {
				require.Equal(t, tt.data, data)

				input[0] ^= 0xff
				data[0] ^= 0xff
				stored, _ := err.Data()
				require.Equal(t, tt.data, stored)
			}

			_, ok = err.Status()
			require.False(t, ok)
		})
	}
}

func TestTransportCause(t *testing.T) {
	t.Parallel()

	cause := usbError{endpoint: 3}
	err := error(client.NewTransportError(cause))

	got, ok := client.TransportCause[usbError](err)
	require.True(t, ok)
	require.Equal(t, cause, got)

	_, ok = client.TransportCause[*net.OpError](err)
	require.False(t, ok)

	opErr := &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset")}
	netErr, ok := client.TransportCause[net.Error](client.NewTransportError(opErr))
	require.True(t, ok)
	require.Same(t, opErr, netErr)

	_, ok = client.TransportCause[usbError](client.NewDeviceError(0x01, apdu.SwDeny))
	require.False(t, ok)

	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, client.ErrTransport)
	_, hasCommand := client.NewTransportError(cause).Command()
	require.False(t, hasCommand)
}
