package client_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vulpemventures/ledger-bitcoin/pkg/apdu"
)

// client.Transport
type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Exchange(
	ctx context.Context, cmd apdu.Command,
) (apdu.StatusWord, []byte, error) {
	args := m.Called(ctx, cmd)

	var data []byte
	if d := args.Get(1); d != nil {
		data = d.([]byte)
	}
	return args.Get(0).(apdu.StatusWord), data, args.Error(2)
}

// sent returns the i-th command received by the transport.
func (m *mockTransport) sent(i int) apdu.Command {
	return m.Calls[i].Arguments.Get(1).(apdu.Command)
}

func command(cla, ins byte) interface{} {
	return mock.MatchedBy(func(cmd apdu.Command) bool {
		return cmd.Cla == cla && cmd.Ins == ins
	})
}

func getVersion() interface{} {
	return command(apdu.ClaDefault, apdu.InsGetVersion)
}

func continueInterrupted() interface{} {
	return command(apdu.ClaFramework, apdu.InsContinueInterrupted)
}

func bitcoinCommand(ins byte) interface{} {
	return command(apdu.ClaBitcoin, ins)
}

func versionResponse(name, version string) []byte {
	buf := []byte{0x01, byte(len(name))}
	buf = append(buf, name...)
	buf = append(buf, byte(len(version)))
	buf = append(buf, version...)
	return append(buf, 0x01, 0x00)
}

func newMockedTransport() *mockTransport {
	return &mockTransport{}
}

func (m *mockTransport) withApp(name, version string) *mockTransport {
	m.On("Exchange", mock.Anything, getVersion()).
		Return(apdu.SwOK, versionResponse(name, version), nil)
	return m
}
