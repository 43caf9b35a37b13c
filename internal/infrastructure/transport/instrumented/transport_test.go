package instrumented_transport_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	instrumented_transport "github.com/vulpemventures/ledger-bitcoin/internal/infrastructure/transport/instrumented"
	"github.com/vulpemventures/ledger-bitcoin/pkg/apdu"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Exchange(
	ctx context.Context, cmd apdu.Command,
) (apdu.StatusWord, []byte, error) {
	args := m.Called(cmd.Ins)

	var data []byte
	if d := args.Get(1); d != nil {
		data = d.([]byte)
	}
	return args.Get(0).(apdu.StatusWord), data, args.Error(2)
}

func TestInstrumentedTransport(t *testing.T) {
	inner := &mockTransport{}
	inner.On("Exchange", apdu.InsGetMasterFingerprint).Return(apdu.SwOK, []byte{1, 2, 3, 4}, nil)
	inner.On("Exchange", apdu.InsSignPsbt).Return(apdu.SwDeny, nil, nil)
	inner.On("Exchange", apdu.InsSignMessage).Return(apdu.StatusWord(0), nil, fmt.Errorf("device unplugged"))

	registry := prometheus.NewRegistry()
	tr, err := instrumented_transport.NewTransport(inner, registry)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		sw, data, err := tr.Exchange(ctx, apdu.NewBitcoinCommand(apdu.InsGetMasterFingerprint, nil))
		require.NoError(t, err)
		require.Equal(t, apdu.SwOK, sw)
		require.Equal(t, []byte{1, 2, 3, 4}, data)
	}
	sw, _, err := tr.Exchange(ctx, apdu.NewBitcoinCommand(apdu.InsSignPsbt, nil))
	require.NoError(t, err)
	require.Equal(t, apdu.SwDeny, sw)
	_, _, err = tr.Exchange(ctx, apdu.NewBitcoinCommand(apdu.InsSignMessage, nil))
	require.EqualError(t, err, "device unplugged")

	families, err := registry.Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily)
	for _, f := range families {
		byName[f.GetName()] = f
	}

	exchanges := byName["ledger_transport_exchanges_total"]
	require.NotNil(t, exchanges)
	counts := make(map[string]float64)
	for _, m := range exchanges.GetMetric() {
		counts[labelValue(m, "ins")+"/"+labelValue(m, "status")] = m.GetCounter().GetValue()
	}
	require.Equal(t, map[string]float64{
		"05/" + apdu.SwOK.String():   2,
		"04/" + apdu.SwDeny.String(): 1,
	}, counts)

	failures := byName["ledger_transport_failures_total"]
	require.NotNil(t, failures)
	require.Len(t, failures.GetMetric(), 1)
	require.Equal(t, "10", labelValue(failures.GetMetric()[0], "ins"))
	require.Equal(t, float64(1), failures.GetMetric()[0].GetCounter().GetValue())

	duration := byName["ledger_transport_exchange_duration_seconds"]
	require.NotNil(t, duration)
	var observed uint64
	for _, m := range duration.GetMetric() {
		observed += m.GetHistogram().GetSampleCount()
	}
	require.Equal(t, uint64(4), observed)

	// registering twice on the same registry reuses the collectors.
	again, err := instrumented_transport.NewTransport(inner, registry)
	require.NoError(t, err)
	_, _, err = again.Exchange(ctx, apdu.NewBitcoinCommand(apdu.InsGetMasterFingerprint, nil))
	require.NoError(t, err)

	require.NoError(t, tr.Close())
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}
