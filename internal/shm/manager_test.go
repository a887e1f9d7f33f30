package shm

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func managerPair(t *testing.T) (*Manager, *Manager) {
	t.Helper()
	suffix := fmt.Sprintf("%s_%d", t.Name(), os.Getpid())
	producer, err := NewManager(ManagerConfig{
		Role:           RoleProducer,
		ProcessID:      100,
		MarketDataName: "/md_" + suffix,
		SignalName:     "/sig_" + suffix,
		ControlName:    "/ctl_" + suffix,
	})
	require.NoError(t, err)
	t.Cleanup(producer.Close)

	consumer, err := NewManager(ManagerConfig{
		Role:           RoleConsumer,
		ProcessID:      200,
		MarketDataName: "/md_" + suffix,
		SignalName:     "/sig_" + suffix,
		ControlName:    "/ctl_" + suffix,
	})
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	return producer, consumer
}

func TestManagerMarketDataFlow(t *testing.T) {
	producer, consumer := managerPair(t)

	msg := schema.MarketDataMessage{
		TimestampNs:     uint64(time.Now().UnixNano()),
		SymbolID:        1,
		Bid:             10,
		Ask:             11,
		UnderlyingPrice: 10.5,
	}
	require.True(t, producer.PublishMarketData(&msg))
	require.Equal(t, uint32(100), msg.SourcePID)

	var got schema.MarketDataMessage
	require.True(t, consumer.ConsumeMarketData(&got))
	require.Equal(t, msg, got)
}

func TestManagerRejectsInvalidRecords(t *testing.T) {
	producer, _ := managerPair(t)

	crossed := schema.MarketDataMessage{
		TimestampNs:     1,
		SymbolID:        1,
		Bid:             12,
		Ask:             11,
		UnderlyingPrice: 10,
	}
	require.False(t, producer.PublishMarketData(&crossed))

	noType := schema.ControlMessage{TimestampNs: 1}
	require.False(t, producer.PublishControl(&noType))

	st := producer.Status()
	require.Equal(t, uint64(2), st.FailedOperations)
	require.Equal(t, uint64(2), st.TotalOperations)
}

func TestManagerSignalExpiry(t *testing.T) {
	producer, consumer := managerPair(t)

	now := uint64(time.Now().UnixNano())
	expired := schema.TradingSignalMessage{
		TimestampNs:       now,
		ExpiryTimestampNs: now - uint64(time.Second),
		SymbolID:          1,
		Confidence:        0.9,
		Side:              schema.SideBuy,
		Quantity:          5,
	}
	live := expired
	live.ExpiryTimestampNs = now + uint64(time.Hour)
	live.SequenceNumber = 2

	require.True(t, producer.PublishSignal(&expired))
	require.True(t, producer.PublishSignal(&live))

	var got schema.TradingSignalMessage
	require.True(t, consumer.ConsumeSignal(&got))
	require.Equal(t, uint32(2), got.SequenceNumber, "expired signal must be skipped")
	require.False(t, consumer.ConsumeSignal(&got))
}

func TestManagerControlFlow(t *testing.T) {
	producer, consumer := managerPair(t)

	cmd := schema.ControlMessage{
		TimestampNs:    uint64(time.Now().UnixNano()),
		SequenceNumber: 1,
		MessageType:    uint32(schema.ControlStartTrading),
		Priority:       uint32(schema.PriorityHigh),
	}
	require.True(t, consumer.PublishControl(&cmd))

	var got schema.ControlMessage
	require.True(t, producer.ConsumeControl(&got))
	require.Equal(t, uint32(schema.ControlStartTrading), got.MessageType)
	require.Equal(t, uint32(200), got.SourcePID)
}

func TestManagerBatchConsume(t *testing.T) {
	producer, consumer := managerPair(t)

	for i := 1; i <= 50; i++ {
		msg := schema.MarketDataMessage{
			TimestampNs:        uint64(i),
			SymbolID:           1,
			Bid:                10,
			Ask:                11,
			UnderlyingPrice:    10.5,
			ProcessingSequence: uint32(i),
		}
		require.True(t, producer.PublishMarketData(&msg))
	}

	out := make([]schema.MarketDataMessage, 64)
	n := consumer.ConsumeMarketDataBatch(out)
	require.Equal(t, 32, n, "batch is capped at MaxBatch")
	require.Equal(t, uint32(1), out[0].ProcessingSequence)
	require.Equal(t, uint32(32), out[31].ProcessingSequence)

	n = consumer.ConsumeMarketDataBatch(out)
	require.Equal(t, 18, n)
}

func TestManagerStatusAndHealth(t *testing.T) {
	producer, consumer := managerPair(t)

	msg := schema.MarketDataMessage{
		TimestampNs:     1,
		SymbolID:        1,
		Bid:             10,
		Ask:             11,
		UnderlyingPrice: 10.5,
	}
	require.True(t, producer.PublishMarketData(&msg))
	var got schema.MarketDataMessage
	require.True(t, consumer.ConsumeMarketData(&got))

	st := producer.Status()
	require.Equal(t, uint64(1), st.MarketData.TotalWrites)
	require.Equal(t, uint64(1), st.MarketData.TotalReads)
	require.True(t, st.Healthy)
	require.True(t, producer.HealthCheck())

	producer.ResetMetrics()
	st = producer.Status()
	require.Zero(t, st.TotalOperations)
	require.Zero(t, st.MarketData.TotalWrites)
}

func TestManagerClearAll(t *testing.T) {
	producer, _ := managerPair(t)

	msg := schema.MarketDataMessage{
		TimestampNs:     1,
		SymbolID:        1,
		Bid:             10,
		Ask:             11,
		UnderlyingPrice: 10.5,
	}
	require.True(t, producer.PublishMarketData(&msg))
	producer.ClearAll()

	var got schema.MarketDataMessage
	require.False(t, producer.ConsumeMarketData(&got))
}

func TestManagerSetupFailure(t *testing.T) {
	suffix := fmt.Sprintf("%s_%d", t.Name(), os.Getpid())
	_, err := NewManager(ManagerConfig{
		Role:           RoleConsumer,
		MarketDataName: "/md_absent_" + suffix,
		SignalName:     "/sig_absent_" + suffix,
		ControlName:    "/ctl_absent_" + suffix,
		OpenTimeout:    30 * time.Millisecond,
	})
	require.Error(t, err)
}
