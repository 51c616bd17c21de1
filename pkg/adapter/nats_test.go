package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/sequential/log"
	"github.com/mpapenbr/sequential/pkg/telemetry/history"
	"github.com/mpapenbr/sequential/testsupport/tcnats"
)

func TestNatsSubject(t *testing.T) {
	assert.Equal(t, "telemetry.live_session_1", NatsSubject("live_session_1"))
}

func TestNatsSource(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	container, err := tcnats.SetupNats(ctx)
	if err != nil {
		t.Fatalf("SetupNats() error = %v", err)
	}
	defer container.Terminate(context.Background()) //nolint:errcheck // test

	store := history.New()
	defer store.Close()
	l := log.Default().Named("test")
	conn, err := nats.Connect(container.URL, NatsConnOptions(store, l)...)
	if err != nil {
		t.Fatalf("nats.Connect() error = %v", err)
	}
	defer conn.Close()

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error)
	src := NewNatsSource(conn, "s1", store, l)
	go func() { done <- src.Run(runCtx) }()

	assert.Eventually(t, func() bool { return store.Snapshot().Connected },
		10*time.Second, 10*time.Millisecond)

	pub, err := nats.Connect(container.URL)
	if err != nil {
		t.Fatalf("nats.Connect() error = %v", err)
	}
	defer pub.Close()
	assert.NoError(t, pub.Publish(NatsSubject("s1"),
		[]byte(`{"SessionID":"s1","Lap":4,"Data":[`+sample(1)+`,`+sample(2)+`]}`)))
	assert.NoError(t, pub.Publish(NatsSubject("other"), []byte(`[`+sample(1)+`]`)))
	assert.NoError(t, pub.Flush())

	assert.Eventually(t, func() bool { return len(store.Snapshot().Samples) == 2 },
		10*time.Second, 10*time.Millisecond)
	assert.Equal(t, 4, store.Snapshot().CurrentLap)

	stop()
	assert.NoError(t, <-done)
	assert.False(t, store.Snapshot().Connected)
}
