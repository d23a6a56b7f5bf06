package socket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusChannelReplaysBaseline(t *testing.T) {
	s := newStatusChannel()

	var got []bool
	s.subscribe(func(v bool) { got = append(got, v) })

	assert.Equal(t, []bool{false}, got)
}

func TestStatusChannelDistinct(t *testing.T) {
	s := newStatusChannel()

	var got []bool
	s.subscribe(func(v bool) { got = append(got, v) })

	assert.False(t, s.publish(1, false))
	assert.True(t, s.publish(2, true))
	assert.False(t, s.publish(3, true))
	assert.True(t, s.publish(4, false))
	assert.False(t, s.publish(5, false))

	assert.Equal(t, []bool{false, true, false}, got)
}

func TestStatusChannelIgnoresStaleSequence(t *testing.T) {
	s := newStatusChannel()

	s.publish(5, true)
	assert.False(t, s.publish(4, false))
	assert.True(t, s.current())
}

func TestStatusChannelLateSubscriberGetsCurrent(t *testing.T) {
	s := newStatusChannel()
	s.publish(1, true)

	var got []bool
	s.subscribe(func(v bool) { got = append(got, v) })
	assert.Equal(t, []bool{true}, got)
}

func TestStatusChannelCancel(t *testing.T) {
	s := newStatusChannel()

	var got []bool
	cancel := s.subscribe(func(v bool) { got = append(got, v) })
	cancel()
	cancel()
	s.publish(1, true)

	assert.Equal(t, []bool{false}, got)
}

func TestStatusChannelReentrantPublish(t *testing.T) {
	s := newStatusChannel()

	var got []bool
	s.subscribe(func(v bool) {
		got = append(got, v)
		if v {
			// A subscriber reacting to "connected" by tearing down.
			s.publish(2, false)
		}
	})

	done := make(chan struct{})
	go func() {
		s.publish(1, true)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reentrant publish deadlocked")
	}
	assert.Equal(t, []bool{false, true, false}, got)
	assert.False(t, s.current())
}

func TestStatusChannelSubscribeFromSubscriber(t *testing.T) {
	s := newStatusChannel()

	var inner []bool
	s.subscribe(func(v bool) {
		if v {
			s.subscribe(func(v bool) { inner = append(inner, v) })
		}
	})
	s.publish(1, true)
	s.publish(2, false)

	assert.Equal(t, []bool{true, false}, inner)
}

func TestStatusChannelChanges(t *testing.T) {
	s := newStatusChannel()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.changes(ctx)

	assert.False(t, <-ch)

	s.publish(1, true)
	assert.True(t, <-ch)

	// The reader last saw true; an unread false followed by true collapses
	// to nothing.
	s.publish(2, false)
	s.publish(3, true)
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %v", v)
	default:
	}

	s.publish(4, false)
	assert.False(t, <-ch)

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, time.Millisecond)
}

func TestStatusChannelChangesReplacesUnreadReplay(t *testing.T) {
	s := newStatusChannel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.changes(ctx)

	s.publish(1, true)
	assert.True(t, <-ch)
}

func TestStatusChannelReplayNotHeldByBlockedSubscriber(t *testing.T) {
	s := newStatusChannel()

	entered := make(chan struct{})
	release := make(chan struct{})
	s.subscribe(func(v bool) {
		if v {
			close(entered)
			<-release
		}
	})

	published := make(chan struct{})
	go func() {
		s.publish(1, true)
		close(published)
	}()
	<-entered

	var got []bool
	s.subscribe(func(v bool) { got = append(got, v) })
	assert.Equal(t, []bool{true}, got)

	close(release)
	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publish did not finish after the subscriber returned")
	}
	assert.Equal(t, []bool{true}, got)
}
