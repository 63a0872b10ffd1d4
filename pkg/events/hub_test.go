package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albarami/qnwis/pkg/models"
)

func TestHub_AttachRepublishesToSubscriber(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe("req-1")
	defer unsubscribe()

	upstream := make(chan models.ProgressEvent, 2)
	upstream <- models.ProgressEvent{Stage: models.StageClassify, Status: models.StatusRunning}
	upstream <- models.ProgressEvent{Stage: models.StageDone, Status: models.StatusComplete}
	close(upstream)

	h.Attach("req-1", upstream)

	var got []models.ProgressEvent
	for ev := range ch {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, models.StageClassify, got[0].Stage)
	assert.Equal(t, models.StageDone, got[1].Stage)
}

func TestHub_ChannelClosedAfterUpstreamCloses(t *testing.T) {
	h := NewHub()
	ch, _ := h.Subscribe("req-2")

	upstream := make(chan models.ProgressEvent)
	close(upstream)
	h.Attach("req-2", upstream)

	_, ok := <-ch
	assert.False(t, ok, "subscriber channel must be closed once the upstream run completes")
}

func TestHub_MultipleSubscribersEachGetEveryEvent(t *testing.T) {
	h := NewHub()
	ch1, unsub1 := h.Subscribe("req-3")
	ch2, unsub2 := h.Subscribe("req-3")
	defer unsub1()
	defer unsub2()

	upstream := make(chan models.ProgressEvent, 1)
	upstream <- models.ProgressEvent{Stage: models.StageSynthesize}
	close(upstream)
	h.Attach("req-3", upstream)

	ev1 := <-ch1
	ev2 := <-ch2
	assert.Equal(t, models.StageSynthesize, ev1.Stage)
	assert.Equal(t, models.StageSynthesize, ev2.Stage)
}

func TestHub_UnsubscribeStopsFurtherDelivery(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe("req-4")
	unsubscribe()

	// Publish directly (simulating a run still in flight after unsubscribe).
	h.publish("req-4", models.ProgressEvent{Stage: models.StageClassify})

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should not receive after unsubscribe, and is never closed by publish alone")
	case <-time.After(20 * time.Millisecond):
		// No delivery is the expected outcome.
	}
}

func TestHub_StalledSubscriberDoesNotBlockPublish(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe("req-5")
	defer unsubscribe()

	// Fill the subscriber's buffer (capacity 8) without draining it.
	for i := 0; i < 8; i++ {
		h.publish("req-5", models.ProgressEvent{Stage: models.StageClassify})
	}

	done := make(chan struct{})
	go func() {
		h.publish("req-5", models.ProgressEvent{Stage: models.StageDone})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish to a full subscriber channel must not block")
	}
	assert.Len(t, ch, 8)
}

func TestHub_SubscribeAfterPublishMissesEarlierEvents(t *testing.T) {
	h := NewHub()
	h.publish("req-6", models.ProgressEvent{Stage: models.StageClassify})

	ch, unsubscribe := h.Subscribe("req-6")
	defer unsubscribe()

	select {
	case <-ch:
		t.Fatal("a late subscriber must not receive events published before it subscribed")
	case <-time.After(20 * time.Millisecond):
	}
}
