package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestBus_PublishInOrder(t *testing.T) {
	b := NewBus(zap.NewNop())
	sub := b.Subscribe(8)
	defer sub.Close()

	b.Publish(Event{Seq: 1}, Event{Seq: 2})
	b.Publish(Event{Seq: 3})
	for want := uint64(1); want <= 3; want++ {
		assert.Equal(t, want, (<-sub.C).Seq)
	}
}

func TestBus_DropsSlowSubscriber(t *testing.T) {
	b := NewBus(zap.NewNop())
	slow := b.Subscribe(1)
	fast := b.Subscribe(4)
	defer fast.Close()

	b.Publish(Event{Seq: 1}, Event{Seq: 2})
	assert.Equal(t, 1, b.Len())

	assert.Equal(t, uint64(1), (<-slow.C).Seq)
	_, open := <-slow.C
	assert.False(t, open)
	slow.Close()

	assert.Len(t, fast.C, 2)
}

func TestBus_CloseTwice(t *testing.T) {
	b := NewBus(zap.NewNop())
	sub := b.Subscribe(0)
	assert.Equal(t, DefaultSubscriptionBuffer, cap(sub.C))
	sub.Close()
	sub.Close()
	assert.Zero(t, b.Len())
}

func TestBus_CloseEndsSubscriptions(t *testing.T) {
	b := NewBus(zap.NewNop())
	sub := b.Subscribe(2)
	b.Close()

	_, ok := <-sub.C
	assert.False(t, ok)
	sub.Close()

	late := b.Subscribe(2)
	_, ok = <-late.C
	assert.False(t, ok)

	b.Publish(Event{Seq: 1})
	assert.Zero(t, b.Len())
}
