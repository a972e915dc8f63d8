package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishReachesSubscribersOfThatName(t *testing.T) {
	b := NewBus()
	resets, others := 0, 0

	unsubscribe := b.Subscribe(CartReset, func() { resets++ })
	b.Subscribe("other", func() { others++ })

	assert.Equal(t, 1, b.Publish(CartReset))
	assert.Equal(t, 1, resets)
	assert.Equal(t, 0, others)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, b.Publish(CartReset))
	assert.Equal(t, 1, resets)
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	assert.Equal(t, 0, NewBus().Publish("nobody"))
}
