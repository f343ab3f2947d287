package broker_test

import (
	"github.com/myrjola/casegen/internal/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
)

// drain reads c until it is closed and returns the received payloads.
func drain(c <-chan int) []int {
	var received []int
	for p := range c {
		received = append(received, p)
	}
	return received
}

func TestChannelBroker(t *testing.T) {
	type testCase struct {
		name     string
		testFunc func(t *testing.T, b *broker.ChannelBroker[string, int])
	}
	tests := []testCase{
		{
			name: "unknown id returns closed channel",
			testFunc: func(t *testing.T, b *broker.ChannelBroker[string, int]) {
				c, ok := b.Subscribe("missing")
				require.False(t, ok)
				_, open := <-c
				require.False(t, open, "channel not closed")
			},
		},
		{
			name: "every subscriber receives the final payload",
			testFunc: func(t *testing.T, b *broker.ChannelBroker[string, int]) {
				b.Open("run")
				var wg sync.WaitGroup
				for range 3 {
					c, ok := b.Subscribe("run")
					require.True(t, ok)
					wg.Add(1)
					go func() {
						defer wg.Done()
						received := drain(c)
						if assert.NotEmpty(t, received) {
							assert.Equal(t, 100, received[len(received)-1])
							assert.IsIncreasing(t, received)
						}
					}()
				}
				for _, p := range []int{0, 15, 50, 85, 90, 100} {
					b.Publish("run", p)
				}
				b.Close("run")
				wg.Wait()
			},
		},
		{
			name: "late subscriber starts with latest payload",
			testFunc: func(t *testing.T, b *broker.ChannelBroker[string, int]) {
				b.Publish("run", 15)
				b.Publish("run", 50)
				c, ok := b.Subscribe("run")
				require.True(t, ok)
				require.Equal(t, 50, <-c)
				b.Close("run")
				require.Empty(t, drain(c))
			},
		},
		{
			name: "slow subscriber only keeps the newest payload",
			testFunc: func(t *testing.T, b *broker.ChannelBroker[string, int]) {
				b.Open("run")
				c, ok := b.Subscribe("run")
				require.True(t, ok)
				b.Publish("run", 1)
				b.Publish("run", 2)
				b.Publish("run", 3)
				b.Close("run")
				require.Equal(t, []int{3}, drain(c))
			},
		},
		{
			name: "unsubscribe closes only that channel",
			testFunc: func(t *testing.T, b *broker.ChannelBroker[string, int]) {
				b.Open("run")
				leaving, _ := b.Subscribe("run")
				staying, _ := b.Subscribe("run")
				b.Unsubscribe("run", leaving)
				b.Unsubscribe("run", leaving)
				require.Empty(t, drain(leaving))
				b.Publish("run", 7)
				require.Equal(t, 7, <-staying)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br := broker.NewChannelBroker[string, int]()
			go br.Start()
			t.Cleanup(func() {
				br.Stop()
			})
			tt.testFunc(t, br)
		})
	}
}

func TestChannelBroker_stopped(t *testing.T) {
	br := broker.NewChannelBroker[string, int]()
	go br.Start()
	br.Open("run")
	c, ok := br.Subscribe("run")
	require.True(t, ok)
	br.Stop()

	require.Empty(t, drain(c))
	br.Publish("run", 1)
	_, ok = br.Subscribe("run")
	require.False(t, ok)
}
