package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itizir/emotepoll/registry"
)

func TestPool_PreservesOrderPerKey(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = make(map[string][]string)
	)
	p := newPool(4, 8, func(_ context.Context, ev Event) State {
		r := ev.(ReactionAdded)
		mu.Lock()
		seen[r.ChannelID] = append(seen[r.ChannelID], r.ReactorID)
		mu.Unlock()
		return Voted
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.run(ctx)
		close(done)
	}()

	channels := []string{"a", "b", "c", "d", "e"}
	const perChannel = 100
	for i := range perChannel {
		for _, ch := range channels {
			ok := p.submit("g/"+ch, ReactionAdded{ChannelID: ch, ReactorID: fmt.Sprintf("%03d", i)})
			require.True(t, ok)
		}
	}
	cancel()
	<-done

	for _, ch := range channels {
		got := seen[ch]
		require.Len(t, got, perChannel, ch)
		for i, v := range got {
			assert.Equal(t, fmt.Sprintf("%03d", i), v)
		}
	}

	assert.False(t, p.submit("g/a", ReactionAdded{}))
}

func TestDispatcher_RunOrdersVotesPerCandidate(t *testing.T) {
	f := newFixture(t, Options{Workers: 3, QueueSize: 4})
	_, err := f.reg.Register(registry.Candidate{ID: "m1", Scope: registry.Scope{GuildID: guild, ChannelID: channel}, Name: "A"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.d.Run(ctx)
		close(done)
	}()

	// add then remove for the same voter, many times: last event wins
	for range 50 {
		require.True(t, f.d.Enqueue(ReactionAdded{MessageID: "m1", GuildID: guild, ChannelID: channel, ReactorID: "v", Emoji: "👍"}))
		require.True(t, f.d.Enqueue(ReactionRemoved{MessageID: "m1", GuildID: guild, ChannelID: channel, ReactorID: "v", Emoji: "👍"}))
	}
	require.True(t, f.d.Enqueue(ReactionAdded{MessageID: "m1", GuildID: guild, ChannelID: channel, ReactorID: "w", Emoji: "👍"}))

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	st, ok := f.reg.Lookup("m1")
	require.True(t, ok)
	assert.Equal(t, 1, st.Votes)

	assert.False(t, f.d.Enqueue(ReactionAdded{MessageID: "m1", GuildID: guild, ChannelID: channel, ReactorID: "x", Emoji: "👍"}))
}
