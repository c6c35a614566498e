package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0        = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	testScope = Scope{GuildID: "g1", ChannelID: "c1"}
)

func candidate(id string, offset int) Candidate {
	return Candidate{
		ID:          CandidateID(id),
		Scope:       testScope,
		Name:        "emote-" + id,
		ImageRef:    "https://cdn.example/" + id + ".png",
		SubmitterID: "u-" + id,
		CreatedAt:   t0.Add(time.Duration(offset) * time.Second),
	}
}

func TestRegister(t *testing.T) {
	r := New()

	id, err := r.Register(candidate("m1", 0))
	require.NoError(t, err)
	assert.Equal(t, CandidateID("m1"), id)

	st, ok := r.Lookup("m1")
	require.True(t, ok)
	assert.Equal(t, 0, st.Votes)
	assert.Equal(t, "emote-m1", st.Name)
	assert.Equal(t, 1, r.Len())
}

func TestRegister_TrimsName(t *testing.T) {
	r := New()
	c := candidate("m1", 0)
	c.Name = "  FeelsBadMan \n"

	_, err := r.Register(c)
	require.NoError(t, err)

	st, _ := r.Lookup("m1")
	assert.Equal(t, "FeelsBadMan", st.Name)
}

func TestRegister_Duplicate(t *testing.T) {
	r := New()
	_, err := r.Register(candidate("m1", 0))
	require.NoError(t, err)
	_, err = r.RecordVote("m1", "v1")
	require.NoError(t, err)

	_, err = r.Register(candidate("m1", 5))
	assert.ErrorIs(t, err, ErrDuplicateCandidate)

	// original entry untouched
	st, _ := r.Lookup("m1")
	assert.Equal(t, 1, st.Votes)
	assert.Equal(t, t0, st.CreatedAt)
}

func TestRegister_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Candidate)
	}{
		{"no id", func(c *Candidate) { c.ID = "" }},
		{"blank name", func(c *Candidate) { c.Name = "   " }},
		{"no channel", func(c *Candidate) { c.Scope.ChannelID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			c := candidate("m1", 0)
			tt.mutate(&c)
			_, err := r.Register(c)
			assert.ErrorIs(t, err, ErrInvalidCandidate)
			assert.Equal(t, 0, r.Len())
		})
	}
}

func TestRemove(t *testing.T) {
	r := New()
	_, err := r.Register(candidate("m1", 0))
	require.NoError(t, err)

	removed, err := r.Remove("m1")
	require.NoError(t, err)
	assert.Equal(t, CandidateID("m1"), removed.ID)
	assert.False(t, r.Contains("m1"))
	assert.Empty(t, r.Standings(testScope))

	_, err = r.Remove("m1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.RecordVote("m1", "v1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.RevokeVote("m1", "v1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterRemoveRegister_SameName(t *testing.T) {
	r := New()
	a := candidate("m1", 0)
	a.Name = "Pog"
	b := candidate("m2", 1)
	b.Name = "Pog"

	_, err := r.Register(a)
	require.NoError(t, err)
	_, err = r.Remove("m1")
	require.NoError(t, err)
	_, err = r.Register(b)
	require.NoError(t, err)

	assert.False(t, r.Contains("m1"))
	assert.True(t, r.Contains("m2"))
}

func TestRecordVote_Idempotent(t *testing.T) {
	r := New()
	_, err := r.Register(candidate("m1", 0))
	require.NoError(t, err)

	votes := []string{"a", "b", "a", "c", "b", "a"}
	var n int
	for _, v := range votes {
		n, err = r.RecordVote("m1", v)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, n)

	st, _ := r.Lookup("m1")
	assert.Equal(t, 3, st.Votes)
}

func TestRevokeVote(t *testing.T) {
	r := New()
	_, err := r.Register(candidate("m1", 0))
	require.NoError(t, err)
	_, _ = r.RecordVote("m1", "a")

	before, _ := r.Lookup("m1")
	n, err := r.RecordVote("m1", "b")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = r.RevokeVote("m1", "b")
	require.NoError(t, err)
	assert.Equal(t, before.Votes, n)

	// never voted: no-op
	n, err = r.RevokeVote("m1", "zzz")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStandings_Order(t *testing.T) {
	r := New()
	// A(count=3, t=1), B(count=3, t=2), C(count=5, t=3) => [C, A, B]
	for i, id := range []string{"A", "B", "C"} {
		_, err := r.Register(candidate(id, i+1))
		require.NoError(t, err)
	}
	vote := func(id string, n int) {
		for i := range n {
			_, err := r.RecordVote(CandidateID(id), fmt.Sprintf("v%d", i))
			require.NoError(t, err)
		}
	}
	vote("A", 3)
	vote("B", 3)
	vote("C", 5)

	st := r.Standings(testScope)
	require.Len(t, st, 3)
	assert.Equal(t, CandidateID("C"), st[0].ID)
	assert.Equal(t, CandidateID("A"), st[1].ID)
	assert.Equal(t, CandidateID("B"), st[2].ID)
	assert.Equal(t, []int{5, 3, 3}, []int{st[0].Votes, st[1].Votes, st[2].Votes})
}

func TestStandings_SameTimestampFallsBackToID(t *testing.T) {
	r := New()
	_, _ = r.Register(candidate("m2", 0))
	_, _ = r.Register(candidate("m1", 0))

	for range 5 {
		st := r.Standings(testScope)
		require.Len(t, st, 2)
		assert.Equal(t, CandidateID("m1"), st[0].ID)
	}
}

func TestStandings_ScopeIsolation(t *testing.T) {
	r := New()
	other := candidate("x1", 0)
	other.Scope = Scope{GuildID: "g2", ChannelID: "c9"}

	_, _ = r.Register(candidate("m1", 0))
	_, _ = r.Register(other)

	assert.Len(t, r.Standings(testScope), 1)
	assert.Len(t, r.Standings(other.Scope), 1)
	assert.Empty(t, r.Standings(Scope{GuildID: "nope", ChannelID: "nope"}))
}

func TestSubmissions(t *testing.T) {
	r := New()
	for i := range 3 {
		c := candidate(fmt.Sprintf("m%d", i), i)
		c.SubmitterID = "alice"
		_, _ = r.Register(c)
	}
	assert.Equal(t, 3, r.Submissions(testScope, "alice"))
	assert.Equal(t, 0, r.Submissions(testScope, "bob"))

	_, _ = r.Remove("m0")
	assert.Equal(t, 2, r.Submissions(testScope, "alice"))
}

func TestReplaceVoters(t *testing.T) {
	r := New()
	_, _ = r.Register(candidate("m1", 0))
	_, _ = r.RecordVote("m1", "old")

	n, err := r.ReplaceVoters("m1", []string{"a", "b", "a"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, _ = r.RevokeVote("m1", "old")
	assert.Equal(t, 2, n)
}

func TestStateRestore(t *testing.T) {
	r := New()
	_, _ = r.Register(candidate("m1", 0))
	_, _ = r.Register(candidate("m2", 1))
	_, _ = r.RecordVote("m2", "b")
	_, _ = r.RecordVote("m2", "a")

	st := r.State()
	require.Len(t, st.Candidates, 2)
	assert.Equal(t, CandidateID("m1"), st.Candidates[0].ID)
	assert.Equal(t, []string{"a", "b"}, st.Candidates[1].Voters)

	restored := New()
	require.NoError(t, restored.Restore(st))
	assert.Equal(t, r.Standings(testScope), restored.Standings(testScope))
	assert.Equal(t, st, restored.State())
}

func TestRestore_RejectsDuplicates(t *testing.T) {
	r := New()
	_, _ = r.Register(candidate("keep", 0))

	st := State{Candidates: []CandidateState{
		{Candidate: candidate("m1", 0)},
		{Candidate: candidate("m1", 1)},
	}}
	assert.ErrorIs(t, r.Restore(st), ErrDuplicateCandidate)
	assert.True(t, r.Contains("keep"))
}

func TestConcurrentVotesAndRemovals(t *testing.T) {
	r := New()
	const n = 20
	for i := range n {
		_, err := r.Register(candidate(fmt.Sprintf("m%d", i), i))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := range n {
		id := CandidateID(fmt.Sprintf("m%d", i))
		for v := range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = r.RecordVote(id, fmt.Sprintf("voter-%d", v%25))
			}()
		}
		if i%2 == 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = r.Remove(id)
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, st := range r.Standings(testScope) {
				assert.True(t, st.Votes <= 25)
			}
		}()
	}
	wg.Wait()

	st := r.Standings(testScope)
	assert.Len(t, st, n/2)
	for _, s := range st {
		assert.Equal(t, 25, s.Votes)
	}
}
