// Package registry owns the candidates under vote and their tallies.
package registry

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound           = errors.New("candidate not found")
	ErrDuplicateCandidate = errors.New("candidate already registered")
	ErrInvalidCandidate   = errors.New("invalid candidate")
)

// Scope isolates one voting pool from another.
type Scope struct {
	GuildID   string
	ChannelID string
}

func (s Scope) String() string {
	return s.GuildID + "/" + s.ChannelID
}

// CandidateID is the platform id of the message hosting the candidate image.
type CandidateID string

type Candidate struct {
	ID            CandidateID
	Scope         Scope
	Name          string
	ImageRef      string
	SubmitterID   string
	SubmitterName string
	CreatedAt     time.Time
}

// Standing is a copy of a candidate together with its vote count.
type Standing struct {
	Candidate
	Votes int
}

type entry struct {
	candidate Candidate
	voters    map[string]struct{}
}

type scope struct {
	mu         sync.Mutex
	candidates map[CandidateID]*entry
}

// Registry maps candidate ids to candidates and their voter sets.
//
// Lock order is always r.mu before scope.mu. Register, Remove and Restore
// hold r.mu exclusively since they change the id index; everything else holds
// it shared and serialises on the scope mutex only.
type Registry struct {
	mu     sync.RWMutex
	scopes map[Scope]*scope
	index  map[CandidateID]Scope
}

func New() *Registry {
	return &Registry{
		scopes: make(map[Scope]*scope),
		index:  make(map[CandidateID]Scope),
	}
}

func (r *Registry) Register(c Candidate) (CandidateID, error) {
	c.Name = strings.TrimSpace(c.Name)
	switch {
	case c.ID == "":
		return "", fmt.Errorf("%w: missing id", ErrInvalidCandidate)
	case c.Name == "":
		return "", fmt.Errorf("%w: empty name", ErrInvalidCandidate)
	case c.Scope.ChannelID == "":
		return "", fmt.Errorf("%w: missing channel", ErrInvalidCandidate)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[c.ID]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateCandidate, c.ID)
	}

	sc, ok := r.scopes[c.Scope]
	if !ok {
		sc = &scope{candidates: make(map[CandidateID]*entry)}
		r.scopes[c.Scope] = sc
	}

	sc.mu.Lock()
	sc.candidates[c.ID] = &entry{candidate: c, voters: make(map[string]struct{})}
	sc.mu.Unlock()

	r.index[c.ID] = c.Scope
	return c.ID, nil
}

func (r *Registry) Remove(id CandidateID) (Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.index[id]
	if !ok {
		return Candidate{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	sc := r.scopes[s]

	sc.mu.Lock()
	e := sc.candidates[id]
	delete(sc.candidates, id)
	empty := len(sc.candidates) == 0
	sc.mu.Unlock()

	delete(r.index, id)
	if empty {
		delete(r.scopes, s)
	}
	return e.candidate, nil
}

// RecordVote adds voter to the candidate's tally. Repeated votes by the same
// voter leave the count unchanged.
func (r *Registry) RecordVote(id CandidateID, voter string) (int, error) {
	return r.withEntry(id, func(e *entry) int {
		e.voters[voter] = struct{}{}
		return len(e.voters)
	})
}

// RevokeVote removes voter from the candidate's tally, if present.
func (r *Registry) RevokeVote(id CandidateID, voter string) (int, error) {
	return r.withEntry(id, func(e *entry) int {
		delete(e.voters, voter)
		return len(e.voters)
	})
}

// ReplaceVoters overwrites the voter set of a candidate.
func (r *Registry) ReplaceVoters(id CandidateID, voters []string) (int, error) {
	return r.withEntry(id, func(e *entry) int {
		e.voters = make(map[string]struct{}, len(voters))
		for _, v := range voters {
			e.voters[v] = struct{}{}
		}
		return len(e.voters)
	})
}

func (r *Registry) withEntry(id CandidateID, fn func(*entry) int) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.index[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	sc := r.scopes[s]

	sc.mu.Lock()
	defer sc.mu.Unlock()
	return fn(sc.candidates[id]), nil
}

// Lookup returns a copy of the candidate and its current count.
func (r *Registry) Lookup(id CandidateID) (Standing, bool) {
	var st Standing
	_, err := r.withEntry(id, func(e *entry) int {
		st = Standing{Candidate: e.candidate, Votes: len(e.voters)}
		return st.Votes
	})
	return st, err == nil
}

func (r *Registry) Contains(id CandidateID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[id]
	return ok
}

// Standings returns the candidates of a scope ranked by votes, highest first.
// Ties go to the earlier submission, then to the lower id.
func (r *Registry) Standings(s Scope) []Standing {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sc, ok := r.scopes[s]
	if !ok {
		return nil
	}

	sc.mu.Lock()
	out := make([]Standing, 0, len(sc.candidates))
	for _, e := range sc.candidates {
		out = append(out, Standing{Candidate: e.candidate, Votes: len(e.voters)})
	}
	sc.mu.Unlock()

	slices.SortFunc(out, compareStandings)
	return out
}

func compareStandings(a, b Standing) int {
	if a.Votes != b.Votes {
		return b.Votes - a.Votes
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Submissions counts the candidates a user currently has in a scope.
func (r *Registry) Submissions(s Scope, userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sc, ok := r.scopes[s]
	if !ok {
		return 0
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	n := 0
	for _, e := range sc.candidates {
		if e.candidate.SubmitterID == userID {
			n++
		}
	}
	return n
}

// Candidates lists every candidate across all scopes, oldest first.
func (r *Registry) Candidates() []Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Candidate
	for _, sc := range r.scopes {
		sc.mu.Lock()
		for _, e := range sc.candidates {
			out = append(out, e.candidate)
		}
		sc.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b Candidate) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.index)
}
