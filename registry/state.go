package registry

import (
	"fmt"
	"slices"
)

// State is the persistable shape of a registry.
type State struct {
	Candidates []CandidateState
}

type CandidateState struct {
	Candidate
	Voters []string
}

// State returns a consistent copy of the whole registry. Voters are sorted so
// that equal registries produce equal states.
func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var st State
	for _, sc := range r.scopes {
		sc.mu.Lock()
		for _, e := range sc.candidates {
			voters := make([]string, 0, len(e.voters))
			for v := range e.voters {
				voters = append(voters, v)
			}
			slices.Sort(voters)
			st.Candidates = append(st.Candidates, CandidateState{Candidate: e.candidate, Voters: voters})
		}
		sc.mu.Unlock()
	}
	slices.SortFunc(st.Candidates, func(a, b CandidateState) int {
		return compareStandings(Standing{Candidate: a.Candidate}, Standing{Candidate: b.Candidate})
	})
	return st
}

// Restore replaces the registry contents with st. On error the registry is
// left untouched.
func (r *Registry) Restore(st State) error {
	scopes := make(map[Scope]*scope)
	index := make(map[CandidateID]Scope, len(st.Candidates))

	for _, cs := range st.Candidates {
		c := cs.Candidate
		if c.ID == "" || c.Name == "" || c.Scope.ChannelID == "" {
			return fmt.Errorf("%w: restoring %q", ErrInvalidCandidate, c.ID)
		}
		if _, ok := index[c.ID]; ok {
			return fmt.Errorf("%w: restoring %s", ErrDuplicateCandidate, c.ID)
		}
		sc, ok := scopes[c.Scope]
		if !ok {
			sc = &scope{candidates: make(map[CandidateID]*entry)}
			scopes[c.Scope] = sc
		}
		e := &entry{candidate: c, voters: make(map[string]struct{}, len(cs.Voters))}
		for _, v := range cs.Voters {
			e.voters[v] = struct{}{}
		}
		sc.candidates[c.ID] = e
		index[c.ID] = c.Scope
	}

	r.mu.Lock()
	r.scopes = scopes
	r.index = index
	r.mu.Unlock()
	return nil
}
