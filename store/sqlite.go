// Package store persists registry snapshots in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/itizir/emotepoll/registry"
)

//go:embed schema.sql
var embeddedSchema embed.FS

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		return err
	}

	b, err := embeddedSchema.ReadFile("schema.sql")
	if err != nil {
		return err
	}

	schema := strings.TrimSpace(string(b))
	_, err = s.db.ExecContext(ctx, schema)
	return err
}

// Save replaces the stored state with st in a single transaction.
func (s *Store) Save(ctx context.Context, st registry.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM votes`); err != nil {
		return fmt.Errorf("clear votes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM candidates`); err != nil {
		return fmt.Errorf("clear candidates: %w", err)
	}

	insCandidate, err := tx.PrepareContext(ctx, `
INSERT INTO candidates(id, guild_id, channel_id, name, image_ref, submitter_id, submitter_name, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer insCandidate.Close()

	insVote, err := tx.PrepareContext(ctx, `INSERT INTO votes(candidate_id, voter_id) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer insVote.Close()

	for _, c := range st.Candidates {
		_, err := insCandidate.ExecContext(ctx,
			string(c.ID), c.Scope.GuildID, c.Scope.ChannelID, c.Name,
			c.ImageRef, c.SubmitterID, c.SubmitterName, c.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("insert candidate %s: %w", c.ID, err)
		}
		for _, v := range c.Voters {
			if _, err := insVote.ExecContext(ctx, string(c.ID), v); err != nil {
				return fmt.Errorf("insert vote %s/%s: %w", c.ID, v, err)
			}
		}
	}

	return tx.Commit()
}

// Load reads the stored state. An empty database yields an empty state.
func (s *Store) Load(ctx context.Context) (registry.State, error) {
	var st registry.State

	rows, err := s.db.QueryContext(ctx, `
SELECT id, guild_id, channel_id, name, image_ref, submitter_id, submitter_name, created_at
FROM candidates
ORDER BY created_at, id
`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	pos := make(map[registry.CandidateID]int)
	for rows.Next() {
		var (
			c       registry.CandidateState
			created int64
		)
		if err := rows.Scan(&c.ID, &c.Scope.GuildID, &c.Scope.ChannelID, &c.Name,
			&c.ImageRef, &c.SubmitterID, &c.SubmitterName, &created); err != nil {
			return st, err
		}
		c.CreatedAt = time.Unix(0, created).UTC()
		pos[c.ID] = len(st.Candidates)
		st.Candidates = append(st.Candidates, c)
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	vrows, err := s.db.QueryContext(ctx, `SELECT candidate_id, voter_id FROM votes ORDER BY candidate_id, voter_id`)
	if err != nil {
		return st, err
	}
	defer vrows.Close()

	for vrows.Next() {
		var id registry.CandidateID
		var voter string
		if err := vrows.Scan(&id, &voter); err != nil {
			return st, err
		}
		if i, ok := pos[id]; ok {
			st.Candidates[i].Voters = append(st.Candidates[i].Voters, voter)
		}
	}
	return st, vrows.Err()
}
