package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/AdamBeresnev/bracket-engine/internal/match"
	"github.com/jmoiron/sqlx"
	"github.com/vmihailenco/msgpack/v5"
)

// TournamentStore persists bracket arenas and match records. Arenas and match
// snapshots are stored as msgpack blobs next to the columns we query on.
type TournamentStore struct {
	db *sqlx.DB
}

const (
	// A different bracket id means a regeneration; otherwise only newer versions win.
	upsertBracketQuery = `
		INSERT INTO brackets (id, tournament_id, format, version, completed, champion, arena, created_at, updated_at)
		VALUES (:id, :tournament_id, :format, :version, :completed, :champion, :arena, :created_at, :updated_at)
		ON CONFLICT (tournament_id) DO UPDATE SET
			id = excluded.id,
			format = excluded.format,
			version = excluded.version,
			completed = excluded.completed,
			champion = excluded.champion,
			arena = excluded.arena,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
		WHERE brackets.id <> excluded.id OR brackets.version < excluded.version
	`
	getBracketQuery   = "SELECT * FROM brackets WHERE tournament_id = ?"
	listBracketsQuery = "SELECT * FROM brackets ORDER BY created_at ASC"

	upsertMatchQuery = `
		INSERT INTO matches (id, tournament_id, bracket_id, node, state, participant_a, participant_b, version, snapshot, created_at, updated_at, deleted_at)
		VALUES (:id, :tournament_id, :bracket_id, :node, :state, :participant_a, :participant_b, :version, :snapshot, :created_at, :updated_at, :deleted_at)
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			participant_a = excluded.participant_a,
			participant_b = excluded.participant_b,
			version = excluded.version,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at
		WHERE matches.version < excluded.version
	`
	getMatchQuery          = "SELECT * FROM matches WHERE id = ?"
	listMatchesQuery       = "SELECT * FROM matches WHERE bracket_id = ? AND deleted_at IS NULL ORDER BY node ASC"
	softDeleteMatchesQuery = "UPDATE matches SET deleted_at = ? WHERE tournament_id = ? AND deleted_at IS NULL"

	insertTransitionQuery = `
		INSERT OR IGNORE INTO match_transitions (match_id, seq, from_state, to_state, actor, reason, at)
		VALUES (:match_id, :seq, :from_state, :to_state, :actor, :reason, :at)
	`
	listTransitionsQuery = "SELECT * FROM match_transitions WHERE match_id = ? ORDER BY seq ASC"

	upsertDisputeQuery = `
		INSERT INTO disputes (id, match_id, reason, raised_by, opened_at, resolver_id, resolved_at, snapshot)
		VALUES (:id, :match_id, :reason, :raised_by, :opened_at, :resolver_id, :resolved_at, :snapshot)
		ON CONFLICT (id) DO UPDATE SET
			resolver_id = excluded.resolver_id,
			resolved_at = excluded.resolved_at,
			snapshot = excluded.snapshot
	`
	listOpenDisputesQuery = "SELECT * FROM disputes WHERE resolved_at IS NULL ORDER BY opened_at ASC"
)

type bracketRow struct {
	ID           string    `db:"id"`
	TournamentID string    `db:"tournament_id"`
	Format       string    `db:"format"`
	Version      uint64    `db:"version"`
	Completed    bool      `db:"completed"`
	Champion     *string   `db:"champion"`
	Arena        []byte    `db:"arena"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type matchRow struct {
	ID           string     `db:"id"`
	TournamentID string     `db:"tournament_id"`
	BracketID    string     `db:"bracket_id"`
	Node         int        `db:"node"`
	State        string     `db:"state"`
	ParticipantA string     `db:"participant_a"`
	ParticipantB string     `db:"participant_b"`
	Version      uint64     `db:"version"`
	Snapshot     []byte     `db:"snapshot"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at"`
}

type transitionRow struct {
	MatchID   string    `db:"match_id"`
	Seq       int       `db:"seq"`
	FromState string    `db:"from_state"`
	ToState   string    `db:"to_state"`
	Actor     string    `db:"actor"`
	Reason    string    `db:"reason"`
	At        time.Time `db:"at"`
}

type disputeRow struct {
	ID         string     `db:"id"`
	MatchID    string     `db:"match_id"`
	Reason     string     `db:"reason"`
	RaisedBy   string     `db:"raised_by"`
	OpenedAt   time.Time  `db:"opened_at"`
	ResolverID *string    `db:"resolver_id"`
	ResolvedAt *time.Time `db:"resolved_at"`
	Snapshot   []byte     `db:"snapshot"`
}

func NewTournamentStore(db *sqlx.DB) *TournamentStore {
	return &TournamentStore{db: db}
}

// SaveBracket writes the arena unless a newer version of the same bracket is
// already stored.
func (s *TournamentStore) SaveBracket(ctx context.Context, b *bracket.Bracket) error {
	arena, err := msgpack.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode bracket %s: %w", b.ID, err)
	}
	var champion *string
	if b.Champion != "" {
		c := string(b.Champion)
		champion = &c
	}
	row := bracketRow{
		ID:           b.ID,
		TournamentID: b.TournamentID,
		Format:       b.Format.String(),
		Version:      b.Version,
		Completed:    b.Completed,
		Champion:     champion,
		Arena:        arena,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    time.Now().UTC(),
	}
	_, err = s.db.NamedExecContext(ctx, upsertBracketQuery, row)
	return err
}

func (s *TournamentStore) GetBracket(ctx context.Context, tournamentID string) (*bracket.Bracket, error) {
	var row bracketRow
	if err := s.db.GetContext(ctx, &row, getBracketQuery, tournamentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bracket for tournament %s: %w", tournamentID, bracket.ErrNotFound)
		}
		return nil, err
	}
	return decodeBracket(row)
}

func (s *TournamentStore) ListBrackets(ctx context.Context) ([]*bracket.Bracket, error) {
	var rows []bracketRow
	if err := s.db.SelectContext(ctx, &rows, listBracketsQuery); err != nil {
		return nil, err
	}
	out := make([]*bracket.Bracket, 0, len(rows))
	for _, row := range rows {
		b, err := decodeBracket(row)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func decodeBracket(row bracketRow) (*bracket.Bracket, error) {
	var b bracket.Bracket
	if err := msgpack.Unmarshal(row.Arena, &b); err != nil {
		return nil, fmt.Errorf("decode bracket %s: %w", row.ID, err)
	}
	return &b, nil
}

// SaveMatch stores the match snapshot together with any transitions and the
// dispute record it carries. Stale versions are ignored.
func (s *TournamentStore) SaveMatch(ctx context.Context, m match.Match) error {
	snapshot, err := msgpack.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode match %s: %w", m.ID, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := matchRow{
		ID:           m.ID,
		TournamentID: m.TournamentID,
		BracketID:    m.BracketID,
		Node:         int(m.Node),
		State:        string(m.State),
		ParticipantA: string(m.Participants[0]),
		ParticipantB: string(m.Participants[1]),
		Version:      m.Version,
		Snapshot:     snapshot,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		DeletedAt:    m.DeletedAt,
	}
	if _, err := tx.NamedExecContext(ctx, upsertMatchQuery, row); err != nil {
		return fmt.Errorf("save match %s: %w", m.ID, err)
	}

	if len(m.History) > 0 {
		rows := make([]transitionRow, len(m.History))
		for i, t := range m.History {
			rows[i] = transitionRow{
				MatchID:   m.ID,
				Seq:       i,
				FromState: string(t.From),
				ToState:   string(t.To),
				Actor:     t.Actor,
				Reason:    t.Reason,
				At:        t.At,
			}
		}
		if _, err := tx.NamedExecContext(ctx, insertTransitionQuery, rows); err != nil {
			return fmt.Errorf("save transitions for %s: %w", m.ID, err)
		}
	}

	if m.Dispute != nil {
		if err := saveDispute(ctx, tx, *m.Dispute); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func saveDispute(ctx context.Context, tx *sqlx.Tx, d match.Dispute) error {
	snapshot, err := msgpack.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode dispute %s: %w", d.ID, err)
	}
	row := disputeRow{
		ID:       d.ID,
		MatchID:  d.MatchID,
		Reason:   string(d.Reason),
		RaisedBy: d.RaisedBy,
		OpenedAt: d.OpenedAt,
		Snapshot: snapshot,
	}
	if d.Resolution != nil {
		resolver := d.Resolution.ResolverID
		at := d.Resolution.ResolvedAt
		row.ResolverID = &resolver
		row.ResolvedAt = &at
	}
	_, err = tx.NamedExecContext(ctx, upsertDisputeQuery, row)
	return err
}

func (s *TournamentStore) GetMatch(ctx context.Context, id string) (match.Match, error) {
	var row matchRow
	if err := s.db.GetContext(ctx, &row, getMatchQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return match.Match{}, fmt.Errorf("match %s: %w", id, bracket.ErrNotFound)
		}
		return match.Match{}, err
	}
	return decodeMatch(row)
}

// ListMatches returns the live matches of a bracket in node order.
func (s *TournamentStore) ListMatches(ctx context.Context, bracketID string) ([]match.Match, error) {
	var rows []matchRow
	if err := s.db.SelectContext(ctx, &rows, listMatchesQuery, bracketID); err != nil {
		return nil, err
	}
	out := make([]match.Match, 0, len(rows))
	for _, row := range rows {
		m, err := decodeMatch(row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func decodeMatch(row matchRow) (match.Match, error) {
	var m match.Match
	if err := msgpack.Unmarshal(row.Snapshot, &m); err != nil {
		return match.Match{}, fmt.Errorf("decode match %s: %w", row.ID, err)
	}
	m.DeletedAt = row.DeletedAt
	return m, nil
}

// SoftDeleteMatches hides every match of a tournament. Rows and their
// transitions stay for audit.
func (s *TournamentStore) SoftDeleteMatches(ctx context.Context, tournamentID string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, softDeleteMatchesQuery, at.UTC(), tournamentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TournamentStore) ListTransitions(ctx context.Context, matchID string) ([]match.Transition, error) {
	var rows []transitionRow
	if err := s.db.SelectContext(ctx, &rows, listTransitionsQuery, matchID); err != nil {
		return nil, err
	}
	out := make([]match.Transition, len(rows))
	for i, r := range rows {
		out[i] = match.Transition{
			From:   match.State(r.FromState),
			To:     match.State(r.ToState),
			Actor:  r.Actor,
			Reason: r.Reason,
			At:     r.At,
		}
	}
	return out, nil
}

func (s *TournamentStore) ListOpenDisputes(ctx context.Context) ([]match.Dispute, error) {
	var rows []disputeRow
	if err := s.db.SelectContext(ctx, &rows, listOpenDisputesQuery); err != nil {
		return nil, err
	}
	out := make([]match.Dispute, 0, len(rows))
	for _, row := range rows {
		var d match.Dispute
		if err := msgpack.Unmarshal(row.Snapshot, &d); err != nil {
			return nil, fmt.Errorf("decode dispute %s: %w", row.ID, err)
		}
		out = append(out, d)
	}
	return out, nil
}
