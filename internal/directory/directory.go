// Package directory is the sqlite-backed participant registry that feeds
// seeding and bracket generation.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/jmoiron/sqlx"
)

type TournamentStatus string

const (
	StatusActive    TournamentStatus = "active"
	StatusCancelled TournamentStatus = "cancelled"
)

type Tournament struct {
	ID     string           `db:"id" json:"id"`
	Name   string           `db:"name" json:"name"`
	Status TournamentStatus `db:"status" json:"status"`
}

type Directory struct {
	db *sqlx.DB
}

const (
	createTournamentQuery = "INSERT INTO tournaments (id, name, status) VALUES (:id, :name, :status)"
	getTournamentQuery    = "SELECT id, name, status FROM tournaments WHERE id = ?"
	setStatusQuery        = "UPDATE tournaments SET status = ? WHERE id = ?"

	// Registration order is assigned inside the insert so concurrent
	// registrations cannot share a position.
	registerQuery = `
		INSERT INTO participants (id, tournament_id, name, registration_order)
		SELECT ?, ?, ?, COALESCE(MAX(registration_order) + 1, 0)
		FROM participants WHERE tournament_id = ?
	`
	listParticipantsQuery = `
		SELECT p.id, p.name, p.registration_order, r.score AS ranking_score
		FROM participants p
		LEFT JOIN rankings r ON r.participant_id = p.id
		WHERE p.tournament_id = ?
		ORDER BY p.registration_order ASC
	`
	getRankingQuery = "SELECT score FROM rankings WHERE participant_id = ?"
	setRankingQuery = `
		INSERT INTO rankings (participant_id, score, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (participant_id) DO UPDATE SET score = excluded.score, updated_at = excluded.updated_at
	`
)

type participantRow struct {
	ID                string   `db:"id"`
	Name              string   `db:"name"`
	RegistrationOrder int      `db:"registration_order"`
	RankingScore      *float64 `db:"ranking_score"`
}

func New(db *sqlx.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) CreateTournament(ctx context.Context, id, name string) (*Tournament, error) {
	t := &Tournament{ID: id, Name: name, Status: StatusActive}
	if _, err := d.db.NamedExecContext(ctx, createTournamentQuery, t); err != nil {
		return nil, fmt.Errorf("create tournament %s: %w", id, err)
	}
	return t, nil
}

func (d *Directory) GetTournament(ctx context.Context, id string) (*Tournament, error) {
	var t Tournament
	if err := d.db.GetContext(ctx, &t, getTournamentQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tournament %s: %w", id, bracket.ErrNotFound)
		}
		return nil, err
	}
	return &t, nil
}

func (d *Directory) SetStatus(ctx context.Context, id string, status TournamentStatus) error {
	res, err := d.db.ExecContext(ctx, setStatusQuery, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tournament %s: %w", id, bracket.ErrNotFound)
	}
	return nil
}

// Register appends a participant to the tournament's registration list.
func (d *Directory) Register(ctx context.Context, tournamentID string, id bracket.ParticipantID, name string) error {
	if _, err := d.GetTournament(ctx, tournamentID); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx, registerQuery, id, tournamentID, name, tournamentID)
	if err != nil {
		return fmt.Errorf("register %s in %s: %w", id, tournamentID, err)
	}
	return nil
}

// ListRegisteredParticipants returns participants in registration order with
// their ranking scores attached.
func (d *Directory) ListRegisteredParticipants(ctx context.Context, tournamentID string) ([]bracket.Participant, error) {
	var rows []participantRow
	if err := d.db.SelectContext(ctx, &rows, listParticipantsQuery, tournamentID); err != nil {
		return nil, err
	}
	out := make([]bracket.Participant, len(rows))
	for i, r := range rows {
		out[i] = bracket.Participant{
			ID:                bracket.ParticipantID(r.ID),
			Name:              r.Name,
			RankingScore:      r.RankingScore,
			RegistrationOrder: r.RegistrationOrder,
		}
	}
	return out, nil
}

// GetRankingScore returns nil for unranked participants.
func (d *Directory) GetRankingScore(ctx context.Context, id bracket.ParticipantID) (*float64, error) {
	var score float64
	if err := d.db.GetContext(ctx, &score, getRankingQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &score, nil
}

func (d *Directory) SetRankingScore(ctx context.Context, id bracket.ParticipantID, score float64) error {
	_, err := d.db.ExecContext(ctx, setRankingQuery, id, score)
	return err
}
