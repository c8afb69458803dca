package repository

import (
	"context"
	"errors"
	"fmt"

	"case_chat_service/internal/chat/domain"

	"github.com/jackc/pgx/v4"
)

// DirectoryRepository read-only view of the platform's business tables
// (users, clients, lawyers, cases). The chat core never writes them.
type DirectoryRepository interface {
	// FindProfileID role specific profile id of userID, domain.ErrNotFound when missing
	FindProfileID(ctx context.Context, userID string, role domain.Role) (string, error)
	FindParticipant(ctx context.Context, role domain.Role, profileID string) (*domain.Participant, error)
	FindCase(ctx context.Context, caseID string) (*domain.CaseRef, error)
	FindEmail(ctx context.Context, userID string) (string, error)
}

// Querier subset of pgxpool.Pool used here
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type pgDirectoryRepository struct {
	db Querier
}

// NewPGDirectoryRepository create postgres backed DirectoryRepository
func NewPGDirectoryRepository(db Querier) DirectoryRepository {
	return &pgDirectoryRepository{db: db}
}

func profileTable(role domain.Role) (string, error) {
	switch role {
	case domain.RoleClient:
		return "clients", nil
	case domain.RoleLawyer:
		return "lawyers", nil
	}
	return "", fmt.Errorf("no profile table for role %q: %w", role, domain.ErrNotFound)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func (r *pgDirectoryRepository) FindProfileID(ctx context.Context, userID string, role domain.Role) (string, error) {
	table, err := profileTable(role)
	if err != nil {
		return "", err
	}

	var id string
	err = r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT id::text FROM %s WHERE user_id::text = $1`, table),
		userID,
	).Scan(&id)
	if err != nil {
		return "", notFound(err)
	}
	return id, nil
}

func (r *pgDirectoryRepository) FindParticipant(ctx context.Context, role domain.Role, profileID string) (*domain.Participant, error) {
	table, err := profileTable(role)
	if err != nil {
		return nil, err
	}

	p := domain.Participant{ProfileID: profileID}
	err = r.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT u.id::text,
		       COALESCE(NULLIF(TRIM(CONCAT(u.first_name, ' ', u.last_name)), ''), u.username),
		       COALESCE(u.email, '')
		  FROM %s p
		  JOIN users u ON u.id = p.user_id
		 WHERE p.id::text = $1`, table),
		profileID,
	).Scan(&p.UserID, &p.Name, &p.Email)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *pgDirectoryRepository) FindCase(ctx context.Context, caseID string) (*domain.CaseRef, error) {
	c := domain.CaseRef{CaseID: caseID}
	err := r.db.QueryRow(ctx, `
		SELECT case_number, client_id::text, COALESCE(lawyer_id::text, ''), status
		  FROM cases
		 WHERE id::text = $1`,
		caseID,
	).Scan(&c.CaseNumber, &c.ClientID, &c.LawyerID, &c.Status)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *pgDirectoryRepository) FindEmail(ctx context.Context, userID string) (string, error) {
	var email string
	err := r.db.QueryRow(ctx, `SELECT COALESCE(email, '') FROM users WHERE id::text = $1`, userID).Scan(&email)
	if err != nil {
		return "", notFound(err)
	}
	return email, nil
}
