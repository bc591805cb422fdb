package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/acura/internal/models"
	"github.com/desertthunder/acura/internal/shared"
)

// SubscriberRepository reads subscribers and their ambiance prompts.
//
// Provisioning normally happens outside the engine. The create methods exist for the CLI and tests.
type SubscriberRepository struct {
	db *sql.DB
}

// NewSubscriberRepository creates a new SubscriberRepository with the given database connection
func NewSubscriberRepository(db *sql.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

// Create inserts a subscriber with the given license.
func (r *SubscriberRepository) Create(ctx context.Context, license, note string) (*models.Subscriber, error) {
	license = strings.TrimSpace(license)
	if license == "" {
		return nil, fmt.Errorf("%w: license is required", shared.ErrInvalidInput)
	}

	res, err := r.db.ExecContext(ctx, `INSERT INTO subscribers (license, note) VALUES (?, ?)`, license, nullString(note))
	if err != nil {
		return nil, fmt.Errorf("failed to insert subscriber: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read subscriber id: %w", err)
	}

	return r.get(ctx, `WHERE id = ?`, id)
}

// GetByLicense resolves a subscriber from its license token.
func (r *SubscriberRepository) GetByLicense(ctx context.Context, license string) (*models.Subscriber, error) {
	return r.get(ctx, `WHERE license = ?`, license)
}

func (r *SubscriberRepository) get(ctx context.Context, where string, arg any) (*models.Subscriber, error) {
	var (
		s    models.Subscriber
		note sql.NullString
	)
	row := r.db.QueryRowContext(ctx, `SELECT id, license, created_at, note FROM subscribers `+where, arg)
	if err := row.Scan(&s.ID, &s.License, &s.CreatedAt, &note); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("failed to scan subscriber: %w", err)
	}
	s.Note = note.String
	return &s, nil
}

// AddPrompt stores an ambiance prompt for a subscriber.
func (r *SubscriberRepository) AddPrompt(ctx context.Context, subscriberID int64, text, activeWhen string) (*models.Prompt, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: prompt text is required", shared.ErrInvalidInput)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO prompts (sid, prompt, active_when) VALUES (?, ?, ?)`,
		subscriberID, text, nullString(activeWhen),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert prompt: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt id: %w", err)
	}

	return &models.Prompt{ID: id, SubscriberID: subscriberID, Text: text, ActiveWhen: activeWhen}, nil
}

// PromptsBySubscriber lists a subscriber's prompts, oldest first.
func (r *SubscriberRepository) PromptsBySubscriber(ctx context.Context, subscriberID int64) ([]models.Prompt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sid, prompt, active_when FROM prompts WHERE sid = ? ORDER BY id`,
		subscriberID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompts: %w", err)
	}
	defer rows.Close()

	var prompts []models.Prompt
	for rows.Next() {
		var (
			p          models.Prompt
			activeWhen sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.SubscriberID, &p.Text, &activeWhen); err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		p.ActiveWhen = activeWhen.String
		prompts = append(prompts, p)
	}

	return prompts, rows.Err()
}
