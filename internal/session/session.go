// Package session keeps each caller's cleaned dataset and last forecast
// between requests. Sessions belong to one caller and are never shared.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/case-forecast/internal/model"
)

// Session holds one caller's working state.
type Session struct {
	ID        string         `json:"id"`
	Dataset   *model.Dataset `json:"dataset"`
	Result    *model.Result  `json:"result,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store persists sessions. Unknown or expired IDs return model.ErrNotFound.
type Store interface {
	Create(ctx context.Context, ds *model.Dataset) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	Close() error
}

func newSession(ds *model.Dataset, now time.Time) *Session {
	return &Session{
		ID:        uuid.New().String(),
		Dataset:   ds,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
