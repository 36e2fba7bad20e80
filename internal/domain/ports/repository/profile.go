package repository

import (
	"context"

	"compat-assistant/internal/domain/model"
)

// ProfileRepository stores the shared UserProfile. Get returns
// domain.ErrNotFound when nothing was saved yet.
type ProfileRepository interface {
	Get(ctx context.Context) (*model.UserProfile, error)
	Save(ctx context.Context, profile *model.UserProfile) error
}
