package user

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hmis/hmis/internal/domain/sync"
)

// Directory exposes the user table to the device layer.
type Directory struct {
	svc *Service
}

func NewDirectory(svc *Service) *Directory {
	return &Directory{svc: svc}
}

func (d *Directory) FindByID(ctx context.Context, id uuid.UUID) (*sync.UserInfo, error) {
	u, err := d.svc.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, sync.ErrNotFound
		}
		return nil, err
	}
	return &sync.UserInfo{ID: u.ID, Active: u.IsActive(), Role: u.Role}, nil
}
