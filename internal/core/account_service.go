package core

import (
	"context"
	"errors"
	"fmt"

	"mindhelper.ai/backend/internal/store"
)

var ErrUserNotFound = errors.New("user not found")

type AccountService struct {
	dbStore store.Store
}

func NewAccountService(db store.Store) *AccountService {
	return &AccountService{dbStore: db}
}

// GetOrCreateUser ensures a user exists for the Telegram ID.
func (s *AccountService) GetOrCreateUser(ctx context.Context, telegramID int64, profile store.Profile) (*store.User, error) {
	return s.dbStore.GetOrCreateUser(ctx, telegramID, profile)
}

func (s *AccountService) GetUser(ctx context.Context, telegramID int64) (*store.User, error) {
	user, err := s.dbStore.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// SetTariff records the tariff picked in the subscription flow.
func (s *AccountService) SetTariff(ctx context.Context, telegramID int64, tariff Tariff) (*store.User, error) {
	if !tariff.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTariff, tariff)
	}
	if err := s.dbStore.SetUserTariff(ctx, telegramID, tariff.String()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to set tariff: %w", err)
	}
	return s.GetUser(ctx, telegramID)
}
