package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mindhelper.ai/backend/internal/store"
)

const (
	MinMoodScore = 1
	MaxMoodScore = 10

	defaultMoodLimit = 30
	maxMoodLimit     = 365
)

var ErrInvalidMoodScore = errors.New("mood score must be between 1 and 10")

// MoodBand groups a score the way the mood chart colours it.
type MoodBand string

const (
	MoodLow    MoodBand = "low"
	MoodMedium MoodBand = "medium"
	MoodHigh   MoodBand = "high"
)

func BandFor(score int) MoodBand {
	switch {
	case score <= 3:
		return MoodLow
	case score <= 6:
		return MoodMedium
	default:
		return MoodHigh
	}
}

type MoodService struct {
	dbStore store.Store
}

func NewMoodService(db store.Store) *MoodService {
	return &MoodService{dbStore: db}
}

func (s *MoodService) Record(ctx context.Context, userID int64, score int, emotions []string, note string) (*store.MoodEntry, error) {
	if score < MinMoodScore || score > MaxMoodScore {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMoodScore, score)
	}

	tags := make([]string, 0, len(emotions))
	seen := make(map[string]struct{}, len(emotions))
	for _, e := range emotions {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		tags = append(tags, e)
	}

	entry := &store.MoodEntry{
		UserID:   userID,
		Score:    score,
		Emotions: tags,
		Note:     strings.TrimSpace(note),
	}
	if err := s.dbStore.CreateMoodEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to store mood entry: %w", err)
	}
	return entry, nil
}

// History returns the newest entries first. A non-positive limit uses the
// default and large limits are capped.
func (s *MoodService) History(ctx context.Context, userID int64, limit int) ([]store.MoodEntry, error) {
	if limit <= 0 {
		limit = defaultMoodLimit
	}
	if limit > maxMoodLimit {
		limit = maxMoodLimit
	}
	return s.dbStore.ListMoodEntries(ctx, userID, limit)
}
