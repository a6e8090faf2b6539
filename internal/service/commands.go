package service

import (
	"context"
	"time"

	"github.com/platformx/platformx/internal/bus"
	"github.com/platformx/platformx/internal/model"
)

// CreateThreadCommand appends one prompt/response pair to a thread.
type CreateThreadCommand struct {
	UserID   string
	ThreadID string
	ModelID  string
	Prompt   string
	Response string
}

// CreateDerivedModelCommand persists a derived model together with its dataset.
type CreateDerivedModelCommand struct {
	Model   *model.DerivedModel
	Dataset *model.Dataset
}

// TodaysUsageQuery counts the thread entries a user created since midnight UTC.
type TodaysUsageQuery struct {
	UserID string
}

// ThreadWriter stores thread entries.
type ThreadWriter interface {
	AppendThreadEntry(ctx context.Context, entry *model.ThreadEntry) error
	CountThreadEntriesSince(ctx context.Context, userID string, since time.Time) (int64, error)
}

// DerivedModelWriter stores derived models.
type DerivedModelWriter interface {
	CreateDerivedModel(ctx context.Context, dm *model.DerivedModel, ds *model.Dataset) error
}

// RegisterHandlers binds the command and query handlers to b.
func RegisterHandlers(b *bus.Bus, threads ThreadWriter, models DerivedModelWriter, now func() time.Time) {
	if now == nil {
		now = time.Now
	}

	bus.Register(b, func(ctx context.Context, cmd CreateThreadCommand) (*model.ThreadEntry, error) {
		entry := &model.ThreadEntry{
			ID:        generateULID(),
			ThreadID:  cmd.ThreadID,
			UserID:    cmd.UserID,
			ModelID:   cmd.ModelID,
			Prompt:    cmd.Prompt,
			Response:  cmd.Response,
			CreatedAt: now().UTC(),
		}
		if err := threads.AppendThreadEntry(ctx, entry); err != nil {
			return nil, err
		}
		return entry, nil
	})

	bus.Register(b, func(ctx context.Context, cmd CreateDerivedModelCommand) (*model.DerivedModel, error) {
		if err := models.CreateDerivedModel(ctx, cmd.Model, cmd.Dataset); err != nil {
			return nil, err
		}
		return cmd.Model, nil
	})

	bus.Register(b, func(ctx context.Context, q TodaysUsageQuery) (int64, error) {
		y, m, d := now().UTC().Date()
		return threads.CountThreadEntriesSince(ctx, q.UserID, time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	})
}
