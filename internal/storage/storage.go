package storage

import (
	"context"

	"cdpHistory/internal/model"
)

// Storage defines a sink for computed CDP histories.
type Storage interface {
	PutHistory(ctx context.Context, pos model.Position, records []model.EventRecord) error
}
