package tasks

import (
	"context"
	"strings"
)

// NewStore opens Postgres when databaseURL is set, otherwise the SQLite file
// at sqlitePath.
func NewStore(ctx context.Context, databaseURL, sqlitePath string) (Store, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresStore(ctx, databaseURL)
	}
	return NewSQLiteStore(ctx, sqlitePath)
}
