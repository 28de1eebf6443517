package input

import (
	"context"

	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
)

// QueryRunner answers one natural-language question about the database.
// The returned RunResult is set even when err is not nil.
type QueryRunner interface {
	Run(ctx context.Context, query string) (*entity.RunResult, error)
}
