package output

import (
	"context"

	"github.com/Neural-Bridge/sql-analyst/internal/domain/entity"
	"github.com/Neural-Bridge/sql-analyst/internal/domain/sqlguard"
)

// DatabasePort only accepts statements that went through sqlguard.Guard.
type DatabasePort interface {
	Execute(ctx context.Context, stmt sqlguard.Statement) (*entity.QueryResult, error)
	ListTables(ctx context.Context) ([]string, error)
	Dialect() string
	Close() error
}
