package history

import (
	"context"

	"github.com/expresspay/expresspay-go/internal/core/domain"
	"github.com/expresspay/expresspay-go/internal/core/ports"
)

// Store is a TransactionHistory that can also be listed.
type Store interface {
	ports.TransactionHistory
	List(ctx context.Context, limit int) ([]domain.TransactionRecord, error)
}

// Open returns a sqlite store for dsn, or a memory store when dsn is empty.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		return NewMemoryStore(), nil
	}
	return OpenSQLite(dsn)
}
