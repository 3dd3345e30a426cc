package history

import (
	"context"

	"github.com/expresspay/expresspay-go/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

// Notifier receives every appended record.
type Notifier interface {
	NotifyTransaction(ctx context.Context, record domain.TransactionRecord) error
}

// ForwardingStore appends to a local Store and then notifies. A failed
// notification is logged; the local record is kept.
type ForwardingStore struct {
	Store
	notifier Notifier
}

// NewForwardingStore wraps store so appends are also sent to notifier.
func NewForwardingStore(store Store, notifier Notifier) *ForwardingStore {
	return &ForwardingStore{Store: store, notifier: notifier}
}

// Append stores the record, then forwards it.
func (s *ForwardingStore) Append(ctx context.Context, record domain.TransactionRecord) error {
	if err := s.Store.Append(ctx, record); err != nil {
		return err
	}
	if err := s.notifier.NotifyTransaction(ctx, record); err != nil {
		log.WithFields(log.Fields{
			"order_id":  record.OrderID,
			"record_id": record.ID,
		}).WithError(err).Error("Failed to forward transaction")
	}
	return nil
}

// Close closes the wrapped store when it holds resources.
func (s *ForwardingStore) Close() error {
	if closer, ok := s.Store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
