/**
 * @description
 * Messaging entry point for sync runs. The surrounding platform publishes a
 * due-for-sync event per tenant (typically on a schedule it owns); this
 * handler turns each event into a date-range sync run. Malformed events and
 * terminal conditions are dropped; transient failures are re-queued.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ticketfabric/psp-fee-service/internal/domain"
)

// FeeSyncDueEvent is the payload of a due-for-sync message.
type FeeSyncDueEvent struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	DaysBack    int       `json:"days_back,omitempty"`
	MaxPayments int       `json:"max_payments,omitempty"`
	Force       bool      `json:"force"`
	DryRun      bool      `json:"dry_run"`
}

// syncMessageTimeout bounds one message-driven sync run.
const syncMessageTimeout = 10 * time.Minute

// HandleFeeSyncDueMessage processes one due-for-sync message. The returned
// bool is the ack decision: true acknowledges, false re-queues.
func (s *Service) HandleFeeSyncDueMessage(body []byte) bool {
	var event FeeSyncDueEvent
	if err := json.Unmarshal(body, &event); err != nil || event.TenantID == uuid.Nil {
		log.Printf("level=warn component=app msg=\"dropping malformed sync message\" error=%v", err)
		return true
	}

	daysBack := event.DaysBack
	if daysBack <= 0 {
		daysBack = 30
	}

	ctx, cancel := context.WithTimeout(context.Background(), syncMessageTimeout)
	defer cancel()

	result, err := s.SyncByDateRange(ctx, event.TenantID, domain.DateRangeSyncOptions{
		DaysBack:    daysBack,
		MaxPayments: event.MaxPayments,
		Force:       event.Force,
		DryRun:      event.DryRun,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrSyncInProgress):
			// Another run already covers this tenant; the message did its job.
			log.Printf("level=info component=app msg=\"sync already running, dropping message\" tenant_id=%s", event.TenantID)
			return true
		case errors.Is(err, ErrTenantNotFound):
			log.Printf("level=warn component=app msg=\"dropping sync message for unknown tenant\" tenant_id=%s", event.TenantID)
			return true
		default:
			log.Printf("level=error component=app msg=\"message-driven sync failed, re-queuing\" tenant_id=%s error=%v", event.TenantID, err)
			return false
		}
	}

	log.Printf("level=info component=app msg=\"message-driven sync finished\" tenant_id=%s result=%q", event.TenantID, result.String())
	return true
}
