package sync

import (
	"context"
	"encoding/json"

	"github.com/moussadar/moussadar/internal/portal/db"
	"github.com/moussadar/moussadar/internal/portal/schema"
)

// Service is the offline queue synchronization API.
//
// Implementations must be safe for concurrent use; every call maps onto
// independent statements against the shared database.
type Service interface {
	// SubmitBatch appends each raw action for userID.
	//
	// Each element must be a JSON object with a non-empty string "type" and
	// an optional "data" value. Failures are reported per action in the
	// result. An empty userID returns ErrInvalidBatch and inserts nothing.
	SubmitBatch(ctx context.Context, userID string, actions []json.RawMessage) (*BatchResult, error)

	// ListPending returns userID's unsynced items, oldest first.
	ListPending(ctx context.Context, userID string) ([]schema.PendingItem, error)

	// MarkSynced flags the given ids as synced and returns how many rows
	// changed state.
	MarkSynced(ctx context.Context, ids []int64) (int, error)

	// Stats summarizes userID's queue.
	Stats(ctx context.Context, userID string) (*Stats, error)

	// RequestDocument records a DOCUMENT_REQUEST and returns its request id.
	RequestDocument(ctx context.Context, req DocumentRequest) (string, error)

	// StartProcedure records a PROCEDURE_START and returns its session id.
	StartProcedure(ctx context.Context, req ProcedureStart) (string, error)

	// UpdateProgress rewrites the progress fields of a procedure session.
	// Returns db.ErrNotFound when the session does not exist.
	UpdateProgress(ctx context.Context, sessionID string, p db.ProcedureProgress) error
}

// EventSink is notified after queue mutations. Calls happen on the request
// goroutine, so implementations must not block.
type EventSink interface {
	OnBatchSubmitted(userID string, result *BatchResult)
	OnItemsSynced(requested, updated int)
}
