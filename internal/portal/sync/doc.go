// Package sync implements the server side of the offline action queue.
//
// Overview
//
// Clients that were offline buffer their actions locally and submit them in
// a batch once connectivity returns. The service appends each action to the
// offline_queue table, lets downstream consumers list what is still pending,
// and flips items to synced once they have been processed.
//
//	client batch {userId, actions[]}
//	     ↓
//	  Service.SubmitBatch  (one insert per action)
//	     ↓
//	  offline_queue  ──→ ListPending ──→ MarkSynced
//	     ↓
//	  Stats (counts, 7-day histogram, syncRate)
//
// Guarantees
//
// The unit of atomicity is the single action. A malformed element, a
// missing type or a store error fails that action only; its siblings are
// still inserted and the batch as a whole succeeds. Nothing deduplicates:
// resubmitting the same batch creates new rows with new ids.
//
// MarkSynced is idempotent. Only rows that were still unsynced are counted,
// so marking an id twice, or marking an unknown id, adds zero.
//
// The same table also carries DOCUMENT_REQUEST and PROCEDURE_START rows
// written by RequestDocument and StartProcedure. Procedure progress is kept
// inside the PROCEDURE_START row's action_data.
//
// Events
//
// An optional EventSink receives a callback after every submitted batch and
// every mark-synced call. The live dashboard uses it to push updates.
package sync
