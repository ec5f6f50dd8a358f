package sync

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/moussadar/moussadar/internal/portal/schema"
)

var (
	// ErrInvalidBatch is returned when a batch has no userId or its actions
	// are not a JSON array.
	ErrInvalidBatch = errors.New("missing userId or actions array")

	// ErrInvalidItemIDs is returned when a mark-synced request's itemIds is
	// not a JSON array.
	ErrInvalidItemIDs = errors.New("itemIds must be an array")

	// ErrMissingFields is returned by the document and procedure flows when a
	// required field is empty.
	ErrMissingFields = errors.New("missing required fields")
)

// Batch is a decoded submit-batch request body.
type Batch struct {
	UserID  string
	Actions []json.RawMessage
}

// UserID is a user id as clients send it. A JSON string is taken as is
// and a number by its decimal form, so 42 and "42" name the same user.
// Anything else, or a falsy value such as 0 or "", decodes to "".
type UserID string

// UnmarshalJSON implements json.Unmarshaler.
func (u *UserID) UnmarshalJSON(data []byte) error {
	*u = ""

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*u = UserID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			if i != 0 {
				*u = UserID(strconv.FormatInt(i, 10))
			}
			return nil
		}
		f, err := n.Float64()
		if err != nil || f == 0 {
			return nil
		}
		*u = UserID(strconv.FormatFloat(f, 'f', -1, 64))
	}
	return nil
}

// ParseBatch decodes {userId, actions} and checks its shape. Individual
// actions are left raw; their validation happens per action on submit.
func ParseBatch(body []byte) (*Batch, error) {
	var raw struct {
		UserID  UserID          `json:"userId"`
		Actions json.RawMessage `json:"actions"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	if raw.UserID == "" || !isArray(raw.Actions) {
		return nil, ErrInvalidBatch
	}

	var actions []json.RawMessage
	if err := json.Unmarshal(raw.Actions, &actions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	return &Batch{UserID: string(raw.UserID), Actions: actions}, nil
}

// ParseItemIDs decodes the itemIds array of a mark-synced request.
//
// Integral numbers and numeric strings become ids. Any other element maps
// to 0, which never matches a row.
func ParseItemIDs(raw json.RawMessage) ([]int64, error) {
	if !isArray(raw) {
		return nil, ErrInvalidItemIDs
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidItemIDs, err)
	}

	ids := make([]int64, len(elems))
	for i, e := range elems {
		ids[i] = itemID(e)
	}
	return ids, nil
}

func itemID(raw json.RawMessage) int64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
			return int64(f)
		}
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// ActionResult reports the outcome of one submitted action.
type ActionResult struct {
	OriginalAction json.RawMessage `json:"originalAction"`
	Synced         bool            `json:"synced"`
	Timestamp      string          `json:"timestamp,omitempty"`
	ID             int64           `json:"id,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// BatchResult is the outcome of SubmitBatch. SyncedCount+FailedCount always
// equals the number of submitted actions.
type BatchResult struct {
	SyncedCount int            `json:"syncedCount"`
	FailedCount int            `json:"failedCount"`
	Actions     []ActionResult `json:"actions"`
}

// Stats is the response of Service.Stats.
type Stats struct {
	Stats         schema.QueueStats    `json:"stats"`
	RecentActions []schema.ActionCount `json:"recentActions"`
	SyncRate      float64              `json:"syncRate"`
}

// SyncRate returns the synced percentage rounded to two decimals, or 0 for
// an empty queue.
func SyncRate(synced, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(synced)*10000/float64(total)) / 100
}

// DocumentRequest is the input of RequestDocument. All fields are required.
type DocumentRequest struct {
	DocumentID string          `json:"documentId"`
	UserID     UserID          `json:"userId"`
	Data       json.RawMessage `json:"data"`
}

// ProcedureStart is the input of StartProcedure. Data is optional.
type ProcedureStart struct {
	ProcedureID string          `json:"procedureId"`
	UserID      UserID          `json:"userId"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// isEmptyJSON reports whether raw is absent or a JSON falsy value.
func isEmptyJSON(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", `""`, "0":
		return true
	}
	return false
}
