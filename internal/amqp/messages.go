package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RefreshRequest asks the worker to pull a fresh snapshot from upstream.
type RefreshRequest struct {
	ID        uuid.UUID `json:"id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotRefreshed announces that the local store holds a new snapshot.
type SnapshotRefreshed struct {
	ID        uuid.UUID `json:"id"`
	RequestID uuid.UUID `json:"request_id,omitempty"`
	Version   string    `json:"version"`
	Count     int       `json:"count"`
	Issues    int       `json:"issues"`
	Timestamp time.Time `json:"timestamp"`
}

var errMissingID = errors.New("message without id")

// NewRefreshRequest creates a request with a fresh id.
func NewRefreshRequest(reason string) *RefreshRequest {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual"
	}
	return &RefreshRequest{
		ID:        uuid.New(),
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RefreshRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RefreshRequestFromJSON decodes a request and rejects one without an id.
func RefreshRequestFromJSON(data []byte) (*RefreshRequest, error) {
	var msg RefreshRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == uuid.Nil {
		return nil, errMissingID
	}
	return &msg, nil
}

// NewSnapshotRefreshed creates an event for a stored snapshot. requestID
// may be uuid.Nil for scheduled refreshes.
func NewSnapshotRefreshed(requestID uuid.UUID, version string, count, issues int) *SnapshotRefreshed {
	return &SnapshotRefreshed{
		ID:        uuid.New(),
		RequestID: requestID,
		Version:   version,
		Count:     count,
		Issues:    issues,
		Timestamp: time.Now().UTC(),
	}
}

func (m *SnapshotRefreshed) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SnapshotRefreshedFromJSON(data []byte) (*SnapshotRefreshed, error) {
	var msg SnapshotRefreshed
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == uuid.Nil {
		return nil, errMissingID
	}
	return &msg, nil
}
