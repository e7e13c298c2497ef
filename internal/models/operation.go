package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// OperationType is the kind of shipping operation.
type OperationType string

const (
	OperationExpedition OperationType = "EXPEDITION"
	OperationReception  OperationType = "RECEPTION"
)

// Known reports whether t is one of the types the client understands.
func (t OperationType) Known() bool {
	return t == OperationExpedition || t == OperationReception
}

// StatusInTransit is the only status from which an expedition can be received.
const StatusInTransit = "in-transit"

// StatusCompleted is highlighted in listings.
const StatusCompleted = "completed"

// Batch is the optional batch an operation belongs to.
type Batch struct {
	BatchNumber Flex `json:"batchNumber"`
}

// Operation represents one expedition or reception event as returned by the API.
// Every descriptive field is optional; accessors apply the fallbacks.
type Operation struct {
	ID          Flex          `json:"id"`
	Type        OperationType `json:"type,omitempty"`
	Status      string        `json:"status,omitempty"`
	Name        string        `json:"name,omitempty"` // tracking token
	Quantity    Flex          `json:"quantity"`
	Site        string        `json:"site,omitempty"`
	Destination string        `json:"destination,omitempty"`
	Batch       *Batch        `json:"batch,omitempty"`
	Date        Timestamp     `json:"date"`
	CreatedAt   Timestamp     `json:"createdAt"`
	UserID      Flex          `json:"userId"`
}

// UnmarshalJSON decodes one record leniently. A descriptive field of the
// wrong JSON type reads as absent, and a record that is not an object reads
// as an empty operation, so one bad record never fails a whole listing.
func (o *Operation) UnmarshalJSON(data []byte) error {
	*o = Operation{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil
	}

	type plain Operation
	rec := struct {
		*plain
		Type        text            `json:"type"`
		Status      text            `json:"status"`
		Name        text            `json:"name"`
		Site        text            `json:"site"`
		Destination text            `json:"destination"`
		Batch       json.RawMessage `json:"batch"`
	}{plain: (*plain)(o)}
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	o.Type = OperationType(rec.Type)
	o.Status = string(rec.Status)
	o.Name = string(rec.Name)
	o.Site = string(rec.Site)
	o.Destination = string(rec.Destination)
	o.Batch = decodeBatch(rec.Batch)
	return nil
}

func decodeBatch(raw json.RawMessage) *Batch {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var b Batch
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil
	}
	return &b
}

// text is a string field that tolerates other JSON scalars. Numbers and
// booleans keep their literal text; objects, arrays and null are absent.
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	*t = ""
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			*t = text(s)
		}
	case 'n', '{', '[':
	default:
		*t = text(data)
	}
	return nil
}

// BatchNumber returns the batch number as text, or "" when there is none.
func (o *Operation) BatchNumber() string {
	if o.Batch == nil {
		return ""
	}
	return o.Batch.BatchNumber.String()
}

// When returns date, falling back to createdAt.
func (o *Operation) When() time.Time {
	if !o.Date.IsZero() {
		return o.Date.Time
	}
	return o.CreatedAt.Time
}

// Key returns a stable display key: the id when present, otherwise the position.
func (o *Operation) Key(idx int) string {
	if o.ID.Valid() && o.ID.String() != "" {
		return o.ID.String()
	}
	return strconv.Itoa(idx)
}

// ReceivableAs reports whether o is an in-transit expedition tracked by token.
func (o *Operation) ReceivableAs(token string) bool {
	return o.Type == OperationExpedition && o.Status == StatusInTransit && o.Name == token
}

// OwnedBy reports whether the operation belongs to the given user id.
func (o *Operation) OwnedBy(userID string) bool {
	return o.UserID.Valid() && o.UserID.String() == userID
}

// Timestamp is a lenient time value: RFC 3339 strings, bare dates and epoch
// milliseconds are accepted, anything else decodes to the zero time.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON never fails; unreadable values leave the zero time.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] == 'n' {
		return nil
	}

	if data[0] != '"' {
		var ms int64
		if err := json.Unmarshal(data, &ms); err == nil {
			t.Time = time.UnixMilli(ms).UTC()
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return nil
}

// MarshalJSON writes RFC 3339, or null for the zero time.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
