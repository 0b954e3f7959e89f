// Package datastore is the management data store boundary of the bridge:
// the data Tree built for pulls and notifications, the change model, and a
// Redis-backed session and client.
package datastore

import (
	"context"
	"fmt"
)

// EventType is the transaction phase of a change delivery.
type EventType int

const (
	EventUpdate EventType = iota
	EventChange
	EventDone
	EventAbort
	EventEnabled
)

var eventTypeNames = map[EventType]string{
	EventUpdate:  "update",
	EventChange:  "change",
	EventDone:    "done",
	EventAbort:   "abort",
	EventEnabled: "enabled",
}

func (e EventType) String() string {
	if s, ok := eventTypeNames[e]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// MarshalText implements encoding.TextMarshaler.
func (e EventType) MarshalText() ([]byte, error) {
	s, ok := eventTypeNames[e]
	if !ok {
		return nil, fmt.Errorf("unknown event type %d", int(e))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *EventType) UnmarshalText(b []byte) error {
	for k, v := range eventTypeNames {
		if v == string(b) {
			*e = k
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", string(b))
}

// Operation is the kind of edit a Change carries.
type Operation int

const (
	OpCreated Operation = iota
	OpModified
	OpDeleted
	OpMoved
)

var operationNames = map[Operation]string{
	OpCreated:  "created",
	OpModified: "modified",
	OpDeleted:  "deleted",
	OpMoved:    "moved",
}

func (o Operation) String() string {
	if s, ok := operationNames[o]; ok {
		return s
	}
	return fmt.Sprintf("operation(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Operation) MarshalText() ([]byte, error) {
	s, ok := operationNames[o]
	if !ok {
		return nil, fmt.Errorf("unknown operation %d", int(o))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Operation) UnmarshalText(b []byte) error {
	for k, v := range operationNames {
		if v == string(b) {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("unknown operation %q", string(b))
}

// Change is one edit delivered by the data store. Value is nil for deletions.
type Change struct {
	Operation Operation `json:"operation"`
	Path      string    `json:"path"`
	Value     *string   `json:"value,omitempty"`
}

// ChangeBatch is the wire form of one change delivery.
type ChangeBatch struct {
	Event   EventType `json:"event"`
	Changes []Change  `json:"changes"`
}

// ChangeHandler receives the change deliveries of a module subscription.
// Deliveries are sequential; a returned error is logged by the session.
type ChangeHandler interface {
	OnChange(ctx context.Context, event EventType, changes []Change) error
}

// ChangeHandlerFunc adapts a function to ChangeHandler.
type ChangeHandlerFunc func(ctx context.Context, event EventType, changes []Change) error

// OnChange calls f.
func (f ChangeHandlerFunc) OnChange(ctx context.Context, event EventType, changes []Change) error {
	return f(ctx, event, changes)
}

// OperHandler builds the operational tree answering a pull for path.
type OperHandler interface {
	OnOperData(ctx context.Context, path string) (*Tree, error)
}

// OperHandlerFunc adapts a function to OperHandler.
type OperHandlerFunc func(ctx context.Context, path string) (*Tree, error)

// OnOperData calls f.
func (f OperHandlerFunc) OnOperData(ctx context.Context, path string) (*Tree, error) {
	return f(ctx, path)
}
