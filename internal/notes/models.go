package notes

import (
	"encoding/json"
	"fmt"
	"time"
)

// UnassignedID marks a note created locally that the server has not seen yet.
const UnassignedID int64 = -1

// Operation is the pending action a note carries inside a batch.
type Operation uint8

const (
	OpNone Operation = iota
	OpCreate
	OpUpdate
	OpDelete
	// OpUnknown is what decoding yields for a tag outside the protocol.
	// It is never produced locally and cannot be encoded.
	OpUnknown
)

var operationTags = map[Operation]string{
	OpNone:   "",
	OpCreate: "CREATE",
	OpUpdate: "UPDATE",
	OpDelete: "DELETE",
}

// ParseOperation maps a wire tag to an Operation. Unrecognized tags return
// OpUnknown together with an error.
func ParseOperation(tag string) (Operation, error) {
	for op, t := range operationTags {
		if t == tag {
			return op, nil
		}
	}
	return OpUnknown, fmt.Errorf("unrecognized operation %q", tag)
}

func (o Operation) String() string {
	if t, ok := operationTags[o]; ok {
		if t == "" {
			return "NONE"
		}
		return t
	}
	return "UNKNOWN"
}

func (o Operation) MarshalJSON() ([]byte, error) {
	t, ok := operationTags[o]
	if !ok {
		return nil, fmt.Errorf("cannot encode operation %d", o)
	}
	return json.Marshal(t)
}

// UnmarshalJSON never fails on an unrecognized tag so that one bad entry
// does not reject the whole batch; the entry decodes as OpUnknown instead.
func (o *Operation) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = OpNone
		return nil
	}
	var tag string
	if err := json.Unmarshal(b, &tag); err != nil {
		return fmt.Errorf("operation must be a string: %w", err)
	}
	*o, _ = ParseOperation(tag)
	return nil
}

func (o Operation) MarshalYAML() (any, error) {
	return o.String(), nil
}

// Note is the unit of data exchanged between the local cache and the server.
// Created and Changed are Unix timestamps in seconds.
type Note struct {
	Operation Operation `json:"operation" yaml:"operation"`
	ID        int64     `json:"id" yaml:"id"`
	Created   int64     `json:"created" yaml:"created"`
	Changed   int64     `json:"changed" yaml:"changed"`
	Title     string    `json:"title" yaml:"title"`
	Content   string    `json:"content" yaml:"content"`
	// Tags are client-local and never stored by the server.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Synced reports whether the server has assigned an identifier.
func (n Note) Synced() bool { return n.ID != UnassignedID }

func (n Note) ChangedAt() time.Time { return time.Unix(n.Changed, 0) }

// Clone returns a copy that shares no memory with n.
func (n Note) Clone() Note {
	if n.Tags != nil {
		n.Tags = append([]string(nil), n.Tags...)
	}
	return n
}
