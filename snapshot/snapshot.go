package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/danthegoodman1/tablesweep/workspace"
)

type (
	// Snapshot is an immutable structural capture of a workspace. It is
	// replaced, never edited.
	Snapshot struct {
		Label     string  `json:"label"`
		Timestamp string  `json:"timestamp"`
		Tables    []Table `json:"tables"`
	}

	Table struct {
		TableID   string  `json:"tableId"`
		TableName string  `json:"tableName"`
		Fields    []Field `json:"fields"`
	}

	Field struct {
		ID       string              `json:"id"`
		Name     string              `json:"name"`
		Type     workspace.FieldType `json:"type"`
		Property any                 `json:"property"`
		// IsIndex marks the table's index field. Older snapshots lack it, see
		// Table.IndexField
		IsIndex bool `json:"isIndex,omitempty"`
	}
)

// Marshal encodes the snapshot in its persisted JSON form.
func Marshal(s *Snapshot) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("error in json.Marshal: %w", err)
	}
	return b, nil
}

func Unmarshal(b []byte) (*Snapshot, error) {
	s := &Snapshot{}
	if err := decodeJSON(b, s); err != nil {
		return nil, fmt.Errorf("error decoding snapshot: %w", err)
	}
	return s, nil
}

// decodeJSON decodes exactly one JSON document. Numbers stay json.Number so
// integers beyond float64 precision come back unchanged.
func decodeJSON(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected data after JSON document")
	}
	return nil
}

// IndexField returns the position of the index field, falling back to the
// first field for snapshots that predate the isIndex flag. It is -1 for a
// table without fields.
func (t Table) IndexField() int {
	for i, f := range t.Fields {
		if f.IsIndex {
			return i
		}
	}
	if len(t.Fields) > 0 {
		return 0
	}
	return -1
}

// CapturedAt parses the ISO-8601 timestamp.
func (s *Snapshot) CapturedAt() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s.Timestamp)
}

func (s *Snapshot) FieldCount() int {
	n := 0
	for _, t := range s.Tables {
		n += len(t.Fields)
	}
	return n
}

// Equal reports deep structural equality. Snapshots decoded from the same
// JSON are always Equal.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	return reflect.DeepEqual(s, other)
}
