package workspace

import (
	"context"

	"github.com/danthegoodman1/tablesweep/gologger"
)

var (
	logger = gologger.ComponentLogger("workspace")
)

type (
	// Gateway is the host surface for enumerating and mutating tables and
	// fields. Implementations may additionally satisfy KVBridge and
	// ValueWatcher, see DetectCapabilities.
	Gateway interface {
		// ListTables returns every table in host enumeration order
		ListTables(ctx context.Context) ([]TableInfo, error)
		// ListFields returns the fields of a table in host order
		ListFields(ctx context.Context, tableID string) ([]FieldDescriptor, error)

		// CreateTable creates an empty table holding only an auto-generated
		// index field, and returns its id
		CreateTable(ctx context.Context, name string) (string, error)
		DeleteTable(ctx context.Context, tableID string) error

		CreateField(ctx context.Context, tableID string, spec FieldSpec) (string, error)
		DeleteField(ctx context.Context, tableID, fieldID string) error
		RenameField(ctx context.Context, tableID, fieldID, name string) error
	}

	// KVBridge is the optional synchronized key-value store of the host.
	KVBridge interface {
		// GetValue returns false when the key holds nothing
		GetValue(ctx context.Context, key string) ([]byte, bool, error)
		// SetValue stores the value, a nil value deletes the key
		SetValue(ctx context.Context, key string, value []byte) error
	}

	// ValueWatcher is the optional push side of a KVBridge.
	ValueWatcher interface {
		// OnValueChange calls fn with every new value for key (nil when
		// deleted) until unsubscribe is called
		OnValueChange(ctx context.Context, key string, fn func(value []byte)) (unsubscribe func(), err error)
	}

	TableInfo struct {
		ID   string
		Name string
		// Meta is whatever extra metadata the host returns for the table,
		// see ModifiedAt
		Meta map[string]any
	}

	FieldDescriptor struct {
		ID       string
		Name     string
		Type     FieldType
		Property any
		IsIndex  bool
	}

	FieldSpec struct {
		Name     string
		Type     FieldType
		Property any
	}

	TableDescriptor struct {
		ID     string
		Name   string
		Meta   map[string]any
		Fields []FieldDescriptor
	}

	Capabilities struct {
		KV   bool
		Push bool
	}
)

// IndexField returns the index field of the table, if it was enumerated.
func (t TableDescriptor) IndexField() (FieldDescriptor, bool) {
	for _, f := range t.Fields {
		if f.IsIndex {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// DetectCapabilities probes the optional bridge interfaces once so callers can
// store the result instead of re-probing on every call.
func DetectCapabilities(gw Gateway) Capabilities {
	_, kv := gw.(KVBridge)
	_, push := gw.(ValueWatcher)
	return Capabilities{
		KV:   kv,
		Push: kv && push,
	}
}

type bridged struct {
	Gateway
	KVBridge
}

type bridgedWatcher struct {
	Gateway
	KVBridge
	ValueWatcher
}

// WithBridge attaches a key-value bridge to a gateway. When the bridge also
// implements ValueWatcher, so does the returned gateway.
func WithBridge(gw Gateway, kv KVBridge) Gateway {
	if w, ok := kv.(ValueWatcher); ok {
		return &bridgedWatcher{Gateway: gw, KVBridge: kv, ValueWatcher: w}
	}
	return &bridged{Gateway: gw, KVBridge: kv}
}
