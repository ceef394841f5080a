package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danthegoodman1/tablesweep/utils"
)

const (
	DefaultIndexFieldName = "Text"

	OpListTables  = "ListTables"
	OpListFields  = "ListFields"
	OpCreateTable = "CreateTable"
	OpDeleteTable = "DeleteTable"
	OpCreateField = "CreateField"
	OpDeleteField = "DeleteField"
	OpRenameField = "RenameField"
	OpGetValue    = "GetValue"
	OpSetValue    = "SetValue"
)

var ErrIndexFieldLocked = errors.New("index field cannot be deleted")

type (
	// Memory is an in-process workspace. It implements Gateway, KVBridge and
	// ValueWatcher and can be told to fail specific operations.
	Memory struct {
		mu       sync.Mutex
		tables   []*memTable
		values   map[string][]byte
		watchers map[string]map[int]func([]byte)
		nextSub  int
		failures map[string]error
		calls    []string
		now      func() time.Time
	}

	memTable struct {
		id       string
		name     string
		fields   []FieldDescriptor
		modified time.Time
	}
)

func NewMemory() *Memory {
	return &Memory{
		values:   make(map[string][]byte),
		watchers: make(map[string]map[int]func([]byte)),
		failures: make(map[string]error),
		now:      time.Now,
	}
}

// Seed adds a table without going through the authoring rules, so fixtures
// can hold blocked field types. The first field is the index field.
func (m *Memory) Seed(name, indexName string, fields ...FieldSpec) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.newTable(name, indexName)
	for _, spec := range fields {
		t.fields = append(t.fields, FieldDescriptor{
			ID:       utils.GenRandomShortID(),
			Name:     spec.Name,
			Type:     spec.Type,
			Property: spec.Property,
		})
	}
	return t.id
}

// FailOn makes op fail with err. target restricts the failure to what the op
// addresses (table name for CreateTable, field name for CreateField, table id,
// field id or key otherwise); an empty target fails every call. A nil err
// clears it.
func (m *Memory) FailOn(op, target string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := op + ":" + target
	if err == nil {
		delete(m.failures, key)
		return
	}
	m.failures[key] = err
}

// Calls returns the mutating calls made so far, as "Op:target".
func (m *Memory) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *Memory) ListTables(_ context.Context) ([]TableInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(OpListTables, ""); err != nil {
		return nil, err
	}
	tables := make([]TableInfo, 0, len(m.tables))
	for _, t := range m.tables {
		tables = append(tables, TableInfo{
			ID:   t.id,
			Name: t.name,
			Meta: map[string]any{"modifiedTime": float64(t.modified.UnixMilli())},
		})
	}
	return tables, nil
}

func (m *Memory) ListFields(_ context.Context, tableID string) ([]FieldDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(OpListFields, tableID); err != nil {
		return nil, err
	}
	t := m.table(tableID)
	if t == nil {
		return nil, ErrNotFound
	}
	return append([]FieldDescriptor(nil), t.fields...), nil
}

func (m *Memory) CreateTable(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(OpCreateTable, name)
	if err := m.failure(OpCreateTable, name); err != nil {
		return "", err
	}
	for _, t := range m.tables {
		if t.name == name {
			return "", ErrDuplicateName
		}
	}
	return m.newTable(name, DefaultIndexFieldName).id, nil
}

func (m *Memory) DeleteTable(_ context.Context, tableID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(OpDeleteTable, tableID)
	if err := m.failure(OpDeleteTable, tableID); err != nil {
		return err
	}
	for i, t := range m.tables {
		if t.id == tableID {
			m.tables = append(m.tables[:i], m.tables[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) CreateField(_ context.Context, tableID string, spec FieldSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(OpCreateField, tableID+"/"+spec.Name)
	if err := m.failure(OpCreateField, spec.Name); err != nil {
		return "", err
	}
	t := m.table(tableID)
	if t == nil {
		return "", ErrNotFound
	}
	if !spec.Type.Authorable() {
		return "", fmt.Errorf("%w: %s", ErrInvalidType, spec.Type)
	}
	for _, f := range t.fields {
		if f.Name == spec.Name {
			return "", ErrDuplicateName
		}
	}
	f := FieldDescriptor{
		ID:       utils.GenRandomShortID(),
		Name:     spec.Name,
		Type:     spec.Type,
		Property: spec.Property,
	}
	t.fields = append(t.fields, f)
	t.modified = m.now()
	return f.ID, nil
}

func (m *Memory) DeleteField(_ context.Context, tableID, fieldID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(OpDeleteField, tableID+"/"+fieldID)
	if err := m.failure(OpDeleteField, fieldID); err != nil {
		return err
	}
	t := m.table(tableID)
	if t == nil {
		return ErrNotFound
	}
	for i, f := range t.fields {
		if f.ID != fieldID {
			continue
		}
		if f.IsIndex {
			return &HostError{Op: OpDeleteField, Err: ErrIndexFieldLocked}
		}
		t.fields = append(t.fields[:i], t.fields[i+1:]...)
		t.modified = m.now()
		return nil
	}
	return ErrNotFound
}

func (m *Memory) RenameField(_ context.Context, tableID, fieldID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(OpRenameField, tableID+"/"+fieldID)
	if err := m.failure(OpRenameField, fieldID); err != nil {
		return err
	}
	t := m.table(tableID)
	if t == nil {
		return ErrNotFound
	}
	idx := -1
	for i, f := range t.fields {
		if f.ID == fieldID {
			idx = i
		} else if f.Name == name {
			return ErrDuplicateName
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	t.fields[idx].Name = name
	t.modified = m.now()
	return nil
}

func (m *Memory) GetValue(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(OpGetValue, key); err != nil {
		return nil, false, err
	}
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) SetValue(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	if err := m.failure(OpSetValue, key); err != nil {
		m.mu.Unlock()
		return err
	}
	if value == nil {
		delete(m.values, key)
	} else {
		m.values[key] = append([]byte(nil), value...)
	}
	subs := make([]func([]byte), 0, len(m.watchers[key]))
	for _, fn := range m.watchers[key] {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	// Notify outside the lock so callbacks can read back.
	for _, fn := range subs {
		fn(value)
	}
	return nil
}

func (m *Memory) OnValueChange(_ context.Context, key string, fn func([]byte)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watchers[key] == nil {
		m.watchers[key] = make(map[int]func([]byte))
	}
	id := m.nextSub
	m.nextSub++
	m.watchers[key][id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers[key], id)
	}, nil
}

func (m *Memory) newTable(name, indexName string) *memTable {
	t := &memTable{
		id:   utils.GenKSortedID("tbl"),
		name: name,
		fields: []FieldDescriptor{{
			ID:      utils.GenRandomShortID(),
			Name:    indexName,
			Type:    FieldTypeText,
			IsIndex: true,
		}},
		modified: m.now(),
	}
	m.tables = append(m.tables, t)
	return t
}

func (m *Memory) table(id string) *memTable {
	for _, t := range m.tables {
		if t.id == id {
			return t
		}
	}
	return nil
}

func (m *Memory) failure(op, target string) error {
	if err, ok := m.failures[op+":"+target]; ok {
		return err
	}
	if err, ok := m.failures[op+":"]; ok {
		return err
	}
	return nil
}

func (m *Memory) record(op, target string) {
	m.calls = append(m.calls, op+":"+target)
}
