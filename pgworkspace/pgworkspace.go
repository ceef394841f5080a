package pgworkspace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/danthegoodman1/tablesweep/gologger"
	"github.com/danthegoodman1/tablesweep/utils"
	"github.com/danthegoodman1/tablesweep/workspace"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

var (
	logger = gologger.ComponentLogger("pgworkspace")
)

type (
	// Pool is the part of *pgxpool.Pool the workspace needs.
	Pool interface {
		Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
		Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
		QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
		Begin(ctx context.Context) (pgx.Tx, error)
		BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	}

	// Workspace keeps tables and fields as rows in CockroachDB (or Postgres).
	// It also implements workspace.KVBridge over the workspace_kv table, so
	// snapshots survive across processes sharing the database.
	Workspace struct {
		pool Pool
	}
)

func New(pool Pool) *Workspace {
	return &Workspace{pool: pool}
}

func (w *Workspace) ListTables(ctx context.Context) ([]workspace.TableInfo, error) {
	rows, err := w.pool.Query(ctx, `
		SELECT id, name, updated_at
		FROM workspace_tables
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, hostError(workspace.OpListTables, err)
	}
	defer rows.Close()

	tables := make([]workspace.TableInfo, 0)
	for rows.Next() {
		var (
			info      workspace.TableInfo
			updatedAt time.Time
		)
		if err := rows.Scan(&info.ID, &info.Name, &updatedAt); err != nil {
			return nil, fmt.Errorf("error in rows.Scan: %w", err)
		}
		info.Meta = map[string]any{"updatedAt": updatedAt.UTC().Format(time.RFC3339Nano)}
		tables = append(tables, info)
	}
	if err := rows.Err(); err != nil {
		return nil, hostError(workspace.OpListTables, err)
	}
	return tables, nil
}

func (w *Workspace) ListFields(ctx context.Context, tableID string) ([]workspace.FieldDescriptor, error) {
	if err := w.tableExists(ctx, tableID); err != nil {
		return nil, err
	}
	rows, err := w.pool.Query(ctx, `
		SELECT id, name, type, property, is_index
		FROM workspace_fields
		WHERE table_id = $1
		ORDER BY position
	`, tableID)
	if err != nil {
		return nil, hostError(workspace.OpListFields, err)
	}
	defer rows.Close()

	fields := make([]workspace.FieldDescriptor, 0)
	for rows.Next() {
		var (
			f        workspace.FieldDescriptor
			typ      int64
			property pgtype.JSONB
		)
		if err := rows.Scan(&f.ID, &f.Name, &typ, &property, &f.IsIndex); err != nil {
			return nil, fmt.Errorf("error in rows.Scan: %w", err)
		}
		f.Type = workspace.FieldType(typ)
		if property.Status == pgtype.Present {
			dec := json.NewDecoder(bytes.NewReader(property.Bytes))
			dec.UseNumber()
			if err := dec.Decode(&f.Property); err != nil {
				return nil, fmt.Errorf("error decoding property of field %s: %w", f.ID, err)
			}
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, hostError(workspace.OpListFields, err)
	}
	return fields, nil
}

// CreateTable inserts the table and its index field in one transaction.
func (w *Workspace) CreateTable(ctx context.Context, name string) (string, error) {
	logger := zerolog.Ctx(ctx)
	tableID := utils.GenKSortedID("tbl")
	err := crdbpgx.ExecuteTx(ctx, w.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO workspace_tables (id, name) VALUES ($1, $2)`, tableID, name)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO workspace_fields (table_id, id, name, type, is_index, position)
			VALUES ($1, $2, $3, $4, true, 0)
		`, tableID, utils.GenRandomShortID(), workspace.DefaultIndexFieldName, int64(workspace.FieldTypeText))
		return err
	})
	if err != nil {
		return "", hostError(workspace.OpCreateTable, err)
	}
	logger.Debug().Str("tableID", tableID).Str("name", name).Msg("created table")
	return tableID, nil
}

func (w *Workspace) DeleteTable(ctx context.Context, tableID string) error {
	tag, err := w.pool.Exec(ctx, `DELETE FROM workspace_tables WHERE id = $1`, tableID)
	if err != nil {
		return hostError(workspace.OpDeleteTable, err)
	}
	if tag.RowsAffected() == 0 {
		return workspace.ErrNotFound
	}
	return nil
}

func (w *Workspace) CreateField(ctx context.Context, tableID string, spec workspace.FieldSpec) (string, error) {
	if !spec.Type.Authorable() {
		return "", fmt.Errorf("%w: %s", workspace.ErrInvalidType, spec.Type)
	}
	property := pgtype.JSONB{Status: pgtype.Null}
	if spec.Property != nil {
		b, err := json.Marshal(spec.Property)
		if err != nil {
			return "", fmt.Errorf("error in json.Marshal: %w", err)
		}
		property = pgtype.JSONB{Bytes: b, Status: pgtype.Present}
	}

	fieldID := utils.GenRandomShortID()
	err := crdbpgx.ExecuteTx(ctx, w.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := w.touch(ctx, tx, tableID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO workspace_fields (table_id, id, name, type, property, is_index, position)
			SELECT $1, $2, $3, $4, $5, false, COALESCE(MAX(position), -1) + 1
			FROM workspace_fields WHERE table_id = $1
		`, tableID, fieldID, spec.Name, int64(spec.Type), property)
		return err
	})
	if err != nil {
		return "", hostError(workspace.OpCreateField, err)
	}
	return fieldID, nil
}

func (w *Workspace) DeleteField(ctx context.Context, tableID, fieldID string) error {
	return w.hostTx(ctx, workspace.OpDeleteField, func(tx pgx.Tx) error {
		var isIndex bool
		err := tx.QueryRow(ctx, `
			SELECT is_index FROM workspace_fields WHERE table_id = $1 AND id = $2
		`, tableID, fieldID).Scan(&isIndex)
		if errors.Is(err, pgx.ErrNoRows) {
			return workspace.ErrNotFound
		}
		if err != nil {
			return err
		}
		if isIndex {
			return workspace.ErrIndexFieldLocked
		}
		if _, err := tx.Exec(ctx, `DELETE FROM workspace_fields WHERE table_id = $1 AND id = $2`, tableID, fieldID); err != nil {
			return err
		}
		return w.touch(ctx, tx, tableID)
	})
}

func (w *Workspace) RenameField(ctx context.Context, tableID, fieldID, name string) error {
	return w.hostTx(ctx, workspace.OpRenameField, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE workspace_fields SET name = $3 WHERE table_id = $1 AND id = $2
		`, tableID, fieldID, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return workspace.ErrNotFound
		}
		return w.touch(ctx, tx, tableID)
	})
}

func (w *Workspace) GetValue(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := w.pool.QueryRow(ctx, `SELECT value FROM workspace_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, hostError(workspace.OpGetValue, err)
	}
	return value, true, nil
}

func (w *Workspace) SetValue(ctx context.Context, key string, value []byte) error {
	var err error
	if value == nil {
		_, err = w.pool.Exec(ctx, `DELETE FROM workspace_kv WHERE key = $1`, key)
	} else {
		_, err = w.pool.Exec(ctx, `
			INSERT INTO workspace_kv (key, value, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value)
	}
	if err != nil {
		return hostError(workspace.OpSetValue, err)
	}
	return nil
}

func (w *Workspace) hostTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	err := crdbpgx.ExecuteTx(ctx, w.pool, pgx.TxOptions{}, fn)
	if err != nil {
		return hostError(op, err)
	}
	return nil
}

func (w *Workspace) tableExists(ctx context.Context, tableID string) error {
	var one int
	err := w.pool.QueryRow(ctx, `SELECT 1 FROM workspace_tables WHERE id = $1`, tableID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return workspace.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("error checking table %s: %w", tableID, err)
	}
	return nil
}

// touch bumps updated_at so the table reports a fresh modification time.
func (w *Workspace) touch(ctx context.Context, tx pgx.Tx, tableID string) error {
	tag, err := tx.Exec(ctx, `UPDATE workspace_tables SET updated_at = now() WHERE id = $1`, tableID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workspace.ErrNotFound
	}
	return nil
}

// hostError maps database failures onto the gateway's error vocabulary.
func hostError(op string, err error) error {
	if errors.Is(err, workspace.ErrNotFound) {
		return workspace.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return workspace.ErrDuplicateName
		case codeForeignKeyViolation:
			return workspace.ErrNotFound
		}
	}
	logger.Warn().Err(err).Str("op", op).Msg("workspace database error")
	return &workspace.HostError{Op: op, Err: err}
}
