package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/movesintl/moves-study-hub-sub001/internal/db"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

// DBTX is the subset of *pgxpool.Pool the Postgres store needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps each document as JSONB next to its id and version columns.
type PostgresStore[T any, PT EntityPtr[T]] struct {
	db     DBTX
	schema Schema
	table  string
}

// NewPostgresStore creates the table and indexes for schema if needed.
func NewPostgresStore[T any, PT EntityPtr[T]](ctx context.Context, conn DBTX, schema Schema) (*PostgresStore[T, PT], error) {
	s := &PostgresStore[T, PT]{db: conn, schema: schema, table: pgx.Identifier{schema.Name}.Sanitize()}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore[T, PT]) migrate(ctx context.Context) error {
	stmts := []string{fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			version BIGINT NOT NULL,
			doc JSONB NOT NULL
		)`, s.table)}

	for _, idx := range s.schema.Indexes {
		stmt, err := s.indexDDL(idx)
		if err != nil {
			return err
		}
		stmts = append(stmts, stmt)
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", s.schema.Name, err)
		}
	}
	return nil
}

// indexDDL renders an expression index. Time fields are indexed as text
// because timestamptz casts are not immutable.
func (s *PostgresStore[T, PT]) indexDDL(idx Index) (string, error) {
	cols := make([]string, 0, len(idx.Fields))
	for _, f := range idx.Fields {
		if err := checkField(f); err != nil {
			return "", err
		}
		cols = append(cols, "("+s.indexExpr(f)+")")
	}

	var b strings.Builder
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	fmt.Fprintf(&b, "INDEX IF NOT EXISTS %s ON %s (%s)",
		pgx.Identifier{s.schema.Name + "_" + idx.Name}.Sanitize(), s.table, strings.Join(cols, ", "))

	if len(idx.Where) > 0 {
		conds := make([]string, 0, len(idx.Where))
		for _, w := range idx.Where {
			if err := checkField(w.Field); err != nil {
				return "", err
			}
			if w.Op != OpEq {
				return "", fmt.Errorf("index %s: only equality conditions are supported", idx.Name)
			}
			lit, err := sqlLiteral(normalize(w.Value))
			if err != nil {
				return "", fmt.Errorf("index %s: %w", idx.Name, err)
			}
			conds = append(conds, fmt.Sprintf("%s = %s", s.indexExpr(w.Field), lit))
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	return b.String(), nil
}

func (s *PostgresStore[T, PT]) indexExpr(field string) string {
	switch field {
	case "id", "version":
		return field
	}
	if s.schema.typeOf(field) == TypeBool {
		return fmt.Sprintf("(doc->>'%s')::boolean", field)
	}
	return fmt.Sprintf("doc->>'%s'", field)
}

// fieldExpr is the typed SQL expression used to filter and sort on field.
func (s *PostgresStore[T, PT]) fieldExpr(field string) string {
	switch field {
	case "id", "version":
		return field
	}
	switch s.schema.typeOf(field) {
	case TypeTime:
		return fmt.Sprintf("(doc->>'%s')::timestamptz", field)
	case TypeBool:
		return fmt.Sprintf("(doc->>'%s')::boolean", field)
	case TypeNumber:
		return fmt.Sprintf("(doc->>'%s')::numeric", field)
	}
	return fmt.Sprintf("(doc->>'%s')", field)
}

func sqlLiteral(v any) (string, error) {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x), nil
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	}
	return "", fmt.Errorf("unsupported literal %T", v)
}

// arg converts a normalized filter value to what pgx binds for the field's expression.
func (s *PostgresStore[T, PT]) arg(field string, v any) (any, error) {
	typ := s.schema.typeOf(field)
	tv, err := typedValue(v, typ)
	if err != nil {
		return nil, err
	}
	if typ == TypeString && field != "version" {
		switch x := tv.(type) {
		case string:
			return x, nil
		case time.Time:
			return x.Format(time.RFC3339Nano), nil
		default:
			return fmt.Sprint(x), nil
		}
	}
	return tv, nil
}

// where renders filters into a WHERE clause, appending bind values to args.
func (s *PostgresStore[T, PT]) where(filters []Filter, args []any) (string, []any, error) {
	if len(filters) == 0 {
		return "", args, nil
	}
	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		if err := checkField(f.Field); err != nil {
			return "", nil, err
		}
		expr := s.fieldExpr(f.Field)

		if f.Op == OpEq && normalize(f.Value) == nil {
			f.Op = OpIsNull
		}
		switch f.Op {
		case OpIsNull:
			conds = append(conds, expr+" IS NULL")
			continue
		case OpNotNull:
			conds = append(conds, expr+" IS NOT NULL")
			continue
		case OpIn:
			values, _ := f.Value.([]any)
			if len(values) == 0 {
				conds = append(conds, "FALSE")
				continue
			}
			holders := make([]string, 0, len(values))
			for _, v := range values {
				a, err := s.arg(f.Field, v)
				if err != nil {
					return "", nil, err
				}
				args = append(args, a)
				holders = append(holders, "$"+strconv.Itoa(len(args)))
			}
			conds = append(conds, fmt.Sprintf("%s IN (%s)", expr, strings.Join(holders, ", ")))
			continue
		}

		var sqlOp string
		switch f.Op {
		case OpEq:
			sqlOp = "="
		case OpNe:
			sqlOp = "<>"
		case OpGt:
			sqlOp = ">"
		case OpGte:
			sqlOp = ">="
		case OpLt:
			sqlOp = "<"
		case OpLte:
			sqlOp = "<="
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", f.Op)
		}
		a, err := s.arg(f.Field, f.Value)
		if err != nil {
			return "", nil, err
		}
		args = append(args, a)
		conds = append(conds, fmt.Sprintf("%s %s $%d", expr, sqlOp, len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (s *PostgresStore[T, PT]) pkeyConstraint() string {
	return s.schema.Name + "_pkey"
}

func (s *PostgresStore[T, PT]) Create(ctx context.Context, doc *T) error {
	p := PT(doc)
	generated := p.GetID().IsZero()
	p.GenIDIfEmpty()
	prevVersion := p.GetVersion()
	p.SetVersion(1)

	isIDCollision := func(err error) bool {
		return generated && db.UniqueViolationConstraint(err) == s.pkeyConstraint()
	}
	insert := fmt.Sprintf(`INSERT INTO %s (id, version, doc) VALUES ($1, $2, $3)`, s.table)

	err := db.WithRetries(func() error {
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", s.schema.Name, err)
		}
		_, err = s.db.Exec(ctx, insert, p.GetID().String(), int64(1), raw)
		if isIDCollision(err) {
			p.SetID(utils.NewSixID())
		}
		return err
	}, db.DefaultMaxRetries, isIDCollision)

	if err != nil {
		p.SetVersion(prevVersion)
		if c := db.UniqueViolationConstraint(err); c != "" {
			return s.schema.duplicate(strings.TrimPrefix(c, s.schema.Name+"_"))
		}
		return fmt.Errorf("failed to insert %s: %w", s.schema.Name, err)
	}
	return nil
}

func (s *PostgresStore[T, PT]) Get(ctx context.Context, id utils.SixID) (*T, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, s.table), id.String()).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.schema.notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", s.schema.Name, id, err)
	}
	return s.decode(raw)
}

func (s *PostgresStore[T, PT]) FindOne(ctx context.Context, filters ...Filter) (*T, error) {
	list, err := s.List(ctx, Query{Filters: filters, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, s.schema.noMatch()
	}
	return list[0], nil
}

func (s *PostgresStore[T, PT]) List(ctx context.Context, q Query) ([]*T, error) {
	where, args, err := s.where(q.Filters, nil)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0, len(q.Order)+1)
	for _, o := range q.Order {
		if err := checkField(o.Field); err != nil {
			return nil, err
		}
		dir := "ASC NULLS FIRST"
		if o.Desc {
			dir = "DESC NULLS LAST"
		}
		order = append(order, s.fieldExpr(o.Field)+" "+dir)
	}
	order = append(order, "id ASC")

	sql := fmt.Sprintf(`SELECT doc FROM %s%s ORDER BY %s`, s.table, where, strings.Join(order, ", "))
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.schema.Name, err)
	}
	defer rows.Close()

	out := make([]*T, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", s.schema.Name, err)
		}
		item, err := s.decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.schema.Name, err)
	}
	return out, nil
}

func (s *PostgresStore[T, PT]) Count(ctx context.Context, filters ...Filter) (int64, error) {
	where, args, err := s.where(filters, nil)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s%s`, s.table, where), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", s.schema.Name, err)
	}
	return n, nil
}

// Update applies the patch in one statement so the version check and the
// write cannot interleave with another writer.
func (s *PostgresStore[T, PT]) Update(ctx context.Context, id utils.SixID, expectedVersion int64, patch Patch) (*T, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}
	if patch == nil {
		patch = Patch{}
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s patch: %w", s.schema.Name, err)
	}

	sql := fmt.Sprintf(`UPDATE %s
		SET doc = doc || $2::jsonb || jsonb_build_object('version', version + 1),
			version = version + 1
		WHERE id = $1 AND ($3::bigint = 0 OR version = $3)
		RETURNING doc`, s.table)

	var out []byte
	err = s.db.QueryRow(ctx, sql, id.String(), raw, expectedVersion).Scan(&out)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, s.table), id.String()).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check %s %s: %w", s.schema.Name, id, err)
		}
		if !exists {
			return nil, s.schema.notFound(id)
		}
		return nil, s.schema.stale(id)
	}
	if err != nil {
		if c := db.UniqueViolationConstraint(err); c != "" {
			return nil, s.schema.duplicate(strings.TrimPrefix(c, s.schema.Name+"_"))
		}
		return nil, fmt.Errorf("failed to update %s %s: %w", s.schema.Name, id, err)
	}
	return s.decode(out)
}

func (s *PostgresStore[T, PT]) Delete(ctx context.Context, id utils.SixID) error {
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id.String())
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", s.schema.Name, id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.schema.notFound(id)
	}
	return nil
}

func (s *PostgresStore[T, PT]) decode(raw []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.schema.Name, err)
	}
	return &out, nil
}
