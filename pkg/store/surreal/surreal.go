// Package surreal implements the store interface on SurrealDB using
// the surrealcbor codec. It is the document primary during migration.
//
// The custom codec matters: SurrealDB speaks CBOR internally, and
// without it time.Time and RecordID values marshal into formats the
// server rejects. Typed entity IDs marshal to RecordIDs through their
// own MarshalCBOR implementations, so structs pass to the driver
// directly and queries always use $param placeholders.
package surreal

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	surrealdb_models "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/mystira/storyvault/pkg/store"
)

// Store is a generic SurrealDB-backed store for one entity type.
type Store[T any, PT store.Entity[T]] struct {
	db    *surrealdb.DB
	table string
}

// Connect dials SurrealDB over WebSocket with the surrealcbor codec,
// signs in when credentials are given, and selects the namespace and
// database. One connection is shared by every table's store.
func Connect(ctx context.Context, wsURL, namespace, database, username, password string) (*surrealdb.DB, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parsing SurrealDB URL: %w", err)
	}

	conf := connection.NewConfig(u)
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	db, err := surrealdb.FromConnection(ctx, gorillaws.New(conf))
	if err != nil {
		return nil, fmt.Errorf("connecting to SurrealDB: %w", err)
	}

	if username != "" && password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": username,
			"pass": password,
		}); err != nil {
			return nil, fmt.Errorf("authenticating to SurrealDB: %w", err)
		}
	}

	if err := db.Use(ctx, namespace, database); err != nil {
		return nil, fmt.Errorf("selecting namespace/database: %w", err)
	}
	return db, nil
}

// New returns a store for the entity's table on an existing
// connection. SurrealDB creates tables implicitly on first insert, so
// there is no migration step.
func New[T any, PT store.Entity[T]](db *surrealdb.DB) *Store[T, PT] {
	return &Store[T, PT]{db: db, table: store.TableOf[T, PT]()}
}

func (s *Store[T, PT]) recordID(id string) surrealdb_models.RecordID {
	return surrealdb_models.RecordID{Table: s.table, ID: id}
}

// isNotFound recognizes the driver's ways of reporting a missing
// record so absence can be reported as (nil, nil).
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Expected a single or multiple results but got 0") ||
		strings.Contains(msg, "cannot unmarshal array into Go value")
}

// isConnErr classifies driver failures worth retrying.
func isConnErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection") ||
		strings.Contains(msg, "websocket") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out")
}

func wrapErr(op string, err error) error {
	err = fmt.Errorf("surrealdb %s: %w", op, err)
	if isConnErr(err) {
		return store.Transient(err)
	}
	return err
}

func (s *Store[T, PT]) Create(ctx context.Context, entity PT) error {
	existing, err := s.Get(ctx, entity.EntityID())
	if err != nil {
		return err
	}
	if existing != nil {
		return store.ErrConflict
	}
	if _, err := surrealdb.Create[T](ctx, s.db, s.table, entity); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return store.ErrConflict
		}
		return wrapErr("create", err)
	}
	return nil
}

func (s *Store[T, PT]) Get(ctx context.Context, id string) (PT, error) {
	entity, err := surrealdb.Select[T](ctx, s.db, s.recordID(id))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, wrapErr("select", err)
	}
	if entity == nil {
		return nil, nil
	}
	return entity, nil
}

// Update upserts so a dual-write replay converges even when the record
// never made it here the first time.
func (s *Store[T, PT]) Update(ctx context.Context, entity PT) error {
	rid := s.recordID(entity.EntityID())
	if _, err := surrealdb.Upsert[T](ctx, s.db, rid, entity); err != nil {
		return wrapErr("upsert", err)
	}
	return nil
}

func (s *Store[T, PT]) Delete(ctx context.Context, id string) error {
	if _, err := surrealdb.Delete[T](ctx, s.db, s.recordID(id)); err != nil {
		if isNotFound(err) {
			return nil
		}
		return wrapErr("delete", err)
	}
	return nil
}

func (s *Store[T, PT]) List(ctx context.Context, filter store.Filter) ([]PT, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT * FROM %s", s.table)
	params := map[string]any{}
	if len(filter) > 0 {
		var conds []string
		for field, value := range filter {
			param := "f_" + field
			conds = append(conds, fmt.Sprintf("%s = $%s", field, param))
			params[param] = value
		}
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC")

	result, err := surrealdb.Query[[]PT](ctx, s.db, sb.String(), params)
	if err != nil {
		return nil, wrapErr("query", err)
	}

	out := make([]PT, 0)
	if result != nil && len(*result) > 0 {
		out = append(out, (*result)[0].Result...)
	}
	return out, nil
}

func (s *Store[T, PT]) ListModifiedIDs(ctx context.Context, since, until time.Time) ([]string, error) {
	query := fmt.Sprintf(`SELECT id FROM %s
		WHERE (created_at >= $since AND created_at < $until)
		OR (updated_at >= $since AND updated_at < $until)`, s.table)
	params := map[string]any{
		"since": since,
		"until": until,
	}

	result, err := surrealdb.Query[[]struct {
		ID surrealdb_models.RecordID `json:"id"`
	}](ctx, s.db, query, params)
	if err != nil {
		return nil, wrapErr("query modified", err)
	}

	ids := make([]string, 0)
	if result != nil && len(*result) > 0 {
		for _, record := range (*result)[0].Result {
			ids = append(ids, fmt.Sprintf("%v", record.ID.ID))
		}
	}
	return ids, nil
}

// Close is a no-op: the shared connection is closed by its owner.
func (s *Store[T, PT]) Close() error { return nil }
