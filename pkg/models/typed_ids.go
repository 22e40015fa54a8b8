package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	surrealdb_models "github.com/surrealdb/surrealdb.go/pkg/models"
)

// AccountID is a typed ID for accounts.
type AccountID struct {
	uuid uuid.UUID
}

func NewAccountID() AccountID {
	return AccountID{uuid: uuid.New()}
}

func ParseAccountID(s string) (AccountID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return AccountID{}, fmt.Errorf("invalid account ID: %w", err)
	}
	return AccountID{uuid: id}, nil
}

func (a AccountID) UUID() uuid.UUID { return a.uuid }
func (a AccountID) String() string  { return a.uuid.String() }
func (a AccountID) IsZero() bool    { return a.uuid == uuid.Nil }

func (a AccountID) RecordID() surrealdb_models.RecordID {
	return surrealdb_models.RecordID{
		Table: "accounts",
		ID:    a.uuid.String(),
	}
}

func (a AccountID) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.uuid.String())
}

func (a *AccountID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	a.uuid = id
	return nil
}

func (a AccountID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(cbor.Tag{
		Number:  8,
		Content: []any{"accounts", a.uuid.String()},
	})
}

func (a *AccountID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORID(data, "accounts", &a.uuid)
}

func (a AccountID) Value() (driver.Value, error) {
	if a.IsZero() {
		return nil, nil
	}
	return a.uuid.String(), nil
}

func (a *AccountID) Scan(value any) error {
	return scanUUID(value, &a.uuid)
}

func (AccountID) GormDataType() string { return "uuid" }

// StoryID is a typed ID for stories.
type StoryID struct {
	uuid uuid.UUID
}

func NewStoryID() StoryID {
	return StoryID{uuid: uuid.New()}
}

func ParseStoryID(s string) (StoryID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return StoryID{}, fmt.Errorf("invalid story ID: %w", err)
	}
	return StoryID{uuid: id}, nil
}

func (s StoryID) UUID() uuid.UUID { return s.uuid }
func (s StoryID) String() string  { return s.uuid.String() }
func (s StoryID) IsZero() bool    { return s.uuid == uuid.Nil }

func (s StoryID) RecordID() surrealdb_models.RecordID {
	return surrealdb_models.RecordID{
		Table: "stories",
		ID:    s.uuid.String(),
	}
}

func (s StoryID) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.uuid.String())
}

func (s *StoryID) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	id, err := uuid.Parse(str)
	if err != nil {
		return err
	}
	s.uuid = id
	return nil
}

func (s StoryID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(cbor.Tag{
		Number:  8,
		Content: []any{"stories", s.uuid.String()},
	})
}

func (s *StoryID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORID(data, "stories", &s.uuid)
}

func (s StoryID) Value() (driver.Value, error) {
	if s.IsZero() {
		return nil, nil
	}
	return s.uuid.String(), nil
}

func (s *StoryID) Scan(value any) error {
	return scanUUID(value, &s.uuid)
}

func (StoryID) GormDataType() string { return "uuid" }

// scanUUID is a shared sql.Scanner helper for typed IDs.
func scanUUID(value any, target *uuid.UUID) error {
	if value == nil {
		*target = uuid.Nil
		return nil
	}

	switch v := value.(type) {
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return err
		}
		*target = id
	case []byte:
		id, err := uuid.ParseBytes(v)
		if err != nil {
			return err
		}
		*target = id
	default:
		return fmt.Errorf("cannot scan type %T into UUID", value)
	}
	return nil
}

// unmarshalCBORID is a helper for unmarshaling SurrealDB RecordID from CBOR.
// SurrealDB uses CBOR tag 8 to identify RecordID types in its binary protocol.
// The RecordID is encoded as [table_name, id_string] within the tag.
func unmarshalCBORID(data []byte, expectedTable string, target *uuid.UUID) error {
	if len(data) == 0 {
		return fmt.Errorf("empty CBOR data")
	}

	// Major type 6 is a CBOR tag
	majorType := data[0] >> 5
	if majorType != 6 {
		return fmt.Errorf("expected CBOR tag for RecordID, got major type %d", majorType)
	}

	var tag cbor.Tag
	if err := cbor.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("failed to unmarshal CBOR tag: %w", err)
	}

	if tag.Number != 8 {
		return fmt.Errorf("expected RecordID tag (8), got %d", tag.Number)
	}

	arr, ok := tag.Content.([]any)
	if !ok || len(arr) != 2 {
		return fmt.Errorf("invalid RecordID format: expected [table, id] array")
	}

	table, ok := arr[0].(string)
	if !ok {
		return fmt.Errorf("invalid RecordID format: table name must be string")
	}

	if table != expectedTable {
		return fmt.Errorf("expected table %s, got %s", expectedTable, table)
	}

	idStr, ok := arr[1].(string)
	if !ok {
		return fmt.Errorf("invalid RecordID format: ID must be string")
	}

	parsedUUID, err := uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("invalid UUID in RecordID: %w", err)
	}

	*target = parsedUUID
	return nil
}
