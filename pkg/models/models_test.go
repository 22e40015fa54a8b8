package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoryIDParse(t *testing.T) {
	id := NewStoryID()
	parsed, err := ParseStoryID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseStoryID("not-a-uuid")
	assert.Error(t, err)
}

func TestStoryIDJSON(t *testing.T) {
	id := NewStoryID()
	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.JSONEq(t, `"`+id.String()+`"`, string(data))

	var decoded StoryID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded)
}

func TestStoryIDCBORRecordID(t *testing.T) {
	id := NewStoryID()
	data, err := cbor.Marshal(id)
	require.NoError(t, err)

	var decoded StoryID
	require.NoError(t, cbor.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded)

	// The wire form is a tagged [table, id] pair.
	var tag cbor.Tag
	require.NoError(t, cbor.Unmarshal(data, &tag))
	assert.Equal(t, uint64(8), tag.Number)
	arr, ok := tag.Content.([]any)
	require.True(t, ok)
	require.Len(t, arr, 2)
	assert.Equal(t, "stories", arr[0])
	assert.Equal(t, id.String(), arr[1])
}

func TestStoryIDCBORRejectsWrongTable(t *testing.T) {
	data, err := cbor.Marshal(NewAccountID())
	require.NoError(t, err)

	var decoded StoryID
	err = cbor.Unmarshal(data, &decoded)
	assert.Error(t, err)
}

func TestAccountIDSQL(t *testing.T) {
	id := NewAccountID()

	v, err := id.Value()
	require.NoError(t, err)
	assert.Equal(t, id.String(), v)

	var fromString AccountID
	require.NoError(t, fromString.Scan(id.String()))
	assert.Equal(t, id, fromString)

	var fromBytes AccountID
	require.NoError(t, fromBytes.Scan([]byte(id.String())))
	assert.Equal(t, id, fromBytes)

	var fromNil AccountID
	require.NoError(t, fromNil.Scan(nil))
	assert.True(t, fromNil.IsZero())

	v, err = AccountID{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestStoryTouch(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := &Story{Title: "Untitled"}
	s.Touch(now)

	assert.False(t, s.ID.IsZero())
	assert.Equal(t, StoryStatusDraft, s.Status)
	assert.Equal(t, now, s.CreatedAt)
	assert.Equal(t, now, s.UpdatedAt)

	later := now.Add(time.Hour)
	id := s.ID
	s.Status = StoryStatusPublished
	s.Touch(later)

	assert.Equal(t, id, s.ID, "touch keeps an assigned ID")
	assert.Equal(t, StoryStatusPublished, s.Status)
	assert.Equal(t, now, s.CreatedAt)
	assert.Equal(t, later, s.UpdatedAt)
}

func TestAccountTouch(t *testing.T) {
	now := time.Now().UTC()
	a := &Account{Email: "ines@example.com", DisplayName: "Inés"}
	a.Touch(now)

	assert.False(t, a.ID.IsZero())
	assert.Equal(t, "accounts", a.ID.RecordID().Table)
	assert.Equal(t, a.ID.String(), a.EntityID())
}

func TestStringListSQL(t *testing.T) {
	l := StringList{"fantasy", "serial"}
	v, err := l.Value()
	require.NoError(t, err)

	var decoded StringList
	require.NoError(t, decoded.Scan(v))
	assert.Equal(t, l, decoded)

	var fromNil StringList
	require.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)
}

func TestJSONMapSQL(t *testing.T) {
	m := JSONMap{"chapters": float64(3), "branching": true}
	v, err := m.Value()
	require.NoError(t, err)

	var decoded JSONMap
	require.NoError(t, decoded.Scan(v))
	assert.Equal(t, m, decoded)
}
