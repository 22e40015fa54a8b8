package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// StoryStatus represents the publication state of a story.
type StoryStatus string

const (
	StoryStatusDraft     StoryStatus = "draft"
	StoryStatusPublished StoryStatus = "published"
	StoryStatusArchived  StoryStatus = "archived"
)

// JSONMap is a flexible key-value map for storing dynamic content data across
// both database backends. It maps to PostgreSQL's JSONB and to SurrealDB's
// native object type, so the same story content stays queryable in both stores
// during a migration. Story content varies by format (a branching story keeps
// a scene graph here, a linear one a chapter list), which is exactly the kind
// of data the schema-flexible primary store was chosen for.
type JSONMap map[string]any

// Value implements the driver.Valuer interface for database storage.
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (j *JSONMap) Scan(value any) error {
	if value == nil {
		*j = make(map[string]any)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		bytes = []byte(value.(string))
	}
	return json.Unmarshal(bytes, j)
}

// Account represents an author account using typed IDs. The wallet address is
// carried for the royalty-registration collaborator; this layer only stores it.
type Account struct {
	ID            AccountID `gorm:"type:uuid;primary_key" json:"id"`
	Email         string    `gorm:"unique;not null" json:"email"`
	DisplayName   string    `gorm:"not null" json:"display_name"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" compare:"-"`
}

// TableName is the shared logical collection name in both stores.
func (*Account) TableName() string { return "accounts" }

// EntityID returns the store-agnostic identifier.
func (a *Account) EntityID() string { return a.ID.String() }

// Touch stamps creation/update times, generating an ID when missing.
func (a *Account) Touch(now time.Time) {
	if a.ID.IsZero() {
		a.ID = NewAccountID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
}

// BeforeCreate hook to generate ID if not set.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID.IsZero() {
		a.ID = NewAccountID()
	}
	return nil
}

// Story represents a story record using typed IDs. Content holds the
// format-specific body as a flexible document; the relational secondary store
// keeps it as JSONB so nothing is lost crossing stores.
type Story struct {
	ID        StoryID     `gorm:"type:uuid;primary_key" json:"id"`
	AccountID AccountID   `gorm:"type:uuid;not null;index" json:"account_id"`
	Title     string      `gorm:"not null" json:"title"`
	Summary   string      `json:"summary,omitempty"`
	Status    StoryStatus `gorm:"not null" json:"status"`
	Tags      StringList  `gorm:"type:jsonb" json:"tags,omitempty"`
	Content   JSONMap     `gorm:"type:jsonb" json:"content,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" compare:"-"`
}

// TableName is the shared logical collection name in both stores.
func (*Story) TableName() string { return "stories" }

// EntityID returns the store-agnostic identifier.
func (s *Story) EntityID() string { return s.ID.String() }

// Touch stamps creation/update times, generating an ID when missing.
func (s *Story) Touch(now time.Time) {
	if s.ID.IsZero() {
		s.ID = NewStoryID()
	}
	if s.Status == "" {
		s.Status = StoryStatusDraft
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
}

// BeforeCreate hook to generate ID if not set.
func (s *Story) BeforeCreate(tx *gorm.DB) error {
	if s.ID.IsZero() {
		s.ID = NewStoryID()
	}
	return nil
}

// StringList stores a list of strings as JSONB in the relational store and as
// a native array in the document store.
type StringList []string

// Value implements the driver.Valuer interface for database storage.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		bytes = []byte(value.(string))
	}
	return json.Unmarshal(bytes, l)
}
