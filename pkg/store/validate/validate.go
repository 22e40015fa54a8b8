// Package validate compares entities across the two stores and reports
// field-level differences. Fields tagged `compare:"-"` are excluded,
// which keeps store-managed timestamps from producing noise.
package validate

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/mystira/storyvault/pkg/store"
)

// ErrUnavailable is returned when validation is asked to compare
// across stores but only one is connected.
var ErrUnavailable = errors.New("consistency validation requires both stores connected")

// Result classifies a comparison.
type Result string

const (
	Consistent       Result = "consistent"
	Divergent        Result = "divergent"
	MissingPrimary   Result = "missing_primary"
	MissingSecondary Result = "missing_secondary"
)

// FieldDiff is one mismatched field, with both sides rendered for the
// report.
type FieldDiff struct {
	Field     string `json:"field"`
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// Report is the outcome of validating one entity.
type Report struct {
	Table     string      `json:"table"`
	EntityID  string      `json:"entity_id"`
	Result    Result      `json:"result"`
	Diffs     []FieldDiff `json:"diffs,omitempty"`
	CheckedAt time.Time   `json:"checked_at"`
}

// Consistent reports whether the entity matched across stores.
func (r Report) IsConsistent() bool { return r.Result == Consistent }

// Validator reads one entity from both stores and diffs them.
type Validator[T any, PT store.Entity[T]] struct {
	primary   store.Store[T, PT]
	secondary store.Store[T, PT]
}

func New[T any, PT store.Entity[T]](primary, secondary store.Store[T, PT]) *Validator[T, PT] {
	return &Validator[T, PT]{primary: primary, secondary: secondary}
}

// Validate fetches the entity from both stores and compares.
// An entity missing from both stores is consistent: both agree it does
// not exist.
func (v *Validator[T, PT]) Validate(ctx context.Context, id string) (Report, error) {
	report := Report{
		Table:     store.TableOf[T, PT](),
		EntityID:  id,
		CheckedAt: time.Now().UTC(),
	}
	if v.primary == nil || v.secondary == nil {
		return report, ErrUnavailable
	}

	p, err := v.primary.Get(ctx, id)
	if err != nil {
		return report, fmt.Errorf("reading primary: %w", err)
	}
	s, err := v.secondary.Get(ctx, id)
	if err != nil {
		return report, fmt.Errorf("reading secondary: %w", err)
	}

	switch {
	case p == nil && s == nil:
		report.Result = Consistent
	case s == nil:
		report.Result = MissingSecondary
	case p == nil:
		report.Result = MissingPrimary
	default:
		report.Diffs = Compare(p, s)
		if len(report.Diffs) == 0 {
			report.Result = Consistent
		} else {
			report.Result = Divergent
		}
	}
	return report, nil
}

// Compare diffs two entities field by field. Unexported fields and
// fields tagged `compare:"-"` are skipped. Nested values are compared
// with reflect.DeepEqual.
func Compare[T any, PT store.Entity[T]](a, b PT) []FieldDiff {
	va := reflect.ValueOf(a).Elem()
	vb := reflect.ValueOf(b).Elem()
	t := va.Type()

	var diffs []FieldDiff
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if field.Tag.Get("compare") == "-" {
			continue
		}
		fa := va.Field(i).Interface()
		fb := vb.Field(i).Interface()
		if equalField(fa, fb) {
			continue
		}
		diffs = append(diffs, FieldDiff{
			Field:     field.Name,
			Primary:   fmt.Sprintf("%v", fa),
			Secondary: fmt.Sprintf("%v", fb),
		})
	}
	return diffs
}

func equalField(a, b any) bool {
	// Timestamps compare by instant, not by location or monotonic
	// reading, since the two backends round-trip them differently.
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}
