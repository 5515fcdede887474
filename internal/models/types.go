package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

const (
	DateLayout   = "2006-01-02"
	MaxTagLength = 64
)

// Tags is an ordered label list persisted as a JSON array.
type Tags []string

// NormalizeTags trims labels, drops blanks and repeats, and keeps the
// order in which labels were first given.
func NormalizeTags(raw []string) (Tags, error) {
	out := make(Tags, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, tag := range raw {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if len(tag) > MaxTagLength {
			return nil, &ValidationError{Field: "tags", Message: fmt.Sprintf("tag %q exceeds %d characters", tag, MaxTagLength)}
		}
		// commas separate labels in the list query string
		if strings.Contains(tag, ",") {
			return nil, &ValidationError{Field: "tags", Message: fmt.Sprintf("tag %q must not contain a comma", tag)}
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out, nil
}

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (t *Tags) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported tags column type %T", src)
	}

	if len(data) == 0 {
		*t = Tags{}
		return nil
	}

	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return fmt.Errorf("failed to decode tags: %w", err)
	}
	if labels == nil {
		labels = []string{}
	}
	*t = Tags(labels)
	return nil
}

func (t Tags) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(t))
}

func (Tags) GormDataType() string {
	return "json"
}

func (Tags) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "jsonb"
	default:
		return "text"
	}
}

// Date is a calendar date without time of day, always in UTC.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp, which is
// truncated to its calendar date.
func ParseDate(raw string) (Date, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return DateOf(t), nil
	}
	return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", raw)
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = DateOf(v)
		return nil
	case []byte:
		return d.scanString(string(v))
	case string:
		return d.scanString(v)
	default:
		return fmt.Errorf("unsupported date column type %T", src)
	}
}

// sqlite hands dates back in whatever layout they were written with.
func (d *Date) scanString(raw string) error {
	layouts := []string{DateLayout, time.RFC3339Nano, "2006-01-02 15:04:05Z07:00", "2006-01-02 15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			*d = DateOf(t)
			return nil
		}
	}
	return fmt.Errorf("invalid stored date %q", raw)
}

func (Date) GormDataType() string {
	return "date"
}

// NullableDate records whether a JSON field was present at all, so a
// patch can tell "leave alone" apart from "clear".
type NullableDate struct {
	Set  bool
	Date *Date
}

func ClearDate() NullableDate {
	return NullableDate{Set: true}
}

func SetDate(d Date) NullableDate {
	return NullableDate{Set: true, Date: &d}
}

func (n *NullableDate) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Date = nil
		return nil
	}
	var d Date
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	n.Date = &d
	return nil
}

func (n NullableDate) MarshalJSON() ([]byte, error) {
	if n.Date == nil {
		return []byte("null"), nil
	}
	return n.Date.MarshalJSON()
}

// MarshalJSON emits only the fields present in the patch.
func (in UpdateTaskInput) MarshalJSON() ([]byte, error) {
	body := make(map[string]interface{})
	if in.Title != nil {
		body["title"] = *in.Title
	}
	if in.Description != nil {
		body["description"] = *in.Description
	}
	if in.Status != nil {
		body["status"] = *in.Status
	}
	if in.Tags != nil {
		body["tags"] = *in.Tags
	}
	if in.DueDate.Set {
		body["dueDate"] = in.DueDate
	}
	return json.Marshal(body)
}
