package pco

import (
	"encoding/json"
	"time"
)

// Resource identifies one provider endpoint synced into the
// analytical store.
type Resource struct {
	Name    string
	Path    string
	Include []string
}

var (
	// People must be synced before CheckIns; check-in rows reference
	// person natural keys.
	People = Resource{Name: "people", Path: "/people/v2/people"}
	// Events must likewise precede CheckIns.
	Events = Resource{Name: "events", Path: "/check-ins/v2/events"}
	// CheckIns pulls the person side-loaded so demographics land on
	// the row at reconcile time.
	CheckIns = Resource{Name: "check_ins", Path: "/check-ins/v2/check_ins", Include: []string{"person"}}
)

// SyncOrder lists the dashboard resources in dependency order.
var SyncOrder = []Resource{People, Events, CheckIns}

// Cursor addresses one page of a resource. The provider paginates by
// offset.
type Cursor struct {
	Offset int
}

// Ref is a JSON:API relationship pointer.
type Ref struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Record is one provider object with its dynamic attribute bag.
// Unknown attributes are carried through and ignored by the
// reconciler's explicit field mapping.
type Record struct {
	ID            string
	Type          string
	Attributes    map[string]any
	Relationships map[string][]Ref
}

// StringAttr returns the named attribute if it is a string, else "".
func (r Record) StringAttr(name string) string {
	if s, ok := r.Attributes[name].(string); ok {
		return s
	}
	return ""
}

// BoolAttr returns the named attribute if it is a boolean, else false.
func (r Record) BoolAttr(name string) bool {
	b, _ := r.Attributes[name].(bool)
	return b
}

// TimeAttr parses the named attribute as an RFC 3339 timestamp or a
// bare date, the two formats the provider emits.
func (r Record) TimeAttr(name string) (time.Time, bool) {
	s := r.StringAttr(name)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Rel returns the first reference of the named relationship.
func (r Record) Rel(name string) (Ref, bool) {
	refs := r.Relationships[name]
	if len(refs) == 0 {
		return Ref{}, false
	}
	return refs[0], true
}

// Page is one page of records plus the side-loaded objects the
// request included.
type Page struct {
	Records  []Record
	Included map[string]Record
	Next     *Cursor // nil on the final page
}

// IncludedRecord resolves a relationship reference against the page's
// side-loaded objects.
func (p *Page) IncludedRecord(ref Ref) (Record, bool) {
	rec, ok := p.Included[includedKey(ref.ID, ref.Type)]
	return rec, ok
}

func includedKey(id, typ string) string { return id + "|" + typ }

// JSON:API wire shapes.

type apiObject struct {
	ID            string                     `json:"id"`
	Type          string                     `json:"type"`
	Attributes    map[string]any             `json:"attributes"`
	Relationships map[string]apiRelationship `json:"relationships"`
}

type apiRelationship struct {
	Data json.RawMessage `json:"data"`
}

type apiLinks struct {
	Next string `json:"next"`
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	Included []apiObject     `json:"included"`
	Links    apiLinks        `json:"links"`
}

// records decodes the envelope's data member, which is an array on
// collection endpoints.
func (e *envelope) records() ([]apiObject, error) {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil, nil
	}
	var objs []apiObject
	if err := json.Unmarshal(e.Data, &objs); err != nil {
		return nil, err
	}
	return objs, nil
}

func (o apiObject) record() Record {
	rec := Record{
		ID:            o.ID,
		Type:          o.Type,
		Attributes:    o.Attributes,
		Relationships: make(map[string][]Ref, len(o.Relationships)),
	}
	for name, rel := range o.Relationships {
		if refs := parseRefs(rel.Data); len(refs) > 0 {
			rec.Relationships[name] = refs
		}
	}
	return rec
}

// parseRefs handles both to-one (object) and to-many (array)
// relationship payloads.
func parseRefs(raw json.RawMessage) []Ref {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '[' {
		var refs []Ref
		if err := json.Unmarshal(raw, &refs); err != nil {
			return nil
		}
		return refs
	}
	var ref Ref
	if err := json.Unmarshal(raw, &ref); err != nil || ref.ID == "" {
		return nil
	}
	return []Ref{ref}
}
