// Package schema holds the server-supplied description of entity types and
// their fields for one data domain.
//
// A Snapshot is decoded once per load (or schema switch) from the backend's
// /telescope payload and is read-only afterwards. A reload builds a new
// Snapshot instead of mutating the previous one, so readers holding the old
// value never observe a partial switch.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingDescriptor is returned when an entity type or field is not part
// of the snapshot.
var ErrMissingDescriptor = errors.New("missing descriptor")

// FieldType classifies how the grid displays and edits a field.
type FieldType int

const (
	FieldUnknown FieldType = iota
	FieldBool
	FieldText
	FieldInt
	FieldFloat
	FieldJSON
	FieldDate
	FieldList
	FieldMultiEntity
	FieldEntity
)

var fieldTags = map[string]FieldType{
	"BOOL":        FieldBool,
	"TEXT":        FieldText,
	"INT":         FieldInt,
	"FLOAT":       FieldFloat,
	"JSON":        FieldJSON,
	"DATE":        FieldDate,
	"LIST":        FieldList,
	"MULTIENTITY": FieldMultiEntity,
	"ENTITY":      FieldEntity,
}

// FieldTypes returns the closed set of known field types.
func FieldTypes() []FieldType {
	return []FieldType{
		FieldBool, FieldText, FieldInt, FieldFloat, FieldJSON,
		FieldDate, FieldList, FieldMultiEntity, FieldEntity,
	}
}

// ParseFieldType maps a wire tag to its FieldType. Unrecognised tags map to
// FieldUnknown.
func ParseFieldType(tag string) FieldType {
	if ft, ok := fieldTags[strings.ToUpper(strings.TrimSpace(tag))]; ok {
		return ft
	}
	return FieldUnknown
}

// String returns the wire tag.
func (ft FieldType) String() string {
	switch ft {
	case FieldBool:
		return "BOOL"
	case FieldText:
		return "TEXT"
	case FieldInt:
		return "INT"
	case FieldFloat:
		return "FLOAT"
	case FieldJSON:
		return "JSON"
	case FieldDate:
		return "DATE"
	case FieldList:
		return "LIST"
	case FieldMultiEntity:
		return "MULTIENTITY"
	case FieldEntity:
		return "ENTITY"
	default:
		return "UNKNOWN"
	}
}

// References returns true for field types whose values point at other records.
func (ft FieldType) References() bool {
	return ft == FieldMultiEntity || ft == FieldEntity
}

// Params carries per-field constraints.
type Params struct {
	// Options are the enumerated values of a LIST field.
	Options []string
	// Targets are the entity types a MULTIENTITY/ENTITY field may point at,
	// in payload order.
	Targets []string
	// TargetParams holds the raw per-target parameters keyed by entity type.
	TargetParams map[string][]byte
	// Raw is the params object exactly as served.
	Raw []byte
}

// FieldDescriptor describes a single field on an entity.
type FieldDescriptor struct {
	Code        string
	Name        string
	Type        FieldType
	Tag         string // wire tag as served, kept for unknown types
	ID          ID
	Description string
	Indexed     bool
	Archived    bool
	Params      Params
}

// EntityDescriptor holds the metadata for one entity type.
type EntityDescriptor struct {
	Type           string // entity type name, the key used in requests
	Code           string // physical table code
	SoloName       string
	MultiName      string
	DisplayNameCol string
	ID             ID
	Archived       bool

	fields map[string]*FieldDescriptor
	order  []string
}

// NewEntity builds an entity descriptor with fields in the given order.
func NewEntity(entityType, displayNameCol string, fields ...FieldDescriptor) *EntityDescriptor {
	e := &EntityDescriptor{
		Type:           entityType,
		Code:           entityType,
		SoloName:       entityType,
		DisplayNameCol: displayNameCol,
		fields:         make(map[string]*FieldDescriptor, len(fields)),
	}
	for i := range fields {
		f := fields[i]
		if f.Tag == "" {
			f.Tag = f.Type.String()
		}
		e.add(&f)
	}
	return e
}

func (e *EntityDescriptor) add(f *FieldDescriptor) {
	if _, dup := e.fields[f.Code]; !dup {
		e.order = append(e.order, f.Code)
	}
	e.fields[f.Code] = f
}

// Field returns the descriptor for a field code.
func (e *EntityDescriptor) Field(code string) (FieldDescriptor, error) {
	f, ok := e.fields[code]
	if !ok {
		msg := fmt.Sprintf("field '%s' on entity '%s'", code, e.Type)
		if s := DidYouMean(code, e.order, 2); s != "" {
			msg += " (" + s + ")"
		}
		return FieldDescriptor{}, fmt.Errorf("%w: %s", ErrMissingDescriptor, msg)
	}
	return *f, nil
}

// Fields returns all fields in display order.
func (e *EntityDescriptor) Fields() []FieldDescriptor {
	out := make([]FieldDescriptor, 0, len(e.order))
	for _, code := range e.order {
		out = append(out, *e.fields[code])
	}
	return out
}

// FieldCodes returns field codes in display order.
func (e *EntityDescriptor) FieldCodes() []string {
	return append([]string(nil), e.order...)
}

// Snapshot is an immutable SchemaDescriptor: one data domain's entity types.
type Snapshot struct {
	code     string
	name     string
	entities map[string]*EntityDescriptor
	order    []string
}

// NewSnapshot creates a snapshot from entity descriptors. Entities keep the
// given order.
func NewSnapshot(code, name string, entities ...*EntityDescriptor) *Snapshot {
	s := &Snapshot{
		code:     code,
		name:     name,
		entities: make(map[string]*EntityDescriptor, len(entities)),
	}
	for _, e := range entities {
		if _, dup := s.entities[e.Type]; !dup {
			s.order = append(s.order, e.Type)
		}
		s.entities[e.Type] = e
	}
	return s
}

// Code returns the schema code used in requests.
func (s *Snapshot) Code() string { return s.code }

// Name returns the schema display name.
func (s *Snapshot) Name() string { return s.name }

// Entity returns the descriptor for an entity type.
func (s *Snapshot) Entity(entityType string) (*EntityDescriptor, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: no schema loaded", ErrMissingDescriptor)
	}
	e, ok := s.entities[entityType]
	if !ok {
		msg := fmt.Sprintf("entity '%s' in schema '%s'", entityType, s.code)
		if sug := DidYouMean(entityType, s.order, 2); sug != "" {
			msg += " (" + sug + ")"
		}
		return nil, fmt.Errorf("%w: %s", ErrMissingDescriptor, msg)
	}
	return e, nil
}

// Field resolves a field on an entity type.
func (s *Snapshot) Field(entityType, code string) (FieldDescriptor, error) {
	e, err := s.Entity(entityType)
	if err != nil {
		return FieldDescriptor{}, err
	}
	return e.Field(code)
}

// DisplayNameCol returns the display-name field of an entity type, or ""
// when the type is unknown.
func (s *Snapshot) DisplayNameCol(entityType string) string {
	e, err := s.Entity(entityType)
	if err != nil {
		return ""
	}
	return e.DisplayNameCol
}

// EntityTypes returns all entity type names in payload order.
func (s *Snapshot) EntityTypes() []string {
	return append([]string(nil), s.order...)
}
