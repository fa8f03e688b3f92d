package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// wire shapes of the /telescope payload. Objects whose key order carries
// meaning (entities, fields) are kept raw and walked with walkObject.
type wireSchema struct {
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Entities json.RawMessage `json:"entities"`
}

type wireEntity struct {
	Code           string          `json:"code"`
	SoloName       string          `json:"soloname"`
	MultiName      string          `json:"multiname"`
	DisplayNameCol string          `json:"display_name_col"`
	ID             ID              `json:"id"`
	Archived       bool            `json:"archived"`
	Fields         json.RawMessage `json:"fields"`
}

type wireField struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	ID          ID              `json:"id"`
	Description string          `json:"description"`
	Index       bool            `json:"index"`
	Archived    bool            `json:"archived"`
	Params      json.RawMessage `json:"params"`
}

// Decode builds a Snapshot from a full /telescope payload. The schema code
// falls back to fallbackCode when the payload does not carry one.
func Decode(data []byte, fallbackCode string) (*Snapshot, error) {
	var ws wireSchema
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}
	code := ws.Code
	if code == "" {
		code = fallbackCode
	}
	name := ws.Name
	if name == "" {
		name = code
	}

	var entities []*EntityDescriptor
	if len(bytes.TrimSpace(ws.Entities)) > 0 && !isNull(ws.Entities) {
		err := walkObject(ws.Entities, func(key string, raw json.RawMessage) error {
			e, err := DecodeEntity(key, raw)
			if err != nil {
				return err
			}
			entities = append(entities, e)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("decoding schema '%s': %w", code, err)
		}
	}
	return NewSnapshot(code, name, entities...), nil
}

// DecodeEntity builds an EntityDescriptor from an entity-scoped /telescope
// payload. entityType is the key the entity is addressed by.
func DecodeEntity(entityType string, data []byte) (*EntityDescriptor, error) {
	var we wireEntity
	if err := json.Unmarshal(data, &we); err != nil {
		return nil, fmt.Errorf("decoding entity '%s': %w", entityType, err)
	}
	e := &EntityDescriptor{
		Type:           entityType,
		Code:           we.Code,
		SoloName:       we.SoloName,
		MultiName:      we.MultiName,
		DisplayNameCol: we.DisplayNameCol,
		ID:             we.ID,
		Archived:       we.Archived,
		fields:         make(map[string]*FieldDescriptor),
	}
	if e.Type == "" {
		e.Type = we.SoloName
	}
	if e.Code == "" {
		e.Code = e.Type
	}
	if len(bytes.TrimSpace(we.Fields)) == 0 || isNull(we.Fields) {
		return e, nil
	}
	err := walkObject(we.Fields, func(key string, raw json.RawMessage) error {
		var wf wireField
		if err := json.Unmarshal(raw, &wf); err != nil {
			return fmt.Errorf("field '%s': %w", key, err)
		}
		f := &FieldDescriptor{
			Code:        wf.Code,
			Name:        wf.Name,
			Type:        ParseFieldType(wf.Type),
			Tag:         wf.Type,
			ID:          wf.ID,
			Description: wf.Description,
			Indexed:     wf.Index,
			Archived:    wf.Archived,
			Params:      decodeParams(wf.Params),
		}
		if f.Code == "" {
			f.Code = key
		}
		if f.Name == "" {
			f.Name = f.Code
		}
		e.add(f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decoding entity '%s': %w", entityType, err)
	}
	return e, nil
}

// decodeParams never fails: malformed params leave the field without
// constraints so one bad definition does not break the entity.
func decodeParams(raw json.RawMessage) Params {
	p := Params{Raw: append([]byte(nil), raw...)}
	if len(bytes.TrimSpace(raw)) == 0 || isNull(raw) {
		return p
	}
	// Some backends serve params as a JSON string holding the object.
	var nested string
	if err := json.Unmarshal(raw, &nested); err == nil {
		raw = json.RawMessage(nested)
	}
	var obj struct {
		Constraints json.RawMessage `json:"constraints"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || isNull(obj.Constraints) {
		return p
	}
	c := bytes.TrimSpace(obj.Constraints)
	if len(c) == 0 {
		return p
	}
	switch c[0] {
	case '[':
		var options []any
		if err := json.Unmarshal(c, &options); err == nil {
			for _, o := range options {
				p.Options = append(p.Options, Text(o))
			}
		}
	case '{':
		p.TargetParams = make(map[string][]byte)
		_ = walkObject(c, func(key string, v json.RawMessage) error {
			p.Targets = append(p.Targets, key)
			p.TargetParams[key] = append([]byte(nil), v...)
			return nil
		})
	}
	return p
}

// DecodeRows decodes a /read response into rows. Reference fields of the
// entity are converted to Reference values; numbers keep their JSON text.
func DecodeRows(snap *Snapshot, entityType string, data []byte) ([]Row, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding rows: %w", err)
	}
	entity, _ := snap.Entity(entityType)
	rows := make([]Row, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, normalizeRow(snap, entity, Row(r)))
	}
	return rows, nil
}

func normalizeRow(snap *Snapshot, entity *EntityDescriptor, row Row) Row {
	if entity == nil {
		return row
	}
	for code, v := range row {
		f, ok := entity.fields[code]
		if !ok {
			continue
		}
		switch f.Type {
		case FieldMultiEntity:
			row[code] = referenceList(snap, f, v)
		case FieldEntity:
			if obj, ok := v.(map[string]any); ok {
				row[code] = ReferenceFrom(snap, firstTarget(f), obj)
			}
		}
	}
	return row
}

func referenceList(snap *Snapshot, f *FieldDescriptor, v any) []Reference {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	refs := make([]Reference, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		// Aggregating joins yield {uid: null} for records with no links.
		if obj[IdentityField] == nil {
			continue
		}
		refs = append(refs, ReferenceFrom(snap, firstTarget(f), obj))
	}
	if len(refs) == 0 {
		return nil
	}
	return refs
}

func firstTarget(f *FieldDescriptor) string {
	if len(f.Params.Targets) == 1 {
		return f.Params.Targets[0]
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// walkObject calls fn for each member of a JSON object in document order.
func walkObject(raw json.RawMessage, fn func(key string, value json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("member '%s': %w", key, err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}
