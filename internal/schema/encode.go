package schema

import (
	"bytes"
	"encoding/json"
)

// MarshalJSON writes the snapshot in the /telescope payload shape with
// entities and fields in display order.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"code":`)
	writeString(&buf, s.code)
	buf.WriteString(`,"name":`)
	writeString(&buf, s.name)
	buf.WriteString(`,"entities":{`)
	for i, t := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(&buf, t)
		buf.WriteByte(':')
		b, err := s.entities[t].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

type wireFieldOut struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	ID          *ID             `json:"id,omitempty"`
	Description string          `json:"description,omitempty"`
	Index       bool            `json:"index"`
	Archived    bool            `json:"archived"`
	Params      json.RawMessage `json:"params,omitempty"`
}

// MarshalJSON writes the entity with its fields object in display order.
func (e *EntityDescriptor) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"code":`)
	writeString(&buf, e.Code)
	buf.WriteString(`,"soloname":`)
	writeString(&buf, e.SoloName)
	buf.WriteString(`,"multiname":`)
	writeString(&buf, e.MultiName)
	buf.WriteString(`,"display_name_col":`)
	writeString(&buf, e.DisplayNameCol)
	if !e.ID.IsZero() {
		buf.WriteString(`,"id":`)
		b, _ := e.ID.MarshalJSON()
		buf.Write(b)
	}
	buf.WriteString(`,"archived":`)
	if e.Archived {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}
	buf.WriteString(`,"fields":{`)
	for i, code := range e.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		f := e.fields[code]
		out := wireFieldOut{
			Code:        f.Code,
			Name:        f.Name,
			Type:        f.Tag,
			Description: f.Description,
			Index:       f.Indexed,
			Archived:    f.Archived,
			Params:      f.Params.encode(),
		}
		if out.Type == "" {
			out.Type = f.Type.String()
		}
		if !f.ID.IsZero() {
			id := f.ID
			out.ID = &id
		}
		b, err := json.Marshal(out)
		if err != nil {
			return nil, err
		}
		writeString(&buf, code)
		buf.WriteByte(':')
		buf.Write(b)
	}
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

// encode returns the served params when present, otherwise rebuilds the
// constraints object from Options or Targets.
func (p Params) encode() json.RawMessage {
	if len(bytes.TrimSpace(p.Raw)) > 0 {
		return json.RawMessage(p.Raw)
	}
	switch {
	case len(p.Options) > 0:
		b, _ := json.Marshal(map[string]any{"constraints": p.Options})
		return b
	case len(p.Targets) > 0:
		var buf bytes.Buffer
		buf.WriteString(`{"constraints":{`)
		for i, t := range p.Targets {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(&buf, t)
			buf.WriteByte(':')
			if raw := p.TargetParams[t]; len(raw) > 0 {
				buf.Write(raw)
			} else {
				buf.WriteString("{}")
			}
		}
		buf.WriteString(`}}`)
		return buf.Bytes()
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}
