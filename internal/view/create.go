package view

import (
	"context"

	"go.uber.org/zap"

	"github.com/matthewbaird/railgrid/internal/eventbus"
	"github.com/matthewbaird/railgrid/internal/railgun"
	"github.com/matthewbaird/railgrid/internal/schema"
)

// FormField is one input of the record-creation form.
type FormField struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
	// Supported is false for types the form has no input for.
	Supported bool `json:"supported"`
}

// CreateForm lists the inputs of the record-creation form in schema order.
// The identity field is never an input.
func (v *View) CreateForm() ([]FormField, error) {
	if v.table == nil {
		return nil, ErrNotLoaded
	}
	e, err := v.table.Snapshot().Entity(v.table.Entity())
	if err != nil {
		return nil, err
	}
	var out []FormField
	for _, fd := range e.Fields() {
		if fd.Code == schema.IdentityField {
			continue
		}
		out = append(out, FormField{
			Code:      fd.Code,
			Name:      fd.Name,
			Type:      fd.Type.String(),
			Required:  fd.Code == "code",
			Supported: formInput(fd.Type),
		})
	}
	return out, nil
}

func formInput(ft schema.FieldType) bool {
	switch ft {
	case schema.FieldBool, schema.FieldText, schema.FieldInt, schema.FieldFloat,
		schema.FieldJSON, schema.FieldDate, schema.FieldList:
		return true
	}
	return false
}

// CreateData builds the /create payload from raw form inputs. Empty inputs
// and the identity field are dropped; "true" becomes a boolean.
func CreateData(inputs map[string]string) map[string]any {
	data := make(map[string]any, len(inputs))
	for code, raw := range inputs {
		if code == schema.IdentityField || raw == "" {
			continue
		}
		if raw == "true" {
			data[code] = true
			continue
		}
		data[code] = raw
	}
	return data
}

// CreateRecord posts a new record built from form inputs. The grid is not
// refetched. done runs on the loop with the created row, which may be nil
// when the service returns no body.
func (v *View) CreateRecord(inputs map[string]string, done func(schema.Row, error)) error {
	if v.table == nil {
		return ErrNotLoaded
	}
	req := railgun.CreateRequest{
		Schema: v.cfg.Schema,
		Entity: v.cfg.Entity,
		Data:   CreateData(inputs),
	}
	v.loop.Go(func(ctx context.Context) func() {
		row, err := v.backend.Create(ctx, req)
		return func() {
			evt := eventbus.NewEvent(eventbus.RecordCreated, req.Schema, req.Entity)
			if err != nil {
				v.logger.Warn("create failed", zap.String("entity", req.Entity), zap.Error(err))
				evt.Type = eventbus.CreateFailed
				evt.Error = err.Error()
			} else if id := row.ID(); !id.IsZero() {
				evt.RecordID = id.String()
			}
			v.events.Publish(evt)
			if done != nil {
				done(row, err)
			}
		}
	})
	return nil
}
