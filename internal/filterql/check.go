package filterql

import (
	"fmt"

	"github.com/matthewbaird/railgrid/internal/railgun"
	"github.com/matthewbaird/railgrid/internal/schema"
)

// Check validates f against the entity's fields. Unknown fields carry a
// spelling suggestion; ordering operators need a numeric or date field.
func Check(f *railgun.Filter, e *schema.EntityDescriptor) error {
	if f == nil {
		return nil
	}
	for _, c := range f.Conditions {
		if c.Field == schema.IdentityField {
			continue
		}
		fd, err := e.Field(c.Field)
		if err != nil {
			return err
		}
		if c.Operator != railgun.OpGreaterThan && c.Operator != railgun.OpLessThan {
			continue
		}
		switch fd.Type {
		case schema.FieldInt, schema.FieldFloat, schema.FieldDate:
		default:
			return fmt.Errorf("operator %s needs a numeric or date field, %s is %s", c.Operator, c.Field, fd.Type)
		}
	}
	for i := range f.Groups {
		if err := Check(&f.Groups[i], e); err != nil {
			return err
		}
	}
	return nil
}
