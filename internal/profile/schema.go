package profile

import (
	"sync"

	"github.com/invopop/jsonschema"
)

// FieldSchema is the flat object schema sent to the client when input is
// required. Only the subset the form renderer understands is emitted.
type FieldSchema struct {
	Type       string                   `json:"type"`
	Properties map[string]FieldProperty `json:"properties"`
	Required   []string                 `json:"required,omitempty"`
}

// FieldProperty is one field descriptor in a FieldSchema.
type FieldProperty struct {
	Type        string  `json:"type,omitempty"`
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Format      string  `json:"format,omitempty"`
	MinLength   *uint64 `json:"minLength,omitempty"`
	MaxLength   *uint64 `json:"maxLength,omitempty"`
}

// schemaFields is the reflection source for the profile form schema. The
// wire-level Input keeps everything optional; required-ness lives here.
type schemaFields struct {
	Name   string `json:"name" jsonschema:"title=Name,minLength=2,description=Your full name"`
	Email  string `json:"email" jsonschema:"title=Email,format=email,description=Contact email address"`
	Bio    string `json:"bio,omitempty" jsonschema:"title=Bio,maxLength=500,description=Short biography"`
	Avatar string `json:"avatar,omitempty" jsonschema:"title=Avatar,format=data-url,description=Optional profile image"`
}

var (
	fieldsOnce sync.Once
	fields     *FieldSchema
)

// Fields returns the profile form schema. The reflected schema is computed
// once and shared; callers must not mutate it.
func Fields() *FieldSchema {
	fieldsOnce.Do(func() {
		r := &jsonschema.Reflector{
			DoNotReference: true, // inline defs
			ExpandedStruct: true, // put struct at root
		}
		s := r.Reflect(new(schemaFields))

		props := make(map[string]FieldProperty)
		if s.Properties != nil {
			for el := s.Properties.Oldest(); el != nil; el = el.Next() {
				v := el.Value
				props[el.Key] = FieldProperty{
					Type:        v.Type,
					Title:       v.Title,
					Description: v.Description,
					Format:      v.Format,
					MinLength:   v.MinLength,
					MaxLength:   v.MaxLength,
				}
			}
		}
		fields = &FieldSchema{
			Type:       "object",
			Properties: props,
			Required:   append([]string(nil), s.Required...),
		}
	})
	return fields
}
