package profile

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	avatarmemory "elicitd/internal/avatarstore/memory"
)

func TestEmptyInputRequiresAction(t *testing.T) {
	c := NewCollector(nil)

	res, err := c.Collect(context.Background(), Input{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if res.Status != StatusRequiresAction {
		t.Fatalf("status: got %q", res.Status)
	}
	if res.Fields == nil {
		t.Fatalf("requiresAction must carry the field schema")
	}
	want := map[string]bool{"name": true, "email": true, "bio": true, "avatar": true}
	if len(res.Fields.Properties) != len(want) {
		t.Fatalf("field list: got %d properties", len(res.Fields.Properties))
	}
	for name := range want {
		if _, ok := res.Fields.Properties[name]; !ok {
			t.Errorf("missing field %q", name)
		}
	}
}

func TestFieldSchemaConstraints(t *testing.T) {
	fs := Fields()

	reqSet := map[string]bool{}
	for _, r := range fs.Required {
		reqSet[r] = true
	}
	if !reqSet["name"] || !reqSet["email"] || reqSet["bio"] || reqSet["avatar"] {
		t.Fatalf("required set wrong: %v", fs.Required)
	}
	if p := fs.Properties["name"]; p.MinLength == nil || *p.MinLength != 2 {
		t.Errorf("name minLength: %+v", p.MinLength)
	}
	if p := fs.Properties["bio"]; p.MaxLength == nil || *p.MaxLength != 500 {
		t.Errorf("bio maxLength: %+v", p.MaxLength)
	}
	if p := fs.Properties["email"]; p.Format != "email" {
		t.Errorf("email format: %q", p.Format)
	}
}

func TestValidSubmissionSucceeds(t *testing.T) {
	c := NewCollector(nil)

	res, err := c.Collect(context.Background(), Input{Name: "Al", Email: "a@b.com"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("status: got %q (errors: %v)", res.Status, res.Errors)
	}
	if res.Received == nil || res.Received.Name != "Al" || res.Received.Email != "a@b.com" {
		t.Fatalf("received echo wrong: %+v", res.Received)
	}
}

func TestValidationBoundaries(t *testing.T) {
	c := NewCollector(nil)
	ctx := context.Background()

	cases := []struct {
		name       string
		in         Input
		wantFields []string
	}{
		{"short name", Input{Name: "A", Email: "a@b.com"}, []string{"name"}},
		{"email without at", Input{Name: "Al", Email: "noat"}, []string{"email"}},
		{"both invalid", Input{Name: "A", Email: "noat"}, []string{"name", "email"}},
		{"missing name", Input{Email: "a@b.com"}, []string{"name"}},
		{"long bio", Input{Name: "Al", Email: "a@b.com", Bio: strings.Repeat("x", 501)}, []string{"bio"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := c.Collect(ctx, tc.in)
			if err != nil {
				t.Fatalf("collect: %v", err)
			}
			if res.Status != StatusValidationError {
				t.Fatalf("status: got %q", res.Status)
			}
			if len(res.Errors) != len(tc.wantFields) {
				t.Fatalf("errors: got %v", res.Errors)
			}
			for _, f := range tc.wantFields {
				if res.Errors[f] == "" {
					t.Errorf("missing error for %q (got %v)", f, res.Errors)
				}
			}
			if res.Fields == nil {
				t.Errorf("validationError must re-send the field schema")
			}
		})
	}
}

func TestBioAtLimitIsAccepted(t *testing.T) {
	c := NewCollector(nil)
	res, err := c.Collect(context.Background(), Input{Name: "Al", Email: "a@b.com", Bio: strings.Repeat("x", 500)})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("status: got %q (errors: %v)", res.Status, res.Errors)
	}
}

func TestAvatarIsStoredAndPreviewed(t *testing.T) {
	store, err := avatarmemory.New(4)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	c := NewCollector(store)
	ctx := context.Background()

	payload := []byte("\x89PNG\r\n\x1a\nfakeimagedata")
	in := Input{
		Name:  "Al",
		Email: "a@b.com",
		Avatar: &Avatar{
			Data:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload),
			FileName: "me.png",
		},
	}
	res, err := c.Collect(ctx, in)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("status: got %q (errors: %v)", res.Status, res.Errors)
	}
	if res.AvatarPreview == nil || res.AvatarPreview.SizeBytes != len(payload) {
		t.Fatalf("preview: %+v", res.AvatarPreview)
	}
	if res.AvatarPreview.MimeType != "image/png" {
		t.Fatalf("preview mime: %q", res.AvatarPreview.MimeType)
	}
	if res.AvatarRef == "" {
		t.Fatalf("avatar was not persisted")
	}
	item, err := store.Get(ctx, res.AvatarRef)
	if err != nil {
		t.Fatalf("fetch stored avatar: %v", err)
	}
	if string(item.Data) != string(payload) {
		t.Fatalf("stored bytes mismatch")
	}
}

func TestInvalidAvatarPayloadIsAValidationError(t *testing.T) {
	c := NewCollector(nil)
	res, err := c.Collect(context.Background(), Input{
		Name:   "Al",
		Email:  "a@b.com",
		Avatar: &Avatar{Data: "%%% not base64 %%%"},
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if res.Status != StatusValidationError || res.Errors["avatar"] == "" {
		t.Fatalf("want avatar validation error, got %+v", res)
	}
}
