// Package profile implements the profile-collection elicitation exchange:
// given partial or complete form input it answers with a field schema, a set
// of per-field validation errors, or the accepted profile. It has no side
// effects on session state; the only collaborator is the avatar store.
package profile

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"elicitd/internal/avatarstore"
)

const (
	StatusRequiresAction  = "requiresAction"
	StatusValidationError = "validationError"
	StatusSuccess         = "success"
)

const (
	nameMinLen = 2
	bioMaxLen  = 500
)

// Avatar is an optional image payload supplied with the form.
type Avatar struct {
	// Data is the base64-encoded image, optionally prefixed with a data URI
	// header ("data:image/png;base64,").
	Data     string `json:"data"`
	MimeType string `json:"mimeType,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// Input is the wire shape of a profile submission. Every field is optional;
// an entirely empty input elicits the form schema.
type Input struct {
	Name   string  `json:"name,omitempty"`
	Email  string  `json:"email,omitempty"`
	Bio    string  `json:"bio,omitempty"`
	Avatar *Avatar `json:"avatar,omitempty"`
}

func (in *Input) empty() bool {
	return in.Name == "" && in.Email == "" && in.Bio == "" && in.Avatar == nil
}

// Received echoes the normalized accepted input.
type Received struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Bio   string `json:"bio,omitempty"`
}

// AvatarPreview is derived metadata about a stored avatar.
type AvatarPreview struct {
	MimeType  string `json:"mimeType"`
	SizeBytes int    `json:"sizeBytes"`
}

// Result is the structured outcome of one collection attempt.
type Result struct {
	Status        string            `json:"status"`
	Message       string            `json:"message,omitempty"`
	Fields        *FieldSchema      `json:"fields,omitempty"`
	Errors        map[string]string `json:"errors,omitempty"`
	Received      *Received         `json:"received,omitempty"`
	AvatarPreview *AvatarPreview    `json:"avatarPreview,omitempty"`
	AvatarRef     string            `json:"avatarRef,omitempty"`
}

// Collector runs the collection exchange. Zero side effects on protocol
// state; safe for concurrent use.
type Collector struct {
	store avatarstore.Store
	log   *slog.Logger
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithLogger sets the logger used for avatar persistence warnings.
func WithLogger(log *slog.Logger) CollectorOption {
	return func(c *Collector) { c.log = log }
}

// NewCollector builds a Collector. store may be nil, in which case avatars
// are acknowledged but not persisted.
func NewCollector(store avatarstore.Store, opts ...CollectorOption) *Collector {
	c := &Collector{store: store, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect evaluates one submission.
func (c *Collector) Collect(ctx context.Context, in Input) (*Result, error) {
	if in.empty() {
		return &Result{
			Status:  StatusRequiresAction,
			Message: "please provide your profile details",
			Fields:  Fields(),
		}, nil
	}

	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	bio := strings.TrimSpace(in.Bio)

	errs := map[string]string{}
	if name == "" {
		errs["name"] = "name is required"
	} else if utf8.RuneCountInString(name) < nameMinLen {
		errs["name"] = "name must be at least 2 characters"
	}
	if email == "" {
		errs["email"] = "email is required"
	} else if !strings.Contains(email, "@") {
		errs["email"] = "email must contain @"
	}
	if bio != "" && utf8.RuneCountInString(bio) > bioMaxLen {
		errs["bio"] = "bio must be at most 500 characters"
	}

	var avatarData []byte
	var avatarMime string
	if in.Avatar != nil {
		data, mime, err := decodeAvatar(in.Avatar)
		if err != nil {
			errs["avatar"] = "avatar payload is not valid base64"
		} else {
			avatarData, avatarMime = data, mime
		}
	}

	if len(errs) > 0 {
		return &Result{
			Status: StatusValidationError,
			Errors: errs,
			Fields: Fields(),
		}, nil
	}

	res := &Result{
		Status:   StatusSuccess,
		Received: &Received{Name: name, Email: email, Bio: bio},
	}
	if avatarData != nil {
		res.AvatarPreview = &AvatarPreview{MimeType: avatarMime, SizeBytes: len(avatarData)}
		if c.store != nil {
			ref, err := c.store.Put(ctx, avatarData, avatarMime)
			if err != nil {
				// Persistence is best-effort; the profile itself is accepted.
				c.log.WarnContext(ctx, "avatar.store.fail", slog.String("err", err.Error()))
			} else {
				res.AvatarRef = ref
			}
		}
	}
	return res, nil
}

// decodeAvatar strips an optional data URI prefix, base64-decodes the
// payload, and resolves the mime type (declared, data URI, or sniffed).
func decodeAvatar(a *Avatar) ([]byte, string, error) {
	raw := a.Data
	mime := a.MimeType
	if strings.HasPrefix(raw, "data:") {
		if idx := strings.Index(raw, ","); idx >= 0 {
			header := raw[len("data:"):idx]
			raw = raw[idx+1:]
			if mime == "" {
				mime = strings.TrimSuffix(header, ";base64")
			}
		}
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", err
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}
