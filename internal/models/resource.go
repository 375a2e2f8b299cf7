package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Field limits for resources.
const (
	MaxTitleLength       = 200
	MaxAnnotationsLength = 2000
)

// Type is the closed set of resource kinds.
type Type string

const (
	TypeBookmark Type = "bookmark"
	TypePrompt   Type = "prompt"
	TypeSnippet  Type = "snippet"
	TypeDocument Type = "document"
	TypeNote     Type = "note"
)

// Types lists every resource type in display order.
var Types = []Type{TypeBookmark, TypePrompt, TypeSnippet, TypeDocument, TypeNote}

// ParseType returns the Type named by s, or false when s is not a known type.
func ParseType(s string) (Type, bool) {
	for _, t := range Types {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Payload is the type-specific part of a resource. Each resource type has exactly
// one payload struct, so a resource can never carry fields of another type.
type Payload interface {
	Kind() Type
}

// Bookmark is a saved link.
type Bookmark struct {
	URL         string
	Description string
}

// Prompt is a reusable AI prompt.
type Prompt struct {
	Content  string
	Platform string
	Category string
}

// Snippet is a piece of source code.
type Snippet struct {
	Content      string
	CodeLanguage string
	Description  string
}

// Document references a file held by the blob store; the bytes never pass through here.
type Document struct {
	FileURL     string
	FileName    string
	FileSize    int64
	FileType    string
	Description string
}

// Note is free-form text.
type Note struct {
	Content string
}

func (Bookmark) Kind() Type { return TypeBookmark }
func (Prompt) Kind() Type   { return TypePrompt }
func (Snippet) Kind() Type  { return TypeSnippet }
func (Document) Kind() Type { return TypeDocument }
func (Note) Kind() Type     { return TypeNote }

// Resource is a single saved item owned by one user.
type Resource struct {
	ID          string
	UserID      string
	FolderID    *string
	Title       string
	Tags        []string
	Favorite    bool
	Annotations string
	Payload     Payload
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Type returns the resource's kind, derived from its payload.
func (r *Resource) Type() Type {
	if r.Payload == nil {
		return ""
	}
	return r.Payload.Kind()
}

// PayloadFields is the flat, column-shaped view of a payload used by storage
// and by the JSON encoding.
type PayloadFields struct {
	URL          string `json:"url,omitempty"`
	Content      string `json:"content,omitempty"`
	Description  string `json:"description,omitempty"`
	Platform     string `json:"platform,omitempty"`
	Category     string `json:"category,omitempty"`
	CodeLanguage string `json:"codeLanguage,omitempty"`
	FileURL      string `json:"fileUrl,omitempty"`
	FileName     string `json:"fileName,omitempty"`
	FileSize     int64  `json:"fileSize,omitempty"`
	FileType     string `json:"fileType,omitempty"`
}

// Flatten spreads a payload over PayloadFields.
func Flatten(p Payload) PayloadFields {
	switch v := p.(type) {
	case Bookmark:
		return PayloadFields{URL: v.URL, Description: v.Description}
	case Prompt:
		return PayloadFields{Content: v.Content, Platform: v.Platform, Category: v.Category}
	case Snippet:
		return PayloadFields{Content: v.Content, CodeLanguage: v.CodeLanguage, Description: v.Description}
	case Document:
		return PayloadFields{
			FileURL:     v.FileURL,
			FileName:    v.FileName,
			FileSize:    v.FileSize,
			FileType:    v.FileType,
			Description: v.Description,
		}
	case Note:
		return PayloadFields{Content: v.Content}
	}
	return PayloadFields{}
}

// Payload builds the payload of type t from the flat fields, dropping fields
// that do not belong to t.
func (f PayloadFields) Payload(t Type) (Payload, error) {
	switch t {
	case TypeBookmark:
		return Bookmark{URL: f.URL, Description: f.Description}, nil
	case TypePrompt:
		return Prompt{Content: f.Content, Platform: f.Platform, Category: f.Category}, nil
	case TypeSnippet:
		return Snippet{Content: f.Content, CodeLanguage: f.CodeLanguage, Description: f.Description}, nil
	case TypeDocument:
		return Document{
			FileURL:     f.FileURL,
			FileName:    f.FileName,
			FileSize:    f.FileSize,
			FileType:    f.FileType,
			Description: f.Description,
		}, nil
	case TypeNote:
		return Note{Content: f.Content}, nil
	}
	return nil, fmt.Errorf("unknown resource type %q", t)
}

type resourceJSON struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Type        Type      `json:"type"`
	FolderID    *string   `json:"folderId"`
	Title       string    `json:"title"`
	Tags        []string  `json:"tags"`
	Favorite    bool      `json:"favorite"`
	Annotations string    `json:"annotations,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	PayloadFields
}

// MarshalJSON encodes the resource flat, with "type" as the discriminator.
func (r Resource) MarshalJSON() ([]byte, error) {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(resourceJSON{
		ID:            r.ID,
		UserID:        r.UserID,
		Type:          r.Type(),
		FolderID:      r.FolderID,
		Title:         r.Title,
		Tags:          tags,
		Favorite:      r.Favorite,
		Annotations:   r.Annotations,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		PayloadFields: Flatten(r.Payload),
	})
}

// UnmarshalJSON decodes the flat encoding produced by MarshalJSON.
func (r *Resource) UnmarshalJSON(data []byte) error {
	var raw resourceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p, err := raw.PayloadFields.Payload(raw.Type)
	if err != nil {
		return err
	}
	*r = Resource{
		ID:          raw.ID,
		UserID:      raw.UserID,
		FolderID:    raw.FolderID,
		Title:       raw.Title,
		Tags:        raw.Tags,
		Favorite:    raw.Favorite,
		Annotations: raw.Annotations,
		Payload:     p,
		CreatedAt:   raw.CreatedAt,
		UpdatedAt:   raw.UpdatedAt,
	}
	return nil
}

var payloadFieldNames = map[Type][]string{
	TypeBookmark: {"url", "description"},
	TypePrompt:   {"content", "platform", "category"},
	TypeSnippet:  {"content", "codeLanguage", "description"},
	TypeDocument: {"fileUrl", "fileName", "fileSize", "fileType", "description"},
	TypeNote:     {"content"},
}

// HasField reports whether resources of type t carry the payload field with
// the given JSON name.
func (t Type) HasField(name string) bool {
	for _, f := range payloadFieldNames[t] {
		if f == name {
			return true
		}
	}
	return false
}
