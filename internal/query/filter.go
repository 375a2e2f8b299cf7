// Package query turns resource filters into deterministic, paginated result sets.
package query

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/stash/internal/apperr"
	"github.com/starford/stash/internal/models"
)

// Pagination defaults.
const (
	DefaultLimit = 50
	MaxLimit     = 200
	// MaxPage keeps Offset within 32 bits at any page size.
	MaxPage = math.MaxInt32 / MaxLimit
)

// RootSentinel is the folderId value meaning "unfiled resources only".
const RootSentinel = "root"

// FolderMode selects how the folder filter applies.
type FolderMode int

const (
	// AnyFolder applies no folder filter.
	AnyFolder FolderMode = iota
	// RootFolder matches resources with no folder.
	RootFolder
	// InFolder matches resources directly inside Filter.FolderID.
	InFolder
)

// Filter describes one resource listing. All set fields must match.
type Filter struct {
	Type     models.Type `json:"type"`
	Folder   FolderMode  `json:"-"`
	FolderID string      `json:"folderId"`
	Favorite *bool       `json:"favorite"`
	Tags     []string    `json:"tags"`
	Search   string      `json:"search"`
	Page     int         `json:"page"`
	Limit    int         `json:"limit"`
}

// ParseFilter reads a filter from query parameters. Tags may be given
// comma-separated, repeated, or both. folderId accepts "root" and "null" as
// the unfiled sentinel.
func ParseFilter(v url.Values) (Filter, error) {
	var f Filter
	fields := map[string]string{}

	f.Type = models.Type(strings.TrimSpace(v.Get("type")))

	switch id := strings.TrimSpace(v.Get("folderId")); id {
	case "":
		f.Folder = AnyFolder
	case RootSentinel, "null":
		f.Folder = RootFolder
	default:
		f.Folder = InFolder
		f.FolderID = id
	}

	if raw := v.Get("favorite"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			fields["favorite"] = "must be true or false"
		} else {
			f.Favorite = &b
		}
	}

	for _, raw := range v["tags"] {
		f.Tags = append(f.Tags, strings.Split(raw, ",")...)
	}

	f.Search = strings.TrimSpace(v.Get("search"))

	for name, dst := range map[string]*int{"page": &f.Page, "limit": &f.Limit} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			fields[name] = "must be an integer"
			continue
		}
		*dst = n
	}

	if len(fields) > 0 {
		return Filter{}, &apperr.ValidationError{Fields: fields}
	}
	return f, nil
}

// Normalize applies defaults, normalizes tags and validates the filter.
// A zero Page or Limit means "use the default"; Limit is capped at MaxLimit.
func (f Filter) Normalize() (Filter, error) {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	f.Tags = models.NormalizeTags(f.Tags)
	f.Search = strings.TrimSpace(f.Search)
	if f.Folder != InFolder {
		f.FolderID = ""
	}

	types := make([]any, len(models.Types))
	for i, t := range models.Types {
		types[i] = t
	}
	err := validation.ValidateStruct(&f,
		validation.Field(&f.Type, validation.In(types...).Error("must be one of bookmark, prompt, snippet, document, note")),
		validation.Field(&f.Page, validation.Min(1), validation.Max(MaxPage)),
		validation.Field(&f.Limit, validation.Min(1)),
	)
	if err != nil {
		return Filter{}, apperr.FromValidation(err)
	}
	return f, nil
}

// Terms splits Search into lowercase, de-duplicated terms.
func (f Filter) Terms() []string {
	return models.NormalizeTags(strings.Fields(f.Search))
}

// Offset is the number of matching rows skipped before the page.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Pages returns ceil(total/limit).
func Pages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
