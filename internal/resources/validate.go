package resources

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/stash/internal/apperr"
	"github.com/starford/stash/internal/models"
)

const (
	maxTags          = 50
	maxTagLength     = 50
	maxURLLength     = 2048
	maxContentLength = 100_000
	maxShortField    = 100
	maxDescription   = 1000
	maxFileName      = 255
)

// fields is the flat view of a resource that validation errors are keyed on.
type fields struct {
	Title       string   `json:"title"`
	Tags        []string `json:"tags"`
	Annotations string   `json:"annotations"`
	models.PayloadFields
}

// validate checks the shared limits and the fields required by the
// resource's type, reporting every offending field at once.
func validate(r *models.Resource) error {
	typ := r.Type()
	v := fields{
		Title:         r.Title,
		Tags:          models.NormalizeTags(r.Tags),
		Annotations:   r.Annotations,
		PayloadFields: models.Flatten(r.Payload),
	}
	needsContent := typ == models.TypePrompt || typ == models.TypeSnippet || typ == models.TypeNote

	err := validation.ValidateStruct(&v,
		validation.Field(&v.Title, validation.Required, validation.RuneLength(1, models.MaxTitleLength)),
		validation.Field(&v.Tags,
			validation.Length(0, maxTags),
			validation.Each(validation.RuneLength(1, maxTagLength)),
		),
		validation.Field(&v.Annotations, validation.RuneLength(0, models.MaxAnnotationsLength)),
		validation.Field(&v.URL,
			validation.When(typ == models.TypeBookmark, validation.Required),
			validation.RuneLength(0, maxURLLength),
		),
		validation.Field(&v.Content,
			validation.When(needsContent, validation.Required),
			validation.RuneLength(0, maxContentLength),
		),
		validation.Field(&v.Description, validation.RuneLength(0, maxDescription)),
		validation.Field(&v.Platform, validation.RuneLength(0, maxShortField)),
		validation.Field(&v.Category, validation.RuneLength(0, maxShortField)),
		validation.Field(&v.CodeLanguage, validation.RuneLength(0, maxShortField)),
		validation.Field(&v.FileURL, validation.RuneLength(0, maxURLLength)),
		validation.Field(&v.FileName, validation.RuneLength(0, maxFileName)),
		validation.Field(&v.FileType, validation.RuneLength(0, maxShortField)),
		validation.Field(&v.FileSize, validation.Min(0)),
	)
	if err != nil {
		return apperr.FromValidation(err)
	}
	return nil
}
