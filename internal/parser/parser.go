// Package parser extracts frontmatter, a title and tags from Markdown files
// dropped into the inbox.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	tagRe   = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	fenceRe = regexp.MustCompile("(?s)^```([A-Za-z0-9_+#.-]*)[ \t]*\r?\n(.*?)\r?\n```\\s*$")
)

// TagList accepts tags written either as a YAML sequence or as a single
// comma-separated string.
type TagList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *TagList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		var out []string
		for _, s := range strings.Split(n.Value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*t = out
		return nil
	default:
		var out []string
		if err := n.Decode(&out); err != nil {
			return err
		}
		*t = out
		return nil
	}
}

// Meta is the recognised frontmatter. Unknown keys are ignored.
type Meta struct {
	Title       string  `yaml:"title"`
	Type        string  `yaml:"type"`
	Tags        TagList `yaml:"tags"`
	URL         string  `yaml:"url"`
	Language    string  `yaml:"language"`
	Platform    string  `yaml:"platform"`
	Category    string  `yaml:"category"`
	Description string  `yaml:"description"`
	Annotations string  `yaml:"annotations"`
	Favorite    bool    `yaml:"favorite"`
}

// Result holds the output of parsing a Markdown file.
type Result struct {
	Meta Meta
	// HasFrontmatter is false when the file had no frontmatter or it was not
	// valid YAML; in both cases Body is the whole file.
	HasFrontmatter bool
	Body           string
	Tags           []string
	Title          string
}

// Parse extracts frontmatter, body, tags and title from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	meta, ok, body := splitFrontmatter(data)
	return &Result{
		Meta:           meta,
		HasFrontmatter: ok,
		Body:           body,
		Tags:           extractTags(body, meta.Tags),
		Title:          deriveTitle(meta, body),
	}, nil
}

// CodeBlock returns the language and contents of the body when the body is a
// single fenced code block.
func (r *Result) CodeBlock() (lang, code string, ok bool) {
	return codeBlock(r.Body)
}

func codeBlock(body string) (lang, code string, ok bool) {
	m := fenceRe.FindStringSubmatch(strings.TrimSpace(body))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (Meta, bool, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return Meta{}, false, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return Meta{}, false, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var meta Meta
	if err := yaml.Unmarshal(yamlBlock, &meta); err != nil {
		// Invalid YAML: the whole file is body.
		return Meta{}, false, string(data)
	}
	return meta, true, body
}

// extractTags collects frontmatter tags followed by inline #tags from body,
// without duplicates.
func extractTags(body string, fm []string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, t := range fm {
		add(t)
	}
	if _, _, isCode := codeBlock(body); isCode {
		// '#' inside code is not a tag.
		return out
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter title if present, otherwise the first
// H1 heading, otherwise "".
func deriveTitle(meta Meta, body string) string {
	if s := strings.TrimSpace(meta.Title); s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
