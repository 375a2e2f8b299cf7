// Package inbox imports Markdown files dropped into a directory as resources.
//
// Each *.md file in the inbox is parsed, created as a resource for the
// configured user and then removed. Files the resource store rejects are
// moved to the rejected/ subdirectory so they are not retried forever.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/stash/internal/apperr"
	"github.com/starford/stash/internal/models"
	"github.com/starford/stash/internal/parser"
	"github.com/starford/stash/internal/resources"
)

// RejectedDir is the subdirectory that receives files that failed to import.
const RejectedDir = "rejected"

// Creator stores a new resource.
type Creator interface {
	Create(ctx context.Context, userID string, in resources.CreateInput) (*models.Resource, error)
}

// Option configures an Importer.
type Option func(*Importer)

// WithDebounce sets how long the watcher waits for activity to settle before
// sweeping.
func WithDebounce(d time.Duration) Option {
	return func(im *Importer) { im.debounce = d }
}

// WithOnImport registers a callback run after each successful import.
func WithOnImport(fn func(*models.Resource)) Option {
	return func(im *Importer) { im.onImport = fn }
}

// Importer turns inbox files into resources.
type Importer struct {
	dir      string
	userID   string
	creator  Creator
	logger   *slog.Logger
	debounce time.Duration
	onImport func(*models.Resource)
	now      func() time.Time
}

// SweepResult counts the outcome of one sweep.
type SweepResult struct {
	Imported int
	Rejected int
	Failed   int
}

// New creates an Importer for dir, creating the directory and its rejected/
// subdirectory if needed.
func New(dir, userID string, c Creator, logger *slog.Logger, opts ...Option) (*Importer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("inbox: resolve dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, RejectedDir), 0o755); err != nil {
		return nil, fmt.Errorf("inbox: create dir: %w", err)
	}
	im := &Importer{
		dir:      abs,
		userID:   userID,
		creator:  c,
		logger:   logger,
		debounce: 300 * time.Millisecond,
		now:      time.Now,
	}
	for _, o := range opts {
		o(im)
	}
	return im, nil
}

// Sweep imports every Markdown file currently in the inbox. Files that fail
// for reasons other than validation stay in place for the next sweep.
func (im *Importer) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	entries, err := os.ReadDir(im.dir)
	if err != nil {
		return res, fmt.Errorf("inbox: list: %w", err)
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".md") {
			continue
		}

		err := im.importFile(ctx, name)
		switch {
		case err == nil:
			res.Imported++
		case isRejection(err):
			res.Rejected++
			im.logger.Warn("inbox: rejected",
				slog.String("file", name),
				slog.String("error", err.Error()))
			if mvErr := im.reject(name); mvErr != nil {
				im.logger.Error("inbox: move to rejected failed",
					slog.String("file", name),
					slog.String("error", mvErr.Error()))
			}
		default:
			res.Failed++
			im.logger.Error("inbox: import failed",
				slog.String("file", name),
				slog.String("error", err.Error()))
		}
	}
	return res, nil
}

func (im *Importer) importFile(ctx context.Context, name string) error {
	path := filepath.Join(im.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	doc, err := parser.Parse(data)
	if err != nil {
		return apperr.Invalid("file", err.Error())
	}

	r, err := im.creator.Create(ctx, im.userID, ToInput(doc, name))
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		// The resource exists; leaving the file would import it twice.
		im.logger.Error("inbox: remove imported file failed",
			slog.String("file", name),
			slog.String("error", err.Error()))
	}

	im.logger.Info("inbox: imported",
		slog.String("file", name),
		slog.String("id", r.ID),
		slog.String("type", string(r.Type())))
	if im.onImport != nil {
		im.onImport(r)
	}
	return nil
}

// isRejection reports whether err is the store refusing the content, as
// opposed to a transient failure.
func isRejection(err error) bool {
	return errors.Is(err, apperr.ErrValidation) || errors.Is(err, apperr.ErrNotFound)
}

// reject moves name into rejected/, suffixing a timestamp if a file of the
// same name is already there.
func (im *Importer) reject(name string) error {
	dst := filepath.Join(im.dir, RejectedDir, name)
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		dst = filepath.Join(im.dir, RejectedDir, stem+"-"+im.now().UTC().Format("20060102T150405.000")+ext)
	}
	return os.Rename(filepath.Join(im.dir, name), dst)
}

// ToInput maps a parsed file onto a resource create request. The type comes
// from frontmatter; without one, files with a url become bookmarks and all
// others notes. The title falls back to the file name.
func ToInput(doc *parser.Result, fileName string) resources.CreateInput {
	m := doc.Meta
	typ := models.Type(strings.ToLower(strings.TrimSpace(m.Type)))
	if typ == "" {
		typ = models.TypeNote
		if strings.TrimSpace(m.URL) != "" {
			typ = models.TypeBookmark
		}
	}

	title := doc.Title
	if title == "" {
		title = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}
	body := strings.TrimSpace(doc.Body)

	in := resources.CreateInput{
		Type:        typ,
		Title:       title,
		Tags:        doc.Tags,
		Favorite:    m.Favorite,
		Annotations: m.Annotations,
	}
	in.URL = m.URL
	in.Platform = m.Platform
	in.Category = m.Category
	in.CodeLanguage = m.Language
	in.Description = m.Description

	switch typ {
	case models.TypeBookmark, models.TypeDocument:
		if in.Description == "" {
			in.Description = body
		}
	case models.TypeSnippet:
		in.Content = body
		if lang, code, ok := doc.CodeBlock(); ok {
			in.Content = code
			if in.CodeLanguage == "" {
				in.CodeLanguage = lang
			}
		}
	default:
		in.Content = body
	}
	return in
}

// Run sweeps once, then watches the inbox and sweeps again whenever files
// settle, until ctx is cancelled.
func (im *Importer) Run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(im.dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", im.dir, err)
	}
	im.logger.Info("inbox: started", slog.String("dir", im.dir), slog.String("user", im.userID))

	im.sweepAndLog(ctx)

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(im.debounce)
			fire = timer.C
			return
		}
		timer.Reset(im.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			im.logger.Info("inbox: stopped")
			return nil

		case <-fire:
			im.sweepAndLog(ctx)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Dir(ev.Name) != im.dir {
				continue
			}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func (im *Importer) sweepAndLog(ctx context.Context) {
	res, err := im.Sweep(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			im.logger.Error("inbox: sweep failed", slog.String("error", err.Error()))
		}
		return
	}
	if res.Imported+res.Rejected+res.Failed > 0 {
		im.logger.Info("inbox: sweep done",
			slog.Int("imported", res.Imported),
			slog.Int("rejected", res.Rejected),
			slog.Int("failed", res.Failed))
	}
}
