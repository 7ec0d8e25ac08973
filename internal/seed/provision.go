package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/conneroisu/trattoria/internal/content"
	siteerrors "github.com/conneroisu/trattoria/internal/errors"
	"github.com/conneroisu/trattoria/internal/logging"
	"github.com/conneroisu/trattoria/internal/pubsub"
	"github.com/conneroisu/trattoria/internal/watcher"
)

// Result reports what one provisioning run did.
type Result struct {
	Created  []string `json:"created"`
	Existing []string `json:"existing"`
	Sections int      `json:"sections"`
}

// Provisioner applies seed files to a repository.
type Provisioner struct {
	repo      content.Repository
	publisher pubsub.Publisher
	logger    logging.Logger
}

// NewProvisioner creates a provisioner. A nil publisher disables events.
func NewProvisioner(repo content.Repository, publisher pubsub.Publisher, logger logging.Logger) *Provisioner {
	if publisher == nil {
		publisher = pubsub.Nop{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Provisioner{repo: repo, publisher: publisher, logger: logger.WithComponent("seed")}
}

// Apply creates every missing page of f along with its sections. Existing
// pages are not touched. A repository failure stops the run; pages created
// before it stay created and are reported.
func (p *Provisioner) Apply(ctx context.Context, f *File) (*Result, error) {
	res := &Result{Created: []string{}, Existing: []string{}}
	defer func() {
		if len(res.Created) > 0 {
			p.publisher.Publish(pubsub.TypePages, pubsub.PagesChange{Slugs: res.Created, Action: "create"})
		}
	}()

	for _, spec := range f.Pages {
		_, err := p.repo.GetPage(ctx, spec.Slug)
		switch {
		case err == nil:
			res.Existing = append(res.Existing, spec.Slug)
			continue
		case !siteerrors.IsNotFound(err):
			return res, fmt.Errorf("look up page %q: %w", spec.Slug, err)
		}

		page, err := p.repo.CreatePage(ctx, spec.PageInput())
		if err != nil {
			if siteerrors.IsConflict(err) {
				res.Existing = append(res.Existing, spec.Slug)
				continue
			}
			return res, fmt.Errorf("create page %q: %w", spec.Slug, err)
		}
		res.Created = append(res.Created, spec.Slug)

		for i, s := range spec.Sections {
			in, err := s.SectionInput(page.ID, i)
			if err != nil {
				return res, siteerrors.NewValidationError("SEED_CONTENT", err.Error()).WithContext("page", spec.Slug)
			}
			if _, err := p.repo.CreateSection(ctx, in); err != nil {
				return res, fmt.Errorf("create section %d of page %q: %w", i+1, spec.Slug, err)
			}
			res.Sections++
		}

		p.logger.Info(ctx, "Provisioned page", "slug", spec.Slug, "sections", len(spec.Sections))
	}

	return res, nil
}

// ApplyFile loads path and applies it.
func (p *Provisioner) ApplyFile(ctx context.Context, path string) (*Result, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	return p.Apply(ctx, f)
}

// Watch re-applies path whenever it changes. The returned watcher must be
// stopped by the caller.
func (p *Provisioner) Watch(ctx context.Context, path string, debounce time.Duration) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(debounce, p.logger)
	if err != nil {
		return nil, err
	}
	if err := fw.WatchFile(path); err != nil {
		_ = fw.Stop()
		return nil, fmt.Errorf("watch seed file: %w", err)
	}

	fw.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		for _, ev := range events {
			if ev.Type == watcher.EventTypeDeleted {
				p.logger.Warn(ctx, nil, "Seed file removed; keeping provisioned pages", "path", path)
				return nil
			}
		}
		res, err := p.ApplyFile(ctx, path)
		if err != nil {
			return err
		}
		p.logger.Info(ctx, "Seed file re-applied", "path", path, "created", len(res.Created), "sections", res.Sections)
		return nil
	})

	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return nil, err
	}
	p.logger.Info(ctx, "Watching seed file", "path", path, "debounce", debounce.String())
	return fw, nil
}
