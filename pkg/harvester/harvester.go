// Package harvester runs the page walk: fetch a page, synchronize its
// records in order, move to the next, until the collection ends or a page
// becomes unfetchable. It owns the polite pacing between page requests and
// the one-shot self-verification launch on terminal failure.
package harvester

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"locharvest/pkg/config"
	errs "locharvest/pkg/errors"
	"locharvest/pkg/loc"
	"locharvest/pkg/logger"
	"locharvest/pkg/selfcheck"
	"locharvest/pkg/stats"
	"locharvest/pkg/storage"
	"locharvest/pkg/syncer"
)

// Status is the terminal state of a run.
type Status int

const (
	// CompletedNaturally means the walk reached the end of the collection.
	CompletedNaturally Status = iota
	// StoppedOnFetchFailure means a page stayed unfetchable through all
	// retries and the walk stopped there.
	StoppedOnFetchFailure
)

func (s Status) String() string {
	switch s {
	case CompletedNaturally:
		return "completed naturally"
	case StoppedOnFetchFailure:
		return "stopped on fetch failure"
	default:
		return "unknown"
	}
}

// Result summarizes one run.
type Result struct {
	Status           Status
	FailedPage       int
	PagesVisited     int
	RecordsProcessed int
}

// PageSource fetches numbered collection pages.
type PageSource interface {
	Fetch(ctx context.Context, page int) (*loc.Page, error)
}

// RecordSyncer brings one record's local state up to date.
type RecordSyncer interface {
	SyncRecord(ctx context.Context, rec loc.Record, ordinal int) (*syncer.RecordOutcome, error)
}

// Harvester walks a collection page by page. Records within a page are
// processed strictly in order, one at a time.
type Harvester struct {
	cfg      *config.Config
	source   PageSource
	syncer   RecordSyncer
	launcher selfcheck.Launcher
	limiter  *rate.Limiter
	tracker  *stats.Tracker
	logger   logger.Logger

	selfCheckFired bool
}

// New wires up a harvester from configuration, creating the HTTP client,
// store, and syncer it needs. The output directory is created eagerly so an
// unwritable destination fails before the first request.
func New(cfg *config.Config, log logger.Logger) (*Harvester, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	store, err := storage.NewStore(afero.NewOsFs(), cfg.Harvest.OutputDir)
	if err != nil {
		return nil, err
	}

	client := loc.NewClient(cfg.Harvest.RequestTimeout, log)
	tracker := stats.NewTracker()
	engine := syncer.NewEngine(client, store, !cfg.Sync.SkipExisting, log)
	opts := syncer.Options{
		DownloadImages: cfg.Sync.DownloadImages,
		SaveMetadata:   cfg.Sync.SaveMetadata,
		SkipExisting:   cfg.Sync.SkipExisting,
	}

	h := NewWithDeps(cfg,
		loc.NewPageFetcher(client, cfg.Harvest.BaseURL, cfg.Harvest.PerPage, cfg.Harvest.MaxRetries, log),
		syncer.New(client, store, engine, tracker, opts, log),
		selfcheck.New(cfg.SelfCheckRun, log),
		log)
	h.tracker = tracker
	return h, nil
}

// NewWithDeps assembles a harvester from pre-built collaborators.
func NewWithDeps(cfg *config.Config, source PageSource, rs RecordSyncer, launcher selfcheck.Launcher, log logger.Logger) *Harvester {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Harvester{
		cfg:      cfg,
		source:   source,
		syncer:   rs,
		launcher: launcher,
		limiter:  rate.NewLimiter(rate.Every(cfg.Harvest.PoliteDelay), 1),
		logger:   log.WithField("run_id", uuid.NewString()),
	}
}

// Tracker returns the session tracker, or nil when the harvester was built
// with NewWithDeps.
func (h *Harvester) Tracker() *stats.Tracker {
	return h.tracker
}

// Run walks the collection from the configured start page. It returns a
// non-nil Result in every case; the error is non-nil only when the walk
// stopped on an unfetchable page or a cancelled context.
func (h *Harvester) Run(ctx context.Context) (*Result, error) {
	result := &Result{}

	h.logger.InfoWithFields("starting harvest", map[string]interface{}{
		"collection": h.cfg.Harvest.Collection,
		"base_url":   h.cfg.Harvest.BaseURL,
		"output_dir": h.cfg.Harvest.OutputDir,
		"start_page": h.cfg.Harvest.StartPage,
	})

	for page := h.cfg.Harvest.StartPage; ; page++ {
		// Pace every page request, including the first.
		if err := h.limiter.Wait(ctx); err != nil {
			result.Status = StoppedOnFetchFailure
			result.FailedPage = page
			return result, err
		}

		p, err := h.source.Fetch(ctx, page)
		if err != nil {
			return h.stopOnFailure(result, page, err), err
		}
		result.PagesVisited++

		if !p.HasMore() {
			h.logger.InfoWithFields("collection exhausted", map[string]interface{}{
				"page":    page,
				"pages":   result.PagesVisited,
				"records": result.RecordsProcessed,
			})
			result.Status = CompletedNaturally
			return result, nil
		}

		for i, rec := range p.Results {
			if err := ctx.Err(); err != nil {
				result.Status = StoppedOnFetchFailure
				result.FailedPage = page
				return result, err
			}

			outcome, err := h.syncer.SyncRecord(ctx, rec, i+1)
			if err != nil {
				// One broken record must not sink the page.
				h.logger.WarnWithFields("failed to sync record", map[string]interface{}{
					"page":  page,
					"index": i + 1,
					"error": err.Error(),
				})
				continue
			}
			result.RecordsProcessed++
			h.logger.DebugWithFields("record synchronized", map[string]interface{}{
				"record":     outcome.Identifier,
				"downloaded": outcome.AssetsDownloaded,
				"skipped":    outcome.AssetsSkipped,
			})
		}

		if h.cfg.Harvest.StopOnShortPage && len(p.Results) < h.cfg.Harvest.PerPage {
			h.logger.InfoWithFields("short page, treating collection as exhausted", map[string]interface{}{
				"page":    page,
				"records": len(p.Results),
			})
			result.Status = CompletedNaturally
			return result, nil
		}
	}
}

// stopOnFailure records the terminal page failure and, when at least one
// page had already been harvested, launches the single self-verification
// re-invocation. A failure on the very first page means the collection was
// never reachable at all, which a re-run would not fix.
func (h *Harvester) stopOnFailure(result *Result, page int, err error) *Result {
	result.Status = StoppedOnFetchFailure
	result.FailedPage = page

	h.logger.ErrorWithFields("page fetch failed terminally", map[string]interface{}{
		"page":  page,
		"error": err.Error(),
	})

	var failure *errs.FetchFailure
	if errors.As(err, &failure) && result.PagesVisited > 0 && !h.selfCheckFired {
		h.selfCheckFired = true
		if launchErr := h.launcher.Launch(); launchErr != nil {
			h.logger.WarnWithFields("failed to launch self-check", map[string]interface{}{
				"error": launchErr.Error(),
			})
		}
	}

	return result
}

// Summary renders a one-line human summary of the result.
func (r *Result) Summary() string {
	if r.Status == StoppedOnFetchFailure {
		return fmt.Sprintf("%s at page %d after %d page(s), %d record(s)",
			r.Status, r.FailedPage, r.PagesVisited, r.RecordsProcessed)
	}
	return fmt.Sprintf("%s after %d page(s), %d record(s)",
		r.Status, r.PagesVisited, r.RecordsProcessed)
}
