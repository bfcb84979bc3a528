// Package syncer brings one record's local state in line with the remote: a
// metadata document plus the highest-resolution copy of each discovered image
// asset. Work that is already done is detected and skipped, so re-running
// over a finished collection is cheap and writes nothing.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"locharvest/pkg/loc"
	"locharvest/pkg/logger"
	"locharvest/pkg/stats"
	"locharvest/pkg/storage"
)

// Options control which halves of the synchronization run and how image URL
// discovery behaves.
type Options struct {
	DownloadImages bool
	SaveMetadata   bool
	SkipExisting   bool
	ImageKeys      map[string]bool
}

// DefaultOptions enables everything with skip-existing on.
func DefaultOptions() Options {
	return Options{
		DownloadImages: true,
		SaveMetadata:   true,
		SkipExisting:   true,
	}
}

// RecordOutcome summarizes what one record's synchronization actually did.
type RecordOutcome struct {
	Identifier       string
	MetadataWritten  bool
	AssetsDownloaded int
	AssetsSkipped    int
	AssetsFailed     int
}

// Syncer synchronizes individual records. Failures on one asset never abort
// the record, and failures on one record never abort the run; the syncer
// reports what happened and the caller moves on.
type Syncer struct {
	client  *loc.Client
	store   *storage.Store
	engine  *Engine
	tracker *stats.Tracker
	opts    Options
	logger  logger.Logger
}

// New creates a syncer.
func New(client *loc.Client, store *storage.Store, engine *Engine, tracker *stats.Tracker, opts Options, log logger.Logger) *Syncer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Syncer{
		client:  client,
		store:   store,
		engine:  engine,
		tracker: tracker,
		opts:    opts,
		logger:  log,
	}
}

// SyncRecord processes one record. ordinal is the record's 1-based position
// on its page, used only for the fallback identifier of records with no
// usable naming field.
func (s *Syncer) SyncRecord(ctx context.Context, rec loc.Record, ordinal int) (*RecordOutcome, error) {
	identifier := recordIdentifier(rec, ordinal)
	outcome := &RecordOutcome{Identifier: identifier}

	dir, err := s.store.RecordDir(identifier)
	if err != nil {
		return outcome, fmt.Errorf("failed to prepare record directory: %w", err)
	}

	log := s.logger.WithField("record", identifier)

	// Image URLs are discovered even when downloads are off: the metadata
	// filename is derived from them.
	imageURLs := loc.FindImageURLs(rec, s.opts.ImageKeys)

	if s.opts.SaveMetadata {
		written, err := s.saveMetadata(rec, dir, imageURLs, log)
		if err != nil {
			return outcome, err
		}
		outcome.MetadataWritten = written
	}

	if s.opts.DownloadImages {
		s.syncAssets(ctx, imageURLs, dir, outcome, log)
	}

	if outcome.AssetsDownloaded > 0 {
		s.tracker.CompleteSet()
		s.logger.Info(s.tracker.ProgressLine())
	}

	return outcome, nil
}

// saveMetadata writes the record's JSON document, named after the image stem
// when one exists. Reports whether a write actually happened.
func (s *Syncer) saveMetadata(rec loc.Record, dir string, imageURLs []string, log logger.Logger) (bool, error) {
	name := "item.json"
	if stem, ok := loc.MetadataStem(imageURLs); ok {
		name = storage.SanitizeName(stem) + ".json"
	}
	docPath := filepath.Join(dir, name)

	doc, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to encode record metadata: %w", err)
	}

	result, err := s.store.WriteFileIfChanged(docPath, doc, s.opts.SkipExisting)
	if err != nil {
		return false, fmt.Errorf("failed to write record metadata: %w", err)
	}

	switch result {
	case storage.WriteSkipped:
		log.DebugWithFields("metadata unchanged, skipping", map[string]interface{}{"file": name})
		return false, nil
	case storage.WriteUpdated:
		log.InfoWithFields("metadata updated", map[string]interface{}{"file": name})
	default:
		log.InfoWithFields("metadata saved", map[string]interface{}{"file": name})
	}
	return true, nil
}

// syncAssets fetches each discovered image at its best available resolution.
// A failed asset is logged and counted; the rest of the record proceeds.
func (s *Syncer) syncAssets(ctx context.Context, imageURLs []string, dir string, outcome *RecordOutcome, log logger.Logger) {
	for _, rawURL := range imageURLs {
		fetchURL, info := s.bestTierURL(ctx, rawURL, log)

		localPath := filepath.Join(dir, assetFilename(fetchURL, info))

		decision, err := s.engine.Decide(ctx, fetchURL, localPath, info)
		if err != nil {
			log.WarnWithFields("failed to probe asset, skipping", map[string]interface{}{
				"url":   fetchURL,
				"error": err.Error(),
			})
			outcome.AssetsFailed++
			continue
		}

		if decision.Action == ActionSkip {
			log.DebugWithFields("asset already current", map[string]interface{}{
				"url":    fetchURL,
				"reason": decision.Reason,
			})
			outcome.AssetsSkipped++
			continue
		}

		n, err := s.downloadAsset(ctx, fetchURL, localPath)
		if err != nil {
			log.WarnWithFields("failed to download asset", map[string]interface{}{
				"url":   fetchURL,
				"error": err.Error(),
			})
			outcome.AssetsFailed++
			continue
		}

		s.tracker.AddBytes(n)
		outcome.AssetsDownloaded++
		log.InfoWithFields("asset downloaded", map[string]interface{}{
			"url":   fetchURL,
			"bytes": n,
		})
	}
}

// bestTierURL upgrades a service-tier URL to its master-tier counterpart when
// the master actually exists, probing to find out. The returned AssetInfo is
// the probe of whichever URL was chosen, or nil if no probe succeeded.
func (s *Syncer) bestTierURL(ctx context.Context, rawURL string, log logger.Logger) (string, *loc.AssetInfo) {
	master, ok := loc.MasterURL(rawURL)
	if ok {
		info, err := s.client.ProbeAsset(ctx, master)
		if err == nil {
			return master, info
		}
		log.DebugWithFields("master tier unavailable, using service tier", map[string]interface{}{
			"url":   master,
			"error": err.Error(),
		})
	}

	info, err := s.client.ProbeAsset(ctx, rawURL)
	if err != nil {
		// The decision engine will probe again or fall through to a fetch.
		return rawURL, nil
	}
	return rawURL, info
}

// downloadAsset streams the asset to disk atomically and returns the bytes
// written.
func (s *Syncer) downloadAsset(ctx context.Context, url, localPath string) (int64, error) {
	body, err := s.client.Download(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	return s.store.SaveFile(localPath, body)
}

// recordIdentifier picks the directory name for a record: id, then url, then
// title, sanitized; records with none of those get a positional name.
func recordIdentifier(rec loc.Record, ordinal int) string {
	for _, key := range []string{"id", "url", "title"} {
		if v := rec.String(key); v != "" {
			if name := storage.SanitizeName(v); name != "" {
				return name
			}
		}
	}
	return fmt.Sprintf("item_%d", ordinal)
}

// contentTypeExtensions maps the image content types the servers actually
// send to a filename extension, for URLs whose path carries none.
var contentTypeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/tiff": ".tif",
}

// assetFilename derives the local filename from the URL path basename,
// appending an extension from the probed content type when the path has none.
func assetFilename(rawURL string, info *loc.AssetInfo) string {
	base := "asset"
	if u, err := url.Parse(rawURL); err == nil {
		if b := path.Base(u.Path); b != "" && b != "." && b != "/" {
			base = b
		}
	}

	ext := path.Ext(base)
	name := storage.SanitizeName(strings.TrimSuffix(base, ext))
	if name == "" {
		name = "asset"
	}

	if ext == "" && info != nil && info.ContentType != "" {
		mediaType, _, err := mime.ParseMediaType(info.ContentType)
		if err == nil {
			ext = contentTypeExtensions[mediaType]
		}
	}

	return name + ext
}
