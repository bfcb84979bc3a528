package syncer

import (
	"context"
	"strings"

	"locharvest/pkg/loc"
	"locharvest/pkg/logger"
	"locharvest/pkg/storage"
)

// Action says what to do with one remote asset.
type Action int

const (
	// ActionFetch means the asset must be downloaded.
	ActionFetch Action = iota
	// ActionSkip means the local copy is already current.
	ActionSkip
)

// Decision is the outcome of comparing a remote asset against its local copy.
type Decision struct {
	Action Action
	Reason string
}

// Engine decides, per asset, whether the local copy is current. Comparison is
// deliberately conservative: when the remote evidence is inconclusive the
// asset is fetched, because an unnecessary download is cheap and a stale file
// is not.
type Engine struct {
	client    *loc.Client
	store     *storage.Store
	overwrite bool
	logger    logger.Logger
}

// NewEngine creates a decision engine. overwrite forces a fetch for every
// asset regardless of local state.
func NewEngine(client *loc.Client, store *storage.Store, overwrite bool, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Engine{
		client:    client,
		store:     store,
		overwrite: overwrite,
		logger:    log,
	}
}

// Decide compares the remote asset at url against localPath. info may carry a
// probe the caller already performed; when nil the engine probes itself. A
// probe error is returned as-is so the caller can count the asset as failed.
func (e *Engine) Decide(ctx context.Context, url, localPath string, info *loc.AssetInfo) (Decision, error) {
	if e.overwrite {
		return Decision{Action: ActionFetch, Reason: "overwrite requested"}, nil
	}

	local, err := e.store.Stat(localPath)
	if err != nil {
		return Decision{Action: ActionFetch, Reason: "no local copy"}, nil
	}

	if info == nil {
		info, err = e.client.ProbeAsset(ctx, url)
		if err != nil {
			return Decision{}, err
		}
	}

	if info.Size >= 0 {
		if info.Size != local.Size() {
			return Decision{Action: ActionFetch, Reason: "size mismatch"}, nil
		}
		// Same size. Unless the server reports a newer modification time,
		// the local copy is current.
		if !info.LastModified.IsZero() && info.LastModified.After(local.ModTime()) {
			return Decision{Action: ActionFetch, Reason: "remote is newer"}, nil
		}
		return Decision{Action: ActionSkip, Reason: "size and mtime match"}, nil
	}

	// No size to compare. Some image servers expose a bare content digest as
	// the ETag; if it matches the local file we can still prove currency.
	if match, ok := e.etagMatches(info.ETag, localPath); ok {
		if match {
			return Decision{Action: ActionSkip, Reason: "content hash match"}, nil
		}
		return Decision{Action: ActionFetch, Reason: "content hash mismatch"}, nil
	}

	return Decision{Action: ActionFetch, Reason: "remote metadata inconclusive"}, nil
}

// etagMatches tries to interpret etag as a bare hex digest (md5 or sha256 by
// length) and compare it to the local file. ok is false when the ETag is not
// comparable.
func (e *Engine) etagMatches(etag, localPath string) (match, ok bool) {
	if !isHexDigest(etag) {
		return false, false
	}

	var localSum string
	var err error
	switch len(etag) {
	case 32:
		localSum, err = e.store.FileMD5(localPath)
	case 64:
		localSum, err = e.store.FileSHA256(localPath)
	default:
		return false, false
	}
	if err != nil {
		e.logger.WarnWithFields("failed to hash local file for comparison", map[string]interface{}{
			"path":  localPath,
			"error": err.Error(),
		})
		return false, false
	}

	return strings.EqualFold(localSum, etag), true
}

func isHexDigest(s string) bool {
	if len(s) != 32 && len(s) != 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
