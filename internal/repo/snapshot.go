package repo

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	metrics "github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"github.com/pders01/snapsafe/internal/detect"
	"github.com/pders01/snapsafe/internal/linker"
	"github.com/pders01/snapsafe/internal/manifest"
	"github.com/pders01/snapsafe/internal/models"
	"github.com/pders01/snapsafe/internal/snaperr"
	"github.com/pders01/snapsafe/internal/verify"
)

// SnapshotOptions are the inputs of a snapshot request.
type SnapshotOptions struct {
	Message string
	Tags    []string
	// Version optionally sets the major, minor and patch components
	// ("v2.1.0" or "v2.1.0.7"); the sequence number is always assigned.
	Version string
}

// SnapshotResult describes a published snapshot.
type SnapshotResult struct {
	Snapshot    models.Snapshot `json:"snapshot"`
	New         int             `json:"new"`
	Modified    int             `json:"modified"`
	Unchanged   int             `json:"unchanged"`
	Deleted     int             `json:"deleted"`
	Linked      int             `json:"linked"`
	Deduped     int             `json:"deduped"`
	Copied      int             `json:"copied"`
	CrossDevice int             `json:"cross_device"`
	Skipped     []string        `json:"skipped,omitempty"`
	Verify      *verify.Report  `json:"verify,omitempty"`
}

// Snapshot captures the working tree as a new snapshot. Nothing becomes
// visible unless every file was placed and the manifest written.
func (r *Repository) Snapshot(ctx context.Context, opts SnapshotOptions) (*SnapshotResult, error) {
	l, err := r.lockExclusive(ctx, "snapshot")
	if err != nil {
		return nil, err
	}
	defer l.release()
	return r.snapshotLocked(ctx, opts)
}

func (r *Repository) snapshotLocked(ctx context.Context, opts SnapshotOptions) (*SnapshotResult, error) {
	start := time.Now()
	cfg, err := r.Config()
	if err != nil {
		return nil, err
	}
	snaps, err := r.readIndex()
	if err != nil {
		return nil, err
	}
	if _, err := r.clean(snaps); err != nil {
		log.Warnf("cleanup before snapshot failed: %v", err)
	}

	id, err := nextID(snaps, opts.Version)
	if err != nil {
		return nil, err
	}
	var prev *manifest.Manifest
	if len(snaps) > 0 {
		if prev, err = r.readManifest(snaps[len(snaps)-1].ID); err != nil {
			return nil, err
		}
	}

	ig, err := detect.LoadIgnore(r.Root, ControlDirName)
	if err != nil {
		return nil, snaperr.IO("snapshot", detect.IgnoreFile, err)
	}
	log.WithField("ignored", ig.Names()).Debug("scanning working tree")
	det, err := detect.Detect(ctx, r.Root, prev, detect.Options{
		Ignore:   ig,
		Workers:  r.opts.Workers,
		FoldCase: r.FoldCase(),
	})
	if err != nil {
		return nil, err
	}

	staging := filepath.Join(r.ControlDir, tmpDir, fmt.Sprintf("%s-%s", models.DirName(id), uuid.NewString()))
	published := false
	defer func() {
		if !published {
			if err := os.RemoveAll(staging); err != nil {
				log.WithField("path", staging).Warnf("failed to remove staging directory: %v", err)
			}
		}
	}()

	alloc := &linker.Allocator{
		ControlDir:  r.ControlDir,
		StoreDir:    filepath.Join(staging, dataDirName),
		StorePrefix: path.Join(snapshotsDir, models.DirName(id), dataDirName),
		Pool:        r.storePool(snaps),
		Registry:    r.opts.Registry,
	}
	res, err := alloc.Allocate(ctx, det.Changes)
	if err != nil {
		return nil, err
	}
	if err := manifest.Write(staging, res.Manifest); err != nil {
		return nil, snaperr.IO("snapshot", staging, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	final := r.snapshotDir(id)
	if err := os.Rename(staging, final); err != nil {
		return nil, snaperr.IO("snapshot", final, err)
	}
	published = true

	msg := opts.Message
	if msg == "" {
		msg = cfg.DefaultSnapshotMessage
	}
	snap := models.Snapshot{
		ID:        id,
		CreatedAt: r.now().UTC(),
		Message:   msg,
		FileCount: res.Manifest.FileCount,
		TotalSize: res.Manifest.TotalSize,
	}
	if err := r.tagSnapshot(id, opts.Tags); err != nil {
		os.RemoveAll(final)
		return nil, err
	}
	if err := r.writeIndex(append(snaps, snap)); err != nil {
		// unindexed directories are invisible; drop it rather than leave an orphan
		os.RemoveAll(final)
		return nil, err
	}

	out := &SnapshotResult{
		Snapshot:  snap,
		New:       det.Count(detect.New),
		Modified:  det.Count(detect.Modified),
		Unchanged: det.Count(detect.Unchanged),
		Deleted:   det.Count(detect.Deleted),
		Skipped:   det.Skipped,
	}
	for _, a := range res.Actions {
		switch a {
		case linker.ActionLink:
			out.Linked++
		case linker.ActionDedup:
			out.Deduped++
		case linker.ActionCopy:
			out.Copied++
		case linker.ActionCopyCrossDevice:
			out.CrossDevice++
		}
	}
	r.counter(MetricHashedFiles, int64(out.New+out.Modified))
	if r.opts.Registry != nil {
		metrics.GetOrRegisterTimer(MetricSnapshotTime, r.opts.Registry).UpdateSince(start)
	}
	log.WithFields(log.Fields{
		"snapshot": id.String(),
		"files":    snap.FileCount,
		"linked":   out.Linked,
		"copied":   out.Copied,
	}).Info("snapshot published")

	if cfg.VerifyAfterSnapshot {
		rep, err := verify.Snapshot(ctx, id, r.ControlDir, r.dataDir(id), res.Manifest, r.opts.Workers)
		if err != nil {
			return out, err
		}
		out.Verify = rep
		if !rep.OK() {
			return out, snaperr.Integrity("verify", id.String(), rep.Findings[0].Path,
				fmt.Errorf("%d finding(s) right after snapshot", len(rep.Findings)))
		}
	}
	return out, nil
}

// nextID assigns the sequence number max+1. An explicit version may move
// the leading components forward but never backwards.
func nextID(snaps []models.Snapshot, version string) (models.SnapshotID, error) {
	var latest models.SnapshotID
	next := models.FirstID
	if len(snaps) > 0 {
		latest = snaps[len(snaps)-1].ID
		var maxSeq uint64
		for _, s := range snaps {
			if s.ID.Seq > maxSeq {
				maxSeq = s.ID.Seq
			}
		}
		next = latest
		next.Seq = maxSeq
		next = next.Next()
	}
	if version == "" {
		return next, nil
	}

	v := strings.TrimPrefix(strings.TrimSpace(version), "v")
	if strings.Count(v, ".") == 2 {
		v += ".0"
	}
	want, err := models.ParseSnapshotID(v)
	if err != nil {
		return models.SnapshotID{}, snaperr.User("snapshot", "%v", err)
	}
	want.Seq = next.Seq
	if len(snaps) > 0 && want.Less(latest) {
		return models.SnapshotID{}, snaperr.User("snapshot", "version %s would sort before latest snapshot %s", want, latest)
	}
	return want, nil
}

// storePool maps every fingerprint in the repository to one existing store
// file, so identical content is linked instead of copied again. Newer
// snapshots win, since older ones are the first to be pruned.
func (r *Repository) storePool(snaps []models.Snapshot) map[string]string {
	pool := make(map[string]string)
	for _, s := range snaps {
		m, err := r.readManifest(s.ID)
		if err != nil {
			log.WithField("snapshot", s.ID.String()).Warnf("skipping unreadable manifest: %v", err)
			continue
		}
		for _, e := range m.Files() {
			if e.StorePath != "" && e.Fingerprint != "" {
				pool[e.Fingerprint] = r.storePath(e.StorePath)
			}
		}
	}
	return pool
}
