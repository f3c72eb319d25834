package repo

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/pders01/snapsafe/internal/models"
	"github.com/pders01/snapsafe/internal/retention"
	"github.com/pders01/snapsafe/internal/snaperr"
)

// PruneResult reports a retention run. With DryRun only Selected is set.
type PruneResult struct {
	Policy   string              `json:"policy"`
	DryRun   bool                `json:"dry_run"`
	Selected []models.Snapshot   `json:"selected"`
	Kept     []models.Snapshot   `json:"kept"`
	Deleted  []models.SnapshotID `json:"deleted"`
	Failed   map[string]string   `json:"failed,omitempty"`
}

// Prune deletes the snapshots selected by p. The index is rewritten first,
// so a selected snapshot disappears atomically even if removing its
// directory later fails. Removing a directory only drops that snapshot's
// hard links; content shared with survivors stays intact.
func (r *Repository) Prune(ctx context.Context, p retention.Policy, dryRun bool) (*PruneResult, error) {
	if err := p.Validate(); err != nil {
		return nil, snaperr.User("prune", "%v", err)
	}

	l, err := r.lockExclusive(ctx, "prune")
	if err != nil {
		return nil, err
	}
	defer l.release()

	snaps, err := r.readIndex()
	if err != nil {
		return nil, err
	}

	selected := make(map[models.SnapshotID]bool)
	for _, id := range retention.Select(snaps, p, r.now()) {
		selected[id] = true
	}

	res := &PruneResult{
		Policy:   p.String(),
		DryRun:   dryRun,
		Selected: []models.Snapshot{},
		Kept:     []models.Snapshot{},
		Deleted:  []models.SnapshotID{},
	}
	for _, s := range snaps {
		if selected[s.ID] {
			res.Selected = append(res.Selected, s)
		} else {
			res.Kept = append(res.Kept, s)
		}
	}
	if dryRun || len(res.Selected) == 0 {
		return res, nil
	}

	if err := r.writeIndex(res.Kept); err != nil {
		return nil, err
	}

	for _, s := range res.Selected {
		if err := ctx.Err(); err != nil {
			// already unindexed; clean reclaims the rest
			return res, err
		}
		dir := r.snapshotDir(s.ID)
		if err := os.RemoveAll(dir); err != nil {
			if res.Failed == nil {
				res.Failed = make(map[string]string)
			}
			res.Failed[s.ID.String()] = err.Error()
			log.WithField("snapshot", s.ID.String()).Errorf("failed to delete snapshot directory: %v", err)
			continue
		}
		res.Deleted = append(res.Deleted, s.ID)
		log.WithField("snapshot", s.ID.String()).Info("pruned snapshot")
	}
	r.counter(MetricPrunedSnaps, int64(len(res.Deleted)))

	all, err := r.readMetadata()
	if err == nil {
		for _, id := range res.Deleted {
			delete(all, id.String())
		}
		err = r.writeMetadata(all)
	}
	if err != nil {
		log.Warnf("failed to drop metadata of pruned snapshots: %v", err)
	}

	if len(res.Failed) > 0 {
		return res, snaperr.IO("prune", "", fmt.Errorf("%d of %d snapshot(s) could not be deleted", len(res.Failed), len(res.Selected)))
	}
	return res, nil
}
