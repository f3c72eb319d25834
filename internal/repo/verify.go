package repo

import (
	"context"

	"github.com/pders01/snapsafe/internal/models"
	"github.com/pders01/snapsafe/internal/verify"
)

// Verify checks the snapshot named by ref, or every snapshot when ref is
// empty. Findings are collected; only lock, index or cancellation errors
// are returned as errors.
func (r *Repository) Verify(ctx context.Context, ref string) ([]*verify.Report, error) {
	l, err := r.lockShared(ctx, "verify")
	if err != nil {
		return nil, err
	}
	defer l.release()

	snaps, err := r.readIndex()
	if err != nil {
		return nil, err
	}
	targets := snaps
	if ref != "" {
		s, err := Resolve(snaps, ref)
		if err != nil {
			return nil, err
		}
		targets = []models.Snapshot{s}
	}

	reports := make([]*verify.Report, 0, len(targets))
	for _, s := range targets {
		m, err := r.readManifest(s.ID)
		if err != nil {
			reports = append(reports, &verify.Report{ID: s.ID, Findings: []verify.Finding{}, Err: err.Error()})
			continue
		}
		rep, err := verify.Snapshot(ctx, s.ID, r.ControlDir, r.dataDir(s.ID), m, r.opts.Workers)
		if err != nil {
			return reports, err
		}
		r.counter(MetricVerifiedFiles, int64(rep.Checked))
		r.counter(MetricVerifyFindings, int64(len(rep.Findings)))
		reports = append(reports, rep)
	}
	return reports, nil
}
