package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/pders01/snapsafe/internal/snaperr"
)

// repoLock is a held advisory lock on the control directory's lock file.
type repoLock struct {
	f  *os.File
	op string
}

// lockExclusive is held by every operation that writes the index, the
// store or the working tree.
func (r *Repository) lockExclusive(ctx context.Context, op string) (*repoLock, error) {
	return r.acquire(ctx, op, unix.LOCK_EX, r.opts.LockTimeout, true)
}

// lockShared lets readers run together while waiting behind any writer.
func (r *Repository) lockShared(ctx context.Context, op string) (*repoLock, error) {
	return r.acquire(ctx, op, unix.LOCK_SH, r.opts.LockTimeout, false)
}

func (r *Repository) acquire(ctx context.Context, op string, how int, wait time.Duration, failFast bool) (*repoLock, error) {
	p := filepath.Join(r.ControlDir, lockFile)
	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, snaperr.IO(op, p, err)
	}
	try := func() error {
		return unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
	}

	err = try()
	if err == nil {
		return &repoLock{f: f, op: op}, nil
	}
	if !errors.Is(err, unix.EWOULDBLOCK) {
		f.Close()
		return nil, snaperr.IO(op, p, err)
	}
	if failFast && wait == 0 {
		f.Close()
		return nil, snaperr.Concurrency(op)
	}

	log.WithField("op", op).Debug("waiting for repository lock")
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	// readers without a timeout wait until the writer is done
	b.MaxElapsedTime = wait

	var hard error
	retryErr := backoff.Retry(func() error {
		err := try()
		if err != nil && !errors.Is(err, unix.EWOULDBLOCK) {
			hard = err
			return nil
		}
		return err
	}, backoff.WithContext(b, ctx))

	switch {
	case hard != nil:
		f.Close()
		return nil, snaperr.IO(op, p, hard)
	case retryErr == nil:
		return &repoLock{f: f, op: op}, nil
	case ctx.Err() != nil:
		f.Close()
		return nil, ctx.Err()
	default:
		f.Close()
		return nil, snaperr.Concurrency(op)
	}
}

func (l *repoLock) release() {
	if l == nil || l.f == nil {
		return
	}
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		log.WithField("op", l.op).Warnf("failed to release repository lock: %v", err)
	}
	l.f.Close()
	l.f = nil
}
