package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jgirmay/circle_realtime/pkg/repository"
)

// ReconcileLockKey is the job lease held while sweeping stale records
const ReconcileLockKey = "presence:reconcile"

// Reconciler periodically closes stale presence records
type Reconciler struct {
	recorder *Recorder
	locks    repository.JobLockRepository
	ownerID  string
	interval time.Duration
	now      func() time.Time

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewReconciler creates a reconciler. locks may be nil for a single process.
func NewReconciler(recorder *Recorder, locks repository.JobLockRepository, ownerID string, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Reconciler{
		recorder: recorder,
		locks:    locks,
		ownerID:  ownerID,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// RunOnce performs a single sweep. It returns 0 without sweeping when
// another process holds the lease.
func (rc *Reconciler) RunOnce(ctx context.Context) (int, error) {
	if rc.locks != nil {
		acquired, err := rc.locks.Acquire(ctx, ReconcileLockKey, rc.ownerID, rc.interval)
		if err != nil {
			return 0, err
		}
		if !acquired {
			log.Printf("[PRESENCE] Reconcile skipped, lease held elsewhere")
			return 0, nil
		}
		defer func() {
			if _, err := rc.locks.Release(context.WithoutCancel(ctx), ReconcileLockKey, rc.ownerID); err != nil {
				log.Printf("[PRESENCE] Failed to release reconcile lease: %v", err)
			}
		}()
	}
	return rc.recorder.ReconcileStale(ctx, rc.now(), 0)
}

// Start runs a sweep immediately and then every interval until Stop or ctx ends
func (rc *Reconciler) Start(ctx context.Context) {
	rc.wg.Add(1)
	go func() {
		defer rc.wg.Done()
		ticker := time.NewTicker(rc.interval)
		defer ticker.Stop()

		rc.sweep(ctx)
		for {
			select {
			case <-rc.done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				rc.sweep(ctx)
			}
		}
	}()
	log.Printf("[PRESENCE] Reconciler started (interval %v)", rc.interval)
}

// Stop halts the loop and waits for an in-flight sweep
func (rc *Reconciler) Stop() {
	rc.once.Do(func() { close(rc.done) })
	rc.wg.Wait()
}

func (rc *Reconciler) sweep(ctx context.Context) {
	if _, err := rc.RunOnce(ctx); err != nil {
		log.Printf("[PRESENCE] Reconcile failed: %v", err)
	}
}
