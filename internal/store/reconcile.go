package store

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// ReconcilerOptions задаёт параметры периодической сверки с бэкендом.
type ReconcilerOptions struct {
	Logger   *log.Entry
	Interval time.Duration
}

// ReconcilerOption настраивает Reconciler.
type ReconcilerOption func(*ReconcilerOptions)

// WithReconcileLogger задаёт logger.
func WithReconcileLogger(logger *log.Entry) ReconcilerOption {
	return func(opts *ReconcilerOptions) {
		opts.Logger = logger
	}
}

// WithReconcileInterval задаёт интервал между сверками; 0 отключает воркер.
func WithReconcileInterval(interval time.Duration) ReconcilerOption {
	return func(opts *ReconcilerOptions) {
		opts.Interval = interval
	}
}

// Reconciler периодически перечитывает все коллекции из бэкенда,
// чтобы неудачные фоновые записи не оставляли расхождение навсегда.
type Reconciler struct {
	store    *Store
	logger   *log.Entry
	interval time.Duration
}

// NewReconciler создаёт воркер сверки.
func NewReconciler(store *Store, options ...ReconcilerOption) *Reconciler {
	var opts ReconcilerOptions
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "store-reconciler")
	}

	return &Reconciler{store: store, logger: logger, interval: opts.Interval}
}

// Enabled сообщает, будет ли воркер что-то делать.
func (r *Reconciler) Enabled() bool {
	return r.store != nil && r.interval > 0 && r.store.Mode() == ModeConnected
}

// Run выполняет сверку по таймеру до отмены ctx.
func (r *Reconciler) Run(ctx context.Context) {
	if !r.Enabled() {
		r.logger.Debug("store reconciler is disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReconcileOnce(ctx)
		}
	}
}

// ReconcileOnce перечитывает коллекции один раз.
func (r *Reconciler) ReconcileOnce(ctx context.Context) {
	before := r.store.RemoteStatus().ConsecutiveFailures
	r.store.Refresh(ctx)
	after := r.store.RemoteStatus()

	entry := r.logger.WithField("revision", r.store.Revision())
	if after.ConsecutiveFailures > before {
		entry.WithField("last_error", after.LastError).Warn("reconcile pass incomplete")
		return
	}
	entry.Debug("reconcile pass completed")
}
