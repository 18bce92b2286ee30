package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/echo-import/internal/domain/categorization"
	"github.com/FACorreiaa/echo-import/internal/domain/import/repository"
	"github.com/FACorreiaa/echo-import/internal/domain/import/service"
)

// ownerImport is the import state kept for one owner
type ownerImport struct {
	orchestrator *service.Orchestrator
	classifier   *categorization.Classifier
	lastUsed     time.Time
}

// Registry holds one orchestrator and classifier per owner, created on first use
type Registry struct {
	repo     repository.ImportRepository
	store    categorization.KeyValueStore
	logger   *slog.Logger
	metrics  *service.Metrics
	currency string

	mu     sync.Mutex
	owners map[uuid.UUID]*ownerImport
	now    func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry(repo repository.ImportRepository, store categorization.KeyValueStore, logger *slog.Logger) *Registry {
	return &Registry{
		repo:   repo,
		store:  store,
		logger: logger,
		owners: make(map[uuid.UUID]*ownerImport),
		now:    time.Now,
	}
}

// WithMetrics attaches import metrics to every orchestrator created afterwards
func (r *Registry) WithMetrics(m *service.Metrics) *Registry {
	r.metrics = m
	return r
}

// WithCurrency sets the display currency for new orchestrators
func (r *Registry) WithCurrency(code string) *Registry {
	r.currency = code
	return r
}

func (r *Registry) lookup(ownerID uuid.UUID) (*ownerImport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	oi, ok := r.owners[ownerID]
	if ok {
		oi.lastUsed = r.now()
	}
	return oi, ok
}

// get returns the owner's entry, creating it on first use. The classifier is
// loaded without holding mu; when two requests race, the first insert wins.
func (r *Registry) get(ctx context.Context, ownerID uuid.UUID) (*ownerImport, error) {
	if oi, ok := r.lookup(ownerID); ok {
		return oi, nil
	}

	classifier, err := categorization.NewClassifier(ctx, r.store, categorization.CorrectionsKey(ownerID), r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}
	orchestrator := service.NewOrchestrator(ownerID, r.repo, classifier, r.logger).
		WithMetrics(r.metrics).
		WithCurrency(r.currency)

	r.mu.Lock()
	defer r.mu.Unlock()
	if oi, ok := r.owners[ownerID]; ok {
		oi.lastUsed = r.now()
		return oi, nil
	}
	oi := &ownerImport{orchestrator: orchestrator, classifier: classifier, lastUsed: r.now()}
	r.owners[ownerID] = oi
	return oi, nil
}

// EvictIdle drops owners not seen for longer than idle. Owners with a commit
// running are kept. It returns the number evicted.
func (r *Registry) EvictIdle(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	evicted := 0
	for id, oi := range r.owners {
		if oi.lastUsed.After(cutoff) || oi.orchestrator.Snapshot().Phase == service.PhaseCommitting {
			continue
		}
		delete(r.owners, id)
		evicted++
	}
	if evicted > 0 {
		r.logger.Debug("idle import sessions evicted",
			slog.Int("evicted", evicted),
			slog.Int("remaining", len(r.owners)),
		)
	}
	return evicted
}

// Orchestrator returns the owner's orchestrator
func (r *Registry) Orchestrator(ctx context.Context, ownerID uuid.UUID) (*service.Orchestrator, error) {
	oi, err := r.get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return oi.orchestrator, nil
}

// Classifier returns the owner's classifier
func (r *Registry) Classifier(ctx context.Context, ownerID uuid.UUID) (*categorization.Classifier, error) {
	oi, err := r.get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return oi.classifier, nil
}

// ReloadCorrections refreshes every loaded classifier from the store
func (r *Registry) ReloadCorrections(ctx context.Context) (int, error) {
	r.mu.Lock()
	classifiers := make([]*categorization.Classifier, 0, len(r.owners))
	for _, oi := range r.owners {
		classifiers = append(classifiers, oi.classifier)
	}
	r.mu.Unlock()

	var errs []error
	for _, c := range classifiers {
		if err := c.ReloadCorrections(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return len(classifiers), errors.Join(errs...)
}
