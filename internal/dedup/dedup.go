package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/postly/scout/internal/model"
	"github.com/postly/scout/internal/textutil"
)

// Fingerprint computes the cross-source dedup key: SHA-256 over the
// normalized title, company, and location joined by a fixed delimiter.
// Deterministic for identical normalized input.
func Fingerprint(title, company, location string) string {
	composite := textutil.NormalizeForFingerprint(title) + "|" +
		textutil.NormalizeForFingerprint(company) + "|" +
		textutil.NormalizeForFingerprint(location)
	sum := sha256.Sum256([]byte(composite))
	return hex.EncodeToString(sum[:])
}

// KeyFor derives the dedup key for a candidate. The source's stable
// requisition ID is preferred when present (namespaced by source so two
// boards cannot collide on short numeric IDs); the title/company/location
// fingerprint is the fallback.
func KeyFor(c model.CandidateJob) string {
	if c.RequisitionID != "" {
		return c.Source + ":" + c.RequisitionID
	}
	return Fingerprint(c.Title, c.Company, c.Location)
}

// Deduper decides whether a candidate has been seen before, either earlier
// in the current cycle (batch set) or in the store (persistent snapshot
// loaded at cycle start). Check-and-mark is atomic so near-simultaneous
// duplicates within one batch cannot both pass.
type Deduper struct {
	mu     sync.Mutex
	batch  map[string]struct{}
	known  map[string]struct{}
	store  model.Store
	logger *slog.Logger
}

// NewDeduper creates a deduper backed by the given store for persistent
// key snapshots.
func NewDeduper(store model.Store, logger *slog.Logger) *Deduper {
	return &Deduper{
		batch:  make(map[string]struct{}),
		known:  make(map[string]struct{}),
		store:  store,
		logger: logger,
	}
}

// LoadKnown replaces the persistent snapshot with the store's current key
// set for the source. Called once at cycle start; never refreshed mid-cycle.
func (d *Deduper) LoadKnown(ctx context.Context, source string) error {
	keys, err := d.store.GetKnownKeys(ctx, source)
	if err != nil {
		return fmt.Errorf("loading known keys for %s: %w", source, err)
	}

	d.mu.Lock()
	d.known = keys
	d.mu.Unlock()

	d.logger.Debug("loaded known dedup keys", "source", source, "count", len(keys))
	return nil
}

// Known returns a copy of the persistent snapshot, for pre-filtering
// identifiers before detail fetch.
func (d *Deduper) Known() map[string]struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]struct{}, len(d.known))
	for k := range d.known {
		out[k] = struct{}{}
	}
	return out
}

// CheckAndMark reports whether key is a duplicate, and if not, marks it
// seen in the same critical section.
func (d *Deduper) CheckAndMark(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.batch[key]; ok {
		return true
	}
	if _, ok := d.known[key]; ok {
		return true
	}
	d.batch[key] = struct{}{}
	return false
}

// ResetBatch clears the batch-local set at the start of a new cycle.
// The persistent snapshot survives until the next LoadKnown.
func (d *Deduper) ResetBatch() {
	d.mu.Lock()
	d.batch = make(map[string]struct{})
	d.mu.Unlock()
}
