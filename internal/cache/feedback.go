package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"redact/internal/phitype"
)

// Outcome is a closed enumeration of how a redaction decision turned out,
// reported back by a caller after human or downstream review.
type Outcome string

const (
	OutcomeConfirmed     Outcome = "confirmed"     // the decision was correct; no adjustment needed
	OutcomeFalsePositive Outcome = "false_positive" // redacted something that wasn't PHI; raise the bar
	OutcomeMissed        Outcome = "missed"         // PHI slipped through; lower the bar
)

// FeedbackRecord is one append-only entry in the feedback store, matching
// spec.md §6's persistent-state schema
// {contextSignature, phiType, outcome, timestamp}.
type FeedbackRecord struct {
	ContextSignature string
	PHIType          phitype.Type
	Outcome          Outcome
	Timestamp        time.Time
}

const feedbackBucket = "feedback"

// FeedbackStore is an append-only, bbolt-backed record of redaction
// outcomes, and satisfies internal/threshold.FeedbackStore structurally
// (no import of internal/threshold needed — see DESIGN.md).
type FeedbackStore struct {
	db *bolt.DB
}

// NewFeedbackStore opens (or creates) a bbolt database at path dedicated to
// feedback records.
func NewFeedbackStore(path string) (*FeedbackStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open feedback store %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(feedbackBucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("create feedback bucket: %w", err)
	}
	return &FeedbackStore{db: db}, nil
}

// Record appends one feedback outcome. Existing records for the same
// (contextSignature, phiType) are never overwritten — the store is
// append-only per spec.md §5.
func (f *FeedbackStore) Record(rec FeedbackRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal feedback record: %w", err)
	}
	key := recordKey(rec.ContextSignature, rec.PHIType, rec.Timestamp)
	return f.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(feedbackBucket))
		// A per-bucket sequence suffix keeps records with equal timestamps
		// from sharing a key.
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("feedback record sequence: %w", err)
		}
		key = append(key, fmt.Sprintf("|%020d", seq)...)
		return b.Put(key, data)
	})
}

// Correction implements internal/threshold.FeedbackStore: it averages the
// nudge factor of every recorded outcome for (contextSignature, phiType),
// and reports ok=false until at least minSamples records exist.
func (f *FeedbackStore) Correction(contextSignature string, t phitype.Type, minSamples int) (float64, bool) {
	prefix := recordPrefix(contextSignature, t)
	var sum float64
	var count int

	_ = f.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(feedbackBucket))
		if b == nil {
			return nil
		}
		cur := b.Cursor()
		for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
			var rec FeedbackRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			sum += nudge(rec.Outcome)
			count++
		}
		return nil
	})

	if count < minSamples {
		return 1.0, false
	}
	return sum / float64(count), true
}

// Close releases the underlying bbolt handle.
func (f *FeedbackStore) Close() error {
	return f.db.Close()
}

func nudge(o Outcome) float64 {
	switch o {
	case OutcomeFalsePositive:
		return 1.05
	case OutcomeMissed:
		return 0.9
	default:
		return 1.0
	}
}

func recordPrefix(contextSignature string, t phitype.Type) []byte {
	return []byte(contextSignature + "|" + string(t) + "|")
}

func recordKey(contextSignature string, t phitype.Type, ts time.Time) []byte {
	return []byte(fmt.Sprintf("%s%020d", recordPrefix(contextSignature, t), ts.UnixNano()))
}
