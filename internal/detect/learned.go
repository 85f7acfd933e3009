package detect

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"redact/internal/cache"
	"redact/internal/phitype"
)

// learnedRequest/learnedResponse mirror the teacher's ollamaRequest/
// ollamaDetection shapes: a single JSON POST carrying the document, a JSON
// array of {original,type,confidence} back. spec.md §1 treats "ML model
// loading and inference" as out of scope, wired only through an opaque
// detector interface — this is that interface's wire shape, kept close to
// the teacher's because it already fit the contract spec.md asks for.
type learnedRequest struct {
	Text string `json:"text"`
}

type learnedDetection struct {
	Original   string  `json:"original"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

// LearnedDetector dispatches canonical text to an opaque external model
// endpoint and maps its response into CandidateSpans. Per spec.md §4.2,
// "Learned ... returns empty on model failure" — every error path here
// degrades to an empty slice plus a non-fatal error the registry logs but
// does not propagate as a redaction failure.
//
// A result cache sits in front of the HTTP call, the way the teacher cached
// its own opaque model lookups: a document that recurs verbatim (a retried
// request, a duplicate upload) is served from cache instead of re-querying
// the model endpoint. The cache is optional — a nil cache just means every
// call goes to the network.
type LearnedDetector struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	cache    cache.PersistentCache // keyed by a hash of the canonical text; nil disables caching
}

// NewLearnedDetector builds a detector against the given HTTP endpoint. An
// empty endpoint disables the detector (Detect always returns empty).
func NewLearnedDetector(endpoint string, timeout time.Duration) *LearnedDetector {
	return NewCachedLearnedDetector(endpoint, timeout, nil)
}

// NewCachedLearnedDetector builds a detector backed by c, an
// internal/cache.PersistentCache (typically an internal/cache.NewS3FIFOCache
// wrapping a bbolt-backed store) that memoizes model responses across calls.
// A nil c behaves exactly like NewLearnedDetector.
func NewCachedLearnedDetector(endpoint string, timeout time.Duration, c cache.PersistentCache) *LearnedDetector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LearnedDetector{endpoint: endpoint, client: http.DefaultClient, timeout: timeout, cache: c}
}

func (d *LearnedDetector) Name() string { return "learned" }
func (d *LearnedDetector) Priority() int { return phitype.BasePriority(phitype.FamilyLearned) }
func (d *LearnedDetector) PHITypes() []phitype.Type {
	return []phitype.Type{phitype.Name, phitype.Address, phitype.Age, phitype.Biometric}
}

func (d *LearnedDetector) Detect(dctx *Context) ([]phitype.CandidateSpan, error) {
	if d.endpoint == "" {
		return nil, nil
	}

	text := string(dctx.Canonical)
	cacheKey := learnedCacheKey(text)

	if d.cache != nil {
		if cached, ok := d.cache.Get(cacheKey); ok {
			detections, err := decodeLearnedDetections([]byte(cached))
			if err == nil {
				return d.toSpans(detections), nil
			}
			d.cache.Delete(cacheKey) // corrupt entry: fall through to a live query
		}
	}

	reqBody, err := json.Marshal(learnedRequest{Text: text})
	if err != nil {
		return nil, nil // never throws: degrade to empty
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("learned detector: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("learned detector: request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("learned detector: read response: %w", err)
	}

	detections, err := decodeLearnedDetections(body)
	if err != nil {
		return nil, fmt.Errorf("learned detector: parse response: %w", err)
	}

	if d.cache != nil {
		d.cache.Set(cacheKey, string(body))
	}
	return d.toSpans(detections), nil
}

func (d *LearnedDetector) toSpans(detections []learnedDetection) []phitype.CandidateSpan {
	var spans []phitype.CandidateSpan
	for _, det := range detections {
		t := phitype.Type(det.Type)
		if !phitype.Valid(t) {
			continue
		}
		spans = append(spans, phitype.CandidateSpan{
			Text: det.Original, Start: det.Start, End: det.End, PHIType: t,
			Confidence: det.Confidence, Priority: d.Priority(), Pattern: "learned", DetectorName: d.Name(),
		})
	}
	return spans
}

func decodeLearnedDetections(body []byte) ([]learnedDetection, error) {
	var detections []learnedDetection
	if err := json.Unmarshal(body, &detections); err != nil {
		return nil, err
	}
	return detections, nil
}

// learnedCacheKey hashes the canonical document text rather than using it
// directly as the cache key: bbolt keys and in-memory map keys both work
// better bounded, and the model's response depends only on this text.
func learnedCacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "learned:" + hex.EncodeToString(sum[:])
}
