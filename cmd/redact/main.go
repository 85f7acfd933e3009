// Command redact is the HIPAA PHI-redaction engine's HTTP service.
//
// It serves a batch JSON redaction endpoint and a WebSocket streaming
// endpoint on REDACT_API_PORT, and a loopback-only runtime introspection and
// control API (status, metrics, PHI-type toggles) on REDACT_MANAGEMENT_PORT.
//
// Every on-disk policy input — thresholds, calibration, feature toggles,
// post-filter rules, whitelist and dictionary term banks, named policy bundle
// presets — is optional; a bare invocation with no config files at all still
// runs with spec defaults (every type enabled, bracket-style replacement, no
// learned detector).
//
// Usage:
//
//	./redact
//	REDACT_API_PORT=9443 REDACT_ACTIVE_POLICY=research ./redact
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"

	"redact/internal/api"
	"redact/internal/apply"
	"redact/internal/cache"
	"redact/internal/detect"
	"redact/internal/engine"
	"redact/internal/logger"
	"redact/internal/management"
	"redact/internal/metrics"
	"redact/internal/phitype"
	"redact/internal/policy"
	"redact/internal/stream"
	"redact/internal/threshold"
	"redact/internal/whitelist"
)

func main() {
	cfg := policy.Load("")
	log := logger.New("REDACT", cfg.LogLevel)
	defer log.Sync() //nolint:errcheck

	rt, activeName, bankSizes := buildRuntime(cfg, log)

	m := metrics.New()
	types := management.NewTypeRegistry("redact-types.json")
	seedTypeRegistry(types, rt)

	mgmt := management.New(types, rt, m, cfg.ManagementToken, activeName, bankSizes)
	go func() {
		if err := mgmt.ListenAndServe(cfg.ManagementPort); err != nil {
			log.Fatalf("startup", "management server: %v", err)
		}
	}()

	apiServer := api.New(rt, m, log, stream.Options{
		BufferSize: cfg.StreamBufferSize,
		Overlap:    cfg.StreamOverlap,
		Mode:       stream.Mode(cfg.StreamMode),
	})

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// h2c/h2 support at the listener level; internal/api's handler is
	// transport-agnostic and never needs to know which protocol carried a
	// request in.
	if err := http2.ConfigureServer(srv, &http2.Server{}); err != nil {
		log.Warnf("startup", "http2 configuration failed, continuing over http/1.1: %v", err)
	}

	log.Infof("startup", "API listening on %s, management on 127.0.0.1:%d", addr, cfg.ManagementPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("shutdown", "shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("shutdown", "server shutdown: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("startup", "API server: %v", err)
	}
}

// buildRuntime loads every optional policy input and assembles the working
// engine.Runtime, falling back to spec defaults wherever a file is absent.
// The returned name is the resolved active policy bundle's own Name field
// (not necessarily equal to cfg.ActivePolicy, which is only the lookup key),
// or "default" when no active policy is configured.
func buildRuntime(cfg *policy.RuntimeConfig, log *logger.Logger) (*engine.Runtime, string, map[string]int) {
	features, err := policy.LoadFeatures(cfg.FeaturesFile)
	if err != nil {
		log.Fatalf("startup", "features file: %v", err)
	}

	whitelistData, err := policy.LoadWhitelistData(cfg.WhitelistFile)
	if err != nil {
		log.Fatalf("startup", "whitelist file: %v", err)
	}
	bank := whitelist.NewBank(whitelistData)

	dictData, err := policy.LoadDictionaryData(cfg.DictionaryFile)
	if err != nil {
		log.Fatalf("startup", "dictionary file: %v", err)
	}

	registry := buildDetectorRegistry(cfg, features, dictData, log)

	th := buildThresholdEngine(cfg, log)

	reconcilePolicy := engine.DefaultReconcilePolicy()
	for _, t := range phitype.All {
		if !features.TypeEnabled(t) {
			p := reconcilePolicy[t]
			p.Enabled = false
			reconcilePolicy[t] = p
		}
	}

	applyPolicy := apply.Policy{Style: apply.StyleBrackets}
	activeName := "default"
	if cfg.ActivePolicy != "" {
		bundles, err := policy.LoadPolicyBundles(cfg.PolicyDir)
		if err != nil {
			log.Fatalf("startup", "policy bundles: %v", err)
		}
		bundle, ok := bundles[cfg.ActivePolicy]
		if !ok {
			log.Fatalf("startup", "active policy %q not found in %s", cfg.ActivePolicy, cfg.PolicyDir)
		}
		applyPolicy, err = bundle.ToApplyPolicy()
		if err != nil {
			log.Fatalf("startup", "active policy %q: %v", cfg.ActivePolicy, err)
		}
		for _, t := range phitype.All {
			if bundle.TypeDisabled(t) {
				p := reconcilePolicy[t]
				p.Enabled = false
				reconcilePolicy[t] = p
			}
		}
		activeName = bundle.Name
	}

	rt := engine.NewRuntime(
		registry,
		bank,
		th,
		reconcilePolicy,
		engine.DefaultMergeRule(),
		applyPolicy,
		cfg.DebugInvariants,
		log,
	)

	if rules, err := policy.LoadPostFilterRules(cfg.PostFilterFile); err != nil {
		log.Fatalf("startup", "post-filter file: %v", err)
	} else if len(rules) > 0 {
		rt.PostFilter = postFilterAdapter{rules: rules}
	}

	bankSizes := map[string]int{
		"whitelistEponyms": len(whitelistData.Eponyms),
		"dictionaryNames":  len(dictData.Names),
	}
	return rt, activeName, bankSizes
}

func buildDetectorRegistry(cfg *policy.RuntimeConfig, features policy.FeaturesFile, dictData detect.DictionaryData, log *logger.Logger) *detect.Registry {
	var detectors []detect.Detector

	if features.FamilyEnabled(phitype.FamilyPattern) {
		detectors = append(detectors, detect.NewPatternDetector(nil))
	}
	if features.FamilyEnabled(phitype.FamilyDictionary) {
		detectors = append(detectors, detect.NewDictionaryDetector(dictData))
	}
	if features.FamilyEnabled(phitype.FamilyPhonetic) {
		detectors = append(detectors, detect.NewPhoneticDetector(dictData.Names))
	}
	if features.FamilyEnabled(phitype.FamilyLearned) && cfg.LearnedEndpoint != "" {
		timeout := time.Duration(cfg.LearnedTimeoutSeconds) * time.Second
		detectors = append(detectors, detect.NewCachedLearnedDetector(cfg.LearnedEndpoint, timeout, buildLearnedCache(cfg, log)))
	}

	if len(detectors) == 0 {
		log.Warn("startup", "no detector families enabled; redaction will be a no-op")
	}
	return detect.NewRegistry(detectors...)
}

// buildLearnedCache opens the bbolt-backed result cache for the learned
// detector (the teacher's own Ollama-result cache, generalized in
// internal/cache to back both this and the feedback store) under an S3-FIFO
// eviction layer bounding hot-set size to cfg.LearnedCacheCapacity entries.
// A zero capacity or an unopenable cache path disables caching rather than
// failing startup — the learned detector works uncached either way.
func buildLearnedCache(cfg *policy.RuntimeConfig, log *logger.Logger) cache.PersistentCache {
	if cfg.LearnedCacheCapacity <= 0 || cfg.CacheFile == "" {
		return nil
	}
	backing, err := cache.NewBboltCache(cfg.CacheFile, "learned")
	if err != nil {
		log.Warnf("startup", "learned cache: %v; continuing uncached", err)
		return nil
	}
	return cache.NewS3FIFOCache(backing, cfg.LearnedCacheCapacity)
}

func buildThresholdEngine(cfg *policy.RuntimeConfig, log *logger.Logger) *threshold.Engine {
	var base map[phitype.Type]float64
	if cfg.ThresholdsFile != "" {
		if b, err := policy.LoadThresholds(cfg.ThresholdsFile); err == nil {
			base = b
		} else if !os.IsNotExist(err) {
			log.Fatalf("startup", "thresholds file: %v", err)
		}
	}

	var feedback threshold.FeedbackStore
	if cfg.FeedbackFile != "" {
		store, err := cache.NewFeedbackStore(cfg.FeedbackFile)
		if err != nil {
			log.Fatalf("startup", "feedback store: %v", err)
		}
		feedback = store
	}

	th := threshold.NewEngine(base, feedback, cfg.FeedbackMinSamples)

	if cfg.CalibrationFile != "" {
		if calib, err := policy.LoadCalibration(cfg.CalibrationFile); err == nil {
			calib.Apply(th)
		} else if !os.IsNotExist(err) {
			log.Fatalf("startup", "calibration file: %v", err)
		}
	}
	return th
}

// postFilterAdapter converts internal/policy's typed PostFilterAction into
// the plain-string shape internal/engine.PostFilterEvaluator expects, the
// one seam that would otherwise force internal/engine to import
// internal/policy.
type postFilterAdapter struct {
	rules []*policy.PostFilterRule
}

func (a postFilterAdapter) Evaluate(text string) (string, bool) {
	action, matched := policy.Evaluate(a.rules, text)
	return string(action), matched
}

// seedTypeRegistry applies the management registry's persisted overrides
// (if any) onto the freshly built runtime, so a restart resumes exactly the
// PHI-type set an operator last configured via the management API rather
// than silently reverting to the features file's static baseline.
func seedTypeRegistry(types *management.TypeRegistry, rt *engine.Runtime) {
	for t, enabled := range types.All() {
		rt.SetTypeEnabled(t, enabled)
	}
}
