// Package service orchestrates face enrollment and verification: it runs
// uploads through the embedding extractor, keeps the identity store and the
// identify index in sync, and turns pipeline failures into a stable error
// taxonomy for the HTTP and CLI surfaces.
package service

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/facegate/internal/archive"
	"github.com/kozaktomas/facegate/internal/embedding"
	"github.com/kozaktomas/facegate/internal/match"
	"github.com/kozaktomas/facegate/internal/metrics"
	"github.com/kozaktomas/facegate/internal/store"
)

const defaultIdentifyK = 5

// Config collects the dependencies of the service.
type Config struct {
	Extractor embedding.Extractor
	Store     store.IdentityWriter
	Index     *store.Index       // optional; required only for Identify
	Archive   archive.Store      // optional; nil disables enrollment archiving
	Metrics   *metrics.Collector // optional
	Logger    *slog.Logger       // optional; defaults to slog.Default()
	Metric    match.Metric
	Threshold float64
	Timeout   time.Duration // per-operation deadline; 0 disables
}

// Service implements the enrollment and verification operations.
type Service struct {
	extractor embedding.Extractor
	store     store.IdentityWriter
	index     *store.Index
	archive   archive.Store
	metrics   *metrics.Collector
	logger    *slog.Logger
	metric    match.Metric
	threshold float64
	timeout   time.Duration
}

// New creates a Service from its dependencies.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	arch := cfg.Archive
	if arch == nil {
		arch = archive.Disabled{}
	}
	return &Service{
		extractor: cfg.Extractor,
		store:     cfg.Store,
		index:     cfg.Index,
		archive:   arch,
		metrics:   cfg.Metrics,
		logger:    log,
		metric:    cfg.Metric,
		threshold: cfg.Threshold,
		timeout:   cfg.Timeout,
	}
}

// EnrollResult reports a successful enrollment.
type EnrollResult struct {
	EmployeeID   string
	EnrollmentID string
	Quality      float64
	Model        string
	Dim          int
}

// VerifyResult reports a comparison decision. EmployeeID is empty for
// stateless Compare calls.
type VerifyResult struct {
	EmployeeID string
	Matched    bool
	Distance   float64
	Threshold  float64
	Confidence float64
	Metric     string
}

// Candidate is one identify hit, nearest first.
type Candidate struct {
	EmployeeID string
	Name       string
	Distance   float64
	Confidence float64
}

// HealthStatus reports dependency health for the readiness endpoint.
type HealthStatus struct {
	Healthy   bool
	Extractor string
	Store     string
	Model     string
	Enrolled  int
}

func (s *Service) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) observe(op string, start time.Time, outcome string) {
	s.metrics.RecordRequest(op, outcome)
	s.metrics.RecordDuration(op, time.Since(start))
}

// extract runs the embedding pipeline and maps failures to the taxonomy.
func (s *Service) extract(ctx context.Context, image []byte) (*embedding.Result, *Error) {
	probe, err := s.extractor.Extract(ctx, image)
	if err != nil {
		svcErr := wrapExtractError(err)
		s.metrics.RecordExtractFailure(svcErr.Code)
		return nil, svcErr
	}
	return probe, nil
}

// Enroll extracts an embedding from the image and stores it as the
// employee's canonical reference, replacing any previous enrollment.
func (s *Service) Enroll(ctx context.Context, employeeID, name string, image []byte) (result *EnrollResult, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = outcomeFromError(err)
		}
		s.observe("enroll", start, outcome)
	}()

	if employeeID == "" {
		return nil, newError(CodeInvalidRequest, "employee id is required", nil)
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	probe, svcErr := s.extract(ctx, image)
	if svcErr != nil {
		return nil, svcErr
	}

	enrollmentID := uuid.NewString()
	imageRef := s.archiveEnrollment(ctx, enrollmentID, image)

	identity := store.Identity{
		EmployeeID:   employeeID,
		Name:         name,
		Embedding:    probe.Embedding,
		Dim:          probe.Dim,
		Model:        probe.Model,
		Metric:       s.metric.String(),
		Quality:      probe.DetScore,
		EnrollmentID: enrollmentID,
		ImageRef:     imageRef,
		EnrolledAt:   time.Now().UTC(),
	}

	if err := s.store.Put(ctx, identity); err != nil {
		return nil, newError(CodeInternal, "storing identity failed", err)
	}
	if s.index != nil {
		s.index.Upsert(&identity)
	}
	s.updateEnrolledGauge(ctx)

	s.logger.Info("identity enrolled",
		"employee_id", employeeID,
		"enrollment_id", enrollmentID,
		"model", identity.Model,
		"quality", identity.Quality,
	)

	return &EnrollResult{
		EmployeeID:   employeeID,
		EnrollmentID: enrollmentID,
		Quality:      probe.DetScore,
		Model:        probe.Model,
		Dim:          probe.Dim,
	}, nil
}

// archiveEnrollment stores the original upload for audit. Failures degrade
// to a warning: losing the audit copy must not block the enrollment.
func (s *Service) archiveEnrollment(ctx context.Context, enrollmentID string, image []byte) string {
	if _, disabled := s.archive.(archive.Disabled); disabled {
		return ""
	}

	contentType := http.DetectContentType(image)
	ext := ".jpg"
	if contentType == "image/png" {
		ext = ".png"
	}
	key := "enrollments/" + enrollmentID + ext

	if err := s.archive.Put(ctx, key, image, contentType); err != nil {
		s.logger.Warn("archiving enrollment image failed",
			"enrollment_id", enrollmentID,
			"error", err,
		)
		return ""
	}
	return key
}

// Verify compares a live capture against the employee's stored reference.
// It performs no writes.
func (s *Service) Verify(ctx context.Context, employeeID string, image []byte) (result *VerifyResult, err error) {
	start := time.Now()
	defer func() {
		outcome := "accept"
		switch {
		case err != nil:
			outcome = outcomeFromError(err)
		case !result.Matched:
			outcome = "reject"
		}
		s.observe("verify", start, outcome)
	}()

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	// Reference lookup first: an unenrolled employee fails cheaply without
	// a round trip to the model server.
	reference, err := s.store.Get(ctx, employeeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(CodeNotEnrolled, "no enrollment exists for this employee", err)
	}
	if err != nil {
		return nil, newError(CodeInternal, "loading reference identity failed", err)
	}

	if reference.Metric != "" && reference.Metric != s.metric.String() {
		return nil, newError(CodeInternal, "stored embedding is not comparable",
			&match.MetricMismatchError{Field: "metric", Stored: reference.Metric, Active: s.metric.String()})
	}

	probe, svcErr := s.extract(ctx, image)
	if svcErr != nil {
		return nil, svcErr
	}

	decision, err := match.Decide(s.metric, probe.Embedding, reference.Embedding, s.threshold)
	if err != nil {
		// Dimension disagreement with a stored reference means the model
		// changed without re-enrollment, a deployment bug rather than a
		// client-addressable condition.
		return nil, newError(CodeInternal, "comparing embeddings failed", err)
	}

	s.logger.Info("verification decision",
		"employee_id", employeeID,
		"matched", decision.Accepted,
		"distance", decision.Distance,
		"threshold", decision.Threshold,
	)

	return &VerifyResult{
		EmployeeID: employeeID,
		Matched:    decision.Accepted,
		Distance:   decision.Distance,
		Threshold:  decision.Threshold,
		Confidence: decision.Confidence,
		Metric:     s.metric.String(),
	}, nil
}

// Compare checks a live capture against a caller-supplied embedding without
// touching the identity store.
func (s *Service) Compare(ctx context.Context, image []byte, reference []float32) (result *VerifyResult, err error) {
	start := time.Now()
	defer func() {
		outcome := "accept"
		switch {
		case err != nil:
			outcome = outcomeFromError(err)
		case !result.Matched:
			outcome = "reject"
		}
		s.observe("compare", start, outcome)
	}()

	if len(reference) == 0 {
		return nil, newError(CodeInvalidRequest, "reference embedding is required", nil)
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	probe, svcErr := s.extract(ctx, image)
	if svcErr != nil {
		return nil, svcErr
	}

	decision, err := match.Decide(s.metric, probe.Embedding, reference, s.threshold)
	if err != nil {
		// The reference came from the caller, so dimension and zero-vector
		// problems are client errors here.
		return nil, newError(CodeInvalidRequest, "reference embedding is not comparable", err)
	}

	return &VerifyResult{
		Matched:    decision.Accepted,
		Distance:   decision.Distance,
		Threshold:  decision.Threshold,
		Confidence: decision.Confidence,
		Metric:     s.metric.String(),
	}, nil
}

// Identify searches all enrolled identities for the closest matches to the
// face in the image. Distances are exact, recomputed from stored embeddings.
func (s *Service) Identify(ctx context.Context, image []byte, k int) (candidates []Candidate, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = outcomeFromError(err)
		}
		s.observe("identify", start, outcome)
	}()

	if s.index == nil {
		return nil, newError(CodeInternal, "identify index not initialized", nil)
	}
	if k <= 0 {
		k = defaultIdentifyK
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	probe, svcErr := s.extract(ctx, image)
	if svcErr != nil {
		return nil, svcErr
	}

	for _, hit := range s.index.Search(probe.Embedding, k) {
		identity, err := s.store.Get(ctx, hit.EmployeeID)
		if errors.Is(err, store.ErrNotFound) {
			continue // index briefly behind a delete
		}
		if err != nil {
			return nil, newError(CodeInternal, "loading candidate identity failed", err)
		}

		dist, err := match.Distance(s.metric, probe.Embedding, identity.Embedding)
		if err != nil {
			continue // record from a different model, not comparable
		}

		candidates = append(candidates, Candidate{
			EmployeeID: identity.EmployeeID,
			Name:       identity.Name,
			Distance:   dist,
			Confidence: match.Confidence(s.metric, dist),
		})
	}

	slices.SortFunc(candidates, func(a, b Candidate) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	return candidates, nil
}

// Remove unenrolls an employee: record, index entry and archived image.
func (s *Service) Remove(ctx context.Context, employeeID string) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = outcomeFromError(err)
		}
		s.observe("remove", start, outcome)
	}()

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	identity, err := s.store.Get(ctx, employeeID)
	if errors.Is(err, store.ErrNotFound) {
		return newError(CodeNotFound, "identity not found", err)
	}
	if err != nil {
		return newError(CodeInternal, "loading identity failed", err)
	}

	if err := s.store.Delete(ctx, employeeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return newError(CodeNotFound, "identity not found", err)
		}
		return newError(CodeInternal, "deleting identity failed", err)
	}
	if s.index != nil {
		s.index.Remove(employeeID)
	}

	// Unenrollment also drops the archived biometric source image.
	if identity.ImageRef != "" {
		if err := s.archive.Remove(ctx, identity.ImageRef); err != nil {
			s.logger.Warn("removing archived enrollment image failed",
				"employee_id", employeeID,
				"error", err,
			)
		}
	}
	s.updateEnrolledGauge(ctx)

	s.logger.Info("identity removed", "employee_id", employeeID)
	return nil
}

// Identities lists enrolled identities, optionally filtered by a query that
// matches employee IDs and names ignoring case and diacritics.
func (s *Service) Identities(ctx context.Context, query string) ([]store.Identity, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	identities, err := s.store.List(ctx, query)
	if err != nil {
		return nil, newError(CodeInternal, "listing identities failed", err)
	}
	return identities, nil
}

// Identity returns a single enrolled identity.
func (s *Service) Identity(ctx context.Context, employeeID string) (*store.Identity, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	identity, err := s.store.Get(ctx, employeeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(CodeNotFound, "identity not found", err)
	}
	if err != nil {
		return nil, newError(CodeInternal, "loading identity failed", err)
	}
	return identity, nil
}

// Health reports whether the model server and the store are reachable.
func (s *Service) Health(ctx context.Context) HealthStatus {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	status := HealthStatus{
		Healthy:   true,
		Extractor: "ok",
		Store:     "ok",
		Model:     s.extractor.ModelName(),
	}

	if err := s.extractor.Ping(ctx); err != nil {
		status.Healthy = false
		status.Extractor = err.Error()
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		status.Healthy = false
		status.Store = err.Error()
	} else {
		status.Enrolled = count
	}

	return status
}

// updateEnrolledGauge refreshes the enrolled-identities gauge, best effort.
func (s *Service) updateEnrolledGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	count, err := s.store.Count(ctx)
	if err != nil {
		return
	}
	s.metrics.SetEnrolled(count)
}
