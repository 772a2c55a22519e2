package http

import (
	"net/http"
	"time"

	"dosewise/internal/application/services"
	"dosewise/pkg/middleware"
	"dosewise/pkg/response"

	"github.com/go-chi/chi/v5"
)

// AdminController exposes the background jobs and diagnostics as explicit
// administrative endpoints
type AdminController struct {
	generator *services.OccurrenceGenerator
	detector  *services.MissedDoseDetector
	evaluator *services.AdherenceEvaluator
	startedAt time.Time
}

// NewAdminController creates a new admin controller
func NewAdminController(
	generator *services.OccurrenceGenerator,
	detector *services.MissedDoseDetector,
	evaluator *services.AdherenceEvaluator,
) *AdminController {
	return &AdminController{
		generator: generator,
		detector:  detector,
		evaluator: evaluator,
		startedAt: time.Now().UTC(),
	}
}

// TriggerGeneration handles POST /admin/jobs/generate. Runs a full horizon
// generation for every eligible command regardless of local time.
func (c *AdminController) TriggerGeneration(w http.ResponseWriter, r *http.Request) {
	result, err := c.generator.GenerateAll(r.Context())
	if err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendSuccess(w, r, result)
}

// TriggerSweep handles POST /admin/jobs/sweep
func (c *AdminController) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	result, err := c.detector.Sweep(r.Context())
	if err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendSuccess(w, r, result)
}

// TriggerEvaluation handles POST /admin/jobs/evaluate/{patientId}
func (c *AdminController) TriggerEvaluation(w http.ResponseWriter, r *http.Request) {
	report, err := c.evaluator.EvaluatePatient(r.Context(), chi.URLParam(r, "patientId"))
	if err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendSuccess(w, r, report)
}

// GetDiagnostics handles GET /admin/diagnostics
func (c *AdminController) GetDiagnostics(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())

	response.SendSuccess(w, r, map[string]interface{}{
		"admin_actor_id": actorID,
		"started_at":     c.startedAt,
		"uptime":         time.Since(c.startedAt).String(),
		"system_status":  "healthy",
	})
}
