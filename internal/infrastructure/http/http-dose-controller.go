package http

import (
	"encoding/json"
	"net/http"

	"dosewise/internal/application/command"
	"dosewise/internal/application/query"
	"dosewise/internal/application/services"
	"dosewise/pkg/errors"
	"dosewise/pkg/middleware"
	"dosewise/pkg/response"

	"github.com/go-chi/chi/v5"
)

// HTTPDoseController implements dose action and timeline endpoints
type HTTPDoseController struct {
	doseService *services.DoseService
}

// NewHTTPDoseController creates a new HTTP dose controller
func NewHTTPDoseController(doseService *services.DoseService) *HTTPDoseController {
	return &HTTPDoseController{
		doseService: doseService,
	}
}

// MarkTaken handles POST /medications/{id}/doses/taken
func (c *HTTPDoseController) MarkTaken(w http.ResponseWriter, r *http.Request) {
	var cmd command.MarkDoseTaken
	if !decodeDoseCommand(w, r, &cmd, &cmd.CommandID, &cmd.Actor) {
		return
	}

	taken, err := c.doseService.MarkTaken(r.Context(), cmd)
	if err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendSuccess(w, r, taken)
}

// MarkSkipped handles POST /medications/{id}/doses/skipped
func (c *HTTPDoseController) MarkSkipped(w http.ResponseWriter, r *http.Request) {
	var cmd command.MarkDoseSkipped
	if !decodeDoseCommand(w, r, &cmd, &cmd.CommandID, &cmd.Actor) {
		return
	}

	skipped, err := c.doseService.MarkSkipped(r.Context(), cmd)
	if err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendSuccess(w, r, skipped)
}

// Snooze handles POST /medications/{id}/doses/snooze
func (c *HTTPDoseController) Snooze(w http.ResponseWriter, r *http.Request) {
	var cmd command.SnoozeDose
	if !decodeDoseCommand(w, r, &cmd, &cmd.CommandID, &cmd.Actor) {
		return
	}

	snoozed, err := c.doseService.Snooze(r.Context(), cmd)
	if err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendSuccess(w, r, snoozed)
}

// UndoTaken handles POST /medications/{id}/doses/undo
func (c *HTTPDoseController) UndoTaken(w http.ResponseWriter, r *http.Request) {
	var cmd command.UndoDoseTaken
	if !decodeDoseCommand(w, r, &cmd, &cmd.CommandID, &cmd.Actor) {
		return
	}

	undone, err := c.doseService.UndoTaken(r.Context(), cmd)
	if err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendSuccess(w, r, undone)
}

// Correct handles POST /medications/{id}/doses/correct
func (c *HTTPDoseController) Correct(w http.ResponseWriter, r *http.Request) {
	var cmd command.CorrectDose
	if !decodeDoseCommand(w, r, &cmd, &cmd.CommandID, &cmd.Actor) {
		return
	}

	correction, err := c.doseService.Correct(r.Context(), cmd)
	if err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendSuccess(w, r, correction)
}

// PatientTimeline handles GET /patients/{patientId}/timeline
func (c *HTTPDoseController) PatientTimeline(w http.ResponseWriter, r *http.Request) {
	entries, err := c.doseService.PatientTimeline(r.Context(), query.GetDoseTimeline{
		PatientID: chi.URLParam(r, "patientId"),
		From:      r.URL.Query().Get("from"),
		To:        r.URL.Query().Get("to"),
	})
	if err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendSuccess(w, r, entries)
}

// CommandTimeline handles GET /medications/{id}/timeline
func (c *HTTPDoseController) CommandTimeline(w http.ResponseWriter, r *http.Request) {
	entries, err := c.doseService.CommandTimeline(r.Context(), query.GetCommandTimeline{
		CommandID: chi.URLParam(r, "id"),
		From:      r.URL.Query().Get("from"),
		To:        r.URL.Query().Get("to"),
	})
	if err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendSuccess(w, r, entries)
}

// Occurrence handles GET /medications/{id}/doses/occurrence
func (c *HTTPDoseController) Occurrence(w http.ResponseWriter, r *http.Request) {
	entry, err := c.doseService.Occurrence(r.Context(), query.GetOccurrence{
		CommandID:    chi.URLParam(r, "id"),
		ScheduledFor: r.URL.Query().Get("scheduled_for"),
	})
	if err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendSuccess(w, r, entry)
}

// AdherenceReport handles GET /patients/{patientId}/adherence
func (c *HTTPDoseController) AdherenceReport(w http.ResponseWriter, r *http.Request) {
	report, err := c.doseService.AdherenceReport(
		r.Context(),
		chi.URLParam(r, "patientId"),
		r.URL.Query().Get("command_id"),
	)
	if err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendSuccess(w, r, report)
}

// decodeDoseCommand decodes the body and fills in the route's command ID and
// the authenticated actor, reporting false if the request was already rejected
func decodeDoseCommand(w http.ResponseWriter, r *http.Request, body interface{}, commandID, actor *string) bool {
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		middleware.HandleError(w, r, errors.NewValidationError("Invalid JSON format"))
		return false
	}
	*commandID = chi.URLParam(r, "id")
	if *actor == "" {
		*actor = middleware.GetActorID(r.Context())
	}
	return true
}
