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

// HTTPMedicationController implements medication endpoints for HTTP transport
type HTTPMedicationController struct {
	medicationService *services.MedicationService
}

// NewHTTPMedicationController creates a new HTTP medication controller
func NewHTTPMedicationController(medicationService *services.MedicationService) *HTTPMedicationController {
	return &HTTPMedicationController{
		medicationService: medicationService,
	}
}

// CreateMedication handles POST /medications
func (c *HTTPMedicationController) CreateMedication(w http.ResponseWriter, r *http.Request) {
	var cmd command.CreateMedication
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		middleware.HandleError(w, r, errors.NewValidationError("Invalid JSON format"))
		return
	}

	if cmd.Actor == "" {
		cmd.Actor = middleware.GetActorID(r.Context())
	}

	created, err := c.medicationService.CreateMedication(r.Context(), cmd)
	if err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendCreated(w, r, map[string]interface{}{
		"id":         created.ID(),
		"patient_id": created.PatientID(),
		"grace_tier": string(created.GraceTier()),
		"status":     string(created.Status()),
		"version":    created.Version(),
	})
}

// GetMedication handles GET /medications/{id}
func (c *HTTPMedicationController) GetMedication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	med, err := c.medicationService.GetMedication(r.Context(), query.GetMedication{CommandID: id})
	if err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendSuccess(w, r, med)
}

// ListPatientMedications handles GET /patients/{patientId}/medications
func (c *HTTPMedicationController) ListPatientMedications(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientId")
	name := r.URL.Query().Get("name")

	if name != "" {
		meds, err := c.medicationService.SearchMedications(r.Context(), query.SearchMedications{
			PatientID: patientID,
			Name:      name,
		})
		if err != nil {
			middleware.HandleError(w, r, err)
			return
		}
		response.SendSuccess(w, r, meds)
		return
	}

	meds, err := c.medicationService.ListMedications(r.Context(), query.ListPatientMedications{PatientID: patientID})
	if err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendSuccess(w, r, meds)
}

// UpdateSchedule handles PUT /medications/{id}/schedule
func (c *HTTPMedicationController) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var cmd command.UpdateMedicationSchedule
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		middleware.HandleError(w, r, errors.NewValidationError("Invalid JSON format"))
		return
	}
	cmd.CommandID = id
	if cmd.Actor == "" {
		cmd.Actor = middleware.GetActorID(r.Context())
	}

	if err := c.medicationService.UpdateSchedule(r.Context(), cmd); err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendSuccess(w, r, map[string]interface{}{
		"id":      id,
		"message": "Schedule updated successfully",
	})
}

// VerifyMedication handles POST /medications/{id}/verify
func (c *HTTPMedicationController) VerifyMedication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cmd := command.VerifyMedication{
		CommandID: id,
		Actor:     middleware.GetActorID(r.Context()),
	}

	if err := c.medicationService.VerifyMedication(r.Context(), cmd); err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendSuccess(w, r, map[string]interface{}{
		"id":      id,
		"message": "Medication verified successfully",
	})
}

// ChangeStatus handles PUT /medications/{id}/status
func (c *HTTPMedicationController) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var cmd command.ChangeMedicationStatus
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		middleware.HandleError(w, r, errors.NewValidationError("Invalid JSON format"))
		return
	}
	cmd.CommandID = id
	if cmd.Actor == "" {
		cmd.Actor = middleware.GetActorID(r.Context())
	}

	if err := c.medicationService.ChangeStatus(r.Context(), cmd); err != nil {
		middleware.HandleError(w, r, err)
		return
	}

	response.SendSuccess(w, r, map[string]interface{}{
		"id":      id,
		"status":  cmd.Status,
		"message": "Status changed successfully",
	})
}
