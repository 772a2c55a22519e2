package query

import (
	"context"
	"strings"

	"dosewise/internal/infrastructure/projection"
	"dosewise/pkg/errors"
)

// Queries
type GetMedication struct {
	CommandID string `json:"command_id"`
}

type ListPatientMedications struct {
	PatientID string `json:"patient_id"`
}

type SearchMedications struct {
	PatientID string `json:"patient_id,omitempty"`
	Name      string `json:"name,omitempty"`
}

// GetMedicationHandler handles medication retrieval from read model
type GetMedicationHandler struct {
	medicationProjection projection.MedicationProjection
}

func NewGetMedicationHandler(medicationProjection projection.MedicationProjection) *GetMedicationHandler {
	return &GetMedicationHandler{
		medicationProjection: medicationProjection,
	}
}

func (h *GetMedicationHandler) Handle(ctx context.Context, query GetMedication) (*projection.MedicationReadModel, error) {
	if strings.TrimSpace(query.CommandID) == "" {
		return nil, errors.NewValidationError("command ID is required")
	}

	med, err := h.medicationProjection.GetByID(ctx, query.CommandID)
	if err != nil {
		return nil, errors.NewNotFoundError("medication")
	}

	return med, nil
}

// ListPatientMedicationsHandler handles medication listing from read model
type ListPatientMedicationsHandler struct {
	medicationProjection projection.MedicationProjection
}

func NewListPatientMedicationsHandler(medicationProjection projection.MedicationProjection) *ListPatientMedicationsHandler {
	return &ListPatientMedicationsHandler{
		medicationProjection: medicationProjection,
	}
}

func (h *ListPatientMedicationsHandler) Handle(ctx context.Context, query ListPatientMedications) ([]*projection.MedicationReadModel, error) {
	if strings.TrimSpace(query.PatientID) == "" {
		return nil, errors.NewValidationError("patient ID is required")
	}

	meds, err := h.medicationProjection.ListByPatient(ctx, query.PatientID)
	if err != nil {
		return nil, errors.NewInternalError("failed to get medications")
	}

	return meds, nil
}

// SearchMedicationsHandler handles medication search from read model
type SearchMedicationsHandler struct {
	medicationProjection projection.MedicationProjection
}

func NewSearchMedicationsHandler(medicationProjection projection.MedicationProjection) *SearchMedicationsHandler {
	return &SearchMedicationsHandler{
		medicationProjection: medicationProjection,
	}
}

func (h *SearchMedicationsHandler) Handle(ctx context.Context, query SearchMedications) ([]*projection.MedicationReadModel, error) {
	meds, err := h.medicationProjection.Search(ctx, query.PatientID, query.Name)
	if err != nil {
		return nil, errors.NewInternalError("failed to search medications")
	}

	return meds, nil
}
