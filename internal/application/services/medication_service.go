package services

import (
	"context"

	"dosewise/internal/application/command"
	"dosewise/internal/application/query"
	"dosewise/internal/domain/aggregate"
	"dosewise/internal/infrastructure/projection"
)

// MedicationService orchestrates medication command operations
type MedicationService struct {
	// Command handlers (using Unit of Work)
	createMedicationHandler *command.CreateMedicationWithUoWHandler
	updateScheduleHandler   *command.UpdateMedicationScheduleWithUoWHandler
	changeStatusHandler     *command.ChangeMedicationStatusWithUoWHandler
	verifyHandler           *command.VerifyMedicationWithUoWHandler

	// Query handlers
	getMedicationHandler     *query.GetMedicationHandler
	listMedicationsHandler   *query.ListPatientMedicationsHandler
	searchMedicationsHandler *query.SearchMedicationsHandler
}

func NewMedicationService(
	createMedicationHandler *command.CreateMedicationWithUoWHandler,
	updateScheduleHandler *command.UpdateMedicationScheduleWithUoWHandler,
	changeStatusHandler *command.ChangeMedicationStatusWithUoWHandler,
	verifyHandler *command.VerifyMedicationWithUoWHandler,
	getMedicationHandler *query.GetMedicationHandler,
	listMedicationsHandler *query.ListPatientMedicationsHandler,
	searchMedicationsHandler *query.SearchMedicationsHandler,
) *MedicationService {
	return &MedicationService{
		createMedicationHandler:  createMedicationHandler,
		updateScheduleHandler:    updateScheduleHandler,
		changeStatusHandler:      changeStatusHandler,
		verifyHandler:            verifyHandler,
		getMedicationHandler:     getMedicationHandler,
		listMedicationsHandler:   listMedicationsHandler,
		searchMedicationsHandler: searchMedicationsHandler,
	}
}

// Command operations
func (s *MedicationService) CreateMedication(ctx context.Context, cmd command.CreateMedication) (*aggregate.MedicationCommand, error) {
	return s.createMedicationHandler.Handle(ctx, &cmd)
}

func (s *MedicationService) UpdateSchedule(ctx context.Context, cmd command.UpdateMedicationSchedule) error {
	return s.updateScheduleHandler.Handle(ctx, &cmd)
}

func (s *MedicationService) ChangeStatus(ctx context.Context, cmd command.ChangeMedicationStatus) error {
	return s.changeStatusHandler.Handle(ctx, &cmd)
}

func (s *MedicationService) VerifyMedication(ctx context.Context, cmd command.VerifyMedication) error {
	return s.verifyHandler.Handle(ctx, &cmd)
}

// Query operations
func (s *MedicationService) GetMedication(ctx context.Context, query query.GetMedication) (*projection.MedicationReadModel, error) {
	return s.getMedicationHandler.Handle(ctx, query)
}

func (s *MedicationService) ListMedications(ctx context.Context, query query.ListPatientMedications) ([]*projection.MedicationReadModel, error) {
	return s.listMedicationsHandler.Handle(ctx, query)
}

func (s *MedicationService) SearchMedications(ctx context.Context, query query.SearchMedications) ([]*projection.MedicationReadModel, error) {
	return s.searchMedicationsHandler.Handle(ctx, query)
}
