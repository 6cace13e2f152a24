package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"clinic-frontdesk-server/internal/models"
)

type appointmentRepository struct {
	db *gorm.DB
}

// NewAppointmentRepository returns the gorm backed AppointmentRepository.
func NewAppointmentRepository(db *gorm.DB) AppointmentRepository {
	return &appointmentRepository{db: db}
}

func (r *appointmentRepository) Atomically(ctx context.Context, scope string, fn func(repo AppointmentRepository) error) error {
	return atomically(ctx, r.db, scope, func(tx *gorm.DB) error {
		return fn(&appointmentRepository{db: tx})
	})
}

func (r *appointmentRepository) Create(ctx context.Context, a *models.Appointment) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(a).Error)
}

func (r *appointmentRepository) SaveIfUnchanged(ctx context.Context, a, prev *models.Appointment) error {
	res := r.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ? AND status = ? AND doctor_id = ? AND appointment_date = ? AND appointment_time = ? AND duration = ?",
			prev.ID, prev.Status, prev.DoctorID, prev.AppointmentDate, prev.AppointmentTime, prev.Duration).
		Updates(map[string]interface{}{
			"patient_id":       a.PatientID,
			"doctor_id":        a.DoctorID,
			"appointment_date": a.AppointmentDate,
			"appointment_time": a.AppointmentTime,
			"duration":         a.Duration,
			"status":           a.Status,
			"type":             a.Type,
			"reason":           a.Reason,
			"notes":            a.Notes,
			"diagnosis":        a.Diagnosis,
			"prescription":     a.Prescription,
			"is_priority":      a.IsPriority,
			"updated_at":       r.db.NowFunc(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrRaceLost
	}
	return nil
}

func (r *appointmentRepository) FindByID(ctx context.Context, id uint) (*models.Appointment, error) {
	var a models.Appointment
	err := r.db.WithContext(ctx).Preload("Patient").Preload("Doctor").First(&a, id).Error
	if err != nil {
		return nil, notFound(err, "appointment", id)
	}
	return &a, nil
}

func (r *appointmentRepository) Find(ctx context.Context, f AppointmentFilter) ([]models.Appointment, error) {
	q := r.db.WithContext(ctx).Model(&models.Appointment{})
	if f.PatientID != 0 {
		q = q.Where("patient_id = ?", f.PatientID)
	}
	if f.DoctorID != 0 {
		q = q.Where("doctor_id = ?", f.DoctorID)
	}
	if f.Date != "" {
		q = q.Where("appointment_date = ?", f.Date)
	}
	if f.From != "" {
		q = q.Where("appointment_date >= ?", f.From)
	}
	if f.To != "" {
		q = q.Where("appointment_date <= ?", f.To)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.ExcludeCancelled {
		q = q.Where("status <> ?", models.AppointmentCancelled)
	}
	if f.ExcludeID != 0 {
		q = q.Where("id <> ?", f.ExcludeID)
	}
	if f.Preload {
		q = q.Preload("Patient").Preload("Doctor")
	}

	var out []models.Appointment
	err := q.Order("appointment_date ASC").Order("appointment_time ASC").Order("id ASC").Find(&out).Error
	return out, translate(err)
}

func (r *appointmentRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Appointment{}, id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFound("appointment", id)
	}
	return nil
}

func (r *appointmentRepository) PatientExists(ctx context.Context, id uint) (bool, error) {
	return patientExists(ctx, r.db, id)
}

func (r *appointmentRepository) FindDoctor(ctx context.Context, id uint) (*models.Doctor, error) {
	var d models.Doctor
	if err := r.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, notFound(err, "doctor", id)
	}
	return &d, nil
}
