package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/prmjagdish/schedula/internal/booking"
)

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patientId"`
	DoctorID  uuid.UUID `json:"doctorId"`
	SlotID    uuid.UUID `json:"slotId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CancelResponse struct {
	Message     string              `json:"message"`
	Appointment AppointmentResponse `json:"appointment"`
}

type DoctorSummaryResponse struct {
	ID              uuid.UUID `json:"id"`
	FullName        string    `json:"fullName"`
	ExperienceYears int       `json:"experienceYears"`
	ConsultationFee int       `json:"consultationFee"`
}

type SlotSummaryResponse struct {
	ID        uuid.UUID `json:"id"`
	Date      time.Time `json:"date"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	Doctor DoctorSummaryResponse `json:"doctor"`
	Slot   SlotSummaryResponse   `json:"slot"`
}

type SlotViewResponse struct {
	ID                uuid.UUID `json:"id"`
	Date              time.Time `json:"date"`
	StartTime         time.Time `json:"startTime"`
	EndTime           time.Time `json:"endTime"`
	MaxCapacity       int       `json:"maxCapacity"`
	ConfirmedCount    int       `json:"confirmedCount"`
	RemainingCapacity int       `json:"remainingCapacity"`
	Status            string    `json:"status"`
}

type SlotResponse struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctorId"`
	Date        time.Time `json:"date"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	MaxCapacity int       `json:"maxCapacity"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		SlotID:    a.SlotID,
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toAppointmentDetailResponse(d booking.AppointmentDetail) AppointmentDetailResponse {
	return AppointmentDetailResponse{
		AppointmentResponse: toAppointmentResponse(&d.Appointment),
		Doctor: DoctorSummaryResponse{
			ID:              d.Doctor.ID,
			FullName:        d.Doctor.FullName,
			ExperienceYears: d.Doctor.ExperienceYears,
			ConsultationFee: d.Doctor.ConsultationFee,
		},
		Slot: SlotSummaryResponse{
			ID:        d.Slot.ID,
			Date:      d.Slot.Date,
			StartTime: d.Slot.StartTime,
			EndTime:   d.Slot.EndTime,
		},
	}
}

func toSlotViewResponse(v booking.SlotView) SlotViewResponse {
	return SlotViewResponse{
		ID:                v.ID,
		Date:              v.Date,
		StartTime:         v.StartTime,
		EndTime:           v.EndTime,
		MaxCapacity:       v.MaxCapacity,
		ConfirmedCount:    v.ConfirmedCount,
		RemainingCapacity: v.RemainingCapacity,
		Status:            string(v.Status),
	}
}

func toSlotResponse(s *booking.Slot) SlotResponse {
	return SlotResponse{
		ID:          s.ID,
		DoctorID:    s.DoctorID,
		Date:        s.Date,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		MaxCapacity: s.MaxCapacity,
		CreatedAt:   s.CreatedAt,
	}
}
