package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/serenitycare/server/internal/helpers"
	"github.com/serenitycare/server/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TherapistService struct {
	therapists models.TherapistRepo
	bookings   models.BookingRepo
}

func NewTherapistService(therapists models.TherapistRepo, bookings models.BookingRepo) *TherapistService {
	return &TherapistService{
		therapists: therapists,
		bookings:   bookings,
	}
}

func (ts *TherapistService) GetTherapist(ctx context.Context, id string) (*models.Therapist, error) {
	therapistID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrTherapistNotFound
	}
	therapist, err := ts.therapists.GetTherapistByID(ctx, therapistID)
	if err != nil {
		if errors.Is(err, models.ErrNoTherapist) {
			return nil, ErrTherapistNotFound
		}
		return nil, err
	}
	return therapist, nil
}

func (ts *TherapistService) ListTherapists(ctx context.Context, page, limit int) ([]*models.Therapist, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return ts.therapists.ListTherapists(ctx, (page-1)*limit, limit)
}

type SlotAvailability struct {
	TherapistName   string   `json:"therapist_name"`
	Date            string   `json:"date"`
	PricePerSession float64  `json:"price_per_session"`
	AvailableSlots  []string `json:"available_slots"`
}

// AvailableSlots returns the therapist's configured slots for the day minus
// the ones held by PENDING or PAID bookings.
func (ts *TherapistService) AvailableSlots(ctx context.Context, therapistID, date string) (*SlotAvailability, error) {
	therapist, err := ts.GetTherapist(ctx, therapistID)
	if err != nil {
		return nil, err
	}
	day, err := helpers.ParseDay(date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %w", err)
	}

	result := &SlotAvailability{
		TherapistName:   therapist.Name,
		Date:            day.Format(helpers.DateLayout),
		PricePerSession: therapist.PricePerSession,
		AvailableSlots:  []string{},
	}

	configured := therapist.SlotsForDay(day.Weekday().String())
	if len(configured) == 0 {
		return result, nil
	}

	booked, err := ts.bookings.BookedSlots(ctx, therapist.ID, day)
	if err != nil {
		return nil, err
	}

	taken := make(map[string]bool, len(booked))
	for _, slot := range booked {
		taken[slot] = true
	}
	for _, slot := range configured {
		if !taken[slot] {
			result.AvailableSlots = append(result.AvailableSlots, slot)
		}
	}

	return result, nil
}
