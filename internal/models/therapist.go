package models

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	TherapistDbName  = "serenity"
	TherapistColName = "therapists"
)

// ErrNoTherapist is returned by lookups that matched no document.
var ErrNoTherapist = errors.New("therapist not found")

type DayAvailability struct {
	Day   string   `bson:"day" json:"day"`
	Slots []string `bson:"slots" json:"slots"`
}

type Therapist struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name            string             `bson:"name" json:"name" validate:"required"`
	Email           string             `bson:"email" json:"email" validate:"required,email"`
	Phone           string             `bson:"phone" json:"phone" validate:"required"`
	Specialty       string             `bson:"specialty" json:"specialty" validate:"required"`
	ExperienceYears int                `bson:"experience_years" json:"experience_years"`
	Bio             string             `bson:"bio,omitempty" json:"bio,omitempty"`
	Qualifications  []string           `bson:"qualifications,omitempty" json:"qualifications,omitempty"`
	Languages       []string           `bson:"languages,omitempty" json:"languages,omitempty"`
	Availability    []DayAvailability  `bson:"availability" json:"availability"`
	PricePerSession float64            `bson:"price_per_session" json:"price_per_session" validate:"required,gt=0"`
	ImageURL        string             `bson:"image_url,omitempty" json:"image_url,omitempty"`
	Verified        bool               `bson:"verified" json:"verified"`
	Rating          float64            `bson:"rating,omitempty" json:"rating,omitempty"`
	ReviewCount     int                `bson:"review_count,omitempty" json:"review_count,omitempty"`
	CreatedAt       time.Time          `bson:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt       time.Time          `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// SlotsForDay returns the configured slot labels for a weekday name
// ("Monday", "Tuesday", ...), or nil if the therapist does not work that day.
func (t *Therapist) SlotsForDay(day string) []string {
	for _, avail := range t.Availability {
		if avail.Day == day {
			return avail.Slots
		}
	}
	return nil
}

type TherapistRepo interface {
	GetTherapistByID(ctx context.Context, id primitive.ObjectID) (*Therapist, error)
	ListTherapists(ctx context.Context, offset, limit int) ([]*Therapist, int64, error)
}
