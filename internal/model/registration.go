package model

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Regions lists the regional academies a member can register under, in display order.
var Regions = []string{
	"طنجة - تطوان - الحسيمة",
	"الشرق",
	"فاس - مكناس",
	"الرباط - سلا - القنيطرة",
	"بني ملال - خنيفرة",
	"الدار البيضاء - سطات",
	"مراكش - آسفي",
	"درعة - تافيلالت",
	"سوس - ماسة",
	"كلميم - واد نون",
	"العيون - الساقية الحمراء",
	"الداخلة - وادي الذهب",
}

// IsRegion reports whether name is one of the fixed regions.
func IsRegion(name string) bool {
	for _, r := range Regions {
		if r == name {
			return true
		}
	}
	return false
}

// RegistrationStore is the append-only member registration collection.
type RegistrationStore interface {
	Create(ctx context.Context, registration Registration) (Registration, error)
	Subscribe(ctx context.Context, identity Identity, query Query) (Subscription, error)
}

// Subscription is a live query over the registration collection.
// Every value sent on Snapshots is the complete result set, newest first.
// An error sent on Errors ends the subscription; Close must still be called.
type Subscription interface {
	Snapshots() <-chan []Registration
	Errors() <-chan error
	Close() error
}

// Query narrows a subscription. A zero Limit means no limit.
type Query struct {
	Limit int
}

// Registration represents a stored member registration.
type Registration struct {
	ID         uuid.UUID
	FullName   string
	CNIE       string
	Phone      string
	Email      string
	Region     string
	Province   string
	City       string
	Profession string
	CreatedAt  time.Time
	UID        string
	UserAgent  string
}

// RegistrationForm is the data a submitter types into the public form.
type RegistrationForm struct {
	FullName   string `json:"fullName" validate:"required"`
	CNIE       string `json:"cnie" validate:"required,cnie"`
	Phone      string `json:"phone" validate:"required,phone10"`
	Email      string `json:"email" validate:"required,email_shape"`
	Region     string `json:"region" validate:"required,region"`
	Province   string `json:"province" validate:"required"`
	City       string `json:"city" validate:"required"`
	Profession string `json:"profession" validate:"required"`
}

// Normalize trims surrounding whitespace from every field.
func (f *RegistrationForm) Normalize() {
	f.FullName = strings.TrimSpace(f.FullName)
	f.CNIE = strings.TrimSpace(f.CNIE)
	f.Phone = strings.TrimSpace(f.Phone)
	f.Email = strings.TrimSpace(f.Email)
	f.Region = strings.TrimSpace(f.Region)
	f.Province = strings.TrimSpace(f.Province)
	f.City = strings.TrimSpace(f.City)
	f.Profession = strings.TrimSpace(f.Profession)
}

// IsZero reports whether no field has been filled in.
func (f RegistrationForm) IsZero() bool {
	return f == RegistrationForm{}
}

// NewRegistration builds the record to persist for a validated form.
// ID and CreatedAt are left for the store to assign.
func NewRegistration(form RegistrationForm, uid, userAgent string) Registration {
	return Registration{
		FullName:   form.FullName,
		CNIE:       form.CNIE,
		Phone:      form.Phone,
		Email:      form.Email,
		Region:     form.Region,
		Province:   form.Province,
		City:       form.City,
		Profession: form.Profession,
		UID:        uid,
		UserAgent:  userAgent,
	}
}
