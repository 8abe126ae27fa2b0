package domain

import (
	"context"
	"strings"
	"time"
)

// ResidentTypeResident is the only type produced by invite enrollment.
const ResidentTypeResident = "RESIDENT"

// Resident is a person enrolled into a site.
// swagger:model Resident
type Resident struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	Name      string    `json:"name"`
	Document  string    `json:"document"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Photo     string    `json:"photo,omitempty"`
	Type      string    `json:"type"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ResidentFields are the client-supplied identity fields of an enrollment.
// There is no email field; it always comes from the invite token.
type ResidentFields struct {
	Name     string
	Document string
	Phone    string
}

// Normalize trims all fields in place.
func (f *ResidentFields) Normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Document = strings.TrimSpace(f.Document)
	f.Phone = strings.TrimSpace(f.Phone)
}

// Missing returns the names of required fields that are empty.
func (f ResidentFields) Missing() []string {
	var missing []string
	if strings.TrimSpace(f.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(f.Document) == "" {
		missing = append(missing, "document")
	}
	if strings.TrimSpace(f.Phone) == "" {
		missing = append(missing, "phone")
	}
	return missing
}

// NewResidentFromInvite builds the resident created by redeeming inv. Site and email are
// taken from the token, never from the fields.
func NewResidentFromInvite(inv *InviteToken, fields ResidentFields, photoRef string, createdAt time.Time) *Resident {
	return &Resident{
		SiteID:    inv.SiteID,
		Name:      fields.Name,
		Document:  fields.Document,
		Email:     inv.Email,
		Phone:     fields.Phone,
		Photo:     photoRef,
		Type:      ResidentTypeResident,
		Active:    true,
		CreatedAt: createdAt,
	}
}

// PhotoUpload is a raw photo submitted with an enrollment.
type PhotoUpload struct {
	Data        []byte
	ContentType string
}

// PhotoStore persists resident photos and returns an opaque reference.
type PhotoStore interface {
	Store(ctx context.Context, data []byte, contentType string) (ref string, err error)
	// Delete removes a photo returned by Store. Deleting a missing photo is not an error.
	Delete(ctx context.Context, ref string) error
}

// EnrollmentTx is the set of storage calls executed inside one enrollment transaction.
type EnrollmentTx interface {
	// GetTokenForUpdate locks and returns the PENDING, unexpired token, or ErrNotFound.
	GetTokenForUpdate(ctx context.Context, token string, now time.Time) (*InviteToken, error)
	CreateResident(ctx context.Context, r *Resident) error
	// SetTokenUsed flips the token from PENDING to USED and reports the affected rows.
	SetTokenUsed(ctx context.Context, tokenID string, usedAt time.Time) (int64, error)
}

// EnrollmentStore runs fn in a single transaction. A nil return from fn commits; any error rolls back.
type EnrollmentStore interface {
	WithinTx(ctx context.Context, fn func(tx EnrollmentTx) error) error
}

// EnrollmentService turns a valid invite token into a persisted resident.
type EnrollmentService interface {
	CompleteEnrollment(ctx context.Context, token string, fields ResidentFields, photo *PhotoUpload) (*Resident, error)
	Shutdown(ctx context.Context) error
}
