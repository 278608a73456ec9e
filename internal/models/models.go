// Package models defines the data structures used across the application.
// Case, dataset and licence types mirror the verification API's JSON payloads.
package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Case statuses as reported by the verification API
const (
	StatusPending    = "Pending"
	StatusInProgress = "In Progress"
	StatusApproved   = "Approved"
	StatusDeclined   = "Declined"
	StatusClosed     = "Closed"
)

// Account (user) types
const (
	UserTypePersonalUK           = "personal-uk"
	UserTypePersonalOverseas     = "personal-overseas"
	UserTypeOrganisationUK       = "organisation-uk"
	UserTypeOrganisationOverseas = "organisation-overseas"
)

// ID is an opaque identifier. The API encodes case ids as either JSON
// numbers or strings; both decode to the same textual form.
type ID string

// UnmarshalJSON accepts a JSON string, number or null
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Case is a single verification application / account record
type Case struct {
	CaseID           ID               `json:"case_id"`
	Status           string           `json:"status"`
	StaffID          *string          `json:"staff_id"` // lock holder, nil when unlocked
	DateAdded        string           `json:"date_added"`
	RegistrationData RegistrationData `json:"registration_data"`
	Notes            []Note           `json:"notes"`
}

// IsLockable reports whether the case status takes part in locking
func (c *Case) IsLockable() bool {
	return c.Status == StatusPending || c.Status == StatusInProgress
}

// LockedTo returns the lock holder or "" when the case is unlocked
func (c *Case) LockedTo() string {
	if c.StaffID == nil {
		return ""
	}
	return *c.StaffID
}

// RegistrationData holds the details captured when the account registered
type RegistrationData struct {
	UserType               string   `json:"user_type"`
	Title                  string   `json:"title"`
	FirstName              string   `json:"first_name"`
	LastName               string   `json:"last_name"`
	AddressLine1           string   `json:"address_line_1"`
	AddressLine2           string   `json:"address_line_2"`
	City                   string   `json:"city"`
	Postcode               string   `json:"postcode"`
	Country                string   `json:"country"`
	TelephoneNumber        string   `json:"telephone_number"`
	Email                  string   `json:"email"`
	Contactable            bool     `json:"contactable"`
	ContactPreferences     []string `json:"contact_preferences"`
	OrganisationName       string   `json:"organisation_name,omitempty"`
	OrganisationType       string   `json:"organisation_type,omitempty"`
	RegistrationNumber     string   `json:"registration_number,omitempty"`
	CountryOfIncorporation string   `json:"country_of_incorporation,omitempty"`
}

// Note is an append-only notepad entry on a case
type Note struct {
	NoteText  string `json:"note_text"`
	StaffID   string `json:"staff_id"`
	DateAdded string `json:"date_added"`
}

// DeclineReason is a reusable decline template
type DeclineReason struct {
	DeclineReason string `json:"decline_reason"`
	DeclineAdvice string `json:"decline_advice"`
}

// Licence is the agreement state of one licence within a dataset
type Licence struct {
	Agreed bool   `json:"agreed"`
	Title  string `json:"title"`
}

// DatasetAccess lists the licences of a dataset and whether the account agreed them
type DatasetAccess struct {
	Name     string             `json:"name"`
	Title    string             `json:"title"`
	Licences map[string]Licence `json:"licences"`
}

// LicenceUpdate is a single entry in an update_dataset_access payload
type LicenceUpdate struct {
	LicenceID string `json:"licence_id"`
	Agreed    bool   `json:"agreed"`
}

// DatasetAccessUpdate is the body of POST /case/{id}/update_dataset_access
type DatasetAccessUpdate struct {
	StaffID  string          `json:"staff_id"`
	Licences []LicenceUpdate `json:"licences"`
}

// Download is one file download by the account
type Download struct {
	Date string `json:"date"`
	File string `json:"file"`
}

// DatasetActivity is the licence and download history of one dataset
type DatasetActivity struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Title             string     `json:"title"`
	Private           bool       `json:"private"`
	LicenceAgreed     bool       `json:"licence_agreed"`
	LicenceAgreedDate *string    `json:"licence_agreed_date,omitempty"`
	DownloadHistory   []Download `json:"download_history"`
}

// SearchParams is a worklist search query. Empty fields are sent as null.
type SearchParams struct {
	FirstName        *string `json:"first_name"`
	LastName         *string `json:"last_name"`
	OrganisationName *string `json:"organisation_name"`
	Email            *string `json:"email"`
}

// ContactPreferencesUpdate is the body of POST /case/{id}/update for contact details
type ContactPreferencesUpdate struct {
	UpdatedData struct {
		Contactable        bool     `json:"contactable"`
		ContactPreferences []string `json:"contact_preferences"`
	} `json:"updated_data"`
	StaffID string `json:"staff_id"`
}

// ActivityLog represents a staff action recorded for accountability
type ActivityLog struct {
	ID          uuid.UUID `json:"id" db:"id"`
	CaseID      string    `json:"case_id" db:"case_id"`
	StaffID     string    `json:"staff_id" db:"staff_id"`
	Action      string    `json:"action" db:"action"`
	Description string    `json:"description" db:"description"`
	TraceID     string    `json:"trace_id,omitempty" db:"trace_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ActivityLogEntry is a staff action to be recorded
type ActivityLogEntry struct {
	CaseID      string `json:"case_id"`
	StaffID     string `json:"staff_id"`
	Action      string `json:"action"`
	Description string `json:"description"`
	TraceID     string `json:"trace_id,omitempty"`
}

// HealthStatus represents the server health check response
type HealthStatus struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	Uptime          string `json:"uptime,omitempty"`
	VerificationAPI string `json:"verification_api,omitempty"`
	Sessions        string `json:"sessions,omitempty"`
}
