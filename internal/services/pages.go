package services

import (
	"github.com/landreg/verification-server/internal/formatting"
	"github.com/landreg/verification-server/internal/models"
)

// Outcome is the result of a state-changing action: where to send the
// browser next and the message queued for it, if any.
type Outcome struct {
	Redirect string `json:"redirect"`
	Flash    string `json:"flash,omitempty"`
}

// WorklistPage lists every case awaiting attention
type WorklistPage struct {
	Items   [][]formatting.Cell `json:"worklist_items"`
	Flashes []string            `json:"flashes"`
}

// NoteView is a notepad entry ready for display
type NoteView struct {
	Text     string `json:"text"`
	MetaData string `json:"meta_data"`
}

// DeclineForm carries the reusable decline reasons. Choice values index Reasons.
type DeclineForm struct {
	Templates []formatting.Choice    `json:"templates"`
	Reasons   []models.DeclineReason `json:"reasons"`
}

// CaseForms lists the forms offered on a case page
type CaseForms struct {
	Note    bool                     `json:"note"`
	Decline *DeclineForm             `json:"decline,omitempty"`
	Close   bool                     `json:"close"`
	Access  []formatting.AccessGroup `json:"access,omitempty"`
}

// CasePage is a single application or account
type CasePage struct {
	ID          string                  `json:"id"`
	Status      string                  `json:"status"`
	Info        []formatting.SummaryRow `json:"info"`
	Notes       []NoteView              `json:"notes"`
	FromSearch  bool                    `json:"search"`
	LockedTo    string                  `json:"lock,omitempty"`
	AccountName string                  `json:"account_name,omitempty"`
	Forms       CaseForms               `json:"forms"`
	Activity    *formatting.Activity    `json:"activity,omitempty"`
	Flashes     []string                `json:"flashes"`
}

// SearchPage holds the results of the current or cached search
type SearchPage struct {
	Params      *models.SearchParams `json:"params,omitempty"`
	Items       [][]formatting.Cell  `json:"search_items"`
	HasHitLimit bool                 `json:"has_hit_limit"`
	NewSearch   bool                 `json:"new_search"`
	Flashes     []string             `json:"flashes"`
}

// ContactPreferencesPage is the contact preferences form for a case
type ContactPreferencesPage struct {
	ItemID             string              `json:"item_id"`
	Contactable        string              `json:"contactable"`
	ContactPreferences []string            `json:"contact_preferences"`
	Choices            []formatting.Choice `json:"choices"`
	Errors             map[string]string   `json:"errors,omitempty"`
}
