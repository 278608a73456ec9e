package formatting

import (
	"fmt"
	"html"
	"strings"

	"github.com/landreg/verification-server/internal/models"
)

var accountTypes = map[string]string{
	models.UserTypeOrganisationUK:       "UK Organisation",
	models.UserTypeOrganisationOverseas: "Overseas Organisation",
	models.UserTypePersonalUK:           "UK Personal",
	models.UserTypePersonalOverseas:     "Overseas Personal",
}

var statusClasses = map[string]string{
	models.StatusPending:    "status-pending",
	models.StatusInProgress: "status-in-progress",
	models.StatusApproved:   "status-approved",
	models.StatusDeclined:   "status-declined",
}

// FormatFileName classifies a downloaded file by its name
func FormatFileName(fileName string) string {
	switch {
	case strings.Contains(fileName, "COU"):
		return "Change only"
	case strings.Contains(fileName, "FULL"):
		return "Full dataset"
	case strings.Contains(fileName, "SAMPLE"):
		return "Sample dataset"
	default:
		return fileName
	}
}

// FormatAccountType returns the display name of the account's user type.
// Unknown types are returned unchanged.
func FormatAccountType(item *models.Case) string {
	userType := item.RegistrationData.UserType
	if label, ok := accountTypes[userType]; ok {
		return label
	}
	return userType
}

// FormatName joins title, first and last name, skipping empty parts
func FormatName(item *models.Case) string {
	reg := item.RegistrationData
	return joinNonEmpty(" ", reg.Title, reg.FirstName, reg.LastName)
}

// FormatAddress renders the address one line per part. The country is only
// shown for overseas personal accounts.
func FormatAddress(item *models.Case) string {
	reg := item.RegistrationData
	country := ""
	if reg.UserType == models.UserTypePersonalOverseas {
		country = reg.Country
	}

	var b strings.Builder
	for _, part := range []string{reg.AddressLine1, reg.AddressLine2, reg.City, reg.Postcode, country} {
		if part == "" {
			continue
		}
		b.WriteString(html.EscapeString(part))
		b.WriteString("<br>")
	}
	return b.String()
}

// FormatStatus renders the status badge. Unknown statuses use the pending style.
func FormatStatus(status string) string {
	class, ok := statusClasses[status]
	if !ok {
		class = statusClasses[models.StatusPending]
	}
	return fmt.Sprintf(`<span class="%s">%s</span>`, class, html.EscapeString(status))
}

// FormatContactable renders Yes/No with a link to change contact preferences
func FormatContactable(item *models.Case) string {
	text := "No"
	if item.RegistrationData.Contactable {
		text = "Yes"
	}
	return text + fmt.Sprintf(`<a href="%s" class="govuk-link govuk-summary-list__actions--inline">Change</a>`,
		contactPreferencesURL(item, false))
}

// FormatContactBy renders the preferred contact methods with a change link.
// It returns "" when the account has no preferences.
func FormatContactBy(item *models.Case) string {
	var prefs strings.Builder
	for _, pref := range item.RegistrationData.ContactPreferences {
		prefs.WriteString(html.EscapeString(capitalize(pref)))
		prefs.WriteString("<br>")
	}
	if prefs.Len() == 0 {
		return ""
	}
	return fmt.Sprintf(`<a href="%s" class="govuk-link govuk-summary-list__actions--inline">Change</a>`,
		contactPreferencesURL(item, true)) + prefs.String()
}

// FormatNoteMetadata renders "Added by <staff> on DD/MM/YYYY HH:MM:SS"
func FormatNoteMetadata(note models.Note) (string, error) {
	t, err := ParseSpaced(note.DateAdded)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Added by %s on %s", note.StaffID, t.Format("02/01/2006 15:04:05")), nil
}

// FormatDetails renders the "View details" link for a case
func FormatDetails(item *models.Case, forSearch bool) string {
	query := ""
	if forSearch {
		query = "?from=search"
	}
	return fmt.Sprintf(`<a class="govuk-link" href="/verification/worklist/%s%s">View details</a>`,
		html.EscapeString(item.CaseID.String()), query)
}

// FormatLock renders the lock indicator. It is empty unless the case is
// locked and still pending or in progress.
func FormatLock(item *models.Case, currentUser string) string {
	lockedTo := item.LockedTo()
	if item.StaffID == nil || !item.IsLockable() {
		return ""
	}

	colour := "red"
	label := html.EscapeString(lockedTo)
	if lockedTo == currentUser {
		colour = "green"
		label = "Locked to you"
	}

	return fmt.Sprintf(`<div class="pill-box pill-box-%s">
        <svg xmlns="http://www.w3.org/2000/svg" height="20" viewBox="0 0 24 24" fill="none"
            stroke="#ffffff" stroke-width="3" stroke-linecap="round" stroke-linejoin="round">
            <rect x="4" y="11" width="15.5" height="11" rx="2" ry="2"></rect>
            <path d="M7 11V7a5 5 0 0 1 10 0v4"></path>
        </svg>
        <span>%s</span>
    </div>`, colour, label)
}

func contactPreferencesURL(item *models.Case, contactBy bool) string {
	u := fmt.Sprintf("/verification/worklist/%s/contact_preferences", html.EscapeString(item.CaseID.String()))
	if contactBy {
		u += "?contact_by=true"
	}
	return u
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.TrimSpace(strings.Join(kept, sep))
}

// capitalize upper-cases the first letter and lower-cases the rest
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
