package verification

import (
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/landreg/verification-server/internal/models"
)

// ReadOnlyDataset is the dataset category whose licences are never editable by staff
const ReadOnlyDataset = "licenced"

// DiffLicences returns the minimal set of licence changes between the current
// access state and a form submission where each dataset name maps to the
// licence ids that were checked. Unchecked checkboxes are absent from a form
// submission, so every licence in current is considered.
func DiffLicences(current []models.DatasetAccess, updated url.Values) []models.LicenceUpdate {
	changes := make([]models.LicenceUpdate, 0)
	for _, dataset := range current {
		selected := updated[dataset.Name]
		for _, licenceID := range sortedLicenceIDs(dataset.Licences) {
			requested := slices.Contains(selected, licenceID)
			if requested != dataset.Licences[licenceID].Agreed {
				changes = append(changes, models.LicenceUpdate{LicenceID: licenceID, Agreed: requested})
			}
		}
	}
	return changes
}

// IsReadOnlyLicence reports whether a licence is a sample or direct variant.
// Those are displayed but cannot be changed through the access form.
func IsReadOnlyLicence(licenceID string) bool {
	return strings.Contains(licenceID, "_sample") || strings.Contains(licenceID, "_direct")
}

// FilterEditable returns a copy of access without read-only licences and with
// the read-only dataset emptied. The input is not modified.
func FilterEditable(access []models.DatasetAccess) []models.DatasetAccess {
	filtered := make([]models.DatasetAccess, 0, len(access))
	for _, dataset := range access {
		licences := make(map[string]models.Licence, len(dataset.Licences))
		if dataset.Name != ReadOnlyDataset {
			for id, licence := range dataset.Licences {
				if !IsReadOnlyLicence(id) {
					licences[id] = licence
				}
			}
		}
		filtered = append(filtered, models.DatasetAccess{
			Name:     dataset.Name,
			Title:    dataset.Title,
			Licences: licences,
		})
	}
	return filtered
}

func sortedLicenceIDs(licences map[string]models.Licence) []string {
	ids := make([]string, 0, len(licences))
	for id := range licences {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
