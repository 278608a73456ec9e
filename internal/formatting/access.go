package formatting

import (
	"fmt"
	"sort"
	"strings"

	"github.com/landreg/verification-server/internal/models"
	"github.com/landreg/verification-server/internal/verification"
)

// BuildDatasetAccessGroups builds the checkbox groups of the dataset access
// form. Licences are sorted alphabetically with commercial licences last.
// Sample and direct licences, and every licence of the read-only dataset, are
// shown disabled.
func BuildDatasetAccessGroups(access []models.DatasetAccess) []AccessGroup {
	groups := make([]AccessGroup, 0, len(access))
	for _, dataset := range access {
		ids := make([]string, 0, len(dataset.Licences))
		for id := range dataset.Licences {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			ki, kj := licenceSortKey(ids[i]), licenceSortKey(ids[j])
			if ki != kj {
				return ki < kj
			}
			return ids[i] < ids[j]
		})

		group := AccessGroup{
			Name:    dataset.Name,
			Title:   dataset.Title,
			Options: make([]AccessOption, 0, len(ids)),
		}
		for _, id := range ids {
			licence := dataset.Licences[id]
			group.Options = append(group.Options, AccessOption{
				Value:    id,
				Label:    licence.Title,
				Checked:  licence.Agreed,
				Disabled: verification.IsReadOnlyLicence(id) || dataset.Name == verification.ReadOnlyDataset,
			})
		}
		groups = append(groups, group)
	}
	return groups
}

func licenceSortKey(id string) string {
	if strings.Contains(id, "_commercial") {
		return "z"
	}
	return id
}

// BuildDeclineTemplates turns the common decline reasons into select choices
func BuildDeclineTemplates(reasons []models.DeclineReason) []Choice {
	choices := make([]Choice, 0, len(reasons))
	for i, reason := range reasons {
		choices = append(choices, Choice{
			Value: fmt.Sprintf("template_%d", i),
			Label: reason.DeclineReason,
		})
	}
	return choices
}
