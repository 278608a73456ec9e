package formatting

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/landreg/verification-server/internal/models"
)

const (
	downloadTableHead = `<table class="govuk-table govuk-!-margin-top-3 govuk-!-margin-bottom-6">` +
		`<thead class="govuk-table__head"><tr class="govuk-table__row">` +
		`<th scope="col" class="govuk-table__header">Type of dataset</th>` +
		`<th scope="col" class="govuk-table__header">Date/time downloaded</th>` +
		`</tr></thead><tbody class="govuk-table__body">`
	downloadTableRow = `<tr class="govuk-table__row">` +
		`<td scope="row" class="govuk-table__cell">%s</td>` +
		`<td class="govuk-table__cell">%s</td>` +
		`</tr>`
	downloadTableFoot = `</tbody></table>`

	noDownloads = `<p class="govuk-body govuk-!-margin-top-3 govuk-!-margin-bottom-6">` +
		`This account has not downloaded any files for this dataset.</p>`
)

// mergedDataset is a dataset with its sample sibling folded in
type mergedDataset struct {
	models.DatasetActivity
	sampleLicenceAgreed bool
}

// BuildDatasetActivity summarises licence agreements and downloads per dataset.
//
// Downloads of a private dataset's "<name>_sample" sibling are listed under
// the parent and the sibling is dropped. Only datasets with an agreed licence
// or at least one download are shown. OldestDownloadDate falls back to now
// when there are datasets but no downloads at all.
func BuildDatasetActivity(datasets []models.DatasetActivity, now time.Time) (*Activity, error) {
	merged := mergeSamples(datasets)

	activity := &Activity{Datasets: make([]ActivityItem, 0, len(merged))}
	oldest := now

	for _, dataset := range merged {
		if !dataset.LicenceAgreed && len(dataset.DownloadHistory) == 0 {
			continue
		}

		summary, err := licenceSummary(dataset)
		if err != nil {
			return nil, err
		}

		content := noDownloads
		if len(dataset.DownloadHistory) > 0 {
			var b strings.Builder
			b.WriteString(downloadTableHead)
			for _, download := range dataset.DownloadHistory {
				activity.DownloadCount++

				downloadedAt, err := ParseISO(download.Date)
				if err != nil {
					return nil, err
				}
				if downloadedAt.Before(oldest) {
					oldest = downloadedAt
				}

				fmt.Fprintf(&b, downloadTableRow,
					html.EscapeString(FormatFileName(download.File)),
					downloadedAt.Format("02 January 2006 15:04"))
			}
			b.WriteString(downloadTableFoot)
			content = b.String()
		}

		activity.Datasets = append(activity.Datasets, ActivityItem{
			Heading: Text(dataset.Title),
			Summary: Text(summary),
			Content: HTML(content),
		})
	}

	if len(merged) > 0 {
		activity.OldestDownloadDate = textDate(oldest)
	}

	return activity, nil
}

func licenceSummary(dataset mergedDataset) (string, error) {
	switch {
	case dataset.LicenceAgreed && dataset.LicenceAgreedDate != nil:
		date, err := FormatTextDate(*dataset.LicenceAgreedDate)
		if err != nil {
			return "", err
		}
		return "Licence agreed on " + date, nil
	case dataset.LicenceAgreed:
		// restricted datasets are agreed offline so have no date
		return "Licence has been agreed", nil
	case dataset.sampleLicenceAgreed:
		return "Sample licence has been agreed", nil
	default:
		return "Licence has not been agreed", nil
	}
}

// mergeSamples folds each private dataset's sample sibling into it and
// removes the sibling. Download histories are copied, never appended in place.
func mergeSamples(datasets []models.DatasetActivity) []mergedDataset {
	index := make(map[string]int, len(datasets))
	for i, d := range datasets {
		if _, seen := index[d.Name]; !seen {
			index[d.Name] = i
		}
	}

	absorbed := make(map[int]bool)
	merged := make([]mergedDataset, 0, len(datasets))
	for i, d := range datasets {
		if absorbed[i] {
			continue
		}
		m := mergedDataset{DatasetActivity: d}
		m.DownloadHistory = append([]models.Download(nil), d.DownloadHistory...)

		if d.Private {
			if j, ok := index[d.Name+"_sample"]; ok && j != i && !absorbed[j] {
				sample := datasets[j]
				m.DownloadHistory = append(m.DownloadHistory, sample.DownloadHistory...)
				m.sampleLicenceAgreed = sample.LicenceAgreed
				absorbed[j] = true
			}
		}
		merged = append(merged, m)
	}

	// a sample listed before its parent was copied before the parent absorbed it
	kept := merged[:0]
	for _, m := range merged {
		if j, ok := index[m.Name]; ok && absorbed[j] {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}
