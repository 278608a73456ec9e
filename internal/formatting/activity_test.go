package formatting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landreg/verification-server/internal/models"
)

var evaluatedAt = time.Date(2020, time.June, 1, 9, 0, 0, 0, time.UTC)

func TestBuildDatasetActivityWithSample(t *testing.T) {
	datasets := []models.DatasetActivity{
		{
			Name:              "nps",
			Title:             "National Polygon Service",
			Private:           true,
			LicenceAgreed:     true,
			LicenceAgreedDate: strPtr("2018-08-27T12:12:12.000000"),
			DownloadHistory:   []models.Download{{Date: "2018-08-28T12:12:12.000000", File: "NSD_COU_2019_08.zip"}},
		},
		{
			Name:              "nps_sample",
			Title:             "National Polygon Service Sample",
			LicenceAgreed:     true,
			LicenceAgreedDate: strPtr("2018-07-27T12:12:12.000000"),
			DownloadHistory:   []models.Download{{Date: "2018-07-20T12:12:12.000000", File: "LR_NPS_SAMPLE.zip"}},
		},
	}

	activity, err := BuildDatasetActivity(datasets, evaluatedAt)
	require.NoError(t, err)

	assert.Equal(t, 2, activity.DownloadCount)
	assert.Equal(t, "20 July 2018", activity.OldestDownloadDate)
	require.Len(t, activity.Datasets, 1)
	assert.Equal(t, "National Polygon Service", activity.Datasets[0].Heading.Value)
	assert.Equal(t, "Licence agreed on 27 August 2018", activity.Datasets[0].Summary.Value)
	assert.Contains(t, activity.Datasets[0].Content.Value, "Change only")
	assert.Contains(t, activity.Datasets[0].Content.Value, "Sample dataset")
	assert.Contains(t, activity.Datasets[0].Content.Value, "28 August 2018 12:12")

	// input untouched
	assert.Len(t, datasets, 2)
	assert.Len(t, datasets[0].DownloadHistory, 1)
}

func TestBuildDatasetActivitySampleListedFirst(t *testing.T) {
	datasets := []models.DatasetActivity{
		{Name: "nps_sample", Title: "Sample", DownloadHistory: []models.Download{{Date: "2018-07-20T12:12:12.000000", File: "LR_NPS_SAMPLE.zip"}}},
		{Name: "nps", Title: "National Polygon Service", Private: true},
	}

	activity, err := BuildDatasetActivity(datasets, evaluatedAt)
	require.NoError(t, err)

	require.Len(t, activity.Datasets, 1)
	assert.Equal(t, "National Polygon Service", activity.Datasets[0].Heading.Value)
	assert.Equal(t, "Licence has not been agreed", activity.Datasets[0].Summary.Value)
	assert.Equal(t, 1, activity.DownloadCount)
}

func TestBuildDatasetActivityNoSample(t *testing.T) {
	datasets := []models.DatasetActivity{{
		Name:              "ccod",
		Title:             "UK companies that own property in England and Wales",
		Private:           true,
		LicenceAgreed:     true,
		LicenceAgreedDate: strPtr("2018-09-27T12:12:12.000000"),
		DownloadHistory:   []models.Download{{Date: "2018-09-28T12:12:12.000000", File: "CCOD_COU_2019_08.zip"}},
	}}

	activity, err := BuildDatasetActivity(datasets, evaluatedAt)
	require.NoError(t, err)

	assert.Equal(t, 1, activity.DownloadCount)
	assert.Equal(t, "28 September 2018", activity.OldestDownloadDate)
	assert.Equal(t, "Licence agreed on 27 September 2018", activity.Datasets[0].Summary.Value)
}

func TestBuildDatasetActivityLicenceSummaries(t *testing.T) {
	download := []models.Download{{Date: "2018-08-28T12:12:12.000000", File: "NSD_COU_2019_08.zip"}}

	tests := []struct {
		name     string
		datasets []models.DatasetActivity
		expected string
	}{
		{
			name:     "restricted licence agreed offline",
			datasets: []models.DatasetActivity{{Name: "nps", Private: true, LicenceAgreed: true, DownloadHistory: download}},
			expected: "Licence has been agreed",
		},
		{
			name:     "licence not agreed",
			datasets: []models.DatasetActivity{{Name: "nps", Private: true, DownloadHistory: download}},
			expected: "Licence has not been agreed",
		},
		{
			name: "only sample licence agreed",
			datasets: []models.DatasetActivity{
				{Name: "nps", Private: true},
				{Name: "nps_sample", LicenceAgreed: true, DownloadHistory: download},
			},
			expected: "Sample licence has been agreed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			activity, err := BuildDatasetActivity(tt.datasets, evaluatedAt)
			require.NoError(t, err)

			require.Len(t, activity.Datasets, 1)
			assert.Equal(t, tt.expected, activity.Datasets[0].Summary.Value)
			assert.Equal(t, "28 August 2018", activity.OldestDownloadDate)
		})
	}
}

func TestBuildDatasetActivityNoDownloadHistory(t *testing.T) {
	datasets := []models.DatasetActivity{{
		Name:              "ccod",
		Title:             "UK companies that own property in England and Wales",
		Private:           true,
		LicenceAgreed:     true,
		LicenceAgreedDate: strPtr("2018-09-27T12:12:12.000000"),
	}}

	activity, err := BuildDatasetActivity(datasets, evaluatedAt)
	require.NoError(t, err)

	assert.Equal(t, 0, activity.DownloadCount)
	require.Len(t, activity.Datasets, 1)
	assert.Contains(t, activity.Datasets[0].Content.Value, "This account has not downloaded any files for this dataset.")
	// no downloads at all: falls back to the evaluation time
	assert.Equal(t, "01 June 2020", activity.OldestDownloadDate)
}

func TestBuildDatasetActivitySkipsUntouchedDatasets(t *testing.T) {
	datasets := []models.DatasetActivity{{Name: "ccod", Title: "CCOD"}}

	activity, err := BuildDatasetActivity(datasets, evaluatedAt)
	require.NoError(t, err)

	assert.Empty(t, activity.Datasets)
}

func TestBuildDatasetActivityEmpty(t *testing.T) {
	activity, err := BuildDatasetActivity(nil, evaluatedAt)
	require.NoError(t, err)

	assert.Empty(t, activity.Datasets)
	assert.Empty(t, activity.OldestDownloadDate)
}

func TestBuildDatasetActivityRejectsBadDownloadDate(t *testing.T) {
	datasets := []models.DatasetActivity{{
		Name:            "ccod",
		LicenceAgreed:   true,
		DownloadHistory: []models.Download{{Date: "28/09/2018", File: "CCOD_FULL.zip"}},
	}}

	_, err := BuildDatasetActivity(datasets, evaluatedAt)
	assert.Error(t, err)
}

func TestBuildDatasetAccessGroups(t *testing.T) {
	access := []models.DatasetAccess{
		{
			Name:  "res_cov",
			Title: "Restrictive covenants",
			Licences: map[string]models.Licence{
				"res_cov_commercial":  {Agreed: false, Title: "Commercial"},
				"res_cov_direct":      {Agreed: true, Title: "Direct"},
				"res_cov_exploration": {Agreed: true, Title: "Exploration"},
			},
		},
		{
			Name:     "licenced",
			Licences: map[string]models.Licence{"ocod": {Agreed: true, Title: "OCOD"}},
		},
	}

	groups := BuildDatasetAccessGroups(access)

	require.Len(t, groups, 2)
	assert.Equal(t, []AccessOption{
		{Value: "res_cov_direct", Label: "Direct", Checked: true, Disabled: true},
		{Value: "res_cov_exploration", Label: "Exploration", Checked: true},
		{Value: "res_cov_commercial", Label: "Commercial"},
	}, groups[0].Options)
	assert.Equal(t, []string{"res_cov_direct", "res_cov_exploration"}, groups[0].Selected())
	assert.True(t, groups[1].Options[0].Disabled)
}

func TestBuildDeclineTemplates(t *testing.T) {
	choices := BuildDeclineTemplates([]models.DeclineReason{
		{DeclineReason: "Address not verified"},
		{DeclineReason: "Duplicate account"},
	})

	assert.Equal(t, []Choice{
		{Value: "template_0", Label: "Address not verified"},
		{Value: "template_1", Label: "Duplicate account"},
	}, choices)
}
