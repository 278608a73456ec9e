// Package formatting turns verification API records into view-ready
// structures: worklist rows, summary tables, dataset activity accordions and
// the dataset access checkbox model. Everything here is pure: no network
// access and inputs are never modified.
package formatting

import "encoding/json"

// Cell is a single piece of display content, either plain text or trusted HTML
type Cell struct {
	Value string
	HTML  bool
}

// Text returns a plain text cell
func Text(value string) Cell { return Cell{Value: value} }

// HTML returns a cell whose value is already escaped markup
func HTML(value string) Cell { return Cell{Value: value, HTML: true} }

// MarshalJSON encodes the cell as {"text": ...} or {"html": ...}
func (c Cell) MarshalJSON() ([]byte, error) {
	key := "text"
	if c.HTML {
		key = "html"
	}
	return json.Marshal(map[string]string{key: c.Value})
}

// SummaryRow is one key/value line of a case details table
type SummaryRow struct {
	Key     Cell       `json:"key"`
	Value   Cell       `json:"value"`
	Actions RowActions `json:"actions"`
}

// RowActions holds the optional action links of a summary row
type RowActions struct {
	Items []Cell `json:"items"`
}

// Activity is the dataset activity summary of an approved account
type Activity struct {
	DownloadCount      int            `json:"download_count"`
	OldestDownloadDate string         `json:"oldest_download_date,omitempty"`
	Datasets           []ActivityItem `json:"datasets"`
}

// ActivityItem is one dataset's accordion section
type ActivityItem struct {
	Heading Cell `json:"heading"`
	Summary Cell `json:"summary"`
	Content Cell `json:"content"`
}

// AccessGroup is a group of licence checkboxes for one dataset
type AccessGroup struct {
	Name    string         `json:"name"`
	Title   string         `json:"title"`
	Options []AccessOption `json:"options"`
}

// AccessOption is a single licence checkbox
type AccessOption struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Checked  bool   `json:"checked"`
	Disabled bool   `json:"disabled"`
}

// Selected returns the values of the checked options
func (g AccessGroup) Selected() []string {
	selected := make([]string, 0, len(g.Options))
	for _, opt := range g.Options {
		if opt.Checked {
			selected = append(selected, opt.Value)
		}
	}
	return selected
}

// Choice is a select/radio option
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}
