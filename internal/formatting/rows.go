package formatting

import (
	"strings"

	"github.com/landreg/verification-server/internal/models"
)

// Organisation types that carry a registration number
const (
	orgTypeCompany = "Company"
	orgTypeCharity = "Charity"
)

// BuildRow assembles a worklist or search results row:
// date, account type (search only), name, status, details link, lock.
func BuildRow(item *models.Case, forSearch bool, currentUser string) ([]Cell, error) {
	date, err := FormatDate(item.DateAdded)
	if err != nil {
		return nil, err
	}

	row := make([]Cell, 0, 6)
	row = append(row, Text(date))
	if forSearch {
		row = append(row, Text(FormatAccountType(item)))
	}
	row = append(row,
		Text(FormatName(item)),
		HTML(FormatStatus(item.Status)),
		HTML(FormatDetails(item, forSearch)),
		HTML(FormatLock(item, currentUser)),
	)
	return row, nil
}

// BuildRows builds a row for every item
func BuildRows(items []models.Case, forSearch bool, currentUser string) ([][]Cell, error) {
	rows := make([][]Cell, 0, len(items))
	for i := range items {
		row, err := BuildRow(&items[i], forSearch, currentUser)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// BuildDetailsTable assembles the case summary. Organisation rows depend on
// the account type.
func BuildDetailsTable(item *models.Case) []SummaryRow {
	reg := item.RegistrationData

	rows := []SummaryRow{
		summaryRow("Full Name", Text(FormatName(item))),
		summaryRow("Status", HTML(FormatStatus(item.Status))),
		summaryRow("Address", HTML(FormatAddress(item))),
		summaryRow("Telephone Number", Text(reg.TelephoneNumber)),
		summaryRow("Email", Text(reg.Email)),
		summaryRow("Contactable", HTML(FormatContactable(item))),
	}

	if contactBy := FormatContactBy(item); contactBy != "" {
		rows = append(rows, summaryRow("Contact by", HTML(contactBy)))
	}

	rows = append(rows, summaryRow("Account Type", Text(FormatAccountType(item))))

	if strings.Contains(reg.UserType, "organisation") {
		rows = append(rows, summaryRow("Organisation Name", Text(reg.OrganisationName)))
	}

	switch reg.UserType {
	case models.UserTypeOrganisationUK:
		rows = append(rows, summaryRow("Organisation Type", Text(reg.OrganisationType)))
		if reg.OrganisationType == orgTypeCompany || reg.OrganisationType == orgTypeCharity {
			rows = append(rows, summaryRow("Registration Number", Text(reg.RegistrationNumber)))
		}
	case models.UserTypeOrganisationOverseas:
		rows = append(rows, summaryRow("Country of Incorporation", Text(reg.CountryOfIncorporation)))
	}

	return rows
}

func summaryRow(key string, value Cell) SummaryRow {
	return SummaryRow{
		Key:     Text(key),
		Value:   value,
		Actions: RowActions{Items: []Cell{}},
	}
}
