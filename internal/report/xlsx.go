package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/pharmacy-harvester/internal/reconcile"
)

var pharmacyHeader = []string{
	"City", "Action", "Match", "Name", "Lat", "Lng", "Address", "Phone",
	"Website", "Google Place ID", "Reliability", "Requires Review",
}

var cityHeader = []string{"City", "Name", "Online", "Created", "Updated", "Errors", "Seconds", "Message"}

// Workbook accumulates bootstrap rows for an XLSX export.
type Workbook struct {
	file       *xlsx.File
	pharmacies *xlsx.Sheet
	cities     *xlsx.Sheet
}

// NewWorkbook creates a workbook with the pharmacy and city sheets.
func NewWorkbook() (*Workbook, error) {
	f := xlsx.NewFile()
	ph, err := f.AddSheet("Pharmacies")
	if err != nil {
		return nil, eris.Wrap(err, "report: add pharmacies sheet")
	}
	cs, err := f.AddSheet("Cities")
	if err != nil {
		return nil, eris.Wrap(err, "report: add cities sheet")
	}
	addStrings(ph.AddRow(), pharmacyHeader...)
	addStrings(cs.AddRow(), cityHeader...)
	return &Workbook{file: f, pharmacies: ph, cities: cs}, nil
}

// AddActions appends one row per non-error action.
func (w *Workbook) AddActions(slug string, actions []reconcile.Action) {
	for _, a := range actions {
		if a.Action == reconcile.ActionError {
			continue
		}
		row := w.pharmacies.AddRow()
		addStrings(row, slug, a.Action, a.MatchMethod, a.Name)
		row.AddCell().SetFloat(a.Lat)
		row.AddCell().SetFloat(a.Lng)
		addStrings(row, a.Address, a.Phone, a.Website, a.ExternalID)
		row.AddCell().SetInt(a.Reliability)
		row.AddCell().SetBool(a.RequiresReview)
	}
}

// AddCity appends the city summary row.
func (w *Workbook) AddCity(c CitySummary) {
	row := w.cities.AddRow()
	addStrings(row, c.Slug, c.Name)
	for _, n := range []int{c.Online, c.Created, c.Updated, c.Errors, int(c.Duration.Seconds())} {
		row.AddCell().SetInt(n)
	}
	addStrings(row, c.Message)
}

// Save writes the workbook to path.
func (w *Workbook) Save(path string) error {
	return eris.Wrapf(w.file.Save(path), "report: save %s", path)
}

func addStrings(row *xlsx.Row, vals ...string) {
	for _, v := range vals {
		row.AddCell().SetString(v)
	}
}
