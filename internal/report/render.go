package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/ecm-cli/internal/model"
	"github.com/sells-group/ecm-cli/internal/sheet"
)

var printer = message.NewPrinter(language.English)

// Render writes a human readable summary of rec to w.
func Render(w io.Writer, rec *model.Recommendation) error {
	q := rec.Query
	var b strings.Builder
	if q.Name != "" {
		printer.Fprintf(&b, "Query: %s\n", q.Name)
	}
	printer.Fprintf(&b, "Building type %d, vintage %d, climate zone %d\n",
		q.Context.BuildingType, q.Context.Vintage, q.Context.ClimateZone)
	printer.Fprintf(&b, "Objective: %s (%.4f)\n", q.Objective, rec.ObjectiveValue)
	printer.Fprintf(&b, "Budget: %.2f\n", q.Budget)
	printer.Fprintf(&b, "Payback limit: %.1f years (not yet implemented)\n", q.PaybackYears)
	printer.Fprintf(&b, "Chosen ECMs: %s\n", joinIDs(rec.ChosenECMs, ", "))
	printer.Fprintf(&b, "Total cost: %.2f\n", rec.TotalCost)
	printer.Fprintf(&b, "Total energy saving: %.4f%%\n", rec.TotalEnergySavingPct)
	printer.Fprintf(&b, "Total CO2 reduction: %.4f klbs\n", rec.TotalCO2Reduction)
	printer.Fprintf(&b, "Energy saved: %.2f of %.2f baseline\n", rec.EnergySaved, rec.BaselineEnergy)

	_, err := io.WriteString(w, b.String())
	return eris.Wrap(err, "report: render")
}

func joinIDs(ids []int, sep string) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, sep)
}

var runHeader = []string{
	"id", "name", "status", "building_type", "vintage", "climate_zone",
	"objective", "budget", "chosen_ecms", "objective_value", "total_cost",
	"total_energy_saving_pct", "total_co2_reduction_klbs", "energy_saved", "error",
}

// RunTable lays runs out as one spreadsheet row each. Unfinished and
// failed runs leave the result columns empty.
func RunTable(runs []*model.Run) sheet.Table {
	t := sheet.Table{Name: "Recommendations", Header: runHeader}
	for _, r := range runs {
		q := r.Query
		row := []any{
			r.ID, q.Name, string(r.Status),
			q.Context.BuildingType, q.Context.Vintage, q.Context.ClimateZone,
			string(q.Objective), q.Budget,
		}
		if res := r.Result; res != nil {
			row = append(row,
				joinIDs(res.ChosenECMs, ";"), res.ObjectiveValue, res.TotalCost,
				res.TotalEnergySavingPct, res.TotalCO2Reduction, res.EnergySaved,
			)
		} else {
			row = append(row, "", "", "", "", "", "")
		}
		row = append(row, r.Error)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// WriteXLSX exports runs to an XLSX workbook at path.
func WriteXLSX(path string, runs []*model.Run) error {
	return eris.Wrap(sheet.Write(path, RunTable(runs)), "report: export xlsx")
}
