// Package report writes resolution results to an XLSX workbook and reads
// decision answers back from it.
package report

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/bimattr/internal/attr"
	"github.com/sells-group/bimattr/internal/element"
	"github.com/sells-group/bimattr/internal/resolve"
	"github.com/sells-group/bimattr/internal/units"
)

// Sheet names.
const (
	SummarySheet   = "Summary"
	DecisionsSheet = "Decisions"
)

var decisionHeader = []string{"Key", "Question", "Unit", "Skippable", "Answer"}

// Write saves a workbook with a summary sheet, one sheet per entity type and
// a sheet of open decisions whose Answer column can be filled in and read
// back with ReadAnswers.
func Write(path string, elements []*element.Element, rep *resolve.Report) error {
	f := xlsx.NewFile()

	if err := writeSummary(f, rep); err != nil {
		return err
	}

	byType := make(map[string][]*element.Element)
	var order []string
	for _, e := range elements {
		if _, ok := byType[e.TypeName()]; !ok {
			order = append(order, e.TypeName())
		}
		byType[e.TypeName()] = append(byType[e.TypeName()], e)
	}
	for _, name := range order {
		if err := writeType(f, name, byType[name]); err != nil {
			return err
		}
	}

	if err := writeDecisions(f, elements); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func writeSummary(f *xlsx.File, rep *resolve.Report) error {
	sheet, err := f.AddSheet(SummarySheet)
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	if rep == nil {
		return nil
	}
	addRow(sheet, "Entities", fmt.Sprint(rep.Entities))
	addRow(sheet, "Fields", fmt.Sprint(rep.Fields))
	for _, st := range []attr.Status{attr.StatusAvailable, attr.StatusRequested, attr.StatusNotAvailable, attr.StatusUnknown} {
		addRow(sheet, st.String(), fmt.Sprint(rep.ByStatus[st]))
	}
	addRow(sheet, "Decisions answered", fmt.Sprint(rep.Decisions.Answered))
	addRow(sheet, "Decisions skipped", fmt.Sprint(rep.Decisions.Skipped))
	addRow(sheet, "Decisions open", fmt.Sprint(rep.Decisions.Open))
	if len(rep.UnknownTools) > 0 {
		addRow(sheet, "Unknown tools", strings.Join(rep.UnknownTools, ", "))
	}
	return nil
}

func writeType(f *xlsx.File, typeName string, elements []*element.Element) error {
	sheet, err := f.AddSheet(typeName)
	if err != nil {
		return eris.Wrapf(err, "report: add sheet %s", typeName)
	}
	attrs := elements[0].Attributes()
	header := []string{"GUID", "Name"}
	for _, field := range attrs.Fields() {
		d, err := attrs.Type().Descriptor(field)
		if err != nil {
			return err
		}
		if u := d.Unit(); !u.IsZero() {
			header = append(header, fmt.Sprintf("%s [%s]", field, u.Symbol))
			continue
		}
		header = append(header, field)
	}
	addRow(sheet, header...)

	for _, e := range elements {
		cells := []string{e.GUID(), e.Name()}
		for _, field := range e.Attributes().Fields() {
			rec, err := e.Attributes().Record(field)
			if err != nil {
				return err
			}
			cells = append(cells, Cell(rec))
		}
		addRow(sheet, cells...)
	}
	return nil
}

// Cell renders a record for a report cell: the magnitude of available
// values, the status otherwise.
func Cell(rec attr.Record) string {
	if rec.Status != attr.StatusAvailable {
		return rec.Status.String()
	}
	switch v := rec.Value.(type) {
	case nil:
		return ""
	case units.Quantity:
		return fmt.Sprint(v.Value)
	case *units.Quantity:
		return fmt.Sprint(v.Value)
	default:
		return fmt.Sprint(v)
	}
}

func writeDecisions(f *xlsx.File, elements []*element.Element) error {
	sheet, err := f.AddSheet(DecisionsSheet)
	if err != nil {
		return eris.Wrap(err, "report: add decisions sheet")
	}
	addRow(sheet, decisionHeader...)
	for _, d := range resolve.Pending(elements) {
		if d.Settled() {
			continue
		}
		skippable := "no"
		if d.AllowsSkip() {
			skippable = "yes"
		}
		addRow(sheet, d.Key(), d.Question(), d.Unit().Symbol, skippable, "")
	}
	return nil
}

// ReadAnswers reads the Decisions sheet of a workbook written by Write.
// Rows with an empty Answer are left out; the literal answer "skip" maps to
// nil, which skips the decision.
func ReadAnswers(path string) (map[string]any, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "report: open workbook")
	}
	sheet, ok := f.Sheet[DecisionsSheet]
	if !ok {
		return nil, eris.Errorf("report: sheet %q not found", DecisionsSheet)
	}

	answers := make(map[string]any)
	for i, row := range sheet.Rows {
		if i == 0 {
			continue
		}
		cells := rowToStrings(row)
		if len(cells) < len(decisionHeader) {
			continue
		}
		key, answer := strings.TrimSpace(cells[0]), strings.TrimSpace(cells[4])
		if key == "" || answer == "" {
			continue
		}
		if strings.EqualFold(answer, "skip") {
			answers[key] = nil
			continue
		}
		answers[key] = answer
	}
	return answers, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
