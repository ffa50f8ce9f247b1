package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/loqalabs/codecbench/internal/engine"
)

const (
	sheetSummary = "Summary"
	sheetNoises  = "Noises"
	sheetDetails = "Details"
)

// WriteXLSX writes a workbook with group, noise and per-record sheets.
func WriteXLSX(w io.Writer, res *engine.Results) error {
	sum := Summarize(res)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return err
	}
	for _, name := range []string{sheetNoises, sheetDetails} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	groupRows := make([][]any, 0, len(sum.Groups))
	for _, g := range sum.Groups {
		groupRows = append(groupRows, []any{
			g.Length, g.Payloads, g.TotalTests, g.SuccessfulTests, g.SuccessRate,
			g.Errors, g.MeanSimilarity, g.MedianSimilarity, g.P10Similarity,
		})
	}
	if err := writeTable(f, sheetSummary,
		[]string{"Length", "Payloads", "Total", "Successful", "Success rate", "Errors", "Mean similarity", "Median similarity", "P10 similarity"},
		groupRows); err != nil {
		return err
	}

	noiseRows := make([][]any, 0, len(sum.Noises))
	for _, n := range sum.Noises {
		noiseRows = append(noiseRows, []any{
			n.Name, n.Params, n.Difficulty, n.Attempts, n.Successes, n.Errors, n.SuccessRate, n.MeanSimilarity,
		})
	}
	if err := writeTable(f, sheetNoises,
		[]string{"Noise", "Parameters", "Difficulty", "Attempts", "Successes", "Errors", "Success rate", "Mean similarity"},
		noiseRows); err != nil {
		return err
	}

	var detailRows [][]any
	for _, g := range res.Groups {
		for _, t := range g.Trials {
			detailRows = append(detailRows, detailRow(g.Length, t.Index, "clean", "", "", t.Clean))
			for _, c := range t.Cases {
				detailRows = append(detailRows, detailRow(g.Length, t.Index, c.TestCase.Name, c.TestCase.ParamString, c.TestCase.Difficulty.String(), c.Record))
			}
		}
	}
	if err := writeTable(f, sheetDetails,
		[]string{"Length", "Payload", "Noise", "Parameters", "Difficulty", "Similarity", "Success", "Error"},
		detailRows); err != nil {
		return err
	}

	_, err := f.WriteTo(w)
	return err
}

func detailRow(length, payload int, name, params, difficulty string, rec engine.Record) []any {
	return []any{length, payload + 1, name, params, difficulty, rec.Similarity, rec.Success, rec.Err}
}

func writeTable(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("%s header: %w", sheet, err)
		}
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("%s row %d: %w", sheet, r+1, err)
			}
		}
	}
	return nil
}
