package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/target/paper-digest/internal/data"
	"github.com/target/paper-digest/internal/domain/model"
	"github.com/urfave/cli/v2"
	"github.com/xuri/excelize/v2"
)

const historySheet = "History"

var historyHeaders = []string{
	"Completed",
	"Title",
	"Summary",
	"Methodology",
	"Takeaways",
	"Language",
	"Extraction",
	"Owner",
	"URL",
	"Job ID",
}

func runExport(cmdCtx *commandContext, c *cli.Context) error {
	out := strings.TrimSpace(c.String("out"))
	if out == "" {
		return errors.New("--out is required")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx.Logger, db)

	jobs, err := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}).ListCompleted(ctx, model.JobListOptions{
		Owner: optionalString(c.String("owner")),
		Limit: c.Int("limit"),
	})
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	f, err := buildHistoryWorkbook(jobs)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			cmdCtx.Logger.Warn("close workbook failed", "error", cerr)
		}
	}()

	if err = f.SaveAs(out); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	return writef(cmdCtx.Out, "exported %d digest(s) to %s\n", len(jobs), out)
}

// buildHistoryWorkbook lays out one row per completed job. Jobs without a digest are skipped.
func buildHistoryWorkbook(jobs []*model.Job) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	for i, h := range historyHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(historySheet, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	row := 2
	for _, job := range jobs {
		if job.Digest == nil {
			continue
		}
		completed := ""
		if job.CompletedAt != nil {
			completed = job.CompletedAt.UTC().Format(time.RFC3339)
		}
		values := []any{
			completed,
			job.Digest.Title,
			job.Digest.Summary,
			job.Digest.Methodology,
			formatTakeaways(job.Digest.Takeaways),
			job.Language,
			string(job.ExtractionMethod),
			derefOr(job.Owner, ""),
			job.URL,
			job.ID,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(historySheet, cell, v); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
		}
		row++
	}

	styleHeader(f)
	_ = f.SetColWidth(historySheet, "A", "A", 22)
	_ = f.SetColWidth(historySheet, "B", "B", 40)
	_ = f.SetColWidth(historySheet, "C", "E", 80)
	_ = f.SetColWidth(historySheet, "I", "I", 50)
	return f, nil
}

func styleHeader(f *excelize.File) {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return
	}
	last, _ := excelize.CoordinatesToCellName(len(historyHeaders), 1)
	_ = f.SetCellStyle(historySheet, "A1", last, style)
}

func formatTakeaways(items []string) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, "• "+item)
	}
	return strings.Join(lines, "\n")
}

