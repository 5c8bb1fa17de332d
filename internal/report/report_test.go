package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/errs"
	"github.com/JonMunkholm/sheetload/internal/filetype"
)

func TestRun(t *testing.T) {
	start := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	rep := &core.Report{
		BatchID:    "b-1",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		TotalFiles: 3,
		PerType: map[string]*core.TypeStats{
			"orders": {
				Type:            "orders",
				Strategy:        filetype.Replace,
				Table:           "orders",
				FilesCount:      2,
				SuccessfulFiles: 1,
				FailedFiles:     1,
				Errors:          []string{"/in/b.csv: Column \"amount\" has values that are not numbers"},
				RowsWritten:     12,
			},
		},
		Undetected: []core.FileFailure{{
			Path: "/in/mystery.csv",
			User: errs.MapError(errors.New("no matching file type for header")),
		}},
		Warnings: []string{"could not move /in/a.csv"},
	}

	var buf bytes.Buffer
	Run(&buf, rep)
	out := buf.String()

	assert.Contains(t, out, "sheetload run b-1")
	assert.Contains(t, out, "PARTIAL")
	assert.Contains(t, out, "3 file(s), 1 loaded, 2 failed, 1.5s")
	assert.Contains(t, out, "orders")
	assert.Contains(t, out, "/in/b.csv")
	assert.Contains(t, out, "mystery.csv")
	assert.Contains(t, out, "warning: could not move /in/a.csv")
}

func TestRun_Cancelled(t *testing.T) {
	var buf bytes.Buffer
	Run(&buf, &core.Report{BatchID: "b-2", Cancelled: true, Skipped: []string{"a.csv", "b.csv"}})

	assert.Contains(t, buf.String(), "CANCELLED")
	assert.Contains(t, buf.String(), "2 file(s) skipped after cancellation")
}

func TestPreview(t *testing.T) {
	p := core.Preview{
		OK:      false,
		Message: "Missing 1 of 2 column(s): amount",
		Type:    "orders",
		Actual:  []string{"Order ID", "Notes"},
		Mapped:  []string{"order_id", "Notes"},
		Missing: []string{"amount"},
		Extra:   []string{"Notes"},
	}

	var buf bytes.Buffer
	Preview(&buf, "/in/o.csv", p)
	out := buf.String()

	assert.Contains(t, out, "o.csv as orders")
	assert.Contains(t, out, "Missing 1 of 2 column(s): amount")
	assert.Contains(t, out, "order_id")
	assert.Contains(t, out, "(ignored)")
	assert.Contains(t, out, "(missing)")
}
