package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"donna/internal/conflict"
	"donna/internal/models"
	"donna/internal/timewindow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const overlapping = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:a\r\nDTSTAMP:20250301T000000Z\r\nSUMMARY:Standup\r\nDTSTART:20250310T090000Z\r\nDTEND:20250310T100000Z\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:b\r\nDTSTAMP:20250301T000000Z\r\nSUMMARY:Review\r\nDTSTART:20250310T091500Z\r\nDTEND:20250310T100000Z\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestReadICSFilesAndDetect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.ics")
	require.NoError(t, os.WriteFile(path, []byte(overlapping), 0o644))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	events, err := readICSFiles(logger, []string{path}, time.UTC, timewindow.Window{})
	require.NoError(t, err)
	require.Len(t, events, 2)

	conflicts := conflict.NewDetector(logger).DetectAll(nil, events, time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC))
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictScheduling, conflicts[0].Type)

	var out bytes.Buffer
	printConflicts(&out, conflicts)
	assert.Contains(t, out.String(), "1 conflicts:")
	assert.Contains(t, out.String(), "schedule_a_b")
}

func TestReadICSFiles_Missing(t *testing.T) {
	_, err := readICSFiles(slog.New(slog.NewTextHandler(io.Discard, nil)), []string{"/nonexistent.ics"}, time.UTC, timewindow.Window{})
	assert.Error(t, err)
}

func TestPrintConflicts_None(t *testing.T) {
	var out bytes.Buffer
	printConflicts(&out, nil)
	assert.Equal(t, "No conflicts found.\n", out.String())
}
