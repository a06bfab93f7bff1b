package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/termwork/tasksync/internal/schema"
)

func TestTable_Aligns(t *testing.T) {
	DisableColor()

	var buf bytes.Buffer
	err := Table(&buf, []string{"ID", "STATUS", "OWNER"}, [][]string{
		{"7", RenderStatus(schema.StatusReserved), "ann"},
		{"1024", RenderStatus(schema.StatusInProgress)},
	})
	if err != nil {
		t.Fatalf("Table failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	col := strings.Index(lines[0], "STATUS")
	if strings.Index(lines[1], "Reserved") != col || strings.Index(lines[2], "InProgress") != col {
		t.Errorf("status column not aligned:\n%s", buf.String())
	}
}

func TestRenderHelpers_Plain(t *testing.T) {
	DisableColor()

	tests := []struct {
		got, want string
	}{
		{RenderStatus(schema.StatusCompleted), "Completed"},
		{RenderStatus("Mystery"), "Mystery"},
		{RenderRequestStatus(schema.RequestRejected), "REJECTED"},
		{RenderActionStatus(""), "-"},
		{RenderActionStatus(schema.ActionPending), "PENDING"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestSummary(t *testing.T) {
	DisableColor()

	if got := Summary("created", 2, "updated", 0, "skipped", 1); got != "created: 2, skipped: 1" {
		t.Errorf("Summary = %q", got)
	}
	if got := Summary("created", 0); got != "nothing to do" {
		t.Errorf("empty Summary = %q", got)
	}
}
