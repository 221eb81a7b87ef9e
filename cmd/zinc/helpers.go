package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olivier-w/zinc/internal/ipc"
	"github.com/olivier-w/zinc/internal/task"
)

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(value string, max int) string {
	if max <= 3 || len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}

func displayTitle(t ipc.TaskInfo) string {
	if strings.TrimSpace(t.Title) != "" {
		return t.Title
	}
	return t.Source
}

func formatPercent(value float64) string {
	if value <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", value)
}

func formatRelativeTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	elapsed := time.Since(ts)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	default:
		return ts.Local().Format("2006-01-02 15:04")
	}
}

func statusKindForTask(status string) statusKind {
	switch task.Status(status) {
	case task.StatusCompleted:
		return statusOK
	case task.StatusError:
		return statusError
	case task.StatusCancelled:
		return statusWarn
	default:
		return statusInfo
	}
}
