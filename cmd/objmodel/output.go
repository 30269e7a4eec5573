package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	jsoniter "github.com/json-iterator/go"

	"github.com/wippyai/objmodel/malloc"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB")).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	okStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func row(key string, value any) string {
	return keyStyle.Render(key) + valueStyle.Render(fmt.Sprint(value))
}

func statsBlock(title string, s malloc.Stats) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		helpStyle.Render(title),
		row("allocs", s.Allocs),
		row("reallocs", s.Reallocs),
		row("frees", s.Frees),
		row("failures", s.Failures),
		row("peak bytes", s.PeakBytes),
		row("live bytes", s.LiveBytes),
		row("live blocks", s.LiveBlocks),
	)
}

func renderReport(w io.Writer, rep *Report) error {
	leak := okStyle.Render("none")
	if rep.LiveObjects != 0 {
		leak = errorStyle.Render(fmt.Sprintf("%d objects still live", rep.LiveObjects))
	}

	summary := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("objmodel run"),
		"",
		row("allocator", rep.Allocator),
		row("workers", rep.Workers),
		row("iterations", rep.Iterations),
		row("blobs", rep.Blobs),
		row("bytes", rep.Bytes),
		row("duration", rep.Duration),
		row("handles", fmt.Sprintf("%d published, %d dropped", rep.Handles.Published, rep.Handles.Dropped)),
		keyStyle.Render("leaks")+leak,
	)
	stats := lipgloss.JoinHorizontal(lipgloss.Top,
		statsBlock("default allocator", rep.Default),
		"    ",
		statsBlock("scoped allocators", rep.Scoped),
	)

	var b strings.Builder
	b.WriteString(summary)
	b.WriteString("\n\n")
	b.WriteString(stats)
	b.WriteString("\n")
	if rep.Metrics != "" {
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("metrics"))
		b.WriteString("\n")
		b.WriteString(rep.Metrics)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
