package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wippyai/objmodel/iid"
)

type capability struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	Type string `json:"type"`
}

func capabilities() []capability {
	entries := iid.Entries()
	out := make([]capability, 0, len(entries))
	for _, e := range entries {
		out = append(out, capability{Name: e.Name, ID: e.ID.String(), Type: e.Type.String()})
	}
	return out
}

func newCapabilitiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "List registered capability identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			caps := capabilities()
			if a.flags.json {
				return writeJSON(a.out, caps)
			}
			return renderCapabilities(a.out, caps)
		},
	}
}

func renderCapabilities(w io.Writer, caps []capability) error {
	nameStyle := keyStyle.Width(0)
	for _, c := range caps {
		nameStyle = nameStyle.Width(max(nameStyle.GetWidth(), lipgloss.Width(c.Name)+2))
	}
	if _, err := fmt.Fprintln(w, titleStyle.Render("capabilities")); err != nil {
		return err
	}
	for _, c := range caps {
		line := nameStyle.Render(c.Name) + valueStyle.Render(c.ID) + "  " + helpStyle.Render(c.Type)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
