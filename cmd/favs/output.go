package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"favsync/internal/app"
	"favsync/internal/model"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// outputFormat reads --format, defaulting to a table on a terminal and JSON
// when piped.
func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return "table", nil
		}
		return "json", nil
	}
	switch format {
	case "table", "json", "yaml":
		return format, nil
	}
	return "", fmt.Errorf("unknown format %q (want table, json or yaml)", format)
}

// favoriteRow is the printed form of a favorite.
type favoriteRow struct {
	ItemID   string `json:"itemId" yaml:"itemId"`
	ID       string `json:"id" yaml:"id"`
	AddedAt  string `json:"addedAt" yaml:"addedAt"`
	Tier     string `json:"tier" yaml:"tier"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
}

func rows(records []model.FavoriteRecord) []favoriteRow {
	out := make([]favoriteRow, 0, len(records))
	for _, r := range records {
		row := favoriteRow{
			ItemID:  r.ItemID,
			ID:      r.ID,
			AddedAt: r.AddedAt.UTC().Format("2006-01-02T15:04:05Z"),
			Tier:    "remote",
		}
		if r.IsLocal() {
			row.Tier = "local"
		}
		if r.Snapshot != nil {
			row.Name, row.Category = r.Snapshot.Name, r.Snapshot.Category
		}
		out = append(out, row)
	}
	return out
}

func printFavorites(w io.Writer, format string, records []model.FavoriteRecord) error {
	data := rows(records)
	switch format {
	case "json":
		return writeJSON(w, data)
	case "yaml":
		return writeYAML(w, data)
	}

	if len(data) == 0 {
		fmt.Fprintln(w, "No favorites yet.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tADDED\tTIER\tNAME")
	for _, r := range data {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ItemID, r.AddedAt, r.Tier, r.Name)
	}
	return tw.Flush()
}

func printStatus(w io.Writer, format string, s app.Status) error {
	switch format {
	case "json":
		return writeJSON(w, s)
	case "yaml":
		return writeYAML(w, s)
	}

	connectivity := "online"
	if s.Offline {
		connectivity = "offline"
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Identity:\t%s\n", s.Identity)
	fmt.Fprintf(tw, "Connectivity:\t%s\n", connectivity)
	fmt.Fprintf(tw, "Favorites:\t%d\n", s.Favorites)
	fmt.Fprintf(tw, "Pending on device:\t%d\n", s.Pending)
	fmt.Fprintf(tw, "Remote:\t%s\n", s.Remote)
	fmt.Fprintf(tw, "Encrypted on device:\t%t\n", s.Encrypted)
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
