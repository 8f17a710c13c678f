package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	models "redline/internal/domain/models/suggestion"
	"redline/internal/mirror"
)

const maxCell = 32

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printDisplayTable(w io.Writer, items []models.DisplaySuggestion) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRANGE\tTYPE\tPRIORITY\tVALID\tVISIBLE\tZ\tCHANGE")
	for _, s := range items {
		fmt.Fprintf(tw, "%s\t%d-%d\t%s\t%s\t%t\t%t\t%d\t%s\n",
			s.ID, s.StartOffset, s.EndOffset, s.Type, s.Priority,
			s.IsValid, s.IsVisible, s.ZIndex,
			truncate(s.TextToReplace)+" -> "+truncate(s.ReplaceWith),
		)
	}
	tw.Flush()
}

func printStats(w io.Writer, s mirror.Stats) {
	fmt.Fprintf(w, "active    %d\n", s.Active)
	fmt.Fprintf(w, "accepted  %d\n", s.Accepted)
	fmt.Fprintf(w, "rejected  %d\n", s.Rejected)
	fmt.Fprintf(w, "deleted   %d\n", s.Deleted)
	for _, t := range models.AllTypes {
		if n := s.ByType[t]; n > 0 {
			fmt.Fprintf(w, "  %-9s %d\n", t, n)
		}
	}
}

func truncate(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= maxCell {
		return s
	}
	return string(r[:maxCell-1]) + "…"
}
