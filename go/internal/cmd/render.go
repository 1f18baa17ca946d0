package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mcdev12/matchday/go/internal/matchday"
	"github.com/mcdev12/matchday/go/internal/models"
)

const barWidth = 20

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func render(w io.Writer, format string, view matchday.View) error {
	if format == "json" {
		return writeJSON(w, view)
	}
	renderText(w, view)
	return nil
}

func renderText(w io.Writer, v matchday.View) {
	fmt.Fprintf(w, "Match day: Thursday %s (week %s)\n", v.EventLabel, v.Week)

	switch {
	case v.MyChoice == nil:
		fmt.Fprintln(w, "You: no answer yet (matchday join | matchday leave)")
	case *v.MyChoice:
		fmt.Fprintln(w, "You: playing")
	default:
		fmt.Fprintln(w, "You: not playing")
	}

	names := make([]string, len(v.Present))
	for i, p := range v.Present {
		names[i] = p.Name
	}
	fmt.Fprintf(w, "Present (%d): %s\n", len(v.Present), strings.Join(names, ", "))

	switch {
	case v.Draw != nil:
		renderDraw(w, v.Draw)
	case v.CanDraw():
		fmt.Fprintln(w, "Teams: ready to draw (matchday draw)")
	default:
		fmt.Fprintf(w, "Teams: not drawn yet, %d of %d players\n", len(v.Present), models.MinDrawPlayers)
	}

	if v.VotingOpen {
		fmt.Fprintln(w, "MVP voting: open")
	} else {
		fmt.Fprintln(w, "MVP voting: closed until Friday")
	}
	for _, c := range v.VoteCounts {
		if c.Count == 0 {
			continue
		}
		bar := strings.Repeat("#", int(c.Share*barWidth))
		fmt.Fprintf(w, "  %-12s %-*s %d\n", c.Name, barWidth, bar, c.Count)
	}
	if v.MVP != nil {
		fmt.Fprintf(w, "MVP: %s (%d votes)\n", v.MVP.Name, v.MVP.Count)
	}
	if v.MyVote != nil {
		fmt.Fprintf(w, "Your vote: %s\n", models.DisplayName(*v.MyVote))
	}
}

func renderDraw(w io.Writer, d *models.TeamDraw) {
	fmt.Fprintf(w, "Teams (drawn by %s):\n", d.CreatedBy)
	fmt.Fprintf(w, "  Team 1: %s\n", strings.Join(d.Team1, ", "))
	fmt.Fprintf(w, "  Team 2: %s\n", strings.Join(d.Team2, ", "))
}
