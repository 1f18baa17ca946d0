package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/mcdev12/matchday/go/internal/config"
	"github.com/mcdev12/matchday/go/internal/models"
	"github.com/mcdev12/matchday/go/internal/store"
	"github.com/mcdev12/matchday/go/internal/store/pgstore"
	"github.com/mcdev12/matchday/go/internal/week"
)

// Entry mirrors one element of the roster JSON file.
type Entry struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	Participates *bool  `json:"participates"` // defaults to true
}

type summary struct {
	total, written, errs int
}

func loadRoster(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read JSON: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return entries, nil
}

// seed replaces each entry's answer for key, the same way the client does.
func seed(ctx context.Context, records store.Records, key week.Key, entries []Entry) summary {
	s := summary{total: len(entries)}
	for _, e := range entries {
		if e.UserID == "" || e.Email == "" {
			fmt.Fprintf(os.Stderr, "skipping entry without user_id or email: %+v\n", e)
			s.errs++
			continue
		}
		p := models.Participation{
			UserID:       e.UserID,
			UserEmail:    e.Email,
			WeekDate:     key.String(),
			Participates: e.Participates == nil || *e.Participates,
		}
		match := store.Filter{"user_id": e.UserID, "week_date": key.String()}
		if err := records.Delete(ctx, store.TableParticipation, match); err != nil {
			fmt.Fprintf(os.Stderr, "error clearing %s: %v\n", e.UserID, err)
			s.errs++
			continue
		}
		if err := records.Insert(ctx, store.TableParticipation, p.Record()); err != nil {
			fmt.Fprintf(os.Stderr, "error inserting %s: %v\n", e.UserID, err)
			s.errs++
			continue
		}
		s.written++
	}
	return s
}

// loadEnv reads .env files into the environment; a missing file only warns.
func loadEnv(w io.Writer, files ...string) {
	if err := godotenv.Load(files...); err != nil {
		fmt.Fprintf(w, "Warning: could not load .env file: %v\n", err)
	}
}

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	file := flag.String("file", "go/internal/assets/roster.json", "roster JSON file")
	weekFlag := flag.String("week", "", "week key (YYYY-MM-DD Thursday); defaults to the current week")
	flag.Parse()

	loadEnv(os.Stderr)

	// 1) Load config and the roster
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	entries, err := loadRoster(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 2) Resolve the week
	loc, err := cfg.Client.Location()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	key := week.NewResolver(loc).CurrentKey(time.Now())
	if *weekFlag != "" {
		if key, err = week.Parse(*weekFlag); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	// 3) Connect and write
	ctx := context.Background()
	pg, err := pgstore.Connect(ctx, cfg.Database.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	s := seed(ctx, pg, key, entries)

	// 4) Print summary
	fmt.Printf(
		"Week %s seed complete: %d total, %d written, %d errors\n",
		key, s.total, s.written, s.errs,
	)
}
