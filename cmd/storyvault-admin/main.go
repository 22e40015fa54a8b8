// Admin CLI for a running StoryVault instance: inspect migration
// status, move the phase, check entity consistency, and peek at the
// divergence journal.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/mystira/storyvault/pkg/migration"
	"github.com/mystira/storyvault/pkg/reconcile"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("STORYVAULT_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus(baseURL)
	case "phase":
		err = cmdPhase(baseURL, args)
	case "check":
		err = cmdCheck(baseURL, args)
	case "journal":
		err = cmdJournal(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`storyvault-admin - manage a running StoryVault instance

Usage: storyvault-admin <command> [args]

Commands:
  status                      Show phase, breakers, caches, sweep state
  phase [new-phase]           Show or change the migration phase
  check <table> <id>          Validate one entity across both stores
  journal <path>              Print a divergence journal file

Environment:
  STORYVAULT_URL              Base URL of the instance (default http://localhost:8080)`)
}

var client = &http.Client{Timeout: 10 * time.Second}

func getJSON(url string, out any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func cmdStatus(baseURL string) error {
	var status struct {
		Phase          string `json:"phase"`
		StoryBreaker   string `json:"story_breaker"`
		AccountBreaker string `json:"account_breaker"`
		StoryCache     struct {
			Hits   int64 `json:"hits"`
			Misses int64 `json:"misses"`
		} `json:"story_cache"`
		AccountCache struct {
			Hits   int64 `json:"hits"`
			Misses int64 `json:"misses"`
		} `json:"account_cache"`
		SweepLastRun   time.Time `json:"sweep_last_run"`
		SweepDivergent int       `json:"sweep_divergent"`
	}
	if err := getJSON(baseURL+"/api/status", &status); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	cyan.Printf("Phase: ")
	fmt.Println(status.Phase)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "stories\tbreaker=%s\thits=%d\tmisses=%d\n",
		status.StoryBreaker, status.StoryCache.Hits, status.StoryCache.Misses)
	fmt.Fprintf(w, "accounts\tbreaker=%s\thits=%d\tmisses=%d\n",
		status.AccountBreaker, status.AccountCache.Hits, status.AccountCache.Misses)
	w.Flush()

	if status.SweepDivergent == 0 {
		green.Printf("Last sweep: %s, no divergence\n", status.SweepLastRun.Format(time.RFC3339))
	} else {
		color.Red("Last sweep: %s, %d divergent entities\n",
			status.SweepLastRun.Format(time.RFC3339), status.SweepDivergent)
	}
	return nil
}

func cmdPhase(baseURL string, args []string) error {
	if len(args) == 0 {
		var res struct {
			Phase string `json:"phase"`
		}
		if err := getJSON(baseURL+"/api/admin/phase", &res); err != nil {
			return err
		}
		fmt.Println(res.Phase)
		return nil
	}

	phase, err := migration.ParsePhase(args[0])
	if err != nil {
		return err
	}

	body, _ := json.Marshal(map[string]string{"phase": phase.String()})
	resp, err := client.Post(baseURL+"/api/admin/phase", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("phase change returned %s", resp.Status)
	}

	var res struct {
		Previous string `json:"previous"`
		Phase    string `json:"phase"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return err
	}
	color.Green("Phase changed: %s -> %s\n", res.Previous, res.Phase)
	return nil
}

func cmdCheck(baseURL string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: storyvault-admin check <stories|accounts> <id>")
	}
	table, id := args[0], args[1]
	if table != "stories" && table != "accounts" {
		return fmt.Errorf("unknown table %q", table)
	}

	var report struct {
		Result string `json:"result"`
		Diffs  []struct {
			Field     string `json:"field"`
			Primary   string `json:"primary"`
			Secondary string `json:"secondary"`
		} `json:"diffs"`
	}
	url := fmt.Sprintf("%s/api/%s/%s/consistency", baseURL, table, id)
	if err := getJSON(url, &report); err != nil {
		return err
	}

	if report.Result == "consistent" {
		color.Green("%s/%s: consistent\n", table, id)
		return nil
	}
	color.Red("%s/%s: %s\n", table, id, report.Result)
	for _, d := range report.Diffs {
		fmt.Printf("  %s: primary=%q secondary=%q\n", d.Field, d.Primary, d.Secondary)
	}
	return nil
}

func cmdJournal(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: storyvault-admin journal <path>")
	}

	records, err := reconcile.ReadJournal(args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		color.Green("journal is empty\n")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, d := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			d.Timestamp.Format(time.RFC3339), d.Table, d.Op, d.EntityID, d.Reason)
	}
	w.Flush()
	fmt.Printf("%d records\n", len(records))
	return nil
}
