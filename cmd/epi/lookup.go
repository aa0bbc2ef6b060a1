package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quietbeacon/epi/internal/display"
	"github.com/quietbeacon/epi/internal/search"
	"github.com/quietbeacon/epi/internal/types"

	"github.com/urfave/cli/v2"
)

func lookupCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("usage: epi lookup <query>")
	}

	// Join the args so `epi lookup cabin fire` works without quoting
	query := strings.Join(c.Args().Slice(), " ")
	maxResults := c.Int("max-results")

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client, err := ensureServerRunning(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to procedure server: %w", err)
	}

	start := time.Now()
	results, err := client.Lookup(query, maxResults)
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}
	elapsed := time.Since(start)

	return displayLookupResults(c, query, results, elapsed)
}

func getCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("usage: epi get <id>")
	}

	id := c.Args().First()

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client, err := ensureServerRunning(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to procedure server: %w", err)
	}

	proc, err := client.GetProcedure(id)
	if err != nil {
		return fmt.Errorf("get failed: %w", err)
	}

	var children []*types.Procedure
	if c.Bool("children") {
		children, err = client.GetChildren(id)
		if err != nil {
			return fmt.Errorf("children lookup failed: %w", err)
		}
	}

	if c.Bool("json") {
		output := map[string]interface{}{
			"procedure": proc,
		}
		if children != nil {
			output["children"] = children
		}
		return json.NewEncoder(os.Stdout).Encode(output)
	}

	displayProcedure(proc)

	if len(children) > 0 {
		fmt.Printf("\nSub-procedures (%d):\n", len(children))
		for _, child := range children {
			fmt.Printf("  %s  %s\n", procedureLabel(child), child.Title)
		}
	}

	return nil
}

func categoriesCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client, err := ensureServerRunning(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to procedure server: %w", err)
	}

	if c.Bool("tree") && !c.Bool("json") {
		procs, err := client.GetOutline()
		if err != nil {
			return fmt.Errorf("outline lookup failed: %w", err)
		}
		roots := 0
		for _, p := range procs {
			if p.ParentID.IsZero() {
				roots++
			}
		}
		formatter := display.NewTreeFormatter(display.TreeOptions{
			MaxDepth:  c.Int("depth"),
			ShowSteps: true,
		})
		fmt.Printf("Emergency categories (%d):\n\n", roots)
		fmt.Print(formatter.Format(procs))
		return nil
	}

	categories, err := client.GetCategories()
	if err != nil {
		return fmt.Errorf("categories lookup failed: %w", err)
	}

	if c.Bool("json") {
		output := map[string]interface{}{
			"count":      len(categories),
			"categories": categories,
		}
		return json.NewEncoder(os.Stdout).Encode(output)
	}

	fmt.Printf("Emergency categories (%d):\n\n", len(categories))
	for _, cat := range categories {
		severity := "-"
		if cat.Severity != "" {
			severity = string(cat.Severity)
		}
		fmt.Printf("  %-36s %-10s %s\n", cat.ID, severity, cat.Title)
	}

	return nil
}

func reloadCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client, err := ensureServerRunning(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to procedure server: %w", err)
	}

	start := time.Now()
	result, err := client.Reload()
	if err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	elapsed := time.Since(start)

	if c.Bool("json") {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	if !result.Success {
		fmt.Printf("Reload failed: %s\n", result.Message)
		fmt.Printf("The previous procedure set is still being served.\n")
		return cli.Exit("", 1)
	}

	fmt.Printf("Reloaded %d procedures in %.1fms (generation %d)\n",
		result.Procedures, float64(elapsed.Microseconds())/1000.0, result.Generation)
	return nil
}

func displayLookupResults(c *cli.Context, query string, results []search.Result, elapsed time.Duration) error {
	if c.Bool("json") {
		output := map[string]interface{}{
			"query":   query,
			"time_ms": float64(elapsed.Microseconds()) / 1000.0,
			"count":   len(results),
			"results": results,
		}
		return json.NewEncoder(os.Stdout).Encode(output)
	}

	if len(results) == 0 {
		fmt.Printf("Found 0 procedures in %.1fms\n\n", float64(elapsed.Microseconds())/1000.0)
		fmt.Printf("No procedure covers %q. Run 'epi categories' to see what the manuals cover.\n", query)
		return nil
	}

	fmt.Printf("Found %d procedures in %.1fms\n\n", len(results), float64(elapsed.Microseconds())/1000.0)

	verbose := c.Bool("verbose")

	// The best match is printed in full; alternatives stay one line each
	// so the steps that matter are never scrolled away.
	top := results[0]
	printResultLine(1, top, verbose)
	printProcedureBody(top.Procedure, "     ")

	if len(results) > 1 {
		fmt.Printf("\nOther matches:\n")
		for i, r := range results[1:] {
			printResultLine(i+2, r, verbose)
		}
	}

	return nil
}

func printResultLine(position int, r search.Result, verbose bool) {
	p := r.Procedure
	fmt.Printf("%d. %s  %s", position, procedureLabel(p), p.Title)
	if verbose {
		fmt.Printf(" [%s match, score %.1f]", r.Rank, r.Score)
		if len(r.Matched) > 0 {
			fmt.Printf(" [matched: %s]", strings.Join(r.Matched, ", "))
		}
	}
	fmt.Println()
	if r.Warning != "" {
		fmt.Printf("   note: %s\n", r.Warning)
	}
}

// procedureLabel renders "[id] (severity)" with the severity omitted when
// the manual did not declare one.
func procedureLabel(p *types.Procedure) string {
	if p.Severity == "" {
		return fmt.Sprintf("[%s]", p.ID)
	}
	return fmt.Sprintf("[%s] (%s)", p.ID, p.Severity)
}

func displayProcedure(p *types.Procedure) {
	fmt.Printf("%s  %s\n", procedureLabel(p), p.Title)
	if p.ParentID != "" {
		fmt.Printf("  part of: %s\n", p.ParentID)
	}
	printProcedureBody(p, "  ")
}

func printProcedureBody(p *types.Procedure, indent string) {
	for _, step := range p.Steps {
		fmt.Printf("%s%2d | %s\n", indent, step.Seq, step.Text)
	}

	if len(p.Notes) > 0 {
		fmt.Printf("%snotes:\n", indent)
		for _, note := range p.Notes {
			fmt.Printf("%s  - %s\n", indent, note)
		}
	}

	if len(p.Questions) > 0 {
		fmt.Printf("%sfollow-up:\n", indent)
		for _, q := range p.Questions {
			fmt.Printf("%s  - %s\n", indent, q)
		}
	}
}
