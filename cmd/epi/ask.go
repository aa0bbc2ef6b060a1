package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/quietbeacon/epi/internal/search"
	"github.com/quietbeacon/epi/internal/server"
	"github.com/quietbeacon/epi/internal/session"

	"github.com/urfave/cli/v2"
)

// askCommand runs an interactive lookup session. Each line is answered
// with the best matching procedure, and the whole exchange is recorded
// in a transcript that can be exported from inside the session.
func askCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client, err := ensureServerRunning(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	maxResults := c.Int("max-results")
	if maxResults <= 0 {
		maxResults = 3
	}

	transcript := session.New()

	fmt.Printf("Emergency procedure session. Describe the situation and press enter.\n")
	fmt.Printf("Commands: export (save transcript), reload (rebuild store), exit.\n")
	if status, err := client.GetStatus(); err == nil && status.Ready {
		fmt.Printf("%d procedures loaded across %d categories.\n", status.ProcedureCount, status.CategoryCount)
	}
	fmt.Println()

	if c.NArg() > 0 {
		first := strings.Join(c.Args().Slice(), " ")
		fmt.Printf("> %s\n", first)
		answerQuestion(client, transcript, first, maxResults)
	}

	scanner := bufio.NewScanner(os.Stdin)
loop:
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "exit", "quit":
			break loop
		case "export":
			if path, err := transcript.SaveTo(cfg.Session.Dir); err != nil {
				fmt.Printf("Could not save the transcript: %v\n\n", err)
			} else {
				fmt.Printf("Transcript saved to %s\n\n", path)
			}
		case "reload":
			reloadInSession(client)
		default:
			answerQuestion(client, transcript, line, maxResults)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	if cfg.Session.Enabled && transcript.Len() > 0 {
		path, err := transcript.SaveTo(cfg.Session.Dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not save the transcript: %v\n", err)
		} else {
			fmt.Printf("Transcript saved to %s\n", path)
		}
	}
	fmt.Println("Session ended.")

	return nil
}

// answerQuestion looks up one question and prints the answer, recording
// both sides in the transcript.
func answerQuestion(client *server.Client, transcript *session.Transcript, question string, maxResults int) {
	transcript.RecordUser(question)

	results, err := client.Lookup(question, maxResults)
	if err != nil {
		answer := fmt.Sprintf("Lookup failed: %v", err)
		transcript.RecordAssistant(answer)
		fmt.Printf("%s\n\n", answer)
		return
	}

	answer := formatAnswer(question, results)
	transcript.RecordAssistant(answer)
	fmt.Printf("%s\n\n", answer)
}

// formatAnswer renders lookup results as a conversational answer. The
// same text is printed and recorded, so the transcript reads the way
// the session looked.
func formatAnswer(question string, results []search.Result) string {
	var b strings.Builder

	if len(results) == 0 {
		fmt.Fprintf(&b, "No procedure covers %q.\n", question)
		b.WriteString("Try different words, or 'epi categories' for an overview of the manuals.")
		return b.String()
	}

	top := results[0].Procedure
	fmt.Fprintf(&b, "%s  %s\n", procedureLabel(top), top.Title)
	if results[0].Warning != "" {
		fmt.Fprintf(&b, "  note: %s\n", results[0].Warning)
	}
	for _, step := range top.Steps {
		fmt.Fprintf(&b, "  %2d | %s\n", step.Seq, step.Text)
	}
	for _, note := range top.Notes {
		fmt.Fprintf(&b, "  note: %s\n", note)
	}

	if len(results) > 1 {
		b.WriteString("\nAlso relevant:\n")
		for _, r := range results[1:] {
			fmt.Fprintf(&b, "  %s %s\n", procedureLabel(r.Procedure), r.Procedure.Title)
		}
	}

	if len(top.Questions) > 0 {
		b.WriteString("\nTo narrow it down:\n")
		for _, q := range top.Questions {
			fmt.Fprintf(&b, "  - %s\n", q)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func reloadInSession(client *server.Client) {
	result, err := client.Reload()
	if err != nil {
		fmt.Printf("Reload failed: %v\n\n", err)
		return
	}
	if !result.Success {
		fmt.Printf("Reload failed: %s\n", result.Message)
		fmt.Printf("The previous procedure set is still being served.\n\n")
		return
	}
	fmt.Printf("Reloaded %d procedures (generation %d)\n\n", result.Procedures, result.Generation)
}
