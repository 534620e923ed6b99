package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/quellen/usagevault/analytics"
	"github.com/quellen/usagevault/config"
)

var sqlKeywords = []prompt.Suggest{
	{Text: "SELECT", Description: "projection"},
	{Text: "FROM usage", Description: "exported usage points"},
	{Text: "WHERE", Description: "row filter"},
	{Text: "GROUP BY", Description: "aggregation"},
	{Text: "ORDER BY", Description: "sort"},
	{Text: "LIMIT", Description: "row cap"},
	{Text: "timestamp_ms", Description: "sample time, Unix ms"},
	{Text: "request_count", Description: "requests at sample"},
	{Text: "total_cost", Description: "accumulated cost"},
	{Text: "usage_percentage", Description: "cost vs daily limit"},
	{Text: "session_id", Description: "session correlation"},
}

// runSQL runs SQL over the exported Parquet files. With a statement
// argument it executes once; otherwise it starts a shell, interactive
// when stdin is a terminal.
func runSQL(ctx context.Context, cfg *config.Config, args []string) error {
	dir := filepath.Join(cfg.Storage.BaseDir, "export")
	svc, err := analytics.NewSQLService(dir)
	if err != nil {
		return err
	}
	defer svc.Close()

	if len(args) > 0 {
		return execStatement(ctx, svc, strings.Join(args, " "))
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		runShell(ctx, svc)
		return nil
	}

	// Piped input: one statement per line.
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		stmt := strings.TrimSpace(scanner.Text())
		if stmt == "" {
			continue
		}
		if err := execStatement(ctx, svc, stmt); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func runShell(ctx context.Context, svc *analytics.SQLService) {
	fmt.Println("uvault sql shell over exported parquet; \\q to quit")

	executor := func(stmt string) {
		stmt = strings.TrimSpace(stmt)
		switch stmt {
		case "":
			return
		case "\\q", "exit", "quit":
			os.Exit(0)
		}
		if err := execStatement(ctx, svc, stmt); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}

	completer := func(d prompt.Document) []prompt.Suggest {
		word := d.GetWordBeforeCursor()
		if word == "" {
			return nil
		}
		return prompt.FilterHasPrefix(sqlKeywords, word, true)
	}

	prompt.New(executor, completer,
		prompt.OptionPrefix("usage> "),
		prompt.OptionTitle("uvault"),
	).Run()
}

func execStatement(ctx context.Context, svc *analytics.SQLService, stmt string) error {
	cols, rows, err := svc.Execute(ctx, stmt)
	if err != nil {
		return err
	}

	fmt.Println(strings.Join(cols, "\t"))
	for _, row := range rows {
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = fmt.Sprint(v)
		}
		fmt.Println(strings.Join(parts, "\t"))
	}
	fmt.Fprintf(os.Stderr, "%d rows\n", len(rows))
	return nil
}
