package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/salesdesk/salesdesk/internal/config"
	duckdbengine "github.com/salesdesk/salesdesk/internal/query/duckdb"
)

func main() {
	_ = godotenv.Load()

	path := flag.String("path", "", "DuckDB database file; defaults to SALESDESK_DB_PATH")
	printOnly := flag.Bool("print", false, "print the view definitions instead of applying them")
	flag.Parse()

	if *printOnly {
		for _, statement := range duckdbengine.ViewStatements() {
			fmt.Printf("%s;\n\n", statement)
		}
		return
	}

	cfg, err := config.LoadFromEnv("salesdesk-views")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	target := *path
	if target == "" {
		target = cfg.Database.Path
	}
	if _, err := os.Stat(target); err != nil {
		fmt.Fprintf(os.Stderr, "database file error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := duckdbengine.EnsureViews(ctx, target); err != nil {
		fmt.Fprintf(os.Stderr, "apply views error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("applied %d views to %s\n", len(duckdbengine.ViewStatements()), target)
}
