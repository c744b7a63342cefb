// Command recidx drives the indexing pipeline's entry points: full and
// incremental individual-record passes, the merged/dedup pass, source
// deletion, index optimization, and field-value counting.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rajaro/RecordManager-Finna/internal/app"
	"github.com/rajaro/RecordManager-Finna/internal/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	configFile := os.Getenv("RECIDX_CONFIG_FILE")
	if configFile == "" {
		configFile = "/etc/recidx/config.yaml"
	}

	sub := os.Args[1]
	fs := flag.NewFlagSet(sub, flag.ExitOnError)
	config := fs.String("config", configFile, "path to configuration file")
	fromDate := fs.String("from", "", "override the watermark with an explicit RFC3339 timestamp")
	sourceID := fs.String("source", "", "restrict to one data source (empty or * means all)")
	singleID := fs.String("id", "", "restrict to a single record id")
	noCommit := fs.Bool("no-commit", false, "skip intermediate/final commits")
	deleteMode := fs.Bool("delete", false, "merged pass: treat source as fully removed")
	field := fs.String("field", "", "count-values: the index field to tally")
	serve := fs.Bool("serve", false, "expose /healthz and /metrics while the pass runs")
	adminAddr := fs.String("admin-addr", ":8080", "admin HTTP listen address, with -serve")
	fs.Parse(os.Args[2:])

	ctx := context.Background()
	a, err := app.New(ctx, *config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recidx: failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer a.Close(ctx)

	if *serve {
		srv := a.AdminServer(*adminAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.Logger.WithError(err).Error("admin server stopped")
			}
		}()
	}

	var from *time.Time
	if *fromDate != "" {
		t, err := time.Parse(time.RFC3339, *fromDate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "recidx: invalid -from value %q: %v\n", *fromDate, err)
			os.Exit(1)
		}
		from = &t
	}

	switch sub {
	case "index":
		err = a.Driver.UpdateIndividualRecords(ctx, from, *sourceID, *singleID, *noCommit)
	case "index-merged":
		err = a.Driver.UpdateMergedRecords(ctx, from, *sourceID, *singleID, *noCommit, *deleteMode)
	case "delete-source":
		if *sourceID == "" {
			fmt.Fprintln(os.Stderr, "recidx: delete-source requires -source")
			os.Exit(1)
		}
		err = a.Driver.DeleteDataSource(ctx, *sourceID)
	case "optimize":
		err = a.Driver.OptimizeIndex(ctx)
	case "count-values":
		if *field == "" {
			fmt.Fprintln(os.Stderr, "recidx: count-values requires -field")
			os.Exit(1)
		}
		var counts []pipeline.FieldCount
		counts, err = a.Driver.CountValues(ctx, *sourceID, *field)
		if err == nil {
			for _, row := range counts {
				fmt.Printf("%d\t%s\n", row.Count, row.Value)
			}
		}
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "recidx: %s failed: %v\n", sub, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: recidx <command> [flags]

commands:
  index          update individual-record documents
  index-merged    run the three-phase dedup/merge pass
  delete-source   delete all documents for one data source
  optimize        optimize the search index
  count-values    tally a field's values for one data source

common flags: -config, -from, -source, -id, -no-commit, -serve, -admin-addr`)
}
