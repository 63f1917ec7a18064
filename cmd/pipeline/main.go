// Command pipeline runs one retrieval batch from the command line and
// writes the result as JSON to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ZackGrogan/SDEA/internal/app"
	"github.com/ZackGrogan/SDEA/internal/pipeline"
	apiv1 "github.com/ZackGrogan/SDEA/pkg/contracts/api/v1"
)

func main() {
	issuers := flag.String("issuers", "", "comma-separated tickers or CIK numbers")
	startYear := flag.Int("start-year", time.Now().Year()-2, "first filing year to retrieve")
	endYear := flag.Int("end-year", time.Now().Year(), "last filing year to retrieve")
	asOf := flag.String("as-of", "", "silence evaluation date (YYYY-MM-DD), defaults to today")
	pretty := flag.Bool("pretty", false, "indent JSON output")
	flag.Parse()

	if err := run(*issuers, *startYear, *endYear, *asOf, *pretty); err != nil {
		slog.Error("pipeline run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(issuers string, startYear, endYear int, asOf string, pretty bool) error {
	ids := splitIssuers(issuers)
	if len(ids) == 0 {
		return fmt.Errorf("at least one issuer is required, try -issuers AAPL")
	}

	req := pipeline.RunRequest{
		IssuerIDs: ids,
		StartYear: startYear,
		EndYear:   endYear,
	}
	if asOf != "" {
		d, err := time.Parse("2006-01-02", asOf)
		if err != nil {
			return fmt.Errorf("parse as-of date: %w", err)
		}
		req.AsOf = d
	}

	ctx := context.Background()
	application, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer application.Close(ctx)

	result, err := application.Pipeline.Run(ctx, req)
	if err != nil {
		return err
	}

	analysis := result.ExitAnalysis
	out := apiv1.RetrieveResponse{
		Filings:         result.Filings,
		ThresholdEvents: result.ThresholdEvents,
		PartialFailures: result.PartialFailures,
		ExitAnalysis:    &analysis,
	}

	enc := json.NewEncoder(os.Stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}

func splitIssuers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
