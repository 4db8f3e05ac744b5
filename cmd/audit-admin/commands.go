package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dd0wney/cluso-audit/pkg/audit"
	"github.com/dd0wney/cluso-audit/pkg/export"
)

func handleVerifyCommand(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	g := addGlobalFlags(fs)
	from := fs.Uint64("from", 0, "First sequence number to verify (0 = whole trail)")
	to := fs.Uint64("to", 0, "Last sequence number to verify (0 = chain tail)")
	fs.Parse(args)

	e, err := openEngine(g)
	if err != nil {
		fatalf("Failed to open engine: %v", err)
	}
	defer e.close()

	report, err := e.queries.VerifyRange(context.Background(), e.sc(g), *from, *to)
	if err != nil {
		fatalf("Verification failed: %v", err)
	}

	fmt.Printf("Verified sequences %d..%d\n", report.FromSequence, report.ToSequence)
	fmt.Printf("Entries checked:  %d\n", report.EntriesChecked)
	fmt.Printf("Tombstones seen:  %d\n", report.TombstonesSeen)
	if report.Intact() {
		fmt.Println("Chain intact: yes")
		return
	}
	fmt.Println("Chain intact: NO")
	for _, v := range report.Violations {
		fmt.Printf("  sequence %d: %s", v.SequenceNum, v.Reason)
		if v.Detail != "" {
			fmt.Printf(" (%s)", v.Detail)
		}
		fmt.Println()
	}
	os.Exit(2)
}

func handleExportCommand(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	g := addGlobalFlags(fs)
	qf := addQueryFlags(fs)
	format := fs.String("format", "json", "Export format: json, jsonl, csv, syslog or xml")
	output := fs.String("output", "", "Output file (default: stdout)")
	pretty := fs.Bool("pretty", false, "Indent JSON output")
	fs.Parse(args)

	e, err := openEngine(g)
	if err != nil {
		fatalf("Failed to open engine: %v", err)
	}
	defer e.close()

	opts := &export.Options{
		Format: export.Format(*format),
		Query:  qf.build(),
		Pretty: *pretty,
	}

	ctx := context.Background()
	var count int
	if *output == "" {
		count, err = e.exporter.Export(ctx, e.sc(g), os.Stdout, opts)
	} else {
		count, err = e.exporter.ExportToFile(ctx, e.sc(g), *output, opts)
	}
	if err != nil {
		fatalf("Export failed: %v", err)
	}
	if *output != "" {
		fmt.Printf("Exported %d entries to %s\n", count, *output)
	}
}

func handleReportCommand(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	g := addGlobalFlags(fs)
	framework := fs.String("framework", "", "Compliance framework (GDPR, SOC2, HIPAA, PCI-DSS, ISO-27001, FIPS-140-2)")
	start := fs.String("start", "", "Window start (RFC 3339 or YYYY-MM-DD; default: 30 days ago)")
	end := fs.String("end", "", "Window end (RFC 3339 or YYYY-MM-DD; default: now)")
	format := fs.String("format", "text", "Report format: text, markdown or json")
	output := fs.String("output", "", "Output file (default: stdout)")
	fs.Parse(args)

	if *framework == "" {
		fatalf("--framework is required. Known frameworks: %v", audit.AllFrameworks())
	}

	windowEnd := time.Now().UTC()
	if *end != "" {
		windowEnd = parseTime("end", *end)
	}
	windowStart := windowEnd.Add(-30 * 24 * time.Hour)
	if *start != "" {
		windowStart = parseTime("start", *start)
	}

	e, err := openEngine(g)
	if err != nil {
		fatalf("Failed to open engine: %v", err)
	}
	defer e.close()

	report, err := e.reporter.GenerateReport(context.Background(), e.sc(g), audit.Framework(*framework), windowStart, windowEnd)
	if err != nil {
		fatalf("Report generation failed: %v", err)
	}

	w := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()
		w = f
	}

	switch *format {
	case "text":
		err = report.WriteText(w)
	case "markdown":
		err = report.WriteMarkdown(w)
	case "json":
		err = report.WriteJSON(w)
	default:
		fatalf("Unknown report format %q: want text, markdown or json", *format)
	}
	if err != nil {
		fatalf("Failed to write report: %v", err)
	}
}

func handleStatsCommand(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	g := addGlobalFlags(fs)
	qf := addQueryFlags(fs)
	fs.Parse(args)

	e, err := openEngine(g)
	if err != nil {
		fatalf("Failed to open engine: %v", err)
	}
	defer e.close()

	if err := e.exporter.WriteReport(context.Background(), e.sc(g), os.Stdout, qf.build()); err != nil {
		fatalf("Stats failed: %v", err)
	}
}
