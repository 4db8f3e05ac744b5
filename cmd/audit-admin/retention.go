package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dd0wney/cluso-audit/pkg/audit"
)

func handleRetentionRunCommand(args []string) {
	fs := flag.NewFlagSet("retention-run", flag.ExitOnError)
	g := addGlobalFlags(fs)
	fs.Parse(args)

	e, err := openEngine(g)
	if err != nil {
		fatalf("Failed to open engine: %v", err)
	}
	defer e.close()

	report, err := e.retention.Run(context.Background(), e.sc(g))
	if err != nil {
		fatalf("Retention run failed: %v", err)
	}

	fmt.Printf("Retention run finished in %s\n", report.Took.Round(time.Millisecond))
	fmt.Printf("  Scanned:    %d\n", report.Scanned)
	fmt.Printf("  Kept:       %d\n", report.Kept)
	fmt.Printf("  Archived:   %d\n", report.Archived)
	fmt.Printf("  Deleted:    %d\n", report.Deleted)
	fmt.Printf("  Anonymized: %d\n", report.Anonymized)
	for _, id := range report.Archives {
		fmt.Printf("  Archive:    %s\n", id)
	}
	for _, c := range report.Conflicts {
		fmt.Printf("  Conflict:   sequence %d pinned by %v (policy %s)\n", c.SequenceNum, c.Frameworks, c.PolicyID)
	}
	for _, msg := range report.Errors {
		fmt.Fprintf(os.Stderr, "  Error:      %s\n", msg)
	}
	if len(report.Errors) > 0 {
		os.Exit(2)
	}
}

func handleRestoreCommand(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	g := addGlobalFlags(fs)
	archiveID := fs.String("id", "", "Archive ID to restore")
	fs.Parse(args)

	if *archiveID == "" {
		fatalf("--id is required")
	}

	e, err := openEngine(g)
	if err != nil {
		fatalf("Failed to open engine: %v", err)
	}
	defer e.close()

	count, err := e.retention.Restore(context.Background(), e.sc(g), *archiveID)
	if err != nil {
		fatalf("Restore failed: %v", err)
	}
	fmt.Printf("Restored %d entries from archive %s\n", count, *archiveID)
}

func handlePolicyCommand(args []string) {
	sub := args[0]
	rest := args[1:]

	switch sub {
	case "list":
		handlePolicyList(rest)
	case "add":
		handlePolicyAdd(rest)
	case "enable":
		handlePolicyToggle(rest, true)
	case "disable":
		handlePolicyToggle(rest, false)
	case "help", "--help", "-h":
		printPolicyUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown policy subcommand: %s\n\n", sub)
		printPolicyUsage()
		os.Exit(1)
	}
}

func handlePolicyList(args []string) {
	fs := flag.NewFlagSet("policy list", flag.ExitOnError)
	g := addGlobalFlags(fs)
	fs.Parse(args)

	e, err := openEngine(g)
	if err != nil {
		fatalf("Failed to open engine: %v", err)
	}
	defer e.close()

	policies := e.retention.Policies()
	if len(policies) == 0 {
		fmt.Println("No retention policies configured.")
		return
	}
	fmt.Printf("%-36s  %-24s  %-9s  %5s  %8s  %s\n", "ID", "NAME", "ACTION", "DAYS", "PRIORITY", "ENABLED")
	for _, p := range policies {
		fmt.Printf("%-36s  %-24s  %-9s  %5d  %8d  %v\n",
			p.ID, p.Name, p.Action, p.RetentionDays, p.Priority, p.Enabled)
	}
}

func handlePolicyAdd(args []string) {
	fs := flag.NewFlagSet("policy add", flag.ExitOnError)
	g := addGlobalFlags(fs)
	name := fs.String("name", "", "Policy name")
	description := fs.String("description", "", "Policy description")
	action := fs.String("action", "", "Retention action: keep, archive, delete or anonymize")
	days := fs.Int("days", 0, "Retention window in days")
	entityKinds := fs.String("entity-kinds", "", "Comma-separated entity kinds (default: all)")
	actions := fs.String("actions", "", "Comma-separated entry actions the policy selects")
	protect := fs.String("protect", "", "Comma-separated frameworks that pin entries against this policy")
	priority := fs.Int("priority", 0, "Policy priority; higher wins")
	disabled := fs.Bool("disabled", false, "Create the policy disabled")
	fs.Parse(args)

	p := &audit.RetentionPolicy{
		Name:          *name,
		Description:   *description,
		Action:        audit.RetentionAction(*action),
		RetentionDays: *days,
		Priority:      *priority,
		Enabled:       !*disabled,
	}
	p.EntityKinds = splitCSV(*entityKinds)
	for _, a := range splitCSV(*actions) {
		p.Actions = append(p.Actions, audit.Action(a))
	}
	for _, f := range splitCSV(*protect) {
		p.ProtectedFrameworks = append(p.ProtectedFrameworks, audit.Framework(f))
	}

	e, err := openEngine(g)
	if err != nil {
		fatalf("Failed to open engine: %v", err)
	}
	defer e.close()

	if err := e.retention.SavePolicy(context.Background(), e.sc(g), p); err != nil {
		fatalf("Failed to save policy: %v", err)
	}
	fmt.Printf("Created policy %s (%s after %d days)\n", p.ID, p.Action, p.RetentionDays)
}

func handlePolicyToggle(args []string, enable bool) {
	verb := "enable"
	if !enable {
		verb = "disable"
	}
	fs := flag.NewFlagSet("policy "+verb, flag.ExitOnError)
	g := addGlobalFlags(fs)
	id := fs.String("id", "", "Policy ID")
	fs.Parse(args)

	if *id == "" {
		fatalf("--id is required")
	}

	e, err := openEngine(g)
	if err != nil {
		fatalf("Failed to open engine: %v", err)
	}
	defer e.close()

	p, err := e.retention.Policy(*id)
	if err != nil {
		fatalf("Failed to %s policy: %v", verb, err)
	}
	if p.Enabled == enable {
		fmt.Printf("Policy %s already %sd\n", p.ID, verb)
		return
	}
	p.Enabled = enable
	if err := e.retention.SavePolicy(context.Background(), e.sc(g), p); err != nil {
		fatalf("Failed to %s policy: %v", verb, err)
	}
	fmt.Printf("Policy %s %sd\n", p.ID, verb)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
