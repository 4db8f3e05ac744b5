package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "verify":
		handleVerifyCommand(os.Args[2:])
	case "export":
		handleExportCommand(os.Args[2:])
	case "report":
		handleReportCommand(os.Args[2:])
	case "stats":
		handleStatsCommand(os.Args[2:])
	case "retention-run":
		handleRetentionRunCommand(os.Args[2:])
	case "restore":
		handleRestoreCommand(os.Args[2:])
	case "policy":
		if len(os.Args) < 3 {
			printPolicyUsage()
			os.Exit(1)
		}
		handlePolicyCommand(os.Args[2:])
	case "serve":
		handleServeCommand(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	case "version", "--version", "-v":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	usage := `Audit Admin CLI - Administrative tools for the audit trail engine

Usage:
  audit-admin <command> [options]

Available Commands:
  verify         Verify hash chain integrity
  export         Export audit entries to a file or stdout
  report         Generate a compliance report
  stats          Print a summary report of the trail
  retention-run  Execute one retention sweep
  restore        Restore an archive back into the live trail
  policy         Retention policy management commands
  serve          Serve the GraphQL read API over HTTP
  help           Show this help message
  version        Show version information

Use "audit-admin <command> --help" for more information about a command.
`
	fmt.Print(usage)
}

func printVersion() {
	fmt.Println("Audit Admin CLI v1.0.0")
}

func printPolicyUsage() {
	usage := `Retention policy management commands

Usage:
  audit-admin policy <subcommand> [options]

Available Subcommands:
  list        List retention policies, highest priority first
  add         Create a retention policy
  enable      Enable a policy by ID
  disable     Disable a policy by ID

Examples:
  # List all policies
  audit-admin policy list --config=audit.yaml

  # Archive old session entries after 90 days
  audit-admin policy add --config=audit.yaml --name="session cleanup" \
    --action=archive --days=90 --entity-kinds=session

  # Re-enable a policy
  audit-admin policy enable --config=audit.yaml --id=<policy-id>
`
	fmt.Print(usage)
}
