package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const version = "1.0.0"

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	switch args[1] {
	case "init":
		return runInitCmd(args[2:], stdout, stderr)
	case "append":
		return runAppendCmd(args[2:], stdout, stderr)
	case "log":
		return runLogCmd(args[2:], stdout, stderr)
	case "show":
		return runShowCmd(args[2:], stdout, stderr)
	case "provenance":
		return runProvenanceCmd(args[2:], stdout, stderr)
	case "supersede":
		return runSupersedeCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "export":
		return runExportCmd(args[2:], stdout, stderr)
	case "import":
		return runImportCmd(args[2:], stdout, stderr)
	case "sync":
		return runSyncCmd(args[2:], stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "substrate %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorBlue  = "\033[34m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sSubstrate %s%s\n", ColorBold+ColorBlue, "v"+version, ColorReset)
	fmt.Fprintf(w, "%sLocal-first event-sourced data substrate.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  substrate <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "LOG")
	printCommand(w, "init", "Initialize a new substrate database")
	printCommand(w, "append", "Append an event (--type, --category, --payload)")
	printCommand(w, "log", "List committed events (--workspace, --type, --json)")
	printCommand(w, "show", "Show one event by id")
	printCommand(w, "supersede", "Replace an interpretation (--target, --claim)")

	printSection(w, "PROVENANCE & VERIFICATION")
	printCommand(w, "provenance", "Walk an event's derivation chain (--id)")
	printCommand(w, "verify", "Replay the log and verify grounding")

	printSection(w, "EXCHANGE")
	printCommand(w, "export", "Export the log as a JSON snapshot (--out)")
	printCommand(w, "import", "Import a JSON snapshot (--in)")
	printCommand(w, "sync", "Reconcile with a peer database (--peer-db)")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, name string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold, name, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %-12s %s\n", name, desc)
}

// newLogger builds the CLI's structured logger honoring LOG_LEVEL.
func newLogger(stderr io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}
