package main

import (
	"fmt"
	"os"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitInvalidArgs     = 2
	ExitSourceNotAccess = 3
	ExitInterrupted     = 4
	ExitStorageError    = 5
	ExitOutputError     = 6
	ExitCorruptWorkArea = 7
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "segments":
		return runSegments(cmdArgs)
	case "merge":
		return runMerge(cmdArgs)
	case "playlist":
		return runPlaylist(cmdArgs)
	case "catalog":
		return runCatalog(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: datt <command> [options]

Download All The Things.

Commands:
  segments  Download a segmented stream and reassemble it into one file
  merge     Reassemble an existing work area into one file
  playlist  Write an HLS playlist over a local work area for preview
  catalog   Download every episode of a show from a catalog site

Run 'datt <command> -h' for command-specific help.`)
}
