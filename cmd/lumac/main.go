// cmd/lumac/main.go
package main

import (
	"fmt"
	"os"

	"lumac/cmd/lumac/commands"
)

const version = "0.1.0"

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	cmd := args[0]
	rest := args[1:]

	var err error
	switch cmd {
	case "build":
		err = commands.BuildCommand(rest)
	case "watch":
		err = commands.WatchCommand(rest)
	case "--version", "-v", "version":
		fmt.Println("lumac", version)
		return
	case "--help", "-h", "help":
		showUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "lumac: unknown command %q\n", cmd)
		showUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "lumac:", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`lumac - semantic analysis and IR generation core

Usage:
  lumac build <ast.json>   compile a JSON-encoded AST into an IR module
  lumac watch <ast.json>   compile once, then serve diagnostics over a websocket
  lumac version             print the version
  lumac help                print this message

Configuration is read from LUMAC_* environment variables (see
cmd/lumac/commands/build.go's optionsFromEnv).`)
}
