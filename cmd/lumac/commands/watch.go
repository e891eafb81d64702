// cmd/lumac/commands/watch.go
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lumac/internal/diag"
	"lumac/internal/driver"
	"lumac/internal/watchserver"
)

// WatchCommand runs one build of args[0] with diags.Listener wired to a
// watchserver.Server, then blocks serving that server's websocket endpoint
// until interrupted -- the teacher's WatchCommand held a long-lived
// build.Builder.Watch loop open the same way, just over a filesystem
// watcher instead of a diagnostics-over-websocket stream. A real
// file-watch-triggered rebuild loop belongs to the external front end this
// core doesn't own (spec.md §1 Non-goals); what belongs here is giving a
// connected editor a live view of one build's diagnostics as they land.
func WatchCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: lumac watch <ast.json>")
	}

	files, err := loadSourceFiles(args[0])
	if err != nil {
		return err
	}

	opts := optionsFromEnv()
	addr := opts.WatchAddr
	if addr == "" {
		addr = "127.0.0.1:7417"
	}

	server := watchserver.New(addr)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx) }()

	fmt.Printf("lumac: watch server listening on ws://%s/diagnostics\n", addr)

	result, buildErr := driver.BuildWithListener(ctx, files, opts, server.Publish)

	printer := diag.NewPrinter(os.Stderr)
	if result != nil {
		printer.Print(result.Diags)
	}
	if buildErr != nil {
		fmt.Fprintf(os.Stderr, "lumac: build failed: %v\n", buildErr)
	} else {
		fmt.Printf("lumac: built %d function(s), %d global(s)\n", len(result.Module.Functions), len(result.Module.Globals))
	}

	fmt.Printf("lumac: %d client(s) connected; press ctrl-c to stop the watch server\n", server.ClientCount())
	<-ctx.Done()
	return <-serveErr
}
