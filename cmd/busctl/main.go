// Command busctl is the registry's command-line client: acquire, release,
// lookup, list, and monitor names on a running busd, ported from the
// teacher's cmd/pw-list and cmd/pw-monitor flag-based tool style
// (subcommands dispatched by os.Args[1], each with its own flag.FlagSet).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/busreg/busreg/logging"
	"github.com/busreg/busreg/notify"
	"github.com/busreg/busreg/registry"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "acquire":
		runAcquire(os.Args[2:])
	case "release":
		runRelease(os.Args[2:])
	case "lookup":
		runLookup(os.Args[2:])
	case "list":
		runList(os.Args[2:])
	case "monitor":
		runMonitor(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: busctl <acquire|release|lookup|list|monitor> [flags]")
}

func commonSocketFlag(fs *flag.FlagSet) *string {
	return fs.String("socket", os.Getenv("BUSREG_SOCKET_PATH"), "busd Unix socket path (defaults to BUSREG_SOCKET_PATH)")
}

func runAcquire(args []string) {
	fs := flag.NewFlagSet("acquire", flag.ExitOnError)
	socket := commonSocketFlag(fs)
	replace := fs.Bool("replace", false, "request takeover of an existing owner (REPLACE_EXISTING)")
	allowReplace := fs.Bool("allow-replacement", false, "allow this ownership to be taken over later")
	queueable := fs.Bool("queue", false, "queue for ownership if the name is currently taken")
	fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("usage: busctl acquire [flags] <name>")
	}
	name := fs.Arg(0)

	var flags uint32
	if *replace {
		flags |= uint32(registry.FlagReplaceExisting)
	}
	if *allowReplace {
		flags |= uint32(registry.FlagAllowReplacement)
	}
	if *queueable {
		flags |= uint32(registry.FlagQueueable)
	}

	c, err := dialBus(*socket, logging.Default())
	if err != nil {
		log.Fatalf("busctl: %v", err)
	}
	defer c.Close()

	status, effective, err := c.acquire(name, flags)
	if err != nil {
		log.Fatalf("busctl: %v", err)
	}
	if registry.AcquireStatus(status) == registry.AcquireAlready {
		fmt.Printf("already owned (flags=%#x)\n", effective)
		return
	}
	if registry.Flags(effective).Has(registry.FlagInQueue) {
		fmt.Printf("queued (flags=%#x)\n", effective)
		return
	}
	fmt.Printf("acquired %q (flags=%#x)\n", name, effective)
}

func runRelease(args []string) {
	fs := flag.NewFlagSet("release", flag.ExitOnError)
	socket := commonSocketFlag(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("usage: busctl release [flags] <name>")
	}

	c, err := dialBus(*socket, logging.Default())
	if err != nil {
		log.Fatalf("busctl: %v", err)
	}
	defer c.Close()

	if err := c.release(fs.Arg(0)); err != nil {
		log.Fatalf("busctl: %v", err)
	}
	fmt.Println("released")
}

func runLookup(args []string) {
	fs := flag.NewFlagSet("lookup", flag.ExitOnError)
	socket := commonSocketFlag(fs)
	asJSON := fs.Bool("json", false, "output as JSON")
	fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("usage: busctl lookup [flags] <name>")
	}

	c, err := dialBus(*socket, logging.Default())
	if err != nil {
		log.Fatalf("busctl: %v", err)
	}
	defer c.Close()

	owner, flags, found, err := c.lookup(fs.Arg(0))
	if err != nil {
		log.Fatalf("busctl: %v", err)
	}

	if *asJSON {
		out := map[string]any{"found": found, "owner": owner, "flags": flags}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}
	if !found {
		fmt.Println("no owner")
		return
	}
	fmt.Printf("owner=%d flags=%#x\n", owner, flags)
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	socket := commonSocketFlag(fs)
	uniqueIDs := fs.Bool("unique-ids", true, "include each connection's unique id")
	names := fs.Bool("names", true, "include named entries")
	queued := fs.Bool("queued", false, "include queued waiters")
	activators := fs.Bool("activators", false, "include activator-owned names")
	asJSON := fs.Bool("json", false, "output as JSON")
	fs.Parse(args)

	c, err := dialBus(*socket, logging.Default())
	if err != nil {
		log.Fatalf("busctl: %v", err)
	}
	defer c.Close()

	records, err := c.list(*uniqueIDs, *names, *queued, *activators)
	if err != nil {
		log.Fatalf("busctl: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(records)
		return
	}
	if len(records) == 0 {
		fmt.Println("(empty)")
		return
	}
	for _, r := range records {
		if r.HasName {
			fmt.Printf("%-40s owner=%-6d flags=%#x\n", r.Name, r.ID, r.Flags)
		} else {
			fmt.Printf("(unique id)                             id=%-6d\n", r.ID)
		}
	}
}

func runMonitor(args []string) {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	socket := commonSocketFlag(fs)
	fs.Parse(args)

	c, err := dialBus(*socket, logging.Default())
	if err != nil {
		log.Fatalf("busctl: %v", err)
	}
	defer c.Close()

	fmt.Println("=== Monitoring bus events (Ctrl+C to stop) ===")
	err = c.monitor(func(e notify.Event) {
		ts := time.Now().Format("15:04:05")
		fmt.Printf("[%s] %s\n", ts, formatEvent(e))
	})
	if err != nil {
		log.Fatalf("busctl: monitor stopped: %v", err)
	}
}

func formatEvent(e notify.Event) string {
	switch e.Kind {
	case notify.KindAdd:
		return fmt.Sprintf("ADD    %s owner=%d", e.Name, e.NewOwner)
	case notify.KindRemove:
		return fmt.Sprintf("REMOVE %s owner=%d", e.Name, e.OldOwner)
	case notify.KindChange:
		return fmt.Sprintf("CHANGE %s %d -> %d", e.Name, e.OldOwner, e.NewOwner)
	default:
		return e.String()
	}
}
