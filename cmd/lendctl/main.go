package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 1
	}
	switch args[0] {
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	case "simulate":
		return runSimulateCommand(ctx, args[1:], stdout, stderr)
	}
	if _, ok := operations[args[0]]; !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
	return runOperationCommand(ctx, args[0], args[1:], stdout, stderr)
}

// runOperationCommand parses the flags of one operation, runs it against the
// configured store and prints the result as JSON.
func runOperationCommand(ctx context.Context, name string, args []string, stdout, stderr io.Writer) int {
	op := operations[name]
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		common commonFlags
		req    request
	)
	common.register(fs)
	op.bind(fs, &req)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	req.Op = name

	s, err := openSession(ctx, common, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer s.close()

	result, err := execute(s, name, op, &req)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := writeJSON(stdout, result); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: lendctl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	for _, name := range operationNames() {
		fmt.Fprintf(w, "  %-20s %s\n", name, operations[name].summary)
	}
	fmt.Fprintf(w, "  %-20s %s\n", "simulate", "replay a YAML scenario against an in-memory store")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Accounts are base58 keys, or @label for a key derived from label.")
	fmt.Fprintln(w, "Run 'lendctl <command> -h' for the flags of a command.")
}
