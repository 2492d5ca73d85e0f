package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/fatih/color"

	"optopt/internal/asm"
	"optopt/internal/diag"
	"optopt/internal/driver"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: optopt <file.ir>")
		os.Exit(1)
	}

	path := os.Args[1]

	source, err := os.ReadFile(path)
	if err != nil {
		color.Red("failed to read file: %s", err)
		os.Exit(1)
	}

	procs, err := asm.AssembleAll(path, string(source))
	if err != nil {
		reportParseError(string(source), err)
		os.Exit(1)
	}

	reporter := diag.NewReporter(os.Stderr)
	failed := false
	for _, p := range procs {
		sink := diag.NewSink()

		color.Cyan("proc %s (input):", p.Name)
		fmt.Print(asm.Format(p.List))

		out := driver.DoProcedure(p.List, p.Name, sink)

		color.Cyan("proc %s (optimized):", p.Name)
		fmt.Print(asm.Format(out))

		reporter.Report(sink.Messages())
		fmt.Fprintln(os.Stderr, reporter.Summary(sink.Messages()))
		if sink.HasErrors() {
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
	color.Green("✅ Successfully processed %s", path)
}

// reportParseError prints a friendly caret-style parse error message.
func reportParseError(src string, err error) {
	pe, ok := err.(participle.Error)
	if !ok {
		color.Red("Unexpected error: %s", err)
		return
	}

	pos := pe.Position()
	lines := strings.Split(src, "\n")
	if pos.Line <= 0 || pos.Line > len(lines) {
		color.Red("Syntax error at unknown location: %s", err)
		return
	}

	line := lines[pos.Line-1]
	caret := strings.Repeat(" ", pos.Column-1) + "^"

	color.Red("❌ Syntax error in %s at line %d, column %d:", pos.Filename, pos.Line, pos.Column)
	fmt.Println(line)
	color.HiRed(caret)
	fmt.Printf("→ %s\n", pe.Message())
}
