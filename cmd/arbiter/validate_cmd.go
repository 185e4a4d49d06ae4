package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/operator"
	"github.com/Mindburn-Labs/arbiter/pkg/rules"
)

func runValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	rulesPath := fs.String("rules", "", "path to a JSON ruleset document")
	printCanonical := fs.Bool("canonical", false, "print the canonical form on success")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *rulesPath == "" {
		fmt.Fprintln(stderr, "validate requires -rules")
		return 2
	}

	raw, err := os.ReadFile(*rulesPath)
	if err != nil {
		fmt.Fprintf(stderr, "read rules: %v\n", err)
		return 1
	}
	doc, err := rules.Parse(raw, operator.Default())
	if err != nil {
		var failure *contracts.ValidationFailure
		if errors.As(err, &failure) {
			for _, issue := range failure.Issues {
				fmt.Fprintf(stderr, "%s: %s\n", issue.Path, issue.Reason)
			}
		} else {
			fmt.Fprintln(stderr, err)
		}
		return 1
	}

	fmt.Fprintf(stdout, "valid: ruleset %q version %s, %d rules, hash %s\n",
		doc.Ruleset.Name, doc.Ruleset.Version, len(doc.Ruleset.Rules), doc.Hash)
	if *printCanonical {
		stdout.Write(doc.Canonical)
		fmt.Fprintln(stdout)
	}
	return 0
}
