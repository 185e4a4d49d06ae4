package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Mindburn-Labs/arbiter/pkg/config"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/evaluator"
	"github.com/Mindburn-Labs/arbiter/pkg/replay"
	"github.com/Mindburn-Labs/arbiter/pkg/rules"
)

func runReplay(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	recordPath := fs.String("record", "", "path to a stored audit record (JSON)")
	rulesPath := fs.String("rules", "", "path to the ruleset the record was produced with")
	contextPath := fs.String("context", "", "path to the persisted context payload")
	strategyName := fs.String("strategy", "weighted_average", "scoring strategy used originally")
	lenient := fs.Bool("lenient", false, "report divergences instead of failing")
	enrichPath := fs.String("enrich", "", "path to the enrichment endpoints config used originally (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *recordPath == "" || *rulesPath == "" || *contextPath == "" {
		fmt.Fprintln(stderr, "replay requires -record, -rules and -context")
		return 2
	}

	rawRecord, err := os.ReadFile(*recordPath)
	if err != nil {
		fmt.Fprintf(stderr, "read record: %v\n", err)
		return 1
	}
	var record contracts.AuditRecord
	if err := json.Unmarshal(rawRecord, &record); err != nil {
		fmt.Fprintf(stderr, "decode record: %v\n", err)
		return 1
	}

	if *enrichPath == "" {
		*enrichPath = config.Load().EnrichPath
	}
	reg, provider, err := buildEnrichment(*enrichPath, nil)
	if err != nil {
		fmt.Fprintf(stderr, "load enrichment config: %v\n", err)
		return 1
	}

	rawRules, err := os.ReadFile(*rulesPath)
	if err != nil {
		fmt.Fprintf(stderr, "read rules: %v\n", err)
		return 1
	}
	doc, err := rules.Parse(rawRules, reg)
	if err != nil {
		fmt.Fprintf(stderr, "parse rules: %v\n", err)
		return 1
	}
	ev := rules.NewEvaluator(doc, reg)

	dctx, err := loadContext(*contextPath)
	if err != nil {
		fmt.Fprintf(stderr, "load context: %v\n", err)
		return 1
	}

	strategy, err := strategyByName(*strategyName)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	var engineOpts []replay.Option
	if provider != nil {
		engineOpts = append(engineOpts, replay.WithSeeder(provider))
	}
	engine := replay.NewEngine(strategy, []evaluator.Evaluator{ev}, engineOpts...)
	if *lenient {
		decision, warnings, err := engine.Lenient(context.Background(), &record, dctx)
		if err != nil {
			fmt.Fprintf(stderr, "replay: %v\n", err)
			return 1
		}
		for _, w := range warnings {
			fmt.Fprintf(stderr, "divergence: %s\n", w)
		}
		return printDecision(stdout, stderr, decision)
	}

	decision, err := engine.Strict(context.Background(), &record, dctx)
	if err != nil {
		var mismatch *contracts.ReplayMismatchError
		if errors.As(err, &mismatch) {
			fmt.Fprintf(stderr, "replay mismatch: %v\n", mismatch.Differences)
			return 1
		}
		fmt.Fprintf(stderr, "replay: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "replay ok")
	return printDecision(stdout, stderr, decision)
}

func printDecision(stdout, stderr io.Writer, decision *contracts.Decision) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(decision); err != nil {
		fmt.Fprintf(stderr, "encode decision: %v\n", err)
		return 1
	}
	return 0
}
