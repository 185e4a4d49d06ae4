package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Mindburn-Labs/arbiter/pkg/agent"
	"github.com/Mindburn-Labs/arbiter/pkg/audit"
	"github.com/Mindburn-Labs/arbiter/pkg/config"
	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/enrich"
	"github.com/Mindburn-Labs/arbiter/pkg/evaluator"
	"github.com/Mindburn-Labs/arbiter/pkg/operator"
	"github.com/Mindburn-Labs/arbiter/pkg/rules"
	"github.com/Mindburn-Labs/arbiter/pkg/scoring"
)

// buildEnrichment loads an enrichment config and returns a registry that
// carries the fetch operator alongside the defaults. path may come from
// the flag or ARBITER_ENRICH_CONFIG; empty means no enrichment.
func buildEnrichment(path string, logger *slog.Logger) (*operator.Registry, *enrich.Provider, error) {
	if path == "" {
		return operator.Default(), nil, nil
	}
	ecfg, err := enrich.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	opts := []enrich.ProviderOption{}
	if logger != nil {
		opts = append(opts, enrich.WithLogger(logger))
	}
	provider := enrich.NewProvider(ecfg, opts...)
	reg := operator.NewRegistry()
	enrich.Register(reg, provider)
	return reg, provider, nil
}

func runDecide(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("decide", flag.ContinueOnError)
	fs.SetOutput(stderr)
	rulesPath := fs.String("rules", "", "path to a JSON ruleset document")
	contextPath := fs.String("context", "", "path to a JSON context payload")
	strategyName := fs.String("strategy", "weighted_average", "scoring strategy: weighted_average|max_weight|consensus|threshold")
	auditPath := fs.String("audit", "", "append audit records to this JSONL file")
	enrichPath := fs.String("enrich", "", "path to an enrichment endpoints config (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *rulesPath == "" || *contextPath == "" {
		fmt.Fprintln(stderr, "decide requires -rules and -context")
		return 2
	}

	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	if *enrichPath == "" {
		*enrichPath = cfg.EnrichPath
	}

	reg, provider, err := buildEnrichment(*enrichPath, logger)
	if err != nil {
		fmt.Fprintf(stderr, "load enrichment config: %v\n", err)
		return 1
	}

	raw, err := os.ReadFile(*rulesPath)
	if err != nil {
		fmt.Fprintf(stderr, "read rules: %v\n", err)
		return 1
	}
	doc, err := rules.Parse(raw, reg)
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

	opts := []agent.Option{agent.WithLogger(logger)}
	if provider != nil {
		opts = append(opts, agent.WithEnrichmentJournal(provider))
	}
	if cfg.StrictAgent {
		opts = append(opts, agent.WithStrictMode())
	}
	if cfg.ValidateEvaluations {
		opts = append(opts, agent.WithValidation())
	}
	if *auditPath != "" {
		sink, err := audit.NewFileSink(*auditPath)
		if err != nil {
			fmt.Fprintf(stderr, "open audit sink: %v\n", err)
			return 1
		}
		defer sink.Close()
		opts = append(opts, agent.WithAuditSink(sink))
	}

	a := agent.New(strategy, []evaluator.Evaluator{ev}, opts...)
	decision, err := a.Decide(context.Background(), dctx)
	if err != nil {
		fmt.Fprintf(stderr, "decide: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(decision); err != nil {
		fmt.Fprintf(stderr, "encode decision: %v\n", err)
		return 1
	}
	return 0
}

func loadContext(path string) (*contracts.Context, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var attrs map[string]any
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, err
	}
	return contracts.NewContext(attrs)
}

func strategyByName(name string) (scoring.Strategy, error) {
	switch name {
	case "weighted_average":
		return scoring.WeightedAverage{}, nil
	case "max_weight":
		return scoring.MaxWeight{}, nil
	case "consensus":
		return scoring.Consensus{MinAgreement: 0.5}, nil
	case "threshold":
		return scoring.Threshold{Tau: 0.5, Fallback: "review"}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
