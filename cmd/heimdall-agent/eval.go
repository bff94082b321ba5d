package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/heimdall-go/internal/config"
	"github.com/rafaeljc/heimdall-go/internal/logger"
	"github.com/rafaeljc/heimdall-go/internal/ruleengine"
	"github.com/rafaeljc/heimdall-go/internal/schema"
)

type evalOptions struct {
	file         string
	format       string
	flagKey      string
	kind         string
	def          string
	targetingKey string
	attrs        []string
	logLevel     string
}

// evalOutput mirrors the evaluation API response.
type evalOutput struct {
	FlagKey  string            `json:"flagKey"`
	Value    any               `json:"value"`
	Variant  string            `json:"variant,omitempty"`
	Reason   string            `json:"reason"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func newEvalCmd() *cobra.Command {
	var opts evalOptions

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate one flag from a flag document and print the result as JSON",
		Example: `  heimdall-agent eval -f flags.yaml --flag new-checkout --type string --default classic \
    --targeting-key user-123 --attr plan=beta --attr appVersion=2.1.0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEval(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "flags.yaml", "flag document to evaluate against")
	f.StringVar(&opts.format, "format", "", "document format (json|yaml); inferred from the extension when empty")
	f.StringVar(&opts.flagKey, "flag", "", "flag key to evaluate")
	f.StringVar(&opts.kind, "type", "boolean", "requested type (boolean|string|integer|double|object)")
	f.StringVar(&opts.def, "default", "", "default value (JSON literal; plain text for strings)")
	f.StringVarP(&opts.targetingKey, "targeting-key", "k", "", "stable identifier used for bucketing")
	f.StringArrayVarP(&opts.attrs, "attr", "a", nil, "context attribute as name=value (repeatable; JSON literals are typed)")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level for diagnostics written to stderr")
	_ = cmd.MarkFlagRequired("flag")

	return cmd
}

func runEval(stdout, stderr io.Writer, opts evalOptions) error {
	log := logger.NewWithWriter(&config.AppConfig{
		Name:        "heimdall-agent",
		Version:     "cli",
		Environment: config.EnvironmentProduction,
		LogLevel:    opts.logLevel,
		LogFormat:   "text",
	}, stderr)

	doc, err := loadDocument(opts.file, opts.format)
	if err != nil {
		return err
	}

	kind, err := ruleengine.ParseKind(opts.kind)
	if err != nil {
		return err
	}
	def, err := schema.FromInterface(parseLiteral(opts.def, kind), kind)
	if err != nil {
		return fmt.Errorf("invalid default: %w", err)
	}
	if def.Kind() != kind {
		return fmt.Errorf("invalid default: %s is not a %s", def, kind)
	}

	attrs := make(map[string]ruleengine.Value, len(opts.attrs))
	for _, a := range opts.attrs {
		name, raw, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return fmt.Errorf("invalid attribute %q, expected name=value", a)
		}
		declared := doc.FieldTypes.Lookup(name)
		v, err := schema.FromInterface(parseLiteral(raw, declared), declared)
		if err != nil {
			return fmt.Errorf("invalid attribute %q: %w", name, err)
		}
		attrs[name] = v
	}

	engine := ruleengine.New(logger.Component(log, "engine"))
	res := engine.Evaluate(opts.flagKey, def, doc.FlagSet, ruleengine.NewContext(opts.targetingKey, attrs))

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(evalOutput{
		FlagKey:  opts.flagKey,
		Value:    res.Value.Interface(),
		Variant:  res.Variant,
		Reason:   string(res.Reason),
		Metadata: res.Metadata,
	})
}

// loadDocument reads and parses a flag document. An empty format is inferred
// from the file extension.
func loadDocument(path, format string) (*schema.Document, error) {
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	f, err := schema.ParseFormat(format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc, err := schema.Parse(data, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// parseLiteral reads raw as a single JSON value when it is one (numbers keep
// their integer/double distinction). Anything else, and every value destined
// for a string or semver, is taken verbatim.
func parseLiteral(raw string, declared ruleengine.Kind) any {
	if declared == ruleengine.KindString || declared == ruleengine.KindSemver {
		return raw
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil || v == nil {
		return raw
	}
	// Reject trailing input such as "1.10.0", which would otherwise decode as 1.1.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return raw
	}
	return v
}
