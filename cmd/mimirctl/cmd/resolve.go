package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/mimir/internal/ruledoc"
	"github.com/rafaeljc/mimir/internal/ruleengine"
)

type resolveOptions struct {
	model    string
	sets     []string
	maxDepth int
	asJSON   bool
}

type resolvedKey struct {
	Key     string `json:"key"`
	Value   any    `json:"value"`
	Source  string `json:"source"`
	Model   string `json:"model,omitempty"`
	Warning string `json:"warning,omitempty"`
}

func newResolveCmd(root *rootOptions) *cobra.Command {
	opts := &resolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve FILE [KEY...]",
		Short: "Resolve keys against a model of a rule document",
		Example: `  mimirctl resolve rules.yaml --model mobile --set verb=edit title color
  mimirctl resolve rules.yaml --model base --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, root, opts, args[0], args[1:])
		},
	}

	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "model to resolve against (required)")
	cmd.Flags().StringArrayVarP(&opts.sets, "set", "s", nil, "override a key, as key=value (repeatable)")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", ruleengine.DefaultMaxDepth, "nesting limit of key lookups, 0 disables it")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of text")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func runResolve(cmd *cobra.Command, root *rootOptions, opts *resolveOptions, path string, names []string) error {
	log := root.logger(cmd)

	_, bundle, err := loadFile(log, path)
	if err != nil {
		return err
	}
	model, ok := bundle.Model(opts.model)
	if !ok {
		return fmt.Errorf("model %q not found (have %s)", opts.model, strings.Join(bundle.ModelNames(), ", "))
	}

	c := ruleengine.New(log, ruleengine.WithMaxDepth(opts.maxDepth)).NewContext(model)
	for _, set := range opts.sets {
		name, raw, found := strings.Cut(set, "=")
		if !found {
			return fmt.Errorf("invalid --set %q, want key=value", set)
		}
		id, err := bundle.Registry.Resolve(name)
		if err != nil {
			return err
		}
		v, err := ruledoc.ParseValue(raw, id.Type())
		if err != nil {
			return fmt.Errorf("--set %s: %w", name, err)
		}
		if err := c.SetValue(id, v); err != nil {
			return err
		}
	}

	ids := bundle.Registry.Keys()
	if len(names) > 0 {
		ids = ids[:0:0]
		for _, name := range names {
			id, err := bundle.Registry.Resolve(name)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
	}

	results := make([]resolvedKey, 0, len(ids))
	for _, id := range ids {
		res := c.Trace(id)
		var rerr *ruleengine.RecursionError
		if errors.As(res.Err, &rerr) {
			return fmt.Errorf("resolve %s: %w", id.Name(), rerr)
		}
		out := resolvedKey{Key: id.Name(), Value: res.Value, Source: res.Source.String(), Model: res.Model}
		if res.Err != nil {
			out.Warning = res.Err.Error()
		}
		results = append(results, out)
	}

	w := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, r := range results {
		origin := r.Source
		if r.Model != "" {
			origin += " from " + r.Model
		}
		fmt.Fprintf(w, "%s = %#v (%s)\n", r.Key, r.Value, origin)
		if r.Warning != "" {
			fmt.Fprintf(w, "  warning: %s\n", r.Warning)
		}
	}
	return nil
}
