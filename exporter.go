package exapp

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ErrNilWriter is returned by ExportDOT when no destination is given.
var ErrNilWriter = errors.New("exapp: nil writer")

// DOTOption tunes the graph ExportDOT writes for a registry.
type DOTOption func(*dotOptions)

type dotOptions struct {
	name       string
	rankDir    string
	priorities bool
}

// DOTWithGraphName names the digraph. Defaults to "exapp".
func DOTWithGraphName(name string) DOTOption {
	return func(o *dotOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// DOTWithRankDir sets the Graphviz rankdir. Defaults to "LR", so dependencies
// are drawn left of the modules that need them.
func DOTWithRankDir(rankDir string) DOTOption {
	return func(o *dotOptions) {
		if rankDir != "" {
			o.rankDir = rankDir
		}
	}
}

// DOTWithPriorities adds the priority to the label of every module whose
// priority is not zero.
func DOTWithPriorities() DOTOption {
	return func(o *dotOptions) {
		o.priorities = true
	}
}

// ExportDOT renders the registered modules and their dependencies in Graphviz
// DOT format. The whole registry must resolve; the resolution error is
// returned otherwise.
func (r *Registry) ExportDOT(w io.Writer, opts ...DOTOption) error {
	if w == nil {
		return ErrNilWriter
	}

	modules, registered := r.snapshot()
	if _, err := resolveOrder(modules, registered, []string{Wildcard}); err != nil {
		return err
	}

	cfg := dotOptions{name: "exapp", rankDir: "LR"}
	for _, opt := range opts {
		opt(&cfg)
	}

	names := append([]string(nil), registered...)
	sort.Strings(names)

	if _, err := fmt.Fprintf(w, "digraph %s {\n", dotQuote(cfg.name)); err != nil {
		return err
	}
	if cfg.rankDir != "" {
		if _, err := fmt.Fprintf(w, "    rankdir=%s;\n", cfg.rankDir); err != nil {
			return err
		}
	}

	for _, name := range names {
		m := modules[name]
		if cfg.priorities && m.Priority != 0 {
			label := fmt.Sprintf("%s (priority %d)", name, m.Priority)
			if _, err := fmt.Fprintf(w, "    %s [label=%s];\n", dotQuote(name), dotQuote(label)); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "    %s;\n", dotQuote(name)); err != nil {
			return err
		}
	}

	for _, name := range names {
		deps := uniqueSorted(modules[name].Dependencies)
		for _, dep := range deps {
			if _, err := fmt.Fprintf(w, "    %s -> %s;\n", dotQuote(dep), dotQuote(name)); err != nil {
				return err
			}
		}
	}

	_, err := io.WriteString(w, "}\n")
	return err
}

func uniqueSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := append([]string(nil), values...)
	sort.Strings(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func dotQuote(id string) string {
	return `"` + dotEscaper.Replace(id) + `"`
}
