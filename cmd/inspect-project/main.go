package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"github.com/mitchellh/go-wordwrap"

	"github.com/speakeasy-api/valueflow/analysis"
	"github.com/speakeasy-api/valueflow/pkg/config"
	"github.com/speakeasy-api/valueflow/pkg/fixture"
	"github.com/speakeasy-api/valueflow/pkg/playground"
	"github.com/speakeasy-api/valueflow/pkg/schemaexport"
)

func main() {
	color := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, color))
}

type options struct {
	configPath string
	asYAML     bool
	parallel   bool
	all        bool
	logLevel   string
	width      uint
}

func run(args []string, stdout, stderr io.Writer, color bool) int {
	fs := flag.NewFlagSet("inspect-project", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opt options
	fs.StringVar(&opt.configPath, "config", "", "analysis config file (YAML)")
	fs.BoolVar(&opt.asYAML, "yaml", false, "print module schemas as an OpenAPI document")
	fs.BoolVar(&opt.parallel, "parallel", false, "drain the worklist with AnalyzeParallel")
	fs.BoolVar(&opt.all, "all", false, "include properties nobody reads in schemas")
	fs.StringVar(&opt.logLevel, "log", "", "log level override (error, warn, info, debug)")
	fs.UintVar(&opt.width, "width", 100, "wrap warnings at this many columns")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: inspect-project [flags] fixture.yaml\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	if err := inspect(fs.Arg(0), opt, stdout, stderr, color); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func inspect(path string, opt options, stdout, stderr io.Writer, color bool) error {
	var cfg config.Config
	if opt.configPath != "" {
		loaded, err := config.Load(opt.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if opt.logLevel != "" {
		cfg.LogLevel = opt.logLevel
	}
	cfg, err := config.ValidateConfig(cfg)
	if err != nil {
		return err
	}

	fx, err := fixture.Load(path)
	if err != nil {
		return err
	}

	opts := cfg.Options()
	if opts.LogLevel != "" {
		opts.Logger = analysis.NewLogger(analysis.ParseLogLevel(opts.LogLevel), stderr)
	}
	p, err := analysis.NewProject(opts)
	if err != nil {
		return err
	}
	modules, err := fx.Build(p)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if opt.parallel {
		err = p.AnalyzeParallel(ctx, opts.Workers)
	} else {
		err = p.Analyze(ctx)
	}
	if err != nil {
		return err
	}

	if opt.asYAML {
		exporter := schemaexport.New(p, schemaexport.Options{AllMembers: opt.all})
		named := make([]schemaexport.Named, 0, len(modules))
		for _, m := range modules {
			named = append(named, schemaexport.Named{Name: m.Name(), Schema: exporter.Module(m)})
		}
		title := fx.Name
		if title == "" {
			title = path
		}
		return schemaexport.WriteYAML(stdout, schemaexport.Document(title, named))
	}

	pr := printer{w: stdout, color: color}
	names := moduleNames(p)
	for _, m := range modules {
		pr.module(m, names)
	}
	pr.stats(p.Stats())
	pr.warnings(p.Warnings(), opt.width)
	return nil
}

func moduleNames(p *analysis.Project) map[analysis.ModuleID]string {
	names := make(map[analysis.ModuleID]string)
	for _, m := range p.Modules() {
		names[m.ID()] = m.Name()
	}
	return names
}

type printer struct {
	w     io.Writer
	color bool
}

func (pr printer) bold(s string) string {
	if !pr.color {
		return s
	}
	return "\x1b[1m" + s + "\x1b[0m"
}

func (pr printer) dim(s string) string {
	if !pr.color {
		return s
	}
	return "\x1b[2m" + s + "\x1b[0m"
}

func (pr printer) module(m *analysis.ModuleRecord, names map[analysis.ModuleID]string) {
	fmt.Fprintf(pr.w, "%s %s\n", pr.bold("module "+m.Name()), pr.dim(fmt.Sprintf("[%s, version %d]", m.State(), m.Version())))

	members := m.GetAllMembers()
	rows := make([][2]string, 0, len(members))
	for _, name := range sortedKeys(members) {
		rows = append(rows, [2]string{name, members[name].String()})
	}
	pr.table(rows)

	refs := idNames(m.References(), names)
	by := idNames(m.ReferencedBy(), names)
	if len(refs) > 0 {
		fmt.Fprintf(pr.w, "  imports:     %s\n", strings.Join(refs, ", "))
	}
	if len(by) > 0 {
		fmt.Fprintf(pr.w, "  imported by: %s\n", strings.Join(by, ", "))
	}
	if unresolved := m.UnresolvedImports(); len(unresolved) > 0 {
		fmt.Fprintf(pr.w, "  unresolved:  %s\n", strings.Join(unresolved, ", "))
	}
	fmt.Fprintln(pr.w)
}

// table prints name/value rows with the names padded to a common display
// width, so wide runes in binding names keep the columns aligned.
func (pr printer) table(rows [][2]string) {
	if len(rows) == 0 {
		fmt.Fprintf(pr.w, "  %s\n", pr.dim("(no bindings)"))
		return
	}
	width := 0
	for _, r := range rows {
		if w := runewidth.StringWidth(r[0]); w > width {
			width = w
		}
	}
	for _, r := range rows {
		fmt.Fprintf(pr.w, "  %s  %s\n", runewidth.FillRight(r[0], width), r[1])
	}
}

func (pr printer) stats(s analysis.Stats) {
	fmt.Fprintf(pr.w, "%s %s runs of %s units, %s enqueued, %s escalations, %s values, max queue %s\n",
		pr.bold("stats:"),
		humanize.Comma(int64(s.Runs)),
		humanize.Comma(int64(s.Units)),
		humanize.Comma(int64(s.Enqueued)),
		humanize.Comma(int64(s.Escalations)),
		humanize.Comma(int64(s.Values)),
		humanize.Comma(int64(s.MaxQueueSize)))
}

func (pr printer) warnings(warnings []string, width uint) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintln(pr.w)
	fmt.Fprintln(pr.w, wordwrap.WrapString(playground.FormatWarnings(warnings), width))
}

func sortedKeys(m map[string]analysis.ValueSet) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func idNames(ids []analysis.ModuleID, names map[analysis.ModuleID]string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := names[id]; ok {
			out = append(out, n)
		}
	}
	return out
}
