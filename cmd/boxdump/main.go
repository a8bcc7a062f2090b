// Command boxdump maps an MP4 file and prints its box structure.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/shirou/gopsutil/v3/process"
	"gopkg.in/yaml.v3"

	"github.com/tetsuo/boxtree"
	"github.com/tetsuo/boxtree/internal/config"
	"github.com/tetsuo/boxtree/internal/mmapfile"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		format     = flag.String("format", "text", "output format: text or yaml")
		top        = flag.Bool("top", false, "only scan top-level box headers")
		stats      = flag.Bool("stats", false, "report resident memory around parsing")
		level      = flag.String("log", "", "log level, overrides the configuration")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <file.mp4>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	logger := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := options{format: *format, top: *top, stats: *stats}
	if err := run(ctx, cfg, logger, flag.Arg(0), os.Stdout, opts); err != nil {
		logger.Error("boxdump failed", "file", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

type options struct {
	format string
	top    bool
	stats  bool
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, path string, out io.Writer, opts options) error {
	if opts.format != "text" && opts.format != "yaml" {
		return fmt.Errorf("unknown format %q", opts.format)
	}
	rss := newRSSReporter(logger, opts.stats)
	rss.report("before map")

	f, err := mmapfile.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if opts.top {
		return scan(ctx, f, out)
	}

	p, err := cfg.Parser(logger)
	if err != nil {
		return err
	}
	tree, err := p.Parse(ctx, f)
	if err != nil {
		return err
	}
	rss.report("after parse", "boxes", tree.Count())

	// The tree only references the mapping; printing after unmapping
	// shows that nothing was copied out of it.
	tree.Detach()
	if err := f.Close(); err != nil {
		return err
	}
	rss.report("after unmap")

	if opts.format == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(viewNodes(tree.Roots)); err != nil {
			return err
		}
		return enc.Close()
	}
	return tree.Dump(out)
}

func scan(ctx context.Context, src boxtree.Source, out io.Writer) error {
	sc := boxtree.NewScannerContext(ctx, src)
	for sc.Next() {
		h := sc.Header()
		fmt.Fprintf(out, "[%s] offset=%d size=%d header=%d\n", h.Type, h.Offset, h.Size, h.HeaderSize)
	}
	return sc.Err()
}

// nodeView is the YAML form of a node.
type nodeView struct {
	Type       string     `yaml:"type"`
	UserType   string     `yaml:"usertype,omitempty"`
	Offset     uint64     `yaml:"offset"`
	HeaderSize uint64     `yaml:"header_size"`
	Size       uint64     `yaml:"size"`
	Entries    *uint32    `yaml:"entries,omitempty"`
	Children   []nodeView `yaml:"children,omitempty"`
}

func viewNodes(nodes []*boxtree.Node) []nodeView {
	views := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		v := nodeView{
			Type:       n.Type.String(),
			Offset:     n.Offset,
			HeaderSize: n.HeaderSize,
			Size:       n.Size,
			Children:   viewNodes(n.Children),
		}
		if n.Type == boxtree.TypeUuid {
			v.UserType = fmt.Sprintf("%x", n.UserType)
		}
		if n.Table != nil {
			count := n.Table.Count
			v.Entries = &count
		}
		views = append(views, v)
	}
	return views
}

// rssReporter logs the resident set size of this process.
type rssReporter struct {
	logger *slog.Logger
	proc   *process.Process
}

func newRSSReporter(logger *slog.Logger, enabled bool) *rssReporter {
	r := &rssReporter{logger: logger}
	if !enabled {
		return r
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("memory stats unavailable", "error", err)
		return r
	}
	r.proc = proc
	return r
}

func (r *rssReporter) report(stage string, args ...any) {
	if r.proc == nil {
		return
	}
	mi, err := r.proc.MemoryInfo()
	if err != nil {
		r.logger.Warn("memory stats unavailable", "stage", stage, "error", err)
		return
	}
	r.logger.Info("memory", append([]any{"stage", stage, "rss", mi.RSS}, args...)...)
}
