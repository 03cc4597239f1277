package main

import (
	"flag"
	"fmt"
	"github.com/dianpeng/plan2sql/cg"
	"github.com/dianpeng/plan2sql/plan"
	"github.com/dianpeng/plan2sql/planfile"
	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"io"
	"os"
	"strings"
)

var fPlan = flag.String(
	"plan",
	"",
	"specify path of the plan file, YAML or JSON, default read from STDIN",
)

var fOutput = flag.String(
	"output",
	"",
	"specify path to save output file, default write to STDOUT",
)

var fGraph = flag.Bool(
	"graph",
	false,
	"dump the assembled operator graph to STDERR before generating SQL",
)

var fTerminator = flag.String(
	"terminator",
	";",
	"string appended to every generated statement",
)

var fLogLevel = flag.String(
	"log.level",
	"warn",
	"only log messages with the given severity or above, one of debug, info, warn, error",
)

func oops(stage string, err error) {
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "ERROR [%s] ", stage)
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(-1)
}

func newLogger(lvl string) (log.Logger, error) {
	var opt level.Option
	switch strings.ToLower(lvl) {
	case "debug":
		opt = level.AllowDebug()
	case "info":
		opt = level.AllowInfo()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		return nil, fmt.Errorf("unknown log level %s", lvl)
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, opt)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller), nil
}

func readPlan() []byte {
	var data []byte
	var err error
	if *fPlan == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(*fPlan)
	}
	if err != nil {
		oops("read plan", err)
	}
	return data
}

func main() {
	flag.Parse()

	logger, err := newLogger(*fLogLevel)
	if err != nil {
		oops("config", err)
	}

	f, err := planfile.Parse(readPlan())
	if err != nil {
		oops("parse", err)
	}

	roots, err := f.Build()
	if err != nil {
		oops("parse", err)
	}

	p, err := plan.Build(roots, &plan.Config{Logger: logger})
	if err != nil {
		oops("plan", err)
	}

	if *fGraph {
		color.New(color.FgCyan).Fprintln(os.Stderr, p.Print())
	}

	stmt, err := cg.Generate(
		p,
		&cg.Config{
			Logger:     logger,
			Terminator: *fTerminator,
		},
	)
	if err != nil {
		oops("code-gen", err)
	}

	out := strings.Join(stmt, "\n")
	if *fOutput == "" {
		fmt.Printf("%s\n", out)
	} else {
		if err := os.WriteFile(
			*fOutput,
			[]byte(out+"\n"),
			0644,
		); err != nil {
			oops("save", err)
		}
	}
	os.Exit(0)
}
