// Command xddmcp is the CLI entry point (spec §6): it parses host
// specs, builds a TransferManager, runs the retry loop, and reports
// exit codes. Adapted from the teacher's cmd/cli idiom of a single
// urfave/cli.App with fatih/color-highlighted error output, collapsed
// from the teacher's many subcommands down to one default action since
// this tool has a single positional-argument grammar.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/bws-xdd/xddmcp/xdd/endpoint"
	"github.com/bws-xdd/xddmcp/xdd/hostspec"
	"github.com/bws-xdd/xddmcp/xdd/nlog"
	"github.com/bws-xdd/xddmcp/xdd/progress"
	"github.com/bws-xdd/xddmcp/xdd/xfer"
)

const (
	exitOK     = 0
	exitUsage  = 1
	exitFailed = 2
)

// retryBackoff is the fixed pause between attempts of the CLI-level
// retry loop (spec §4.8 "Retry policy").
const retryBackoff = 5 * time.Second

func main() {
	app := cli.NewApp()
	app.Name = "xddmcp"
	app.Usage = "multi-host parallel file copy"
	app.UsageText = "xddmcp [options] [[user@]host[,host]:]src ... [user@]host:dst"
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "a", Usage: "enable resume (consult/write cookies and progress marker)"},
		cli.IntFlag{Name: "b", Value: 8192, Usage: "request size in KiB"},
		cli.StringFlag{Name: "d", Usage: "direct I/O on {s|d|b}"},
		cli.StringFlag{Name: "o", Usage: "serial ordering on {s|d|b}"},
		cli.IntFlag{Name: "n", Value: 0, Usage: "retries on failure"},
		cli.IntFlag{Name: "p", Value: 40010, Usage: "first listen port"},
		cli.BoolFlag{Name: "r", Usage: "recursive (informational)"},
		cli.IntFlag{Name: "t", Value: 8, Usage: "total parallel streams"},
		cli.Int64Flag{Name: "s", Usage: "override transfer size in bytes"},
		cli.BoolFlag{Name: "v", Usage: "enable verbose log"},
		cli.BoolFlag{Name: "V", Usage: "enable timestamped log"},
		cli.StringFlag{Name: "mover-path", Usage: "directory containing the mover executable"},
		cli.StringFlag{Name: "ssh-user", Usage: "default SSH user for remote hosts"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		printErr(err)
		os.Exit(exitCodeFor(err))
	}
}

type usageError struct{ error }

func exitCodeFor(err error) int {
	if _, ok := err.(usageError); ok {
		return exitUsage
	}
	return exitFailed
}

var fred = color.New(color.FgHiRed).SprintFunc()

func printErr(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", fred("ERROR:"), err)
}

func run(c *cli.Context) error {
	if c.NArg() < 2 {
		return usageError{fmt.Errorf("need at least one source and one destination spec")}
	}

	if c.Bool("V") {
		nlog.Infof("xddmcp starting")
	}

	args := c.Args()
	dstSpec, err := hostspec.Parse(args[len(args)-1])
	if err != nil {
		return usageError{err}
	}
	if len(dstSpec.Hosts) > 1 {
		return usageError{fmt.Errorf("exactly one destination host is supported")}
	}

	var sources []endpoint.HostSpec
	for _, raw := range args[:len(args)-1] {
		s, err := hostspec.Parse(raw)
		if err != nil {
			return usageError{err}
		}
		if len(s.Hosts) == 0 {
			sources = append(sources, endpoint.HostSpec{Path: s.Path})
			continue
		}
		for _, h := range s.Hosts {
			sources = append(sources, endpoint.HostSpec{User: h.User, Host: h.Host, Path: s.Path})
		}
	}

	sinkSpec := endpoint.HostSpec{Path: dstSpec.Path}
	if len(dstSpec.Hosts) == 1 {
		sinkSpec.User, sinkSpec.Host = dstSpec.Hosts[0].User, dstSpec.Hosts[0].Host
	}

	directIOSink, directIOSource := parseSide(c.String("d"))
	serialSink, serialSource := parseSide(c.String("o"))

	cfg := xfer.Config{
		Sink:         xfer.HostDescriptor{Spec: sinkSpec},
		ReqSize:      c.Int64("b") * 1024,
		BasePort:     c.Int("p"),
		TotalThreads: c.Int("t"),
		SizeOverride: c.Int64("s"),
		DirectIOSink: directIOSink, DirectIOSource: directIOSource,
		SerialSink: serialSink, SerialSource: serialSource,
		Resume:    c.Bool("a"),
		Interval:  time.Second,
		Verbose:   c.Bool("v"),
		MoverPath: c.String("mover-path"),
		SSHUser:   c.String("ssh-user"),
	}
	threads := distributeEven(c.Int("t"), len(sources))
	for i, s := range sources {
		cfg.Sources = append(cfg.Sources, xfer.HostDescriptor{Spec: s, Threads: threads[i]})
	}

	retries := c.Int("n")
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			nlog.Warningf("retrying transfer (attempt %d/%d)", attempt+1, retries+1)
			time.Sleep(retryBackoff)
		}
		lastErr = attemptTransfer(cfg, sources[0].Path, sinkSpec.Path)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func attemptTransfer(cfg xfer.Config, sourcePath, sinkPath string) error {
	m := xfer.New(cfg)
	if err := m.Create(); err != nil {
		return err
	}
	defer m.TearDown()

	renderer := progress.NewRenderer(os.Stderr)
	res, err := m.Run(sinkPath, sourcePath, renderer.Update)
	renderer.Done()
	if err != nil {
		return err
	}
	for _, reason := range res.Errors {
		fmt.Fprintf(os.Stderr, "%s %s\n", fred("ERROR:"), reason)
	}
	if res.FilesFailed > 0 {
		return fmt.Errorf("%d file(s) failed to transfer", res.FilesFailed)
	}
	return nil
}

// parseSide maps the `-d`/`-o` {s|d|b} argument to (sink, source) bools.
func parseSide(v string) (sink, source bool) {
	switch v {
	case "s":
		return false, true
	case "d":
		return true, false
	case "b":
		return true, true
	default:
		return false, false
	}
}

// distributeEven spreads total streams across n hosts, remainder over
// the leading hosts (spec §3).
func distributeEven(total, n int) []int {
	out := make([]int, n)
	if n == 0 {
		return out
	}
	base, extra := total/n, total%n
	for i := range out {
		out[i] = base
		if i < extra {
			out[i]++
		}
	}
	return out
}
