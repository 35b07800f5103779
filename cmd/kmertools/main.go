// Command kmertools manipulates on-disk k-mer databases: reads KMC1, KMC2
// and KFF files, applies set algebra between pairs of databases, rebuilds
// databases in either on-disk format, and drives the dump/histogram text
// sinks. Subcommand routing is a plain switch on os.Args[1], one flag
// group per subcommand.
package main

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/kmerset/kmertools/internal/bundle"
	"github.com/kmerset/kmertools/internal/common"
	"github.com/kmerset/kmertools/internal/kff"
	"github.com/kmerset/kmertools/internal/kmc1"
	"github.com/kmerset/kmertools/internal/kmc2"
	"github.com/kmerset/kmertools/internal/kmer"
	"github.com/kmerset/kmertools/internal/operator"
	"github.com/kmerset/kmertools/internal/sink"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "transform":
		err = runTransform(args)
	case "simple":
		err = runSimple(args)
	case "complex":
		err = runComplex(args)
	case "filter":
		err = runFilter(args)
	case "compare":
		err = runCompare(args)
	case "info":
		err = runInfo(args)
	case "check":
		err = runCheck(args)
	case "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`kmertools - k-mer database set algebra and transforms

Usage:
    kmertools <command> [arguments]

Commands:
    transform  Rewrite or summarize one database (dump, histogram, reduce)
    simple     Apply one set operation between two databases
    complex    Evaluate a multi-database expression file (out of scope)
    filter     Filter a FASTA/FASTQ file by database membership (out of scope)
    compare    Exit 0 iff two databases hold identical (k-mer, counter) sets
    info       Print a database's header fields
    check      Validate a database's on-disk structure
    help       Show this help

Global flags (accepted by every subcommand): -t<n> threads, -v verbose, -hp hide percent.
Per-input flags: -ci<n>/-cx<n> counter cutoffs.
Per-output flags: -ci<n>/-cx<n>/-cs<n>/-o{kmc,kff}/-oc{min,max,sum,diff,left,right}.`)
}

// globalFlags is the Config plus progress reporter every subcommand builds
// from whichever -t/-v/-hp flags appear anywhere in its argument list.
type globalFlags struct {
	cfg      common.Config
	progress *common.ProgressReporter
}

// takeGlobalFlags scans args for -t<n>, -v, -hp, returning the resolved
// Config/ProgressReporter plus the remaining positional/per-db flags.
func takeGlobalFlags(args []string) (globalFlags, []string) {
	cfg := common.Config{Threads: runtime.NumCPU()}
	rest := make([]string, 0, len(args))
	for _, a := range args {
		switch {
		case a == "-v":
			cfg.Verbose = true
		case a == "-hp":
			cfg.HidePercent = true
		case strings.HasPrefix(a, "-t"):
			if n, err := strconv.Atoi(a[2:]); err == nil && n > 0 {
				cfg.Threads = n
			}
		default:
			rest = append(rest, a)
		}
	}
	cfg = cfg.Resolved()
	return globalFlags{cfg: cfg, progress: common.NewProgressReporter(cfg)}, rest
}

// cutoffFlags accumulates -ci<n>/-cx<n>/-cs<n> seen in one db's flag group.
type cutoffFlags struct {
	cutoff     common.CutoffRange
	counterMax uint32
}

func defaultCutoffFlags() cutoffFlags {
	return cutoffFlags{cutoff: common.DefaultCutoff(), counterMax: ^uint32(0)}
}

// takeDbFlags scans args for -ci<n>/-cx<n>/-cs<n>, returning the resolved
// cutoffFlags plus the remaining arguments.
func takeDbFlags(args []string) (cutoffFlags, []string) {
	f := defaultCutoffFlags()
	rest := make([]string, 0, len(args))
	for _, a := range args {
		switch {
		case strings.HasPrefix(a, "-ci"):
			if n, err := strconv.ParseUint(a[3:], 10, 32); err == nil {
				if n == 0 {
					n = 1 // a zero cutoff means "no filtering", same as 1
				}
				f.cutoff.Min = uint32(n)
			}
		case strings.HasPrefix(a, "-cx"):
			if n, err := strconv.ParseUint(a[3:], 10, 32); err == nil {
				f.cutoff.Max = uint32(n)
			}
		case strings.HasPrefix(a, "-cs"):
			if n, err := strconv.ParseUint(a[3:], 10, 32); err == nil {
				f.counterMax = uint32(n)
			}
		default:
			rest = append(rest, a)
		}
	}
	return f, rest
}

// takeCombiner scans args for -oc{min,max,sum,diff,left,right}, falling
// back to def when none is given. Each operation has its own natural
// default: union/intersect fall back to min, counters_subtract must fall
// back to diff (max(0, A-B)) or it silently computes the wrong thing.
func takeCombiner(args []string, def operator.Combiner) (operator.Combiner, []string) {
	c := def
	rest := make([]string, 0, len(args))
	for _, a := range args {
		if strings.HasPrefix(a, "-oc") {
			switch a[3:] {
			case "min":
				c = operator.CombinerMin
			case "max":
				c = operator.CombinerMax
			case "sum":
				c = operator.CombinerSum
			case "diff":
				c = operator.CombinerDiff
			case "left":
				c = operator.CombinerFromLeft
			case "right":
				c = operator.CombinerFromRight
			}
			continue
		}
		rest = append(rest, a)
	}
	return c, rest
}

func takeOutputFormat(args []string) (string, []string) {
	format := "kmc"
	rest := make([]string, 0, len(args))
	for _, a := range args {
		if strings.HasPrefix(a, "-o") && (a == "-okmc" || a == "-okff") {
			format = a[2:]
			continue
		}
		rest = append(rest, a)
	}
	return format, rest
}

// dbPaths derives the on-disk file path(s) for a database of the given
// format from its base path (the convention kmc1/kmc2/kff's own writers in
// this module use).
func dbPaths(base, format string) (prefix, suffix string) {
	switch format {
	case "kff":
		return base + ".kff", ""
	default:
		return base + ".kmc_pre", base + ".kmc_suf"
	}
}

// openReader opens base as an operator.Node for the given format (the
// caller-supplied "kmc1"/"kmc2"/"kff" string; there is no sniffing of the
// on-disk DBVersion here), also returning its k and a close func.
func openReader(base, format string, cutoff common.CutoffRange, g globalFlags, name string) (operator.Node, int, func() error, error) {
	prefix, suffix := dbPaths(base, format)
	switch format {
	case "kff":
		r, err := kff.Open(prefix, kff.ReaderOptions{Cutoff: cutoff, Progress: g.progress, Name: name, Threads: g.cfg.Threads})
		if err != nil {
			return nil, 0, nil, err
		}
		return r, r.K(), r.Close, nil
	case "kmc2":
		r, err := kmc2.Open(prefix, suffix, kmc2.ReaderOptions{Cutoff: cutoff, Progress: g.progress, Name: name, Threads: g.cfg.Threads})
		if err != nil {
			return nil, 0, nil, err
		}
		return r, r.Header().K, r.Close, nil
	default:
		r, err := kmc1.Open(prefix, suffix, kmc1.ReaderOptions{Cutoff: cutoff, Progress: g.progress, Name: name})
		if err != nil {
			return nil, 0, nil, err
		}
		return r, r.Header().K, r.Close, nil
	}
}

// runTransform implements `kmertools transform <in-base> <in-fmt> <op> <out> [flags...]`
// where op is one of dump, histogram, reduce.
func runTransform(args []string) error {
	g, args := takeGlobalFlags(args)
	if len(args) < 4 {
		return common.NewError(common.KindBadArgument, "main.transform", "", nil)
	}
	inBase, inFmt, op, out := args[0], args[1], args[2], args[3]
	rest := args[4:]
	inFlags, rest := takeDbFlags(rest)

	reader, k, closeReader, err := openReader(inBase, inFmt, inFlags.cutoff, g, "in")
	if err != nil {
		return err
	}
	defer closeReader()
	g.progress.Start()
	defer g.progress.Stop()

	switch op {
	case "dump":
		outFlags, _ := takeDbFlags(rest)
		w, err := sink.NewDumpWriter(out, kmer.Canonical, outFlags.cutoff, outFlags.counterMax)
		if err != nil {
			return err
		}
		if err := pumpToSink(reader, w); err != nil {
			return err
		}
		return w.Finish()
	case "histogram":
		outFlags, _ := takeDbFlags(rest)
		w, err := sink.NewHistogramWriter(out, outFlags.cutoff)
		if err != nil {
			return err
		}
		if err := pumpToSink(reader, w); err != nil {
			return err
		}
		return w.Finish()
	case "reduce":
		outFlags, rest2 := takeDbFlags(rest)
		outFmt, _ := takeOutputFormat(rest2)
		return writeDatabase(reader, k, outFmt, out, outFlags)
	default:
		return common.NewError(common.KindUnsupported, "main.transform", op, nil)
	}
}

// runSimple implements `kmertools simple <A-base> <A-fmt> <op> <B-base> <B-fmt> <out> [flags...]`
// where op is one of union, intersect, kmers_subtract, counters_subtract.
func runSimple(args []string) error {
	g, args := takeGlobalFlags(args)
	if len(args) < 6 {
		return common.NewError(common.KindBadArgument, "main.simple", "", nil)
	}
	aBase, aFmt, op, bBase, bFmt, out := args[0], args[1], args[2], args[3], args[4], args[5]
	rest := args[6:]

	aFlags, rest := takeDbFlags(rest)
	bFlags, rest := takeDbFlags(rest)
	combinerDefault := operator.CombinerMin
	if op == "counters_subtract" {
		combinerDefault = operator.CombinerDiff
	}
	combiner, rest := takeCombiner(rest, combinerDefault)
	outFlags, rest := takeDbFlags(rest)
	outFmt, _ := takeOutputFormat(rest)

	a, ak, closeA, err := openReader(aBase, aFmt, aFlags.cutoff, g, "A")
	if err != nil {
		return err
	}
	defer closeA()
	b, bk, closeB, err := openReader(bBase, bFmt, bFlags.cutoff, g, "B")
	if err != nil {
		return err
	}
	defer closeB()
	if ak != bk {
		return common.NewError(common.KindBadArgument, "main.simple", "", nil)
	}
	g.progress.Start()
	defer g.progress.Stop()

	var node operator.Node
	switch op {
	case "union":
		node = operator.Union(a, b, combiner)
	case "intersect":
		node = operator.Intersect(a, b, combiner)
	case "kmers_subtract":
		node = operator.KmersSubtract(a, b)
	case "counters_subtract":
		node = operator.CountersSubtract(a, b, combiner)
	default:
		return common.NewError(common.KindBadArgument, "main.simple", op, nil)
	}
	return writeDatabase(node, ak, outFmt, out, outFlags)
}

// runComplex is a stub: a multi-database boolean-expression-file grammar
// is a larger parser than this tool currently commits to supporting.
func runComplex(args []string) error {
	return common.NewError(common.KindUnsupported, "main.complex", "", nil)
}

// runFilter is a stub: FASTA/FASTQ membership filtering needs its own
// sequence reader and isn't implemented yet.
func runFilter(args []string) error {
	return common.NewError(common.KindUnsupported, "main.filter", "", nil)
}

// runCompare implements `kmertools compare <A-base> <A-fmt> <B-base> <B-fmt>`,
// exiting 0 iff both databases hold identical (k-mer, counter) sets.
func runCompare(args []string) error {
	g, args := takeGlobalFlags(args)
	if len(args) < 4 {
		return common.NewError(common.KindBadArgument, "main.compare", "", nil)
	}
	a, _, closeA, err := openReader(args[0], args[1], common.DefaultCutoff(), g, "A")
	if err != nil {
		return err
	}
	defer closeA()
	b, _, closeB, err := openReader(args[2], args[3], common.DefaultCutoff(), g, "B")
	if err != nil {
		return err
	}
	defer closeB()

	if !compareStreams(a, b) {
		os.Exit(1)
	}
	return nil
}

// compareStreams walks both sorted streams in lock-step via the same
// cursor shape twoInputNode uses internally; the databases are equal iff
// every tick lines up on both k-mer and counter, with nothing left over
// on either side at exhaustion.
func compareStreams(a, b operator.Node) bool {
	ac, bc := newCompareCursor(a), newCompareCursor(b)
	for {
		switch {
		case !ac.has && !bc.has:
			return true
		case !ac.has || !bc.has:
			return false
		default:
			cmp := kmer.Compare(&ac.rec.Kmer, &bc.rec.Kmer)
			switch {
			case cmp == 0:
				if ac.rec.Counter != bc.rec.Counter {
					return false
				}
				ac.advance()
				bc.advance()
			default:
				return false
			}
		}
	}
}

// compareCursor pulls one record at a time off a Node, mirroring
// operator's internal cursor without importing its unexported type.
type compareCursor struct {
	node operator.Node
	cur  *bundle.Bundle
	rec  bundle.Record
	has  bool
}

func newCompareCursor(n operator.Node) *compareCursor {
	c := &compareCursor{node: n}
	c.advance()
	return c
}

func (c *compareCursor) advance() {
	for {
		if c.cur != nil && !c.cur.Empty() {
			c.rec = c.cur.Pop()
			c.has = true
			return
		}
		b, ok := c.node.NextBundle()
		if !ok {
			c.has = false
			return
		}
		c.cur = b
	}
}

// runInfo prints a database's header fields using Go's default struct
// formatting; there's no fixed output contract to match here.
func runInfo(args []string) error {
	g, args := takeGlobalFlags(args)
	if len(args) < 2 {
		return common.NewError(common.KindBadArgument, "main.info", "", nil)
	}
	switch args[1] {
	case "kff":
		prefix, _ := dbPaths(args[0], "kff")
		r, err := kff.Open(prefix, kff.ReaderOptions{Cutoff: common.DefaultCutoff(), Threads: g.cfg.Threads})
		if err != nil {
			return err
		}
		defer r.Close()
		fmt.Printf("format=kff k=%d\n", r.K())
	case "kmc2":
		prefix, suffix := dbPaths(args[0], "kmc2")
		r, err := kmc2.Open(prefix, suffix, kmc2.ReaderOptions{Cutoff: common.DefaultCutoff(), Threads: g.cfg.Threads})
		if err != nil {
			return err
		}
		defer r.Close()
		fmt.Printf("format=kmc2 %+v\n", r.Header())
	default:
		prefix, suffix := dbPaths(args[0], "kmc1")
		r, err := kmc1.Open(prefix, suffix, kmc1.ReaderOptions{Cutoff: common.DefaultCutoff()})
		if err != nil {
			return err
		}
		defer r.Close()
		fmt.Printf("format=kmc1 %+v\n", r.Header())
	}
	return nil
}

// runCheck validates a database's on-disk structure can be opened and
// fully walked without a format error.
func runCheck(args []string) error {
	g, args := takeGlobalFlags(args)
	if len(args) < 2 {
		return common.NewError(common.KindBadArgument, "main.check", "", nil)
	}
	r, _, closeReader, err := openReader(args[0], args[1], common.DefaultCutoff(), g, "check")
	if err != nil {
		fmt.Println("FAIL")
		return err
	}
	defer closeReader()
	for {
		b, ok := r.NextBundle()
		if !ok {
			break
		}
		for !b.Empty() {
			b.Pop()
		}
	}
	if e, ok := r.(interface{ Err() error }); ok && e.Err() != nil {
		fmt.Println("FAIL")
		return e.Err()
	}
	fmt.Println("OK")
	return nil
}

// pumpToSink drains reader into sink s, one bundle at a time.
func pumpToSink(reader operator.Node, s operator.Sink) error {
	for {
		b, ok := reader.NextBundle()
		if !ok {
			return nil
		}
		if !s.Push(b) {
			return common.NewError(common.KindFileIO, "main.pumpToSink", "", nil)
		}
	}
}

// writeDatabase drains node into a new kmc1/kmc2/kff database at out, in
// the format named by outFmt, applying outFlags' cutoffs and counter max.
func writeDatabase(node operator.Node, k int, outFmt, out string, outFlags cutoffFlags) error {
	switch outFmt {
	case "kff":
		w, err := kff.NewWriter(out+".kff", kff.WriterOptions{
			K: k, CounterSize: 4, CutoffMin: outFlags.cutoff.Min, CutoffMax: outFlags.cutoff.Max,
			CounterMax: outFlags.counterMax, Canonical: true,
		})
		if err != nil {
			return err
		}
		if err := pumpToSink(node, w); err != nil {
			return err
		}
		return w.Finish()
	case "kmc2":
		prefixLen := kmc1.ChoosePrefixLen(k, 1<<20)
		w, err := kmc2.NewWriter(out+".kmc_pre", out+".kmc_suf", kmc2.WriterOptions{
			K: k, CounterSize: 4, PrefixLen: prefixLen, SignatureLen: 6, BinCount: 64,
			CutoffMin: outFlags.cutoff.Min, CutoffMax: outFlags.cutoff.Max,
			CounterMax: outFlags.counterMax, Canonical: true,
		})
		if err != nil {
			return err
		}
		if err := pumpToSink(node, w); err != nil {
			return err
		}
		return w.Finish()
	default:
		prefixLen := kmc1.ChoosePrefixLen(k, 1<<20)
		w, err := kmc1.NewWriter(out+".kmc_pre", out+".kmc_suf", kmc1.WriterOptions{
			K: k, CounterSize: 4, PrefixLen: prefixLen,
			CutoffMin: outFlags.cutoff.Min, CutoffMax: outFlags.cutoff.Max,
			CounterMax: outFlags.counterMax, Canonical: true,
		})
		if err != nil {
			return err
		}
		if err := pumpToSink(node, w); err != nil {
			return err
		}
		return w.Finish()
	}
}

