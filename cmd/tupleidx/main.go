// Command tupleidx loads, inspects and maintains an indexed RDF dataset
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/stdr"

	"github.com/aleksaelezovic/tupleindex/internal/config"
	"github.com/aleksaelezovic/tupleindex/internal/rdfio"
	"github.com/aleksaelezovic/tupleindex/internal/store"
	"github.com/aleksaelezovic/tupleindex/pkg/rdf"
)

var (
	errUsage          = errors.New("usage")
	errNotImplemented = errors.New("not implemented")
)

var configFile string

func init() {
	flag.StringVar(&configFile, "config", "", "TOML configuration file")
	flag.Usage = usage
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "Usage: tupleidx [-config file] <command> [args]")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  load <file.nt|file.nq>  - Load triples or quads")
	fmt.Fprintln(out, "  dump [index]            - Write every quad as N-Quads, in index order if given")
	fmt.Fprintln(out, "  copy <src> <dst>        - Replace the contents of index dst with those of src")
	fmt.Fprintln(out, "  rebuild <index>         - Refill a secondary index from its primary")
	fmt.Fprintln(out, "  stats                   - Print index sizes")
	fmt.Fprintln(out, "  demo                    - Run a demo with sample data")
	fmt.Fprintf(out, "Formats: %s\n", strings.Join(rdfio.ContentTypes(), ", "))
	flag.PrintDefaults()
}

func main() {
	flag.Parse()

	err := run(flag.Args())
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(2)
	case errors.Is(err, errNotImplemented):
		fmt.Fprintf(os.Stderr, "tupleidx: %v\n", err)
		os.Exit(3)
	default:
		fmt.Fprintf(os.Stderr, "tupleidx: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	stdr.SetVerbosity(cfg.Log.Verbosity)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("tupleidx")

	command, args := args[0], args[1:]
	switch command {
	case "load":
		if len(args) != 1 {
			return fmt.Errorf("%w: load takes one file", errUsage)
		}
	case "dump":
		if len(args) > 1 {
			return fmt.Errorf("%w: dump takes at most one index", errUsage)
		}
	case "copy":
		if len(args) != 2 {
			return fmt.Errorf("%w: copy takes a source and a destination index", errUsage)
		}
	case "rebuild":
		if len(args) != 1 {
			return fmt.Errorf("%w: rebuild takes one index", errUsage)
		}
	case "stats", "demo":
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	st, err := store.Open(store.Options{Config: cfg, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	switch command {
	case "load":
		err = runLoad(st, cfg, args[0])
	case "dump":
		err = runDump(st, os.Stdout, args)
	case "copy":
		err = st.CopyIndex(args[0], args[1])
	case "rebuild":
		err = st.RebuildIndex(args[0])
	case "stats":
		err = runStats(st, os.Stdout)
	case "demo":
		err = runDemo(st, os.Stdout)
	}

	if cerr := st.Close(); err == nil {
		err = cerr
	}
	if errors.Is(err, store.ErrUnknownIndex) {
		err = fmt.Errorf("%w: %v", errUsage, err)
	}
	return err
}

func runLoad(st *store.TripleStore, cfg *config.Config, fileName string) error {
	contentType, err := rdfio.ContentTypeFor(fileName)
	if err != nil {
		return fmt.Errorf("%w: %v", errNotImplemented, err)
	}

	f, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer f.Close()

	parser, err := rdfio.NewParser(contentType)
	if err != nil {
		return fmt.Errorf("%w: %v", errNotImplemented, err)
	}

	start := time.Now()
	batch := make([]*rdf.Quad, 0, cfg.Load.BatchSize)
	var loaded uint64
	flush := func() error {
		if err := st.InsertQuads(batch); err != nil {
			return err
		}
		loaded += uint64(len(batch))
		batch = batch[:0]
		return nil
	}

	err = parser.Stream(f, func(q *rdf.Quad) error {
		batch = append(batch, q)
		if len(batch) == cap(batch) {
			return flush()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", fileName, err)
	}
	if err := flush(); err != nil {
		return err
	}
	if err := st.Sync(); err != nil {
		return err
	}

	var size uint64
	if info, err := f.Stat(); err == nil {
		size = uint64(info.Size())
	}
	fmt.Printf("Loaded %s statements (%s) in %s\n", humanize.Comma(int64(loaded)), humanize.Bytes(size), time.Since(start).Round(time.Millisecond))
	return nil
}

func runDump(st *store.TripleStore, out io.Writer, args []string) error {
	var (
		it  store.QuadIterator
		err error
	)
	if len(args) == 1 {
		it, err = st.Scan(args[0])
	} else {
		it, err = st.Query(store.NewPattern(nil, nil, nil, rdf.NewVariable("g")))
	}
	if err != nil {
		return err
	}
	defer it.Close()

	w := rdfio.NewWriter(out)
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			return err
		}
		if err := w.Write(q); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	return w.Close()
}

func runStats(st *store.TripleStore, out io.Writer) error {
	stats, err := st.Stats()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Nodes allocated: %s\n", humanize.Comma(int64(stats.Nodes)))
	for _, group := range []struct {
		title   string
		indexes []store.IndexStats
	}{
		{"Triple indexes", stats.Triples},
		{"Quad indexes", stats.Quads},
	} {
		fmt.Fprintf(out, "%s:\n", group.title)
		for _, idx := range group.indexes {
			primary := ""
			if idx.Primary {
				primary = " (primary)"
			}
			fmt.Fprintf(out, "  %-5s %12s%s\n", idx.Name, humanize.Comma(idx.Size), primary)
		}
	}
	return nil
}

func runDemo(st *store.TripleStore, out io.Writer) error {
	fmt.Fprintln(out, "=== tupleidx demo ===")

	alice := rdf.NewNamedNode("http://example.org/alice")
	bob := rdf.NewNamedNode("http://example.org/bob")
	carol := rdf.NewNamedNode("http://example.org/carol")

	knows := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/knows")
	name := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name")
	age := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/age")

	graph1 := rdf.NewNamedNode("http://example.org/graph1")
	graph2 := rdf.NewNamedNode("http://example.org/graph2")

	quads := []*rdf.Quad{
		rdf.NewQuad(alice, name, rdf.NewLiteral("Alice"), nil),
		rdf.NewQuad(alice, age, rdf.NewIntegerLiteral(30), nil),
		rdf.NewQuad(alice, knows, bob, nil),
		rdf.NewQuad(bob, name, rdf.NewLiteral("Bob"), nil),
		rdf.NewQuad(bob, age, rdf.NewIntegerLiteral(25), nil),
		rdf.NewQuad(bob, knows, carol, nil),
		rdf.NewQuad(carol, name, rdf.NewLiteral("Carol"), nil),
		rdf.NewQuad(carol, age, rdf.NewIntegerLiteral(28), nil),

		rdf.NewQuad(alice, name, rdf.NewLiteral("Alice in Graph1"), graph1),
		rdf.NewQuad(bob, name, rdf.NewLiteral("Bob in Graph1"), graph1),
		rdf.NewQuad(alice, name, rdf.NewLiteral("Alice in Graph2"), graph2),
		rdf.NewQuad(carol, name, rdf.NewLiteral("Carol in Graph2"), graph2),
	}
	if err := st.InsertQuads(quads); err != nil {
		return err
	}
	count, err := st.Count()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Stored %d statements\n\n", count)

	queries := []struct {
		title   string
		pattern *store.Pattern
	}{
		{"Who does alice know?", store.NewPattern(alice, knows, nil, nil)},
		{"Everyone's age", store.NewPattern(nil, age, nil, nil)},
		{"Names in any graph", store.NewPattern(nil, name, nil, rdf.NewVariable("g"))},
		{"Names across named graphs", store.NewPattern(nil, name, nil, store.UnionGraph)},
	}
	for _, q := range queries {
		fmt.Fprintf(out, "%s  [%s]\n", q.title, q.pattern)
		if err := printMatches(st, out, q.pattern); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}
	return nil
}

func printMatches(st *store.TripleStore, out io.Writer, pattern *store.Pattern) error {
	it, err := st.Query(pattern)
	if err != nil {
		return err
	}
	defer it.Close()

	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s\n", q)
	}
	return it.Err()
}
