// Command lapels remaps alignments made against a modtools pseudo-genome
// back onto the original reference, using the MOD file that describes the
// substitutions, insertions and deletions baked into the pseudo-genome. See
// spec.md and SPEC_FULL.md for the full semantics.
package main

import (
	"flag"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"

	"github.com/biogo/lapels/annotate"
	"github.com/biogo/lapels/bam"
	"github.com/biogo/lapels/chromset"
	"github.com/biogo/lapels/fai"
	"github.com/biogo/lapels/matefix"
	"github.com/biogo/lapels/posmap"
	"github.com/biogo/lapels/sam"
	"github.com/biogo/lapels/variant"
	"github.com/biogo/lapels/variantfile"
	"github.com/pkg/errors"
)

var (
	modFile   = flag.String("mod", "", "MOD file describing the pseudo-genome's variants (required)")
	bamFile   = flag.String("bam", "-", "Input BAM file aligned against the pseudo-genome, or - for stdin")
	outFile   = flag.String("out", "-", "Output BAM file in reference coordinates, or - for stdout")
	faiFile   = flag.String("fai", "", "FASTA index (.fai) of the reference, for chromosome lengths")
	fastaFile = flag.String("fasta", "", "Reference FASTA, indexed on the fly if -fai is not given")
	lenFile   = flag.String("chrom-lengths", "", "Fallback \"<chrom>\\t<length>\" table, used if neither -fai nor -fasta is given")
	aliasFile = flag.String("alias", "", "Optional chromosome name alias table between the BAM and the MOD file")
	chromList = flag.String("chroms", "", "Comma-separated list of chromosomes to process; default is every chromosome the input BAM references")

	substTag = flag.String("subst-tag", "ZS", "Tag prefix for the substitution count written as <tag>0")
	insTag   = flag.String("ins-tag", "ZI", "Tag prefix for the insertion count written as <tag>0")
	delTag   = flag.String("del-tag", "ZD", "Tag prefix for the deletion count written as <tag>0")
	noTags   = flag.Bool("no-tags", false, "Do not annotate alignments with variant-count and provenance tags")

	lenient     = flag.Bool("lenient", false, "Skip alignments whose pseudo-genome position falls outside a chromosome's variant-derived bounds, instead of aborting")
	parallelism = flag.Int("parallelism", runtime.NumCPU(), "Number of chromosomes to annotate concurrently")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		log.Fatalf("unparsed flags, please check flag syntax: %q", strings.Join(flag.Args(), " "))
	}
	if *modFile == "" {
		log.Fatalf("-mod is required")
	}

	mod, err := variantfile.Open(*modFile)
	if err != nil {
		log.Fatalf("%v", err)
	}

	lengths, err := loadLengths()
	if err != nil {
		log.Fatalf("%v", err)
	}
	aliases, err := loadAliases()
	if err != nil {
		log.Fatalf("%v", err)
	}
	chroms := chromset.NewSet(lengths, aliases)

	var prefixes *annotate.TagPrefixes
	if !*noTags {
		prefixes = &annotate.TagPrefixes{Subst: *substTag, Ins: *insTag, Del: *delTag}
	}
	opts := annotate.Options{TagPrefixes: prefixes, Lenient: *lenient}

	in, err := openInput(*bamFile)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer in.Close()

	br, err := bam.NewReader(in, *parallelism)
	if err != nil {
		log.Fatalf("opening BAM: %v", err)
	}
	defer br.Close()

	wanted := wantedChroms(*chromList)

	if err := run(br, chroms, mod, opts, wanted); err != nil {
		log.Fatalf("%v", err)
	}
	log.Debug.Printf("exiting")
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	return f, nil
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func loadLengths() (fai.Index, error) {
	switch {
	case *faiFile != "":
		f, err := os.Open(*faiFile)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", *faiFile)
		}
		defer f.Close()
		return fai.ReadFrom(f)
	case *fastaFile != "":
		f, err := os.Open(*fastaFile)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", *fastaFile)
		}
		defer f.Close()
		return fai.NewIndex(f)
	case *lenFile != "":
		f, err := os.Open(*lenFile)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", *lenFile)
		}
		defer f.Close()
		return chromset.ParseChromLengths(f)
	default:
		return nil, errors.New("one of -fai, -fasta or -chrom-lengths is required")
	}
}

func loadAliases() (chromset.Aliases, error) {
	if *aliasFile == "" {
		return nil, nil
	}
	f, err := os.Open(*aliasFile)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", *aliasFile)
	}
	defer f.Close()
	return chromset.ReadAliases(f)
}

func wantedChroms(s string) map[string]bool {
	if s == "" {
		return nil
	}
	m := map[string]bool{}
	for _, c := range strings.Split(s, ",") {
		m[strings.TrimSpace(c)] = true
	}
	return m
}

// shard is one chromosome's annotation pipeline: records routed to in are
// annotated against driver and written, as a self-contained BAM stream, to
// a pipe whose read end is handed to bam.Merger.
type shard struct {
	in     chan *sam.Record
	reader *bam.Reader
	errc   chan error
}

// run fans the coordinate-sorted records of br out to one shard per
// chromosome, annotates each chromosome concurrently, and merges the
// results back into a single coordinate-sorted BAM written to *outFile.
// This mirrors lapels' original per-chromosome worker model (see
// SPEC_FULL.md §C.3) without requiring the whole input to fit in memory.
func run(br *bam.Reader, chroms *chromset.Set, mod *variantfile.File, opts annotate.Options, wanted map[string]bool) error {
	h := br.Header()

	shards := map[string]*shard{}
	var order []string

	sem := make(chan struct{}, *parallelism)

	newShard := func(chromName string) (*shard, error) {
		length, ok := chroms.Len(chromName)
		if !ok {
			return nil, errors.Errorf("lapels: no length for chromosome %s", chromName)
		}
		varChrom := chroms.Resolve(chromName)
		table := mod.Table(varChrom)
		var vs []variant.Variant
		if table != nil {
			vs = table.Variants
		}
		pm, err := posmap.Build(chromName, vs, length)
		if err != nil {
			return nil, errors.Wrapf(err, "building position map for %s", chromName)
		}
		driver := annotate.NewDriver(chromName, pm, table, opts)

		pr, pw := io.Pipe()
		sr := &shard{in: make(chan *sam.Record, 256), errc: make(chan error, 1)}

		reader, err := bam.NewReader(pr, 1)
		if err != nil {
			return nil, errors.Wrap(err, "opening shard reader")
		}
		sr.reader = reader

		go func() {
			sem <- struct{}{}
			defer func() { <-sem }()

			bw, err := bam.NewWriter(pw, h, 1)
			if err != nil {
				sr.errc <- err
				pw.CloseWithError(err)
				return
			}
			var fixer = matefix.NopFixer{}
			for rec := range sr.in {
				res, err := driver.Annotate(rec)
				if err != nil {
					if driver.Skip(err) {
						log.Error.Printf("skipping %s on %s: %v", rec.Name, chromName, err)
						continue
					}
					sr.errc <- err
					pw.CloseWithError(err)
					return
				}
				if err := annotate.ApplyTags(rec, res, opts.TagPrefixes); err != nil {
					sr.errc <- err
					pw.CloseWithError(err)
					return
				}
				if err := fixer.Fix(rec); err != nil {
					sr.errc <- err
					pw.CloseWithError(err)
					return
				}
				if err := bw.Write(rec); err != nil {
					sr.errc <- err
					pw.CloseWithError(err)
					return
				}
			}
			if err := bw.Close(); err != nil {
				sr.errc <- err
				pw.CloseWithError(err)
				return
			}
			close(sr.errc)
			pw.Close()
		}()

		return sr, nil
	}

	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "reading input BAM")
		}
		if rec.Ref == nil {
			continue
		}
		chromName := rec.Ref.Name()
		if wanted != nil && !wanted[chromName] {
			continue
		}
		sr, ok := shards[chromName]
		if !ok {
			sr, err = newShard(chromName)
			if err != nil {
				return err
			}
			shards[chromName] = sr
			order = append(order, chromName)
		}
		sr.in <- rec
	}

	sort.Strings(order)
	readers := make([]*bam.Reader, 0, len(order))
	for _, chromName := range order {
		close(shards[chromName].in)
		readers = append(readers, shards[chromName].reader)
	}
	if len(readers) == 0 {
		log.Error.Printf("no alignments matched the requested chromosomes")
		return nil
	}

	merger, err := bam.NewMerger(nil, readers...)
	if err != nil {
		return errors.Wrap(err, "merging annotated chromosomes")
	}

	out, err := openOutput(*outFile)
	if err != nil {
		return err
	}
	defer out.Close()

	bw, err := bam.NewWriter(out, merger.Header(), *parallelism)
	if err != nil {
		return errors.Wrap(err, "opening output BAM")
	}

	var n int
	for {
		rec, err := merger.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "merging annotated chromosomes")
		}
		if err := bw.Write(rec); err != nil {
			return errors.Wrap(err, "writing output BAM")
		}
		n++
		if n%1000000 == 0 {
			log.Printf("wrote %d alignments", n)
		}
	}
	if err := bw.Close(); err != nil {
		return errors.Wrap(err, "closing output BAM")
	}

	for _, chromName := range order {
		if err, ok := <-shards[chromName].errc; ok && err != nil {
			return errors.Wrapf(err, "annotating %s", chromName)
		}
	}
	return nil
}

