// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

const defaultMarks = "H3K4me3,H3K27ac,H3K4me1,WGBS,H3K27me3,H3K9me3,CTCF"

// pipeline runs everything from reference epigenome metadata to the
// final embedding, caching each signal matrix, the feature matrix,
// and the embedding in the output directory.
//
// The collaborators are filled in from flags if nil.
type pipeline struct {
	metadata     MetadataProvider
	scanner      MotifScanner
	embedder     Embedder
	cfg          MatrixConfig
	scaleFactors scaleFactors

	epigenomes       []string
	motifFiles       []string
	marks            []string
	mirrorFormat     string
	zscoreDir        string
	rdhsFilename     string
	outputDir        string
	extraSignalFiles []string
	extraMotifSites  []string
	skipActiveFilter bool
	maxRegions       int
	seed             int64
}

// trackSpec is one column block of the feature matrix.
type trackSpec struct {
	Label string
	Path  string
	Cache string
	Scale float64
}

func (cmd *pipeline) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err == errUsage {
		return 2
	} else if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func splitList(s string) []string {
	var out []string
	for _, x := range strings.Split(s, ",") {
		if x = strings.TrimSpace(x); x != "" {
			out = append(out, x)
		}
	}
	return out
}

func (cmd *pipeline) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if cmd.cfg.Open == nil {
		cmd.cfg = DefaultMatrixConfig()
	}
	if cmd.scaleFactors == nil {
		cmd.scaleFactors = scaleFactors{}
		for mark, f := range defaultScaleFactors {
			cmd.scaleFactors[mark] = f
		}
	}
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	epigenomes := flags.String("reference-epigenomes", "", "comma-separated ENCODE `accessions` of reference epigenomes to use")
	motifFiles := flags.String("motif-files", "", "comma-separated paths to motif `files` in MEME format")
	marks := flags.String("marks", defaultMarks, "comma-separated epigenomic `marks` to use")
	flags.StringVar(&cmd.mirrorFormat, "encode-mirror-format", "/data/pdisk/signal/%s/%s.bigWig", "`format` for paths to local ENCODE files (experiment accession, file accession)")
	flags.StringVar(&cmd.zscoreDir, "encode-z-score-directory", "/data/pdisk/Signal-Files", "path to DNase Z-score `directory`")
	flags.StringVar(&cmd.rdhsFilename, "rdhs-coordinates", "/data/common/genome/GRCh38-rDHSs.bed", "path to rDHS coordinates `file`")
	twoBit := flags.String("twobit", "/data/common/genome/hg38.2bit", "path to genome `file` in 2bit format")
	flags.StringVar(&cmd.outputDir, "output-directory", "", "path to output `directory`")
	extraSignalFiles := flags.String("extra-signal-files", "", "comma-separated paths to extra signal `files`")
	extraMotifSites := flags.String("extra-motif-sites", "", "comma-separated paths to extra motif site `files`")
	flags.BoolVar(&cmd.skipActiveFilter, "skip-active-filtering", false, "cluster all motif sites, not just chromatin accessible ones")
	flags.IntVar(&cmd.maxRegions, "max-regions", 150000, "use at most `N` motif instances (after shuffling)")
	flags.Int64Var(&cmd.seed, "seed", 0, "random `seed` for shuffling motif instances (0 = use current time)")
	embedderName := flags.String("embedder", "umap", "embedding `method` (umap or pca)")
	encodeURL := flags.String("encode-url", "https://www.encodeproject.org", "ENCODE portal base `URL`")
	flags.Var(cmd.scaleFactors, "scale-factors", "comma-separated `mark=factor` pairs overriding the default per-mark scale factors")
	var strand string
	matrixFlags(flags, &cmd.cfg, &strand)
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return errUsage
	} else if flags.NArg() > 0 {
		return fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
	}
	cmd.epigenomes = splitList(*epigenomes)
	cmd.motifFiles = splitList(*motifFiles)
	cmd.marks = splitList(*marks)
	cmd.extraSignalFiles = splitList(*extraSignalFiles)
	cmd.extraMotifSites = splitList(*extraMotifSites)
	if len(cmd.epigenomes) == 0 || len(cmd.motifFiles) == 0 || cmd.outputDir == "" {
		return errors.New("must specify -reference-epigenomes, -motif-files, and -output-directory")
	}
	if cmd.maxRegions < 1 {
		return fmt.Errorf("%w: -max-regions %d < 1", errConfig, cmd.maxRegions)
	}
	cmd.cfg.Strand, err = parseStrandPolicy(strand)
	if err != nil {
		return err
	}
	if err = cmd.cfg.Validate(); err != nil {
		return err
	}
	for _, mark := range cmd.marks {
		if _, err := cmd.scaleFactors.Lookup(mark); err != nil {
			return fmt.Errorf("%w: %s", errConfig, err)
		}
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	if cmd.metadata == nil {
		cmd.metadata = newEncodeClient(*encodeURL)
	}
	if cmd.scanner == nil {
		cmd.scanner = &fimoScanner{TwoBit: *twoBit, Stderr: stderr}
	}
	if cmd.embedder == nil {
		cmd.embedder, err = newEmbedder(*embedderName, stderr)
		if err != nil {
			return err
		}
	}
	return cmd.runPipeline()
}

func (cmd *pipeline) runPipeline() error {
	err := os.MkdirAll(cmd.outputDir, 0777)
	if err != nil {
		return err
	}

	log.Printf("ensuring local signal files are present for %d marks in %d epigenomes...", len(cmd.marks), len(cmd.epigenomes))
	var tracks []trackSpec
	var dnase []string
	for _, e := range cmd.epigenomes {
		datasets, err := cmd.metadata.ReferenceEpigenome(e)
		if err != nil {
			return err
		}
		if ds, ok := datasets["DNase-seq"]; ok {
			dnase = append(dnase, ds.Accession)
		} else if !cmd.skipActiveFilter {
			return fmt.Errorf("reference epigenome %s has no DNase-seq dataset", e)
		}
		files, err := signalFiles(cmd.metadata, e, datasets, cmd.marks)
		if err != nil {
			return err
		}
		for _, mark := range cmd.marks {
			sf := files[mark]
			path := fmt.Sprintf(cmd.mirrorFormat, sf.Experiment, sf.File)
			err = cmd.metadata.EnsureLocal(path, sf.File)
			if err != nil {
				return err
			}
			scale, _ := cmd.scaleFactors.Lookup(mark)
			tracks = append(tracks, trackSpec{
				Label: e + "_" + mark,
				Path:  path,
				Cache: filepath.Join(cmd.outputDir, matrixFilename(path)),
				Scale: scale,
			})
		}
	}
	for _, sf := range cmd.extraSignalFiles {
		tracks = append(tracks, trackSpec{
			Label: sf,
			Path:  sf,
			Cache: filepath.Join(cmd.outputDir, filepath.Base(sf)+".npy"),
			Scale: 1,
		})
	}

	log.Printf("getting active rDHSs for %d reference epigenomes...", len(cmd.epigenomes))
	rdhss, err := loadRDHSs(cmd.rdhsFilename)
	if err != nil {
		return err
	}
	var active []Region
	if cmd.skipActiveFilter {
		active = allRDHSs(rdhss)
	} else {
		active, err = activeRDHSs(rdhss, cmd.zscoreDir, dnase)
		if err != nil {
			return err
		}
	}
	log.Printf("found %d active rDHSs...", len(active))

	log.Print("identifying motif instances...")
	var motifs []Region
	if !cmd.skipActiveFilter {
		motifs, err = cmd.scanner.Scan(active, cmd.motifFiles)
		if err != nil {
			return err
		}
	}
	for _, fnm := range cmd.extraMotifSites {
		sites, err := LoadRegions(fnm)
		if err != nil {
			return err
		}
		motifs = append(motifs, intersectMotifSites(sites, active)...)
	}
	err = writeRegionsFile(filepath.Join(cmd.outputDir, "motifs.bed"), motifs)
	if err != nil {
		return err
	}
	log.Printf("found %d total motif instances...", len(motifs))

	log.Print("generating signal matrices...")
	regions, err := cmd.subsample(motifs)
	if err != nil {
		return err
	}
	if len(regions) == 0 {
		return errors.New("no motif instances to embed")
	}
	var blocks []featureBlock
	for _, t := range tracks {
		t := t
		log.Printf("%s...", t.Path)
		m, err := generateIfNecessary(t.Cache, func() (*mat.Dense, error) {
			sm, err := BuildSignalMatrix(regions, t.Path, cmd.cfg)
			if err != nil {
				return nil, err
			}
			log.Printf("%s: %d rows, %d minus strand", t.Label, len(sm.Rows), len(sm.Minus))
			return sm.Dense(cmd.cfg.Columns())
		})
		if err != nil {
			return err
		}
		if r, _ := m.Dims(); r != len(regions) {
			return fmt.Errorf("%s has %d rows but there are %d regions (delete it to recompute)", t.Cache, r, len(regions))
		}
		blocks = append(blocks, featureBlock{Label: t.Label, Matrix: scaled(m, t.Scale)})
	}

	allvalues, err := generateIfNecessary(filepath.Join(cmd.outputDir, "all-values.npy"), func() (*mat.Dense, error) {
		return concatFeatures(blocks)
	})
	if err != nil {
		return err
	}
	err = writeMarkOrderFile(filepath.Join(cmd.outputDir, "mark-order.txt"), blocks)
	if err != nil {
		return err
	}

	log.Print("computing embedding...")
	_, err = generateIfNecessary(filepath.Join(cmd.outputDir, "umap.npy"), func() (*mat.Dense, error) {
		return cmd.embedder.Embed(allvalues)
	})
	if err != nil {
		return err
	}
	log.Print("done")
	return nil
}

// subsample returns the regions to build matrices for. If a previous
// run already chose them, that choice is reused so that cached
// matrices stay aligned with it. Otherwise motifs are shuffled and
// the first maxRegions are kept.
func (cmd *pipeline) subsample(motifs []Region) ([]Region, error) {
	fnm := filepath.Join(cmd.outputDir, "motifs.150k.bed")
	if _, err := os.Stat(fnm); err == nil {
		log.Printf("using existing %s", fnm)
		return LoadRegions(fnm)
	}
	seed := cmd.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Printf("shuffling motif instances with seed %d", seed)
	shuffled := append([]Region(nil), motifs...)
	rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if len(shuffled) > cmd.maxRegions {
		shuffled = shuffled[:cmd.maxRegions]
	}
	err := writeRegionsFile(fnm, shuffled)
	if err != nil {
		return nil, err
	}
	return shuffled, nil
}

func writeRegionsFile(fnm string, regions []Region) error {
	f, err := os.Create(fnm)
	if err != nil {
		return err
	}
	defer f.Close()
	err = WriteRegions(f, regions)
	if err != nil {
		return err
	}
	return f.Close()
}

func writeMarkOrderFile(fnm string, blocks []featureBlock) error {
	f, err := os.Create(fnm)
	if err != nil {
		return err
	}
	defer f.Close()
	err = writeMarkOrder(f, blocks)
	if err != nil {
		return err
	}
	return f.Close()
}
