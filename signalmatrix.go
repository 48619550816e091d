// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"strings"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	log "github.com/sirupsen/logrus"
)

// signalMatrix builds a signal matrix for each of a list of bigWig
// files, using the same region listing, and writes each one as a .npy
// file.
type signalMatrix struct {
	cfg MatrixConfig
	batchArgs
}

// matrixFlags registers the signal extraction flags, storing values in
// cfg.
func matrixFlags(flags *flag.FlagSet, cfg *MatrixConfig, strand *string) {
	flags.IntVar(&cfg.HalfWidth, "halfwidth", cfg.HalfWidth, "read `N` bp on each side of each region's center")
	flags.IntVar(&cfg.Resolution, "resolution", cfg.Resolution, "average signal over bins of `N` bp (must divide 2*halfwidth)")
	flags.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "regions per worker task")
	flags.IntVar(&cfg.Workers, "threads", cfg.Workers, "number of concurrent track readers")
	flags.StringVar(strand, "strand", cfg.Strand.String(), "where to reverse '-' strand regions: reader, matrix, or none")
}

func (cmd *signalMatrix) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err == errUsage {
		return 2
	} else if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

var errUsage = errors.New("usage error")

// matrixFilename returns the name of the .npy file built from the
// given track.
func matrixFilename(trackPath string) string {
	return strings.TrimSuffix(filepath.Base(trackPath), ".bigWig") + ".npy"
}

func (cmd *signalMatrix) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if cmd.cfg.Open == nil {
		cmd.cfg = DefaultMatrixConfig()
	}
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	runlocal := flags.Bool("local", false, "run on local host (default: run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	regionsFilename := flags.String("regions", "", "region listing `file` (bed)")
	trackFilenames := flags.String("track", "", "comma-separated signal track `files` (bigWig)")
	outputFilename := flags.String("o", "", "output `file` (.npy) if there is only one track")
	outputDir := flags.String("output-dir", "", "output `directory` (one .npy file per track)")
	flags.Float64Var(&cmd.cfg.Scale, "scale", cmd.cfg.Scale, "multiply signal values by `F`")
	var strand string
	matrixFlags(flags, &cmd.cfg, &strand)
	cmd.batchArgs.Flags(flags)
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return errUsage
	} else if flags.NArg() > 0 {
		return fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
	}
	tracks := splitList(*trackFilenames)
	if *regionsFilename == "" || len(tracks) == 0 {
		return errors.New("must specify -regions and -track")
	}
	cmd.cfg.Strand, err = parseStrandPolicy(strand)
	if err != nil {
		return err
	}
	if err = cmd.cfg.Validate(); err != nil {
		return err
	}
	if err = cmd.batchArgs.Validate(); err != nil {
		return err
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	if !*runlocal {
		if *outputFilename != "" || *outputDir != "" {
			return errors.New("cannot specify output file or directory in container mode: not implemented")
		}
		paths := []*string{regionsFilename}
		for i := range tracks {
			paths = append(paths, &tracks[i])
		}
		mounts := arvadosContainerRunner{Client: arvados.NewClientFromEnv()}
		err = mounts.TranslatePaths(paths...)
		if err != nil {
			return err
		}
		outputs, err := cmd.RunBatches(context.Background(), func(ctx context.Context, batch int) (string, error) {
			runner := arvadosContainerRunner{
				Name:        fmt.Sprintf("motif-umap signal-matrix batch %d/%d", batch, cmd.batches),
				Client:      mounts.Client,
				ProjectUUID: *projectUUID,
				RAM:         16 << 30,
				VCPUs:       cmd.cfg.Workers,
				Priority:    *priority,
				Preemptible: true,
				Mounts:      mounts.Mounts,
			}
			runner.Args = append([]string{"signal-matrix", "-local=true",
				"-regions=" + *regionsFilename,
				"-track=" + strings.Join(tracks, ","),
				"-output-dir=/mnt/output",
				fmt.Sprintf("-scale=%g", cmd.cfg.Scale),
				fmt.Sprintf("-halfwidth=%d", cmd.cfg.HalfWidth),
				fmt.Sprintf("-resolution=%d", cmd.cfg.Resolution),
				fmt.Sprintf("-chunk-size=%d", cmd.cfg.ChunkSize),
				fmt.Sprintf("-threads=%d", cmd.cfg.Workers),
				"-strand=" + cmd.cfg.Strand.String(),
			}, cmd.batchArgs.Args(batch)...)
			return runner.RunContext(ctx)
		})
		if err != nil {
			return err
		}
		for _, output := range outputs {
			fmt.Fprintln(stdout, output)
		}
		return nil
	}

	if *outputFilename != "" && len(tracks) != 1 {
		return errors.New("-o can only be used with a single track (use -output-dir)")
	} else if *outputFilename == "" && *outputDir == "" {
		return errors.New("must specify -o or -output-dir in local mode")
	}
	regions, err := LoadRegions(*regionsFilename)
	if err != nil {
		return err
	}
	if *outputDir != "" {
		err = os.MkdirAll(*outputDir, 0777)
		if err != nil {
			return err
		}
	}
	for _, track := range cmd.Slice(tracks) {
		fnm := *outputFilename
		if fnm == "" {
			fnm = filepath.Join(*outputDir, matrixFilename(track))
		}
		sm, err := BuildSignalMatrix(regions, track, cmd.cfg)
		if err != nil {
			return err
		}
		m, err := sm.Dense(cmd.cfg.Columns())
		if err != nil {
			return err
		}
		err = writeNumpyMatrix(fnm, m)
		if err != nil {
			return err
		}
	}
	return nil
}
