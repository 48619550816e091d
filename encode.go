// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package motifumap

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Marks that a reference epigenome is expected to have datasets for.
var encodeMarks = []string{"H3K4me1", "H3K4me3", "H3K27ac", "CTCF", "WGBS", "H3K9me3", "H3K27me3", "DNase-seq"}

// Some reference epigenomes are missing a mark in their
// related_datasets list; these extra experiments fill the gaps.
var extraRelatedDatasets = map[string]string{
	"ENCSR518BPP": "ENCSR017BUL",
	"ENCSR193SZM": "ENCSR892UWR",
}

// Dataset is the part of an ENCODE experiment record used here.
type Dataset struct {
	Accession   string `json:"accession"`
	AssayTitle  string `json:"assay_title"`
	Description string `json:"description"`
	Target      struct {
		Label string `json:"label"`
	} `json:"target"`
}

func (ds Dataset) matches(mark string) bool {
	return ds.AssayTitle == mark ||
		(ds.Description != "" && strings.Contains(ds.Description, mark)) ||
		ds.Target.Label == mark
}

type encodeFile struct {
	ID                   string `json:"@id"`
	OutputType           string `json:"output_type"`
	BiologicalReplicates []int  `json:"biological_replicates"`
}

type encodeAnalysis struct {
	DateCreated string   `json:"date_created"`
	Files       []string `json:"files"`
}

type encodeExperiment struct {
	Dataset
	RelatedDatasets []Dataset        `json:"related_datasets"`
	Files           []encodeFile     `json:"files"`
	Analyses        []encodeAnalysis `json:"analyses"`
}

// MetadataProvider looks up reference epigenomes and their signal
// files.
type MetadataProvider interface {
	// ReferenceEpigenome returns the dataset used for each mark.
	ReferenceEpigenome(accession string) (map[string]Dataset, error)
	// BestSignalFile returns the accession of the preferred signal
	// file of the given experiment.
	BestSignalFile(accession string, wgbs bool) (string, error)
	// EnsureLocal downloads the signal file with the given
	// accession to dest, unless dest already exists.
	EnsureLocal(dest, accession string) error
}

// SignalFile identifies a signal track by the experiment it belongs to
// and its own file accession.
type SignalFile struct {
	Experiment string
	File       string
}

// signalFiles returns the best signal file for each requested mark,
// given the datasets of a reference epigenome.
func signalFiles(mp MetadataProvider, epigenome string, datasets map[string]Dataset, marks []string) (map[string]SignalFile, error) {
	files := map[string]SignalFile{}
	for _, mark := range marks {
		ds, ok := datasets[mark]
		if !ok {
			return nil, fmt.Errorf("%s: no dataset for mark %q", epigenome, mark)
		}
		f, err := mp.BestSignalFile(ds.Accession, ds.AssayTitle == "WGBS")
		if err != nil {
			return nil, err
		}
		files[mark] = SignalFile{Experiment: ds.Accession, File: f}
	}
	return files, nil
}

type encodeClient struct {
	BaseURL string
	Client  *http.Client
}

func newEncodeClient(baseURL string) *encodeClient {
	return &encodeClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (ec *encodeClient) getExperiment(accession string) (*encodeExperiment, error) {
	url := ec.BaseURL + "/experiments/" + accession + "/?format=json"
	resp, err := ec.Client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	var exp encodeExperiment
	err = json.NewDecoder(resp.Body).Decode(&exp)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	return &exp, nil
}

func (ec *encodeClient) ReferenceEpigenome(accession string) (map[string]Dataset, error) {
	exp, err := ec.getExperiment(accession)
	if err != nil {
		return nil, err
	}
	related := exp.RelatedDatasets
	if extra, ok := extraRelatedDatasets[accession]; ok {
		exp, err := ec.getExperiment(extra)
		if err != nil {
			return nil, err
		}
		related = append(related, exp.Dataset)
	}
	datasets := map[string]Dataset{}
	for _, mark := range encodeMarks {
		for _, ds := range related {
			if ds.matches(mark) {
				datasets[mark] = ds
				break
			}
		}
		if _, ok := datasets[mark]; !ok {
			return nil, fmt.Errorf("reference epigenome %s has no dataset for %s", accession, mark)
		}
	}
	return datasets, nil
}

func (ec *encodeClient) BestSignalFile(accession string, wgbs bool) (string, error) {
	log.Debugf("choosing signal file for %s", accession)
	exp, err := ec.getExperiment(accession)
	if err != nil {
		return "", err
	}
	return bestSignalFile(exp, wgbs)
}

// bestSignalFile picks, among the fold-change files (or signal files,
// for WGBS) with the most biological replicates, the one referenced by
// the most recently created analysis.
func bestSignalFile(exp *encodeExperiment, wgbs bool) (string, error) {
	maxReps := -1
	for _, f := range exp.Files {
		if strings.Contains(f.OutputType, "fold") || (wgbs && strings.Contains(f.OutputType, "signal")) {
			if len(f.BiologicalReplicates) > maxReps {
				maxReps = len(f.BiologicalReplicates)
			}
		}
	}
	if maxReps < 0 {
		return "", fmt.Errorf("%s: no signal files", exp.Accession)
	}
	best := map[string]bool{}
	for _, f := range exp.Files {
		if strings.Contains(f.OutputType, "fold") || (wgbs && strings.Contains(f.OutputType, "signal")) {
			if len(f.BiologicalReplicates) == maxReps {
				best[f.ID] = true
			}
		}
	}
	analyses := append([]encodeAnalysis(nil), exp.Analyses...)
	sort.SliceStable(analyses, func(i, j int) bool {
		return analyses[i].DateCreated > analyses[j].DateCreated
	})
	for _, a := range analyses {
		for _, id := range a.Files {
			if best[id] {
				// "/files/ENCFF000AAA/" => "ENCFF000AAA"
				return path.Base(strings.TrimSuffix(id, "/")), nil
			}
		}
	}
	return "", fmt.Errorf("%s: no analysis references a preferred signal file", exp.Accession)
}

func (ec *encodeClient) EnsureLocal(dest, accession string) error {
	if _, err := os.Stat(dest); err == nil {
		return nil
	}
	url := fmt.Sprintf("%s/files/%s/@@download/%s.bigWig", ec.BaseURL, accession, accession)
	log.Printf("downloading %s to %s", url, dest)
	resp, err := ec.Client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	err = os.MkdirAll(filepath.Dir(dest), 0777)
	if err != nil {
		return err
	}
	f, err := os.Create(dest + "~")
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	if err != nil {
		os.Remove(dest + "~")
		return fmt.Errorf("GET %s: %w", url, err)
	}
	err = f.Close()
	if err != nil {
		return err
	}
	return os.Rename(dest+"~", dest)
}
