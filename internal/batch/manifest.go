// Package batch scores many submissions from a YAML manifest concurrently
// and reports one outcome per job.
package batch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/okian/scorer/internal/domain/model"
	"gopkg.in/yaml.v3"
)

// ErrManifest marks an unusable manifest.
var ErrManifest = errors.New("invalid manifest")

// Manifest lists the jobs of one batch run.
//
//	defaults:
//	  metric: rmse
//	  ground_truth_ref: data/truth.csv
//	jobs:
//	  - name: baseline
//	    submission_ref: data/baseline.csv
//	  - name: tuned
//	    submission_ref: https://example.org/tuned.csv.gz
//	    metric: mae
type Manifest struct {
	Defaults model.Request `yaml:"defaults"`
	Jobs     []Entry       `yaml:"jobs"`
}

// Entry is one job. Empty request fields take the manifest defaults.
type Entry struct {
	Name          string `yaml:"name"`
	model.Request `yaml:",inline"`
}

// LoadManifest reads and validates a manifest file. Relative local refs are
// resolved against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	m.rebase(filepath.Dir(path))
	return m, nil
}

// ParseManifest decodes a manifest, applies defaults and validates it.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	if len(m.Jobs) == 0 {
		return nil, fmt.Errorf("%w: no jobs", ErrManifest)
	}

	seen := make(map[string]struct{}, len(m.Jobs))
	for i := range m.Jobs {
		j := &m.Jobs[i]
		if j.Name == "" {
			j.Name = "job-" + strconv.Itoa(i+1)
		}
		if _, dup := seen[j.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate job name %q", ErrManifest, j.Name)
		}
		seen[j.Name] = struct{}{}

		if j.GroundTruthRef == "" {
			j.GroundTruthRef = m.Defaults.GroundTruthRef
		}
		if j.Metric == "" {
			j.Metric = m.Defaults.Metric
		}
		if strings.TrimSpace(j.SubmissionRef) == "" {
			return nil, fmt.Errorf("%w: job %q has no submission_ref", ErrManifest, j.Name)
		}
		if strings.TrimSpace(j.Metric) == "" {
			return nil, fmt.Errorf("%w: job %q has no metric", ErrManifest, j.Name)
		}
	}
	return &m, nil
}

func (m *Manifest) rebase(dir string) {
	for i := range m.Jobs {
		m.Jobs[i].SubmissionRef = rebaseRef(dir, m.Jobs[i].SubmissionRef)
		m.Jobs[i].GroundTruthRef = rebaseRef(dir, m.Jobs[i].GroundTruthRef)
	}
}

func rebaseRef(dir, ref string) string {
	if ref == "" || strings.Contains(ref, "://") || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(dir, ref)
}
