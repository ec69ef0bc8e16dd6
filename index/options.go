// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package index

import (
	"math"
	"os"
	"time"

	"github.com/acoustid/go-textindex/analysis"
	"github.com/acoustid/go-textindex/similarity"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	WriteLockName  = "write.lock"
	CommitLockName = "commit.lock"
)

// Options controls the behavior of readers and writers.
type Options struct {
	// MaxBufferedDocs is the number of documents buffered in memory before a new segment is flushed.
	MaxBufferedDocs int `yaml:"max_buffered_docs"`

	// MergeFactor is the number of segments of the same size that trigger a merge.
	MergeFactor int `yaml:"merge_factor"`

	// MaxMergeDocs is the largest segment that will be produced by normal merging.
	MaxMergeDocs int `yaml:"max_merge_docs"`

	// MaxFieldLength is the maximum number of terms indexed per field, later terms are ignored.
	MaxFieldLength int `yaml:"max_field_length"`

	// TermIndexInterval is the number of terms between entries of the in-memory term index.
	TermIndexInterval int `yaml:"term_index_interval"`

	SkipInterval  int `yaml:"skip_interval"`
	MaxSkipLevels int `yaml:"max_skip_levels"`

	WriteLockTimeout  time.Duration `yaml:"write_lock_timeout"`
	CommitLockTimeout time.Duration `yaml:"commit_lock_timeout"`

	// KeepCommits is the number of most recent generations whose files are kept on disk.
	KeepCommits int `yaml:"keep_commits"`

	// AnalyzerName selects a built-in analyzer, see analysis.ByName. It is used when Analyzer is nil.
	AnalyzerName string `yaml:"analyzer"`

	Verbose bool `yaml:"verbose"`

	Analyzer   analysis.Analyzer     `yaml:"-"`
	Similarity similarity.Similarity `yaml:"-"`
}

// DefaultOptions returns the default settings.
func DefaultOptions() Options {
	return Options{
		MaxBufferedDocs:   10,
		MergeFactor:       10,
		MaxMergeDocs:      math.MaxInt32,
		MaxFieldLength:    10000,
		TermIndexInterval: 128,
		SkipInterval:      16,
		MaxSkipLevels:     10,
		WriteLockTimeout:  time.Second,
		CommitLockTimeout: 10 * time.Second,
		KeepCommits:       2,
		AnalyzerName:      "simple",
	}
}

// LoadOptions reads options from a YAML file. Missing values keep their defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, errors.Wrapf(err, "failed to read config file %v", path)
	}
	err = yaml.Unmarshal(data, &opts)
	if err != nil {
		return opts, errors.Wrapf(err, "failed to parse config file %v", path)
	}
	return opts, opts.Validate()
}

// Validate checks that the settings are usable.
func (o *Options) Validate() error {
	switch {
	case o.MaxBufferedDocs < 2:
		return errors.Errorf("max_buffered_docs must be at least 2, got %d", o.MaxBufferedDocs)
	case o.MergeFactor < 2:
		return errors.Errorf("merge_factor must be at least 2, got %d", o.MergeFactor)
	case o.MaxMergeDocs < 1:
		return errors.Errorf("max_merge_docs must be positive, got %d", o.MaxMergeDocs)
	case o.TermIndexInterval < 1:
		return errors.Errorf("term_index_interval must be positive, got %d", o.TermIndexInterval)
	case o.SkipInterval < 2:
		return errors.Errorf("skip_interval must be at least 2, got %d", o.SkipInterval)
	case o.MaxSkipLevels < 1:
		return errors.Errorf("max_skip_levels must be positive, got %d", o.MaxSkipLevels)
	case o.KeepCommits < 1:
		return errors.Errorf("keep_commits must be positive, got %d", o.KeepCommits)
	}
	if o.AnalyzerName != "" && analysis.ByName(o.AnalyzerName) == nil {
		return errors.Errorf("unknown analyzer %q", o.AnalyzerName)
	}
	return nil
}

func (o *Options) analyzer() analysis.Analyzer {
	if o.Analyzer != nil {
		return o.Analyzer
	}
	return analysis.ByName(o.AnalyzerName)
}

func (o *Options) similarity() similarity.Similarity {
	if o.Similarity != nil {
		return o.Similarity
	}
	return similarity.Default
}
