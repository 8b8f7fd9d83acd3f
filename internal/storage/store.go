// Package storage archives finished runs on disk, one directory per run.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/composim/internal/emitter"
	"github.com/san-kum/composim/internal/export"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Timestamp time.Time          `json:"timestamp"`
	TotalTime float64            `json:"total_time"`
	Status    string             `json:"status"`
	Records   int                `json:"records"`
	Elapsed   time.Duration      `json:"elapsed"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Save writes metadata.json and timeseries.csv under a new run directory and
// returns the run id.
func (s *Store) Save(meta RunMetadata, ts *emitter.Timeseries) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", meta.Name, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	meta.Timestamp = now
	meta.Records = ts.Len()

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "timeseries.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := export.WriteCSV(csvFile, ts); err != nil {
		return "", err
	}
	return runID, nil
}

// List returns the metadata of every archived run, oldest first. Directories
// without readable metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadTimeseries reads an archived timeseries back. Numeric cells become
// float64, empty cells are omitted and anything else is kept as a string.
func (s *Store) LoadTimeseries(runID string) (*emitter.Timeseries, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "timeseries.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	ts := emitter.NewTimeseries()
	if len(records) < 2 {
		return ts, nil
	}
	header := records[0]
	for i, record := range records[1:] {
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad time %q", i+1, record[0])
		}
		values := make(map[string]any, len(header)-1)
		for j := 1; j < len(record) && j < len(header); j++ {
			if record[j] == "" {
				continue
			}
			if v, err := strconv.ParseFloat(record[j], 64); err == nil {
				values[header[j]] = v
				continue
			}
			values[header[j]] = record[j]
		}
		ts.Emit(t, values)
	}
	return ts, nil
}
