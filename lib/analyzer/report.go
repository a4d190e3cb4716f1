package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	. "cardmeter/lib/logx"
)

func writeJSON(v interface{}, path string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// keep names readable
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// SaveResults writes results as indented JSON array.
func SaveResults(results []Result, path string) error {
	if results == nil {
		results = []Result{}
	}
	return writeJSON(results, path)
}

// Summary counts results per height category.
func Summary(results []Result) (ok, failed int, perCategory map[string]int) {
	perCategory = make(map[string]int)
	for i := range results {
		if !results[i].Success {
			failed++
			continue
		}
		ok++
		perCategory[*results[i].HeightCategory]++
	}
	return
}

// TrainingRow pairs known height with shape vector.
type TrainingRow struct {
	Filename    string    `json:"filename"`
	ActualCM    float64   `json:"actual_cm"`
	ShapeValues []float64 `json:"shapeValues"`
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// heightFromName parses "148.3.png" style names.
func heightFromName(name string) (float64, bool) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	x, err := strconv.ParseFloat(stem, 64)
	if err != nil || !finite(x) || x <= 0 {
		return 0, false
	}
	return x, true
}

// ExtractTraining collects rows from cards named after their measured height.
// Files with other names or unreadable cards are skipped.
func (a *Analyzer) ExtractTraining(ctx context.Context, dir string) ([]TrainingRow, error) {
	files, err := a.ListDir(dir)
	if err != nil {
		return nil, err
	}
	rows := make([]*TrainingRow, len(files))
	err = forEach(ctx, len(files), a.cfg.Workers, func(i int) {
		name := filepath.Base(files[i])
		cm, ok := heightFromName(name)
		if !ok {
			a.log.LogPrintf(DEBUG, "%s: name is not height, skipping", name)
			return
		}
		card, err := a.loader.LoadFile(files[i])
		if err != nil {
			a.log.LogPrintf(WARN, "%s: %v", name, err)
			return
		}
		sv, err := card.ShapeVector()
		if err != nil {
			a.log.LogPrintf(WARN, "%s: %v", name, err)
			return
		}
		for _, x := range sv {
			if !finite(x) {
				a.log.LogPrintf(WARN, "%s: shape values aren't finite, skipping", name)
				return
			}
		}
		rows[i] = &TrainingRow{Filename: name, ActualCM: cm, ShapeValues: sv}
	})
	r := []TrainingRow{}
	for _, x := range rows {
		if x != nil {
			r = append(r, *x)
		}
	}
	return r, err
}

func SaveTraining(rows []TrainingRow, path string) error {
	return writeJSON(rows, path)
}
