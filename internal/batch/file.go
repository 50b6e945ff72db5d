// Package batch loads query files and runs many recommendation queries
// concurrently, recording each as a run.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/ecm-cli/internal/model"
	"github.com/sells-group/ecm-cli/internal/sheet"
)

// File is a batch of queries plus defaults for fields an entry omits.
type File struct {
	Defaults Defaults     `yaml:"defaults"`
	Queries  []QueryEntry `yaml:"queries"`
}

// Defaults fill unset entry fields.
type Defaults struct {
	Objective    string   `yaml:"objective"`
	Budget       *float64 `yaml:"budget"`
	PaybackYears *float64 `yaml:"payback_years"`
}

// QueryEntry is one query as written in a batch file. Nil limits fall back
// to the file defaults and then to the unbounded sentinel.
type QueryEntry struct {
	Name         string   `yaml:"name"`
	BuildingType int      `yaml:"building_type"`
	Vintage      int      `yaml:"vintage"`
	ClimateZone  int      `yaml:"climate_zone"`
	Objective    string   `yaml:"objective"`
	Budget       *float64 `yaml:"budget"`
	PaybackYears *float64 `yaml:"payback_years"`
}

// LoadFile reads a batch file. Files ending in .xlsx are read as a sheet
// with a header row; anything else is parsed as YAML.
func LoadFile(path string, unbounded float64) ([]model.Query, error) {
	var (
		f   *File
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		f, err = readXLSX(path)
	default:
		f, err = readYAML(path)
	}
	if err != nil {
		return nil, err
	}
	return f.Resolve(unbounded)
}

func readYAML(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read %s", path)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "batch: parse %s", path)
	}
	return &f, nil
}

// Resolve applies defaults and converts entries to queries. Entry names
// default to their 1-based position.
func (f *File) Resolve(unbounded float64) ([]model.Query, error) {
	if len(f.Queries) == 0 {
		return nil, eris.New("batch: file has no queries")
	}
	out := make([]model.Query, 0, len(f.Queries))
	for i, e := range f.Queries {
		name := e.Name
		if name == "" {
			name = fmt.Sprintf("query-%d", i+1)
		}
		objective := e.Objective
		if objective == "" {
			objective = f.Defaults.Objective
		}
		obj, err := model.ParseObjective(objective)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: %s", name)
		}
		out = append(out, model.Query{
			Name:         name,
			Context:      model.Context{BuildingType: e.BuildingType, Vintage: e.Vintage, ClimateZone: e.ClimateZone},
			Objective:    obj,
			Budget:       firstSet(unbounded, e.Budget, f.Defaults.Budget),
			PaybackYears: firstSet(unbounded, e.PaybackYears, f.Defaults.PaybackYears),
		})
	}
	return out, nil
}

func firstSet(fallback float64, vals ...*float64) float64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return fallback
}

// readXLSX reads the first sheet. Column order is free; columns are matched
// by header name.
func readXLSX(path string) (*File, error) {
	rows, err := sheet.Read(path, sheet.ReadOptions{})
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read %s", path)
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("batch: %s is empty", path)
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"building_type", "vintage", "climate_zone"} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("batch: %s: missing column %s", path, required)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	f := &File{}
	for n, row := range rows[1:] {
		line := n + 2
		e := QueryEntry{Name: cell(row, "name"), Objective: cell(row, "objective")}
		for _, ic := range []struct {
			name string
			dst  *int
		}{
			{"building_type", &e.BuildingType},
			{"vintage", &e.Vintage},
			{"climate_zone", &e.ClimateZone},
		} {
			v, err := strconv.Atoi(cell(row, ic.name))
			if err != nil {
				return nil, eris.Wrapf(err, "batch: %s row %d: %s", path, line, ic.name)
			}
			*ic.dst = v
		}
		for _, fc := range []struct {
			name string
			dst  **float64
		}{
			{"budget", &e.Budget},
			{"payback_years", &e.PaybackYears},
		} {
			s := cell(row, fc.name)
			if s == "" {
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "batch: %s row %d: %s", path, line, fc.name)
			}
			*fc.dst = &v
		}
		f.Queries = append(f.Queries, e)
	}
	return f, nil
}
