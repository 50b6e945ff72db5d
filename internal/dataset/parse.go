package dataset

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sells-group/ecm-cli/internal/model"
)

// Source field names.
const (
	fieldBldgType    = "Bldg_type"
	fieldConflictIDs = "conflict_measure_ids"
)

// ParseMeasures parses the measures dataset, a JSON object (or array) of
// measure records. Catalog position follows document order.
func ParseMeasures(data []byte) ([]Measure, error) {
	var (
		out      []Measure
		parseErr error
	)
	err := forEachRecord("measures", data, func(key string, rec gjson.Result) bool {
		m := Measure{Key: key}

		if bt := rec.Get(fieldBldgType); bt.Exists() {
			ids, err := ParseIDList(bt.String(), ";")
			if err != nil {
				parseErr = &model.DataIntegrityError{Table: "measures", Detail: key + " " + fieldBldgType + ": " + err.Error()}
				return false
			}
			m.BuildingTypes = ids
		} else {
			m.AllBuildingTypes = true
		}

		if cf := rec.Get(fieldConflictIDs); cf.Exists() {
			ids, err := ParseIDList(cf.String(), ",")
			if err != nil {
				parseErr = &model.DataIntegrityError{Table: "measures", Detail: key + " " + fieldConflictIDs + ": " + err.Error()}
				return false
			}
			m.ConflictIDs = ids
		}

		out = append(out, m)
		return true
	})
	if err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

// ParseSavings parses the measure savings dataset.
func ParseSavings(data []byte) ([]Saving, error) {
	var out []Saving
	err := forEachRecord("savings", data, func(_ string, rec gjson.Result) bool {
		out = append(out, Saving{
			MeasureID:        int(rec.Get("measure_id").Int()),
			BuildingType:     int(rec.Get("building_type_id").Int()),
			Vintage:          int(rec.Get("vintage_id").Int()),
			ClimateZone:      int(rec.Get("climate_zone").Int()),
			SavingPct:        rec.Get("saving_pct").Float(),
			CO2ReductionKlbs: rec.Get("co2_reduction_klbs").Float(),
			Cost:             rec.Get("cost").Float(),
		})
		return true
	})
	return out, err
}

// ParseBaselines parses the baseline energy dataset.
func ParseBaselines(data []byte) ([]Baseline, error) {
	var out []Baseline
	err := forEachRecord("baseline", data, func(_ string, rec gjson.Result) bool {
		out = append(out, Baseline{
			BuildingType: int(rec.Get("building_type_id").Int()),
			Vintage:      int(rec.Get("vintage_id").Int()),
			ClimateZone:  int(rec.Get("climate_zone").Int()),
			Energy:       rec.Get("energy").Float(),
		})
		return true
	})
	return out, err
}

// ParseIDList splits a separated list of 1-indexed integers. Blank entries
// are skipped; anything else that is not an integer is rejected.
func ParseIDList(s, sep string) ([]int, error) {
	var ids []int
	for _, tok := range strings.Split(s, sep) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nil, err
		}
		ids = append(ids, n)
	}
	return ids, nil
}

func forEachRecord(table string, data []byte, fn func(key string, rec gjson.Result) bool) error {
	if !gjson.ValidBytes(data) {
		return &model.DataIntegrityError{Table: table, Detail: "invalid JSON"}
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() && !root.IsArray() {
		return &model.DataIntegrityError{Table: table, Detail: "expected an object or array of records"}
	}

	var recErr error
	root.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			recErr = &model.DataIntegrityError{Table: table, Detail: "record " + key.String() + " is not an object"}
			return false
		}
		return fn(key.String(), value)
	})
	return recErr
}
