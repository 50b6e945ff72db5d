// Package store persists imported datasets and recommendation runs.
package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ecm-cli/internal/dataset"
	"github.com/sells-group/ecm-cli/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	BuildingType int             `json:"building_type,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

const defaultListLimit = 100

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Store defines the persistence interface for datasets and runs.
type Store interface {
	// Dataset
	ReplaceDataset(ctx context.Context, ds *dataset.Dataset) error
	LoadDataset(ctx context.Context) (*dataset.Dataset, error)

	// Runs
	CreateRun(ctx context.Context, q model.Query) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, rec *model.Recommendation) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Separators match the source dataset encoding.
const (
	bldgTypeSep = ";"
	conflictSep = ","
)

func joinIDs(ids []int, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, sep)
}

// encodeBuildingTypes returns nil for measures open to every building type.
func encodeBuildingTypes(m dataset.Measure) *string {
	if m.AllBuildingTypes {
		return nil
	}
	s := joinIDs(m.BuildingTypes, bldgTypeSep)
	return &s
}

func decodeMeasure(key string, bldgTypes *string, conflicts string) (dataset.Measure, error) {
	m := dataset.Measure{Key: key}
	if bldgTypes == nil {
		m.AllBuildingTypes = true
	} else {
		ids, err := dataset.ParseIDList(*bldgTypes, bldgTypeSep)
		if err != nil {
			return m, &model.DataIntegrityError{Table: "ecm_measures", Detail: key + ": " + err.Error()}
		}
		m.BuildingTypes = ids
	}
	ids, err := dataset.ParseIDList(conflicts, conflictSep)
	if err != nil {
		return m, &model.DataIntegrityError{Table: "ecm_measures", Detail: key + ": " + err.Error()}
	}
	m.ConflictIDs = ids
	return m, nil
}

func errorText(cause error) string {
	if cause == nil {
		return "unknown error"
	}
	return cause.Error()
}

func errNoDataset() error {
	return &model.DataIntegrityError{Table: "ecm_measures", Detail: "no dataset imported"}
}
