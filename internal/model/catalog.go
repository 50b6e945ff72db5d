package model

// Default catalog dimensions of the measure dataset.
const (
	DefaultNumECM           = 82
	DefaultNumBuildingTypes = 13
	DefaultNumVintages      = 5
	DefaultNumClimateZones  = 9
)

// Dimensions sizes the lookup space. All identifiers within a dimension are
// 1-indexed at the boundary and 0-indexed in storage.
type Dimensions struct {
	ECMs          int `yaml:"num_ecm" mapstructure:"num_ecm" json:"num_ecm"`
	BuildingTypes int `yaml:"num_building_types" mapstructure:"num_building_types" json:"num_building_types"`
	Vintages      int `yaml:"num_vintages" mapstructure:"num_vintages" json:"num_vintages"`
	ClimateZones  int `yaml:"num_climate_zones" mapstructure:"num_climate_zones" json:"num_climate_zones"`
}

// DefaultDimensions returns the dimensions of the published catalog.
func DefaultDimensions() Dimensions {
	return Dimensions{
		ECMs:          DefaultNumECM,
		BuildingTypes: DefaultNumBuildingTypes,
		Vintages:      DefaultNumVintages,
		ClimateZones:  DefaultNumClimateZones,
	}
}

// Contexts returns the number of (building type, vintage, climate zone) cells.
func (d Dimensions) Contexts() int {
	return d.BuildingTypes * d.Vintages * d.ClimateZones
}

// Validate checks that every dimension is positive.
func (d Dimensions) Validate() error {
	for _, f := range []struct {
		name string
		v    int
	}{
		{"num_ecm", d.ECMs},
		{"num_building_types", d.BuildingTypes},
		{"num_vintages", d.Vintages},
		{"num_climate_zones", d.ClimateZones},
	} {
		if f.v <= 0 {
			return &ValidationError{Field: f.name, Value: float64(f.v), Min: 1, Max: -1}
		}
	}
	return nil
}

// ToIndex converts a 1-indexed identifier to its 0-indexed storage slot.
func ToIndex(id int) int { return id - 1 }

// ToID converts a 0-indexed storage slot back to its 1-indexed identifier.
func ToID(idx int) int { return idx + 1 }
