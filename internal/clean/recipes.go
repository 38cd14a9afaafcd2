package clean

import (
	"maps"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/reubengazer/GBS-GALEX-analysis/internal/dedup"
)

// GALEXRenames maps CasJobs NUV column names to catalog names.
var GALEXRenames = map[string]string{
	"nuv_mag":     "NUV_MAG",
	"nuv_magerr":  "NUV_MAG_ERR",
	"nuv_flux":    "NUV_FLUX",
	"nuv_fluxerr": "NUV_FLUX_ERR",
	"ra":          "GLX_RA",
	"dec":         "GLX_DEC",
	"fov_radius":  "DIST_2_FOV",
}

// ChandraRenames maps the GBS X-ray table columns to catalog names.
var ChandraRenames = map[string]string{
	"CX":      "GBS_NAME",
	"Total":   "X_COUNTS",
	"RAJ2000": "X_RAJ2000",
	"DEJ2000": "X_DEJ2000",
	"Dpos":    "X_ERR_R",
}

// DefaultRegion is the GBS footprint in wrapped galactic coordinates.
var DefaultRegion = Region{LonColumn: "glon", LatColumn: "glat", LonMax: 3.1, LatCut: 0.83}

// GALEXConfig parameterizes the GALEX pipeline.
type GALEXConfig struct {
	// DropMissing removes rows with missing values; by default they are only
	// counted. MissingColumns limits the check; empty checks every column.
	DropMissing    bool
	MissingColumns []string
	Region         Region
	// Renames are merged over GALEXRenames.
	Renames map[string]string
	Dedup   dedup.Options
}

// GALEX builds the NUV cleaning pipeline: flag missing values, wrap
// longitude, trim to the survey region, rename, then collapse duplicates.
func GALEX(cfg GALEXConfig) *Pipeline {
	return &Pipeline{
		Name: "galex",
		Steps: []Step{
			FlagMissing(cfg.DropMissing, cfg.MissingColumns...),
			WrapLongitude(cfg.Region.LonColumn),
			TrimRegion(cfg.Region),
			Rename(mergeRenames(GALEXRenames, cfg.Renames)),
			Deduplicate(cfg.Dedup),
		},
	}
}

// ChandraConfig parameterizes the X-ray pipeline.
type ChandraConfig struct {
	Renames     map[string]string
	IDColumn    string
	IDPrefix    string
	DropColumns []string
	ErrorColumn string
	// The positional error gains SystematicArcsec and
	// BoresightArcsec/BoresightScale in quadrature.
	SystematicArcsec float64
	BoresightArcsec  float64
	BoresightScale   float64
}

// DefaultChandraConfig returns the correction from Jonker et al. 2011.
func DefaultChandraConfig() ChandraConfig {
	return ChandraConfig{
		IDColumn:         "GBS_NAME",
		IDPrefix:         "CX",
		DropColumns:      []string{"_RAJ2000", "_DEJ2000"},
		ErrorColumn:      "X_ERR_R",
		SystematicArcsec: 0.7,
		BoresightArcsec:  0.16,
		BoresightScale:   0.4085,
	}
}

// Chandra builds the X-ray cleaning pipeline.
func Chandra(cfg ChandraConfig) (*Pipeline, error) {
	if cfg.BoresightScale <= 0 {
		return nil, eris.Errorf("clean: boresight scale must be positive, got %v", cfg.BoresightScale)
	}
	steps := []Step{
		Rename(mergeRenames(ChandraRenames, cfg.Renames)),
		PrefixIDs(cfg.IDColumn, cfg.IDPrefix),
	}
	if len(cfg.DropColumns) > 0 {
		steps = append(steps, Drop(cfg.DropColumns...))
	}
	steps = append(steps, QuadratureError(cfg.ErrorColumn,
		cfg.SystematicArcsec, cfg.BoresightArcsec/cfg.BoresightScale))
	return &Pipeline{Name: "chandra", Steps: steps}, nil
}

func mergeRenames(base, extra map[string]string) map[string]string {
	out := maps.Clone(base)
	maps.Copy(out, extra)
	return out
}

// LoadRenames reads a column rename map from a YAML file with a top-level
// "renames" key.
func LoadRenames(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "clean: read rename file %s", path)
	}
	var wrapper struct {
		Renames map[string]string `yaml:"renames"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "clean: parse rename file")
	}
	for from, to := range wrapper.Renames {
		if from == "" || to == "" {
			return nil, eris.Errorf("clean: rename file %s: empty column name in %q -> %q", path, from, to)
		}
	}
	return wrapper.Renames, nil
}
