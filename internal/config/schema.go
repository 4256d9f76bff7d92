package config

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Schema describes the dataset semantics: which raw columns map to which
// canonical attributes, how each attribute reduces during interpolation,
// and the category filters. Paths and runtime knobs stay in Config; the
// schema is about what the data means.
type Schema struct {
	Interpolation InterpolationSchema `yaml:"interpolation"`
	Census        CensusSchema        `yaml:"census"`
	Denue         DenueSchema         `yaml:"denue"`
	Crime         CrimeSchema         `yaml:"crime"`
}

// InterpolationSchema tags every attribute with its reduction strategy
// and declares the derived products and ratios.
type InterpolationSchema struct {
	Additive  []string       `yaml:"additive"`
	Intensity []string       `yaml:"intensity"`
	Products  []ProductRule  `yaml:"products"`
	Ratios    []RatioRule    `yaml:"ratios"`
	Rounding  map[string]int `yaml:"rounding"`
}

// ProductRule declares a per-fragment product of an attribute and a
// redistributed partial, summed per target unit.
type ProductRule struct {
	Name   string `yaml:"name"`
	Value  string `yaml:"value"`
	Weight string `yaml:"weight"`
}

// RatioRule declares a per-unit ratio of two aggregated attributes.
type RatioRule struct {
	Name        string  `yaml:"name"`
	Numerator   string  `yaml:"numerator"`
	Denominator string  `yaml:"denominator"`
	Scale       float64 `yaml:"scale"`
}

// CensusSchema maps raw RESAGEBURB column names to canonical attributes.
type CensusSchema struct {
	Variables []CensusVariable `yaml:"variables"`
}

// CensusVariable is one census column: raw header, canonical name, and
// the block-to-AGEB reduction ("sum" or "mean").
type CensusVariable struct {
	Raw    string `yaml:"raw"`
	Name   string `yaml:"name"`
	Reduce string `yaml:"reduce"`
}

// DenueSchema holds the header variants, personnel stratum mapping, and
// per-file snapshot date overrides for the historical DENUE archives.
type DenueSchema struct {
	Columns       map[string][]string `yaml:"columns"`
	EstratoMap    map[string]int      `yaml:"estrato_map"`
	DateOverrides map[string]string   `yaml:"date_overrides"`
}

// CrimeSchema lists the incident categories that count as high impact.
// Matching is accent- and case-insensitive.
type CrimeSchema struct {
	HighImpact []string `yaml:"high_impact"`
}

// DefaultSchema is the canonical CDMX dataset schema.
func DefaultSchema() *Schema {
	return &Schema{
		Interpolation: InterpolationSchema{
			Additive: []string{
				"pob_total", "viviendas_totales", "viv_con_internet",
				"num_negocios", "indice_diversidad",
			},
			Intensity: []string{
				"densidad_negocios", "densidad_diversidad", "tasa_delitos_km2",
			},
			Products: []ProductRule{
				{Name: "escolaridad_x_pob", Value: "escolaridad_promedio", Weight: "pob_total"},
			},
			Ratios: []RatioRule{
				{Name: "escolaridad_promedio", Numerator: "escolaridad_x_pob", Denominator: "pob_total", Scale: 1},
				{Name: "porc_viv_con_internet", Numerator: "viv_con_internet", Denominator: "viviendas_totales", Scale: 100},
			},
			Rounding: map[string]int{
				"pob_total":             0,
				"escolaridad_promedio":  2,
				"porc_viv_con_internet": 2,
			},
		},
		Census: CensusSchema{
			Variables: []CensusVariable{
				{Raw: "POBTOT", Name: "pob_total", Reduce: "sum"},
				{Raw: "VIVTOT", Name: "viviendas_totales", Reduce: "sum"},
				{Raw: "VPH_INTER", Name: "viv_con_internet", Reduce: "sum"},
				{Raw: "GRAPROES", Name: "escolaridad_promedio", Reduce: "mean"},
			},
		},
		Denue: DenueSchema{
			Columns: map[string][]string{
				"id_denue":                 {"id", "clee", "llave"},
				"latitud":                  {"latitud", "lat"},
				"longitud":                 {"longitud", "lon"},
				"cve_ageb":                 {"ageb", "cve_ageb"},
				"codigo_postal":            {"cod_postal", "codigo_postal", "cp"},
				"cve_scian":                {"codigo_act", "cve_scian", "codigo_scian"},
				"personal_ocupado_estrato": {"per_ocu", "personal_ocupado", "estrato_personal_ocupado"},
			},
			EstratoMap: map[string]int{
				"0 a 5 personas":     1,
				"6 a 10 personas":    2,
				"11 a 30 personas":   3,
				"31 a 50 personas":   4,
				"51 a 100 personas":  5,
				"101 a 250 personas": 6,
				"251 y mas personas": 7,
			},
			DateOverrides: map[string]string{},
		},
		Crime: CrimeSchema{
			HighImpact: []string{
				"HOMICIDIO DOLOSO",
				"LESIONES DOLOSAS POR DISPARO DE ARMA DE FUEGO",
				"ROBO A CASA HABITACION CON VIOLENCIA",
				"ROBO A CUENTAHABIENTE SALIENDO DEL CAJERO CON VIOLENCIA",
				"ROBO A NEGOCIO CON VIOLENCIA",
				"ROBO A PASAJERO A BORDO DE MICROBUS CON Y SIN VIOLENCIA",
				"ROBO A PASAJERO A BORDO DE TAXI CON VIOLENCIA",
				"ROBO A PASAJERO A BORDO DEL METRO CON Y SIN VIOLENCIA",
				"ROBO A REPARTIDOR CON Y SIN VIOLENCIA",
				"ROBO A TRANSEUNTE EN VIA PUBLICA CON Y SIN VIOLENCIA",
				"ROBO DE VEHICULO CON Y SIN VIOLENCIA",
				"SECUESTRO",
				"VIOLACION",
			},
		},
	}
}

// LoadSchema reads the dataset schema from a YAML file. A missing path
// falls back to the built-in defaults; a present file has empty sections
// filled from them, so a schema file may override just one concern.
func LoadSchema(path string) (*Schema, error) {
	defaults := DefaultSchema()
	if path == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			zap.L().Debug("config: no schema file, using built-in defaults", zap.String("path", path))
			return defaults, nil
		}
		return nil, eris.Wrapf(err, "config: read schema %s", path)
	}

	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrapf(err, "config: parse schema %s", path)
	}

	if len(s.Interpolation.Additive) == 0 && len(s.Interpolation.Intensity) == 0 {
		s.Interpolation = defaults.Interpolation
	}
	if len(s.Census.Variables) == 0 {
		s.Census = defaults.Census
	}
	if len(s.Denue.Columns) == 0 {
		s.Denue.Columns = defaults.Denue.Columns
	}
	if len(s.Denue.EstratoMap) == 0 {
		s.Denue.EstratoMap = defaults.Denue.EstratoMap
	}
	if len(s.Crime.HighImpact) == 0 {
		s.Crime = defaults.Crime
	}

	return &s, nil
}
