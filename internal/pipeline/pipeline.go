// Package pipeline runs the end-to-end dataset build: base layers and
// census, DENUE and crime indicators at AGEB level, areal interpolation
// onto territorial units, and persistence of the final dataset with its
// run record.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/census"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/config"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/crime"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/denue"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/feature"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/interp"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/layer"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/store"
)

// Pipeline wires the build phases over one configuration, schema, and store.
type Pipeline struct {
	cfg    *config.Config
	schema *config.Schema
	store  store.Store
}

// New builds a Pipeline. The store must already be migrated.
func New(cfg *config.Config, schema *config.Schema, st store.Store) *Pipeline {
	return &Pipeline{cfg: cfg, schema: schema, store: st}
}

// Build executes the phases in order: censo, denue, seguridad,
// interpolacion, persistencia. The first failing phase aborts the build
// and marks the run failed; a completed run carries counts and per-phase
// timings in its result.
func (p *Pipeline) Build(ctx context.Context) (*store.Run, error) {
	run, err := p.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	zap.L().Info("pipeline: build started", zap.String("run_id", run.ID))

	result := &store.RunResult{}
	trackPhase := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		took := time.Since(start)
		result.Phases = append(result.Phases, store.PhaseTiming{
			Name:       name,
			DurationMS: took.Milliseconds(),
		})
		if err != nil {
			zap.L().Error("pipeline: phase failed",
				zap.String("run_id", run.ID),
				zap.String("phase", name),
				zap.Duration("took", took),
				zap.Error(err),
			)
			return eris.Wrapf(err, "pipeline: phase %s", name)
		}
		zap.L().Info("pipeline: phase complete",
			zap.String("run_id", run.ID),
			zap.String("phase", name),
			zap.Duration("took", took),
		)
		return nil
	}

	// The run record must outlive a cancelled build so the failure is
	// visible in the run history.
	abort := func(err error) (*store.Run, error) {
		if ferr := p.store.FailRun(context.WithoutCancel(ctx), run.ID, err.Error()); ferr != nil {
			zap.L().Error("pipeline: mark run failed",
				zap.String("run_id", run.ID), zap.Error(ferr))
		}
		return nil, err
	}

	eps := interp.ParseEpsilon(p.cfg.Interp.Epsilon)
	result.EpsilonFallback = eps.UsedFallback

	var agebs, units *layer.Layer
	if err := trackPhase("censo", func() error {
		var err error
		agebs, units, err = p.loadBase()
		return err
	}); err != nil {
		return abort(err)
	}

	joiner := feature.NewJoiner(agebs)
	if err := trackPhase("denue", func() error {
		return p.economicFeatures(ctx, joiner, eps)
	}); err != nil {
		return abort(err)
	}

	if err := trackPhase("seguridad", func() error {
		return p.securityFeatures(joiner, eps)
	}); err != nil {
		return abort(err)
	}

	var res *interp.Result
	if err := trackPhase("interpolacion", func() error {
		var err error
		res, err = p.interpolate(ctx, agebs, units, eps)
		return err
	}); err != nil {
		return abort(err)
	}

	if err := trackPhase("persistencia", func() error {
		return p.persist(ctx, run.ID, res)
	}); err != nil {
		return abort(err)
	}

	result.Units = len(res.Layer.Features)
	result.DroppedUnits = res.Dropped
	result.SourceFeatures = len(agebs.Features)
	result.TargetFeatures = len(units.Features)
	result.Fragments = res.Fragments
	result.SkippedAttrs = res.Skipped
	result.Artifact = p.cfg.Pipeline.Artifact

	if err := p.store.CompleteRun(ctx, run.ID, result); err != nil {
		return abort(eris.Wrap(err, "pipeline: complete run"))
	}
	done, err := p.store.GetRun(ctx, run.ID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: reload run")
	}

	zap.L().Info("pipeline: build complete",
		zap.String("run_id", run.ID),
		zap.Int("units", result.Units),
		zap.Int("dropped_units", result.DroppedUnits),
		zap.Int("fragments", result.Fragments),
		zap.Strings("skipped_attrs", result.SkippedAttrs),
	)
	return done, nil
}

// loadBase loads the AGEB and territorial unit layers and merges the
// census table onto the AGEBs. AGEB areas are computed before the merge
// so every loaded polygon carries its total area.
func (p *Pipeline) loadBase() (*layer.Layer, *layer.Layer, error) {
	agebs, err := loadAGEBs(p.cfg.Data.AGEBs, p.cfg.Data.CRS)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: load agebs")
	}
	agebs.ComputeAreas(interp.SourceAreaAttr)

	table, err := census.Load(p.cfg.Data.Census, p.schema.Census.Variables)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: load census")
	}
	census.Merge(agebs, table)
	if len(agebs.Features) == 0 {
		return nil, nil, eris.New("pipeline: no AGEBs left after census merge")
	}

	units, err := layer.Load(p.cfg.Data.Units, layer.LoadOptions{
		CRS:       p.cfg.Data.CRS,
		IDFields:  []string{"CVEUT"},
		NameField: "NOMUT",
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: load units")
	}
	return agebs, units, nil
}

// loadAGEBs reads the source layer keyed by the INEGI four-part CVEGEO.
// Layers exported with a prebuilt CVEGEO attribute load on a second try;
// when both attempts fail the four-part error is the one reported.
func loadAGEBs(path, crs string) (*layer.Layer, error) {
	l, err := layer.Load(path, layer.LoadOptions{
		CRS:      crs,
		IDFields: []string{"CVE_ENT", "CVE_MUN", "CVE_LOC", "CVE_AGEB"},
		IDWidths: []int{2, 3, 4, 4},
	})
	if err == nil {
		return l, nil
	}
	l, retryErr := layer.Load(path, layer.LoadOptions{
		CRS:      crs,
		IDFields: []string{"CVEGEO"},
	})
	if retryErr != nil {
		return nil, err
	}
	zap.L().Info("pipeline: agebs carry a prebuilt CVEGEO key", zap.String("path", path))
	return l, nil
}

// economicFeatures attaches the DENUE indicators to the AGEB layer. An
// existing cleaned table is reused; otherwise the historical archives
// are consolidated and cleaned first.
func (p *Pipeline) economicFeatures(ctx context.Context, j *feature.Joiner, eps interp.Epsilon) error {
	if _, err := os.Stat(p.cfg.Denue.Cleaned); err != nil {
		if err := p.refreshDenue(ctx); err != nil {
			return err
		}
	} else {
		zap.L().Info("pipeline: reusing cleaned denue table",
			zap.String("path", p.cfg.Denue.Cleaned))
	}

	biz, err := denue.LoadCleaned(p.cfg.Denue.Cleaned)
	if err != nil {
		return eris.Wrap(err, "pipeline: load cleaned denue")
	}
	feature.Economic(j, biz, eps)
	return nil
}

// refreshDenue runs the consolidation and cleaning steps the standalone
// denue subcommand exposes.
func (p *Pipeline) refreshDenue(ctx context.Context) error {
	_, err := denue.Consolidate(ctx, p.cfg.Denue.ZipDir, p.cfg.Denue.Consolidated,
		p.schema.Denue, denue.WithWorkers(p.cfg.Denue.Workers))
	if err != nil {
		return eris.Wrap(err, "pipeline: consolidate denue")
	}
	if _, err := denue.Clean(p.cfg.Denue.Consolidated, p.cfg.Denue.Cleaned,
		p.schema.Denue, p.cfg.Denue.Bounds); err != nil {
		return eris.Wrap(err, "pipeline: clean denue")
	}
	return nil
}

// securityFeatures attaches the high-impact crime indicators to the
// AGEB layer.
func (p *Pipeline) securityFeatures(j *feature.Joiner, eps interp.Epsilon) error {
	incidents, err := crime.Load(p.cfg.Data.Crime, p.schema.Crime)
	if err != nil {
		return eris.Wrap(err, "pipeline: load crime incidents")
	}
	feature.Security(j, incidents, eps)
	return nil
}

// interpolate transfers the AGEB attributes onto the territorial units
// per the schema's reduction plan.
func (p *Pipeline) interpolate(ctx context.Context, agebs, units *layer.Layer, eps interp.Epsilon) (*interp.Result, error) {
	sc := p.schema.Interpolation
	plan, err := interp.NewPlan(sc.Additive, sc.Intensity, eps)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: build plan")
	}
	for _, pr := range sc.Products {
		plan.Products = append(plan.Products, interp.ProductSpec{
			Name: pr.Name, Value: pr.Value, Weight: pr.Weight,
		})
	}
	for _, rr := range sc.Ratios {
		plan.Ratios = append(plan.Ratios, interp.RatioSpec{
			Name: rr.Name, Numerator: rr.Numerator, Denominator: rr.Denominator, Scale: rr.Scale,
		})
	}

	res, err := interp.Run(ctx, agebs, units, plan, interp.AssembleOptions{
		PopulationAttr: "pob_total",
		Rounding:       sc.Rounding,
	}, interp.WithWorkers(p.cfg.Interp.Workers))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: interpolate")
	}
	return res, nil
}

// persist writes the GeoJSON artifact and upserts the dataset rows under
// the run id.
func (p *Pipeline) persist(ctx context.Context, runID string, res *interp.Result) error {
	artifact := p.cfg.Pipeline.Artifact
	if dir := filepath.Dir(artifact); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "pipeline: create %s", dir)
		}
	}
	if err := layer.Write(artifact, res.Layer, layer.WriteOptions{
		IDField:   "cve_ut",
		NameField: "nombre_ut",
	}); err != nil {
		return eris.Wrap(err, "pipeline: write artifact")
	}

	units := Units(res.Layer)
	if err := p.store.UpsertUnits(ctx, runID, res.Layer.CRS, units); err != nil {
		return eris.Wrap(err, "pipeline: upsert units")
	}

	total := 0.0
	for _, u := range units {
		total += u.Attrs["pob_total"]
	}
	zap.L().Info("pipeline: dataset persisted",
		zap.Int("units", len(units)),
		zap.Float64("pob_total", total),
		zap.String("artifact", artifact),
	)
	return nil
}

// Units converts assembled features into persistable dataset rows.
// Attribute maps are copied so the rows do not alias the layer.
func Units(l *layer.Layer) []store.Unit {
	units := make([]store.Unit, 0, len(l.Features))
	for _, f := range l.Features {
		attrs := make(map[string]float64, len(f.Props))
		for k, v := range f.Props {
			attrs[k] = v
		}
		units = append(units, store.Unit{
			CVE:   f.ID,
			Name:  f.Name,
			Geom:  f.Geom,
			Attrs: attrs,
		})
	}
	return units
}
