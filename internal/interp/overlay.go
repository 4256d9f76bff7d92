package interp

import (
	"context"
	"runtime"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tidwall/rtree"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/geometry"
	"github.com/edusant000/potencial-inmobiliario-cdmx/internal/layer"
)

// Fragment is one piece of a source polygon clipped to a target polygon.
// Props merges both parents' attributes; on a name collision the source
// keeps the name with a _1 suffix and the target takes _2. Partials is
// filled by Redistribute.
type Fragment struct {
	SourceID   string
	TargetID   string
	Geom       geom.T
	Area       float64
	SourceArea float64
	Props      map[string]float64
	Partials   map[string]float64
}

// SourceAreaAttr is the source attribute holding the polygon's
// precomputed total area. When present it is preferred over recomputing
// from the geometry, so the areal weights divide by the same total the
// upstream layer published.
const SourceAreaAttr = "ageb_area_total"

type overlayConfig struct {
	workers        int
	sourceAreaAttr string
}

// OverlayOption adjusts the overlay sweep.
type OverlayOption func(*overlayConfig)

// WithWorkers bounds the number of concurrent clipping workers.
func WithWorkers(n int) OverlayOption {
	return func(c *overlayConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithSourceAreaAttr overrides the attribute used as the source's total
// area denominator.
func WithSourceAreaAttr(name string) OverlayOption {
	return func(c *overlayConfig) {
		if name != "" {
			c.sourceAreaAttr = name
		}
	}
}

// Overlay intersects every source feature with every target feature it
// overlaps and returns the resulting fragments sorted by source then
// target id. Both layers must declare the same CRS; geometry never gets
// reprojected here. Unusable geometries are dropped with a logged count,
// and an overlay that produces no fragments at all is an error.
func Overlay(ctx context.Context, src, tgt *layer.Layer, opts ...OverlayOption) ([]Fragment, error) {
	cfg := overlayConfig{workers: runtime.NumCPU(), sourceAreaAttr: SourceAreaAttr}
	for _, opt := range opts {
		opt(&cfg)
	}

	if src.CRS != tgt.CRS {
		return nil, eris.Errorf("interp: CRS mismatch between layers: source %q, target %q", src.CRS, tgt.CRS)
	}

	sources := usableFeatures(src, "source")
	targets := usableFeatures(tgt, "target")
	if len(sources) == 0 || len(targets) == 0 {
		return nil, eris.New("interp: no usable geometries to overlay")
	}

	var index rtree.RTreeG[int]
	for i := range targets {
		min, max := geometry.BoundsOf(targets[i].Geom)
		index.Insert(min, max, i)
	}

	results := make([][]Fragment, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers)
	for i := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			frags, err := clipAgainstCandidates(sources[i], targets, &index, cfg.sourceAreaAttr)
			if err != nil {
				return err
			}
			results[i] = frags
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Fragment
	for _, frags := range results {
		all = append(all, frags...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].SourceID != all[j].SourceID {
			return all[i].SourceID < all[j].SourceID
		}
		return all[i].TargetID < all[j].TargetID
	})

	if len(all) == 0 {
		return nil, eris.New("interp: overlay produced no fragments, layers do not intersect")
	}
	zap.L().Info("interp: overlay complete",
		zap.Int("sources", len(sources)),
		zap.Int("targets", len(targets)),
		zap.Int("fragments", len(all)),
	)
	return all, nil
}

func clipAgainstCandidates(src layer.Feature, targets []layer.Feature, index *rtree.RTreeG[int], areaAttr string) ([]Fragment, error) {
	srcMin, srcMax := geometry.BoundsOf(src.Geom)
	var candidates []int
	index.Search(srcMin, srcMax, func(_, _ [2]float64, i int) bool {
		candidates = append(candidates, i)
		return true
	})
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Ints(candidates)

	sourceArea := geometry.Area(src.Geom)
	if v, ok := src.Props[areaAttr]; ok && v > 0 {
		sourceArea = v
	}

	var frags []Fragment
	for _, ci := range candidates {
		tgt := targets[ci]
		clip, err := geometry.Intersection(src.Geom, tgt.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "interp: clipping %s against %s", src.ID, tgt.ID)
		}
		area := geometry.Area(clip)
		if area <= 0 {
			continue
		}
		frags = append(frags, Fragment{
			SourceID:   src.ID,
			TargetID:   tgt.ID,
			Geom:       clip,
			Area:       area,
			SourceArea: sourceArea,
			Props:      mergeProps(src.Props, tgt.Props),
			Partials:   make(map[string]float64),
		})
	}
	return frags, nil
}

// mergeProps combines parent attributes into a fragment-owned map. A key
// held by both parents splits into key_1 (source) and key_2 (target).
func mergeProps(src, tgt map[string]float64) map[string]float64 {
	merged := make(map[string]float64, len(src)+len(tgt))
	for k, v := range src {
		if _, clash := tgt[k]; clash {
			merged[k+"_1"] = v
		} else {
			merged[k] = v
		}
	}
	for k, v := range tgt {
		if _, clash := src[k]; clash {
			merged[k+"_2"] = v
		} else {
			merged[k] = v
		}
	}
	return merged
}

func usableFeatures(l *layer.Layer, role string) []layer.Feature {
	usable := make([]layer.Feature, 0, len(l.Features))
	dropped := 0
	for _, f := range l.Features {
		if geometry.Usable(f.Geom) {
			usable = append(usable, f)
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		zap.L().Warn("interp: dropped unusable geometries",
			zap.String("layer", role),
			zap.Int("dropped", dropped),
			zap.Int("kept", len(usable)),
		)
	}
	return usable
}
