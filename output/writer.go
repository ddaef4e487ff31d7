package output

import (
	"fmt"
	"github.com/google/uuid"
	"github.com/notargets/gocbs/element"
	"github.com/notargets/gocbs/mesh"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"path/filepath"
	"sort"
	"strconv"
)

// Store file names and format version
const (
	ResultFilename  = "result.db"
	NumericFilename = "numeric.db"
	DebugFilename   = "debug.db"
	FormatVersion   = 1
)

// Options select which stores are written
type Options struct {
	SaveResult  bool
	SaveNumeric bool
	SaveDebug   bool
}

// Writer owns the result, numeric and debug stores of one run. Disabled
// stores are never created and their writes are no-ops.
type Writer struct {
	RunID string

	result, numeric, debug *Store
	step                   int
	logger                 *zap.Logger
}

// NewWriter creates the enabled stores in dir and stamps their metadata
func NewWriter(dir, description string, opts Options, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{RunID: uuid.NewString(), logger: logger}
	for _, s := range []struct {
		enabled bool
		name    string
		dst     **Store
	}{
		{opts.SaveResult, ResultFilename, &w.result},
		{opts.SaveNumeric, NumericFilename, &w.numeric},
		{opts.SaveDebug, DebugFilename, &w.debug},
	} {
		if !s.enabled {
			continue
		}
		store, err := OpenStore(filepath.Join(dir, s.name))
		if err != nil {
			w.Close()
			return nil, err
		}
		*s.dst = store
		for k, v := range map[string]string{
			"version":     strconv.Itoa(FormatVersion),
			"description": description,
			"run_id":      w.RunID,
		} {
			if err := store.SetMetadata(k, v); err != nil {
				w.Close()
				return nil, fmt.Errorf("%s: %w", store.Path(), err)
			}
		}
		logger.Debug("output store created", zap.String("path", store.Path()))
	}
	return w, nil
}

// WriteResult stores every field under result/t_<step>/<field>
func (w *Writer) WriteResult(step int, fields map[string][]float64) error {
	w.step = step
	if w.result == nil {
		return nil
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := w.result.Put(fmt.Sprintf("result/t_%d/%s", step, name), fields[name]); err != nil {
			return err
		}
	}
	return nil
}

// WriteMesh dumps the node coordinates, node groups and the connectivity of
// every container into the result store
func (w *Writer) WriteMesh(m *mesh.Mesh) error {
	if w.result == nil {
		return nil
	}
	if err := w.result.Put("mesh/coordinates", m.Nodes.X); err != nil {
		return err
	}
	for name, tags := range map[string][]int{
		"mesh/nodes/physical":    m.Nodes.Physical,
		"mesh/nodes/geometrical": m.Nodes.Geometrical,
		"mesh/nodes/named":       m.Nodes.Named,
	} {
		if err := w.result.Put(name, floatsOf(tags)); err != nil {
			return err
		}
	}
	geoms := make([]element.ElementGeometry, 0, len(m.Containers))
	for g := range m.Containers {
		geoms = append(geoms, g)
	}
	sort.Slice(geoms, func(i, j int) bool { return geoms[i] < geoms[j] })
	for _, g := range geoms {
		c := m.Containers[g]
		if c.Len() == 0 {
			continue
		}
		conn := c.Connectivity()
		EToV := mat.NewDense(len(conn), len(conn[0]), nil)
		physical := make([]int, len(conn))
		for k, row := range conn {
			EToV.SetRow(k, floatsOf(row))
			physical[k] = c.Elements[k].PhysicalGroup
		}
		if err := w.result.Put(fmt.Sprintf("mesh/%s/connectivity", g), EToV); err != nil {
			return err
		}
		if err := w.result.Put(fmt.Sprintf("mesh/%s/physical", g), floatsOf(physical)); err != nil {
			return err
		}
	}
	return nil
}

func floatsOf(v []int) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// WriteNumeric stores a model artifact under t_<step>/<key>, step being the
// last one passed to WriteResult
func (w *Writer) WriteNumeric(key string, value interface{}) error {
	if w.numeric == nil {
		return nil
	}
	return w.numeric.Put(stepKey(w.step, key), value)
}

// WriteDebug stores an intermediate system under t_<step>/<key>
func (w *Writer) WriteDebug(key string, value interface{}) error {
	if w.debug == nil {
		return nil
	}
	return w.debug.Put(stepKey(w.step, key), value)
}

// StepDebug binds the debug store to step. It returns nil when debug output
// is disabled so that models skip collecting artifacts.
func (w *Writer) StepDebug(step int) *StepWriter {
	if w.debug == nil {
		return nil
	}
	return &StepWriter{w: w, step: step}
}

// StepWriter writes debug artifacts of one timestep
type StepWriter struct {
	w    *Writer
	step int
}

func (s *StepWriter) WriteDebug(key string, value interface{}) error {
	if s == nil {
		return nil
	}
	return s.w.debug.Put(stepKey(s.step, key), value)
}

func stepKey(step int, key string) string {
	return fmt.Sprintf("t_%d/%s", step, key)
}

// Close closes every open store and returns the first error
func (w *Writer) Close() error {
	var first error
	for _, s := range []*Store{w.result, w.numeric, w.debug} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
