// Package gmsh imports Gmsh 4.x ASCII mesh files into a mesh.Import.
package gmsh

import (
	"bufio"
	"errors"
	"fmt"
	"github.com/notargets/gocbs/element"
	"github.com/notargets/gocbs/mesh"
	"go.uber.org/zap"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	ErrBinaryFormat  = errors.New("binary gmsh files are not supported")
	ErrVersion       = errors.New("unsupported gmsh format version")
	ErrUnexpectedEOF = errors.New("unexpected end of file")
	ErrDuplicateName = errors.New("duplicate physical name")
)

// gmshElementTypes maps Gmsh element type numbers to supported topologies
var gmshElementTypes = map[int]element.ElementGeometry{
	15: element.Vertex,
	1:  element.Line,
	2:  element.Tri,
	3:  element.Quad,
}

// entityKey identifies a geometric entity by dimension and tag
type entityKey struct {
	dim, tag int
}

type reader struct {
	sc     *bufio.Scanner
	line   int
	logger *zap.Logger

	version     string
	entities    map[entityKey][]int // physical tags per entity
	nodeIndex   map[int]int         // gmsh node tag → zero based index
	points      [][]float64
	blocks      map[element.ElementGeometry]*mesh.CellBlock
	blockOrder  []element.ElementGeometry
	namedGroups map[string]mesh.NamedGroup
}

// ReadFile reads a Gmsh 4.x ASCII file from disk
func ReadFile(path string, logger *zap.Logger) (mesh.Import, error) {
	f, err := os.Open(path)
	if err != nil {
		return mesh.Import{}, err
	}
	defer f.Close()
	imp, err := Read(f, logger)
	if err != nil {
		return mesh.Import{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return imp, nil
}

// Read parses a Gmsh 4.x ASCII stream
func Read(r io.Reader, logger *zap.Logger) (mesh.Import, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sc := bufio.NewScanner(r)
	const maxScanTokenSize = 1024 * 1024 * 10
	sc.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	rd := &reader{
		sc:          sc,
		logger:      logger,
		entities:    make(map[entityKey][]int),
		nodeIndex:   make(map[int]int),
		blocks:      make(map[element.ElementGeometry]*mesh.CellBlock),
		namedGroups: make(map[string]mesh.NamedGroup),
	}

	for rd.scan() {
		var err error
		switch section := strings.TrimSpace(rd.sc.Text()); section {
		case "$MeshFormat":
			err = rd.readMeshFormat()
		case "$PhysicalNames":
			err = rd.readPhysicalNames()
		case "$Entities":
			err = rd.readEntities()
		case "$Nodes":
			err = rd.readNodes()
		case "$Elements":
			err = rd.readElements()
		default:
			if strings.HasPrefix(section, "$") && !strings.HasPrefix(section, "$End") {
				err = rd.skipSection("$End" + section[1:])
			}
		}
		if err != nil {
			return mesh.Import{}, fmt.Errorf("line %d: %w", rd.line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return mesh.Import{}, fmt.Errorf("scanner error: %w", err)
	}
	if rd.version == "" {
		return mesh.Import{}, fmt.Errorf("%w: missing $MeshFormat", ErrVersion)
	}

	imp := mesh.Import{
		Points:      rd.points,
		NamedGroups: rd.namedGroups,
	}
	for _, g := range rd.blockOrder {
		imp.Cells = append(imp.Cells, *rd.blocks[g])
	}
	logger.Debug("gmsh mesh read",
		zap.String("version", rd.version),
		zap.Int("nodes", len(rd.points)),
		zap.Int("cell_blocks", len(imp.Cells)))
	return imp, nil
}

func (rd *reader) scan() bool {
	ok := rd.sc.Scan()
	if ok {
		rd.line++
	}
	return ok
}

// fields scans the next line and splits it, failing on EOF
func (rd *reader) fields(section string, min int) ([]string, error) {
	if !rd.scan() {
		return nil, fmt.Errorf("%w in %s", ErrUnexpectedEOF, section)
	}
	f := strings.Fields(rd.sc.Text())
	if len(f) < min {
		return nil, fmt.Errorf("%s: expected at least %d fields, got %d", section, min, len(f))
	}
	return f, nil
}

func atoi(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}

func atois(ss []string) ([]int, error) {
	out := make([]int, len(ss))
	for i, s := range ss {
		v, err := atoi(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (rd *reader) skipSection(end string) error {
	for rd.scan() {
		if strings.TrimSpace(rd.sc.Text()) == end {
			return nil
		}
	}
	return fmt.Errorf("%w looking for %s", ErrUnexpectedEOF, end)
}

func (rd *reader) readMeshFormat() error {
	f, err := rd.fields("MeshFormat", 3)
	if err != nil {
		return err
	}
	if f[1] != "0" {
		return ErrBinaryFormat
	}
	if !strings.HasPrefix(f[0], "4") {
		return fmt.Errorf("%w: %s", ErrVersion, f[0])
	}
	rd.version = f[0]
	return rd.skipSection("$EndMeshFormat")
}

func (rd *reader) readPhysicalNames() error {
	f, err := rd.fields("PhysicalNames", 1)
	if err != nil {
		return err
	}
	n, err := atoi(f[0])
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		f, err := rd.fields("PhysicalNames", 3)
		if err != nil {
			return err
		}
		dimTag, err := atois(f[:2])
		if err != nil {
			return err
		}
		if dimTag[0] < 0 || dimTag[0] > 3 {
			return fmt.Errorf("physical name %s: dimension %d", f[2], dimTag[0])
		}
		name := strings.Trim(strings.Join(f[2:], " "), `"`)
		if prev, ok := rd.namedGroups[name]; ok {
			return fmt.Errorf("%w: %q is both %dD tag %d and %dD tag %d",
				ErrDuplicateName, name, prev.Dim, prev.Tag, dimTag[0], dimTag[1])
		}
		rd.namedGroups[name] = mesh.NamedGroup{Dim: element.Dimensionality(dimTag[0]), Tag: dimTag[1]}
	}
	return rd.skipSection("$EndPhysicalNames")
}

func (rd *reader) readEntities() error {
	f, err := rd.fields("Entities", 4)
	if err != nil {
		return err
	}
	counts, err := atois(f[:4])
	if err != nil {
		return err
	}
	for dim, count := range counts {
		// Points carry one coordinate triple, higher entities a bounding box
		offset := 7
		if dim == 0 {
			offset = 4
		}
		for i := 0; i < count; i++ {
			f, err := rd.fields("Entities", offset+1)
			if err != nil {
				return err
			}
			tag, err := atoi(f[0])
			if err != nil {
				return err
			}
			numPhys, err := atoi(f[offset])
			if err != nil {
				return err
			}
			if len(f) < offset+1+numPhys {
				return fmt.Errorf("entity %d: %d physical tags declared, %d present",
					tag, numPhys, len(f)-offset-1)
			}
			phys, err := atois(f[offset+1 : offset+1+numPhys])
			if err != nil {
				return err
			}
			rd.entities[entityKey{dim, tag}] = phys
		}
	}
	return rd.skipSection("$EndEntities")
}

func (rd *reader) readNodes() error {
	f, err := rd.fields("Nodes", 4)
	if err != nil {
		return err
	}
	header, err := atois(f[:4])
	if err != nil {
		return err
	}
	numBlocks, total := header[0], header[1]
	rd.points = make([][]float64, 0, total)

	for b := 0; b < numBlocks; b++ {
		f, err := rd.fields("Nodes block", 4)
		if err != nil {
			return err
		}
		bh, err := atois(f[:4])
		if err != nil {
			return err
		}
		parametric, count := bh[2], bh[3]
		tags := make([]int, count)
		for j := 0; j < count; j++ {
			f, err := rd.fields("node tags", 1)
			if err != nil {
				return err
			}
			if tags[j], err = atoi(f[0]); err != nil {
				return err
			}
		}
		for j := 0; j < count; j++ {
			f, err := rd.fields("node coordinates", 3+parametric)
			if err != nil {
				return err
			}
			xyz := make([]float64, 3)
			for k := range xyz {
				if xyz[k], err = strconv.ParseFloat(f[k], 64); err != nil {
					return fmt.Errorf("node %d: invalid coordinate %q", tags[j], f[k])
				}
			}
			if _, dup := rd.nodeIndex[tags[j]]; dup {
				return fmt.Errorf("duplicate node tag %d", tags[j])
			}
			rd.nodeIndex[tags[j]] = len(rd.points)
			rd.points = append(rd.points, xyz)
		}
	}
	return rd.skipSection("$EndNodes")
}

func (rd *reader) readElements() error {
	f, err := rd.fields("Elements", 4)
	if err != nil {
		return err
	}
	numBlocks, err := atoi(f[0])
	if err != nil {
		return err
	}

	for b := 0; b < numBlocks; b++ {
		f, err := rd.fields("Elements block", 4)
		if err != nil {
			return err
		}
		bh, err := atois(f[:4])
		if err != nil {
			return err
		}
		entityDim, entityTag, gmshType, count := bh[0], bh[1], bh[2], bh[3]

		g, ok := gmshElementTypes[gmshType]
		if !ok {
			rd.logger.Warn("skipping unsupported gmsh element type",
				zap.Int("gmsh_type", gmshType), zap.Int("count", count))
			for j := 0; j < count; j++ {
				if !rd.scan() {
					return fmt.Errorf("%w in skipped element block", ErrUnexpectedEOF)
				}
			}
			continue
		}
		props, err := element.GetProperties(g)
		if err != nil {
			return err
		}
		if int(props.Dimensions) != entityDim {
			return fmt.Errorf("%s elements on a %dD entity", g, entityDim)
		}

		physical := 0
		if tags := rd.entities[entityKey{entityDim, entityTag}]; len(tags) > 0 {
			physical = tags[0]
		}

		blk, ok := rd.blocks[g]
		if !ok {
			blk = &mesh.CellBlock{Type: g}
			rd.blocks[g] = blk
			rd.blockOrder = append(rd.blockOrder, g)
		}
		for j := 0; j < count; j++ {
			f, err := rd.fields("element", 1+props.Np)
			if err != nil {
				return err
			}
			nodeTags, err := atois(f[1 : 1+props.Np])
			if err != nil {
				return err
			}
			row := make([]int, props.Np)
			for k, tag := range nodeTags {
				idx, ok := rd.nodeIndex[tag]
				if !ok {
					return fmt.Errorf("element %s references unknown node %d", f[0], tag)
				}
				row[k] = idx
			}
			blk.Connectivity = append(blk.Connectivity, row)
			blk.Physical = append(blk.Physical, physical)
			blk.Geometrical = append(blk.Geometrical, entityTag)
		}
	}
	return rd.skipSection("$EndElements")
}
