// Package output persists simulation results, numeric artifacts and debug
// systems in SQLite stores under the case cache, plus the run summary.
package output

import (
	"database/sql"
	"errors"
	"fmt"
	sparsearr "github.com/ctessum/sparse"
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
	_ "modernc.org/sqlite"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupportedValue = errors.New("value cannot be stored")
	ErrEmptyValue       = errors.New("empty value")
	ErrNotFound         = errors.New("key not found")
)

// Dataset kinds
const (
	KindScalar = "scalar"
	KindVector = "vector"
	KindDense  = "dense"
	// KindSparse rows are (row, col, value) triplets; Rows and Cols keep the
	// matrix dimensions
	KindSparse = "sparse"
)

const schema = `
CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS datasets (
	key TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	rows INTEGER NOT NULL,
	cols INTEGER NOT NULL,
	data BLOB NOT NULL
);`

// Store is one SQLite file of keyed datasets. Keys are slash separated paths
// such as result/t_10/u_1.
type Store struct {
	db   *sql.DB
	path string
}

// Dataset is a decoded entry of a Store
type Dataset struct {
	Kind       string
	Rows, Cols int
	Data       *mat.Dense
}

// Vector flattens the data of a scalar or vector dataset
func (d Dataset) Vector() []float64 {
	r, c := d.Data.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, d.Data.RawRowView(i)...)
	}
	return out
}

// OpenStore creates or truncates the store at path
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema in %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// ReadStore opens an existing store
func ReadStore(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`, key, value)
	return err
}

func (s *Store) Metadata(key string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: metadata %q", ErrNotFound, key)
	}
	return v, err
}

// Put encodes value under key, replacing any previous entry. Accepted values
// are float64, []float64, *mat.Dense, *sparse.CSR and 2-D dense arrays.
func (s *Store) Put(key string, value interface{}) error {
	kind, rows, cols, data, err := encode(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	blob, err := data.MarshalBinary()
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO datasets (key, kind, rows, cols, data) VALUES (?, ?, ?, ?, ?)`,
		strings.Trim(key, "/"), kind, rows, cols, blob)
	return err
}

// Get decodes the dataset stored under key
func (s *Store) Get(key string) (Dataset, error) {
	var (
		d    Dataset
		blob []byte
	)
	err := s.db.QueryRow(`SELECT kind, rows, cols, data FROM datasets WHERE key = ?`, strings.Trim(key, "/")).
		Scan(&d.Kind, &d.Rows, &d.Cols, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Dataset{}, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if err != nil {
		return Dataset{}, err
	}
	d.Data = &mat.Dense{}
	if err := d.Data.UnmarshalBinary(blob); err != nil {
		return Dataset{}, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Keys lists the stored keys starting with prefix, sorted
func (s *Store) Keys(prefix string) ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM datasets WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func encode(value interface{}) (kind string, rows, cols int, data *mat.Dense, err error) {
	switch v := value.(type) {
	case float64:
		return KindScalar, 1, 1, mat.NewDense(1, 1, []float64{v}), nil
	case []float64:
		if len(v) == 0 {
			return "", 0, 0, nil, ErrEmptyValue
		}
		return KindVector, len(v), 1, mat.NewDense(len(v), 1, append([]float64(nil), v...)), nil
	case *mat.Dense:
		if v == nil || v.IsEmpty() {
			return "", 0, 0, nil, ErrEmptyValue
		}
		r, c := v.Dims()
		return KindDense, r, c, mat.DenseCopyOf(v), nil
	case *sparsearr.DenseArray:
		if v == nil || len(v.Shape) != 2 || len(v.Elements) == 0 {
			return "", 0, 0, nil, fmt.Errorf("%w: dense array must be 2-D and non empty", ErrUnsupportedValue)
		}
		r, c := v.Shape[0], v.Shape[1]
		return KindDense, r, c, mat.NewDense(r, c, append([]float64(nil), v.Elements...)), nil
	case *sparse.CSR:
		if v == nil || v.NNZ() == 0 {
			return "", 0, 0, nil, ErrEmptyValue
		}
		r, c := v.Dims()
		triplets := mat.NewDense(v.NNZ(), 3, nil)
		k := 0
		v.DoNonZero(func(i, j int, x float64) {
			triplets.SetRow(k, []float64{float64(i), float64(j), x})
			k++
		})
		return KindSparse, r, c, triplets, nil
	default:
		return "", 0, 0, nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, value)
	}
}
