package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"github.com/BurntSushi/toml"
	"io"
	"os"
	"path/filepath"
)

// File and folder names of a case directory
const (
	SimulationFilename = "simulation.toml"
	ConditionsFilename = "conditions.toml"
	CacheInfoFilename  = "cache_info.toml"
	LogFilename        = "simulation.log"
	cacheFolder        = "cache"
	logFolder          = "log"
	resultFolder       = "result"
)

// Case is a validated case directory
type Case struct {
	Dir        string
	Simulation *Simulation
	Conditions *Conditions
}

// LoadCase loads and validates both input files of dir. Nothing is written.
func LoadCase(dir string) (*Case, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	c := &Case{Dir: abs}
	if c.Simulation, err = LoadSimulation(filepath.Join(abs, SimulationFilename)); err != nil {
		return nil, err
	}
	if c.Conditions, err = LoadConditions(filepath.Join(abs, ConditionsFilename)); err != nil {
		return nil, err
	}
	return c, nil
}

// OpenCase loads the case like LoadCase and creates the cache folders
func OpenCase(dir string) (*Case, error) {
	c, err := LoadCase(dir)
	if err != nil {
		return nil, err
	}
	for _, d := range []string{c.LogDir(), c.ResultDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Case) CacheDir() string  { return filepath.Join(c.Dir, cacheFolder) }
func (c *Case) LogDir() string    { return filepath.Join(c.CacheDir(), logFolder) }
func (c *Case) ResultDir() string { return filepath.Join(c.CacheDir(), resultFolder) }
func (c *Case) LogFile() string   { return filepath.Join(c.LogDir(), LogFilename) }

// MeshFile resolves [mesh] filename against the case directory
func (c *Case) MeshFile() string {
	if filepath.IsAbs(c.Simulation.Mesh.Filename) {
		return c.Simulation.Mesh.Filename
	}
	return filepath.Join(c.Dir, c.Simulation.Mesh.Filename)
}

// CacheInfo is the content of cache/cache_info.toml
type CacheInfo struct {
	General  General           `toml:"general"`
	Checksum map[string]string `toml:"checksum"`
}

// Checksums hashes the simulation, conditions and mesh files
func (c *Case) Checksums() (map[string]string, error) {
	sums := make(map[string]string, 3)
	for key, path := range map[string]string{
		"simulation": filepath.Join(c.Dir, SimulationFilename),
		"conditions": filepath.Join(c.Dir, ConditionsFilename),
		"mesh":       c.MeshFile(),
	} {
		sum, err := fileChecksum(path)
		if err != nil {
			return nil, err
		}
		sums[key] = sum
	}
	return sums, nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// UpdateCacheInfo rewrites cache_info.toml and reports whether any input file
// changed since it was last written
func (c *Case) UpdateCacheInfo() (changed bool, err error) {
	sums, err := c.Checksums()
	if err != nil {
		return false, err
	}
	path := filepath.Join(c.CacheDir(), CacheInfoFilename)
	var previous CacheInfo
	if _, err := toml.DecodeFile(path, &previous); err == nil {
		changed = len(previous.Checksum) != len(sums)
		for k, v := range sums {
			if previous.Checksum[k] != v {
				changed = true
			}
		}
		if !changed {
			return false, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("%s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(CacheInfo{General: c.Simulation.General, Checksum: sums}); err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	return true, nil
}
