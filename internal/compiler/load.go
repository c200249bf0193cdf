package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/dataspace/internal/rules"
)

// Load compiles the program at path. A file is compiled on its own; a
// directory is loaded as one CUE instance from all its .cue files.
func Load(path string) (*rules.Program, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("program not found: %w", err)
	}
	if !info.IsDir() {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read program: %w", err)
		}
		return CompileString(string(src), path)
	}
	return LoadDir(path)
}

// LoadDir loads every .cue file in dir as one instance and compiles it.
func LoadDir(dir string) (*rules.Program, error) {
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("error scanning directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	p, err := Compile(value)
	if err != nil {
		return nil, err
	}
	p.Source = dir
	return p, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
