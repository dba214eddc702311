// Package test provides support for compiling and inspecting the C test
// fixtures used by the process control tests.
package test

import (
	"debug/elf"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// Fixture is a test binary compiled from _fixtures.
type Fixture struct {
	// Name is the fixture name as passed to BuildFixture.
	Name string
	// Path is the path to the compiled binary.
	Path string
	// Source is the path to the source file.
	Source string
}

var (
	fixturesMu sync.Mutex
	fixtures   = make(map[string]Fixture)
	buildDir   string
)

// FindFixturesDir walks up from the current directory until it finds the
// _fixtures directory.
func FindFixturesDir() string {
	parent := ".."
	fixturesDir := "_fixtures"
	for depth := 0; depth < 10; depth++ {
		if _, err := os.Stat(fixturesDir); err == nil {
			break
		}
		fixturesDir = filepath.Join(parent, fixturesDir)
	}
	return fixturesDir
}

// BuildFixture compiles the named C fixture with debugging symbols and no
// optimizations and returns it. Compiled fixtures are cached for the
// lifetime of the test process.
func BuildFixture(name string) Fixture {
	fixturesMu.Lock()
	defer fixturesMu.Unlock()

	if f, ok := fixtures[name]; ok {
		return f
	}

	if buildDir == "" {
		var err error
		buildDir, err = os.MkdirTemp("", "godbg-fixtures")
		if err != nil {
			panic(fmt.Sprintf("could not create fixture build dir: %v", err))
		}
	}

	source := filepath.Join(FindFixturesDir(), name+".c")
	path := filepath.Join(buildDir, name)

	// -no-pie keeps symbol addresses equal to runtime addresses so tests
	// can plant breakpoints without reading link maps.
	cmd := exec.Command("gcc", "-g", "-O0", "-no-pie", "-o", path, source)
	out, err := cmd.CombinedOutput()
	if err != nil {
		panic(fmt.Sprintf("error compiling fixture %s: %v\n%s", source, err, out))
	}

	f := Fixture{Name: name, Path: path, Source: source}
	fixtures[name] = f
	return f
}

// Clean removes the fixture build directory.
func Clean() {
	fixturesMu.Lock()
	defer fixturesMu.Unlock()
	if buildDir != "" {
		os.RemoveAll(buildDir)
		buildDir = ""
		fixtures = make(map[string]Fixture)
	}
}

// SymbolAddr returns the address of the named symbol in the fixture
// binary's symbol table.
func SymbolAddr(fixture Fixture, symbol string) (uint64, error) {
	f, err := elf.Open(fixture.Path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	syms, err := f.Symbols()
	if err != nil {
		return 0, err
	}
	for _, sym := range syms {
		if sym.Name == symbol {
			return sym.Value, nil
		}
	}
	return 0, fmt.Errorf("symbol %s not found in %s", symbol, fixture.Path)
}
