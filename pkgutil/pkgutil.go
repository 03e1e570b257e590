package pkgutil

import (
	"errors"
	"os"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// Should be equivalent to packages.LoadAllSyntax (which is deprecated)
const LoadMode = packages.NeedSyntax | packages.NeedTypesInfo | packages.NeedTypes |
	packages.NeedTypesSizes | packages.NeedImports | packages.NeedName |
	packages.NeedFiles | packages.NeedCompiledGoFiles | packages.NeedDeps

func LoadPackagesFromSource(source string) ([]*packages.Package, error) {
	// We use the Overlay mechanism to allow the tool to load a non-existent file.
	config := &packages.Config{
		Mode:  LoadMode,
		Tests: false,
		Dir:   "",
		Env:   append(os.Environ(), "GO111MODULE=off", "GOPATH=/fake"),
		Overlay: map[string][]byte{
			"/fake/testpackage/main.go": []byte(source),
		},
	}

	return LoadPackagesWithConfig(config, "/fake/testpackage/main.go")
}

func LoadPackagesWithConfig(config *packages.Config, queries ...string) ([]*packages.Package, error) {
	pkgs, err := packages.Load(config, queries...)
	switch {
	case err != nil:
		return nil, err
	case packages.PrintErrors(pkgs) > 0:
		return pkgs, errors.New("errors encountered while loading packages")
	default:
		return pkgs, nil
	}
}

// BuildSSA builds SSA form for the loaded packages. Memory-level analyses
// should include ssa.NaiveForm in the mode: register lifting erases the
// loads and stores of local variables, leaving nothing to classify.
func BuildSSA(pkgs []*packages.Package, mode ssa.BuilderMode) (*ssa.Program, []*ssa.Package) {
	prog, spkgs := ssautil.AllPackages(pkgs, mode)
	prog.Build()
	return prog, spkgs
}
