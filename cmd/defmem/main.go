package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime/pprof"

	"github.com/loopsafe/defmem"
	"github.com/loopsafe/defmem/internal/maps"
	"github.com/loopsafe/defmem/internal/slices"
	"github.com/loopsafe/defmem/pkgutil"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var dir = flag.String("dir", "", "alternative directory to run the go build tool in")

func main() {
	flag.Parse()

	if flag.NArg() == 0 {
		log.Fatal("Specify a package query on the command line")
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				log.Fatal("Failed to close", f)
			}
		}()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	pkgs, err := pkgutil.LoadPackagesWithConfig(&packages.Config{
		Mode:  pkgutil.LoadMode,
		Tests: true,
		Dir:   *dir,
	}, flag.Args()...)

	if err != nil {
		log.Fatalf("Loading packages failed: %v", err)
	}

	log.Printf("Loaded %d packages", len(pkgs))

	// NaiveForm keeps local variables in memory, which is what a
	// memory-level analysis wants to see.
	prog, spkgs := pkgutil.BuildSSA(pkgs,
		ssa.NaiveForm|ssa.InstantiateGenerics)

	log.Println("Built packages")

	pkgSet := maps.FromKeys(spkgs)

	loops := 0
	for fn := range ssautil.AllFunctions(prog) {
		if len(fn.Blocks) == 0 || fn.Pkg == nil {
			continue
		}
		if _, ok := pkgSet[fn.Pkg]; !ok {
			continue
		}

		res, err := defmem.Analyze(fn, defmem.Config{})
		if err != nil {
			log.Fatalf("Analysis of %v failed: %v", fn, err)
		}

		for _, loop := range res.Loops() {
			loops++
			tr := defmem.ClassifyLoop(res, loop)
			fmt.Printf("%v %s at %v:\n", fn, loop,
				prog.Fset.Position(loop.Header.Instrs[0].Pos()))
			printBucket("  private", tr.Private)
			printBucket("  first private", tr.FirstPrivate)
			printBucket("  last private", tr.LastPrivate)
			printBucket("  shared", tr.Shared)
			printBucket("  read only", tr.ReadOnly)
		}
	}

	log.Printf("Classified %d loops", loops)
}

func printBucket(name string, locs []defmem.MemoryLocation) {
	if len(locs) == 0 {
		return
	}
	fmt.Printf("%s: %v\n", name,
		slices.Map(locs, defmem.MemoryLocation.String))
}
