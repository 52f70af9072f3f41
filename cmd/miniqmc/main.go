// main.go --  This file is part of the miniqmc project.
//
//	miniqmc is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// ------------------------------------------------
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/kgasperich/miniqmc/driver"
	"github.com/kgasperich/miniqmc/particle"
	"github.com/kgasperich/miniqmc/rng"
	"github.com/kgasperich/miniqmc/timers"
	"github.com/kgasperich/miniqmc/wavefunction"
)

var (
	WarningLogger *log.Logger
	InfoLogger    *log.Logger
	ErrorLogger   *log.Logger
	OutputLogger  *log.Logger
)

func initLog(fname string) {
	file, err := os.OpenFile(fname, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatal(err)
	}

	InfoLogger = log.New(file, "INFO: ", log.Ldate|log.Ltime)
	WarningLogger = log.New(file, "WARNING: ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(file, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	OutputLogger = log.New(file, "", 0)
}

func appInfo() {
	OutputLogger.Printf("\nminiqmc -- quantum Monte Carlo proxy benchmark\n" +
		"Metropolis moves over Slater determinants with incremental inverse updates.\n\n")
}

func printOutputDelimiter() {
	OutputLogger.Println(strings.Repeat("-", 70))
}

func memDebug() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	OutputLogger.Printf("Alloc: %d bytes\n", memStats.Alloc)
	OutputLogger.Printf("TotalAlloc: %d bytes\n", memStats.TotalAlloc)
	OutputLogger.Printf("HeapAlloc: %d bytes\n", memStats.HeapAlloc)
	OutputLogger.Printf("HeapSys: %d bytes\n", memStats.HeapSys)
}

// parseTiling reads a "na nb nc" triple.
func parseTiling(s string) (int, int, int, error) {
	words := strings.Fields(s)
	if len(words) != 3 {
		return 0, 0, 0, fmt.Errorf("tiling wants three integers, got %q", s)
	}
	var g [3]int
	for i, w := range words {
		v, err := strconv.Atoi(w)
		if err != nil || v < 1 {
			return 0, 0, 0, fmt.Errorf("bad tiling component %q", w)
		}
		g[i] = v
	}
	return g[0], g[1], g[2], nil
}

// options binds the command line, mirroring the option letters of the
// original driver: -r is the acceptance ratio and -x the pseudopotential
// cutoff, -t the timer level.
type options struct {
	tiling   *string
	steps    *int
	substeps *int
	seed     *int
	walkers  *int
	accept   *float64
	rmax     *float64
	tau      *float64
	alat     *float64
	tlevel   *int
	threaded *bool
	verbose  *bool
	outFname *string
}

func defineOptions(fs *flag.FlagSet) *options {
	return &options{
		tiling:   fs.String("g", "1 1 1", "lattice tiling \"na nb nc\""),
		steps:    fs.Int("n", 5, "Monte Carlo steps"),
		substeps: fs.Int("N", 1, "substeps (sweeps) per step"),
		seed:     fs.Int("s", 11, "seed offset into the walker prime table"),
		walkers:  fs.Int("w", 1, "number of walkers"),
		accept:   fs.Float64("r", 0.5, "fixed acceptance probability"),
		rmax:     fs.Float64("x", 1.7, "pseudopotential cutoff radius"),
		tau:      fs.Float64("tau", 2.0, "diffusion time step"),
		alat:     fs.Float64("a", 3.7, "cubic lattice constant"),
		tlevel:   fs.Int("t", 1, "timer level; 0 disables the per-phase report"),
		threaded: fs.Bool("threads", false, "thread-per-walker instead of batched lockstep"),
		verbose:  fs.Bool("v", false, "echo the summary to stdout"),
		outFname: fs.String("o", "miniqmc.out", "output file"),
	}
}

func main() {
	opt := defineOptions(flag.CommandLine)
	flag.Parse()
	var (
		tiling   = opt.tiling
		steps    = opt.steps
		substeps = opt.substeps
		seed     = opt.seed
		walkers  = opt.walkers
		accept   = opt.accept
		rmax     = opt.rmax
		tau      = opt.tau
		alat     = opt.alat
		threaded = opt.threaded
		verbose  = opt.verbose
		outFname = opt.outFname
	)

	initLog(*outFname)
	InfoLogger.Println("Starting miniqmc...")
	appInfo()

	na, nb, nc, err := parseTiling(*tiling)
	if err != nil {
		ErrorLogger.Fatal("Parsing options: ", err)
	}
	if *walkers < 1 {
		ErrorLogger.Fatal("Parsing options: need at least one walker.")
	}

	cfg := driver.Config{
		Steps:    *steps,
		Substeps: *substeps,
		Tau:      *tau,
		Accept:   *accept,
		Rmax:     *rmax,
	}
	if err := cfg.Validate(); err != nil {
		ErrorLogger.Fatal("Parsing options: ", err)
	}

	tm := timers.NewManager()
	total := tm.Get(timers.Total)
	total.Start()

	setup := tm.Get(timers.Setup)
	setup.Start()
	ions, lat := particle.BuildIons(na, nb, nc, *alat)
	nels := particle.CountElectrons(ions)
	spo, err := wavefunction.NewCosineSPOSet(nels, lat, uint64(*seed))
	if err != nil {
		ErrorLogger.Fatal("Setup: ", err)
	}
	primes := rng.NewPrimeNumberSet()
	seeds := make([]uint64, *walkers)
	for w := range seeds {
		seeds[w] = primes.Get(*seed + w)
	}
	setup.Stop()

	OutputLogger.Println("Lattice tiling:     ", na, nb, nc)
	OutputLogger.Println("Lattice constant:   ", *alat)
	OutputLogger.Println("Ions / electrons:   ", ions.N(), "/", nels)
	OutputLogger.Println("Walkers:            ", *walkers)
	OutputLogger.Println("Steps x substeps:   ", *steps, "x", *substeps)
	OutputLogger.Println("Tau / accept / Rmax:", *tau, "/", *accept, "/", *rmax)
	printOutputDelimiter()

	var movers []*driver.Mover
	if *threaded {
		// per-walker goroutines must not share the timer manager
		WarningLogger.Println("Threaded run: per-phase timers disabled.")
		mcfg := cfg
		tInit := tm.Get(timers.Init)
		tInit.Start()
		for w, s := range seeds {
			m, err := driver.NewMover(s, ions, spo, mcfg)
			if err != nil {
				ErrorLogger.Fatal("Walker ", w, " init: ", err)
			}
			movers = append(movers, m)
		}
		tInit.Stop()
		if err := driver.RunThreaded(movers, mcfg); err != nil {
			ErrorLogger.Fatal("Run: ", err)
		}
	} else {
		if *opt.tlevel > 0 {
			cfg.Timers = tm
		}
		tInit := tm.Get(timers.Init)
		tInit.Start()
		crowd, err := driver.NewCrowd(seeds, ions, spo, cfg)
		tInit.Stop()
		if err != nil {
			ErrorLogger.Fatal("Crowd init: ", err)
		}
		if err := crowd.Run(); err != nil {
			ErrorLogger.Fatal("Run: ", err)
		}
		movers = crowd.Movers
	}
	total.Stop()

	ratios := make([]float64, len(movers))
	nlpp := make([]float64, len(movers))
	kinetic := make([]float64, len(movers))
	for w, m := range movers {
		ratios[w] = m.AcceptanceRatio()
		nlpp[w] = m.NLPPSum
		kinetic[w] = wavefunction.KineticSum(m.Els)
		OutputLogger.Println("Walker", w, ": acceptance", ratios[w],
			" NLPP sum", nlpp[w], " kinetic", kinetic[w])
	}
	printOutputDelimiter()

	meanAcc, stdAcc := stat.MeanStdDev(ratios, nil)
	meanNLPP, stdNLPP := stat.MeanStdDev(nlpp, nil)
	meanKin, stdKin := stat.MeanStdDev(kinetic, nil)
	if len(movers) == 1 {
		stdAcc, stdNLPP, stdKin = 0, 0, 0
	}
	OutputLogger.Println("Acceptance ratio: ", meanAcc, " +/- ", stdAcc)
	OutputLogger.Println("NLPP sum:         ", meanNLPP, " +/- ", stdNLPP)
	OutputLogger.Println("Kinetic sum:      ", meanKin, " +/- ", stdKin)
	printOutputDelimiter()
	if *opt.tlevel > 0 {
		OutputLogger.Println(tm.Report())
	}
	memDebug()

	if *verbose {
		fmt.Println("Acceptance ratio: ", meanAcc, " +/- ", stdAcc)
		fmt.Println("NLPP sum:         ", meanNLPP, " +/- ", stdNLPP)
		if *opt.tlevel > 0 {
			fmt.Println(tm.Report())
		}
	}

	InfoLogger.Println("Exiting miniqmc...")
	fmt.Println("miniqmc done. Output file:", *outFname)
}
