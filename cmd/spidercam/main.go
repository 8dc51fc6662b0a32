// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.



package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"

	nl "github.com/mlnoga/spidercam/internal"
	"github.com/mlnoga/spidercam/internal/absorbance"
	"github.com/mlnoga/spidercam/internal/ops"
	"github.com/mlnoga/spidercam/internal/ops/vision"
	"github.com/mlnoga/spidercam/internal/psf"
	"github.com/mlnoga/spidercam/internal/raster"
	"github.com/mlnoga/spidercam/internal/rest"
)

const version = "0.1.0"

var totalMiBs=memory.TotalMemory()/1024/1024

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var image  = flag.String("image", "", "simulate the given source image `file`, in addition to any files named after the command")
var base   = flag.String("base", ".", "resolve relative input and output file names against this `directory`")
var out    = flag.String("out", "", "write source-, people- and spider- images to this `directory`, relative to the base directory")
var format = flag.String("format", "", "output format suffix, one of jpg, png or tif. Blank keeps the suffix of the source image")
var log    = flag.String("log", "%auto", "save log output to `file`. `%auto` writes spidercam.log into the output directory when simulating")

var plateScale = flag.Float64("plateScale", psf.DefaultPlateScale, "plate scale of the source image in degrees per pixel")
var people     = flag.Float64("people", psf.DefaultPeopleResolution, "angular resolution of human vision in degrees FWHM")
var spider     = flag.Float64("spider", psf.DefaultSpiderResolution, "angular resolution of jumping spider vision in degrees FWHM")
var extent     = flag.Float64("extent", psf.DefaultExtentFactor, "kernel side length as multiple of the FWHM")
var peopleBal  = flag.String("peopleBalance", vision.DefaultPeople().ColorBalance.String(), "people color balance as comma-separated red, green and blue multipliers")
var spiderBal  = flag.String("spiderBalance", vision.DefaultSpider().ColorBalance.String(), "spider color balance as comma-separated red, green and blue multipliers")

var maxThreads = flag.Int("maxThreads", runtime.GOMAXPROCS(0), "maximum number of color channels to convolve concurrently")
var memoryMB   = flag.Int("memory", int((totalMiBs*7)/10), "total MiB of memory to use for convolution, default=0.7x physical memory")

var absorbanceCSV  = flag.String("absorbance", "", "photoreceptor absorbance `file` in CSV format, for the absorbance command")
var absorbancePlot = flag.String("absorbancePlot", absorbance.DefaultPlotName, "write the absorbance plot as PNG to `file`")

var addr   = flag.String("addr", ":8080", "listen on this address when serving the REST API")
var chroot = flag.String("chroot", "", "change filesystem root to this `directory` before serving (requires root)")
var setuid = flag.Int("setuid", -1, "change to this user ID before serving, -1=don't")

func main() {
	logWriter:=nl.LogWriter()
	start:=time.Now()
	flag.Usage=func(){
 	    fmt.Fprintf(os.Stdout, `Spidercam Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (simulate|psf|absorbance|serve|legal|version) (img0.jpg ... imgn.jpg)

Commands:
  simulate   Render source images as seen by people and by a jumping spider (default)
  psf        Show point spread function parameters for both visual systems
  absorbance Plot photoreceptor absorbance spectra from a CSV file
  serve      Serve the REST API
  legal      Show license and attribution information
  version    Show version information

Flags:
`, os.Args[0])
	    flag.PrintDefaults()
	}
	flag.Parse()

	args:=flag.Args()
	cmd:="simulate"
	if len(args)>0 {
		cmd, args=args[0], args[1:]
	}

	// Initialize logging to file in addition to stdout, if selected
	if *log=="%auto" {
		if cmd=="simulate" {
			*log=filepath.Join(*base, *out, "spidercam.log")
		} else {
			*log=""
		}
	}
	if *log!="" {
		if err:=nl.LogAlsoToFile(*log); err!=nil { nl.LogFatalf("Unable to open logfile '%s': %v\n", *log, err) }
	}

	// Enable CPU profiling if flagged
	if *cpuprofile!="" {
		f, err:=os.Create(*cpuprofile)
		if err!=nil {
			nl.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err:=pprof.StartCPUProfile(f); err!=nil {
			nl.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	// run actions
	var err error
	switch cmd {
	case "simulate":
		fmt.Fprintf(logWriter, "%s\n", cpuBanner())
		err=cmdSimulate(args, logWriter)

	case "psf":
		err=cmdPSF(logWriter)

	case "absorbance":
		err=cmdAbsorbance(logWriter)

	case "serve":
		fmt.Fprintf(logWriter, "%s\n", cpuBanner())
		err=cmdServe()

	case "legal":
		nl.LogPrint(legal)

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n%s\n", version, cpuBanner())

	case "help", "?":
		flag.Usage()
		return

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}

	elapsed:=time.Since(start)
	if cmd=="simulate" || cmd=="absorbance" {
		fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)
	}

	// Store memory profile if flagged
	if *memprofile!="" {
		f, err:=os.Create(*memprofile)
		if err!=nil {
			nl.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err:=pprof.Lookup("allocs").WriteTo(f,0); err!=nil {
			nl.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err!=nil {
		nl.LogPrintf("Error: %s\n", err.Error())
		nl.LogSync()
		os.Exit(-1)
	}
	nl.LogSync()
}

// Describes the host CPU and memory
func cpuBanner() string {
	avx2:=""
	if cpuid.CPU.AVX2() { avx2=" with AVX2" }
	return fmt.Sprintf("Running on %s%s, %d physical and %d logical cores, %d MiB memory",
		cpuid.CPU.BrandName, avx2, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, totalMiBs)
}

// Builds the simulation settings from the command line flags
func configFromFlags() (cfg vision.Config, err error) {
	cfg=vision.DefaultConfig()
	cfg.PlateScale=*plateScale
	cfg.People.AngularResolution, cfg.Spider.AngularResolution=*people, *spider
	cfg.People.ExtentFactor, cfg.Spider.ExtentFactor=*extent, *extent
	if cfg.People.ColorBalance, err=raster.ParseRGB(*peopleBal); err!=nil { return cfg, err }
	if cfg.Spider.ColorBalance, err=raster.ParseRGB(*spiderBal); err!=nil { return cfg, err }
	return cfg, cfg.Validate()
}

// Simulates people and spider vision for each source image in turn
func cmdSimulate(args []string, logWriter io.Writer) error {
	fileNames:=args
	if *image!="" { fileNames=append([]string{*image}, fileNames...) }
	if len(fileNames)==0 {
		return fmt.Errorf("%w: no source image given, use -image or name files after the command", nl.ErrInvalidArgument)
	}

	cfg, err:=configFromFlags()
	if err!=nil { return err }

	c:=ops.NewContext(logWriter, *base)
	c.MaxThreads, c.MemoryMB=*maxThreads, *memoryMB

	for i, fileName:=range fileNames {
		seq:=ops.NewOpSequence(
			ops.NewOpLoad     (i, fileName),
			vision.NewOpSimulate(cfg),
			ops.NewOpSave     (*out, *format),
		)

		m, err:=json.MarshalIndent(seq, "", "  ")
		if err!=nil { return err }
		fmt.Fprintf(logWriter, "\nSimulating %s with these settings:\n%s\n", fileName, string(m))

		if _, err:=ops.Run(seq, c); err!=nil { return err }
	}
	return nil
}

// Shows kernel parameters of both visual systems for the configured plate scale
func cmdPSF(logWriter io.Writer) error {
	cfg, err:=configFromFlags()
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "Plate scale %g degrees per pixel\n", cfg.PlateScale)
	for _, p:=range []vision.Profile{cfg.People, cfg.Spider} {
		k, err:=p.Kernel(cfg.PlateScale)
		if err!=nil { return err }
		fmt.Fprintf(logWriter, "%v\n  %v, sum %.12f, peak %.6g\n", p, k, k.Sum(), k.Peak())
	}
	return nil
}

// Plots photoreceptor absorbance spectra
func cmdAbsorbance(logWriter io.Writer) error {
	if *absorbanceCSV=="" {
		return fmt.Errorf("%w: no absorbance file given, use -absorbance", nl.ErrInvalidArgument)
	}
	ds, err:=absorbance.Load(*absorbanceCSV)
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "Loaded %v from %s\n", ds, *absorbanceCSV)
	fmt.Fprintf(logWriter, "Writing absorbance plot to %s\n", *absorbancePlot)
	return absorbance.Plot(ds, *absorbancePlot)
}

// Serves the REST API until the listener fails
func cmdServe() error {
	if err:=rest.MakeSandbox(*chroot, *setuid); err!=nil { return err }
	baseDir:=*base
	if *chroot!="" && !filepath.IsAbs(baseDir) { baseDir=filepath.Join("/", baseDir) }
	nl.LogPrintf("Serving REST API on %s with base directory %s\n", *addr, baseDir)
	return rest.Serve(*addr, rest.Settings{BaseDir: baseDir, MaxThreads: *maxThreads, MemoryMB: *memoryMB})
}
