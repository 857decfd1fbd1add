// Command splatgeo georeferences Gaussian-splat point clouds and the 3D Tiles
// tilesets that carry them.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/splatgeo/internal/fsutil"
	"github.com/banshee-data/splatgeo/internal/version"
)

// errUsage marks argument errors; main prints usage for them.
var errUsage = errors.New("usage")

// env is what a command needs from the outside world.
type env struct {
	fs     fsutil.FileSystem
	stdout io.Writer
	stderr io.Writer
}

func main() {
	log.SetFlags(0)
	e := env{fs: fsutil.OSFileSystem{}, stdout: os.Stdout, stderr: os.Stderr}
	if err := run(e, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			printUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatalf("splatgeo: %v", err)
	}
}

func run(e env, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: missing command", errUsage)
	}

	command, rest := args[0], args[1:]
	switch command {
	case "apply":
		return handleApply(e, rest)
	case "placement":
		return handlePlacement(e, rest)
	case "tileset-fix":
		return handleTilesetFix(e, rest)
	case "tileset-scale":
		return handleTilesetScale(e, rest)
	case "tileset-new":
		return handleTilesetNew(e, rest)
	case "inspect":
		return handleInspect(e, rest)
	case "gps-summary":
		return handleGPSSummary(e, rest)
	case "example":
		return handleExample(e, rest)
	case "runs":
		return handleRuns(e, rest)
	case "version":
		fmt.Fprintln(e.stdout, version.String())
		return nil
	case "help", "-h", "--help":
		printUsage(e.stdout)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `splatgeo - georeference Gaussian-splat point clouds

Usage: splatgeo <command> [options]

Commands:
  apply          Apply a similarity transform (explicit or fitted) to a PLY cloud
  placement      Build a georeference document from a GPS summary or coordinates
  tileset-fix    Write a placement matrix into an existing tileset.json
  tileset-scale  Change the scale of a tileset root transform
  tileset-new    Create a single-tile tileset for a splat content file
  inspect        Report splat scale statistics and optionally rescale splats
  gps-summary    Summarise per-image GPS fixes (CSV or JSON)
  example        Write example transform or correspondence descriptors
  runs           List recorded georeference runs
  version        Show version
  help           Show this help message

Run 'splatgeo <command> -h' for the options of a command.

Examples:
  splatgeo gps-summary -input fixes.csv -output gps.json
  splatgeo placement -gps-data gps.json -output georef.json
  splatgeo apply -input model.ply -output placed.ply -correspondences points.json -residual-report fit.html
  splatgeo tileset-new -content tile_0.spz -input model.ply -georef georef.json -output tiles
`)
}

func newFlagSet(e env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

// parseFlags parses args and rejects stray positional arguments.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: %s: unexpected arguments %v", errUsage, fs.Name(), fs.Args())
	}
	return nil
}

// isSet reports whether the named flag was given on the command line.
func isSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
