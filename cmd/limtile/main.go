// limtile is a command-line tool for inspecting tile-source directories and
// extracting tiles and associated images from them.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/rubedolife/large-image/backend/tiledir"
	"github.com/rubedolife/large-image/lim"
	"github.com/rubedolife/large-image/tilesource"
)

var showHelp bool
var showHelp2 bool
var runVerbose bool
var outputFile string
var cacheSize string
var logfile string
var maxLogSize int
var maxLogAge int

const helpMessage = `
limtile inspects multi-resolution tile sources and extracts tiles from them

	usage: limtile [options] <command>

Commands:

	info <source-dir>
		Print the source metadata as JSON.

	tile <source-dir> <x> <y> <z> [frame]
		Fetch one tile and write it to the -out file.

	associated <source-dir> [name]
		List associated image names, or extract one to the -out file.
`

func init() {
	flag.BoolVar(&showHelp, "h", false, "Show help message")
	flag.BoolVar(&showHelp2, "help", false, "Show help message")
	flag.BoolVar(&runVerbose, "verbose", false, "Log debug messages")
	flag.StringVar(&outputFile, "out", "tile.png", "Output file for extracted images")
	flag.StringVar(&cacheSize, "cache", "", "Tile cache size, e.g. 64MB (off when empty)")
	flag.StringVar(&logfile, "logfile", "", "Log to this rotating file instead of stdout")
	flag.IntVar(&maxLogSize, "maxlogsize", 500, "Maximum log file size in MB before rotation")
	flag.IntVar(&maxLogAge, "maxlogage", 30, "Maximum days to retain old log files")
}

func main() {
	flag.Parse()

	if showHelp || showHelp2 || flag.NArg() == 0 {
		fmt.Print(helpMessage)
		fmt.Println("Options:")
		flag.PrintDefaults()
		return
	}
	if runVerbose {
		lim.SetLogMode(lim.DebugMode)
	} else {
		lim.SetLogMode(lim.InfoMode)
	}
	config := lim.LogConfig{Logfile: logfile, MaxSize: maxLogSize, MaxAge: maxLogAge}
	config.SetLogger()
	defer lim.Shutdown()

	if err := doCommand(flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func doCommand(args []string) error {
	switch args[0] {
	case "info":
		return doInfo(args[1:])
	case "tile":
		return doTile(args[1:])
	case "associated":
		return doAssociated(args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// openSource opens the named source directory, applying the -cache flag.
func openSource(root string) (*tilesource.Source, error) {
	var opts *tilesource.Options
	if cacheSize != "" {
		n, err := humanize.ParseBytes(cacheSize)
		if err != nil {
			return nil, fmt.Errorf("bad -cache value %q: %v", cacheSize, err)
		}
		opts = &tilesource.Options{TileCacheBytes: int(n)}
	}
	return tiledir.OpenSource(root, opts)
}

func doInfo(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: limtile info <source-dir>")
	}
	s, err := openSource(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	out, err := json.MarshalIndent(s.Metadata(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if names := s.AssociatedImages(); len(names) > 0 {
		fmt.Println("Associated images:", names)
	}
	return nil
}

func doTile(args []string) error {
	if len(args) < 4 || len(args) > 5 {
		return fmt.Errorf("usage: limtile tile <source-dir> <x> <y> <z> [frame]")
	}
	coords := make([]int, len(args)-1)
	for i, arg := range args[1:] {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("bad tile coordinate %q: %v", arg, err)
		}
		coords[i] = n
	}
	opts := &tilesource.TileOptions{}
	if len(coords) == 4 {
		opts.Frame = coords[3]
	}

	s, err := openSource(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	timelog := lim.NewTimeLog()
	b, err := s.GetTile(coords[0], coords[1], coords[2], opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputFile, b.Data, 0644); err != nil {
		return err
	}
	timelog.Infof("wrote %s tile (%s) to %s", b.Format, humanize.Bytes(uint64(len(b.Data))), outputFile)
	return nil
}

func doAssociated(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: limtile associated <source-dir> [name]")
	}
	s, err := openSource(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	if len(args) == 1 {
		for _, name := range s.AssociatedImages() {
			fmt.Println(name)
		}
		return nil
	}
	img, found := s.AssociatedImage(args[1])
	if !found {
		return fmt.Errorf("source has no associated image %q", args[1])
	}
	b := &tilesource.Block{Format: tilesource.FormatImage, Image: img}
	_, data, err := b.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%s)\n", outputFile, humanize.Bytes(uint64(len(data))))
	return nil
}
