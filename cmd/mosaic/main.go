// Package main provides the Mosaic distributed tensor CLI.
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/mosaic-ml/mosaic/tensor"
)

const version = "v0.1.0-dev"

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return
	}

	switch args[0] {
	case "version":
		fmt.Printf("Mosaic distributed tensor core %s\n", version)
	case "plan":
		if len(args) < 2 {
			klog.Fatal("usage: mosaic plan <plan.yaml>")
		}
		if err := runPlan(args[1]); err != nil {
			klog.Fatalf("plan failed: %+v", err)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Mosaic - distributed halo tensor core")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version          Show version")
	fmt.Println("  plan <file>      Describe the partitioning a YAML plan produces")
}

// planConfig is the external partition plan: the caller-supplied grid and
// overlap counts the tensor core is otherwise handed programmatically.
type planConfig struct {
	Global  tensor.Shape `yaml:"global"`
	Grid    tensor.Shape `yaml:"grid"`
	Head    tensor.Shape `yaml:"head_overlap"`
	Tail    tensor.Shape `yaml:"tail_overlap"`
	Element string       `yaml:"element"` // float32 (default), float64, float16, int32, int64, uint8
}

func loadPlan(path string) (planConfig, error) {
	var cfg planConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading plan %q", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing plan %q", path)
	}
	if cfg.Head == nil {
		cfg.Head = make(tensor.Shape, len(cfg.Grid))
	}
	if cfg.Tail == nil {
		cfg.Tail = make(tensor.Shape, len(cfg.Grid))
	}
	return cfg, nil
}

func elementSize(name string) (int, error) {
	switch name {
	case "", "float32":
		return tensor.Float32.Size(), nil
	case "float64":
		return tensor.Float64.Size(), nil
	case "float16":
		return tensor.Float16.Size(), nil
	case "int32":
		return tensor.Int32.Size(), nil
	case "int64":
		return tensor.Int64.Size(), nil
	case "uint8":
		return tensor.Uint8.Size(), nil
	default:
		return 0, errors.Errorf("unknown element type %q", name)
	}
}

// runPlan prints, for every rank of the plan's grid, the partition that rank
// would own: grid coordinate, local and local real shapes, global index base
// and the dense slab size.
func runPlan(path string) error {
	cfg, err := loadPlan(path)
	if err != nil {
		return err
	}
	dist, err := tensor.MakeOverlappedDistribution(cfg.Grid, cfg.Head, cfg.Tail)
	if err != nil {
		return errors.Wrap(err, "invalid distribution")
	}
	elemSize, err := elementSize(cfg.Element)
	if err != nil {
		return err
	}

	ranks := cfg.Grid.NumElements()
	fmt.Printf("global %v over grid %v (%d ranks), halo head %v tail %v\n\n",
		cfg.Global, cfg.Grid, ranks, cfg.Head, cfg.Tail)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "rank\tcoord\tlocal\treal\tbase\tslab")
	totalBytes := uint64(0)
	for rank := 0; rank < ranks; rank++ {
		coord := unravel(rank, cfg.Grid)
		local, err := dist.LocalShape(cfg.Global, coord)
		if err != nil {
			return err
		}
		real, err := dist.LocalRealShape(cfg.Global, coord)
		if err != nil {
			return err
		}
		base, err := dist.GlobalIndexBase(cfg.Global, coord)
		if err != nil {
			return err
		}
		bytes := uint64(real.NumElements() * elemSize)
		totalBytes += bytes
		fmt.Fprintf(w, "%d\t%v\t%v\t%v\t%v\t%s\n",
			rank, coord, local, real, base, humanize.IBytes(bytes))
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "writing plan table")
	}
	fmt.Printf("\ntotal slab memory (dense, before pitch padding): %s\n", humanize.IBytes(totalBytes))
	return nil
}

// unravel maps a rank to its grid coordinate, dimension 0 fastest.
func unravel(rank int, grid tensor.Shape) tensor.Index {
	coord := make(tensor.Index, len(grid))
	for dim := range grid {
		coord[dim] = rank % grid[dim]
		rank /= grid[dim]
	}
	return coord
}
