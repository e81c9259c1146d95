// Command cocossim runs a cycle-accurate simulation of a systolic-array
// and vector-unit NN accelerator over a layer-description file, grounded
// on _examples/original_source's main.cc and frontends/standard's CLI
// flag surface (-i/-o/-f/-c/-sa_sz/-vu_sz/-ws), re-expressed as a cobra
// command.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mc186/cocossim/internal/eus"
	"github.com/mc186/cocossim/internal/frontend/standard"
	"github.com/mc186/cocossim/internal/job"
	"github.com/mc186/cocossim/internal/logx"
	"github.com/mc186/cocossim/internal/memsys"
	"github.com/mc186/cocossim/internal/scheduler"
	"github.com/mc186/cocossim/internal/stats"
	"github.com/mc186/cocossim/internal/systolic"
	"github.com/mc186/cocossim/internal/vector"
)

type flags struct {
	layerFile string
	outFile   string
	freqGHz   float64
	logLevel  string

	cores  int
	saSize int
	vuSize int
	ws     bool

	archFile string
	dotFile  string
	vcdFile  string
}

func main() {
	f := &flags{}

	root := &cobra.Command{
		Use:   "cocossim",
		Short: "Cycle-accurate simulator for a systolic-array/vector-unit NN accelerator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}

	root.Flags().StringVarP(&f.layerFile, "i", "i", "", "layer input file (required)")
	root.Flags().StringVarP(&f.outFile, "o", "o", "", "output statistics file (required)")
	root.Flags().Float64VarP(&f.freqGHz, "f", "f", 1.0, "accelerator clock frequency (GHz)")
	root.Flags().StringVar(&f.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.Flags().IntVarP(&f.cores, "c", "c", 1, "number of cores (systolic arrays and vector units each)")
	root.Flags().IntVar(&f.saSize, "sa_sz", 16, "systolic array size")
	root.Flags().IntVar(&f.vuSize, "vu_sz", 16, "vector unit size")
	root.Flags().BoolVar(&f.ws, "ws", false, "weight-stationary (true) or output-stationary (false)")
	root.Flags().StringVar(&f.archFile, "arch", "", "optional YAML file overriding core/size/timing knobs")

	root.Flags().StringVar(&f.dotFile, "dot", "", "optional path to write the job dependency graph as Graphviz DOT")
	root.Flags().StringVar(&f.vcdFile, "vcd", "", "optional path to write a VCD waveform of unit states")

	_ = root.MarkFlagRequired("i")
	_ = root.MarkFlagRequired("o")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(f *flags) error {
	log := logx.New(f.logLevel)
	runID := uuid.New()
	log.WithField("run_id", runID).Info("starting simulation")

	layerFile, err := os.Open(f.layerFile)
	if err != nil {
		return fmt.Errorf("cocossim: opening layer file: %w", err)
	}
	defer layerFile.Close()

	layers, err := standard.ReadLayerFile(layerFile)
	if err != nil {
		return fmt.Errorf("cocossim: parsing layer file: %w", err)
	}
	log.WithField("n_layers", len(layers)).Info("parsed layer configuration")

	arena := job.NewArena()
	archCfg := standard.ArchConfig{NCores: f.cores, SASize: f.saSize, VUSize: f.vuSize, WS: f.ws}
	constants := standard.DefaultConstants()

	if f.archFile != "" {
		archCfg, constants, err = loadArchOverride(f.archFile, archCfg, constants)
		if err != nil {
			return err
		}
	}

	pair, err := standard.MakeLayers(arena, archCfg, constants, layers)
	if err != nil {
		return fmt.Errorf("cocossim: building job graph: %w", err)
	}

	if f.dotFile != "" {
		if err := writeDOT(f.dotFile, arena, pair.Head); err != nil {
			return err
		}
	}

	const requestSizeBytes = 32
	const dramEnqPerCycle = 9

	var arbiter *memsys.Arbiter
	model := memsys.NewSimpleModel(
		memsys.Config{TCKNanos: 0.625, RequestSizeBytes: requestSizeBytes},
		2, 0,
		func(addr uint64) { arbiter.OnReadDone(addr) },
		func(addr uint64) { arbiter.OnWriteDone(addr) },
	)
	arbiter = memsys.NewArbiter(model)

	sysTiming := systolic.Timing{FPULatency: 2, BatchSize: constants.BatchSize, DataTypeWidth: constants.DataTypeWidth}
	vecTiming := vector.Timing{BatchSize: constants.BatchSize, DataTypeWidth: constants.DataTypeWidth}
	units := standard.BuildArch(archCfg, sysTiming, vecTiming, dramEnqPerCycle, requestSizeBytes, arena)
	wireUnitMemory(units, arbiter)

	engine := scheduler.NewEngine(arena, units, arbiter, model, scheduler.Config{
		DRAMEnqueuePerCycle: dramEnqPerCycle,
		MemTicksPerCycle:    model.Config().TCKNanos / (1.0 / f.freqGHz),
	})

	labels := unitLabels(archCfg)

	var vcd *stats.VCDWriter
	if f.vcdFile != "" {
		vcdFile, err := os.Create(f.vcdFile)
		if err != nil {
			return fmt.Errorf("cocossim: creating vcd file: %w", err)
		}
		defer vcdFile.Close()

		vcd, err = stats.NewVCDWriter(vcdFile, labels)
		if err != nil {
			return fmt.Errorf("cocossim: writing vcd header: %w", err)
		}
		defer vcd.Close()
	}

	var traceErr error
	if vcd != nil {
		engine.Trace = func(states []int, idle []bool) {
			if traceErr == nil {
				traceErr = vcd.Sample(states, idle)
			}
		}
	}

	phases := engine.Run(pair.Head, nil)
	if traceErr != nil {
		return fmt.Errorf("cocossim: writing vcd sample: %w", traceErr)
	}
	log.WithFields(map[string]interface{}{
		"cycles":    engine.Cycles(),
		"dram_cmds": engine.DRAMCommands(),
	}).Info("simulation complete")

	outFile, err := os.Create(f.outFile)
	if err != nil {
		return fmt.Errorf("cocossim: creating output file: %w", err)
	}
	defer outFile.Close()

	if err := stats.WriteReport(outFile, labels, phases); err != nil {
		return fmt.Errorf("cocossim: writing stats report: %w", err)
	}

	return nil
}

func loadArchOverride(path string, cfg standard.ArchConfig, c standard.Constants) (standard.ArchConfig, standard.Constants, error) {
	f, err := os.Open(path)
	if err != nil {
		return cfg, c, fmt.Errorf("cocossim: opening arch config: %w", err)
	}
	defer f.Close()

	fc, err := standard.ReadArchConfig(f)
	if err != nil {
		return cfg, c, err
	}
	newCfg, newC := fc.Apply(cfg, c)
	return newCfg, newC, nil
}

func wireUnitMemory(units []eus.Unit, arbiter *memsys.Arbiter) {
	for _, u := range units {
		switch t := u.(type) {
		case *systolic.Array:
			t.Emit = emitFn(arbiter)
		case *vector.Unit:
			t.Emit = emitFn(arbiter)
		}
	}
}

func emitFn(arbiter *memsys.Arbiter) func(address uint64, isWrite bool, priority int, owner eus.MemoryClient) {
	return func(address uint64, isWrite bool, priority int, owner eus.MemoryClient) {
		arbiter.Enqueue(address, isWrite, priority, owner)
	}
}

func unitLabels(cfg standard.ArchConfig) []stats.UnitLabel {
	labels := make([]stats.UnitLabel, 0, cfg.NCores*2)
	for i := 0; i < cfg.NCores; i++ {
		labels = append(labels, stats.UnitLabel{Kind: job.KindSystolic, Name: fmt.Sprintf("sa%d", i)})
	}
	for i := 0; i < cfg.NCores; i++ {
		labels = append(labels, stats.UnitLabel{Kind: job.KindVector, Name: fmt.Sprintf("vu%d", i)})
	}
	return labels
}

func writeDOT(path string, arena *job.Arena, roots []*job.Job) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cocossim: creating dot file: %w", err)
	}
	defer f.Close()
	return standard.WriteDOT(f, arena, roots)
}
