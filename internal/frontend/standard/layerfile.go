package standard

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mc186/cocossim/internal/job"
)

// ReadLayerFile parses the layer-description file format from
// main.cc's sscanf loop: one layer per line, a name token followed by up
// to eight integer dimensions, reworked as a bufio.Scanner over
// whitespace-separated fields instead of a fixed-width sscanf template.
func ReadLayerFile(r io.Reader) ([]LayerConfig, error) {
	var out []LayerConfig
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("standard: layer file line %d: expected a name and at least one dimension, got %q", lineNo, line)
		}
		dims := make([]int, 0, len(fields)-1)
		dimFields := fields[1:]
		if len(dimFields) > 8 {
			dimFields = dimFields[:8]
		}
		for _, f := range dimFields {
			if f == "" {
				break
			}
			v, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("standard: layer file line %d: bad dimension %q: %w", lineNo, f, err)
			}
			dims = append(dims, v)
		}
		out = append(out, LayerConfig{LayerType: fields[0], Dimensions: dims})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteDOT renders the job graph reachable from roots as a Graphviz DOT
// file, matching Job.cc's jobs_to_dot. arena resolves child indices back
// to jobs for traversal.
func WriteDOT(w io.Writer, arena *job.Arena, roots []*job.Job) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph G {")
	fmt.Fprintln(bw, `  frontier [label="frontier"];`)

	names := make(map[int]string)
	var toVisit []*job.Job
	toVisit = append(toVisit, roots...)
	var order []*job.Job
	visited := make(map[int]bool)

	for len(toVisit) > 0 {
		j := toVisit[len(toVisit)-1]
		toVisit = toVisit[:len(toVisit)-1]
		if visited[j.Index] {
			continue
		}
		visited[j.Index] = true
		name := fmt.Sprintf("job%d", len(names))
		names[j.Index] = name
		order = append(order, j)
		fmt.Fprintf(bw, "  %s [label=%q];\n", name, dimsString(j))

		for _, ci := range j.Children {
			toVisit = append(toVisit, arena.Get(ci))
		}
	}

	for _, j := range order {
		for _, ci := range j.Children {
			fmt.Fprintf(bw, "  %s -> %s;\n", names[j.Index], names[ci])
		}
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func dimsString(j *job.Job) string {
	if j.Kind == job.KindVector && j.Vector != nil {
		return fmt.Sprintf("%d x %d", j.Vector.Parallel, j.Vector.Linearized)
	}
	return fmt.Sprintf("%d x %d x %d", j.Dims.M, j.Dims.K, j.Dims.N)
}
