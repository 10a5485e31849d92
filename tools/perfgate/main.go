// Package main implements perfgate — a CI gate that runs the hot-path
// benchmarks and fails when ns/op or allocs/op regress past the recorded
// baseline. Run with -update after an intentional performance change to
// rewrite the baseline from the current machine.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type benchmarkResult struct {
	NSOp     float64 `json:"ns_op"`
	AllocsOp float64 `json:"allocs_op"`
}

type baselineFile struct {
	Benchmarks map[string]benchmarkResult `json:"benchmarks"`
}

// parseBenchOutput keeps the best (lowest ns/op) run per benchmark so a noisy
// scheduler does not fail the gate on its own.
func parseBenchOutput(output string) map[string]benchmarkResult {
	results := map[string]benchmarkResult{}
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 5 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}

		// BenchmarkName-20  N  ns/op  B/op  allocs/op
		name := fields[0]
		if dash := strings.LastIndex(name, "-"); dash > 0 {
			name = name[:dash]
		}

		result := benchmarkResult{}
		sawNSOp := false
		sawAllocsOp := false
		for i := 0; i < len(fields)-1; i++ {
			parsed, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			switch fields[i+1] {
			case "ns/op":
				result.NSOp = parsed
				sawNSOp = true
			case "allocs/op":
				result.AllocsOp = parsed
				sawAllocsOp = true
			}
		}
		if !sawNSOp || !sawAllocsOp || result.NSOp <= 0 {
			continue
		}

		if best, seen := results[name]; !seen || result.NSOp < best.NSOp {
			results[name] = result
		}
	}
	return results
}

func runBenchmarks(packagePath, benchPattern, benchtime string, count int) (string, error) {
	command := exec.Command("go", "test", packagePath,
		"-run", "^$",
		"-bench", benchPattern,
		"-benchmem",
		"-count="+strconv.Itoa(count),
		"-benchtime="+benchtime) // #nosec G204 -- arguments are passed without shell expansion
	outputBytes, err := command.CombinedOutput()
	output := string(outputBytes)
	if err != nil {
		return output, fmt.Errorf("benchmark command failed: %w", err)
	}
	return output, nil
}

func sortedNames(benchmarks map[string]benchmarkResult) []string {
	names := make([]string, 0, len(benchmarks))
	for name := range benchmarks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func updateBaseline(path, packagePath, benchtime string, count int) {
	output, err := runBenchmarks(packagePath, "^Benchmark", benchtime, count)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n%s", err, output)
		os.Exit(1)
	}

	results := parseBenchOutput(output)
	if len(results) == 0 {
		fmt.Fprintln(os.Stderr, "no benchmark results parsed, baseline not written")
		os.Exit(1)
	}

	data, err := json.MarshalIndent(baselineFile{Benchmarks: results}, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "baseline encode failed: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "baseline write failed: %v\n", err)
		os.Exit(1)
	}

	for _, name := range sortedNames(results) {
		result := results[name]
		fmt.Printf("%s: %.2f ns/op, %g allocs/op\n", name, result.NSOp, result.AllocsOp)
	}
	fmt.Printf("baseline written to %s\n", path)
}

func main() {
	baselinePath := flag.String("baseline", "tools/perf_baseline.json", "path to benchmark baseline JSON")
	packagePath := flag.String("package", "./wamp", "package path for benchmarks")
	benchtime := flag.String("benchtime", "1s", "go test benchmark duration")
	count := flag.Int("count", 3, "benchmark repetitions, best run wins")
	maxRegression := flag.Float64("max-regression", 15.0, "max allowed ns/op regression percentage")
	update := flag.Bool("update", false, "rewrite the baseline from current results instead of gating")
	flag.Parse()

	if *update {
		updateBaseline(*baselinePath, *packagePath, *benchtime, *count)
		return
	}

	data, err := os.ReadFile(*baselinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "perf baseline read failed: %v (run with -update to create one)\n", err)
		os.Exit(1)
	}
	baseline := baselineFile{}
	if err = json.Unmarshal(data, &baseline); err != nil {
		fmt.Fprintf(os.Stderr, "perf baseline parse failed: %v\n", err)
		os.Exit(1)
	}
	if len(baseline.Benchmarks) == 0 {
		fmt.Fprintln(os.Stderr, "perf baseline is empty")
		os.Exit(1)
	}

	quoted := make([]string, 0, len(baseline.Benchmarks))
	for _, name := range sortedNames(baseline.Benchmarks) {
		quoted = append(quoted, regexp.QuoteMeta(name))
	}
	benchPattern := "^(" + strings.Join(quoted, "|") + ")$"

	output, err := runBenchmarks(*packagePath, benchPattern, *benchtime, *count)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n%s", err, output)
		os.Exit(1)
	}
	fmt.Print(output)

	results := parseBenchOutput(output)
	failures := []string{}
	for _, name := range sortedNames(baseline.Benchmarks) {
		expected := baseline.Benchmarks[name]
		actual, ok := results[name]
		if !ok {
			failures = append(failures, fmt.Sprintf("missing benchmark result: %s", name))
			continue
		}

		maxNS := expected.NSOp * (1.0 + (*maxRegression / 100.0))
		if actual.NSOp > maxNS {
			failures = append(failures, fmt.Sprintf("%s ns/op regression: baseline %.2f, actual %.2f, max %.2f", name, expected.NSOp, actual.NSOp, maxNS))
		}

		// Allocation counts are stable across runs, so any increase is a
		// real regression regardless of the ns/op margin.
		if actual.AllocsOp > expected.AllocsOp {
			failures = append(failures, fmt.Sprintf("%s allocs/op regression: baseline %g, actual %g", name, expected.AllocsOp, actual.AllocsOp))
		}
	}

	if len(failures) == 0 {
		fmt.Println("perf gate: PASS")
		return
	}

	fmt.Println("perf gate: FAIL")
	for _, failure := range failures {
		fmt.Printf("- %s\n", failure)
	}
	os.Exit(2)
}
