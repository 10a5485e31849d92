// Package main implements coveragegate — a CI gate that fails when test
// coverage drops below the per-tier floors. Protocol and state code is held
// to a higher floor than the code that talks to real sockets.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/tools/cover"
)

type fileCoverage struct {
	covered int
	total   int
}

// coreFiles hold the protocol, codec, and session state. Everything in them
// is reachable from tests without a network.
var coreFiles = []string{
	"wamp/errors.go",
	"wamp/message.go",
	"wamp/options.go",
	"wamp/codec.go",
	"wamp/handler.go",
	"wamp/session.go",
	"wamp/client.go",
	"wamp/dispatch.go",
}

// transportFiles touch real connections; their error paths include
// conditions tests cannot fully provoke.
var transportFiles = []string{
	"wamp/transport.go",
	"wamp/connection.go",
}

func collectCoverage(profilePath string) (map[string]fileCoverage, error) {
	profiles, err := cover.ParseProfiles(profilePath)
	if err != nil {
		return nil, err
	}

	byFile := map[string]fileCoverage{}
	for _, profile := range profiles {
		entry := byFile[profile.FileName]
		for _, block := range profile.Blocks {
			entry.total += block.NumStmt
			if block.Count > 0 {
				entry.covered += block.NumStmt
			}
		}
		byFile[profile.FileName] = entry
	}
	return byFile, nil
}

func lookup(byFile map[string]fileCoverage, suffix string) (fileCoverage, bool) {
	for fileName, cov := range byFile {
		if strings.HasSuffix(fileName, suffix) {
			return cov, true
		}
	}
	return fileCoverage{}, false
}

func percent(c fileCoverage) float64 {
	if c.total == 0 {
		return 0
	}
	return float64(c.covered) * 100.0 / float64(c.total)
}

func gateTier(byFile map[string]fileCoverage, files []string, floor float64, tier string) []string {
	failures := make([]string, 0)
	for _, fileName := range files {
		cov, ok := lookup(byFile, fileName)
		if !ok {
			failures = append(failures, fmt.Sprintf("%s file %s is missing from the coverage profile", tier, fileName))
			continue
		}
		if p := percent(cov); p+1e-9 < floor {
			failures = append(failures, fmt.Sprintf("%s file %s is %.1f%% (required %.1f%%)", tier, fileName, p, floor))
		}
	}
	return failures
}

func main() {
	profilePath := flag.String("profile", "coverage.out", "path to go coverage profile")
	aggregateFloor := flag.Float64("aggregate", 85.0, "minimum aggregate coverage percentage")
	coreFloor := flag.Float64("core", 90.0, "minimum coverage percentage for protocol and state files")
	transportFloor := flag.Float64("transport", 75.0, "minimum coverage percentage for transport files")
	flag.Parse()

	byFile, err := collectCoverage(*profilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "coverage gate failed reading profile: %v\n", err)
		os.Exit(1)
	}

	aggregate := fileCoverage{}
	for _, cov := range byFile {
		aggregate.covered += cov.covered
		aggregate.total += cov.total
	}

	failures := make([]string, 0)
	if p := percent(aggregate); p+1e-9 < *aggregateFloor {
		failures = append(failures, fmt.Sprintf("aggregate coverage %.1f%% is below %.1f%%", p, *aggregateFloor))
	}
	failures = append(failures, gateTier(byFile, coreFiles, *coreFloor, "core")...)
	failures = append(failures, gateTier(byFile, transportFiles, *transportFloor, "transport")...)
	sort.Strings(failures)

	fmt.Printf("aggregate: %.1f%% (%d/%d)\n", percent(aggregate), aggregate.covered, aggregate.total)
	if len(failures) == 0 {
		fmt.Println("coverage gate: PASS")
		return
	}

	fmt.Println("coverage gate: FAIL")
	for _, failure := range failures {
		fmt.Printf("- %s\n", failure)
	}
	os.Exit(2)
}
