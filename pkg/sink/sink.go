// Package sink implements the Result Sink (spec §4.I): it takes the report
// of accumulated verdicts, imposes the total sort order spec §5 promises,
// renders human or JSON output, and computes the process exit code.
package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"

	"github.com/trailofbits/cargo-unmaintained/pkg/types"
)

// Sorted returns report's verdicts ordered by (repository age days desc,
// package name asc), per spec §4.I/§5. Verdicts with no age (Skipped, or
// Maintained with no repository) sort after every aged verdict.
func Sorted(report *types.Report) []types.Verdict {
	out := make([]types.Verdict, len(report.Verdicts))
	copy(out, report.Verdicts)

	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i].AgeDays, out[j].AgeDays
		switch {
		case ai == nil && aj == nil:
			return out[i].Package.Name < out[j].Package.Name
		case ai == nil:
			return false
		case aj == nil:
			return true
		case *ai != *aj:
			return *ai > *aj
		default:
			return out[i].Package.Name < out[j].Package.Name
		}
	})

	return out
}

// jsonOutdatedEdge and jsonVerdict mirror the exact JSON schema of spec §6.
type jsonOutdatedEdge struct {
	Dep           string `json:"dep"`
	Req           string `json:"req"`
	Used          string `json:"used"`
	Latest        string `json:"latest"`
	LatestAgeDays int64  `json:"latest_age_days"`
}

type jsonVerdict struct {
	Name       string             `json:"name"`
	Version    string             `json:"version"`
	Repository *string            `json:"repository"`
	AgeDays    *int64             `json:"age_days"`
	Reason     string             `json:"reason"`
	Outdated   []jsonOutdatedEdge `json:"outdated"`
}

// RenderJSON writes one JSON object per Unmaintained verdict, per spec §4.I.
func RenderJSON(w io.Writer, report *types.Report) error {
	verdicts := Sorted(report)

	out := make([]jsonVerdict, 0, len(verdicts))
	for _, v := range verdicts {
		if !v.Unmaintained {
			continue
		}

		jv := jsonVerdict{
			Name:     v.Package.Name,
			Version:  v.Package.Version,
			AgeDays:  v.AgeDays,
			Reason:   string(v.Reason),
			Outdated: make([]jsonOutdatedEdge, 0, len(v.Outdated)),
		}
		if v.Repository != "" {
			repo := v.Repository
			jv.Repository = &repo
		}
		for _, e := range v.Outdated {
			jv.Outdated = append(jv.Outdated, jsonOutdatedEdge{
				Dep:           e.Dep,
				Req:           e.Required,
				Used:          e.Used,
				Latest:        e.Latest,
				LatestAgeDays: e.LatestAgeDays,
			})
		}
		out = append(out, jv)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// RenderHuman writes the free-form human-readable report of spec §4.I: every
// offending package, with its outdated edges indented beneath it, colored by
// severity when useColor is true.
func RenderHuman(w io.Writer, report *types.Report, useColor bool) error {
	verdicts := Sorted(report)

	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)
	color.NoColor = !useColor

	var unmaintainedCount int
	for _, v := range verdicts {
		if !v.Unmaintained {
			continue
		}
		unmaintainedCount++

		age := "unknown age"
		if v.AgeDays != nil {
			age = fmt.Sprintf("%d days since last commit", *v.AgeDays)
		}

		severity := red
		if v.Reason == types.ReasonOutdatedAndStale {
			severity = yellow
		}
		severity.Fprintf(w, "✗ %s %s", v.Package.Name, v.Package.Version)
		fmt.Fprintf(w, " — %s (%s)\n", reasonText(v.Reason), age)
		if v.Repository != "" {
			fmt.Fprintf(w, "  repository: %s\n", v.Repository)
		}
		for _, e := range v.Outdated {
			fmt.Fprintf(w, "    %s requires %s, using %s, latest %s (%d days old)\n",
				e.Dep, e.Required, e.Used, e.Latest, e.LatestAgeDays)
		}
	}

	if unmaintainedCount == 0 {
		green.Fprintln(w, "no unmaintained dependencies found")
		return nil
	}

	fmt.Fprintf(w, "\n%d unmaintained package(s) found\n", unmaintainedCount)
	return nil
}

func reasonText(r types.Reason) string {
	switch r {
	case types.ReasonRepositoryArchived:
		return "repository archived"
	case types.ReasonRepositoryMissing:
		return "repository missing"
	case types.ReasonNotInNamedRepository:
		return "package not found in its declared repository"
	case types.ReasonOutdatedAndStale:
		return "dependencies outdated and repository stale"
	default:
		return string(r)
	}
}

// ExitCode implements the exit code law of spec §8: 2 iff a fatal error
// occurred, else 1 iff any Unmaintained verdict is present, else 0 — unless
// noExitCode is set, which forces 0 for the non-fatal cases.
func ExitCode(report *types.Report, fatal bool, noExitCode bool) int {
	if fatal {
		return 2
	}
	if noExitCode {
		return 0
	}
	for _, v := range report.Verdicts {
		if v.Unmaintained {
			return 1
		}
	}
	return 0
}
