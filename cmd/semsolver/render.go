package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/semsolver/descriptor"
	"github.com/c360studio/semsolver/transform"
)

var sectionColors = map[transform.Section]*color.Color{
	transform.SectionNone:         color.New(color.FgHiBlack),
	transform.SectionAnalysis:     color.New(color.FgCyan),
	transform.SectionCode:         color.New(color.FgGreen),
	transform.SectionVerification: color.New(color.FgYellow),
}

var (
	headerColor  = color.New(color.Bold)
	addColor     = color.New(color.FgGreen)
	removeColor  = color.New(color.FgRed)
	hunkColor    = color.New(color.FgCyan)
	warningColor = color.New(color.FgHiYellow)
)

// liveObserver echoes each delta as it arrives, coloured by the section it
// landed in.
func liveObserver(w io.Writer) transform.Observer {
	return func(u transform.Update) {
		if u.Done {
			fmt.Fprintln(w)
			return
		}
		sectionColors[u.Section].Fprint(w, u.Delta)
	}
}

// printResult prints the three parsed sections.
func printResult(w io.Writer, r transform.Result) {
	sections := []struct {
		title   string
		section transform.Section
		text    string
	}{
		{"Analysis", transform.SectionAnalysis, r.Analysis},
		{"Transformed Code", transform.SectionCode, r.Code},
		{"Verification Steps", transform.SectionVerification, r.Verification},
	}
	for _, s := range sections {
		headerColor.Fprintf(w, "== %s ==\n", s.title)
		if strings.TrimSpace(s.text) == "" {
			warningColor.Fprintln(w, "(empty)")
			continue
		}
		sectionColors[s.section].Fprintln(w, strings.TrimRight(s.text, "\n"))
	}
}

// unifiedDiff renders a unified diff between two versions of a source.
func unifiedDiff(fromName, toName, from, to string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(from),
		B:        difflib.SplitLines(to),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	})
}

// printDiff colours a unified diff line by line.
func printDiff(w io.Writer, diff string) {
	sc := bufio.NewScanner(strings.NewReader(diff))
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			headerColor.Fprintln(w, line)
		case strings.HasPrefix(line, "@@"):
			hunkColor.Fprintln(w, line)
		case strings.HasPrefix(line, "+"):
			addColor.Fprintln(w, line)
		case strings.HasPrefix(line, "-"):
			removeColor.Fprintln(w, line)
		default:
			fmt.Fprintln(w, line)
		}
	}
}

// writeFormatted writes v as YAML or indented JSON.
func writeFormatted(w io.Writer, v any, format string) error {
	switch format {
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	default:
		return fmt.Errorf("unknown format %q (want yaml or json)", format)
	}
}

// printMissing explains an incomplete descriptor.
func printMissing(w io.Writer, err error) {
	missing := descriptor.MissingFields(err)
	warningColor.Fprintf(w, "descriptor incomplete, missing: %s\n", strings.Join(missing, ", "))
}
