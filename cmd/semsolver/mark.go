package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360studio/semsolver/authoring"
	"github.com/c360studio/semsolver/descriptor"
	"github.com/c360studio/semsolver/pyregion"
	"github.com/c360studio/semsolver/selection"
	"github.com/c360studio/semsolver/source"
	"github.com/c360studio/semsolver/storage"
)

type markOptions struct {
	name           string
	description    string
	descriptionURL string
	ranges         map[selection.Role]*string
	offsets        bool
	suggest        bool
	save           bool
	format         string
}

func markCmd(a *app) *cobra.Command {
	opts := markOptions{
		ranges: map[selection.Role]*string{
			selection.RoleInputParameters: new(string),
			selection.RoleCostFunction:    new(string),
			selection.RoleAlgorithmLogic:  new(string),
		},
	}

	cmd := &cobra.Command{
		Use:   "mark <file>",
		Short: "Build a descriptor from hand-marked regions of a solver source",
		Long: `Mark the three descriptor regions of a solver source and print the descriptor.

Regions are line ranges "from:to" (1-based, inclusive) or, with --offsets,
byte ranges "start:end". --suggest fills any role left unmarked from a
syntax-tree split of the source.`,
		Example: `  semsolver mark maxcut.py --input-parameters 3:4 --cost-function 6:8 --algorithm-logic 10:20
  semsolver mark maxcut.py --suggest --save`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMark(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "Descriptor name (default: file name without extension)")
	cmd.Flags().StringVar(&opts.description, "description", "", "Problem description")
	cmd.Flags().StringVar(&opts.descriptionURL, "description-url", "", "Read the problem description from a file or https URL")
	for _, role := range selection.Roles {
		cmd.Flags().StringVar(opts.ranges[role], string(role), "", fmt.Sprintf("Range holding the %s", strings.ReplaceAll(string(role), "-", " ")))
	}
	cmd.Flags().BoolVar(&opts.offsets, "offsets", false, "Interpret ranges as byte offsets instead of lines")
	cmd.Flags().BoolVar(&opts.suggest, "suggest", false, "Fill unmarked roles from the source's syntax tree")
	cmd.Flags().BoolVar(&opts.save, "save", false, "Store the descriptor")
	cmd.Flags().StringVarP(&opts.format, "format", "o", "yaml", "Output format (yaml, json)")
	return cmd
}

func (a *app) runMark(cmd *cobra.Command, path string, opts markOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	fetcher := a.fetcher()

	doc, err := fetcher.Fetch(ctx, path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	description, err := resolveDescription(ctx, fetcher, opts.description, opts.descriptionURL)
	if err != nil {
		return err
	}

	session := authoring.NewSession(doc.Path, doc.Content,
		authoring.WithName(nameOr(opts.name, path)),
		authoring.WithDescription(description),
		authoring.WithLogger(a.logger),
	)

	for _, role := range selection.Roles {
		spec := *opts.ranges[role]
		if spec == "" {
			continue
		}
		if err := markRange(session, role, spec, opts.offsets); err != nil {
			return err
		}
	}

	if opts.suggest {
		if err := suggestRegions(ctx, session); err != nil {
			return err
		}
	}

	d, err := session.BuildManual()
	if err != nil {
		if descriptor.IsIncomplete(err) {
			printMissing(cmd.ErrOrStderr(), err)
		}
		return err
	}

	if err := writeFormatted(out, d, opts.format); err != nil {
		return err
	}
	if !opts.save {
		return nil
	}

	id, err := a.saveDescriptor(ctx, d, storage.Provenance{
		Path:   doc.Location,
		Hash:   doc.Hash,
		Origin: storage.OriginManual,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "saved %s\n", id)
	return nil
}

// markRange marks spec, a line range or, with offsets, a byte range.
func markRange(session *authoring.Session, role selection.Role, spec string, offsets bool) error {
	if offsets {
		r, err := parseOffsets(spec)
		if err != nil {
			return fmt.Errorf("--%s: %w", role, err)
		}
		_, err = session.Mark(role, r)
		if err != nil {
			return fmt.Errorf("mark %s: %w", role, err)
		}
		return nil
	}

	from, to, err := selection.ParseLineSpec(spec)
	if err != nil {
		return fmt.Errorf("--%s: %w", role, err)
	}
	_, err = session.MarkLines(role, from, to)
	return err
}

// parseOffsets parses "start:end" into a byte range.
func parseOffsets(spec string) (selection.Range, error) {
	before, after, found := strings.Cut(spec, ":")
	if !found {
		return selection.Range{}, fmt.Errorf("%w: byte range %q needs start:end", selection.ErrInvalidRange, spec)
	}
	start, err := strconv.Atoi(strings.TrimSpace(before))
	if err != nil {
		return selection.Range{}, fmt.Errorf("%w: bad start in %q", selection.ErrInvalidRange, spec)
	}
	end, err := strconv.Atoi(strings.TrimSpace(after))
	if err != nil {
		return selection.Range{}, fmt.Errorf("%w: bad end in %q", selection.ErrInvalidRange, spec)
	}
	return selection.Range{Start: start, End: end}, nil
}

// suggestRegions fills every unmarked role from the syntax-tree split.
func suggestRegions(ctx context.Context, session *authoring.Session) error {
	regions, err := pyregion.Split(ctx, session.Buffer())
	if err != nil {
		if errors.Is(err, pyregion.ErrNoCode) {
			return nil
		}
		return fmt.Errorf("suggest regions: %w", err)
	}
	for _, role := range session.Missing() {
		region := regions.Get(role)
		if region == nil {
			continue
		}
		sel, err := selection.New(region.Start, region.End, region.Text)
		if err != nil {
			continue
		}
		if err := session.MarkSelection(role, sel); err != nil {
			return err
		}
	}
	return nil
}

// resolveDescription returns the inline description, else the text behind url.
func resolveDescription(ctx context.Context, fetcher *source.Fetcher, inline, url string) (string, error) {
	if inline != "" || url == "" {
		return inline, nil
	}
	doc, err := fetcher.Fetch(ctx, url)
	if err != nil {
		return "", fmt.Errorf("read description: %w", err)
	}
	return doc.Content, nil
}

func nameOr(name, path string) string {
	if name != "" {
		return name
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (a *app) saveDescriptor(ctx context.Context, d descriptor.SolverDescriptor, src storage.Provenance) (string, error) {
	store, release, err := a.openStore(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	id, err := store.Save(ctx, &storage.Record{Descriptor: d, Source: src})
	if err != nil {
		return "", fmt.Errorf("save descriptor: %w", err)
	}
	return id, nil
}
