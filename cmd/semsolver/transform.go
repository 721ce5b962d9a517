package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/semsolver/authoring"
	"github.com/c360studio/semsolver/backend"
	"github.com/c360studio/semsolver/descriptor"
	"github.com/c360studio/semsolver/llm"
	"github.com/c360studio/semsolver/model"
	"github.com/c360studio/semsolver/source"
	"github.com/c360studio/semsolver/storage"
	"github.com/c360studio/semsolver/transform"
)

type transformOptions struct {
	name           string
	description    string
	descriptionURL string
	save           bool
	diff           bool
	watch          bool
	quiet          bool
	flushUnclosed  bool
	atomicMarkers  bool
	buffered       bool
}

func transformCmd(a *app) *cobra.Command {
	var opts transformOptions

	cmd := &cobra.Command{
		Use:   "transform <file>",
		Short: "Restructure a solver source through the transform backend",
		Long: `Send a solver source and its problem description to the transform backend.

The answer streams back live, coloured by section (analysis, transformed
code, verification steps). The transformed code is then split into the
three descriptor regions. With --watch the source is re-transformed each
time it changes on disk.`,
		Example: `  semsolver transform maxcut.py --description "Max-cut on G(n,p)"
  semsolver transform maxcut.py --description-url https://example.org/maxcut --diff --save`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			b, err := a.newBackend(opts.buffered)
			if err != nil {
				return err
			}
			return a.runTransform(ctx, cmd.OutOrStdout(), b, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "Descriptor name (default: file name without extension)")
	cmd.Flags().StringVar(&opts.description, "description", "", "Problem description")
	cmd.Flags().StringVar(&opts.descriptionURL, "description-url", "", "Read the problem description from a file or https URL")
	cmd.Flags().BoolVar(&opts.save, "save", false, "Store the descriptor built from the transformed code")
	cmd.Flags().BoolVar(&opts.diff, "diff", false, "Print a unified diff of the original against the transformed code")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Re-transform whenever the source changes")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Print the parsed sections at the end instead of streaming")
	cmd.Flags().BoolVar(&opts.flushUnclosed, "flush-unclosed", false, "Keep code from a fence that never closed")
	cmd.Flags().BoolVar(&opts.atomicMarkers, "atomic-markers", false, "Assume markers arrive whole and skip buffering")
	cmd.Flags().BoolVar(&opts.buffered, "buffered", false, "Request one complete answer instead of a stream (llm backend)")
	return cmd
}

// newBackend builds the configured transform backend.
func (a *app) newBackend(buffered bool) (backend.Backend, error) {
	kind, err := backend.ParseKind(a.cfg.Backend.Kind)
	if err != nil {
		return nil, err
	}

	if kind == backend.KindHTTP {
		opts := []backend.HTTPOption{
			backend.WithHTTPLogger(a.logger),
			backend.WithHTTPClient(&http.Client{Timeout: a.cfg.Backend.Timeout}),
		}
		for k, v := range a.cfg.Backend.Headers {
			opts = append(opts, backend.WithHeader(k, v))
		}
		return backend.NewHTTP(a.cfg.Backend.URL, opts...), nil
	}

	registry, err := a.cfg.ModelRegistry()
	if err != nil {
		return nil, err
	}
	opts := []backend.LLMOption{
		backend.WithCapability(model.ParseCapability(a.cfg.Model.Capability)),
		backend.WithTemperature(a.cfg.Model.Temperature),
		backend.WithLLMLogger(a.logger),
	}
	if a.cfg.Model.MaxTokens > 0 {
		opts = append(opts, backend.WithMaxTokens(a.cfg.Model.MaxTokens))
	}
	if buffered || a.cfg.Model.Buffered {
		opts = append(opts, backend.WithBuffered())
	}
	return backend.NewLLM(llm.NewClient(registry, llm.WithLogger(a.logger)), opts...), nil
}

func (a *app) consumeOptions(out io.Writer, opts transformOptions) []transform.ConsumeOption {
	consume := append(a.cfg.ConsumeOptions(), transform.WithLogger(a.logger))
	if opts.flushUnclosed {
		consume = append(consume, transform.WithFencePolicy(transform.FlushUnclosedFence))
	}
	if opts.atomicMarkers {
		consume = append(consume, transform.WithAtomicMarkers())
	}
	if !opts.quiet {
		consume = append(consume, transform.WithObserver(liveObserver(out)))
	}
	return consume
}

func (a *app) runTransform(ctx context.Context, out io.Writer, b backend.Backend, path string, opts transformOptions) error {
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
	consume := a.consumeOptions(out, opts)

	run := func(hash string) error {
		tctx, cancel := ctx, context.CancelFunc(func() {})
		if a.cfg.Backend.Timeout > 0 {
			tctx, cancel = context.WithTimeout(ctx, a.cfg.Backend.Timeout)
		}
		defer cancel()

		original := session.Buffer()
		result, err := session.Transform(tctx, b, consume...)
		if err != nil {
			return fmt.Errorf("transform: %w", err)
		}
		if result.Abandoned {
			warningColor.Fprintln(out, "transform cancelled")
			return nil
		}
		if opts.quiet {
			printResult(out, result)
		}

		if opts.diff {
			name := filepath.Base(doc.Path)
			diff, err := unifiedDiff(name, name+" (transformed)", original, result.Code)
			if err != nil {
				return fmt.Errorf("diff: %w", err)
			}
			printDiff(out, diff)
		}

		d, err := session.BuildTransformed(ctx)
		if err != nil {
			if descriptor.IsIncomplete(err) {
				printMissing(out, err)
			}
			return err
		}
		if !opts.save {
			return nil
		}

		id, err := a.saveDescriptor(ctx, d, storage.Provenance{
			Path:      doc.Location,
			Hash:      hash,
			Origin:    storage.OriginTransformed,
			RequestID: storage.NewID(),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "saved %s\n", id)
		return nil
	}

	err = run(doc.Hash)
	if !opts.watch {
		return err
	}
	if err != nil && !descriptor.IsIncomplete(err) {
		a.logger.Warn("Transform failed, waiting for changes", "path", doc.Path, "error", err)
	}

	return a.watchSource(ctx, out, doc.Path, session, run)
}

// watchSource re-runs the transform each time path changes until ctx ends.
func (a *app) watchSource(ctx context.Context, out io.Writer, path string, session *authoring.Session, run func(hash string) error) error {
	watcher, err := source.NewWatcher(filepath.Dir(path),
		source.WithFiles(path),
		source.WithDebounce(a.cfg.Source.Debounce),
		source.WithWatcherLogger(a.logger),
	)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	headerColor.Fprintf(out, "watching %s (ctrl-c to stop)\n", path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			if ev.Op == source.OpDelete {
				warningColor.Fprintf(out, "%s was removed\n", ev.Path)
				continue
			}

			if dropped := session.Rebase(ev.Content); len(dropped) > 0 {
				warningColor.Fprintf(out, "selections dropped: %v\n", dropped)
			}
			headerColor.Fprintf(out, "\n%s changed, transforming\n", ev.Path)
			if err := run(ev.Hash); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("Transform failed", "path", ev.AbsPath, "error", err)
			}
		}
	}
}
