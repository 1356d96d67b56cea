package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dendotai/transpoze-app/internal/bootstrap"
	"github.com/dendotai/transpoze-app/internal/config"
	"github.com/dendotai/transpoze-app/internal/domain"
	"github.com/dendotai/transpoze-app/internal/jobs"
	"github.com/dendotai/transpoze-app/internal/logging"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var presetName string
	var outputDir string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "convert <file>...",
		Short: "Convert video files without opening the app",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if _, ok := domain.PresetByName(presetName); !ok {
				return fmt.Errorf("unknown preset %q (see `transpoze presets`)", presetName)
			}

			level := "warn"
			if verbose {
				level = "debug"
			}
			logger, err := logging.New(logging.FileOptions(level, cfg.Logging.Format, cfg.Logging.Dir))
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}

			out := cmd.OutOrStdout()
			printer := newProgressPrinter(out, isTerminal(out))
			engine, err := bootstrap.NewEngine(cfg, logger, bootstrap.EngineOptions{
				Sinks: []jobs.Sink{printer},
			})
			if err != nil {
				return err
			}
			defer engine.Close()

			settings, err := engine.Settings.Load()
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			if strings.TrimSpace(outputDir) != "" {
				expanded, err := config.ExpandPath(outputDir)
				if err != nil {
					return fmt.Errorf("resolve output directory: %w", err)
				}
				settings.OutputDirectory = expanded
				settings.UseSubdirectory = false
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			submitted := make([]string, 0, len(args))
			for _, arg := range args {
				input, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", arg, err)
				}
				if _, err := os.Stat(input); err != nil {
					return fmt.Errorf("input %s: %w", arg, err)
				}
				job, err := engine.SubmitFile(input, "", presetName, settings)
				if err != nil {
					return fmt.Errorf("queue %s: %w", arg, err)
				}
				printer.track(job)
				submitted = append(submitted, job.ID)
			}

			waitErr := engine.Scheduler.WaitIdle(runCtx)
			if waitErr != nil {
				for _, id := range submitted {
					_ = engine.Scheduler.Cancel(id)
				}
			}
			// Close waits for completion events and history writes to land.
			engine.Scheduler.Close()
			printer.finish()

			results := make([]domain.Job, 0, len(submitted))
			for _, id := range submitted {
				if job, ok := engine.Scheduler.Job(id); ok {
					results = append(results, job)
				}
			}
			fmt.Fprintln(out, renderJobResults(results))

			if waitErr != nil {
				return waitErr
			}
			if failed := countFailed(results); failed > 0 {
				return fmt.Errorf("%d of %d conversions failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&presetName, "preset", "p", domain.DefaultPresetName, "Preset name")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Write converted files here instead of the saved preference")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log encoder output")
	return cmd
}

// progressPrinter renders scheduler events as terminal lines.
type progressPrinter struct {
	mu    sync.Mutex
	out   io.Writer
	live  bool
	names map[string]string
	last  map[string]int
	dirty bool
}

func newProgressPrinter(out io.Writer, live bool) *progressPrinter {
	return &progressPrinter{
		out:   out,
		live:  live,
		names: make(map[string]string),
		last:  make(map[string]int),
	}
}

func (p *progressPrinter) track(job domain.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names[job.ID] = filepath.Base(job.InputPath)
}

// Emit implements jobs.Sink.
func (p *progressPrinter) Emit(event jobs.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name, ok := p.names[event.JobID]
	if !ok && event.Job != nil {
		name = filepath.Base(event.Job.InputPath)
	}

	switch event.Type {
	case jobs.EventConversionProgress:
		if !p.live {
			return
		}
		percent := int(event.Progress)
		if percent == p.last[event.JobID] {
			return
		}
		p.last[event.JobID] = percent
		fmt.Fprintf(p.out, "\r%-40s %3d%%", truncate(name, 40), percent)
		p.dirty = true
	case jobs.EventConversionComplete:
		p.endLine()
		fmt.Fprintf(p.out, "done    %s\n", name)
	case jobs.EventConversionFailed:
		p.endLine()
		fmt.Fprintf(p.out, "failed  %s: %s\n", name, event.Error)
	}
}

func (p *progressPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLine()
}

func (p *progressPrinter) endLine() {
	if p.dirty {
		fmt.Fprintln(p.out)
		p.dirty = false
	}
}

func renderJobResults(results []domain.Job) string {
	title := cases.Title(language.English)
	rows := make([][]string, 0, len(results))
	for _, job := range results {
		detail := job.OutputPath
		if job.Status == domain.JobStatusFailed {
			detail = job.Error
		}
		size := "-"
		if info, err := os.Stat(job.OutputPath); err == nil && job.Status == domain.JobStatusCompleted {
			size = humanize.Bytes(uint64(info.Size()))
		}
		rows = append(rows, []string{
			filepath.Base(job.InputPath),
			job.Preset.Name,
			title.String(string(job.Status)),
			size,
			detail,
		})
	}
	return renderTable(
		[]string{"File", "Preset", "Status", "Size", "Output"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func countFailed(results []domain.Job) int {
	failed := 0
	for _, job := range results {
		if job.Status != domain.JobStatusCompleted {
			failed++
		}
	}
	return failed
}

func truncate(value string, width int) string {
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	return string(runes[:width-1]) + "…"
}
