package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	veld "github.com/mohaanymo/veld"
	"github.com/mohaanymo/veld/internal/batch"
	"github.com/mohaanymo/veld/internal/config"
	"github.com/mohaanymo/veld/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// batchJob is one entry of a batch job file: a JSON array of
// {"id", "url", "filename", "quality"} objects. quality overrides the
// shared --quality flag for that job only.
type batchJob struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	FileName string `json:"filename"`
	Quality  string `json:"quality"`
}

var batchConcurrency int

var batchCmd = &cobra.Command{
	Use:   "batch JOBFILE",
	Short: "Queue and download a batch of streams listed in a JSON job file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg config.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("binding flags: %w", err)
		}
		headers, err := parseHeaders(viper.GetStringSlice("header"))
		if err != nil {
			return err
		}
		cfg.Headers = headers
		cfg.Keys = keys

		logging.Configure(logging.Config{
			Level:   levelFor(cfg.Verbose),
			Pretty:  true,
			Version: version,
		})

		jobs, err := loadBatchJobs(args[0])
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return fmt.Errorf("batch: %s lists no jobs", args[0])
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return runBatch(ctx, &cfg, jobs)
	},
}

func init() {
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "c", 3, "maximum concurrent downloads (1-20)")
	rootCmd.AddCommand(batchCmd)
}

func loadBatchJobs(path string) ([]batchJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("batch: reading job file: %w", err)
	}
	var jobs []batchJob
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("batch: parsing job file: %w", err)
	}
	for i, j := range jobs {
		if j.ID == "" {
			jobs[i].ID = fmt.Sprintf("job-%d", i+1)
		}
		if j.URL == "" {
			return nil, fmt.Errorf("batch: job %q has no url", jobs[i].ID)
		}
	}
	return jobs, nil
}

func runBatch(ctx context.Context, cfg *config.Config, jobs []batchJob) error {
	defaultOpts := []veld.Option{
		veld.WithDir(cfg.Directory),
		veld.WithFormat(cfg.Format),
		veld.WithThreads(cfg.Threads),
		veld.WithHeaders(cfg.Headers),
		veld.WithCookies(cfg.Cookies),
		veld.WithQuality(cfg.Quality),
		veld.WithDecryptionKeys(cfg.Keys),
		veld.WithVerbose(cfg.Verbose),
		veld.WithMaxBandwidth(cfg.MaxBandwidth),
		veld.WithRawPrompts(cfg.RawPrompts),
	}

	m := batch.NewManager(
		batch.WithTitle("veld batch"),
		batch.WithMaxConcurrent(batchConcurrency),
		batch.WithDefaultOptions(defaultOpts...),
	)
	m.Start()

	for _, j := range jobs {
		opts := []veld.Option(nil)
		if j.Quality != "" {
			opts = append(opts, veld.WithQuality(j.Quality))
		}
		if _, err := m.Submit(j.ID, j.URL, j.FileName, opts...); err != nil {
			m.Stop()
			return fmt.Errorf("batch: queuing job %q: %w", j.ID, err)
		}
	}

	if cfg.NoProgress {
		m.WaitAll()
		m.Stop()
		return summarizeBatch(m)
	}

	ui := batch.NewUI(m)
	done := make(chan error, 1)
	go func() {
		m.WaitAll()
		m.Stop()
		done <- summarizeBatch(m)
	}()

	uiErr := ui.Run()
	summaryErr := <-done
	if uiErr != nil {
		return fmt.Errorf("batch UI: %w", uiErr)
	}
	return summaryErr
}

func summarizeBatch(m *batch.Manager) error {
	stats := m.Stats()
	fmt.Printf("\nbatch complete: %d done, %d failed, %d canceled\n", stats.Completed, stats.Failed, stats.Canceled)
	if stats.Failed > 0 {
		for _, j := range m.Jobs() {
			snap := j.Snapshot()
			if snap.State == batch.StateFailed {
				fmt.Printf("  %s: %v\n", snap.ID, snap.Err)
			}
		}
		return fmt.Errorf("batch: %d job(s) failed", stats.Failed)
	}
	return nil
}
