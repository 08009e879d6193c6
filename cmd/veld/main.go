// Command veld downloads an HLS or DASH adaptive stream to a single local
// file, selecting and decrypting tracks as configured.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	veld "github.com/mohaanymo/veld"
	"github.com/mohaanymo/veld/internal/config"
	"github.com/mohaanymo/veld/internal/logging"
	"github.com/mohaanymo/veld/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "1.0.0"
	commit  = "dev"

	cfgFile string
	keys    []string
)

var rootCmd = &cobra.Command{
	Use:     "veld [flags] URL",
	Short:   "Video Element Downloader: HLS/DASH adaptive stream downloader",
	Version: fmt.Sprintf("%s (%s)", version, commit),
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg config.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("binding flags: %w", err)
		}
		cfg.BaseURL = args[0]
		cfg.Keys = keys

		logging.Configure(logging.Config{
			Level:   levelFor(cfg.Verbose),
			Pretty:  true,
			Version: version,
		})

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return run(ctx, &cfg)
	},
}

func levelFor(verbose bool) string {
	if verbose {
		return "debug"
	}
	return "info"
}

func init() {
	// Persistent (not local) flags so the batch subcommand inherits the
	// same shared defaults (threads, format, headers, quality, ...)
	// instead of redeclaring them.
	flags := rootCmd.PersistentFlags()

	flags.StringP("output", "o", "", "output file name")
	flags.StringP("directory", "d", "", "output directory")
	flags.StringP("format", "f", config.DefaultFormat, "output format: mp4, mkv, ts")
	flags.Bool("parse", false, "parse the manifest, print it as JSON, and exit")
	flags.IntP("threads", "n", config.DefaultThreads, "concurrent segment downloads per stream (1-16)")
	flags.Int("retry-count", config.DefaultRetryCount, "retries per segment before failing the stream")
	flags.Duration("timeout", config.DefaultTimeout, "per-request timeout")
	flags.Int64("max-bandwidth", 0, "maximum download speed in bytes/sec (0 = unlimited)")
	flags.StringArrayP("header", "H", nil, "custom HTTP header \"Name: Value\" (repeatable)")
	flags.String("cookie", "", "Cookie header sent with every request")
	flags.String("set-cookie", "", "Set-Cookie response header to additionally trust")
	flags.Bool("no-certificate-checks", false, "disable TLS certificate verification")
	flags.String("proxy", "", "HTTP/HTTPS proxy URL")
	flags.String("query", "", "extra query string appended to every segment URL")
	flags.String("user-agent", "", "User-Agent header sent with every request")
	flags.StringArrayVar(&keys, "key", nil, "KID:KEY pair or raw key file (repeatable)")
	flags.Bool("no-decrypt", false, "leave encrypted segments undecrypted")
	flags.Bool("no-merge", false, "leave each stream as its own file instead of muxing")
	flags.StringP("quality", "q", config.DefaultQuality, "video quality: highest, lowest, 1080p, 1920x1080, ...")
	flags.String("prefer-audio-lang", "", "preferred audio language code")
	flags.String("prefer-subs-lang", "", "preferred subtitle language code")
	flags.Bool("raw-prompts", false, "prompt for track/manifest selection with a numbered list")
	flags.Bool("skip-prompts", false, "never prompt, always apply the computed defaults")
	flags.String("muxer-backend", config.DefaultMuxerBackend, "muxer backend: ffmpeg, binary, auto")
	flags.Bool("no-progress", false, "disable the TUI progress display")
	flags.BoolP("verbose", "v", false, "verbose logging")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default none)")

	must(viper.BindPFlags(flags))
	cobra.OnInitialize(initConfig)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetEnvPrefix("VELD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "veld: reading config file %s: %v\n", cfgFile, err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	headers, err := parseHeaders(viper.GetStringSlice("header"))
	if err != nil {
		return err
	}
	cfg.Headers = headers

	d, err := veld.New(optionsFromConfig(cfg)...)
	if err != nil {
		return fmt.Errorf("configuring downloader: %w", err)
	}
	defer d.Close()

	if cfg.Verbose {
		fmt.Printf("Parsing manifest: %s\n", cfg.BaseURL)
	}
	if err := d.Parse(ctx); err != nil {
		return fmt.Errorf("parsing manifest: %w", err)
	}

	if cfg.Parse {
		return printManifest(d)
	}

	tracks := d.Tracks()
	fmt.Printf("Found %d tracks\n", len(tracks))

	if err := d.SelectTracks(); err != nil {
		return fmt.Errorf("selecting tracks: %w", err)
	}

	selected := d.SelectedTracks()
	fmt.Printf("Selected %d tracks\n", len(selected))
	for _, t := range selected {
		fmt.Printf("  - %s: %s %s\n", t.Type(), t.QualityLabel(), t.Codec())
	}

	if cfg.NoProgress {
		if err := d.Download(ctx); err != nil {
			return err
		}
		printOutputPath(cfg)
		return nil
	}
	return runWithTUI(ctx, d, cfg)
}

func runWithTUI(ctx context.Context, d *veld.Downloader, cfg *config.Config) error {
	model := tui.NewModel(d.Manifest(), d.SelectedStreams(), d.ProgressStream(), cfg)
	p := tea.NewProgram(model, tea.WithAltScreen())

	var downloadErr error
	go func() {
		if err := d.Download(ctx); err != nil {
			downloadErr = err
			p.Send(tui.ErrorMsg{Err: err})
		} else {
			p.Send(tui.DoneMsg{})
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}
	if downloadErr != nil {
		return downloadErr
	}

	printOutputPath(cfg)
	return nil
}

func printManifest(d *veld.Downloader) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(d.Manifest())
}

func printOutputPath(cfg *config.Config) {
	output := cfg.Output
	if output == "" {
		output = "output"
	}
	if !strings.HasSuffix(strings.ToLower(output), "."+cfg.Format) {
		output += "." + cfg.Format
	}
	if cfg.Directory != "" {
		output = cfg.Directory + "/" + output
	}
	fmt.Printf("\nSaved to: %s\n", output)
}

func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --header %q, expected \"Name: Value\"", h)
		}
		headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return headers, nil
}

// optionsFromConfig translates the bound config back into the
// functional-options form veld.New expects, keeping cfg (and its Validate)
// as the single source of truth for defaulting/validation.
func optionsFromConfig(cfg *config.Config) []veld.Option {
	return []veld.Option{
		veld.WithURL(cfg.BaseURL),
		veld.WithFileName(cfg.Output),
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
}
