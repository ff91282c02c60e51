package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/seqprobe/seqprobe/internal/export"
	"github.com/seqprobe/seqprobe/internal/logger"
	"github.com/seqprobe/seqprobe/internal/metrics"
	"github.com/seqprobe/seqprobe/internal/server"
	"github.com/seqprobe/seqprobe/internal/shutdown"
	"github.com/seqprobe/seqprobe/pkg/scanner"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	// Serve flags
	listenAddr string

	// Scan flags
	startNum     int
	maxN         int
	maxMisses    int
	delayMin     float64
	delayMax     float64
	rateCeiling  float64
	clickMode    bool
	autoDownload bool
	extensions   []string
	cookie       string
	headless     bool
	downloadDir  string
	pdfOut       string

	// Export flags
	exportLabel string
	exportTitle string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "seqprobe",
		Short: "seqprobe - Sequential URL resource scanner",
		Long: `seqprobe enumerates numeric-identifier URL families from a single sample URL.

It extracts the numeric pattern, probes adjacent identifiers either by direct
fetch or by driving a real browser per item page, bypasses consent gates, and
streams hit/miss events as it goes.`,
		Version: version,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket server",
		Long:  "Run the HTTP server exposing pattern parsing, live scan streaming, PDF export, and counters.",
		RunE:  runServe,
	}

	scanCmd := &cobra.Command{
		Use:   "scan [sample-url]",
		Short: "Scan adjacent identifiers of a sample URL",
		Long:  "Extract the numeric pattern from the sample URL and probe the identifiers after it.",
		Args:  cobra.ExactArgs(1),
		RunE:  runScan,
	}

	parseCmd := &cobra.Command{
		Use:   "parse [sample-url]",
		Short: "Show the numeric pattern of a sample URL",
		Args:  cobra.ExactArgs(1),
		RunE:  runParse,
	}

	exportCmd := &cobra.Command{
		Use:   "export [url-list-file] [output.pdf]",
		Short: "Export a URL list to a PDF report",
		Long:  "Read newline-separated URLs from a file and render them as a PDF report.",
		Args:  cobra.ExactArgs(2),
		RunE:  runExport,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", ":8777", "Listen address")

	scanCmd.Flags().IntVar(&startNum, "start", 0, "First identifier to probe (default: sample + 1)")
	scanCmd.Flags().IntVarP(&maxN, "max-n", "n", 500, "Maximum identifiers to probe")
	scanCmd.Flags().IntVarP(&maxMisses, "max-misses", "m", 50, "Consecutive misses before stopping")
	scanCmd.Flags().Float64Var(&delayMin, "delay-min", 1.0, "Minimum inter-probe delay in seconds")
	scanCmd.Flags().Float64Var(&delayMax, "delay-max", 3.0, "Maximum inter-probe delay in seconds")
	scanCmd.Flags().Float64Var(&rateCeiling, "rate-ceiling", 0, "Request-rate ceiling in requests per second (0 = none)")
	scanCmd.Flags().BoolVar(&clickMode, "click-mode", false, "Drive a browser per item page instead of fetching file URLs")
	scanCmd.Flags().BoolVar(&autoDownload, "auto-download", false, "Persist hit payloads locally")
	scanCmd.Flags().StringArrayVarP(&extensions, "ext", "e", nil, "File extensions to try per identifier")
	scanCmd.Flags().StringVar(&cookie, "cookie", "", `Cookie header string ("name=value; name2=value2"), skips gate bypass`)
	scanCmd.Flags().BoolVar(&headless, "headless", false, "Run the gate-bypass browser headless")
	scanCmd.Flags().StringVar(&downloadDir, "download-dir", "downloads", "Directory for persisted payloads")
	scanCmd.Flags().StringVar(&pdfOut, "pdf", "", "Write validated URLs to this PDF when done")

	exportCmd.Flags().StringVar(&exportLabel, "label", "", "Label shown in the report header")
	exportCmd.Flags().StringVar(&exportTitle, "title", "", "Report title")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(exportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *logger.Logger {
	cfg := logger.DefaultConfig()
	if verbose {
		cfg.Level = zerolog.DebugLevel
	}
	if debug {
		cfg.Level = zerolog.TraceLevel
	}
	return logger.New(cfg)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()
	collector := metrics.NewCollector()

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = listenAddr
	if configFile != "" {
		scanCfg, err := scanner.LoadFromFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
		srvCfg.ScanDefaults = scanCfg
	}

	srv := server.New(srvCfg, log, collector)

	sd := shutdown.New(shutdown.Config{
		Timeout: srvCfg.ShutdownTimeout,
		OnDone: func(elapsed time.Duration, errs []error) {
			for _, err := range errs {
				log.WithError(err).Warn("Shutdown step failed")
			}
			log.Infof("Shutdown complete in %v", elapsed.Round(time.Millisecond))
		},
	})
	sd.Register("http-server", srv.Shutdown)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	go sd.Wait()

	select {
	case err := <-errCh:
		sd.Shutdown()
		return err
	case <-sd.Done():
		return nil
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	sample := args[0]

	config := scanner.DefaultConfig()
	if configFile != "" {
		loaded, err := scanner.LoadFromFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
		config = loaded
	}

	pat, err := scanner.ExtractPattern(sample)
	if err != nil {
		return err
	}
	config.Prefix = pat.Prefix
	config.NumWidth = pat.NumWidth
	config.BaseNum = pat.BaseNum
	config.StartNum = pat.NextNum()
	if pat.Suffix != "" {
		config.Extensions = []string{pat.Suffix}
	}

	// Flag overrides, only where set.
	if cmd.Flags().Changed("start") {
		config.StartNum = startNum
	}
	if cmd.Flags().Changed("max-n") {
		config.MaxN = maxN
	}
	if cmd.Flags().Changed("max-misses") {
		config.MaxMisses = maxMisses
	}
	if cmd.Flags().Changed("delay-min") {
		config.DelayMin = time.Duration(delayMin * float64(time.Second))
	}
	if cmd.Flags().Changed("delay-max") {
		config.DelayMax = time.Duration(delayMax * float64(time.Second))
	}
	if cmd.Flags().Changed("rate-ceiling") {
		config.RateCeiling = rateCeiling
	}
	if cmd.Flags().Changed("click-mode") {
		config.ClickMode = clickMode
	}
	if cmd.Flags().Changed("auto-download") {
		config.AutoDownload = autoDownload
	}
	if cmd.Flags().Changed("ext") {
		config.Extensions = extensions
	}
	if cmd.Flags().Changed("cookie") {
		config.Cookie = cookie
	}
	if cmd.Flags().Changed("headless") {
		config.Headless = headless
	}
	if cmd.Flags().Changed("download-dir") {
		config.DownloadDir = downloadDir
	}
	config.Verbose = verbose || debug

	sc, err := scanner.New(config, scanner.WithLogger(newLogger()))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sd := shutdown.New(shutdown.Config{Timeout: 10 * time.Second})
	sd.RegisterFunc("scan", cancel)
	go sd.Wait()

	var hits []string
	start := time.Now()

	for ev := range sc.Run(ctx) {
		printEvent(ev)
		if ev.Type == scanner.EventHit {
			hits = append(hits, ev.URL)
		}
	}

	printSummary(sample, hits, time.Since(start))

	if pdfOut != "" && len(hits) > 0 {
		if err := writePDFFile(pdfOut, exportTitle, sample, hits); err != nil {
			return fmt.Errorf("pdf export: %w", err)
		}
		fmt.Printf("Report written to %s\n", pdfOut)
	}
	return nil
}

func runParse(cmd *cobra.Command, args []string) error {
	pat, err := scanner.ExtractPattern(args[0])
	if err != nil {
		return err
	}

	out := struct {
		*scanner.Pattern
		NextNum int    `json:"next_num"`
		NextURL string `json:"next_url"`
	}{pat, pat.NextNum(), pat.URLFor(pat.NextNum())}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	listPath, outPath := args[0], args[1]

	f, err := os.Open(listPath)
	if err != nil {
		return err
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			urls = append(urls, line)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs in %s", listPath)
	}

	if err := writePDFFile(outPath, exportTitle, exportLabel, urls); err != nil {
		return err
	}
	fmt.Printf("Wrote %d URL(s) to %s\n", len(urls), outPath)
	return nil
}

func writePDFFile(path, title, label string, urls []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return export.WritePDF(f, export.Report{
		Title: title,
		Label: label,
		URLs:  urls,
	})
}

func printEvent(ev scanner.Event) {
	switch ev.Type {
	case scanner.EventLog:
		fmt.Println(ev.Msg)
	case scanner.EventRange:
		fmt.Printf("Range: %s .. %s\n", ev.First, ev.Last)
	case scanner.EventChecking:
		fmt.Printf("[%d/%d] %s\n", ev.Index+1, ev.Total, ev.URL)
	case scanner.EventHit:
		fmt.Printf("  HIT  %s (%d found)\n", ev.URL, ev.Found)
	case scanner.EventStopped:
		fmt.Printf("Stopped: %s\n", ev.Reason)
	case scanner.EventDone:
		fmt.Println("Scan complete.")
	}
}

func printSummary(sample string, hits []string, duration time.Duration) {
	fmt.Println()
	fmt.Printf("Sample URL:     %s\n", sample)
	fmt.Printf("Duration:       %v\n", duration.Round(time.Second))
	fmt.Printf("Validated URLs: %d\n", len(hits))
	for _, u := range hits {
		fmt.Printf("  %s\n", u)
	}
}
