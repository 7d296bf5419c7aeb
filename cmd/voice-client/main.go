package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/voxlab/voice-client/internal/audio"
	"github.com/voxlab/voice-client/internal/config"
	"github.com/voxlab/voice-client/internal/observability"
	"github.com/voxlab/voice-client/internal/probe"
	"github.com/voxlab/voice-client/internal/recorder"
	"github.com/voxlab/voice-client/internal/session"
)

func main() {
	diagnose := flag.Bool("diagnose", false, "Run a connectivity probe against the transcription endpoint and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("model", cfg.DeepgramModel).
		Str("language", cfg.DeepgramLanguage).
		Int("sample_rate", cfg.SampleRate).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice client starting")

	params := session.Params{
		BaseURL:        cfg.DeepgramBaseURL,
		APIKey:         cfg.DeepgramAPIKey,
		Model:          cfg.DeepgramModel,
		Language:       cfg.DeepgramLanguage,
		Punctuate:      cfg.Punctuate,
		SmartFormat:    cfg.SmartFormat,
		InterimResults: cfg.InterimResults,
		SampleRate:     cfg.SampleRate,
		Channels:       cfg.Channels,
	}

	prober := probe.New(params, probe.Options{
		Timeout:   time.Duration(cfg.ProbeTimeout) * time.Millisecond,
		Alternate: probe.SDKAlternate(cfg.DeepgramBaseURL, cfg.DeepgramModel, cfg.DeepgramLanguage, cfg.SampleRate, cfg.Channels),
	})

	if *diagnose {
		os.Exit(runDiagnostics(prober, cfg))
	}

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%s", cfg.MetricsPort)
			logger.Info().Str("addr", addr).Msg("Prometheus metrics enabled at /metrics")
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error().Err(err).Msg("Metrics listener failed")
			}
		}()
	}

	capture := audio.NewCaptureSource(cfg.SampleRate, cfg.FrameSize)
	newStream := func() recorder.Stream {
		return session.New(params, session.Options{
			OpenTimeout:    time.Duration(cfg.OpenTimeout) * time.Millisecond,
			RetryBackoff:   time.Duration(cfg.ConnectBackoff) * time.Millisecond,
			FinishGrace:    time.Duration(cfg.FinishGrace) * time.Millisecond,
			KeepAliveEvery: time.Duration(cfg.KeepAliveEvery) * time.Second,
		})
	}

	rec := recorder.New(cfg, capture, newStream, prober)
	defer rec.Close()

	ctx := context.Background()
	if err := rec.Initialize(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Initialization failed")
	}
	if err := rec.StartRecording(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start recording")
	}

	fmt.Println("Recording... press Ctrl+C to stop.")

	// Wait for interrupt signal to stop the recording gracefully
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastShown string
	for {
		select {
		case <-ticker.C:
			st := rec.State()
			line := st.Transcript
			if st.InterimTranscript != "" {
				if line != "" {
					line += " "
				}
				line += st.InterimTranscript
			}
			if line != lastShown {
				fmt.Printf("\r\033[K> %s", line)
				lastShown = line
			}
		case <-quit:
			fmt.Println()
			logger.Info().Msg("Stopping recording...")
			rec.StopRecording()

			st := rec.State()
			if st.Transcript != "" {
				fmt.Println(st.Transcript)
			}
			if st.Err != "" {
				logger.Warn().Str("error", st.Err).Msg("Session ended with an error")
			}
			logger.Info().Msg("Voice client exited gracefully")
			return
		}
	}
}

// runDiagnostics probes the endpoint over both transport stacks and prints
// the primary result as JSON; the exit code reflects credential validity
func runDiagnostics(prober *probe.Prober, cfg *config.Config) int {
	logger := observability.Component("diagnostics")
	ctx := context.Background()
	timeout := time.Duration(cfg.ProbeTimeout) * time.Millisecond

	result := prober.Probe(ctx, timeout)
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode probe result")
		return 1
	}
	fmt.Println(string(out))

	if err := prober.ValidateKey(ctx); err != nil {
		logger.Error().Err(err).Msg("Credential validation failed")
		return 1
	}
	logger.Info().Msg("Endpoint reachable and credential accepted")
	return 0
}
