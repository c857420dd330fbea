package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pnmartinez/simple-computer-use-sub000/internal/automation"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/config"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/history"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/llm"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/ocr"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/perception"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/pipeline"
	"github.com/pnmartinez/simple-computer-use-sub000/internal/screenshot"
)

type cliOptions struct {
	instruction string
	interactive bool
}

func main() {
	_ = godotenv.Load()
	opts := parseFlags()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()

	var llmClient llm.Client
	if cfg.LLMProvider == "stub" {
		llmClient = llm.NewStub()
	} else {
		client, err := llm.NewClientWithLogger(cfg.LLMProvider, log.With().Str("comp", "llm").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("llm init")
		}
		llmClient = client
	}

	historyStore, err := history.Open(cfg.HistoryPath)
	if err != nil {
		log.Fatal().Err(err).Msg("history init")
	}

	orch := &pipeline.Orchestrator{
		Logger:        log.With().Str("comp", "pipeline").Logger(),
		Automator:     automation.NewRobotgo(),
		Screenshot:    screenshot.NewDesktop(),
		ScreenshotDir: cfg.ScreenshotDir,
		Perception: &perception.Gate{
			OCR:              ocr.NewTesseract(),
			CaptionEnabled:   cfg.CaptionEnabled,
			OCRMinConfidence: cfg.OCRMinConfidence,
			Logger:           log.With().Str("comp", "perception").Logger(),
		},
		Extractor: llm.NewTargetExtractor(llmClient),
		Fallback:  llm.NewOneShotFallback(llmClient),
		History:   historyStore,
		Config:    cfg,
	}
	orch.AfterRun = func() {
		screenshot.EnforceRetention(cfg.ScreenshotDir, cfg.ScreenshotMaxAge, cfg.ScreenshotMaxCount)
		if err := history.Prune(cfg.HistoryPath, cfg.HistoryMaxAge, cfg.HistoryMaxCount); err != nil {
			log.Warn().Err(err).Msg("history prune failed")
		}
	}

	if opts.interactive {
		runInteractive(ctx, orch)
		return
	}

	if opts.instruction == "" {
		instruction, cancelled, err := promptInstruction()
		if err != nil {
			log.Fatal().Err(err).Msg("prompt failed")
		}
		if cancelled {
			fmt.Println("Cancelled.")
			return
		}
		opts.instruction = instruction
	}

	if !runOnce(ctx, orch, opts.instruction) {
		os.Exit(1)
	}
}

func runOnce(ctx context.Context, orch *pipeline.Orchestrator, instruction string) bool {
	outcome, err := orch.Run(ctx, instruction, pipeline.DefaultOptions())
	if err != nil {
		log.Error().Err(err).Msg("run finished with error")
		return false
	}

	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("marshal outcome")
	}
	fmt.Println(string(data))

	return outcome.Success
}

func runInteractive(ctx context.Context, orch *pipeline.Orchestrator) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		runOnce(ctx, orch, line)
	}
}

func parseFlags() cliOptions {
	instruction := flag.String("instruction", "", "Instruction to execute")
	interactive := flag.Bool("interactive", false, "Run an interactive command loop")
	flag.Parse()
	return cliOptions{
		instruction: strings.TrimSpace(*instruction),
		interactive: *interactive,
	}
}

func promptInstruction() (string, bool, error) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Enter an instruction (leave empty to cancel): ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", false, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", true, nil
	}

	const maxInstructionLength = 2000
	if len(line) > maxInstructionLength {
		fmt.Printf("Instruction too long (max %d characters), truncated\n", maxInstructionLength)
		line = line[:maxInstructionLength]
	}

	var sanitized strings.Builder
	for _, r := range line {
		if r >= 32 || r == '\n' || r == '\r' || r == '\t' {
			sanitized.WriteRune(r)
		}
	}

	return sanitized.String(), false, nil
}

