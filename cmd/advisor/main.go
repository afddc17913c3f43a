// Command advisor runs one drafting turn from the terminal: it streams the
// assistant's reply as it arrives, then prints the enriched turn as JSON.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/policyforge/advisor/pkg/candidate"
	"github.com/policyforge/advisor/pkg/catalog"
	"github.com/policyforge/advisor/pkg/config"
	"github.com/policyforge/advisor/pkg/logging"
	"github.com/policyforge/advisor/pkg/model"
	"github.com/policyforge/advisor/pkg/pipeline"
	"github.com/policyforge/advisor/pkg/telemetry"
)

var (
	configPath    = flag.String("config", "", "path to YAML config (optional)")
	message       = flag.String("message", "", "merchant message; read from stdin when empty")
	merchantID    = flag.String("merchant", "demo-merchant", "merchant id")
	sessionID     = flag.String("session", "demo-session", "session id")
	publishIntent = flag.Bool("publish", false, "signal publish intent for this turn")
	approvalToken = flag.String("token", "", "approval token for publishing")
	jsonOutput    = flag.Bool("json", false, "print the full turn as JSON instead of a summary")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "advisor:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	userMessage := strings.TrimSpace(*message)
	if userMessage == "" {
		fmt.Fprint(os.Stderr, "message: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading message: %w", err)
		}
		userMessage = strings.TrimSpace(line)
	}
	if userMessage == "" {
		return fmt.Errorf("no message given")
	}

	ctx := context.Background()

	_, shutdown, err := telemetry.Setup(cfg.Telemetry.TracingEnabled, "advisor")
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer shutdown(ctx)

	var logger *logging.Logger
	if cfg.Logging.Dir != "" {
		logger, err = logging.NewLogger(cfg.Logging.Dir, *sessionID)
		if err != nil {
			return err
		}
		defer logger.Close()
		logger.SetMinLevel(logging.Level(cfg.Logging.MinLevel))
	}

	gateway := model.NewClient(model.ClientConfig{
		BaseURL:           cfg.Provider.BaseURL,
		APIKey:            cfg.Provider.APIKey(),
		Model:             cfg.Provider.Model,
		Temperature:       cfg.Provider.Temperature,
		MaxTokens:         cfg.Provider.MaxTokens,
		Timeout:           cfg.Provider.Timeout(),
		RequestsPerMinute: cfg.Provider.RequestsPerMinute,
	})
	cat := catalog.NewStatic(catalog.DefaultTemplates()...)
	p := pipeline.New(gateway, cat, cfg, pipeline.Tools{}, logger)

	events, result := p.ProcessTurn(ctx, pipeline.Input{
		MerchantID:    *merchantID,
		SessionID:     *sessionID,
		UserMessage:   userMessage,
		PublishIntent: *publishIntent,
		ApprovalToken: *approvalToken,
		Overrides:     candidate.Overrides{MerchantID: *merchantID},
	})

	for event := range events {
		if event.Type == model.EventToken {
			fmt.Print(event.Text)
		}
	}
	fmt.Println()

	t := <-result
	if *jsonOutput {
		out, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("status: %s\n", t.Status)
	for i, proposal := range t.Proposals {
		fmt.Printf("proposal %d: %s (template %s, branch %s)\n", i+1, proposal.Title, proposal.TemplateID, proposal.BranchID)
	}
	for _, issue := range t.ValidationIssues {
		fmt.Printf("rejected: %s - %s\n", issue.Title, issue.Reason)
	}
	return nil
}
