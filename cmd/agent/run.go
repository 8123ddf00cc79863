package main

// #region imports
import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/grounded-agent/internal/chatbot"
	"github.com/danielpatrickdp/grounded-agent/internal/commander"
	"github.com/danielpatrickdp/grounded-agent/internal/runtime"
	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
	"github.com/danielpatrickdp/grounded-agent/internal/vetogate"
)

// #endregion

// #region run-command

func newRunCmd() *cobra.Command {
	var resumeID, scriptPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an engagement interactively",
		Long: `Starts (or resumes) an engagement and reads counterpart messages from
stdin. Each line goes through the full decision pipeline; approved replies
print after the stealth delay. Slash commands control the loop:

  /status            print the runtime report
  /pause, /resume    control the maintenance loop
  /sync              trigger an out-of-band cycle
  /escalations       list unresolved escalations
  /resolve ID OPT    resolve an escalation (approve|block|abort)
  /quit              stop and exit

With --script the counterpart is played by a scripted bot instead of
stdin; the loop runs the script to the end and prints the final report.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngagement(resumeID, scriptPath)
		},
	}
	cmd.Flags().StringVar(&resumeID, "symbol", "", "resume an existing symbol by id")
	cmd.Flags().StringVar(&scriptPath, "script", "", "YAML script of counterpart turns for a dry run")
	return cmd
}

func runEngagement(resumeID, scriptPath string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.close()

	opts := runtime.Options{
		Store:      env.store,
		Provenance: env.prov,
	}
	if url := env.cfg.Commander.URL; url != "" {
		maxElapsed, err := env.cfg.CommanderMaxElapsed()
		if err != nil {
			return err
		}
		client, err := commander.NewClient(commander.ClientOptions{
			BaseURL:    url,
			AuthToken:  env.cfg.Commander.AuthToken,
			Timeout:    env.cfg.CommanderTimeout(),
			MaxElapsed: maxElapsed,
		})
		if err != nil {
			return err
		}
		opts.Commander = client
	}

	var rt *runtime.Runtime
	if resumeID != "" {
		rt, err = runtime.Resume(env.store, resumeID, opts)
		if err != nil {
			return err
		}
	} else {
		params, err := env.cfg.SymbolParams()
		if err != nil {
			return err
		}
		s, err := symbol.New(params)
		if err != nil {
			return err
		}
		rt, err = runtime.New(s, opts)
		if err != nil {
			return err
		}
	}

	ctx := context.Background()
	if err := rt.Start(ctx); err != nil {
		return err
	}
	defer rt.Stop()

	s := rt.Symbol()
	fmt.Printf("engagement ready: %s (v%d)\n", s.ID, s.Version)
	fmt.Printf("  mission: %s | data: %s\n", s.Mission.Name, env.cfg.DataDir)

	if scriptPath != "" {
		return runScripted(ctx, rt, scriptPath)
	}
	fmt.Println("paste counterpart messages, /status for the report, /quit to exit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := handleCommand(ctx, rt, line); quit {
				break
			}
			continue
		}

		res, err := rt.ProcessIncomingMessage(ctx, line)
		if err != nil {
			fmt.Println("pipeline error:", err)
			continue
		}
		printOutcome(rt, res)
	}
	return scanner.Err()
}

// #region scripted-drill

type scriptStep struct {
	Message string   `yaml:"message"`
	DelayMs int      `yaml:"delay_ms"`
	Tactics []string `yaml:"tactics"`
}

type scriptFile struct {
	Steps []scriptStep `yaml:"steps"`
}

// runScripted plays a canned counterpart through the full pipeline. Used
// for smoke-testing a config or rehearsing a mission before going live.
func runScripted(ctx context.Context, rt *runtime.Runtime, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	var file scriptFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse script %s: %w", path, err)
	}
	if len(file.Steps) == 0 {
		return fmt.Errorf("script %s has no steps", path)
	}

	steps := make([]chatbot.Step, 0, len(file.Steps))
	for _, st := range file.Steps {
		steps = append(steps, chatbot.Step{Reply: chatbot.Reply{
			Message:     st.Message,
			DelayMs:     st.DelayMs,
			TacticsUsed: st.Tactics,
		}})
	}
	bot := chatbot.NewScripted(steps...)

	var lastSent string
	for turn := 1; turn <= len(steps); turn++ {
		reply := bot.Respond(lastSent)
		if reply.DelayMs > 0 {
			time.Sleep(time.Duration(reply.DelayMs) * time.Millisecond)
		}
		fmt.Printf("<< %s\n", reply.Message)

		res, err := rt.ProcessIncomingMessage(ctx, reply.Message)
		if err != nil {
			return fmt.Errorf("turn %d: %w", turn, err)
		}
		printOutcome(rt, res)

		lastSent = ""
		if res.Decision == vetogate.DecisionApprove || res.Decision == vetogate.DecisionModify {
			lastSent = res.Response
		}
	}

	fmt.Print(rt.Report())
	return nil
}

// #endregion scripted-drill

func printOutcome(rt *runtime.Runtime, res runtime.ProcessResult) {
	fmt.Printf("[v%d] decision=%s risk=%.2f alert=%s", res.Version, res.Decision, res.RiskScore, res.Alert)
	for _, t := range res.Tactics {
		fmt.Printf(" tactic=%s", t.Tactic)
	}
	fmt.Println()

	switch res.Decision {
	case vetogate.DecisionApprove, vetogate.DecisionModify:
		if d := rt.SendDelay(); d > 0 {
			time.Sleep(d)
		}
		if _, err := rt.MarkSent(); err != nil {
			fmt.Println("send error:", err)
			return
		}
		fmt.Printf("\n%s\n\n", res.Response)
	case vetogate.DecisionBlock:
		fmt.Println("response withheld")
	case vetogate.DecisionEscalate:
		if res.Escalation != nil {
			fmt.Printf("escalated: %s (%s)\n", res.Escalation.ID, res.Escalation.Reason)
		}
	}
}

func handleCommand(ctx context.Context, rt *runtime.Runtime, line string) (quit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/status":
		fmt.Print(rt.Report())
	case "/pause":
		rt.Scheduler().Pause()
		fmt.Println("loop paused")
	case "/resume":
		if err := rt.Scheduler().Resume(); err != nil {
			fmt.Println(err)
		} else {
			fmt.Println("loop resumed")
		}
	case "/sync":
		if err := rt.Scheduler().TriggerManual(ctx); err != nil {
			fmt.Println("cycle error:", err)
		} else {
			fmt.Println("cycle complete")
		}
	case "/escalations":
		items := rt.Escalations()
		if len(items) == 0 {
			fmt.Println("none pending")
		}
		for _, item := range items {
			fmt.Printf("%s  %s\n  held: %s\n", item.ID, item.Reason, item.Message)
		}
	case "/resolve":
		if len(fields) != 3 {
			fmt.Println("usage: /resolve ID approve|block|abort")
			return false
		}
		if err := rt.ResolveEscalation(fields[1], fields[2]); err != nil {
			fmt.Println(err)
		} else {
			fmt.Println("resolved")
		}
	default:
		fmt.Println("unknown command:", fields[0])
	}
	return false
}

// #endregion run-command
