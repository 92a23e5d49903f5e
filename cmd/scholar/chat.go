package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"deepscholar/internal/dialogue"
	"deepscholar/internal/planner"
	"deepscholar/internal/types"
)

var chatUser string

// chatCmd is the conversational interface.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive research conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := buildApp(ctx, cliProgress, cliApproval)
		if err != nil {
			return err
		}
		defer a.close()

		base := planner.NewPlanner(a.llm, a.registry)
		orch := dialogue.NewOrchestrator(a.fabric, a.llm, planner.NewAdaptive(base), a.pipe, cliProgress)

		convID := uuid.NewString()
		color.Cyan("deepscholar ready. Type a research topic, or \"exit\" to quit.")

		scanner := bufio.NewScanner(os.Stdin)
		for {
			color.Set(color.FgGreen)
			fmt.Print("you> ")
			color.Unset()
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				return nil
			}

			reply, err := orch.HandleMessage(ctx, convID, chatUser, line)
			if err != nil {
				color.Red("error: %v", err)
				continue
			}
			color.White("%s\n", reply)

			if ctx.Err() != nil {
				return nil
			}
		}
	},
}

// cliProgress prints phase updates to the terminal.
func cliProgress(phase, message string, data map[string]any) {
	if papers, ok := data["papers"]; ok {
		color.HiBlack("  [%s] %s (papers: %v)", phase, message, papers)
		return
	}
	color.HiBlack("  [%s] %s", phase, message)
}

// cliApproval prompts for HITL gates on stdin. The --yes flag skips the
// prompt.
func cliApproval(ctx context.Context, g *types.Gate) (bool, error) {
	if noApprove {
		return true, nil
	}

	color.Yellow("Approval needed (%s in %s):", g.Kind, g.Phase)
	for k, v := range g.Context {
		color.Yellow("  %s: %v", k, v)
	}
	fmt.Print("proceed? [y/N] ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", "local", "user id for memory personalization")
}
