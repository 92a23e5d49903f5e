package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"deepscholar/internal/pipeline"
	"deepscholar/internal/types"
)

var (
	researchUser      string
	researchKeywords  []string
	researchURLs      []string
	researchQuestions []string
	researchMax       int
	printReport       bool
)

// researchCmd runs the pipeline once without the conversation layer.
var researchCmd = &cobra.Command{
	Use:   "research <topic>",
	Short: "Run a one-shot research pipeline",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := buildApp(ctx, cliProgress, cliApproval)
		if err != nil {
			return err
		}
		defer a.close()

		topic := strings.Join(args, " ")
		req := &types.ResearchRequest{
			Topic:      topic,
			Keywords:   researchKeywords,
			SourceURLs: researchURLs,
			Questions:  researchQuestions,
			MaxPapers:  researchMax,
		}

		session := pipeline.NewSession(researchUser, req)
		if err := a.pipe.Run(ctx, session, topic, nil); err != nil {
			return err
		}

		color.Green("outcome: %s, papers: %d, themes: %d", session.Outcome, len(session.Papers), len(session.Clusters))
		if session.ReportID != "" {
			color.Green("report: %s", session.ReportID)
		}
		if printReport && session.Report != "" {
			fmt.Println()
			fmt.Println(session.Report)
		}
		return nil
	},
}

func init() {
	researchCmd.Flags().StringVar(&researchUser, "user", "local", "user id for memory personalization")
	researchCmd.Flags().StringSliceVar(&researchKeywords, "keyword", nil, "seed keywords")
	researchCmd.Flags().StringSliceVar(&researchURLs, "url", nil, "source URLs to collect")
	researchCmd.Flags().StringSliceVar(&researchQuestions, "question", nil, "research questions")
	researchCmd.Flags().IntVar(&researchMax, "max-papers", 0, "paper budget")
	researchCmd.Flags().BoolVar(&printReport, "print", false, "print the report to stdout")
}
