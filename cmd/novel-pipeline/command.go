package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"z-novel-pipeline/internal/bus"
	"z-novel-pipeline/internal/infrastructure/messaging"
)

var sendFlags bus.Command

var commandCmd = &cobra.Command{
	Use:   "command",
	Short: "Send commands to a running pipeline through the Redis command stream",
}

var commandSendCmd = &cobra.Command{
	Use:   "send <kind>",
	Short: "Publish a pipeline command (start, approve, adjust, pause, resume, continue, ...)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rs := cfg.Messaging.RedisStream
		if rs.CommandStream == "" {
			return fmt.Errorf("messaging.redis_stream.command_stream is not configured")
		}

		rdb, err := messaging.NewClient(cmd.Context(), rs)
		if err != nil {
			return err
		}
		defer rdb.Close()

		c := sendFlags
		c.Kind = bus.CommandKind(args[0])
		id, err := messaging.NewProducer(rdb, rs.MaxLen).PublishCommand(cmd.Context(), messaging.Stream(rs.CommandStream), c)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %s (%s)\n", c.Kind, id)
		return nil
	},
}

func init() {
	f := commandSendCmd.Flags()
	f.StringVar(&sendFlags.Config, "config", "", `start: "Idea: ..., Tone: ..., Soft Target: N"`)
	f.StringVar(&sendFlags.Idea, "idea", "", "start: story idea")
	f.StringVar(&sendFlags.Tone, "tone", "", "start: tone")
	f.IntVar(&sendFlags.SoftTarget, "soft-target", 0, "start: target word count")
	f.StringVar(&sendFlags.Phase, "phase", "", "approve/adjust: content type, defaults to the pending one")
	f.StringVar(&sendFlags.Content, "content", "", "approve: edited content")
	f.StringVar(&sendFlags.Feedback, "feedback", "", "adjust: feedback for regeneration")
	f.StringVar(&sendFlags.Name, "name", "", "createProject/loadProject: project name")
	f.StringVar((*string)(&sendFlags.Choice), "choice", "", "decideMilestone: extend or wrapUp")
	f.BoolVar(&sendFlags.AutoFix, "auto-fix", false, "resolveConsistency: request auto-fix")

	commandCmd.AddCommand(commandSendCmd)
	rootCmd.AddCommand(commandCmd)
}
