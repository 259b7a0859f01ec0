package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailtriage/internal/auth"
	"github.com/daviddao/mailtriage/internal/display"
	"github.com/daviddao/mailtriage/internal/gmail"
	"github.com/daviddao/mailtriage/internal/triage"
	"github.com/daviddao/mailtriage/internal/types"
)

type promptOutput struct {
	Email  types.Email `json:"email"`
	System string      `json:"system"`
	User   string      `json:"user"`
}

var promptCmd = &cobra.Command{
	Use:   "prompt MESSAGE_ID",
	Short: "Show the canonical email and the exact prompt for one message",
	Long: `Fetch a single Gmail message, normalize it and print the system and user
prompt that 'mt run' would send. No model is called.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, err := auth.LoadGmailService(ctx, auth.Options{
			CredentialsPath: cfg.CredentialsPath,
			TokenPath:       cfg.TokenPath,
			Mode:            types.ModeDryRun,
			In:              os.Stdin,
			Out:             cmd.ErrOrStderr(),
			Logger:          logger,
		})
		if err != nil {
			return fmt.Errorf("gmail auth: %w", err)
		}

		msg, err := gmail.NewClient(svc).GetMessage(ctx, args[0])
		if err != nil {
			return err
		}
		email := gmail.Normalize(msg, cfg.MaxBodyChars)
		p := triage.BuildPrompt(email, cfg.LabelPrefix)

		w := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(promptOutput{Email: email, System: p.System, User: p.User})
		}

		display.Header(w, "System")
		fmt.Fprintln(w, p.System)
		fmt.Fprintln(w)
		display.Header(w, "User")
		fmt.Fprintln(w, p.User)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(promptCmd)
}
