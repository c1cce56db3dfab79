package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"clawderous/internal/app"
	"clawderous/internal/config"
	"clawderous/internal/domain"
	"clawderous/internal/logging"
	"clawderous/internal/provider"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	root := &cobra.Command{
		Use:          "mailcmd",
		Short:        "Operator tools for the Clawderous email command service",
		SilenceUsage: true,
	}

	root.AddCommand(parseCmd())
	root.AddCommand(commandsCmd())
	root.AddCommand(signCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(sendCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func parseCmd() *cobra.Command {
	var subject, bodyFile string
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Show how a subject and body would be parsed",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readInput(cmd.InOrStdin(), bodyFile)
			if err != nil {
				return err
			}
			out, err := describe(subject, body)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "email subject")
	cmd.Flags().StringVarP(&bodyFile, "body-file", "b", "", "file holding the email body, - for stdin")
	return cmd
}

func commandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the built-in commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := app.Commands(config.Defaults(), nil, nil, zap.NewNop())
			if err != nil {
				return err
			}
			for _, n := range reg.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), "/"+n)
			}
			return nil
		},
	}
}

func signCmd() *cobra.Command {
	var secret, file string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print a Resend-Signature header for a webhook payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("RESEND_WEBHOOK_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("no secret: pass --secret or set RESEND_WEBHOOK_SECRET")
			}
			payload, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			ts := time.Now().Unix()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: t=%d,v1=%s\n",
				provider.ResendSignatureHeader, ts, provider.SignHMAC(secret, ts, []byte(payload)))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "webhook signing secret")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "payload file, - for stdin")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the active provider's credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, logger, err := activeProvider()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			ok, err := p.ValidateConfig(ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", p.Name(), err)
			}
			if !ok {
				return fmt.Errorf("%s: credentials rejected", p.Name())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: credentials OK\n", p.Name())
			return nil
		},
	}
}

func sendCmd() *cobra.Command {
	var to, subject, text string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a test email through the active provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == "" {
				return fmt.Errorf("--to is required")
			}
			p, logger, err := activeProvider()
			if err != nil {
				return err
			}
			defer logger.Sync()

			id, err := p.SendEmail(cmd.Context(), &domain.OutboundSendRequest{To: to, Subject: subject, Text: text})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent via %s: %s\n", p.Name(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().StringVar(&subject, "subject", "Clawderous test", "subject line")
	cmd.Flags().StringVar(&text, "text", "🦞 It works.", "plain-text body")
	return cmd
}

func activeProvider() (provider.Provider, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	_, p, err := provider.FromConfig(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return p, logger, nil
}

func readInput(stdin io.Reader, path string) (string, error) {
	switch path {
	case "":
		return "", nil
	case "-":
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(b), "\n"), nil
}
