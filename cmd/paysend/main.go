// Command paysend signs payloads the way the payment platform does and
// posts them to a running relay.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/otiai10/payrelay/internal/config"
	"github.com/otiai10/payrelay/internal/delivery/webhook"
	"github.com/otiai10/payrelay/internal/signature"
	"github.com/otiai10/payrelay/internal/version"
)

func main() {
	_ = godotenv.Load(".env.localdev")

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "paysend",
		Short:         "paysend - send signed test webhooks to payrelay",
		Version:       version.CommitHash,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(keygenCmd())

	return rootCmd
}

// payloadFlags are shared by send and sign
type payloadFlags struct {
	secret string
	data   string
	file   string
	age    time.Duration
}

func (p *payloadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.secret, "secret", "s", "", "signing secret (default $"+config.EnvSecret+")")
	cmd.Flags().StringVarP(&p.data, "data", "d", "", "payload to send")
	cmd.Flags().StringVarP(&p.file, "file", "f", "", "read the payload from a file")
	cmd.Flags().DurationVar(&p.age, "age", 0, "backdate the signature timestamp")
}

// payload resolves the secret and reads the body to sign. The secret falls
// back to the environment here so that help output never prints it.
func (p *payloadFlags) payload() ([]byte, error) {
	if p.secret == "" {
		p.secret = os.Getenv(config.EnvSecret)
	}
	if p.secret == "" {
		return nil, fmt.Errorf("a secret is required (--secret or %s)", config.EnvSecret)
	}
	switch {
	case p.data != "" && p.file != "":
		return nil, fmt.Errorf("--data and --file are mutually exclusive")
	case p.file != "":
		b, err := os.ReadFile(p.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
		return b, nil
	case p.data != "":
		return []byte(p.data), nil
	default:
		return []byte(`{"type":"payment.succeeded"}`), nil
	}
}

func (p *payloadFlags) clock() func() time.Time {
	return func() time.Time { return time.Now().Add(-p.age) }
}

func sendCmd() *cobra.Command {
	var (
		flags    payloadFlags
		urls     []string
		timeout  time.Duration
		insecure bool
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "POST a signed payload to one or more relays",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := flags.payload()
			if err != nil {
				return err
			}

			targets := make([]webhook.Target, 0, len(urls))
			for _, u := range urls {
				if err := webhook.ValidateTargetURL(u, insecure); err != nil {
					return fmt.Errorf("--url %s: %w", u, err)
				}
				targets = append(targets, webhook.Target{URL: u, Secret: flags.secret})
			}

			sender := webhook.NewSender(webhook.WithTimeout(timeout), webhook.WithClock(flags.clock()))
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			failed := 0
			for _, r := range sender.SendAll(ctx, targets, payload) {
				if r.Success {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d %s (%v)\n", r.URL, r.StatusCode, r.Body, r.ResponseTime.Round(time.Millisecond))
					continue
				}
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%s: FAILED %s\n", r.URL, r.ErrorMessage)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d deliveries failed", failed, len(targets))
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringSliceVarP(&urls, "url", "u", []string{"http://127.0.0.1:8080/"}, "relay URL (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "allow plain HTTP to non-local relays")

	return cmd
}

func signCmd() *cobra.Command {
	var flags payloadFlags

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the " + signature.HeaderName + " header for a payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := flags.payload()
			if err != nil {
				return err
			}
			header := signature.Sign(flags.secret, flags.clock()(), payload)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", signature.HeaderName, header)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random signing secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := webhook.GenerateSecret()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}
}
