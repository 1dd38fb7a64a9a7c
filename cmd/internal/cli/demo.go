package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"qrauth/cmd/identity"
	"qrauth/cmd/internal/auth/session"
	loginv1 "qrauth/shared/contracts/login/v1"
)

// NewDemoCommand runs the complete login flow in-process against seeded
// users and prints each step.
func NewDemoCommand() *cobra.Command {
	var opts demoOptions

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run issue, scan, confirm, and check in-process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "alice@example.com", "Identity that confirms the login")
	cmd.Flags().StringVar(&opts.DeviceID, "device", "demo-phone", "Scanning device id")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "http://127.0.0.1:8080", "Origin used in the verify URL")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "Session lifetime (0 uses the default)")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Log state-machine events")

	return cmd
}

type demoOptions struct {
	Email    string
	DeviceID string
	BaseURL  string
	TTL      time.Duration
	Verbose  bool
}

func runDemo(ctx context.Context, out io.Writer, opts demoOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		log = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	users := identity.NewMemoryDirectory()
	if err := identity.SeedDirectory(ctx, users, identity.DemoSeeds); err != nil {
		return err
	}
	fmt.Fprintf(out, "registered users:\n")
	all, err := users.All(ctx)
	if err != nil {
		return err
	}
	for _, u := range all {
		fmt.Fprintf(out, "  %-20s %s\n", u.Email, u.DisplayName)
	}

	m := session.NewMachine(session.DefaultConfig(), session.NewMemoryStore(), users, session.WithLogger(log))

	iss, err := m.Issue(ctx, opts.TTL, "")
	if err != nil {
		return fmt.Errorf("issue: %w", err)
	}
	verifyURL := loginv1.VerifyURL(opts.BaseURL, iss.Token, iss.SessionID)
	qr, err := loginv1.QRPayload{
		Token:   iss.Token,
		URL:     verifyURL,
		Exp:     iss.ExpiresAt.UnixMilli(),
		Type:    loginv1.QRTypeAuth,
		Session: iss.SessionID,
	}.JSON()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n1. issued session %s (expires %s)\n", iss.SessionID, iss.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintf(out, "   qr payload: %s\n", qr)

	if err := printStatus(ctx, out, m, iss.SessionID); err != nil {
		return err
	}

	scanned, err := m.Scan(ctx, iss.Token, opts.DeviceID)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	fmt.Fprintf(out, "\n2. scanned by %s -> %s\n", opts.DeviceID, scanned.Status)

	user, err := m.Confirm(ctx, iss.Token, opts.DeviceID, opts.Email)
	if err != nil {
		return fmt.Errorf("confirm: %w", err)
	}
	fmt.Fprintf(out, "\n3. confirmed as %s (%s)\n", user.DisplayName, user.Email)

	fmt.Fprintf(out, "\n4. check\n")
	return printStatus(ctx, out, m, iss.SessionID)
}

func printStatus(ctx context.Context, out io.Writer, m *session.Machine, id string) error {
	st, err := m.Status(ctx, id)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	u, ok, err := m.CheckAuthenticated(ctx, id)
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}
	if ok {
		fmt.Fprintf(out, "   status=%s user=%s\n", st, u.Email)
		return nil
	}
	fmt.Fprintf(out, "   status=%s authenticated=false\n", st)
	return nil
}
