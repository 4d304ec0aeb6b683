package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	sealbox "github.com/sealbox/client-go"
	"github.com/sealbox/client-go/rawmail"
)

var (
	waitInbox        string
	waitSubject      string
	waitSubjectRegex string
	waitFrom         string
	waitFromRegex    string
	waitTimeout      string
	waitCount        int
	waitQuiet        bool
	waitExtractLink  bool
)

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for an email matching criteria",
	Long: `Block until an email matching the given criteria arrives.

Designed for CI pipelines: exit code 0 when a matching email is found,
1 on timeout or error.

Examples:
  sealbox wait --subject-regex "password reset" --timeout 30s
  LINK=$(sealbox wait --subject "Verify your account" --extract-link)
  sealbox wait --from "noreply@example.com" -o json | jq .subject`,
	RunE: runWait,
}

func init() {
	waitCmd.Flags().StringVar(&waitInbox, "inbox", "", "Use specific inbox (default: active)")
	waitCmd.Flags().StringVar(&waitSubject, "subject", "", "Exact subject match")
	waitCmd.Flags().StringVar(&waitSubjectRegex, "subject-regex", "", "Subject regex pattern")
	waitCmd.Flags().StringVar(&waitFrom, "from", "", "Exact sender match")
	waitCmd.Flags().StringVar(&waitFromRegex, "from-regex", "", "Sender regex pattern")
	waitCmd.Flags().StringVar(&waitTimeout, "timeout", "60s", "Maximum time to wait")
	waitCmd.Flags().IntVar(&waitCount, "count", 1, "Number of matching emails to wait for")
	waitCmd.Flags().BoolVarP(&waitQuiet, "quiet", "q", false, "No output, exit code only")
	waitCmd.Flags().BoolVar(&waitExtractLink, "extract-link", false, "Output the first link from the email")

	rootCmd.AddCommand(waitCmd)
}

func waitOptions() ([]sealbox.WaitOption, error) {
	timeout, err := time.ParseDuration(waitTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout: %w", err)
	}

	opts := []sealbox.WaitOption{sealbox.WithWaitTimeout(timeout)}
	if waitSubject != "" {
		opts = append(opts, sealbox.WithSubject(waitSubject))
	}
	if waitSubjectRegex != "" {
		re, err := regexp.Compile(waitSubjectRegex)
		if err != nil {
			return nil, fmt.Errorf("invalid subject regex: %w", err)
		}
		opts = append(opts, sealbox.WithSubjectRegex(re))
	}
	if waitFrom != "" {
		opts = append(opts, sealbox.WithFrom(waitFrom))
	}
	if waitFromRegex != "" {
		re, err := regexp.Compile(waitFromRegex)
		if err != nil {
			return nil, fmt.Errorf("invalid from regex: %w", err)
		}
		opts = append(opts, sealbox.WithFromRegex(re))
	}
	return opts, nil
}

func runWait(cmd *cobra.Command, args []string) error {
	opts, err := waitOptions()
	if err != nil {
		return err
	}

	ks, err := loadKeystore()
	if err != nil {
		return err
	}
	stored, err := ks.resolve(waitInbox)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	inbox, err := attachInbox(cmd.Context(), client, stored)
	if err != nil {
		return err
	}

	var emails []*sealbox.Email
	if waitCount > 1 {
		emails, err = inbox.WaitForEmailCount(cmd.Context(), waitCount, opts...)
	} else {
		var email *sealbox.Email
		email, err = inbox.WaitForEmail(cmd.Context(), opts...)
		if email != nil {
			emails = []*sealbox.Email{email}
		}
	}
	if err != nil {
		var timeoutErr *sealbox.WaitTimeoutError
		if errors.As(err, &timeoutErr) && !waitQuiet {
			fmt.Fprintln(os.Stderr, timeoutErr.Error())
		}
		return err
	}

	if waitQuiet {
		return nil
	}
	for _, email := range emails {
		if err := printEmail(cmd.Context(), inbox, email); err != nil {
			return err
		}
	}
	return nil
}

func printEmail(ctx context.Context, inbox *sealbox.Inbox, email *sealbox.Email) error {
	if waitExtractLink {
		links := email.Links
		if len(links) == 0 {
			// The server may not have parsed links; fall back to
			// parsing the raw source ourselves.
			if parsed, err := inbox.ParseRawEmail(ctx, email.ID); err == nil {
				links = rawmail.ExtractLinks(parsed)
			}
		}
		if len(links) == 0 {
			return errors.New("email contains no links")
		}
		fmt.Println(links[0])
		return nil
	}
	if jsonOutput() {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"id":         email.ID,
			"from":       email.From,
			"subject":    email.Subject,
			"receivedAt": email.ReceivedAt,
			"text":       email.Text,
			"links":      email.Links,
		})
	}
	fmt.Printf("From: %s\nSubject: %s\nReceived: %s\n\n%s\n",
		email.From, email.Subject, email.ReceivedAt.Format(time.RFC3339), email.Text)
	return nil
}
