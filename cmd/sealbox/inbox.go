package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	sealbox "github.com/sealbox/client-go"
)

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Manage disposable inboxes",
	Long:  `Create, list, switch and delete disposable email inboxes.`,
}

var (
	createTTL       string
	createPlaintext bool
	createEmailAuth bool
)

var inboxCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new inbox and make it active",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		var opts []sealbox.InboxOption
		if createTTL != "" {
			ttl, err := time.ParseDuration(createTTL)
			if err != nil {
				return fmt.Errorf("invalid ttl: %w", err)
			}
			opts = append(opts, sealbox.WithTTL(ttl))
		}
		if createPlaintext {
			opts = append(opts, sealbox.WithoutEncryption())
		}
		if createEmailAuth {
			opts = append(opts, sealbox.WithEmailAuth())
		}

		inbox, err := client.CreateInbox(ctx, opts...)
		if err != nil {
			return err
		}

		ks, err := loadKeystore()
		if err != nil {
			return err
		}
		ks.add(inbox.Export())
		ks.Active = inbox.EmailAddress()
		if err := ks.save(); err != nil {
			return err
		}

		if jsonOutput() {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{
				"address":   inbox.EmailAddress(),
				"expiresAt": inbox.ExpiresAt(),
				"encrypted": inbox.IsEncrypted(),
			})
		}
		fmt.Printf("Created inbox %s (expires %s)\n",
			inbox.EmailAddress(), inbox.ExpiresAt().Format(time.RFC3339))
		return nil
	},
}

var inboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored inboxes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ks, err := loadKeystore()
		if err != nil {
			return err
		}

		if jsonOutput() {
			return json.NewEncoder(os.Stdout).Encode(ks.Inboxes)
		}
		if len(ks.Inboxes) == 0 {
			fmt.Println("No stored inboxes.")
			return nil
		}
		for _, in := range ks.Inboxes {
			marker := " "
			if in.EmailAddress == ks.Active {
				marker = "*"
			}
			state := "ok"
			if !in.ExpiresAt.After(time.Now()) {
				state = "expired"
			}
			fmt.Printf("%s %-40s %-9s expires %s\n",
				marker, in.EmailAddress, state, in.ExpiresAt.Format(time.RFC3339))
		}
		return nil
	},
}

var inboxUseCmd = &cobra.Command{
	Use:   "use <address>",
	Short: "Set the active inbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ks, err := loadKeystore()
		if err != nil {
			return err
		}
		if _, err := ks.find(args[0]); err != nil {
			return err
		}
		ks.Active = args[0]
		return ks.save()
	},
}

var inboxDeleteCmd = &cobra.Command{
	Use:   "delete [address]",
	Short: "Delete an inbox on the server and forget its keys",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ks, err := loadKeystore()
		if err != nil {
			return err
		}
		address := ""
		if len(args) > 0 {
			address = args[0]
		}
		stored, err := ks.resolve(address)
		if err != nil {
			return err
		}

		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		inbox, err := attachInbox(ctx, client, stored)
		if err == nil {
			if err := inbox.Delete(ctx); err != nil {
				return err
			}
		}
		// Forget the keys even when the server side is already gone.
		ks.remove(stored.EmailAddress)
		return ks.save()
	},
}

func init() {
	inboxCreateCmd.Flags().StringVar(&createTTL, "ttl", "", "Inbox lifetime (e.g. 1h, 30m)")
	inboxCreateCmd.Flags().BoolVar(&createPlaintext, "plaintext", false, "Create without end-to-end encryption")
	inboxCreateCmd.Flags().BoolVar(&createEmailAuth, "email-auth", false, "Enable SPF/DKIM/DMARC checks")

	inboxCmd.AddCommand(inboxCreateCmd, inboxListCmd, inboxUseCmd, inboxDeleteCmd)
	rootCmd.AddCommand(inboxCmd)
}
