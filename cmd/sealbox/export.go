package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [address] <file>",
	Short: "Export an inbox, including its secret key, to a file",
	Long: `Export writes the inbox keys to a JSON file readable by any Sealbox
SDK. The file contains secret key material; it is written with
owner-only permissions.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, file := "", args[0]
		if len(args) == 2 {
			address, file = args[0], args[1]
		}

		ks, err := loadKeystore()
		if err != nil {
			return err
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
		if err != nil {
			return err
		}
		if err := client.ExportInboxToFile(inbox, file); err != nil {
			return err
		}
		fmt.Printf("Exported %s to %s\n", inbox.EmailAddress(), file)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import an inbox from an export file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		inbox, err := client.ImportInboxFromFile(ctx, args[0])
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
		fmt.Printf("Imported %s (expires %s)\n",
			inbox.EmailAddress(), inbox.ExpiresAt().Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
}
