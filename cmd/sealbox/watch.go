package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	sealbox "github.com/sealbox/client-go"
)

var (
	watchAll   bool
	watchEmail string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream arriving emails to the terminal",
	Long: `Watch prints emails as they arrive, using push delivery when the
server supports it. Interrupt with Ctrl-C.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVarP(&watchAll, "all", "a", false, "Watch all stored inboxes")
	watchCmd.Flags().StringVar(&watchEmail, "email", "", "Watch a specific inbox")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ks, err := loadKeystore()
	if err != nil {
		return err
	}

	var stored []*sealbox.ExportedInbox
	switch {
	case watchAll:
		for i := range ks.Inboxes {
			stored = append(stored, &ks.Inboxes[i])
		}
	default:
		in, err := ks.resolve(watchEmail)
		if err != nil {
			return err
		}
		stored = append(stored, in)
	}
	if len(stored) == 0 {
		return errNoActiveInbox
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	inboxes := make([]*sealbox.Inbox, 0, len(stored))
	for _, data := range stored {
		inbox, err := attachInbox(ctx, client, data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", data.EmailAddress, err)
			continue
		}
		inboxes = append(inboxes, inbox)
	}
	if len(inboxes) == 0 {
		return fmt.Errorf("no watchable inboxes")
	}

	events := client.WatchInboxes(ctx, inboxes...)
	fmt.Fprintf(os.Stderr, "Watching %d inbox(es)...\n", len(inboxes))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if jsonOutput() {
				json.NewEncoder(os.Stdout).Encode(map[string]any{
					"inbox":      ev.Inbox.EmailAddress(),
					"from":       ev.Email.From,
					"subject":    ev.Email.Subject,
					"receivedAt": ev.Email.ReceivedAt,
				})
				continue
			}
			fmt.Printf("[%s] %s  %s  %s\n",
				time.Now().Format("15:04:05"),
				ev.Inbox.EmailAddress(), ev.Email.From, ev.Email.Subject)
		}
	}
}
