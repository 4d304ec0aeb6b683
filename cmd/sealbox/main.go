// Command sealbox is a developer companion for testing email flows with
// disposable end-to-end encrypted inboxes.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
