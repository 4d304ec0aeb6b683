// Package sealbox provides a Go client SDK for Sealbox, a disposable
// end-to-end encrypted inbox service for QA/testing environments.
//
// The SDK creates temporary email inboxes with quantum-safe encryption
// using ML-KEM-768 for key encapsulation and ML-DSA-65 for signatures.
// Private keys are generated client-side and never leave the process
// except through an explicit export.
//
// Basic usage:
//
//	client, err := sealbox.New("your-api-key")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Create a temporary inbox
//	inbox, err := client.CreateInbox(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Wait for an email
//	email, err := inbox.WaitForEmail(ctx, sealbox.WithSubject("Verify your account"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Subject:", email.Subject)
package sealbox
