package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	sealbox "github.com/sealbox/client-go"
)

var (
	errNoActiveInbox = errors.New("no active inbox; run 'sealbox inbox create' first")
	errNotInKeystore = errors.New("inbox not found in keystore")
)

// keystore persists exported inboxes between CLI invocations so that
// wait and watch can reuse keys created by earlier commands.
type keystore struct {
	Inboxes []sealbox.ExportedInbox `yaml:"inboxes"`
	// Active is the email address commands operate on by default.
	Active string `yaml:"active"`

	path string
}

func keystorePath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "keystore.yaml"), nil
}

func loadKeystore() (*keystore, error) {
	path, err := keystorePath()
	if err != nil {
		return nil, err
	}

	ks := &keystore{path: path}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ks, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, ks); err != nil {
		return nil, fmt.Errorf("parse keystore: %w", err)
	}
	return ks, nil
}

// save writes the keystore with owner-only permissions; it holds secret
// key material.
func (ks *keystore) save() error {
	if err := os.MkdirAll(filepath.Dir(ks.path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(ks)
	if err != nil {
		return err
	}
	return os.WriteFile(ks.path, data, 0o600)
}

func (ks *keystore) add(exported *sealbox.ExportedInbox) {
	for i, in := range ks.Inboxes {
		if in.EmailAddress == exported.EmailAddress {
			ks.Inboxes[i] = *exported
			return
		}
	}
	ks.Inboxes = append(ks.Inboxes, *exported)
}

func (ks *keystore) remove(address string) {
	for i, in := range ks.Inboxes {
		if in.EmailAddress == address {
			ks.Inboxes = append(ks.Inboxes[:i], ks.Inboxes[i+1:]...)
			break
		}
	}
	if ks.Active == address {
		ks.Active = ""
	}
}

func (ks *keystore) find(address string) (*sealbox.ExportedInbox, error) {
	for i := range ks.Inboxes {
		if ks.Inboxes[i].EmailAddress == address {
			return &ks.Inboxes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", errNotInKeystore, address)
}

// resolve returns the exported inbox for address, or the active inbox
// when address is empty.
func (ks *keystore) resolve(address string) (*sealbox.ExportedInbox, error) {
	if address == "" {
		if ks.Active == "" {
			return nil, errNoActiveInbox
		}
		address = ks.Active
	}
	return ks.find(address)
}

// attachInbox imports a stored inbox into the client so its keys are
// available for decryption.
func attachInbox(ctx context.Context, client *sealbox.Client, data *sealbox.ExportedInbox) (*sealbox.Inbox, error) {
	inbox, err := client.ImportInbox(ctx, data)
	if errors.Is(err, sealbox.ErrInboxAlreadyExists) {
		if existing, ok := client.GetInbox(data.EmailAddress); ok {
			return existing, nil
		}
	}
	return inbox, err
}
