package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"rulemate/internal/config"
	"rulemate/internal/credential"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Unable to load configuration: %v", err)
	}
	if cfg.Mailbox.ClientID == "" || cfg.Mailbox.ClientSecret == "" {
		logrus.Fatal("Please set GMAIL_CLIENT_ID and GMAIL_CLIENT_SECRET environment variables")
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.Mailbox.ClientID,
		ClientSecret: cfg.Mailbox.ClientSecret,
		Scopes:       credential.GmailScopes,
		Endpoint:     google.Endpoint,
		RedirectURL:  "http://localhost:8080/callback",
	}

	authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Printf("Go to the following link in your browser: %v\n", authURL)
	fmt.Println("\nAfter authorization, you'll be redirected to a URL. Copy the 'code' parameter from that URL.")

	var authCode string
	fmt.Print("\nEnter the authorization code: ")
	if _, err := fmt.Scan(&authCode); err != nil {
		logrus.Fatalf("Unable to read authorization code: %v", err)
	}

	tok, err := oauthConfig.Exchange(context.Background(), authCode)
	if err != nil {
		logrus.Fatalf("Unable to retrieve token from web: %v", err)
	}

	ring, err := credential.OpenKeyring(cfg.Credential)
	if err != nil {
		logrus.Fatalf("Unable to open keyring: %v", err)
	}
	if err := credential.NewKeyringStore(ring, "").Save(tok); err != nil {
		logrus.Fatalf("Unable to store token: %v", err)
	}

	fmt.Printf("\nToken stored in keyring service %q (expires %v).\n", cfg.Credential.ServiceName, tok.Expiry)
	fmt.Println("rulemate will refresh it automatically from now on.")
}
