// Command token issues a session token for a user id using the configured
// SESSION_SECRET, for operators and local testing.
package main

import (
	"fmt"
	"os"

	"github.com/JeanGrijp/request-guard/internal/adapters/session"
	"github.com/JeanGrijp/request-guard/internal/config"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: token <user-id>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	signer, err := session.NewSigner(cfg.Security.SessionSecret, cfg.Security.SessionTTL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create signer: %v\n", err)
		os.Exit(1)
	}

	token, err := signer.Issue(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
