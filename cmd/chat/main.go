package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/xlzhou/vibechat/internal/config"
	"github.com/xlzhou/vibechat/internal/model/chat"
	"github.com/xlzhou/vibechat/internal/nickname"
	"github.com/xlzhou/vibechat/internal/remote"
	"github.com/xlzhou/vibechat/internal/service/composer"
	"github.com/xlzhou/vibechat/internal/service/view"
	"github.com/xlzhou/vibechat/internal/ui"
)

var nicknameFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:   "chat",
		Short: "VibeChat terminal client",
		Run:   runClient,
	}

	rootCmd.Flags().StringVarP(&nicknameFlag, "nickname", "n", "", "display name for this session (persisted)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runClient(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
	}

	cfg, err := config.LoadClient()
	if err != nil {
		// Missing service configuration is fatal to the session.
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	client := remote.NewClient(cfg.ServerURL, cfg.AppID, cfg.AuthToken, cfg.Timeout)

	identity, err := client.Authenticate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign-in failed: %v\n", err)
		os.Exit(1)
	}
	log.Printf("[auth] signed in as %s", identity.UserID)

	msgSub, err := client.Subscribe(ctx, chat.CollectionMessages)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot subscribe to messages: %v\n", err)
		os.Exit(1)
	}
	defer msgSub.Cancel()

	typingSub, err := client.Subscribe(ctx, chat.CollectionTyping)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot subscribe to typing status: %v\n", err)
		os.Exit(1)
	}
	defer typingSub.Cancel()

	errs := make(chan error, 2)
	go forwardErr(msgSub, errs)
	go forwardErr(typingSub, errs)

	rec := view.NewReconciler(identity.UserID)
	go rec.Run(ctx, msgSub.Snapshots(), typingSub.Snapshots(), errs)

	comp := composer.New(client)
	defer comp.Close()
	comp.SetIdentity(identity.UserID)

	name := nicknameFlag
	if name == "" {
		name = nickname.Load()
	} else if err := nickname.Save(name); err != nil {
		log.Printf("warning: could not persist nickname: %v", err)
	}
	comp.SetNickname(name)

	if err := ui.New(rec, comp, identity.UserID, os.Stdin, os.Stdout).Run(ctx); err != nil {
		log.Fatalf("client error: %v", err)
	}
}

func forwardErr(sub *remote.Subscription, errs chan<- error) {
	if err, ok := <-sub.Err(); ok {
		errs <- err
	}
}
