package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"relaychat/internal/config"
	"relaychat/internal/service/app"
	"relaychat/internal/utils/log"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: client <username> <recipient>")
		os.Exit(1)
	}

	username := os.Args[1]
	recipient := os.Args[2]

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatal("load config failed", zap.Error(err))
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		log.Fatal("read password failed", zap.Error(err))
	}

	client := app.NewClient(cfg.ServerHost)
	token, err := client.Login(username, string(password))
	if err != nil {
		// first run: register, then log in
		if rerr := client.Register(username, string(password)); rerr != nil {
			log.Fatal("login failed", zap.Error(err), zap.NamedError("register", rerr))
		}
		token, err = client.Login(username, string(password))
		if err != nil {
			log.Fatal("login failed", zap.Error(err))
		}
	}

	a := app.NewApp(username, recipient)
	if err := a.Run(cfg.ServerHost, token); err != nil {
		log.Fatal("client stopped", zap.Error(err))
	}
}
