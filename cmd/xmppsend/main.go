// Command xmppsend sends a single chat message and exits, grounded on the
// C original's kfxmpp-send.c utility: read a key=value config file, read
// the message body from stdin, connect, send, disconnect.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/elpescado/kfxmpp"
	"github.com/elpescado/kfxmpp/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "config", "path to the key=value configuration file")
		chat       = flag.Bool("chat", false, "send the message as a chat message")
		subject    = flag.String("subject", "", "message subject")
		verbose    = flag.Bool("v", false, "log connection lifecycle to stderr")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: xmppsend [options] jid")
		flag.PrintDefaults()
	}
	flag.Parse()

	to := flag.Arg(0)
	if to == "" {
		flag.Usage()
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "xmppsend: %v\n", err)
		return 1
	}

	fmt.Fprintln(os.Stderr, "Enter message body. Press Ctrl+D when finished.")
	body, err := io.ReadAll(bufio.NewReader(os.Stdin))
	if err != nil {
		fmt.Fprintf(os.Stderr, "xmppsend: reading message body: %v\n", err)
		return 1
	}

	password := cfg.Password
	if password == "" {
		password, err = promptPassword()
		if err != nil {
			fmt.Fprintf(os.Stderr, "xmppsend: reading password: %v\n", err)
			return 1
		}
	}

	session := kfxmpp.New(cfg.Username, cfg.Server)
	session.SetPassword(password)
	session.SetResource("xmppsend")
	if cfg.ConnectTo != "" {
		session.SetHostAddress(cfg.ConnectTo)
	}
	if *verbose {
		session.SetLogger(kfxmpp.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil))))
	}
	session.SetTimeout(30 * time.Second)

	exitCode := 0
	done := make(chan struct{})

	err = session.Connect(func(s *kfxmpp.Session, connErr error) {
		defer close(done)
		if connErr != nil {
			fmt.Fprintf(os.Stderr, "xmppsend: cannot connect to jabber server: %v\n", connErr)
			exitCode = 1
			return
		}

		msgType := kfxmpp.MessageNormal
		if *chat {
			msgType = kfxmpp.MessageChat
		}
		msg := kfxmpp.Message{
			To:      to,
			Subject: *subject,
			Body:    string(body),
			Type:    msgType,
		}
		if _, sendErr := msg.Send(s); sendErr != nil {
			fmt.Fprintf(os.Stderr, "xmppsend: send failed: %v\n", sendErr)
			exitCode = 1
		}
		s.Disconnect()
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "xmppsend: %v\n", err)
		return 1
	}

	<-done
	return exitCode
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter Jabber password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
