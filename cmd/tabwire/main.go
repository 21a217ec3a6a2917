package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tabwire/tabwire/internal/cdp"
	"github.com/tabwire/tabwire/internal/config"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	target := flag.String("url", "", "Websocket debugger URL (overrides config)")
	session := flag.String("session", "", "Session id to stamp on commands")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *target != "" {
		cfg.Target.URL = *target
	}
	if cfg.Target.URL == "" {
		log.Fatal("No target: pass -url or set target.url in the config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	dialCtx, dialCancel := context.WithTimeout(ctx, cfg.Client.DialTimeout)
	client, err := cdp.Connect(dialCtx, cfg.Target.URL, cdp.ConnOptions{
		DialTimeout:  cfg.Client.DialTimeout,
		WriteTimeout: cfg.Client.WriteTimeout,
		PingInterval: cfg.Client.PingInterval,
		PongTimeout:  cfg.Client.PongTimeout,
	})
	dialCancel()
	if err != nil {
		log.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	if *session != "" {
		client.UseSession(*session)
	}

	sub := client.On("Network.requestWillBeSent", func(ev cdp.Event) {
		log.Printf("event %s session=%q %s", ev.Method, ev.SessionID, ev.Params)
	})
	defer client.Off(sub)

	call := func(method string, params any) {
		cmdCtx, cmdCancel := context.WithTimeout(ctx, cfg.Client.CommandTimeout)
		defer cmdCancel()
		result, err := client.Call(cmdCtx, method, params)
		if err != nil {
			log.Fatalf("%s failed: %v", method, err)
		}
		log.Printf("%s -> %s", method, result)
	}

	call("Browser.getVersion", nil)
	call("Network.enable", nil)
	call("Page.enable", nil)

	log.Printf("Waiting for network idle (window %v, timeout %v)", cfg.Wait.IdleWindow, cfg.Wait.IdleTimeout)
	if err := client.WaitForNetworkIdle(ctx, cfg.Wait.IdleWindow, cfg.Wait.IdleTimeout); err != nil {
		log.Fatalf("Network never went idle: %v", err)
	}
	log.Println("Network idle")
}
