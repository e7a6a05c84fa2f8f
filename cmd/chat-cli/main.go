// Package main provides a simple terminal client for the relay server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"chatrelay/client"
)

func printEntry(e client.Entry) {
	role := "you"
	if e.IsBot {
		role = "bot"
	}
	fmt.Printf("\n[%s %s] %s\n> ", e.CreatedAt.Format("15:04"), role, e.Text)
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "relay server address")
	token := flag.String("token", "", "session token")
	flag.Parse()

	log.SetFlags(log.Ltime)

	if *token == "" {
		log.Fatal("a session token is required (-token)")
	}

	c := client.New(*addr, *token)
	c.OnEntry = printEntry
	defer c.Close()

	ctx := context.Background()

	fmt.Printf("Connecting to %s...\n", *addr)
	if err := c.Subscribe(ctx); err != nil {
		log.Fatalf("Subscribe failed: %v", err)
	}

	c.Load(ctx)

	fmt.Println("\nType a message and press Enter to send.")
	fmt.Println("Commands: /quit to exit")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		select {
		case <-interrupt:
			fmt.Println("\nInterrupted")
			return
		default:
			if !scanner.Scan() {
				return
			}

			input := strings.TrimSpace(scanner.Text())
			if input == "" {
				continue
			}

			if input == "/quit" {
				fmt.Println("Bye!")
				return
			}

			if _, err := c.Send(ctx, input); err != nil {
				log.Printf("Send error: %v", err)
			}
		}
	}
}
