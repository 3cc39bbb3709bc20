// ABOUTME: Admin CLI for inspecting and managing conversation ownership
// ABOUTME: Operates directly on the sqlite store used by sage-gateway

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/sageql/sage-gateway/internal/store"
)

const banner = `
 ___  __ _  __ _  ___        __ _  __| |_ __ ___ (_)_ __
/ __|/ _' |/ _' |/ _ \_____ / _' |/ _' | '_ ' _ \| | '_ \
\__ \ (_| | (_| |  __/_____| (_| | (_| | | | | | | | | | |
|___/\__,_|\__, |\___|      \__,_|\__,_|_| |_| |_|_|_| |_|
           |___/
`

func main() {
	dbPath := flag.String("db", getEnv("SAGE_DB", "./data/sage.db"), "Path to the sage-gateway database")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch args[0] {
	case "conversations":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		err = listConversations(ctx, db, args[1])
	case "show":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		err = showConversation(ctx, db, args[1])
	case "delete":
		if len(args) != 3 {
			usage()
			os.Exit(1)
		}
		err = deleteConversation(ctx, db, args[1], args[2])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(banner)
	fmt.Println("Usage: sage-admin [-db PATH] <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  conversations <user>       List a user's conversations")
	fmt.Println("  show <conversation-id>     Show one conversation record")
	fmt.Println("  delete <user> <conv-id>    Delete a conversation record")
}

func listConversations(ctx context.Context, db *store.SQLiteStore, user string) error {
	convs, err := db.ListConversations(ctx, user)
	if err != nil {
		return err
	}

	if len(convs) == 0 {
		fmt.Printf("No conversations for %s\n", user)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCREATED")
	fmt.Fprintln(w, "--\t-----\t-------")
	for _, c := range convs {
		title := c.Title
		if len(title) > 48 {
			title = title[:45] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, title, c.CreatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()

	fmt.Println()
	color.HiBlack("%d conversation(s)", len(convs))
	return nil
}

func showConversation(ctx context.Context, db *store.SQLiteStore, id string) error {
	conv, err := db.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			color.Yellow("Conversation %s not found", id)
			os.Exit(1)
		}
		return err
	}

	bold := color.New(color.Bold)
	bold.Print("ID:       ")
	fmt.Println(conv.ID)
	bold.Print("Owner:    ")
	fmt.Println(conv.UserID)
	bold.Print("Title:    ")
	fmt.Println(conv.Title)
	bold.Print("Created:  ")
	fmt.Println(conv.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	return nil
}

func deleteConversation(ctx context.Context, db *store.SQLiteStore, user, id string) error {
	if err := db.DeleteConversation(ctx, user, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			color.Yellow("No conversation %s owned by %s", id, user)
			os.Exit(1)
		}
		return err
	}
	color.Green("Deleted conversation %s", id)
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
