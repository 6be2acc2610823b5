// Package main runs the interactive TaskDeck terminal client.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/taskdeck/internal/client/access"
	"github.com/atinyakov/taskdeck/internal/client/api"
	"github.com/atinyakov/taskdeck/internal/client/chatsync"
	"github.com/atinyakov/taskdeck/internal/client/session"
	"github.com/atinyakov/taskdeck/internal/client/switchboard"
	"github.com/atinyakov/taskdeck/internal/config"
	"github.com/atinyakov/taskdeck/internal/logger"
	"github.com/atinyakov/taskdeck/internal/models"
)

var (
	version   string
	buildDate string
)

// gate checks whether the current session may open a view and prints the
// redirect when it may not. Evaluated on every navigation, never cached.
func gate(req access.Requirement, store *session.Store) bool {
	d := access.CanAccess(req, store)
	if d.Allow {
		return true
	}
	switch d.Redirect {
	case access.ViewLogin:
		fmt.Println("Please log in first (login <username>)")
	default:
		fmt.Println("Admin access required, returning to dashboard")
	}
	return false
}

func prompt(scanner *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

// repl runs the interactive shell loop, accepting commands to manage the
// session, tasks and support chat.
func repl(client *api.Client, store *session.Store, log *zap.Logger) {
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("taskdeck> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "help":
			fmt.Println("Available commands: help, register, login <username>, logout, whoami, users, tasks, add, done <id>, rm <id>, chat, support, exit")
		case "register":
			username := prompt(scanner, "Username: ")
			email := prompt(scanner, "Email: ")
			password := prompt(scanner, "Password: ")
			if _, err := client.Register(ctx, username, email, password); err != nil {
				fmt.Println("Registration failed:", err)
				continue
			}
			fmt.Println("Registered. You can now log in.")
		case "login":
			if len(args) < 2 {
				fmt.Println("Usage: login <username>")
				continue
			}
			password := prompt(scanner, "Password: ")
			if err := store.Login(ctx, args[1], password); err != nil {
				fmt.Println("Login failed:", err)
				continue
			}
			u := store.CurrentUser()
			fmt.Printf("Logged in as %s (%s)\n", u.Username, u.Role)
		case "logout":
			store.Logout()
			fmt.Println("Logged out")
		case "whoami":
			u := store.CurrentUser()
			if u == nil {
				fmt.Println("Not logged in")
				continue
			}
			fmt.Printf("%s <%s> role=%s\n", u.Username, u.Email, u.Role)
		case "users":
			if !gate(access.Admin, store) {
				continue
			}
			users, err := client.AllUsers(ctx)
			if err != nil {
				fmt.Println("Failed to list users:", err)
				continue
			}
			for _, u := range users {
				fmt.Printf("%d\t%s\t%s\t%s\n", u.ID, u.Username, u.Email, u.Role)
			}
		case "tasks":
			if !gate(access.Authenticated, store) {
				continue
			}
			tasks, err := client.Tasks(ctx, api.TaskFilter{})
			if err != nil {
				fmt.Println("Failed to list tasks:", err)
				continue
			}
			if len(tasks) == 0 {
				fmt.Println("No tasks")
				continue
			}
			for _, t := range tasks {
				mark := " "
				if t.Completed {
					mark = "x"
				}
				fmt.Printf("[%s] %d\t%s\n", mark, t.ID, t.Title)
			}
		case "add":
			if !gate(access.Authenticated, store) {
				continue
			}
			title := prompt(scanner, "Title: ")
			if title == "" {
				fmt.Println("Title must not be empty")
				continue
			}
			desc := prompt(scanner, "Description: ")
			task, err := client.CreateTask(ctx, models.Task{Title: title, Description: desc})
			if err != nil {
				fmt.Println("Failed to create task:", err)
				continue
			}
			fmt.Printf("Created task %d\n", task.ID)
		case "done":
			if len(args) < 2 {
				fmt.Println("Usage: done <id>")
				continue
			}
			if !gate(access.Authenticated, store) {
				continue
			}
			id, err := strconv.Atoi(args[1])
			if err != nil {
				fmt.Println("Invalid task id")
				continue
			}
			if err := client.CompleteTask(ctx, id); err != nil {
				fmt.Println("Failed to complete task:", err)
				continue
			}
			fmt.Println("Task completed")
		case "rm":
			if len(args) < 2 {
				fmt.Println("Usage: rm <id>")
				continue
			}
			if !gate(access.Authenticated, store) {
				continue
			}
			id, err := strconv.Atoi(args[1])
			if err != nil {
				fmt.Println("Invalid task id")
				continue
			}
			if err := client.DeleteTask(ctx, id); err != nil {
				fmt.Println("Failed to delete task:", err)
				continue
			}
			fmt.Println("Task deleted")
		case "chat":
			if !gate(access.Authenticated, store) {
				continue
			}
			chatView(ctx, client, log, scanner)
		case "support":
			if !gate(access.Admin, store) {
				continue
			}
			supportView(ctx, client, log, scanner)
		case "exit":
			fmt.Println("Bye")
			return
		default:
			fmt.Println("Unknown command. Type 'help' for a list of commands.")
		}
	}
}

// chatView runs the end-user support chat until "back". The polling engine
// lives only as long as the view.
func chatView(ctx context.Context, client *api.Client, log *zap.Logger, scanner *bufio.Scanner) {
	engine := chatsync.NewEngine(client, log)
	engine.Start(ctx)
	defer engine.Stop()

	printChat(engine.Snapshot())
	fmt.Println("Chat commands: send <message>, refresh, back")

	for {
		fmt.Print("chat> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "back":
			return
		case line == "refresh":
			if err := engine.RefreshConversation(ctx); err != nil {
				fmt.Println("Refresh failed:", err)
			}
			printChat(engine.Snapshot())
		case strings.HasPrefix(line, "send "):
			if err := engine.Send(ctx, strings.TrimPrefix(line, "send ")); err != nil {
				fmt.Println("Send failed:", err)
				continue
			}
			printChat(engine.Snapshot())
		case line == "":
		default:
			fmt.Println("Chat commands: send <message>, refresh, back")
		}
	}
}

func printChat(snap chatsync.Snapshot) {
	if snap.Status.IsOnline {
		fmt.Println("Support is online")
	} else {
		fmt.Printf("Support is offline (last seen %s)\n", snap.Status.LastSeen.Format("Jan 2 15:04"))
	}
	if snap.Unread > 0 {
		fmt.Printf("%d unread message(s)\n", snap.Unread)
	}
	if snap.Err != nil {
		fmt.Println("! ", snap.Err)
	}
	if snap.Conversation == nil || len(snap.Conversation.Messages) == 0 {
		fmt.Println("No messages yet. Say hello!")
		return
	}
	for _, m := range snap.Conversation.Messages {
		author := "you"
		if m.IsAdmin {
			author = "support"
		}
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04"), author, m.Content)
	}
}

// supportView runs the admin switchboard until "back".
func supportView(ctx context.Context, client *api.Client, log *zap.Logger, scanner *bufio.Scanner) {
	board := switchboard.New(client, log)
	board.Start(ctx)
	defer board.Stop()

	printBoard(board.Snapshot())
	fmt.Println("Support commands: list, open <id>, reply <message>, status on|off, back")

	for {
		fmt.Print("support> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "back":
			return
		case "list":
			if err := board.RefreshAll(ctx); err != nil {
				fmt.Println("Refresh failed:", err)
			}
			printBoard(board.Snapshot())
		case "open":
			if len(args) < 2 {
				fmt.Println("Usage: open <id>")
				continue
			}
			id, err := strconv.Atoi(args[1])
			if err != nil {
				fmt.Println("Invalid chat id")
				continue
			}
			if err := board.Select(ctx, id); err != nil {
				fmt.Println("Failed to open chat:", err)
				continue
			}
			printConversation(board.Selected())
		case "reply":
			if len(args) < 2 {
				fmt.Println("Usage: reply <message>")
				continue
			}
			snap := board.Snapshot()
			if snap.SelectedID == 0 {
				fmt.Println("No chat selected")
				continue
			}
			if err := board.Reply(ctx, snap.SelectedID, strings.TrimPrefix(line, "reply ")); err != nil {
				fmt.Println("Reply failed:", err)
				continue
			}
			printConversation(board.Selected())
		case "status":
			if len(args) < 2 || (args[1] != "on" && args[1] != "off") {
				fmt.Println("Usage: status on|off")
				continue
			}
			if err := board.SetPresence(ctx, args[1] == "on"); err != nil {
				fmt.Println("Failed to update status:", err)
			}
			if board.Snapshot().Online {
				fmt.Println("You are shown as online")
			} else {
				fmt.Println("You are shown as offline")
			}
		default:
			fmt.Println("Support commands: list, open <id>, reply <message>, status on|off, back")
		}
	}
}

func printBoard(snap switchboard.Snapshot) {
	if snap.Err != nil {
		fmt.Println("! ", snap.Err)
	}
	if len(snap.Chats) == 0 {
		fmt.Println("No active chats")
		return
	}
	for _, c := range snap.Chats {
		marker := " "
		if c.ID == snap.SelectedID {
			marker = "*"
		}
		unread := models.UnreadCount(c.Messages, true)
		fmt.Printf("%s %d\t%s\t(%d unread)\n", marker, c.ID, c.Title, unread)
	}
}

func printConversation(c *models.Conversation) {
	if c == nil || len(c.Messages) == 0 {
		fmt.Println("No messages")
		return
	}
	for _, m := range c.Messages {
		author := "user"
		if m.IsAdmin {
			author = "you"
		}
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04"), author, m.Content)
	}
}

// main parses command-line flags and starts the shell.
func main() {
	var showVer bool
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	options := config.Parse()

	if showVer {
		fmt.Printf("TaskDeck Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Println("failed to init logger:", err)
		os.Exit(1)
	}

	client := api.New(options.ServerURL, log.Log)
	store := session.New(client, log.Log, options.SessionFile)

	// Restore a persisted session; a rejected token just leaves us anonymous.
	if err := store.Load(context.Background()); err != nil {
		log.Log.Debug("session restore failed", zap.Error(err))
	}
	if u := store.CurrentUser(); u != nil {
		fmt.Printf("Welcome back, %s\n", u.Username)
	}

	repl(client, store, log.Log)
}
