package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	chatCmd.AddCommand(chatListCmd)
	chatCmd.AddCommand(chatMessagesCmd)
	chatCmd.AddCommand(chatSendCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(usersSearchCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "In-app messaging",
}

var chatListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		convos, err := client.Chat().Conversations(ctx)
		if err != nil {
			return err
		}
		if len(convos) == 0 {
			fmt.Println("No conversations.")
			return nil
		}
		for _, c := range convos {
			unread := ""
			if c.UnreadCount > 0 {
				unread = fmt.Sprintf(" (%d unread)", c.UnreadCount)
			}
			fmt.Printf("%-10s %s%s\n", c.ID, c.Title, unread)
		}
		return nil
	},
}

var chatMessagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>",
	Short: "Show messages in a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		messages, err := client.Chat().Messages(ctx, args[0])
		if err != nil {
			return err
		}
		for _, m := range messages {
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt, m.SenderID, m.Body)
		}
		return nil
	},
}

var chatSendCmd = &cobra.Command{
	Use:   "send <conversation-id> <message>",
	Short: "Send a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		msg, err := client.Chat().Send(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if msg != nil {
			fmt.Printf("Sent %s\n", msg.ID)
		}
		return nil
	},
}

var usersSearchCmd = &cobra.Command{
	Use:   "users <query>",
	Short: "Search the user directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		users := client.Users().Search(ctx, args[0])
		if len(users) == 0 {
			fmt.Println("No users found.")
			return nil
		}
		for _, u := range users {
			fmt.Printf("%-10s %-24s %s\n", u.ID, u.Name, u.Email)
		}
		return nil
	},
}
