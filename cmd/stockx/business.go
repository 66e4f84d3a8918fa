package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	businessCmd.AddCommand(businessCreateCmd)
	businessCmd.AddCommand(businessListCmd)
	businessCmd.AddCommand(businessInviteCmd)
	businessCmd.AddCommand(businessJoinCmd)
	rootCmd.AddCommand(businessCmd)
}

var businessCmd = &cobra.Command{
	Use:   "business",
	Short: "Manage businesses and invites",
}

var businessCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a business",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		business, err := client.Businesses().Create(ctx, args[0])
		if err != nil {
			return err
		}
		if business != nil {
			fmt.Printf("Created business %s (%s)\n", business.Name, business.ID)
		}
		return nil
	},
}

var businessListCmd = &cobra.Command{
	Use:   "list",
	Short: "List owned and joined businesses",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		list, err := client.Businesses().List(ctx)
		if err != nil {
			return err
		}
		fmt.Println("Owned:")
		for _, b := range list.Owned {
			fmt.Printf("  %-10s %s\n", b.ID, b.Name)
		}
		fmt.Println("Joined:")
		for _, b := range list.Joined {
			fmt.Printf("  %-10s %s\n", b.ID, b.Name)
		}
		return nil
	},
}

var businessInviteCmd = &cobra.Command{
	Use:   "invite <business-id>",
	Short: "Generate an invite code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		invite, err := client.Businesses().Invite(ctx, args[0])
		if err != nil {
			return err
		}
		if invite != nil {
			fmt.Printf("Invite code: %s\n", invite.Code)
		}
		return nil
	},
}

var businessJoinCmd = &cobra.Command{
	Use:   "join <code>",
	Short: "Join a business via invite code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closer, err := newClient()
		if err != nil {
			return err
		}
		defer closer()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		business, err := client.Businesses().Join(ctx, args[0])
		if err != nil {
			return err
		}
		if business != nil {
			fmt.Printf("Joined %s\n", business.Name)
		}
		return nil
	},
}
