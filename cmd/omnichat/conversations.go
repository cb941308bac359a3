package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConversationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Manage stored conversations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.LoadAll(cmd.Context()); err != nil {
				return err
			}
			for _, c := range a.store.Conversations() {
				fmt.Printf("%s  %-50s  %3d messages  %s\n",
					c.ID, c.Title, c.MessageCount, c.CreatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Set a conversation's title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.LoadAll(cmd.Context()); err != nil {
				return err
			}
			return a.store.Rename(cmd.Context(), args[0], args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a conversation and all its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.LoadAll(cmd.Context()); err != nil {
				return err
			}
			return a.store.Delete(cmd.Context(), args[0])
		},
	})

	return cmd
}
