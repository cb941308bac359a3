package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProviderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Manage provider credentials",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <name> <api-key>",
		Short: "Store an API key (encrypted at rest)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.creds.Set(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("stored key for %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <name>",
		Short: "Remove a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.creds.Remove(cmd.Context(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "use <name>",
		Short: "Select the active provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.creds.SetActive(cmd.Context(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "List stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := a.creds.List(cmd.Context())
			if err != nil {
				return err
			}
			active, err := a.creds.Active(cmd.Context())
			if err != nil {
				return err
			}
			for _, info := range infos {
				marker := " "
				if info.Name == active {
					marker = "*"
				}
				fmt.Printf("%s %-12s %s  added %s\n", marker, info.Name, info.Key, info.AddedAt.Format("2006-01-02"))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Validate the active provider's credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result := a.svc.TestConnection(cmd.Context())
			if result.Success {
				fmt.Println(result.Message)
				return nil
			}
			fmt.Printf("connection failed: %s\n", result.Message)
			return nil
		},
	})

	return cmd
}
