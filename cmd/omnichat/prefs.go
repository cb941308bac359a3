package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/avelkov/omnichat/internal/store"
)

func newPrefsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change preferences",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print current preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.settings.GetPreferences(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("theme: %s\nfont-size: %s\nstream: %t\n", p.Theme, p.FontSize, p.StreamResponses)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <theme|font-size|stream> <value>",
		Short: "Change one preference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.settings.GetPreferences(cmd.Context())
			if err != nil {
				return err
			}
			switch args[0] {
			case "theme":
				p.Theme = args[1]
			case "font-size":
				p.FontSize = args[1]
			case "stream":
				v, err := strconv.ParseBool(args[1])
				if err != nil {
					return errors.New("stream takes true or false")
				}
				p.StreamResponses = v
			default:
				return errors.Errorf("unknown preference %s", args[0])
			}
			return a.settings.Put(cmd.Context(), store.SettingPreferences, p)
		},
	})

	return cmd
}
