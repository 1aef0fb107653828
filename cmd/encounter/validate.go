package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/encounter"
)

func newValidateCmd() *cobra.Command {
	var rosterPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a roster file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			roster, err := encounter.LoadFile(rosterPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Roster is valid: %d units (%d Player, %d Opponent), map radius %d\n",
				len(roster.Units),
				countSide(roster, core.SidePlayer),
				countSide(roster, core.SideOpponent),
				roster.Config.MapRadius)
			return nil
		},
	}
	cmd.Flags().StringVar(&rosterPath, "roster", "", "Roster YAML file")
	_ = cmd.MarkFlagRequired("roster")
	return cmd
}

func countSide(r *encounter.Roster, side core.GameSide) int {
	n := 0
	for _, u := range r.Units {
		if u.Side == side {
			n++
		}
	}
	return n
}
