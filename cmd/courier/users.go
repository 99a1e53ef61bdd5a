package main

import (
	"github.com/spf13/cobra"
)

func usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List other registered clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsers()
		},
	}
}

func runUsers() error {
	_, c, err := connect()
	if err != nil {
		return err
	}

	users, err := c.ListUsers()
	if err != nil {
		return err
	}

	if len(users) == 0 {
		info("no other clients registered")
		return nil
	}

	for _, u := range users {
		info("%s  %s", u.ID, u.Name)
	}
	return nil
}
