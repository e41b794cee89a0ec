package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/killallgit/chatnote/pkg/api"
	"github.com/killallgit/chatnote/pkg/config"
	"github.com/spf13/cobra"
)

func authCommand(use, short string, register bool) *cobra.Command {
	c := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				fmt.Fprint(a.out, "password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = strings.TrimSpace(line)
			}

			creds := api.Credentials{Email: email, Password: password}
			login := a.client.Login
			if register {
				login = a.client.Register
			}
			res, err := login(cmd.Context(), creds)
			if err != nil {
				return err
			}

			a.remember(func(st *config.State) {
				st.Token = res.Token
				st.Email = email
			})
			fmt.Fprintf(a.out, "logged in as %s\n", email)
			return nil
		},
	}
	c.Flags().StringP("email", "e", "", "account email")
	c.Flags().StringP("password", "p", "", "account password (read from stdin when empty)")
	c.MarkFlagRequired("email")
	return c
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.UpdateState(config.StatePath(), func(st *config.State) { st.Token = "" })
		return err
	},
}

func init() {
	rootCmd.AddCommand(authCommand("login", "Log in and store the session token", false))
	rootCmd.AddCommand(authCommand("register", "Create an account and log in", true))
	rootCmd.AddCommand(logoutCmd)
}
