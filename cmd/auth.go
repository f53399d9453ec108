package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/calpilot/internal/google"
)

func newAuthCmd() *cobra.Command {
	var (
		account string
		code    string
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize a Google account for the google backend",
		Long: `Authorize calpilot to read and write a Google Calendar.

Run without --code to print the consent URL, then run again with the code
Google shows after consent. The OAuth client is read from the
` + google.EnvClientID + ` and ` + google.EnvClientSecret + ` environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if account == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				account = cfg.Google.Account
			}
			out := cmd.OutOrStdout()

			if code == "" {
				url, err := google.AuthURL(account)
				if err != nil {
					return err
				}
				if google.HasTokenForAccount(account) {
					fmt.Fprintf(out, "Account %q is already authorized. Visit the URL below to replace its token.\n\n", account)
				}
				fmt.Fprintf(out, "Visit this URL to authorize account %q:\n\n%s\n\n", account, url)
				fmt.Fprintf(out, "Then run: calpilot auth --account %s --code <CODE>\n", account)
				return nil
			}

			if err := google.SaveToken(cmd.Context(), account, code); err != nil {
				return err
			}
			fmt.Fprintf(out, "Account %q authorized.\n", account)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Account name for the cached token (default: google.account from the config)")
	cmd.Flags().StringVar(&code, "code", "", "Authorization code returned by Google")
	return cmd
}
