package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTestMessageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test-message",
		Short: "Send a Twilio test SMS to TEST_PHONE_NUMBER",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client, err := newTwilio(cfg)
			if err != nil {
				return err
			}

			receipt, err := client.SendTestMessage(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "sent %s (%s) to %s\n", receipt.SID, receipt.Status, receipt.To)
			return err
		},
	}
}
