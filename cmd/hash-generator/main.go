// Command hash-generator prints the bcrypt hash of a delivery worker key,
// suitable for worker.api_key_hash (NUDGE_WORKER_API_KEY_HASH).
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/phrazzld/nudge-api/internal/service/auth"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:          "hash-generator [worker-key]",
		Short:        "Print the bcrypt hash of a worker key (reads stdin when no argument is given)",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no worker key given")
				}
				key = strings.TrimSpace(line)
			}

			hash, err := auth.HashKey(key, cost)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}
