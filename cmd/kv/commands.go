package kv

import (
	"fmt"
	"strconv"

	"github.com/ValentinKolb/mKV/rpc/client"
	"github.com/ValentinKolb/mKV/rpc/common"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value] [key value ...]",
		Short: "Sets the values for one or more keys",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return errors.Wrap(client.ErrInvalidData, "expected key value pairs")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.WriteTokens(toTokens(args)...); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key ...]",
		Short: "Gets the values of one or more keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := rpcClient.Read(toTokens(args)...)
			if err != nil {
				return err
			}
			for i, value := range values {
				if len(value) == 0 {
					fmt.Printf("%s: (not found)\n", args[i])
				} else {
					fmt.Printf("%s: %s\n", args[i], value)
				}
			}
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key ...]",
		Short: "Deletes one or more keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.Delete(toTokens(args)...); err != nil {
				return err
			}
			fmt.Println("deleted successfully")
			return nil
		},
	}
	rangeCmd = &cobra.Command{
		Use:   "range [n] [from-key]",
		Short: "Prints up to n pairs, from the first key or starting at from-key",
		Long:  "Prints up to n pairs. Without from-key the range starts at the first key (or the last key with --desc). With --exclusive from-key itself is skipped.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseUint(args[0], 10, 16)
			if err != nil {
				return errors.Wrap(err, "n must be a number between 0 and 65535")
			}
			desc, _ := cmd.Flags().GetBool("desc")
			exclusive, _ := cmd.Flags().GetBool("exclusive")

			var mode client.RangeMode
			switch {
			case len(args) == 2 && desc:
				mode = client.FromDesc([]byte(args[1]))
			case len(args) == 2:
				mode = client.FromAsc([]byte(args[1]))
			case desc:
				mode = client.End()
			default:
				mode = client.Begin()
			}

			pairs, err := rpcClient.Range(mode, uint16(n), exclusive)
			if err != nil {
				return err
			}
			for _, kv := range pairs {
				printPair(kv)
			}
			return nil
		},
	}
	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Prints all pairs of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pageSize, _ := cmd.Flags().GetUint16("page-size")
			desc, _ := cmd.Flags().GetBool("desc")

			show := func(kv common.KV) error {
				printPair(kv)
				return nil
			}
			if desc {
				return rpcClient.ScanReverse(pageSize, show)
			}
			return rpcClient.Scan(pageSize, show)
		},
	}
	listDBCmd = &cobra.Command{
		Use:   "list-db",
		Short: "Lists all attached databases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := rpcClient.ListDB()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
	currentDBCmd = &cobra.Command{
		Use:   "current-db",
		Short: "Prints the database selected with --db as seen by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := rpcClient.CurrentDB()
			if err != nil {
				return err
			}
			fmt.Println(name)
			return nil
		},
	}
	detachCmd = &cobra.Command{
		Use:   "detach [name]",
		Short: "Removes a database from the server's registry",
		Long:  "Removes a database from the server's registry. Its data stays on disk and connections that selected it keep working until they select something else.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.Detach(args[0]); err != nil {
				return err
			}
			fmt.Println("detached successfully")
			return nil
		},
	}
)

func init() {
	rangeCmd.Flags().Bool("desc", false, "Walk in descending key order")
	rangeCmd.Flags().Bool("exclusive", false, "Skip from-key itself")
	scanCmd.Flags().Uint16("page-size", 100, "Pairs fetched per request")
	scanCmd.Flags().Bool("desc", false, "Walk in descending key order")
}

func toTokens(args []string) [][]byte {
	tokens := make([][]byte, len(args))
	for i, arg := range args {
		tokens[i] = []byte(arg)
	}
	return tokens
}

func printPair(kv common.KV) {
	fmt.Printf("%s: %s\n", kv.Key, kv.Value)
}
