// Command grebedb is a thin inspection tool over a database directory: it
// does not attempt the import/export or interactive inspection surface a
// full-featured tool would provide, only enough to open, read, write, and
// verify a database from a shell.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nutelladb/grebedb"
)

var (
	dbPath      string
	keysPerNode int
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "grebedb",
		Short: "Inspect and manipulate a grebedb database directory",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "path to the database directory")
	root.MarkPersistentFlagRequired("db")

	root.AddCommand(openCmd(), getCmd(), putCmd(), removeCmd(), verifyCmd())
	return root
}

func openDB(mode grebedb.OpenMode) (*grebedb.Database, error) {
	opts := grebedb.NewOptions()
	opts.OpenMode = mode
	if keysPerNode > 0 {
		opts.KeysPerNode = keysPerNode
	}
	return grebedb.OpenPath(dbPath, opts)
}

func openCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Create the database directory if needed and report its state",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(grebedb.OpenCreateOrOpen)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Printf("opened %s: %d key-value pairs\n", dbPath, db.KeyValueCount())
			return nil
		},
	}
	cmd.Flags().IntVar(&keysPerNode, "keys-per-node", 0, "fill factor to use if creating a new database")
	return cmd
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print the value stored for key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(grebedb.OpenLoadOnly)
			if err != nil {
				return err
			}
			defer db.Close()
			value, ok, err := db.Get([]byte(args[0]))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("(not found)")
				return nil
			}
			fmt.Println(hex.EncodeToString(value))
			return nil
		},
	}
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Insert or overwrite key with value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(grebedb.OpenCreateOrOpen)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Put([]byte(args[0]), []byte(args[1])); err != nil {
				return err
			}
			return db.Flush()
		},
	}
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [key]",
		Short: "Delete key if present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(grebedb.OpenLoadOnly)
			if err != nil {
				return err
			}
			defer db.Close()
			removed, err := db.Remove([]byte(args[0]))
			if err != nil {
				return err
			}
			if err := db.Flush(); err != nil {
				return err
			}
			if removed {
				fmt.Println("removed")
			} else {
				fmt.Println("(not found)")
			}
			return nil
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Walk the tree and every page file, reporting the first inconsistency",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(grebedb.OpenLoadOnly)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Verify(); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}
