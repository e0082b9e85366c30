// Command inspect dumps the raw keyspace of a chatrelay database. Handy
// for checking what a live deployment actually stored: friend edges,
// request ledgers, group rows and per-channel message logs.
package main

import (
	"flag"
	"fmt"
	"os"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/store"
)

func main() {
	var (
		path   string
		prefix string
		values bool
	)
	flag.StringVar(&path, "db", "", "path to the pebble database")
	flag.StringVar(&prefix, "prefix", "", "key prefix filter (e.g. friend:, group:, chat:)")
	flag.BoolVar(&values, "values", false, "print stored JSON values as well")
	flag.Parse()
	if path == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}

	logger.InitWithLevel("error")
	if err := store.Open(path); err != nil {
		fmt.Fprintf(os.Stderr, "failed to open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	keys, err := store.ListKeys(prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list keys: %v\n", err)
		os.Exit(1)
	}
	for _, k := range keys {
		if !values {
			fmt.Println(k)
			continue
		}
		v, err := store.GetRaw(k)
		if err != nil {
			fmt.Printf("%s\t<error: %v>\n", k, err)
			continue
		}
		fmt.Printf("%s\t%s\n", k, v)
	}
	fmt.Fprintf(os.Stderr, "%d keys\n", len(keys))
}
