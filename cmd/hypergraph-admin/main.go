// Command hypergraph-admin is a thin wrapper invoking sqlstore's schema
// and admin operations; it is not part of the persistence core itself.
package main

import (
	"context"
	"os"

	flags "github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/shadowridgedev/atomspace/config"
	"github.com/shadowridgedev/atomspace/sqlstore/driver"
	"github.com/shadowridgedev/atomspace/sqlstore/pool"
	"github.com/shadowridgedev/atomspace/sqlstore/store"
)

var cfg config.Config

func openStore(ctx context.Context) (*store.Store, error) {
	db, err := driver.Open(cfg.Store.URI)
	if err != nil {
		return nil, err
	}
	size := cfg.Store.PoolSize
	if size <= 0 {
		size = pool.Size(cfg.Store.WorkerCount)
	}
	db.SetMaxConnections(size)

	p, err := pool.New(ctx, db, size)
	if err != nil {
		return nil, err
	}
	return store.New(ctx, p, nil, nil)
}

type createTablesCmd struct{}

func (createTablesCmd) Execute(args []string) error {
	s, err := openStore(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()
	return s.CreateTables(context.Background())
}

type killDataCmd struct{}

func (killDataCmd) Execute(args []string) error {
	s, err := openStore(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()
	return s.KillData(context.Background())
}

type renameTablesCmd struct {
	Suffix string `long:"suffix" required:"true" description:"Suffix appended to every table name"`
}

func (c renameTablesCmd) Execute(args []string) error {
	s, err := openStore(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()
	return s.RenameTables(context.Background(), c.Suffix)
}

type statsCmd struct{}

func (statsCmd) Execute(args []string) error {
	s, err := openStore(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()
	return s.PrintStats(context.Background(), os.Stdout)
}

func main() {
	parser := config.NewParser(&cfg)
	parser.AddCommand("create-tables", "Create the hypergraph schema", "", &createTablesCmd{})
	parser.AddCommand("kill-data", "Delete all rows and reseed root spaces", "", &killDataCmd{})
	parser.AddCommand("rename-tables", "Rename every table by a suffix", "", &renameTablesCmd{})
	parser.AddCommand("stats", "Print row counts and IDB occupancy", "", &statsCmd{})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.WithError(err).Fatal("hypergraph-admin failed")
	}
}
