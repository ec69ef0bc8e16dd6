// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package cmd

import (
	"github.com/acoustid/go-textindex/index"
	"github.com/acoustid/go-textindex/textdb"
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"
)

// Commands are the subcommands of the textindex tool.
var Commands = []cli.Command{
	addCommand,
	deleteCommand,
	searchCommand,
	explainCommand,
	optimizeCommand,
	statsCommand,
	serverCommand,
}

// Flags are the global flags the commands read their index settings from.
var Flags = []cli.Flag{
	cli.StringFlag{Name: "dbpath", Usage: "path to the index directory"},
	cli.StringFlag{Name: "config", Usage: "YAML file with index options"},
}

func loadOptions(ctx *cli.Context) (index.Options, error) {
	path := ctx.GlobalString("config")
	if path == "" {
		return index.DefaultOptions(), nil
	}
	opts, err := index.LoadOptions(path)
	if err != nil {
		return opts, errors.Wrap(err, "unable to load the config")
	}
	return opts, nil
}

func openDir(ctx *cli.Context) (vfs.FileSystem, error) {
	path := ctx.GlobalString("dbpath")
	if path == "" {
		return nil, errors.New("missing --dbpath")
	}
	fs, err := vfs.OpenDir(path, true)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open the index directory")
	}
	return fs, nil
}

// openDB opens the index for writing, creating it if the directory has none.
func openDB(ctx *cli.Context) (*textdb.DB, error) {
	opts, err := loadOptions(ctx)
	if err != nil {
		return nil, err
	}
	fs, err := openDir(ctx)
	if err != nil {
		return nil, err
	}
	db, err := textdb.Open(fs, false, opts)
	if errors.Is(err, index.ErrIndexNotFound) {
		db, err = textdb.Open(fs, true, opts)
	}
	if err != nil {
		return nil, errors.Wrap(err, "unable to open the index")
	}
	return db, nil
}

// openReader opens the index for reading only, it does not take the write lock.
func openReader(ctx *cli.Context) (index.Reader, index.Options, error) {
	opts, err := loadOptions(ctx)
	if err != nil {
		return nil, opts, err
	}
	fs, err := openDir(ctx)
	if err != nil {
		return nil, opts, err
	}
	r, err := index.OpenReader(fs, opts)
	if err != nil {
		return nil, opts, errors.Wrap(err, "unable to open the index")
	}
	return r, opts, nil
}
