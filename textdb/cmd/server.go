// Copyright (C) 2016  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package cmd

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/acoustid/go-textindex/textdb"
	"github.com/acoustid/go-textindex/textdb/server"
	"github.com/acoustid/go-textindex/util/vfs"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"gopkg.in/urfave/cli.v1"
)

var serverCommand = cli.Command{
	Name:  "server",
	Usage: "Run the index service",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "host", Value: "localhost", Usage: "address on which to listen"},
		cli.IntFlag{Name: "port", Value: 7765, Usage: "port number on which to listen"},
		cli.IntFlag{Name: "metrics-port", Usage: "serve /metrics on a separate port (default: on the API port)"},
	},
	Action: runServer,
}

func runServer(ctx *cli.Context) error {
	var db *textdb.DB
	if ctx.GlobalString("dbpath") == "" {
		opts, err := loadOptions(ctx)
		if err != nil {
			return err
		}
		log.Printf("no --dbpath given, keeping the index only in memory")
		db, err = textdb.Open(vfs.CreateMemDir(), true, opts)
		if err != nil {
			return errors.Wrap(err, "unable to open the index")
		}
	} else {
		var err error
		db, err = openDB(ctx)
		if err != nil {
			return err
		}
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := server.NewMetrics(reg)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	group, groupCtx := errgroup.WithContext(runCtx)

	host := ctx.String("host")
	group.Go(func() error {
		addr := net.JoinHostPort(host, strconv.Itoa(ctx.Int("port")))
		return server.ListenAndServe(groupCtx, addr, server.Handler(db, metrics))
	})
	if port := ctx.Int("metrics-port"); port != 0 {
		group.Go(func() error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			return server.ListenAndServe(groupCtx, net.JoinHostPort(host, strconv.Itoa(port)), mux)
		})
	}

	err := group.Wait()
	if err == http.ErrServerClosed {
		err = nil
	}
	return err
}
