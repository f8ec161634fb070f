package main

import (
	"context"
	"flag"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/deptagency/algomart-sub001/config"
	"github.com/deptagency/algomart-sub001/db"
	"github.com/deptagency/algomart-sub001/log"
	"github.com/deptagency/algomart-sub001/mail"
	"github.com/deptagency/algomart-sub001/tasks"
)

var enableMail bool

func init() {
	flag.BoolVar(&enableMail, "mail", false, "If mail alert is enabled")
}

func main() {
	flag.Parse()

	log.Init()
	config.Load(true)
	db.Init()
	defer db.Close()
	mail.Init(enableMail)

	defer mail.AlertIfErr()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tasks.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("Shutting down")
}
