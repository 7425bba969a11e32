package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	bitfinex "github.com/BookmapAPI/bitfinex-adapter"
	"github.com/BookmapAPI/bitfinex-adapter/config"
	"github.com/BookmapAPI/bitfinex-adapter/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	pair := flag.String("pair", "BTC_USD", "Currency pair to stream")
	raw := flag.Bool("raw", false, "Subscribe the raw order-by-order book instead of the aggregated one")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	adapter, err := bitfinex.New(cfg)
	if err != nil {
		log.WithError(err).Error("Failed to build adapter")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Adapter.Name,
		"pair":    *pair,
	}).Info("starting bitfinex adapter")

	if err := adapter.Start(); err != nil {
		log.WithError(err).Error("Failed to connect")
		os.Exit(1)
	}
	defer adapter.Stop()

	onDepth := func(ev bitfinex.DepthEvent) {
		log.WithFields(logger.Fields{
			"pair":  ev.Pair,
			"bid":   ev.Bid,
			"price": ev.Price,
			"size":  ev.Size,
		}).Info("depth")
	}
	onTrade := func(ev bitfinex.TradeEvent) {
		log.WithFields(logger.Fields{
			"pair":          ev.Pair,
			"price":         ev.Price,
			"size":          ev.Size,
			"bid_aggressor": ev.BidAggressor,
			"exchange_time": ev.Timestamp,
		}).Info("trade")
	}

	if *raw {
		if err := adapter.RawOrderbooks().Subscribe(*pair, bitfinex.PrecisionP0, onDepth); err != nil {
			log.WithError(err).Error("Failed to subscribe raw book")
			os.Exit(1)
		}
	} else {
		if err := adapter.Orderbooks().Subscribe(*pair, bitfinex.PrecisionP0, bitfinex.FrequencyRealtime, 25, onDepth); err != nil {
			log.WithError(err).Error("Failed to subscribe book")
			os.Exit(1)
		}
	}
	if err := adapter.Trades().Subscribe(*pair, onTrade); err != nil {
		log.WithError(err).Error("Failed to subscribe trades")
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
}
