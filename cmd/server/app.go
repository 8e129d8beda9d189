package main

import (
	"context"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/gnuser/red-envelope-server/api/grpcserver"
	"github.com/gnuser/red-envelope-server/api/httpserver"
	"github.com/gnuser/red-envelope-server/domain/envelope"
	"github.com/gnuser/red-envelope-server/domain/ledger"
	"github.com/gnuser/red-envelope-server/domain/matching"
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
	"github.com/gnuser/red-envelope-server/infra/balance"
	"github.com/gnuser/red-envelope-server/infra/config"
	"github.com/gnuser/red-envelope-server/infra/kafka"
	"github.com/gnuser/red-envelope-server/infra/logging"
	"github.com/gnuser/red-envelope-server/infra/metrics"
	"github.com/gnuser/red-envelope-server/infra/rabbit"
	"github.com/gnuser/red-envelope-server/infra/redis"
	entrywal "github.com/gnuser/red-envelope-server/infra/wal/entry"
	exitwal "github.com/gnuser/red-envelope-server/infra/wal/exit"
	"github.com/gnuser/red-envelope-server/jobs/broadcaster"
	"github.com/gnuser/red-envelope-server/service"
	"github.com/gnuser/red-envelope-server/snapshot"
)

func run(parent context.Context, path, envPath string) error {
	cfg, err := config.Load(path, envPath)
	if err != nil {
		return err
	}

	log, err := logging.NewLoggerFromConfig(cfg.Log)
	if err != nil {
		return err
	}
	defer log.AtExit()

	if err := metrics.Setup(prometheus.DefaultRegisterer); err != nil {
		return errors.Wrap(err, "setup metrics")
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------------- Balances + outbox ----------------

	store, err := balance.OpenStore(cfg.Balance.Dir, cfg.AssetPrecs())
	if err != nil {
		return err
	}
	defer store.Close()

	outbox, err := exitwal.Open(cfg.Outbox.Dir)
	if err != nil {
		return err
	}
	defer outbox.Close()
	sink := exitwal.NewSink(outbox)

	// ---------------- Domain ----------------

	engine, err := buildEngine(log, cfg, store, sink)
	if err != nil {
		return err
	}
	envelopes := envelope.NewStore(log, store, sink)

	// ---------------- Entry WAL ----------------

	wal, err := entrywal.Open(entrywal.Config{
		Dir:             cfg.WAL.Dir,
		SegmentSize:     cfg.WAL.SegmentSize,
		SegmentDuration: cfg.WAL.SegmentDuration,
		SyncEveryWrite:  cfg.WAL.SyncEveryWrite,
	})
	if err != nil {
		return err
	}
	defer wal.Close()

	// ---------------- Service ----------------

	opts := []service.Option{service.WithDiscountTokens(cfg.DiscountTokens...)}
	var prices *redis.PriceStore
	if cfg.Redis.Addr != "" {
		prices, err = redis.NewPriceStore(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer prices.Close()
		opts = append(opts, service.WithPriceStore(prices))
	}
	svc := service.NewOrderService(log, engine, envelopes, store, wal, opts...)

	// ---------------- Recovery ----------------

	writer := &snapshot.Writer{Dir: cfg.Snapshot.Dir}
	snap, err := snapshot.Load(writer.Path())
	if err != nil {
		return err
	}
	after, err := svc.RestoreSnapshot(snap)
	if err != nil {
		return err
	}
	if _, err := svc.ReplayFromWAL(cfg.WAL.Dir, after); err != nil {
		return errors.Wrap(err, "replay")
	}
	if prices != nil {
		if err := seedLastPrices(ctx, prices, engine); err != nil {
			return err
		}
	}

	// ---------------- Background jobs ----------------

	pub, err := newPublisher(cfg.Broker)
	if err != nil {
		return err
	}
	if pub != nil {
		bc := broadcaster.New(log, outbox, pub,
			broadcaster.WithInterval(cfg.Broker.Interval),
			broadcaster.WithMaxRetries(cfg.Broker.MaxRetries),
		)
		if err := bc.Start(ctx); err != nil {
			return err
		}
		defer bc.Close()
	} else {
		log.Warn("no broker configured, events stay in the outbox")
	}

	if cfg.Snapshot.Interval > 0 {
		svc.StartSnapshotJob(ctx, writer, cfg.Snapshot.Interval, wal)
	}
	if cfg.Envelope.ExpireInterval > 0 {
		svc.StartExpiryJob(ctx, cfg.Envelope.ExpireInterval)
	}

	// ---------------- Servers ----------------

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return errors.Wrap(err, "listen grpc")
	}
	grpcSrv := grpcserver.NewGRPCServer(grpcserver.NewServer(log, svc))
	httpSrv := httpserver.NewServer(log, svc, cfg.Server.CORSOrigins)

	errc := make(chan error, 2)
	go func() {
		log.Info("grpc server starting", zap.String("addr", cfg.Server.GRPCAddr))
		errc <- grpcSrv.Serve(lis)
	}()
	go func() {
		errc <- httpSrv.Start(cfg.Server.HTTPAddr)
	}()

	log.Info("engine running", zap.Uint64("seq", svc.LastSeq()))
	select {
	case <-ctx.Done():
	case err = <-errc:
		log.Error("server stopped", zap.Error(err))
	}
	stop()

	// ---------------- Shutdown ----------------

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	grpcSrv.GracefulStop()
	if serr := httpSrv.Shutdown(shutdown); serr != nil {
		log.Warn("http shutdown", zap.Error(serr))
	}
	if _, serr := svc.TakeSnapshot(writer); serr != nil {
		log.Error("final snapshot", zap.Error(serr))
	}
	log.Info("engine stopped")
	return err
}

// balances is what the engine settles against and what markets read
// asset precisions from.
type balances interface {
	ledger.Ledger
	orderbook.AssetBook
}

func buildEngine(log *logging.Logger, cfg config.Config, l balances, sink matching.Sink) (*matching.Engine, error) {
	engine := matching.New(log, l, matching.WithSink(sink))
	for _, mc := range cfg.Markets {
		minAmount := num.Zero
		if mc.MinAmount != "" {
			d, err := num.DecimalFromString(mc.MinAmount)
			if err != nil {
				return nil, errors.Wrapf(err, "market %s min_amount", mc.Name)
			}
			minAmount = d
		}
		m, err := orderbook.NewMarket(orderbook.MarketConfig{
			Name:      mc.Name,
			Stock:     mc.Stock,
			Money:     mc.Money,
			StockPrec: mc.StockPrec,
			MoneyPrec: mc.MoneyPrec,
			FeePrec:   mc.FeePrec,
			MinAmount: minAmount,
		}, l)
		if err != nil {
			return nil, errors.Wrapf(err, "market %s", mc.Name)
		}
		engine.AddMarket(m)
	}
	return engine, nil
}

func seedLastPrices(ctx context.Context, prices *redis.PriceStore, engine *matching.Engine) error {
	markets := engine.Markets()
	names := make([]string, len(markets))
	for i, m := range markets {
		names[i] = m.Name
	}
	last, err := prices.LoadLast(ctx, names)
	if err != nil {
		return errors.Wrap(err, "load last prices")
	}
	for market, price := range last {
		engine.SetLastPrice(market, price)
	}
	return nil
}

// newPublisher picks the broker client. It returns nil when no broker
// is configured.
func newPublisher(cfg config.Broker) (broadcaster.Publisher, error) {
	switch cfg.Driver {
	case config.BrokerSarama:
		return kafka.NewSyncProducer(cfg.Brokers, cfg.Topic)
	case config.BrokerKafkaGo:
		return kafka.NewProducer(cfg.Brokers, cfg.Topic), nil
	case config.BrokerAMQP:
		return rabbit.NewPublisher(cfg.URL, cfg.Exchange)
	default:
		return nil, nil
	}
}
