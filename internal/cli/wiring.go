package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdslog "log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/weave"
	"github.com/unkn0wn-root/weave/cache"
	"github.com/unkn0wn-root/weave/codec"
	"github.com/unkn0wn-root/weave/examples/userservice"
	"github.com/unkn0wn-root/weave/genstore"
	asynchook "github.com/unkn0wn-root/weave/hooks/async"
	logruslog "github.com/unkn0wn-root/weave/log/logrus"
	slogger "github.com/unkn0wn-root/weave/log/slog"
	zaplog "github.com/unkn0wn-root/weave/log/zap"
	"github.com/unkn0wn-root/weave/otelaspect"
	pr "github.com/unkn0wn-root/weave/provider"
	"github.com/unkn0wn-root/weave/provider/bigcache"
	redisprov "github.com/unkn0wn-root/weave/provider/redis"
	"github.com/unkn0wn-root/weave/provider/ristretto"
	"github.com/unkn0wn-root/weave/sloghooks"
)

type wiringFlags struct {
	logger    string
	level     string
	provider  string
	codec     string
	redisAddr string
	prefix    string
	ttl       time.Duration
	telemetry string
}

// demo is a fully wired user service plus everything that must be closed.
type demo struct {
	svc     userservice.Service
	store   *userservice.Store
	manager *cache.Manager
	log     weave.Logger
	closers []func(context.Context) error
}

func (d *demo) Close(ctx context.Context) error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i](ctx))
	}
	return errors.Join(errs...)
}

func (f wiringFlags) newLogger(w io.Writer) (weave.Logger, *stdslog.Logger, error) {
	switch strings.ToLower(f.logger) {
	case "logrus":
		lvl, err := logrus.ParseLevel(f.level)
		if err != nil {
			return nil, nil, err
		}
		l := logrus.New()
		l.SetOutput(w)
		l.SetLevel(lvl)
		return logruslog.New(l), nil, nil
	case "zap":
		lvl, err := zapcore.ParseLevel(f.level)
		if err != nil {
			return nil, nil, err
		}
		core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(w), lvl)
		return zaplog.New(zap.New(core)), nil, nil
	case "slog":
		var lvl stdslog.Level
		if err := lvl.UnmarshalText([]byte(f.level)); err != nil {
			return nil, nil, err
		}
		l := stdslog.New(stdslog.NewTextHandler(w, &stdslog.HandlerOptions{Level: lvl}))
		return slogger.New(l), l, nil
	default:
		return nil, nil, fmt.Errorf("unknown logger %q", f.logger)
	}
}

func (f wiringFlags) newCodec() (codec.Codec, error) {
	switch strings.ToLower(f.codec) {
	case "msgpack":
		return codec.Msgpack{}, nil
	case "json":
		return codec.JSON{}, nil
	case "cbor":
		return codec.NewCBOR(true)
	default:
		return nil, fmt.Errorf("unknown codec %q", f.codec)
	}
}

func (f wiringFlags) defaultProvider() (cache.Provider, error) {
	switch strings.ToLower(f.provider) {
	case "memory":
		return cache.Memory, nil
	case "distributed":
		return cache.Distributed, nil
	default:
		return 0, fmt.Errorf("unknown provider %q", f.provider)
	}
}

// build wires the user service: otel aspect first, then the cache aspect.
func (f wiringFlags) build(logOut io.Writer) (*demo, error) {
	d := &demo{}
	log, slogL, err := f.newLogger(logOut)
	if err != nil {
		return nil, err
	}
	d.log = log

	c, err := f.newCodec()
	if err != nil {
		return nil, err
	}
	p, err := f.defaultProvider()
	if err != nil {
		return nil, err
	}

	mem, err := ristretto.NewStore(ristretto.DefaultConfig())
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, mem.Close)

	var (
		dist pr.Provider
		gens genstore.GenStore
	)
	if f.redisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: f.redisAddr})
		rp, err := redisprov.New(redisprov.Config{Client: rdb, Namespace: "weavedemo:", CloseClient: true})
		if err != nil {
			_ = d.Close(context.Background())
			return nil, err
		}
		dist, gens = rp, genstore.NewRedisGenStoreWithTTL(rdb, "weavedemo", 24*time.Hour)
	} else {
		bp, err := bigcache.New(bigcache.Config{LifeWindow: time.Hour})
		if err != nil {
			_ = d.Close(context.Background())
			return nil, err
		}
		dist, gens = bp, genstore.NewLocalGenStore(time.Minute, time.Hour)
	}
	d.closers = append(d.closers, dist.Close, gens.Close)

	var hooks cache.Hooks = cache.NopHooks{}
	if slogL != nil {
		ah := asynchook.New(sloghooks.New(slogL, sloghooks.Options{HitEvery: 10}), 1, 1000)
		d.closers = append(d.closers, func(context.Context) error { ah.Close(); return nil })
		hooks = ah
	}

	setup := cache.NewSetup().DefaultProvider(p)
	if f.ttl != 0 {
		setup.DefaultTTL(f.ttl)
	}
	if f.prefix != "" {
		setup.KeyPrefix(f.prefix)
	}

	otelOpts, shutdown, err := f.telemetryOptions(logOut)
	if err != nil {
		_ = d.Close(context.Background())
		return nil, err
	}
	d.closers = append(d.closers, shutdown...)
	otelOpts.Logger = log

	reg := weave.NewRegistry(weave.RegistryOptions{Logger: log})
	chain := userservice.Chain(reg)
	if err := chain.Configure(otelaspect.Factory(otelOpts)); err != nil {
		_ = d.Close(context.Background())
		return nil, err
	}
	opts := cache.Options{
		Memory:      mem,
		Distributed: dist,
		Codec:       c,
		Generations: gens,
		Logger:      log,
		Hooks:       hooks,
	}
	if err := chain.Configure(cache.Factory(opts, setup)); err != nil {
		_ = d.Close(context.Background())
		return nil, err
	}

	d.manager, err = cache.ManagerFor[userservice.Service, *userservice.Store](reg)
	if err != nil {
		_ = d.Close(context.Background())
		return nil, err
	}
	d.store = userservice.NewStore()
	d.svc = userservice.Wrap(chain, d.store)
	return d, nil
}
