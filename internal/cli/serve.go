package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/lithammer/dedent"
	"github.com/spf13/cobra"

	"github.com/junbin-yang/statesurf/internal/server"
	"github.com/junbin-yang/statesurf/pkg/config"
	"github.com/junbin-yang/statesurf/pkg/lifecycle"
	"github.com/junbin-yang/statesurf/pkg/logger"
	sm "github.com/junbin-yang/statesurf/pkg/statemachine"
	"github.com/junbin-yang/statesurf/pkg/statemachine/store"
)

const (
	pAddr    = "addr"
	pPersist = "persist"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve (-i FILE | -b NAME) [--addr HOST:PORT] [--persist]",
		Short: "Serve machine sessions of one chart over HTTP",
		Long: strings.Trim(dedent.Dedent(`
			serve runs any number of named sessions of one chart, each driven
			by its own event queue, and exposes them over HTTP:

			  PUT    /machines/{id}                 create and start a session
			  POST   /machines/{id}/events/{event}  dispatch and wait
			  GET    /machines/{id}/calls           callbacks since the last read
			  POST   /events/{event}                dispatch to every session
			  GET    /metrics                       Prometheus metrics

			With --persist sessions are restored from the snapshot store when
			created and saved back on shutdown. The log level follows changes
			to the config file.
		`), "\n"),
		Args: cobra.NoArgs,
		RunE: a.serve,
	}
	addChartFlags(cmd)
	addStoreFlag(cmd)
	f := cmd.Flags()
	f.String(pAddr, "", "Listen address, overrides server.addr")
	f.Bool(pPersist, false, "Restore and save sessions in the snapshot store")
	f.StringSliceP(pAllow, pAllowShort, nil, "Guards that evaluate to true. Eg: guardA,guardB")
	return cmd
}

func (a *app) serve(cmd *cobra.Command, _ []string) error {
	d, c, err := loadChart(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	builtin, _ := f.GetString(pBuiltin)
	allow, _ := f.GetStringSlice(pAllow)

	s := a.settings.Server
	if f.Changed(pAddr) {
		s.Addr, _ = f.GetString(pAddr)
	}
	if f.Changed(pPersist) {
		s.Persist, _ = f.GetBool(pPersist)
	}

	opts := []server.Option{
		server.WithLogger(a.log),
		server.WithQueueSize(a.settings.Machine.QueueSize),
		server.WithNamespace(a.settings.Metrics.Namespace),
	}
	var st *store.Store
	if s.Persist {
		if st, err = a.openStore(cmd); err != nil {
			return err
		}
		opts = append(opts, server.WithStore(st))
	}
	newSessionHooks := func(string) sm.Hooks {
		h, _ := newHooks(builtin, allow)
		return h
	}
	srv := server.New(d, c, newSessionHooks, opts...)
	httpSrv := &http.Server{Handler: srv, ReadHeaderTimeout: 5 * time.Second}

	lm := lifecycle.NewManager(
		lifecycle.WithShutdownTimeout(time.Duration(s.ShutdownTimeout)*time.Second),
		lifecycle.WithLogger(a.log),
	)
	lm.OnStartup(func(context.Context) error {
		a.watchConfig()
		return nil
	})
	_ = lm.AddWorker("http", func(ctx context.Context) error {
		ln, err := net.Listen("tcp", s.Addr)
		if err != nil {
			return err
		}
		a.log.Info("serving", logger.String("addr", ln.Addr().String()), logger.String("chart", c.Name()))
		fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", ln.Addr())
		if err := httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, lifecycle.WithStopFunc(httpSrv.Shutdown))
	lm.OnShutdown(func(context.Context) error {
		a.cfg.Close()
		err := srv.Close()
		if st != nil {
			err = errors.Join(err, st.Close())
		}
		a.log.Info("stopped")
		return err
	})
	return lm.Run(cmd.Context())
}

// watchConfig 配置文件变化时更新日志级别，命令行指定了级别时不跟随
func (a *app) watchConfig() {
	if a.cfg.Path() == "" {
		return
	}
	a.cfg.OnChange(func(old, new *config.Settings) {
		if a.level.set || old.Log.Level == new.Log.Level {
			return
		}
		level, err := logger.ParseLevel(new.Log.Level)
		if err != nil {
			a.log.Warn("log level unchanged", logger.String("level", new.Log.Level), logger.GetError(err))
			return
		}
		a.log.SetLevel(level)
		a.log.Info("log level changed", logger.String("level", level.String()))
	})
	if err := a.cfg.EnableWatch(true); err != nil {
		a.log.Warn("config watch disabled", logger.String("path", a.cfg.Path()), logger.GetError(err))
	}
}
