package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/junbin-yang/statesurf/pkg/logger"
	"github.com/junbin-yang/statesurf/pkg/machines/fsm"
	"github.com/junbin-yang/statesurf/pkg/machines/hsm"
	sm "github.com/junbin-yang/statesurf/pkg/statemachine"
	"github.com/junbin-yang/statesurf/pkg/statemachine/store"
)

const (
	pEvents      = "events"
	pEventsShort = "e"
	pAllow       = "allow"
	pAllowShort  = "a"
	pAsync       = "async"
	pSave        = "save"
	pRestore     = "restore"
	pMetrics     = "metrics"
	pQuiet       = "quiet"
	pQuietShort  = "q"
)

// SimParams simulate 命令参数
type SimParams struct {
	Events  []sm.Event
	Allow   []string // 放行的守卫，内置 hsm 使用自己的 foo 语义
	Async   bool     // 通过 AsyncMachine 的队列分发
	Save    string   // 结束后保存快照的 key
	Restore string   // 开始前恢复快照的 key
	Metrics bool     // 输出指标
	Quiet   bool     // 不输出回调
}

func addSimFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceP(pEvents, pEventsShort, nil, "Events to dispatch in order. Eg: G,I,A")
	f.StringSliceP(pAllow, pAllowShort, nil, "Guards that evaluate to true. Eg: guardA,guardB")
	f.Bool(pAsync, false, "Dispatch through the async event queue")
	f.String(pRestore, "", "Restore the machine from this snapshot key first")
	f.Bool(pMetrics, false, "Print dispatch metrics at the end")
	f.BoolP(pQuiet, pQuietShort, false, "Do not print callbacks")
}

func ParseSimParams(cmd *cobra.Command) SimParams {
	f := cmd.Flags()
	events, _ := f.GetStringSlice(pEvents)
	allow, _ := f.GetStringSlice(pAllow)
	async, _ := f.GetBool(pAsync)
	restore, _ := f.GetString(pRestore)
	metrics, _ := f.GetBool(pMetrics)
	quiet, _ := f.GetBool(pQuiet)

	p := SimParams{
		Allow:   allow,
		Async:   async,
		Restore: strings.TrimSpace(restore),
		Metrics: metrics,
		Quiet:   quiet,
	}
	if f.Lookup(pSave) != nil {
		save, _ := f.GetString(pSave)
		p.Save = strings.TrimSpace(save)
	}
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			p.Events = append(p.Events, sm.Event(e))
		}
	}
	return p
}

func newSimulateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate (-i FILE | -b NAME) -e E1,E2",
		Short: "Dispatch events and print every callback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.simulate(cmd, ParseSimParams(cmd))
		},
	}
	addChartFlags(cmd)
	addSimFlags(cmd)
	addStoreFlag(cmd)
	cmd.Flags().String(pSave, "", "Save a snapshot under this key at the end")
	return cmd
}

// newHooks 内置状态图使用各自的宿主，文件状态图按 allow 放行守卫
func newHooks(builtin string, allow []string) (sm.Hooks, *sm.Recorder) {
	switch builtin {
	case hsm.Name:
		h := hsm.NewHost()
		return h, &h.Recorder
	case fsm.Name:
		guards := make([]sm.GuardID, len(allow))
		for i, g := range allow {
			guards[i] = sm.GuardID(g)
		}
		h := fsm.NewHost(guards...)
		return h, &h.Recorder
	}

	allowed := make(map[sm.GuardID]bool, len(allow))
	for _, g := range allow {
		allowed[sm.GuardID(g)] = true
	}
	r := &sm.Recorder{
		GuardFn: func(_ sm.State, _ sm.Event, guard sm.GuardID) bool {
			return allowed[guard]
		},
	}
	return r, r
}

func (a *app) simulate(cmd *cobra.Command, p SimParams) error {
	_, c, err := loadChart(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if p.Quiet {
		out = io.Discard
	}

	builtin, _ := cmd.Flags().GetString(pBuiltin)
	hooks, rec := newHooks(builtin, p.Allow)
	rec.OnCall = func(call sm.Call) {
		fmt.Fprintf(out, "  %s\n", call)
	}

	history := sm.NewHistory(a.settings.Machine.HistoryLimit)
	metrics := sm.NewMetrics()
	m := sm.NewMachine(c, hooks, sm.WithLogger(a.log), sm.WithObserver(history, metrics))

	var st *store.Store
	if p.Save != "" || p.Restore != "" {
		if st, err = a.openStore(cmd); err != nil {
			return err
		}
		defer st.Close()
	}
	if p.Restore != "" {
		snap, err := st.Load(p.Restore)
		if err != nil {
			return fmt.Errorf("restore %s: %w", p.Restore, err)
		}
		if err := m.Restore(snap); err != nil {
			return fmt.Errorf("restore %s: %w", p.Restore, err)
		}
		fmt.Fprintf(out, "restored %s: %s\n", p.Restore, m.State())
	}

	for _, e := range p.Events {
		if !c.HasEvent(e) {
			a.log.Warn("event not declared by chart", logger.String("chart", c.Name()), logger.String("event", string(e)))
		}
	}

	run := a.runSync
	if p.Async {
		run = a.runAsync
	}
	if err := run(cmd, m, p.Events, out); err != nil {
		return err
	}

	if p.Save != "" {
		snap := m.Snapshot(map[string]string{"source": chartSource(cmd)})
		if err := st.Save(p.Save, snap); err != nil {
			return err
		}
		if err := st.AppendHistory(p.Save, history.Entries()...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s: %s\n", p.Save, snap.State)
	}

	if p.Metrics {
		return a.printMetrics(cmd.OutOrStdout(), c.Name(), metrics)
	}
	return nil
}

func (a *app) runSync(_ *cobra.Command, m *sm.Machine, events []sm.Event, out io.Writer) error {
	if !m.Started() && !m.Terminated() {
		fmt.Fprintln(out, "> start")
		if err := m.Start(); err != nil {
			return err
		}
		fmt.Fprintf(out, "= %s\n", m.State())
	}
	for _, e := range events {
		fmt.Fprintf(out, "> %s\n", e)
		if err := m.Dispatch(e); err != nil {
			return err
		}
		fmt.Fprintf(out, "= %s\n", m.State())
	}
	return nil
}

// runAsync 事件经过队列由单独的协程分发
func (a *app) runAsync(cmd *cobra.Command, m *sm.Machine, events []sm.Event, out io.Writer) error {
	am := sm.NewAsyncMachine(m, a.settings.Machine.QueueSize)
	am.Start()
	defer am.Stop()

	var err error
	am.Do(func(m *sm.Machine) {
		if !m.Started() && !m.Terminated() {
			fmt.Fprintln(out, "> start")
			err = m.Start()
			fmt.Fprintf(out, "= %s\n", m.State())
		}
	})
	if err != nil {
		return err
	}

	for _, e := range events {
		fmt.Fprintf(out, "> %s\n", e)
		if err := am.Trigger(cmd.Context(), e); err != nil {
			return err
		}
		fmt.Fprintf(out, "= %s\n", am.Current())
	}
	return nil
}

func (a *app) printMetrics(out io.Writer, chartName string, metrics *sm.Metrics) error {
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(sm.NewCollector(a.settings.Metrics.Namespace, chartName, metrics)); err != nil {
		return err
	}
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			fmt.Fprintf(out, "%s{chart=%q} %g\n", mf.GetName(), chartName, metric.GetCounter().GetValue())
		}
	}
	return nil
}

func chartSource(cmd *cobra.Command) string {
	if input, _ := cmd.Flags().GetString(pInput); input != "" {
		return input
	}
	builtin, _ := cmd.Flags().GetString(pBuiltin)
	return "builtin:" + builtin
}
