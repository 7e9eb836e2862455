package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/junbin-yang/statesurf/pkg/chart"
	"github.com/junbin-yang/statesurf/pkg/logger"
	sm "github.com/junbin-yang/statesurf/pkg/statemachine"
)

type chartResponse struct {
	Name         string     `json:"name"`
	Initial      sm.State   `json:"initial"`
	DefaultEvent sm.Event   `json:"default_event"`
	Leaves       []sm.State `json:"leaves"`
	Events       []sm.Event `json:"events"`
}

type machineResponse struct {
	ID         string   `json:"id"`
	State      sm.State `json:"state"`
	Started    bool     `json:"started"`
	Terminated bool     `json:"terminated"`
	Restored   bool     `json:"restored,omitempty"`
}

type dispatchResponse struct {
	machineResponse
	Event    sm.Event `json:"event"`
	Declared bool     `json:"declared"` // 分发前的状态是否声明了该事件
}

type broadcastResult struct {
	State sm.State `json:"state"`
	Error string   `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	routeDefinitions := []struct {
		method   string
		endpoint string
		handler  http.HandlerFunc
	}{
		{http.MethodGet, "/healthz", s.healthz},
		{http.MethodGet, "/chart", s.getChart},
		{http.MethodGet, "/machines", s.listMachines},
		{http.MethodPut, "/machines/{id}", s.createMachine},
		{http.MethodGet, "/machines/{id}", s.getMachine},
		{http.MethodDelete, "/machines/{id}", s.deleteMachine},
		{http.MethodPost, "/machines/{id}/events/{event}", s.dispatch},
		{http.MethodPost, "/machines/{id}/reset", s.reset},
		{http.MethodPost, "/machines/{id}/snapshot", s.saveSnapshot},
		{http.MethodGet, "/machines/{id}/calls", s.drainCalls},
		{http.MethodPost, "/events/{event}", s.broadcast},
	}
	for _, route := range routeDefinitions {
		r.HandleFunc(route.endpoint, route.handler).Methods(route.method)
	}
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// getChart 不带 format 时返回状态图概要，否则按格式渲染
func (s *Server) getChart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		writeJSON(w, http.StatusOK, chartResponse{
			Name:         s.chart.Name(),
			Initial:      s.chart.Tree().InitialLeaf(),
			DefaultEvent: s.chart.DefaultEvent(),
			Leaves:       s.chart.Tree().Leaves(),
			Events:       s.chart.Events(),
		})
		return
	}

	var opts []chart.RenderOption
	if q.Has("guards") {
		opts = append(opts, chart.WithGuards())
	}
	if q.Has("actions") {
		opts = append(opts, chart.WithActions())
	}
	data, err := chart.Render(s.def, format, opts...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(data)
}

func (s *Server) listMachines(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"machines": s.sessions.GetStates()})
}

func (s *Server) createMachine(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	restored, err := s.Create(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondMachine(w, http.StatusCreated, id, func(resp *machineResponse) {
		resp.Restored = restored
	})
}

func (s *Server) getMachine(w http.ResponseWriter, r *http.Request) {
	s.respondMachine(w, http.StatusOK, mux.Vars(r)["id"], nil)
}

func (s *Server) deleteMachine(w http.ResponseWriter, r *http.Request) {
	if err := s.Remove(mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// dispatch 同步等待事件运行至完成，未声明的事件同样返回 200
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, event := vars["id"], sm.Event(vars["event"])

	resp := dispatchResponse{Event: event}
	err := s.withSession(id, func(a *sm.AsyncMachine) error {
		resp.Declared = a.Can(event)
		if err := a.Trigger(r.Context(), event); err != nil {
			return err
		}
		resp.machineResponse = describe(id, a)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// reset 回到启动前并重新启动
func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.withSession(id, func(a *sm.AsyncMachine) error {
		var err error
		a.Do(func(m *sm.Machine) {
			if err = m.Reset(); err == nil {
				err = m.Start()
			}
		})
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondMachine(w, http.StatusOK, id, nil)
}

func (s *Server) saveSnapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Save(id); err != nil {
		s.writeError(w, err)
		return
	}
	s.respondMachine(w, http.StatusOK, id, nil)
}

// drainCalls 返回上次读取之后记录的回调，宿主对象不记录回调时返回空列表
func (s *Server) drainCalls(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	calls := []string{}
	err := s.withSession(id, func(a *sm.AsyncMachine) error {
		a.Do(func(m *sm.Machine) {
			d, ok := m.Hooks().(interface{ Drain() []sm.Call })
			if !ok {
				return
			}
			for _, c := range d.Drain() {
				calls = append(calls, c.String())
			}
		})
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "calls": calls})
}

// broadcast 向所有会话分发同一事件
func (s *Server) broadcast(w http.ResponseWriter, r *http.Request) {
	event := sm.Event(mux.Vars(r)["event"])
	errs := s.sessions.TriggerAll(r.Context(), event)
	states := s.sessions.GetStates()

	results := make(map[string]broadcastResult, len(states))
	for id, state := range states {
		res := broadcastResult{State: state}
		if err := errs[id]; err != nil {
			res.Error = err.Error()
		}
		results[id] = res
	}
	writeJSON(w, http.StatusOK, map[string]any{"event": event, "machines": results})
}

func (s *Server) respondMachine(w http.ResponseWriter, code int, id string, edit func(*machineResponse)) {
	var resp machineResponse
	err := s.withSession(id, func(a *sm.AsyncMachine) error {
		resp = describe(id, a)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if edit != nil {
		edit(&resp)
	}
	writeJSON(w, code, resp)
}

func describe(id string, a *sm.AsyncMachine) machineResponse {
	resp := machineResponse{ID: id}
	a.Do(func(m *sm.Machine) {
		resp.State = m.State()
		resp.Started = m.Started()
		resp.Terminated = m.Terminated()
	})
	return resp
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, sm.ErrMachineNotFound):
		return http.StatusNotFound
	case errors.Is(err, sm.ErrDuplicateMachine):
		return http.StatusConflict
	case errors.Is(err, sm.ErrInvalidSnapshot), errors.Is(err, chart.ErrUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNoStore), errors.Is(err, sm.ErrAsyncStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.log.Warn("request failed", logger.Int("status", code), logger.GetError(err))
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
