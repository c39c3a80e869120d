package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"time"
)

const (
	NumSessions      = "NumSessions"
	NumOnlineUsers   = "NumOnlineUsers"
	NumActiveClients = "NumActiveClients"
	NumMessages      = "NumMessages"
	NumSweptMessages = "NumSweptMessages"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	Add(name string, delta int64)
	Set(name string, value int64)
	RegisterMetric(name string)
	Run()
}

type StatsUpdater struct {
	vars       *expvar.Map
	updateChan chan *metricsUpdateReq
}

type metricsUpdateReq struct {
	name  string
	value int64
	set   bool
}

// ServeHTTP renders every metric as a flat JSON object.
func (su *StatsUpdater) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	expvarData := make(map[string]any)
	su.vars.Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		expvarData[kv.Key] = value
	})

	json.NewEncoder(w).Encode(expvarData)
}

// NewStatsUpdater creates a new stats updater instance with the Uptime
// metric registered. The map is not published to the global expvar
// registry so several updaters can coexist in tests.
func NewStatsUpdater() *StatsUpdater {
	su := &StatsUpdater{
		vars:       new(expvar.Map).Init(),
		updateChan: make(chan *metricsUpdateReq, 512),
	}
	su.initializeMetrics()

	return su
}

func (su *StatsUpdater) initializeMetrics() {
	startTime := time.Now()
	su.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))
}

func (su *StatsUpdater) updateMetrics() {
	for req := range su.updateChan {
		metric, ok := su.vars.Get(req.name).(*expvar.Int)
		if !ok {
			panic("metric not found: " + req.name)
		}

		if req.set {
			metric.Set(req.value)
		} else {
			metric.Add(req.value)
		}
	}
}

func (su *StatsUpdater) Incr(name string) {
	su.Add(name, 1)
}

func (su *StatsUpdater) Decr(name string) {
	su.Add(name, -1)
}

func (su *StatsUpdater) Add(name string, delta int64) {
	su.updateChan <- &metricsUpdateReq{name: name, value: delta}
}

func (su *StatsUpdater) Set(name string, value int64) {
	su.updateChan <- &metricsUpdateReq{name: name, value: value, set: true}
}

func (su *StatsUpdater) RegisterMetric(name string) {
	su.vars.Set(name, new(expvar.Int))
}

func (su *StatsUpdater) Run() {
	go su.updateMetrics()
}

func (su *StatsUpdater) Stop() {
	close(su.updateChan)
}
