// Package monitoring serves a running graph over HTTP. It can pause and
// resume the engine, list nodes, ports, links and pool blocks, report
// cycle statistics and process resources, and collect a CPU profile.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/mediagraph/graph"
	"github.com/sarchlab/mediagraph/logging"
	"github.com/sarchlab/mediagraph/monitoring/web"
	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/param"
	"github.com/sarchlab/mediagraph/tracing"
)

// Monitor turns a graph into a server that can be observed and controlled
// while it runs.
type Monitor struct {
	g          *graph.Graph
	stats      *tracing.StatsTracer
	log        logging.Logger
	portNumber int
	profileFor time.Duration
	inspectFor time.Duration

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a monitor of g. It attaches a StatsTracer to the
// scheduler, so it must be created before the graph starts.
func NewMonitor(g *graph.Graph, log logging.Logger) *Monitor {
	m := &Monitor{
		g:          g,
		stats:      tracing.NewStatsTracer(),
		log:        logging.OrNop(log).With("component", "monitor"),
		profileFor: time.Second,
		inspectFor: time.Second,
	}

	tracing.Attach(g, m.stats)

	return m
}

// WithPortNumber sets the port number of the monitor. Ports below 1000 are
// refused and a random port is used instead.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		m.log.Warn("port not allowed, using a random port", "port", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithProfileDuration sets how long /api/profile samples the CPU.
func (m *Monitor) WithProfileDuration(d time.Duration) *Monitor {
	m.profileFor = d
	return m
}

// Stats returns the tracer the monitor reports from.
func (m *Monitor) Stats() *tracing.StatsTracer {
	return m.stats
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{p: Progress{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// TrackCycles creates a progress bar that advances with every cycle of the
// graph.
func (m *Monitor) TrackCycles(total uint64) *ProgressBar {
	bar := m.CreateProgressBar(m.g.Name(), total)
	tracing.Attach(m.g, &cycleProgress{bar: bar})

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the HTTP routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseEngine).Methods(http.MethodPost)
	r.HandleFunc("/api/continue", m.continueEngine).Methods(http.MethodPost)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/nodes", m.listNodes)
	r.HandleFunc("/api/node/{name}", m.nodeDetails)
	r.HandleFunc("/api/node/{name}/ports", m.nodePorts)
	r.HandleFunc("/api/links", m.listLinks)
	r.HandleFunc("/api/pool", m.pool)
	r.HandleFunc("/api/stats", m.cycleStats)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts serving in the background and returns the address.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", fmt.Errorf("monitor listen: %w", err)
	}

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	url := fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port)
	m.log.Info("monitoring graph", "url", url)

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error("monitor server stopped", "err", err)
		}
	}()

	return url, nil
}

// OpenBrowser opens url in the default browser.
func (m *Monitor) OpenBrowser(url string) error {
	return browser.OpenURL(url)
}

// Shutdown stops the server started by StartServer.
func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.log.Warn("write response", "err", err)
	}
}

func (m *Monitor) fail(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	fmt.Fprintf(w, "Error: %s", err)
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	m.g.Engine().Pause()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	m.g.Engine().Continue()
	w.WriteHeader(http.StatusOK)
}

type nowRsp struct {
	Cycle    uint64 `json:"cycle"`
	Position uint64 `json:"position"`
	Xruns    uint64 `json:"xruns"`
	Paused   bool   `json:"paused"`
	Running  bool   `json:"running"`
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	s := m.g.Scheduler()
	cycles := s.Cycles()

	m.writeJSON(w, nowRsp{
		Cycle:    cycles,
		Position: cycles * uint64(s.Quantum()),
		Xruns:    s.Xruns(),
		Paused:   m.g.Engine().Paused(),
		Running:  m.g.Loop().Running(),
	})
}

func (m *Monitor) listNodes(w http.ResponseWriter, _ *http.Request) {
	m.writeJSON(w, m.g.NodeNames())
}

func (m *Monitor) findNodeOr404(w http.ResponseWriter, r *http.Request) node.Node {
	name := mux.Vars(r)["name"]

	n, ok := m.g.Node(name)
	if !ok {
		m.fail(w, http.StatusNotFound, fmt.Errorf("node %q not found", name))
		return nil
	}

	return n
}

func (m *Monitor) nodeDetails(w http.ResponseWriter, r *http.Request) {
	n := m.findNodeOr404(w, r)
	if n == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(n)
	serializer.SetMaxDepth(1)

	if err := serializer.Serialize(w); err != nil {
		m.log.Warn("serialize node", "err", err)
	}
}

type portLister interface {
	Ports(dir node.Direction) []*node.Port
}

type portRsp struct {
	Direction string `json:"direction"`
	ID        uint32 `json:"id"`
	State     string `json:"state"`
	Format    string `json:"format,omitempty"`
	Buffers   int    `json:"buffers"`
}

func (m *Monitor) nodePorts(w http.ResponseWriter, r *http.Request) {
	n := m.findNodeOr404(w, r)
	if n == nil {
		return
	}

	lister, ok := n.(portLister)
	if !ok {
		m.fail(w, http.StatusMethodNotAllowed,
			fmt.Errorf("node %q does not list its ports", n.Info().Name))
		return
	}

	rsp := []portRsp{}
	err := m.inspect(r.Context(), func() {
		for _, dir := range []node.Direction{node.DirectionInput, node.DirectionOutput} {
			for _, p := range lister.Ports(dir) {
				pr := portRsp{
					Direction: dir.String(),
					ID:        p.ID(),
					State:     p.State().String(),
					Buffers:   p.NumBuffers(),
				}
				if f := p.Format(); f != nil {
					pr.Format = describeFormat(f)
				}

				rsp = append(rsp, pr)
			}
		}
	})
	if err != nil {
		m.fail(w, http.StatusServiceUnavailable, err)
		return
	}

	m.writeJSON(w, rsp)
}

// inspect runs fn while the data goroutine is kept off node state: right
// away if the engine is paused, otherwise at the next safe point of the
// loop.
func (m *Monitor) inspect(ctx context.Context, fn func()) error {
	if m.g.Engine().WhilePaused(fn) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.inspectFor)
	defer cancel()

	return m.g.Loop().Invoke(ctx, fn)
}

func describeFormat(f *param.Object) string {
	info, err := param.ParseAudioInfo(f)
	if err != nil {
		return f.String()
	}

	return fmt.Sprintf("%s %dHz %dch", info.Format, info.Rate, info.Channels)
}

type linkRsp struct {
	ID      uint32 `json:"id"`
	Output  string `json:"output"`
	Input   string `json:"input"`
	Format  string `json:"format"`
	Enabled bool   `json:"enabled"`
}

func (m *Monitor) listLinks(w http.ResponseWriter, _ *http.Request) {
	rsp := []linkRsp{}
	for _, l := range m.g.Links() {
		lr := linkRsp{
			ID:      l.ID(),
			Output:  l.Output().String(),
			Input:   l.Input().String(),
			Enabled: l.Enabled(),
		}
		if f := l.Format(); f != nil {
			lr.Format = describeFormat(f)
		}

		rsp = append(rsp, lr)
	}

	m.writeJSON(w, rsp)
}

type blockRsp struct {
	ID    uint32 `json:"id"`
	FD    int    `json:"fd"`
	Size  uint64 `json:"size"`
	Flags string `json:"flags"`
	Refs  int    `json:"refs"`
}

type poolRsp struct {
	Name   string     `json:"name"`
	Stats  any        `json:"stats"`
	Blocks []blockRsp `json:"blocks"`
}

func (m *Monitor) pool(w http.ResponseWriter, r *http.Request) {
	sortBy := r.URL.Query().Get("sort")
	if sortBy != "" && sortBy != "id" && sortBy != "size" {
		m.fail(w, http.StatusBadRequest, fmt.Errorf(
			"invalid sort method %q, allowed values are `id` and `size`", sortBy))
		return
	}

	p := m.g.Pool()
	rsp := poolRsp{Name: p.Name(), Stats: p.Stats(), Blocks: []blockRsp{}}

	for _, b := range p.Blocks() {
		rsp.Blocks = append(rsp.Blocks, blockRsp{
			ID:    b.ID(),
			FD:    b.FD(),
			Size:  b.Size(),
			Flags: b.Flags().String(),
			Refs:  b.Refs(),
		})
	}

	if sortBy == "size" {
		sort.SliceStable(rsp.Blocks, func(i, j int) bool {
			return rsp.Blocks[i].Size > rsp.Blocks[j].Size
		})
	}

	m.writeJSON(w, rsp)
}

func (m *Monitor) cycleStats(w http.ResponseWriter, _ *http.Request) {
	m.writeJSON(w, m.stats.Summary())
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]Progress, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.Progress())
	}
	m.progressBarsLock.Unlock()

	m.writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.fail(w, http.StatusInternalServerError, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		m.fail(w, http.StatusInternalServerError, err)
		return
	}

	memory, err := proc.MemoryInfo()
	if err != nil {
		m.fail(w, http.StatusInternalServerError, err)
		return
	}

	m.writeJSON(w, resourceRsp{CPUPercent: cpuPercent, MemorySize: memory.RSS})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		m.fail(w, http.StatusConflict, err)
		return
	}

	select {
	case <-time.After(m.profileFor):
	case <-r.Context().Done():
	}

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		m.fail(w, http.StatusInternalServerError, err)
		return
	}

	m.writeJSON(w, prof)
}
