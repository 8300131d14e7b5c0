package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mediagraph/graph"
	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/nodes/sink"
	"github.com/sarchlab/mediagraph/nodes/testsrc"
	"github.com/sarchlab/mediagraph/param"
	"github.com/sarchlab/mediagraph/tracing"
)

var _ = Describe("Monitor", func() {
	var (
		g      *graph.Graph
		m      *Monitor
		router http.Handler
	)

	request := func(method, url string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, url, nil))

		return rec
	}

	decode := func(url string, v any) {
		rec := request(http.MethodGet, url)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Unmarshal(rec.Body.Bytes(), v)).To(Succeed())
	}

	BeforeEach(func() {
		g = graph.MakeBuilder().WithName("monitored").WithQuantum(64).Build()

		cfg := testsrc.DefaultConfig()
		cfg.Quantum = 64
		cfg.Formats = []param.AudioFormat{param.AudioFormatF32}
		src, err := testsrc.New("src", cfg)
		Expect(err).NotTo(HaveOccurred())
		snk, err := sink.New("snk", sink.Config{})
		Expect(err).NotTo(HaveOccurred())

		Expect(g.AddNode("src", src)).To(Succeed())
		Expect(g.AddNode("snk", snk)).To(Succeed())
		_, err = g.Link(context.Background(),
			graph.Endpoint{Node: "src"}, graph.Endpoint{Node: "snk"})
		Expect(err).NotTo(HaveOccurred())

		m = NewMonitor(g, nil)
		router = m.Router()
	})

	AfterEach(func() {
		Expect(g.Close()).To(Succeed())
	})

	It("should list nodes", func() {
		var names []string
		decode("/api/nodes", &names)
		Expect(names).To(Equal([]string{"src", "snk"}))
	})

	It("should answer 404 for unknown nodes", func() {
		Expect(request(http.MethodGet, "/api/node/nope").Code).
			To(Equal(http.StatusNotFound))
		Expect(request(http.MethodGet, "/api/node/nope/ports").Code).
			To(Equal(http.StatusNotFound))
	})

	It("should list ports with their format", func() {
		var ports []portRsp
		decode("/api/node/snk/ports", &ports)

		Expect(ports).To(HaveLen(1))
		Expect(ports[0].Direction).To(Equal("input"))
		Expect(ports[0].Format).To(ContainSubstring("F32"))
		Expect(ports[0].Buffers).To(Equal(4))
	})

	It("should list ports while the graph runs and while it is paused", func() {
		Expect(g.Start(0)).To(Succeed())
		Eventually(func() uint64 { return g.Scheduler().Cycles() }).
			Should(BeNumerically(">", 2))

		var ports []portRsp
		decode("/api/node/snk/ports", &ports)
		Expect(ports).To(HaveLen(1))
		Expect(ports[0].State).To(Equal(node.PortStatePaused.String()))

		Expect(request(http.MethodPost, "/api/pause").Code).To(Equal(http.StatusOK))
		decode("/api/node/src/ports", &ports)
		Expect(ports).To(HaveLen(1))
		Expect(ports[0].Direction).To(Equal("output"))

		Expect(request(http.MethodPost, "/api/continue").Code).To(Equal(http.StatusOK))
		Expect(g.Stop()).To(Succeed())
	})

	It("should list links", func() {
		var links []linkRsp
		decode("/api/links", &links)

		Expect(links).To(HaveLen(1))
		Expect(links[0].Output).To(Equal("src:0"))
		Expect(links[0].Input).To(Equal("snk:0"))
		Expect(links[0].Enabled).To(BeTrue())
	})

	It("should report the pool", func() {
		var rsp struct {
			Name   string     `json:"name"`
			Blocks []blockRsp `json:"blocks"`
		}
		decode("/api/pool?sort=size", &rsp)

		Expect(rsp.Blocks).To(HaveLen(1))
		Expect(rsp.Blocks[0].Refs).To(BeNumerically(">", 0))

		Expect(request(http.MethodGet, "/api/pool?sort=color").Code).
			To(Equal(http.StatusBadRequest))
	})

	It("should pause and continue the engine", func() {
		Expect(request(http.MethodPost, "/api/pause").Code).To(Equal(http.StatusOK))
		Expect(g.Engine().Paused()).To(BeTrue())

		var now nowRsp
		decode("/api/now", &now)
		Expect(now.Paused).To(BeTrue())

		Expect(request(http.MethodPost, "/api/continue").Code).To(Equal(http.StatusOK))
		Expect(g.Engine().Paused()).To(BeFalse())
	})

	It("should report cycles and progress", func() {
		bar := m.TrackCycles(3)

		Expect(g.Start(3)).To(Succeed())
		Expect(g.Wait()).To(Succeed())

		var now nowRsp
		decode("/api/now", &now)
		Expect(now.Cycle).To(Equal(uint64(3)))
		Expect(now.Position).To(Equal(uint64(3 * 64)))

		var stats tracing.Summary
		decode("/api/stats", &stats)
		Expect(stats.Cycles).To(Equal(uint64(3)))
		Expect(stats.Nodes).To(HaveLen(2))

		var bars []Progress
		decode("/api/progress", &bars)
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Finished).To(Equal(uint64(3)))
		Expect(bars[0].InProgress).To(BeZero())

		m.CompleteProgressBar(bar)
		decode("/api/progress", &bars)
		Expect(bars).To(BeEmpty())
	})

	It("should report process resources", func() {
		var rsp resourceRsp
		decode("/api/resource", &rsp)
		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should serve the page", func() {
		rec := request(http.MethodGet, "/")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("<!DOCTYPE html>"))
	})

	It("should refuse low port numbers", func() {
		Expect(m.WithPortNumber(80).portNumber).To(BeZero())
		Expect(m.WithPortNumber(8080).portNumber).To(Equal(8080))
	})
})
