package graph_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mediagraph/graph"
	"github.com/sarchlab/mediagraph/loop"
	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/nodes/mixer"
	"github.com/sarchlab/mediagraph/nodes/testsrc"
	"github.com/sarchlab/mediagraph/nodes/volume"
	"github.com/sarchlab/mediagraph/param"
	"github.com/sarchlab/mediagraph/result"
)

var _ = Describe("Graph", func() {
	var (
		ctx context.Context
		g   *graph.Graph
	)

	add := func(name string, n node.Node) {
		Expect(g.AddNode(name, n)).To(Succeed())
	}

	link := func(from, to graph.Endpoint) *graph.Link {
		l, err := g.Link(ctx, from, to)
		Expect(err).NotTo(HaveOccurred())

		return l
	}

	run := func(cycles uint64) {
		Expect(g.Start(cycles)).To(Succeed())
		Expect(g.Wait()).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		g = graph.MakeBuilder().WithName("test").WithQuantum(quantum).Build()
	})

	AfterEach(func() {
		Expect(g.Close()).To(Succeed())
	})

	Context("nodes", func() {
		It("should reject duplicate names", func() {
			add("src", newSource("src", testsrc.ModePull))

			err := g.AddNode("src", newSink("other", false))
			Expect(err).To(MatchError(result.ErrBusy))
			Expect(g.NodeNames()).To(Equal([]string{"src"}))
		})

		It("should name unnamed graphs", func() {
			other := graph.MakeBuilder().Build()
			defer func() { Expect(other.Close()).To(Succeed()) }()

			Expect(other.Name()).To(HavePrefix("graph-"))
		})

		It("should process producers first", func() {
			add("snk", newSink("snk", false))
			add("src", newSource("src", testsrc.ModePull))
			Expect(g.Scheduler().Order()).To(Equal([]string{"snk", "src"}))

			link(output("src"), input("snk", 0))
			Expect(g.Scheduler().Order()).To(Equal([]string{"src", "snk"}))
		})

		It("should remove a node and its links", func() {
			add("src", newSource("src", testsrc.ModePull))
			add("snk", newSink("snk", false))
			link(output("src"), input("snk", 0))

			Expect(g.RemoveNode("snk")).To(Succeed())
			Expect(g.Links()).To(BeEmpty())
			Expect(g.NodeNames()).To(Equal([]string{"src"}))
			Expect(g.Pool().Stats().Blocks).To(BeZero())

			Expect(g.RemoveNode("snk")).To(MatchError(result.ErrNotFound))
		})
	})

	Context("links", func() {
		It("should refuse unknown nodes", func() {
			add("src", newSource("src", testsrc.ModePull))

			_, err := g.Link(ctx, output("src"), input("nobody", 0))
			Expect(err).To(MatchError(result.ErrNotFound))
		})

		It("should refuse a link that closes a cycle", func() {
			a, err := volume.New("a", volume.DefaultConfig())
			Expect(err).NotTo(HaveOccurred())
			b, err := volume.New("b", volume.DefaultConfig())
			Expect(err).NotTo(HaveOccurred())
			add("a", a)
			add("b", b)
			add("src", newSource("src", testsrc.ModePull))

			link(output("src"), input("a", 0))
			link(output("a"), input("b", 0))

			_, err = g.Link(ctx, output("b"), input("a", 0))
			Expect(err).To(MatchError(result.ErrBusy))
			Expect(g.Links()).To(HaveLen(2))
		})

		It("should negotiate the preferred common format", func() {
			add("src", newSource("src", testsrc.ModePull))
			add("snk", newSink("snk", false))

			l := link(output("src"), input("snk", 0))

			info, err := param.ParseAudioInfo(l.Format())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Format).To(Equal(param.AudioFormatS16))
			Expect(info.Rate).To(Equal(uint32(48000)))
			Expect(info.Channels).To(Equal(uint32(2)))
			Expect(l.Enabled()).To(BeTrue())
			Expect(l.String()).To(Equal("link 0 src:0 -> snk:0"))

			found, ok := g.LinkByID(l.ID())
			Expect(ok).To(BeTrue())
			Expect(found).To(BeIdenticalTo(l))
		})

		It("should fail when no format is shared", func() {
			add("src", newSource("src", testsrc.ModePull, param.AudioFormatF64))
			mx, err := mixer.New("mix", mixer.Config{
				Formats: []param.AudioFormat{param.AudioFormatS16},
				Buffers: 2,
				Quantum: quantum,
			})
			Expect(err).NotTo(HaveOccurred())
			add("mix", mx)

			_, err = g.Link(ctx, output("src"), input("mix", 0))
			Expect(err).To(MatchError(result.ErrNotSupported))
			Expect(g.Links()).To(BeEmpty())
		})

		It("should free buffers and formats on unlink", func() {
			src := newSource("src", testsrc.ModePull)
			add("src", src)
			add("snk", newSink("snk", false))

			l := link(output("src"), input("snk", 0))
			Expect(g.Pool().Stats().Blocks).To(Equal(1))

			Expect(g.Unlink(l.ID())).To(Succeed())
			Expect(g.Pool().Stats().Blocks).To(BeZero())

			_, _, err := src.PortEnumParams(node.DirectionOutput, 0, param.IDFormat, 0, nil)
			Expect(err).To(MatchError(result.ErrNoFormat))

			Expect(g.Unlink(l.ID())).To(MatchError(result.ErrNotFound))
		})

		It("should fire link hooks", func() {
			rec := &recorder{}
			g.AcceptHook(rec)

			add("src", newSource("src", testsrc.ModePull))
			add("snk", newSink("snk", false))
			l := link(output("src"), input("snk", 0))
			Expect(g.Unlink(l.ID())).To(Succeed())

			Expect(rec.items(graph.HookPosNodeAdded)).To(HaveLen(2))
			Expect(rec.items(graph.HookPosLinkAdded)).To(ConsistOf(l))
			Expect(rec.items(graph.HookPosLinkRemoved)).To(ConsistOf(l))
		})
	})

	Context("asynchronous formats", func() {
		type linked struct {
			l   *graph.Link
			err error
		}

		var (
			snk  *asyncSink
			done chan linked
		)

		BeforeEach(func() {
			snk = newAsyncSink("snk")
			add("src", newSource("src", testsrc.ModePull))
			add("snk", snk)
			done = make(chan linked, 1)
		})

		start := func(ctx context.Context) {
			go func() {
				l, err := g.Link(ctx, output("src"), input("snk", 0))
				done <- linked{l, err}
			}()
		}

		It("should wait for the node to accept the format", func() {
			start(ctx)

			var seq int
			Eventually(snk.pending).Should(Receive(&seq))
			Consistently(done, 20*time.Millisecond).ShouldNot(Receive())

			Expect(snk.CompletePortFormat(node.DirectionInput, 0, seq, nil)).To(Succeed())

			var r linked
			Eventually(done).Should(Receive(&r))
			Expect(r.err).NotTo(HaveOccurred())

			p, err := snk.Port(node.DirectionInput, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Format()).NotTo(BeNil())
			Expect(p.NumBuffers()).To(Equal(2))
		})

		It("should fail the link when the node refuses", func() {
			start(ctx)

			var seq int
			Eventually(snk.pending).Should(Receive(&seq))
			Expect(snk.CompletePortFormat(node.DirectionInput, 0, seq,
				result.ErrNotSupported)).To(Succeed())

			var r linked
			Eventually(done).Should(Receive(&r))
			Expect(r.err).To(MatchError(result.ErrNotSupported))
			Expect(g.Links()).To(BeEmpty())
		})

		It("should give up when the context ends", func() {
			short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()

			start(short)

			var r linked
			Eventually(done).Should(Receive(&r))
			Expect(r.err).To(MatchError(context.DeadlineExceeded))
			Expect(g.Links()).To(BeEmpty())
		})
	})

	Context("processing", func() {
		It("should deliver every buffer of a source to a sink", func() {
			src := newSource("src", testsrc.ModePull)
			snk := newSink("snk", false)
			add("src", src)
			add("snk", snk)
			link(output("src"), input("snk", 0))

			run(4)

			stats := snk.Stats()
			Expect(stats.Buffers).To(Equal(uint64(4)))
			Expect(stats.Frames).To(Equal(uint64(4 * quantum)))
			Expect(stats.LastSeq).To(Equal(uint64(3)))
			Expect(src.Produced()).To(Equal(uint64(4)))
			Expect(g.Xruns()).To(BeZero())
			Expect(g.Scheduler().Cycles()).To(Equal(uint64(4)))
			Expect(g.Clock().Position).To(Equal(uint64(4 * quantum)))
		})

		It("should fan one output out to two sinks over one buffer set", func() {
			src := newSource("src", testsrc.ModePull)
			a := newSink("a", false)
			b := newSink("b", false)
			add("src", src)
			add("a", a)
			add("b", b)
			link(output("src"), input("a", 0))
			link(output("src"), input("b", 0))
			Expect(g.Pool().Stats().Blocks).To(Equal(1))

			run(3)

			Expect(a.Stats().Buffers).To(Equal(uint64(3)))
			Expect(b.Stats().Buffers).To(Equal(uint64(3)))
			Expect(a.Stats().Last).To(Equal(b.Stats().Last))
			Expect(src.Starved()).To(BeZero())
		})

		It("should return buffers a sink kept past its cycle", func() {
			src := newSource("src", testsrc.ModePull)
			snk := newSink("snk", true)
			add("src", src)
			add("snk", snk)
			link(output("src"), input("snk", 0))

			run(4)

			Expect(snk.Stats().Buffers).To(Equal(uint64(4)))
			Expect(src.Starved()).To(BeZero())
		})

		It("should run a filter chain", func() {
			cfg := volume.DefaultConfig()
			cfg.Volume = 0.5
			cfg.Quantum = quantum
			vol, err := volume.New("vol", cfg)
			Expect(err).NotTo(HaveOccurred())

			snk := newSink("snk", false)
			add("snk", snk)
			add("vol", vol)
			add("src", newSource("src", testsrc.ModePull, param.AudioFormatF32))
			link(output("src"), input("vol", 0))
			link(output("vol"), input("snk", 0))

			Expect(g.Scheduler().Order()).To(Equal([]string{"src", "vol", "snk"}))

			run(2)

			Expect(snk.Stats().Buffers).To(Equal(uint64(2)))
			Expect(snk.Stats().Last).To(BeNumerically("~", testsrc.Ramp(quantum, 48000)*0.5, 1e-6))
		})

		It("should mix two sources", func() {
			cfg := mixer.DefaultConfig()
			cfg.Quantum = quantum
			mx, err := mixer.New("mix", cfg)
			Expect(err).NotTo(HaveOccurred())

			snk := newSink("snk", false)
			add("a", newSource("a", testsrc.ModePull, param.AudioFormatF32))
			add("b", newSource("b", testsrc.ModePull, param.AudioFormatF32))
			add("mix", mx)
			add("snk", snk)
			link(output("a"), input("mix", 0))
			link(output("b"), input("mix", 1))
			link(output("mix"), input("snk", 0))

			Expect(mx.NumPorts(node.DirectionInput)).To(Equal(2))

			run(2)

			Expect(snk.Stats().Buffers).To(Equal(uint64(2)))
			Expect(snk.Stats().LastSeq).To(Equal(uint64(1)))
			Expect(snk.Stats().Last).To(Equal(-1.0))
		})

		It("should count an xrun for every cycle without input", func() {
			rec := &recorder{}
			g.Scheduler().AcceptHook(rec)

			add("src", newSource("src", testsrc.ModePush))
			add("snk", newSink("snk", false))
			link(output("src"), input("snk", 0))

			run(3)

			Expect(g.Xruns()).To(Equal(uint64(3)))
			Expect(g.Clock().Xruns).To(Equal(uint64(3)))
			Expect(rec.items(graph.HookPosXrun)).To(ContainElement(
				graph.XrunRecord{Cycle: 1, Node: "snk", Port: 0}))
			Expect(rec.items(graph.HookPosCycleStart)).To(HaveLen(3))
			Expect(rec.items(graph.HookPosNodeProcessed)).To(HaveLen(6))
		})

		It("should run a cycle when a node has output of its own", func() {
			src := newSource("src", testsrc.ModePush)
			snk := newSink("snk", false)
			add("src", src)
			add("snk", snk)
			link(output("src"), input("snk", 0))

			run(1)
			Expect(snk.Stats().Buffers).To(BeZero())

			src.Push()
			Expect(g.Loop().Go(loop.RunEngine(g.Engine()))).To(Succeed())
			Expect(g.Wait()).To(Succeed())

			Expect(snk.Stats().Buffers).To(Equal(uint64(1)))
			Expect(g.Scheduler().Cycles()).To(Equal(uint64(2)))
		})

		It("should stop buffers on a disabled link", func() {
			snk := newSink("snk", false)
			add("src", newSource("src", testsrc.ModePull))
			add("snk", snk)
			l := link(output("src"), input("snk", 0))

			Expect(g.SetLinkEnabled(l.ID(), false)).To(Succeed())
			run(2)
			Expect(snk.Stats().Buffers).To(BeZero())
			Expect(g.Xruns()).To(BeZero())

			Expect(g.SetLinkEnabled(l.ID(), true)).To(Succeed())
			Expect(g.Scheduler().RunCycles(2)).To(Succeed())
			Expect(snk.Stats().Buffers).To(Equal(uint64(2)))
		})

		It("should stop an endless run", func() {
			snk := newSink("snk", false)
			add("src", newSource("src", testsrc.ModePull))
			add("snk", snk)
			link(output("src"), input("snk", 0))

			Expect(g.Start(0)).To(Succeed())
			Eventually(func() uint64 { return g.Scheduler().Cycles() }).
				Should(BeNumerically(">", 10))
			Expect(g.Stop()).To(Succeed())
			Expect(g.Loop().Running()).To(BeFalse())
		})

		It("should keep buffers flowing while links change under a running loop", func() {
			src := newSource("src", testsrc.ModePull)
			a := newSink("a", false)
			b := newSink("b", false)
			add("src", src)
			add("a", a)
			add("b", b)
			link(output("src"), input("a", 0))

			Expect(g.Start(0)).To(Succeed())
			Eventually(func() uint64 { return a.Stats().Buffers }).
				Should(BeNumerically(">", 2))

			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)

				for i := 0; i < 5; i++ {
					l, err := g.Link(ctx, output("src"), input("b", 0))
					Expect(err).NotTo(HaveOccurred())

					before := b.Stats().Buffers
					Eventually(func() uint64 { return b.Stats().Buffers }).
						Should(BeNumerically(">", before))

					Expect(g.SetLinkEnabled(l.ID(), false)).To(Succeed())
					Expect(g.SetLinkEnabled(l.ID(), true)).To(Succeed())
					Expect(g.Unlink(l.ID())).To(Succeed())
				}
			}()
			Eventually(done).WithTimeout(10 * time.Second).Should(BeClosed())

			seen := a.Stats().Buffers
			Eventually(func() uint64 { return a.Stats().Buffers }).
				Should(BeNumerically(">", seen))
			Expect(g.Links()).To(HaveLen(1))

			Expect(g.Stop()).To(Succeed())
			Expect(g.Close()).To(Succeed())
			Expect(g.Links()).To(BeEmpty())
			Expect(g.Pool().Stats().Blocks).To(BeZero())
		})

		It("should report node events", func() {
			rec := &recorder{}
			g.AcceptHook(rec)

			vol, err := volume.New("vol", volume.DefaultConfig())
			Expect(err).NotTo(HaveOccurred())
			add("vol", vol)

			Expect(vol.SetParam(param.IDProps, 0,
				param.PropsInfo{Volume: 0.1}.Object())).To(Succeed())

			Expect(rec.items(graph.HookPosNodeEvent)).To(ContainElement(BeIdenticalTo(vol)))
		})
	})
})
