package codec

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// threadResult is one worker's output for one submitted packet.
type threadResult struct {
	frame Frame
	got   bool
	err   error
}

// threadTask carries one packet to a worker together with the channel its
// result must arrive on. The channel is buffered so a worker never blocks
// on a consumer that went away.
type threadTask struct {
	pkt    Packet
	result chan threadResult
}

// threadWorker runs an independent backend instance. Workers share the
// parent's frame pool but hold their own Priv state.
type threadWorker struct {
	dec   *Decoder
	tasks chan threadTask
}

// frameThreads distributes packets round-robin over worker backends and
// returns frames strictly in submission order: results are collected through
// a FIFO of per-task channels, so a fast worker finishing out of turn waits
// in its buffered channel until its slot comes up.
type frameThreads struct {
	workers []*threadWorker
	group   errgroup.Group

	next    int
	pending []chan threadResult
}

func newFrameThreads(parent *Decoder, count int) (*frameThreads, error) {
	t := &frameThreads{}
	for i := 0; i < count; i++ {
		w, err := t.newWorker(parent)
		if err != nil {
			t.stop()
			return nil, fmt.Errorf("starting decode worker %d: %w", i, err)
		}
		t.workers = append(t.workers, w)
		t.group.Go(func() error {
			t.run(w)
			return nil
		})
	}
	return t, nil
}

// newWorker clones the parent decoder with fresh backend state. The clone
// runs the simple strategy so workers never recurse into threading.
func (t *frameThreads) newWorker(parent *Decoder) (*threadWorker, error) {
	dec := &Decoder{
		codec:         parent.codec,
		config:        parent.config,
		strategy:      strategySimple,
		pool:          parent.pool,
		hwFramePool:   parent.hwFramePool,
		swPixelFormat: parent.swPixelFormat,
	}
	dec.inPkt.reset()
	dec.lastPktProps.reset()
	dec.bufferPkt.reset()
	if parent.codec.Init != nil {
		if err := parent.codec.Init(dec); err != nil {
			return nil, err
		}
	}
	dec.open = true
	return &threadWorker{
		dec:   dec,
		tasks: make(chan threadTask, 1),
	}, nil
}

func (t *frameThreads) run(w *threadWorker) {
	for task := range w.tasks {
		var res threadResult

		// The worker's own decoder carries the packet properties so frame
		// buffers it acquires are stamped correctly.
		w.dec.lastPktProps.Unref()
		w.dec.lastPktProps.CopyProps(&task.pkt)

		_, got, err := w.dec.codec.Decode(w.dec, &res.frame, &task.pkt)
		if got && !w.dec.codec.Capabilities.Has(CapSetsPacketDTS) {
			res.frame.PacketDTS = task.pkt.DTS
		}
		if !got {
			res.frame.Unref()
		}
		res.got = got
		res.err = err
		task.pkt.Unref()
		task.result <- res
	}
}

// decodeFrame submits pkt to the next worker and, once the pipeline is full,
// returns the oldest outstanding result. While the pipeline is still filling
// it consumes the packet without producing a frame, which is why the driver
// treats threaded decoding as having internal delay.
func (t *frameThreads) decodeFrame(frame *Frame, pkt *Packet) (int, bool, error) {
	task := threadTask{result: make(chan threadResult, 1)}
	if pkt.HasData() {
		task.pkt.Ref(pkt)
	} else {
		task.pkt.CopyProps(pkt)
	}

	w := t.workers[t.next]
	t.next = (t.next + 1) % len(t.workers)
	w.tasks <- task
	t.pending = append(t.pending, task.result)

	if len(t.pending) < len(t.workers) && pkt.HasData() {
		return len(pkt.Data), false, nil
	}

	res := <-t.pending[0]
	t.pending = t.pending[1:]
	if res.err != nil {
		res.frame.Unref()
		return 0, false, res.err
	}
	if res.got {
		res.frame.MoveTo(frame)
	}
	return len(pkt.Data), res.got, nil
}

// flush waits out every outstanding task, discards the results and resets
// all workers.
func (t *frameThreads) flush() {
	t.drainPending()
	t.next = 0
	for _, w := range t.workers {
		w.dec.lastPktProps.Unref()
		if w.dec.codec.Flush != nil {
			w.dec.codec.Flush(w.dec)
		}
	}
}

// stop shuts the workers down and releases their backend state.
func (t *frameThreads) stop() {
	for _, w := range t.workers {
		close(w.tasks)
	}
	_ = t.group.Wait() // workers never return errors
	t.drainPending()
	for _, w := range t.workers {
		w.dec.open = false
		if w.dec.codec.Close != nil {
			w.dec.codec.Close(w.dec)
		}
		w.dec.lastPktProps.Unref()
	}
	t.workers = nil
}

func (t *frameThreads) drainPending() {
	for _, ch := range t.pending {
		res := <-ch
		res.frame.Unref()
	}
	t.pending = nil
}
