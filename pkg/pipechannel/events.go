package pipechannel

import (
	"sync"

	pipeshare "github.com/sammck-go/pipechan/share"
)

// dispatcher delivers a channel's notifications, one at a time and in the order
// they were posted, on a goroutine of its own. Handlers may therefore call back
// into the channel.
type dispatcher struct {
	pipeshare.Logger

	lock    sync.Mutex
	queue   []func()
	running bool
	onState []func(State)
	onSent  []func(string)
	onRecv  []func(string)
}

func newDispatcher(logger pipeshare.Logger) *dispatcher {
	return &dispatcher{Logger: logger}
}

func (d *dispatcher) addStateHandler(h func(State)) {
	d.lock.Lock()
	d.onState = append(d.onState, h)
	d.lock.Unlock()
}

func (d *dispatcher) addSentHandler(h func(string)) {
	d.lock.Lock()
	d.onSent = append(d.onSent, h)
	d.lock.Unlock()
}

func (d *dispatcher) addReceivedHandler(h func(string)) {
	d.lock.Lock()
	d.onRecv = append(d.onRecv, h)
	d.lock.Unlock()
}

func (d *dispatcher) stateChanged(s State) {
	d.post(func() {
		d.lock.Lock()
		handlers := d.onState
		d.lock.Unlock()
		for _, h := range handlers {
			d.call(func() { h(s) })
		}
	})
}

func (d *dispatcher) messageSent(text string) {
	d.post(func() {
		d.lock.Lock()
		handlers := d.onSent
		d.lock.Unlock()
		for _, h := range handlers {
			d.call(func() { h(text) })
		}
	})
}

func (d *dispatcher) messageReceived(text string) {
	d.post(func() {
		d.lock.Lock()
		handlers := d.onRecv
		d.lock.Unlock()
		for _, h := range handlers {
			d.call(func() { h(text) })
		}
	})
}

// call runs one handler; a panicking handler does not stop delivery.
func (d *dispatcher) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.ELogf("notification handler panicked: %v", r)
		}
	}()
	fn()
}

func (d *dispatcher) post(fn func()) {
	d.lock.Lock()
	d.queue = append(d.queue, fn)
	start := !d.running
	d.running = true
	d.lock.Unlock()
	if start {
		go d.run()
	}
}

func (d *dispatcher) run() {
	for {
		d.lock.Lock()
		if len(d.queue) == 0 {
			d.running = false
			d.lock.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.lock.Unlock()
		fn()
	}
}

// wait blocks until everything posted so far has been delivered. It must not be
// called from a handler.
func (d *dispatcher) wait() {
	done := make(chan struct{})
	d.post(func() { close(done) })
	<-done
}
