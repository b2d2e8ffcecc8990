package elemer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grid-x/elemer/logger"
)

type recordingObserver struct {
	mu       sync.Mutex
	messages []Message
	failures []error
}

func (o *recordingObserver) linkMessage(kind MessageKind, text string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, Message{Kind: kind, Text: text, Err: err})
}

func (o *recordingObserver) linkFailed(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, err)
}

func (o *recordingObserver) recorded() ([]Message, []error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.messages...), append([]error(nil), o.failures...)
}

func quietLogger() logger.Logger {
	return logger.NewSlogWriter(io.Discard, logger.ErrorLevel, false)
}

type linkFixture struct {
	link     *link
	notify   *notifier
	observer *recordingObserver
	inst     *fakeInstrument

	mu   sync.Mutex
	port *fakePort
}

func newLinkFixture(t *testing.T, cfg SerialConfig) *linkFixture {
	t.Helper()
	f := &linkFixture{
		notify:   newNotifier(),
		observer: &recordingObserver{},
		inst:     newFakeInstrument(5, USD01),
	}
	open := f.inst.opener()
	opener := OpenerFunc(func(cfg SerialConfig) (io.ReadWriteCloser, error) {
		rwc, err := open.Open(cfg)
		if err == nil {
			f.mu.Lock()
			f.port = rwc.(*fakePort)
			f.mu.Unlock()
		}
		return rwc, err
	})
	f.link = newLink(opener, cfg, f.notify, f.observer, quietLogger())
	t.Cleanup(f.link.stop)
	return f
}

func (f *linkFixture) currentPort() *fakePort {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.port
}

func (f *linkFixture) await(t *testing.T, kind eventKind) linkEvent {
	t.Helper()
	ev, err := f.notify.acquire(context.Background(), kind, time.Second, nil)
	require.NoError(t, err, "waiting for %v", kind)
	return ev
}

func (f *linkFixture) open(t *testing.T) {
	t.Helper()
	require.NoError(t, f.link.open())
	ev := f.await(t, eventOpened)
	require.NoError(t, ev.err)
}

func TestLinkExchange(t *testing.T) {
	f := newLinkFixture(t, SerialConfig{Name: "fake"})
	f.open(t)
	assert.True(t, f.link.opened())

	req, err := BuildRequest(5, CmdIdentify)
	require.NoError(t, err)
	require.NoError(t, f.link.write(req))

	ev := f.await(t, eventFrame)
	assert.Equal(t, buildReply("5", "12"), ev.frame)
}

func TestLinkPipelinedFrames(t *testing.T) {
	f := newLinkFixture(t, SerialConfig{Name: "fake"})
	f.open(t)

	p := f.currentPort()
	p.push([]byte("!5;12;23712\r!$0;6244\r!$7"))
	p.push([]byte(";10342\r"))

	for _, expected := range []string{"!5;12;23712\r", "!$0;6244\r", "!$7;10342\r"} {
		ev := f.await(t, eventFrame)
		assert.Equal(t, expected, string(ev.frame))
	}
}

func TestLinkByteByByte(t *testing.T) {
	f := newLinkFixture(t, SerialConfig{Name: "fake"})
	f.open(t)

	p := f.currentPort()
	for _, b := range []byte("xx!$0;6244\r") {
		p.push([]byte{b})
	}
	ev := f.await(t, eventFrame)
	assert.Equal(t, "xx!$0;6244\r", string(ev.frame))
}

func TestLinkDropsUnterminatedInput(t *testing.T) {
	f := newLinkFixture(t, SerialConfig{Name: "fake"})
	f.open(t)

	p := f.currentPort()
	p.push(bytes.Repeat([]byte{'x'}, maxPending+1))
	p.push([]byte("!$0;6244\r"))

	ev := f.await(t, eventFrame)
	assert.Equal(t, "!$0;6244\r", string(ev.frame))
}

func TestLinkWriteWhileClosed(t *testing.T) {
	f := newLinkFixture(t, SerialConfig{Name: "fake"})

	req, err := BuildRequest(5, CmdIdentify)
	require.NoError(t, err)
	require.NoError(t, f.link.write(req))

	// A close round trip guarantees the write was handled.
	require.NoError(t, f.link.close())
	f.await(t, eventClosed)

	messages, _ := f.observer.recorded()
	require.Len(t, messages, 1)
	assert.ErrorIs(t, messages[0].Err, ErrLinkClosed)
	assert.Empty(t, f.inst.stats().requests)
	assert.Zero(t, f.notify.drain())
}

func TestLinkCloseAlwaysSignals(t *testing.T) {
	f := newLinkFixture(t, SerialConfig{Name: "fake"})

	for i := 0; i < 2; i++ {
		require.NoError(t, f.link.close())
		ev := f.await(t, eventClosed)
		assert.NoError(t, ev.err)
	}

	f.open(t)
	require.NoError(t, f.link.close())
	f.await(t, eventClosed)
	assert.False(t, f.link.opened())
	assert.Equal(t, 1, f.inst.stats().closes)
}

func TestLinkOpenFailure(t *testing.T) {
	f := newLinkFixture(t, SerialConfig{Name: "/dev/ttyS9"})
	busy := errors.New("device busy")
	f.inst.set(func(in *fakeInstrument) { in.openErr = busy })

	require.NoError(t, f.link.open())
	ev := f.await(t, eventOpened)

	var oe *OpenError
	require.ErrorAs(t, ev.err, &oe)
	assert.Equal(t, "/dev/ttyS9", oe.Port)
	assert.ErrorIs(t, ev.err, busy)
	assert.False(t, f.link.opened())

	messages, _ := f.observer.recorded()
	require.Len(t, messages, 1)
	assert.Equal(t, MessageError, messages[0].Kind)
}

func TestLinkOpenIsIdempotent(t *testing.T) {
	f := newLinkFixture(t, SerialConfig{Name: "fake"})
	f.open(t)
	f.open(t)
	assert.Equal(t, 1, f.inst.stats().opens)
}

func TestLinkControlLines(t *testing.T) {
	f := newLinkFixture(t, SerialConfig{Name: "fake", DTR: true})
	f.open(t)

	st := f.inst.stats()
	assert.True(t, st.dtr)
	assert.False(t, st.rts)
}

func TestLinkReadFailure(t *testing.T) {
	observer := &recordingObserver{}
	notify := newNotifier()
	broken := errors.New("cable unplugged")
	opener := OpenerFunc(func(SerialConfig) (io.ReadWriteCloser, error) {
		return &brokenPort{err: broken}, nil
	})
	l := newLink(opener, SerialConfig{Name: "fake"}, notify, observer, quietLogger())
	t.Cleanup(l.stop)

	require.NoError(t, l.open())
	_, err := notify.acquire(context.Background(), eventOpened, time.Second, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, failures := observer.recorded()
		return len(failures) == 1 && errors.Is(failures[0], broken)
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return !l.opened() }, time.Second, 5*time.Millisecond)
}

type brokenPort struct {
	err error
}

func (p *brokenPort) Read([]byte) (int, error)    { return 0, p.err }
func (p *brokenPort) Write(b []byte) (int, error) { return len(b), nil }
func (p *brokenPort) Close() error                { return nil }

func TestLinkBaudRate(t *testing.T) {
	f := newLinkFixture(t, SerialConfig{Name: "fake"})

	// Before open only the configuration changes.
	require.NoError(t, f.link.setBaudRate(2400))
	f.open(t)
	assert.Equal(t, 2400, f.inst.stats().lastConfig.BaudRate)

	require.NoError(t, f.link.setBaudRate(19200))
	assert.Eventually(t, func() bool {
		changes := f.inst.stats().baudChanges
		return len(changes) == 1 && changes[0] == 19200
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.link.configure(SerialConfig{Name: "other", BaudRate: 600}))
	require.NoError(t, f.link.close())
	f.await(t, eventClosed)
	f.open(t)
	cfg := f.inst.stats().lastConfig
	assert.Equal(t, "other", cfg.Name)
	assert.Equal(t, 600, cfg.BaudRate)
}

func TestLinkStop(t *testing.T) {
	f := newLinkFixture(t, SerialConfig{Name: "fake"})
	f.open(t)

	f.link.stop()
	f.link.stop()
	assert.ErrorIs(t, f.link.open(), ErrLinkStopped)
	assert.ErrorIs(t, f.link.write([]byte("x")), ErrLinkStopped)
	assert.Equal(t, 1, f.inst.stats().closes)
}
