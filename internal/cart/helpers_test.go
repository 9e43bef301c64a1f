package cart_test

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: false, DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

// fakeKV умеет задерживать Get/Set и отдавать ошибки.
type fakeKV struct {
	mu      sync.Mutex
	values  map[string]string
	sets    []string
	getErr  error
	setErrs []error

	getGate    chan struct{}
	setGate    chan struct{}
	setStarted chan struct{}
}

func newFakeKV() *fakeKV {
	return &fakeKV{
		values:     make(map[string]string),
		setStarted: make(chan struct{}, 128),
	}
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	if f.getGate != nil {
		select {
		case <-f.getGate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	value, ok := f.values[key]
	if !ok {
		return "", domain.ErrKeyNotFound
	}
	return value, nil
}

func (f *fakeKV) Set(ctx context.Context, key, value string) error {
	select {
	case f.setStarted <- struct{}{}:
	default:
	}
	if f.setGate != nil {
		select {
		case <-f.setGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, value)
	if len(f.setErrs) > 0 {
		err := f.setErrs[0]
		f.setErrs = f.setErrs[1:]
		if err != nil {
			return err
		}
	}
	f.values[key] = value
	return nil
}

func (f *fakeKV) value(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeKV) setCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sets))
	copy(out, f.sets)
	return out
}

func (f *fakeKV) failSets(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setErrs = append(f.setErrs, errs...)
}

var errBackendDown = errors.New("backend down")

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SnapshotEvent
}

func (p *recordingPublisher) PublishSnapshot(_ context.Context, event domain.SnapshotEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) published() []domain.SnapshotEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.SnapshotEvent, len(p.events))
	copy(out, p.events)
	return out
}
