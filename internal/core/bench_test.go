package core

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vovakirdan/wirechat-gateway/internal/backend"
	"github.com/vovakirdan/wirechat-gateway/internal/backend/memory"
	"github.com/vovakirdan/wirechat-gateway/internal/proto"
)

func benchmarkChannelTranslation(b *testing.B, roster int) {
	be, err := memory.FromFixture(testFixture())
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < roster; i++ {
		id := backend.CharacterID("c-extra-" + strconv.Itoa(i))
		extra := backend.Character{ID: id, Name: "Extra" + strconv.Itoa(i), Status: backend.StatusOnline}
		if err := be.AddCharacter("", extra, false); err != nil {
			b.Fatal(err)
		}
		if err := be.Join(id, general); err != nil {
			b.Fatal(err)
		}
	}
	if err := be.Join(alice, general); err != nil {
		b.Fatal(err)
	}

	l := testLogger()
	cache := NewClientCache(be, l)
	registry := NewRegistry(cache, testOptions(clock.New()), nil, l)
	defer registry.Shutdown(context.Background())

	c := newTestConn()
	s, err := registry.CreateSession(context.Background(), c.conn())
	if err != nil {
		b.Fatal(err)
	}
	c.send(loginCommand("Alice"))
	for s.State() != StateRunning {
		select {
		case <-c.out:
		case <-s.Done():
			b.Fatal("session ended during bootstrap")
		case <-time.After(time.Millisecond):
		}
	}
	drain(c.out)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := be.Post(bob, general, "payload"); err != nil {
			b.Fatal(err)
		}
		if _, ok := (<-c.out).(proto.ChannelMessage); !ok {
			b.Fatal("expected channel message")
		}
	}
}

func BenchmarkChannelTranslation_10(b *testing.B)  { benchmarkChannelTranslation(b, 10) }
func BenchmarkChannelTranslation_100(b *testing.B) { benchmarkChannelTranslation(b, 100) }
func BenchmarkChannelTranslation_500(b *testing.B) { benchmarkChannelTranslation(b, 500) }
