package relay

import (
	"context"
	"testing"
)

func benchmarkBroadcast(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(false, nil)
	go hub.Run(ctx)

	sender := NewPeer(1)
	hub.RegisterClient(sender)

	peers := make([]*Peer, 0, recipients)
	for range recipients {
		p := NewPeer(64)
		hub.RegisterClient(p)
		peers = append(peers, p)
	}

	// Drain events for all but the first recipient to avoid channel backpressure.
	target := peers[0]
	for _, p := range peers[1:] {
		go func(p *Peer) {
			for range p.Events {
			}
		}(p)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		hub.Publish(ctx, sender, "payload")
		<-target.Events
	}
}

func BenchmarkBroadcast_10(b *testing.B)  { benchmarkBroadcast(b, 10) }
func BenchmarkBroadcast_100(b *testing.B) { benchmarkBroadcast(b, 100) }
func BenchmarkBroadcast_500(b *testing.B) { benchmarkBroadcast(b, 500) }
