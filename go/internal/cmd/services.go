package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/yschen25/collectden/go/internal/auctions"
	"github.com/yschen25/collectden/go/internal/feed"
	"github.com/yschen25/collectden/go/internal/gateway"
	"github.com/yschen25/collectden/go/internal/rotation"
	"github.com/yschen25/collectden/go/internal/session"
	"github.com/yschen25/collectden/go/internal/synth"
)

type Services struct {
	ConnManager     *gateway.ConnectionManager
	Registry        *session.Registry
	Viewers         *session.WSHandler
	RotationTrigger *rotation.TriggerHandler
	Feed            *feed.Consumer
}

// setupServices wires the engine: pool layer, repositories, session registry,
// websocket gateway and the feed consumer. ctx bounds the sessions spawned by
// the websocket handler.
func setupServices(ctx context.Context, cfg EngineConfig, pool *pgxpool.Pool) (*Services, error) {
	clock := clockwork.NewRealClock()

	connManager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())

	synthesizer := synth.NewSynthesizer(cfg.Synth)
	registry := session.NewRegistry(synthesizer, cfg.Synth.BidderNames, clock, connManager)

	// Sessions die with their socket; viewer frames route back to them
	connManager.OnDisconnect = registry.Detach
	connManager.OnClientMessage = registry.HandleClientMessage

	auctionRepo := auctions.NewPGRepository(pool)
	viewers := session.NewWSHandler(ctx, registry, auctionRepo, connManager)

	rotationRepo := rotation.NewPGRepository(pool)
	scheduler := rotation.NewScheduler(rotationRepo, clock, cfg.Rotation)
	trigger := rotation.NewTriggerHandler(scheduler, cfg.RotationSecret)

	consumer, err := feed.NewConsumer(ctx, cfg.NATSURL, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed consumer: %w", err)
	}

	return &Services{
		ConnManager:     connManager,
		Registry:        registry,
		Viewers:         viewers,
		RotationTrigger: trigger,
		Feed:            consumer,
	}, nil
}
