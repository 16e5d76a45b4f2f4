package main

import (
	"context"
	"fmt"

	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/airbusgeo/geocube/interface/messaging/pgqueue"
	"github.com/airbusgeo/geocube/interface/messaging/pubsub"
	"github.com/habforecast/eo-fetcher/service/log"
)

// newEventPublisher connects the event queue (pgqueue if configured, pubsub otherwise).
// It returns a nil publisher if no event queue is configured.
func newEventPublisher(ctx context.Context, config *config) (messaging.Publisher, func(), error) {
	if config.EventQueue == "" {
		return nil, func() {}, nil
	}
	if config.PgqConnection != "" {
		_, w, err := pgqueue.SqlConnect(ctx, config.PgqConnection)
		if err != nil {
			return nil, nil, fmt.Errorf("MessagingService: %w", err)
		}
		log.Logger(ctx).Sugar().Debugf("pushing events on pgqueue:%s", config.EventQueue)
		return pgqueue.NewPublisher(w, config.EventQueue, pgqueue.WithMaxRetries(5)), func() {}, nil
	}

	log.Logger(ctx).Sugar().Debugf("pushing events on pubsub:%s/%s", config.PsProject, config.EventQueue)
	eventTopic, err := pubsub.NewPublisher(ctx, config.PsProject, config.EventQueue, pubsub.WithMaxRetries(5))
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub.NewPublisher: %w", err)
	}
	return eventTopic, func() { eventTopic.Stop() }, nil
}
