package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Creates the topic of the fetch events (downloader -event-queue) and a subscription to consume them
func main() {
	ctx := context.Background()

	projectID := flag.String("project", "eo-fetcher-emulator", "emulator project")
	host := flag.String("host", "localhost:8085", "emulator host")
	topic := flag.String("topic", "eo-fetcher-events", "topic of the fetch events")
	subscription := flag.String("subscription", "eo-fetcher-events", "subscription to the fetch events")
	flag.Parse()

	os.Setenv("PUBSUB_EMULATOR_HOST", *host)

	log.Print("New client for project " + *projectID)
	client, err := pubsub.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatalf("pubsub.NewClient: %v", err)
	}
	defer client.Close()

	log.Print("Create Topic : " + *topic)
	if _, err = client.CreateTopic(ctx, *topic); err != nil && status.Code(err) != codes.AlreadyExists {
		log.Fatalf("pubsub.CreateTopic: %v", err)
	}

	log.Print("Create Subscription : " + *subscription)
	if _, err = client.CreateSubscription(ctx, *subscription, pubsub.SubscriptionConfig{
		Topic:       client.Topic(*topic),
		AckDeadline: 10 * time.Second,
	}); err != nil && status.Code(err) != codes.AlreadyExists {
		log.Fatalf("CreateSubscription: %v", err)
	}

	log.Print("Done!")
}
