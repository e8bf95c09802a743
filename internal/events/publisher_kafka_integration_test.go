//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"refahi/internal/events"
	id "refahi/pkg/domain"
	"refahi/pkg/testutil/containers"
)

func TestKafkaPublisherRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	redpanda := containers.GetManager().GetRedpanda(t)

	const topic = "survey.events.test"
	pub, err := events.NewKafkaPublisher(ctx, events.KafkaConfig{
		Brokers: redpanda.Brokers,
		Topic:   topic,
	}, slog.Default())
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() { runErr <- pub.Run(runCtx) }()
	defer func() {
		cancel()
		// Cancellation is a clean stop, so Run must not surface the
		// context error to the caller's error group.
		select {
		case err := <-runErr:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("publisher did not stop after cancel")
		}
		pub.Close()
	}()

	surveyID := id.NewSurveyID()
	event := events.New(events.TypeResponseSubmitted, surveyID, id.NewResponseID(), "member_test", time.Now().UTC()).
		WithAttribute("attempt", "1")
	require.NoError(t, pub.Publish(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	deadline, cancelPoll := context.WithTimeout(ctx, 30*time.Second)
	defer cancelPoll()
	for {
		fetches := consumer.PollFetches(deadline)
		require.NoError(t, deadline.Err(), "timed out waiting for event")
		var found bool
		fetches.EachRecord(func(r *kgo.Record) {
			var got events.Event
			require.NoError(t, json.Unmarshal(r.Value, &got))
			if got.ID == event.ID {
				require.Equal(t, events.TypeResponseSubmitted, got.Type)
				require.Equal(t, surveyID.String(), got.SurveyID)
				require.Equal(t, surveyID.String(), string(r.Key))
				require.Equal(t, "1", got.Attributes["attempt"])
				found = true
			}
		})
		if found {
			return
		}
	}
}
