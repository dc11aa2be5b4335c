package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"petshop_backend/platform/config"
)

func testConfig(addr string) *config.Config {
	return &config.Config{
		RedisURL:         "redis://" + addr,
		AsynqQueueName:   "autosales-test",
		AsynqConcurrency: 1,
	}
}

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(&config.Config{}); err == nil {
		t.Fatal("expected an error without a redis url")
	}
}

func TestScheduleSequenceStep(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(testConfig(mr.Addr()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	payload := SequenceStepPayload{
		SequenceID: uuid.NewString(),
		LeadID:     uuid.NewString(),
		StepType:   "followup_light",
	}
	runAt := time.Now().Add(45 * time.Minute)

	if err := client.ScheduleSequenceStep(context.Background(), payload, runAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Future tasks land in the queue's scheduled set.
	found := false
	for _, key := range mr.Keys() {
		if key == "asynq:{autosales-test}:scheduled" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a scheduled task key, keys: %v", mr.Keys())
	}
}

func TestSequenceStepPayloadRoundTrip(t *testing.T) {
	payload := SequenceStepPayload{
		SequenceID: uuid.NewString(),
		LeadID:     uuid.NewString(),
		StepType:   "intro",
	}

	task, err := NewSequenceStepTask(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Type() != TaskSequenceStepExecute {
		t.Errorf("unexpected task type %q", task.Type())
	}

	parsed, err := ParseSequenceStepPayload(task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != payload {
		t.Errorf("payload mismatch: %+v != %+v", parsed, payload)
	}
}
