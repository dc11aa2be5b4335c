package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskSequenceStepExecute = "autosales.sequence.step"

type SequenceStepPayload struct {
	SequenceID string `json:"sequenceId"`
	LeadID     string `json:"leadId"`
	StepType   string `json:"stepType"`
}

func NewSequenceStepTask(payload SequenceStepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSequenceStepExecute, data), nil
}

func ParseSequenceStepPayload(task *asynq.Task) (SequenceStepPayload, error) {
	var payload SequenceStepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SequenceStepPayload{}, err
	}
	return payload, nil
}
