package model

import "time"

// JobEvent announces that a job reached a terminal state.
// Subscribers re-read the job; the event carries only identity and status.
type JobEvent struct {
	JobID      string    `json:"job_id"`
	Status     JobStatus `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// LiveMessage is the payload pushed over a live channel.
type LiveMessage struct {
	JobID        string    `json:"job_id"`
	Status       JobStatus `json:"status"`
	Title        string    `json:"title,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Methodology  string    `json:"methodology,omitempty"`
	Takeaways    []string  `json:"takeaways,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// NewLiveMessage renders a job snapshot for the live channel.
// Digest fields appear only on completed jobs and error_message only on failed ones.
func NewLiveMessage(j Job) LiveMessage {
	msg := LiveMessage{JobID: j.ID, Status: j.Status}
	switch j.Status {
	case JobStatusCompleted:
		if j.Digest != nil {
			msg.Title = j.Digest.Title
			msg.Summary = j.Digest.Summary
			msg.Methodology = j.Digest.Methodology
			msg.Takeaways = j.Digest.Takeaways
		}
	case JobStatusFailed:
		if j.ErrorMessage != nil {
			msg.ErrorMessage = *j.ErrorMessage
		}
	}
	return msg
}
