package labeling

import (
	"context"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/amp-labs/amp-fsm/jobs"
)

// EntityTypes lists the entity types whose state is tracked.
func EntityTypes() []string {
	return []string{EntityTask, EntityAnnotation}
}

// ImportTasks records task_created for every imported task. Results are in
// input order; a failing task does not stop the rest.
func ImportTasks(
	ctx context.Context,
	runner *jobs.Runner,
	tasks []Task,
	data []map[string]any,
	actor fsm.Actor,
) ([]jobs.Result, error) {
	batch := make([]jobs.Job, len(tasks))

	for i, task := range tasks {
		payload := map[string]any{"source": "import"}
		if i < len(data) && data[i] != nil {
			payload["data"] = data[i]
		}

		batch[i] = jobs.Job{
			Entity:     task,
			Transition: "task_created",
			Data:       payload,
			Actor:      actor,
		}
	}

	return runner.RunBatch(ctx, batch)
}

// BulkSetStatus moves every task to status through bulk_status_update.
func BulkSetStatus(
	ctx context.Context,
	runner *jobs.Runner,
	tasks []Task,
	status string,
	actor fsm.Actor,
	reason string,
) ([]jobs.Result, error) {
	batch := make([]jobs.Job, len(tasks))

	for i, task := range tasks {
		job := jobs.Job{
			Entity:     task,
			Transition: "bulk_status_update",
			Data:       map[string]any{"status": status},
			Actor:      actor,
		}

		if reason != "" {
			job.Options = []fsm.ContextOption{fsm.WithReason(reason)}
		}

		batch[i] = job
	}

	return runner.RunBatch(ctx, batch)
}
