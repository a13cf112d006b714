package scheduler

import (
	"context"
	"time"

	"taskd/internal/notifier"
	"taskd/internal/storage"
	"taskd/internal/task"
	logx "taskd/pkg/logx"
)

// execute fires one task: invoke the backend, report the outcome, then
// unconditionally renew or delete the record. Cleanup runs regardless of
// how the invocation went; an error outcome is a reported result, not a
// reason to keep the task pending.
func (s *Service) execute(ctx context.Context, rec *task.Record, path string) {
	start := s.now()
	s.mu.Lock()
	timeout := s.cfg.InvokeTimeout
	s.mu.Unlock()

	ictx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := s.inv.Invoke(ictx, rec.ToolCall.ToolName, rec.ToolCall.Arguments)
	took := s.now().Sub(start)

	ev := notifier.Event{
		Category: "task.executed",
		TaskID:   rec.TaskID,
		Tool:     rec.ToolCall.ToolName,
	}
	if err != nil {
		s.log.Error("task execution failed",
			logx.String("task", rec.TaskID),
			logx.String("tool", rec.ToolCall.ToolName),
			logx.Duration("took", took),
			logx.Err(err))
		ev.Status = notifier.StatusError
		ev.Summary = err.Error()
	} else {
		s.log.Info("task executed",
			logx.String("task", rec.TaskID),
			logx.String("tool", rec.ToolCall.ToolName),
			logx.Duration("took", took))
		ev.Status = notifier.StatusSuccess
		ev.Summary = result
	}
	s.publish("task.fired", TaskEvent{TaskID: rec.TaskID, Tool: rec.ToolCall.ToolName})
	s.report(ctx, ev)

	disposed := s.cleanup(rec, path)

	if s.audit != nil {
		actx, cancel := context.WithTimeout(context.Background(), time.Second)
		entry := storage.ExecutionEntry{
			At:       start,
			TaskID:   rec.TaskID,
			Tool:     rec.ToolCall.ToolName,
			Status:   string(ev.Status),
			Summary:  result,
			TookMS:   took.Milliseconds(),
			Disposed: disposed,
		}
		if err != nil {
			entry.Error = err.Error()
		}
		if aerr := s.audit.AppendExecution(actx, entry); aerr != nil {
			s.log.Warn("audit append failed", logx.Err(aerr))
		}
		cancel()
	}
}

// cleanup disposes of a fired task's record: recurring records are
// rewritten with an advanced due time, one-shots are deleted. Returns the
// disposition ("renewed" or "deleted").
func (s *Service) cleanup(rec *task.Record, path string) string {
	// The pending entry, if any still exists, must not outlive the file
	// change about to happen.
	s.reg.Cancel(rec.TaskID)

	if rec.Recurring() {
		next, err := task.NextTrigger(rec.ScheduledLocalTime, rec.Interval)
		switch {
		case err != nil:
			s.log.Warn("renewal computation failed, deleting record",
				logx.String("task", rec.TaskID), logx.Err(err))
		case !s.st.Exists(path):
			// Record deleted while executing: deletion wins, no resurrection.
			s.log.Info("record deleted during execution, skipping renewal",
				logx.String("task", rec.TaskID))
			return "deleted"
		default:
			renewed := *rec
			renewed.ScheduledLocalTime = next
			if werr := s.st.Save(path, &renewed); werr == nil {
				s.log.Info("task renewed",
					logx.String("task", rec.TaskID),
					logx.String("next", next))
				s.publish("task.renewed", TaskEvent{TaskID: rec.TaskID, Tool: rec.ToolCall.ToolName})
				return "renewed"
			} else {
				s.log.Warn("renewal rewrite failed, deleting record",
					logx.String("task", rec.TaskID), logx.Err(werr))
			}
		}
	}

	if derr := s.st.Delete(path); derr != nil {
		// The record may re-fire after a restart; logged and tolerated.
		s.log.Warn("record delete failed",
			logx.String("task", rec.TaskID), logx.Err(derr))
	}
	s.publish("task.removed", TaskEvent{TaskID: rec.TaskID})
	return "deleted"
}
