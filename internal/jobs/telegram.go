package jobs

import (
	"context"
	"errors"
	"fmt"

	"cronjure/internal/scheduler"
	"cronjure/pkg/logx"
)

// telegramJob sends data.text to data.chat_id (or the default chat), in the
// optional data.thread_id topic.
type telegramJob struct {
	chat        Messenger
	defaultChat int64
	log         logx.Logger
}

func (j telegramJob) Execute(ctx context.Context, jc scheduler.JobContext) error {
	text, err := requiredString(jc.Data, "text")
	if err != nil {
		return err
	}
	chatID, ok, err := intField(jc.Data, "chat_id")
	if err != nil {
		return err
	}
	if !ok {
		chatID = j.defaultChat
	}
	if chatID == 0 {
		return errors.New("data.chat_id: required when no default chat is configured")
	}
	thread, _, err := intField(jc.Data, "thread_id")
	if err != nil {
		return err
	}

	if err := j.chat.SendText(ctx, chatID, int(thread), text); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	j.log.Debug("telegram message sent", append(jobFields(jc), logx.Int64("chat_id", chatID))...)
	return nil
}
