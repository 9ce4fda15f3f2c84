package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"cronjure/internal/scheduler"
	"cronjure/pkg/logx"
)

const (
	outputTail = 4 << 10
	waitDelay  = 5 * time.Second
)

// execJob runs data.command (argv list or a whitespace-split string) in
// data.dir with data.env added to the process environment.
type execJob struct{ log logx.Logger }

func (j execJob) Execute(ctx context.Context, jc scheduler.JobContext) error {
	argv, err := stringList(jc.Data, "command")
	if err != nil {
		return err
	}
	if len(argv) == 0 {
		return errors.New("data.command: required")
	}
	dir, err := stringField(jc.Data, "dir")
	if err != nil {
		return err
	}
	env, keys, err := stringMap(jc.Data, "env")
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	cmd.Env = append(os.Environ(),
		"CRONJURE_JOB_ID="+jc.JobID,
		"CRONJURE_JOB_KIND="+jc.Kind,
		"CRONJURE_JOB_GROUP="+jc.Group,
	)
	for _, k := range keys {
		cmd.Env = append(cmd.Env, k+"="+env[k])
	}
	out := &tailBuffer{max: outputTail}
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	err = cmd.Run()
	attrs := append(jobFields(jc),
		logx.String("cmd", argv[0]),
		logx.Duration("took", time.Since(start)),
	)
	if s := strings.TrimSpace(out.String()); s != "" {
		attrs = append(attrs, logx.String("output", s))
	}
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("exec %s: %w", argv[0], ctx.Err())
		}
		j.log.Debug("command failed", append(attrs, logx.Err(err))...)
		return fmt.Errorf("exec %s: %w", argv[0], err)
	}
	j.log.Debug("command finished", attrs...)
	return nil
}

// tailBuffer keeps the last max bytes written.
type tailBuffer struct {
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string { return string(b.buf) }
