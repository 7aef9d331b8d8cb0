package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	"go.uber.org/zap"
)

// hookTimeout bounds the completion hook so a stuck notifier cannot hold
// the process open.
const hookTimeout = 30 * time.Second

// RunCompletionHook executes the configured on_complete command after the
// report is written. The hook inherits the environment plus CITEGRAPH_RUN_ID,
// CITEGRAPH_RUN_STATUS and CITEGRAPH_REPORT_PATH. Hook failure is logged,
// never fatal: the run's outcome is already decided.
func RunCompletionHook(command string, record *RunRecord, reportPath string, logger *zap.SugaredLogger) {
	if command == "" {
		return
	}

	words, err := shellquote.Split(command)
	if err != nil {
		logger.Errorw("Completion hook command unparseable",
			"command", command,
			"error", err)
		return
	}
	if len(words) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, words[0], words[1:]...)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("CITEGRAPH_RUN_ID=%s", record.RunID),
		fmt.Sprintf("CITEGRAPH_RUN_STATUS=%s", record.Status),
		fmt.Sprintf("CITEGRAPH_REPORT_PATH=%s", reportPath),
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		logger.Errorw("Completion hook failed",
			"command", command,
			"output", string(output),
			"error", err)
		return
	}

	logger.Debugw("Completion hook finished",
		"command", words[0])
}
