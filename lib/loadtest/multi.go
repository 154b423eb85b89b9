package loadtest

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StartMultiLoadTest spreads load over many content paths by running one
// loadtest child process per path, each with its own session.
func StartMultiLoadTest(logger *zap.SugaredLogger, host string, maxPaths int) {
	if maxPaths <= 0 {
		maxPaths = 10
	}

	fmt.Printf("Starting multi-path load test: %d paths for 30 seconds each\n", maxPaths)

	executable, err := os.Executable()
	if err != nil {
		logger.Errorf("Failed to get executable path: %v", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup

	for i := 0; i < maxPaths; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			contentPath := fmt.Sprintf("load/%d-%s", id, randomPathSegment())
			cmd := exec.Command(executable, "loadtest", host,
				"-path", contentPath, "-authors", "3", "-duration", "30")
			cmd.Env = append(os.Environ(), "SILENT_METRICS=true")

			output, err := cmd.CombinedOutput()
			if err != nil {
				fmt.Printf("Child process %d exited with error: %v\n", id, err)
				fmt.Printf("Output: %s\n", string(output))
				fmt.Println("paths started before the failure:", id)
				os.Exit(1)
			}
		}(i)

		// Small delay between starts to not overwhelm everything at once
		time.Sleep(100 * time.Millisecond)
	}

	wg.Wait()
	fmt.Println("Multi-path load test completed successfully")
}
