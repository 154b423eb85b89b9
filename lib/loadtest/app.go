package loadtest

import (
	"flag"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vellumhq/vellum-go/lib/cli"
	"github.com/vellumhq/vellum-go/lib/collab"
	modelws "github.com/vellumhq/vellum-go/lib/models/ws"
	"github.com/vellumhq/vellum-go/lib/utils"
	"go.uber.org/zap"
)

func RunFromCLI(logger *zap.SugaredLogger, args []string) {
	host, contentPath, authors, lurkers, duration, untilFail, err := parseRunArgs(args)
	if err != nil {
		return
	}
	StartLoadTest(logger, host, contentPath, authors, lurkers, duration, untilFail)
}

func parseRunArgs(args []string) (string, string, int, int, int, bool, error) {
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	host := fs.String("host", "http://127.0.0.1:8090", "The host to test")
	contentPath := fs.String("path", "", "Content path the session runs on (random when empty)")
	authors := fs.Int("authors", 0, "Number of authors")
	lurkers := fs.Int("lurkers", 0, "Number of lurkers")
	duration := fs.Int("duration", 0, "Duration of the test in seconds")
	untilFail := fs.Bool("loadUntilFail", false, "Load until the server fails")

	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		*host = args[0]
		args = args[1:]
	}

	err := fs.Parse(args)
	return *host, *contentPath, *authors, *lurkers, *duration, *untilFail, err
}

func RunMultiFromCLI(logger *zap.SugaredLogger, args []string) {
	host, maxPaths, err := parseMultiRunArgs(args)
	if err != nil {
		return
	}
	StartMultiLoadTest(logger, host, maxPaths)
}

func parseMultiRunArgs(args []string) (string, int, error) {
	fs := flag.NewFlagSet("multiload", flag.ContinueOnError)
	host := fs.String("host", "http://127.0.0.1:8090", "The host to test")
	maxPaths := fs.Int("maxPaths", 10, "Maximum number of content paths")

	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		*host = args[0]
		args = args[1:]
	}

	err := fs.Parse(args)
	return *host, *maxPaths, err
}

type Metrics struct {
	ClientsConnected int64
	AuthorsConnected int64
	LurkersConnected int64
	AppendSent       int64
	ErrorCount       int64
	AckedChanges     int64
	ChangeFromServer int64
	StartTime        time.Time
}

var stats Metrics
var maxPS float64
var statsLock sync.Mutex

func randomPathSegment() string {
	const chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	const strLen = 10
	var b strings.Builder
	for i := 0; i < strLen; i++ {
		b.WriteByte(chars[rand.Intn(len(chars))])
	}
	return b.String()
}

func updateMetricsUI(target string) {
	if os.Getenv("SILENT_METRICS") == "true" {
		return
	}
	statsLock.Lock()
	defer statsLock.Unlock()

	testDuration := time.Since(stats.StartTime)

	// Clear screen and move cursor to top-left
	fmt.Print("\033[2J\033[0;0H")
	fmt.Printf("Load Test Metrics -- Target %s\n\n", target)

	fmt.Printf("Local Clients Connected: %d\n", atomic.LoadInt64(&stats.ClientsConnected))
	fmt.Printf("Authors Connected: %d\n", atomic.LoadInt64(&stats.AuthorsConnected))
	fmt.Printf("Lurkers Connected: %d\n", atomic.LoadInt64(&stats.LurkersConnected))
	fmt.Printf("Sent Append messages: %d\n", atomic.LoadInt64(&stats.AppendSent))
	fmt.Printf("Errors: %d\n", atomic.LoadInt64(&stats.ErrorCount))
	fmt.Printf("Changes acked by server: %d\n", atomic.LoadInt64(&stats.AckedChanges))

	changesFromServer := atomic.LoadInt64(&stats.ChangeFromServer)
	fmt.Printf("Changes sent from server to clients: %d\n", changesFromServer)

	durationSec := testDuration.Seconds()
	if durationSec > 0 {
		currentRate := float64(changesFromServer) / durationSec // This is mean rate actually in this simple impl
		fmt.Printf("Current rate per second of changes sent from server to clients: %.0f\n", currentRate)
		fmt.Printf("Mean(per second) of # of changes sent from server to clients: %.0f\n", currentRate)

		if currentRate > maxPS {
			maxPS = currentRate
		}
		fmt.Printf("Max(per second) of # of broadcast frames: %.0f\n", maxPS)
	}

	diff := atomic.LoadInt64(&stats.AppendSent) - atomic.LoadInt64(&stats.AckedChanges)
	if diff > 5 {
		fmt.Printf("Number of changes not yet acked by server: %d\n", diff)
	}

	fmt.Printf("Seconds test has been running for: %d\n", int(durationSec))
}

func newAuthor(host string, contentPath string, target string, logger *zap.SugaredLogger) {
	client := cli.Connect(host, contentPath, "author-"+utils.RandomString(4), logger)

	client.OnDisconnect(func(err interface{}) {
		fmt.Printf("session client disconnected: %v\n", err)
		os.Exit(1)
	})

	atomic.AddInt64(&stats.ClientsConnected, 1)
	atomic.AddInt64(&stats.AuthorsConnected, 1)
	updateMetricsUI(target)

	client.OnAck(func(change *collab.RealTimeChange) {
		atomic.AddInt64(&stats.AckedChanges, 1)
		updateMetricsUI(target)
	})

	client.OnChange(func(change *collab.RealTimeChange) {
		atomic.AddInt64(&stats.ChangeFromServer, 1)
	})

	client.OnError(func(msg modelws.ErrorMessage) {
		atomic.AddInt64(&stats.ErrorCount, 1)
		logger.Warnf("server rejected a change: %s (%s)", msg.Message, msg.Code)
	})

	ticker := time.NewTicker(400 * time.Millisecond)
	go func() {
		for range ticker.C {
			atomic.AddInt64(&stats.AppendSent, 1)
			updateMetricsUI(target)
			client.Append(utils.RandomString(10))
		}
	}()
}

func newLurker(host string, contentPath string, target string, logger *zap.SugaredLogger) {
	client := cli.Connect(host, contentPath, "lurker-"+utils.RandomString(4), logger)

	client.OnDisconnect(func(err interface{}) {
		fmt.Printf("session client disconnected: %v\n", err)
		os.Exit(1)
	})

	atomic.AddInt64(&stats.ClientsConnected, 1)
	atomic.AddInt64(&stats.LurkersConnected, 1)
	updateMetricsUI(target)

	client.OnChange(func(change *collab.RealTimeChange) {
		atomic.AddInt64(&stats.ChangeFromServer, 1)
	})
}

func StartLoadTest(logger *zap.SugaredLogger, host string, contentPath string, numAuthors, numLurkers int, duration int, loadUntilFail bool) {
	stats.StartTime = time.Now()

	if host == "" {
		host = "http://127.0.0.1:8090"
	}
	if _, err := url.Parse(host); err != nil {
		fmt.Printf("Invalid host: %v\n", err)
		os.Exit(1)
	}
	if contentPath == "" {
		contentPath = "load/" + randomPathSegment()
	}
	target := fmt.Sprintf("%s on %s", contentPath, host)

	var endTime time.Time
	if duration > 0 {
		endTime = stats.StartTime.Add(time.Duration(duration) * time.Second)
	}

	if numAuthors > 0 || numLurkers > 0 {
		var users []string
		for i := 0; i < numLurkers; i++ {
			users = append(users, "l")
		}
		for i := 0; i < numAuthors; i++ {
			users = append(users, "a")
		}

		go func() {
			for _, t := range users {
				if t == "l" {
					newLurker(host, contentPath, target, logger)
				} else {
					newAuthor(host, contentPath, target, logger)
				}
				time.Sleep(200 * time.Millisecond / time.Duration(len(users)))
			}
		}()
	} else {
		if duration > 0 {
			fmt.Printf("Creating load for %d seconds\n", duration)
		} else {
			fmt.Println("Creating load until the server stops responding in a timely fashion")
		}

		go func() {
			// Loads at ratio of 3(lurkers):1(author), every 1 second it adds more.
			users := []string{"a", "l", "l", "l"}
			ticker := time.NewTicker(1 * time.Second)
			for range ticker.C {
				for _, t := range users {
					if t == "l" {
						newLurker(host, contentPath, target, logger)
					} else {
						newAuthor(host, contentPath, target, logger)
					}
					time.Sleep(200 * time.Millisecond / time.Duration(len(users)))
				}
			}
		}()
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	for range ticker.C {
		if !endTime.IsZero() && time.Now().After(endTime) {
			fmt.Println("Test duration complete and Load Tests PASS")
			// Print final stats
			fmt.Printf("%+v\n", stats)
			if os.Getenv("GO_TEST_MODE") == "true" {
				return
			}
			os.Exit(0)
		}

		if loadUntilFail {
			diff := atomic.LoadInt64(&stats.AppendSent) - atomic.LoadInt64(&stats.AckedChanges)
			if diff > 100 {
				fmt.Printf("Load test failed: too many pending changes (%d)\n", diff)
				if os.Getenv("GO_TEST_MODE") == "true" {
					return
				}
				os.Exit(1)
			}
		}
	}
}
