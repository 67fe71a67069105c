package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
)

// LoadTestConfig holds configuration for load testing
type LoadTestConfig struct {
	BaseURL         string
	NumStudents     int
	CourseID        int64
	ConcurrentUsers int
	CompletePayment bool
	SettleWait      time.Duration
}

// LoadTestResult holds the results of load testing
type LoadTestResult struct {
	Attempts          int
	Held              int
	SessionsStarted   int
	PaymentsSent      int
	RejectedFull      int
	RejectedOther     int
	FailedReqs        int
	AvgResponseTimeMs float64
	MaxResponseTimeMs int64
	MinResponseTimeMs int64
	ThroughputRPS     float64
	ErrorsByType      map[string]int
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors"`
}

// LoadTester races checkouts for one course and then checks that the course
// was not overbooked.
type LoadTester struct {
	config    LoadTestConfig
	client    *http.Client
	students  []int64
	results   LoadTestResult
	requests  int
	mutex     sync.Mutex
	startTime time.Time
}

// NewLoadTester creates a new load tester
func NewLoadTester(config LoadTestConfig) *LoadTester {
	return &LoadTester{
		config: config,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		results: LoadTestResult{
			ErrorsByType: make(map[string]int),
		},
	}
}

// Initialize creates the students that will compete for seats
func (lt *LoadTester) Initialize() error {
	fmt.Printf("Creating %d students...\n", lt.config.NumStudents)

	for i := 0; i < lt.config.NumStudents; i++ {
		var student struct {
			StudentID int64 `json:"student_id"`
		}
		status, env, err := lt.post("/api/v1/students", map[string]string{
			"first_name": "Load",
			"last_name":  fmt.Sprintf("Tester %d", i),
		})
		if err != nil {
			return err
		}
		if status != http.StatusCreated {
			return fmt.Errorf("creating student: http %d: %s", status, env.Message)
		}
		if err := json.Unmarshal(env.Data, &student); err != nil {
			return fmt.Errorf("decoding student: %w", err)
		}
		lt.students = append(lt.students, student.StudentID)
	}
	return nil
}

// RunLoadTest executes the load test
func (lt *LoadTester) RunLoadTest() {
	fmt.Printf("Starting checkout race for course %d with %d concurrent users...\n", lt.config.CourseID, lt.config.ConcurrentUsers)

	lt.startTime = time.Now()
	var wg sync.WaitGroup

	// Create semaphore to limit concurrent requests
	semaphore := make(chan struct{}, lt.config.ConcurrentUsers)

	for _, studentID := range lt.students {
		wg.Add(1)

		go func(studentID int64) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			lt.simulateCheckout(studentID)
		}(studentID)
	}

	wg.Wait()
	lt.calculateMetrics()
}

// simulateCheckout walks one student through hold, checkout and payment
func (lt *LoadTester) simulateCheckout(studentID int64) {
	lt.mutex.Lock()
	lt.results.Attempts++
	lt.mutex.Unlock()

	status, env, err := lt.post("/api/v1/registrations", map[string]int64{
		"student_id": studentID,
		"course_id":  lt.config.CourseID,
	})
	if err != nil {
		lt.recordError("http_request")
		return
	}
	switch {
	case status == http.StatusCreated:
		lt.count(func(r *LoadTestResult) { r.Held++ })
	case status == http.StatusConflict && strings.Contains(string(env.Errors), "CAPACITY_EXCEEDED"):
		lt.count(func(r *LoadTestResult) { r.RejectedFull++ })
		return
	case status == http.StatusConflict:
		lt.count(func(r *LoadTestResult) { r.RejectedOther++ })
		return
	default:
		lt.recordError(fmt.Sprintf("create_http_%d", status))
		return
	}

	var reg struct {
		RegistrationID string `json:"registration_id"`
	}
	if err := json.Unmarshal(env.Data, &reg); err != nil {
		lt.recordError("decode_registration")
		return
	}

	status, env, err = lt.post("/api/v1/registrations/"+reg.RegistrationID+"/checkout", nil)
	if err != nil || status != http.StatusOK {
		lt.recordError(fmt.Sprintf("checkout_http_%d", status))
		return
	}
	lt.count(func(r *LoadTestResult) { r.SessionsStarted++ })

	if !lt.config.CompletePayment {
		return
	}

	var checkout struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(env.Data, &checkout); err != nil {
		lt.recordError("decode_checkout")
		return
	}
	status, _, err = lt.post("/webhooks/payments", map[string]string{
		"session_id": checkout.SessionID,
		"status":     "complete",
	})
	if err != nil || status != http.StatusOK {
		lt.recordError(fmt.Sprintf("webhook_http_%d", status))
		return
	}
	lt.count(func(r *LoadTestResult) { r.PaymentsSent++ })
}

func (lt *LoadTester) post(path string, body interface{}) (int, *apiEnvelope, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, nil, err
		}
	}
	return lt.do(http.MethodPost, path, &buf)
}

func (lt *LoadTester) do(method, path string, body *bytes.Buffer) (int, *apiEnvelope, error) {
	startTime := time.Now()

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, lt.config.BaseURL+path, body)
	} else {
		req, err = http.NewRequest(method, lt.config.BaseURL+path, nil)
	}
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := lt.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	lt.recordLatency(time.Since(startTime))

	env := &apiEnvelope{}
	_ = json.NewDecoder(resp.Body).Decode(env)
	return resp.StatusCode, env, nil
}

func (lt *LoadTester) count(update func(r *LoadTestResult)) {
	lt.mutex.Lock()
	defer lt.mutex.Unlock()
	update(&lt.results)
}

// recordLatency records the response time metrics
func (lt *LoadTester) recordLatency(responseTime time.Duration) {
	lt.mutex.Lock()
	defer lt.mutex.Unlock()

	lt.requests++
	responseTimeMs := responseTime.Milliseconds()

	if lt.results.MaxResponseTimeMs < responseTimeMs {
		lt.results.MaxResponseTimeMs = responseTimeMs
	}
	if lt.results.MinResponseTimeMs == 0 || lt.results.MinResponseTimeMs > responseTimeMs {
		lt.results.MinResponseTimeMs = responseTimeMs
	}

	// Calculate running average
	currentCount := float64(lt.requests)
	lt.results.AvgResponseTimeMs = (lt.results.AvgResponseTimeMs*(currentCount-1) + float64(responseTimeMs)) / currentCount
}

// recordError records an error that occurred during testing
func (lt *LoadTester) recordError(errorType string) {
	lt.mutex.Lock()
	defer lt.mutex.Unlock()

	lt.results.FailedReqs++
	lt.results.ErrorsByType[errorType]++
}

// calculateMetrics calculates final test metrics
func (lt *LoadTester) calculateMetrics() {
	totalDuration := time.Since(lt.startTime)
	lt.results.ThroughputRPS = float64(lt.requests) / totalDuration.Seconds()
}

// CheckOverbooking reads the course availability once events have settled
// and reports whether held seats stayed within capacity.
func (lt *LoadTester) CheckOverbooking() (bool, error) {
	time.Sleep(lt.config.SettleWait)

	status, env, err := lt.do(http.MethodGet, fmt.Sprintf("/api/v1/courses/%d/availability", lt.config.CourseID), nil)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("availability: http %d: %s", status, env.Message)
	}

	var availability struct {
		Capacity  int `json:"capacity"`
		Confirmed int `json:"confirmed"`
		InFlight  int `json:"in_flight"`
	}
	if err := json.Unmarshal(env.Data, &availability); err != nil {
		return false, err
	}

	fmt.Printf("\nSeat Accounting:\n")
	fmt.Printf("  - Capacity: %d\n", availability.Capacity)
	fmt.Printf("  - Confirmed enrollments: %d\n", availability.Confirmed)
	fmt.Printf("  - In-flight holds: %d\n", availability.InFlight)

	return availability.Confirmed+availability.InFlight <= availability.Capacity, nil
}

// printResults displays the load test results
func (lt *LoadTester) printResults() {
	fmt.Println("\n" + strings.Repeat("=", 80))

	fmt.Printf("Test Configuration:\n")
	fmt.Printf("  - Students: %d\n", lt.config.NumStudents)
	fmt.Printf("  - Concurrent Users: %d\n", lt.config.ConcurrentUsers)
	fmt.Printf("  - Course: %d\n", lt.config.CourseID)
	fmt.Printf("  - Complete payments: %t\n", lt.config.CompletePayment)

	fmt.Printf("\nOutcomes:\n")
	fmt.Printf("  - Attempts: %d\n", lt.results.Attempts)
	fmt.Printf("  - Seats held: %d\n", lt.results.Held)
	fmt.Printf("  - Rejected, course full: %d\n", lt.results.RejectedFull)
	fmt.Printf("  - Rejected, other conflict: %d\n", lt.results.RejectedOther)
	fmt.Printf("  - Checkout sessions started: %d\n", lt.results.SessionsStarted)
	fmt.Printf("  - Payments completed: %d\n", lt.results.PaymentsSent)
	fmt.Printf("  - Failed: %d\n", lt.results.FailedReqs)

	fmt.Printf("\nResponse Time Metrics:\n")
	fmt.Printf("  - Average: %.2f ms\n", lt.results.AvgResponseTimeMs)
	fmt.Printf("  - Minimum: %d ms\n", lt.results.MinResponseTimeMs)
	fmt.Printf("  - Maximum: %d ms\n", lt.results.MaxResponseTimeMs)
	fmt.Printf("  - Requests per Second: %.2f\n", lt.results.ThroughputRPS)

	if len(lt.results.ErrorsByType) > 0 {
		fmt.Printf("\nError Breakdown:\n")
		for errorType, count := range lt.results.ErrorsByType {
			fmt.Printf("  - %s: %d\n", errorType, count)
		}
	}
}

// loadtestCmd represents the loadtest command
var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Race concurrent checkouts against a running server",
	Long: `Race concurrent checkouts for a single course against a running server.
Every simulated student holds a seat, opens a checkout session and, with
--complete, reports the payment through the webhook (fake provider only).
The run fails if the course ends up with more held seats than capacity.`,
	Run: func(cmd *cobra.Command, args []string) {
		runLoadTest()
	},
}

var (
	baseURL         string
	numStudents     int
	courseID        int64
	concurrentUsers int
	completePayment bool
	settleWait      time.Duration
)

func init() {
	rootCmd.AddCommand(loadtestCmd)

	loadtestCmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the checkout API")
	loadtestCmd.Flags().IntVar(&numStudents, "students", 100, "Number of students competing for seats")
	loadtestCmd.Flags().Int64Var(&courseID, "course", 101, "Course to register for")
	loadtestCmd.Flags().IntVar(&concurrentUsers, "concurrent", 50, "Number of concurrent users")
	loadtestCmd.Flags().BoolVar(&completePayment, "complete", true, "Complete every payment through the fake webhook")
	loadtestCmd.Flags().DurationVar(&settleWait, "settle", 2*time.Second, "Time to let queued gateway events apply before checking seats")
}

func runLoadTest() {
	loadTester := NewLoadTester(LoadTestConfig{
		BaseURL:         baseURL,
		NumStudents:     numStudents,
		CourseID:        courseID,
		ConcurrentUsers: concurrentUsers,
		CompletePayment: completePayment,
		SettleWait:      settleWait,
	})

	fmt.Println("Course Checkout Load Test")
	fmt.Println("=========================")

	if err := loadTester.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize load test: %v\n", err)
		os.Exit(1)
	}

	loadTester.RunLoadTest()
	loadTester.printResults()

	ok, err := loadTester.CheckOverbooking()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to check seat accounting: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Println("\n  ❌ Course is overbooked")
		os.Exit(1)
	}
	fmt.Println("\n  ✅ No overbooking")
}
